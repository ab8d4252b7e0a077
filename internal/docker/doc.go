// Package docker provides the release.Provider for locally running
// containers.
//
// A scan lists running containers through the Docker Engine API, compares
// each image's local repo digests with the digest the registry currently
// serves for its tag, and reports both as short digests. Updates either pull
// the image from the registry or, for images built from a git checkout, pull
// the checkout and rebuild with docker compose; compose then recreates the
// container.
//
// Containers opt into extra behaviour through environment variables:
//
//	REL2MQTT_PICTURE        entity picture URL
//	REL2MQTT_RELNOTES       release notes URL
//	REL2MQTT_UPDATE=auto    install updates without waiting for a command
//	REL2MQTT_GIT_REPO_PATH  source checkout, relative to the compose directory
//	REL2MQTT_APT            package list forwarded to Home Assistant
//
// The compose working directory and version come from the labels compose
// puts on every container it creates.
//
// The Provider keeps a registry of the last Discovery per container and is
// not safe for concurrent use. The Engine and the compose runner are.
package docker
