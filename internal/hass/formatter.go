package hass

import (
	"strings"

	"github.com/nerrad567/release2mqtt/internal/release"
)

// Payload values shared with Home Assistant.
const (
	PayloadInstall        = "install"
	PayloadOnline         = "online"
	PayloadOffline        = "offline"
	LatestVersionTemplate = "{{value_json.latest_version}}"

	FeatureInstall      = "INSTALL"
	FeatureReleaseNotes = "RELEASE_NOTES"
)

// Device is the Home Assistant device registry block shared by every entity
// of one node.
type Device struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	SWVersion    string   `json:"sw_version,omitempty"`
}

// Formatter renders discovery config and state payloads for one node.
type Formatter struct {
	topics      Topics
	commandable bool
	device      Device
}

// NewFormatter creates a Formatter.
//
// When commandable is false no command topic is advertised, so Home Assistant
// shows the entities as read-only.
func NewFormatter(topics Topics, commandable bool, version string) *Formatter {
	return &Formatter{
		topics:      topics,
		commandable: commandable,
		device: Device{
			Identifiers:  []string{"release2mqtt_" + topics.Node},
			Name:         topics.Node,
			Manufacturer: "release2mqtt",
			Model:        "release2mqtt",
			SWVersion:    version,
		},
	}
}

// Topics returns the topic builder used by the formatter.
func (f *Formatter) Topics() Topics {
	return f.topics
}

// Config renders the discovery config payload. Provider extras are merged
// first so they can never shadow a standard field.
func (f *Formatter) Config(d *release.Discovery, extras map[string]any) map[string]any {
	payload := make(map[string]any, len(extras)+16)
	for k, v := range extras {
		payload[k] = v
	}

	stateTopic := f.topics.State(d.SourceType, d.Name)

	var commandTopic *string
	if f.commandable {
		t := f.topics.Command(d.SourceType)
		commandTopic = &t
	}

	features := []string{}
	if d.CanUpdate {
		features = append(features, FeatureInstall)
	}
	if d.ReleaseURL.IsSet() {
		features = append(features, FeatureReleaseNotes)
	}

	payload["name"] = d.Name + " " + d.SourceType
	payload["device_class"] = nil
	payload["unique_id"] = f.topics.UniqueID(d.SourceType, d.Name)
	payload["state_topic"] = stateTopic
	payload["command_topic"] = commandTopic
	payload["payload_install"] = PayloadInstall
	payload["source_session"] = d.Session
	payload["supported_features"] = features
	payload["entity_picture"] = d.EntityPictureURL
	payload["icon"] = d.DeviceIcon
	payload["latest_version_topic"] = stateTopic
	payload["latest_version_template"] = LatestVersionTemplate
	payload["availability_topic"] = f.topics.Availability()
	payload["payload_available"] = PayloadOnline
	payload["payload_not_available"] = PayloadOffline
	payload["device"] = f.device

	return payload
}

// State renders the state payload.
func (f *Formatter) State(d *release.Discovery, extras map[string]any) map[string]any {
	payload := make(map[string]any, len(extras)+8)
	for k, v := range extras {
		payload[k] = v
	}

	state := release.StatusOff
	if d.UpdateAvailable() {
		state = release.StatusOn
	}

	payload["state"] = state
	payload["installed_version"] = d.CurrentVersion
	payload["latest_version"] = d.LatestVersion
	payload["title"] = f.Title(d)
	payload["release_url"] = d.ReleaseURL
	payload["release_summary"] = d.ReleaseSummary
	payload["source_session"] = d.Session

	return payload
}

// StateInProgress renders the state payload with the in_progress flag Home
// Assistant uses to show an install spinner.
func (f *Formatter) StateInProgress(d *release.Discovery, extras map[string]any, inProgress bool) map[string]any {
	payload := f.State(d, extras)
	payload["in_progress"] = inProgress
	return payload
}

// Title expands the discovery's title template. {name} and {node} are the
// only placeholders.
func (f *Formatter) Title(d *release.Discovery) string {
	r := strings.NewReplacer("{name}", d.Name, "{node}", f.topics.Node)
	return r.Replace(d.TitleTemplate)
}
