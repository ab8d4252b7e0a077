package docker

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/nerrad567/release2mqtt/internal/release"
)

// Details is the docker-specific part of a Discovery, held in
// release.Discovery.Custom.
type Details struct {
	// ImageRef is the first repo tag of the image, or "" when untagged.
	ImageRef string

	// Platform is "os/arch[/variant]" of the local image.
	Platform string

	ComposePath       release.Optional[string]
	ComposeVersion    release.Optional[string]
	GitRepoPath       release.Optional[string]
	GitLocalTimestamp release.Optional[time.Time]
	AptPkgs           release.Optional[string]
}

// RepoDir resolves the git checkout directory. Relative paths are taken
// relative to the compose working directory.
func (d Details) RepoDir() string {
	repo, ok := d.GitRepoPath.Get()
	if !ok {
		return ""
	}
	if compose, ok := d.ComposePath.Get(); ok && !filepath.IsAbs(repo) {
		return filepath.Join(compose, repo)
	}
	return repo
}

// detailsOf returns the docker details carried by d, or the zero value.
func detailsOf(d *release.Discovery) Details {
	if details, ok := d.Custom.(Details); ok {
		return details
	}
	return Details{}
}

// shortDigest reduces "repo@sha256:<hex>" or "sha256:<hex>" to the first 12
// hex characters. It returns "" for anything else.
func shortDigest(s string) string {
	if _, after, ok := strings.Cut(s, "@"); ok {
		s = after
	}
	hex, ok := strings.CutPrefix(s, "sha256:")
	if !ok || len(hex) < shortDigestLen {
		return ""
	}
	return hex[:shortDigestLen]
}

// shortDigestLen is the number of hex characters reported as a version.
const shortDigestLen = 12

// platformOf joins the non-empty platform parts of an image.
func platformOf(img Image) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{img.OS, img.Architecture, img.Variant} {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "/")
}
