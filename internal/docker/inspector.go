package docker

import (
	"context"
	"time"
)

// Environment variables read from containers.
const (
	EnvPicture     = "REL2MQTT_PICTURE"
	EnvRelNotes    = "REL2MQTT_RELNOTES"
	EnvUpdate      = "REL2MQTT_UPDATE"
	EnvGitRepoPath = "REL2MQTT_GIT_REPO_PATH"
	EnvApt         = "REL2MQTT_APT"
)

// Labels set by docker compose on the containers it creates.
const (
	LabelComposeWorkingDir = "com.docker.compose.project.working_dir"
	LabelComposeVersion    = "com.docker.compose.version"
)

// Container is the subset of container state the provider analyses.
type Container struct {
	ID      string
	Name    string
	ImageID string
	Running bool
	Env     map[string]string
	Labels  map[string]string
}

// Image is the subset of image metadata the provider analyses.
type Image struct {
	ID           string
	RepoTags     []string
	RepoDigests  []string
	OS           string
	Architecture string
	Variant      string
}

// Inspector reads container, image and registry state.
type Inspector interface {
	// List returns the ids of running containers.
	List(ctx context.Context) ([]string, error)

	// Container inspects a container by id or name. It returns an error
	// wrapping ErrNotFound when the container does not exist.
	Container(ctx context.Context, idOrName string) (Container, error)

	// Image inspects an image by id.
	Image(ctx context.Context, id string) (Image, error)

	// RegistryDigest returns the manifest digest the registry serves for
	// ref, e.g. "sha256:2f1c...".
	RegistryDigest(ctx context.Context, ref string) (string, error)

	// Pull fetches ref for the given platform ("os/arch[/variant]", may be
	// empty) and waits for the pull to complete.
	Pull(ctx context.Context, ref, platform string) error
}

// Composer drives docker compose in a project directory. A false result
// with a nil error means compose ran and exited non-zero.
type Composer interface {
	Build(ctx context.Context, dir string) (bool, error)
	Up(ctx context.Context, dir string) (bool, error)
}

// SourceSync keeps a git checkout up to date. *git.Client satisfies it.
type SourceSync interface {
	Trust(ctx context.Context, dir string) error
	Behind(ctx context.Context, dir string) (bool, error)
	Pull(ctx context.Context, dir string) (bool, error)
	Timestamp(ctx context.Context, dir string) (time.Time, error)
}
