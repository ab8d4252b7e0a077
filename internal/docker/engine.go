package docker

import (
	"context"
	"fmt"
	"io"
	"strings"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/registry"
	"github.com/docker/docker/client"
)

// engineAPI is the part of the Docker client the Engine uses.
type engineAPI interface {
	ContainerList(ctx context.Context, options container.ListOptions) ([]container.Summary, error)
	ContainerInspect(ctx context.Context, containerID string) (container.InspectResponse, error)
	ImageInspect(ctx context.Context, imageID string, opts ...client.ImageInspectOption) (image.InspectResponse, error)
	DistributionInspect(ctx context.Context, imageRef, encodedRegistryAuth string) (registry.DistributionInspect, error)
	ImagePull(ctx context.Context, refStr string, options image.PullOptions) (io.ReadCloser, error)
	Close() error
}

// Engine is the Inspector backed by the Docker Engine API.
type Engine struct {
	api engineAPI
}

// NewEngine connects to the daemon described by the standard DOCKER_HOST,
// DOCKER_API_VERSION, DOCKER_CERT_PATH and DOCKER_TLS_VERIFY variables and
// negotiates the API version.
//
// Returns:
//   - *Engine: Client ready for use; call Close when done
//   - error: If the client options from the environment are invalid
func NewEngine() (*Engine, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	return &Engine{api: cli}, nil
}

// Close releases the client's connections.
func (e *Engine) Close() error {
	return e.api.Close()
}

// List returns the ids of running containers.
func (e *Engine) List(ctx context.Context) ([]string, error) {
	summaries, err := e.api.ContainerList(ctx, container.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}
	ids := make([]string, 0, len(summaries))
	for _, s := range summaries {
		ids = append(ids, s.ID)
	}
	return ids, nil
}

// Container inspects a container by id or name.
func (e *Engine) Container(ctx context.Context, idOrName string) (Container, error) {
	resp, err := e.api.ContainerInspect(ctx, idOrName)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return Container{}, fmt.Errorf("%w: container %s", ErrNotFound, idOrName)
		}
		return Container{}, fmt.Errorf("inspecting container %s: %w", idOrName, err)
	}
	if resp.ContainerJSONBase == nil {
		return Container{}, fmt.Errorf("inspecting container %s: empty response", idOrName)
	}

	c := Container{
		ID:      resp.ID,
		Name:    strings.TrimPrefix(resp.Name, "/"),
		ImageID: resp.Image,
		Env:     map[string]string{},
		Labels:  map[string]string{},
	}
	if resp.State != nil {
		c.Running = resp.State.Running
	}
	if resp.Config != nil {
		c.Env = parseEnv(resp.Config.Env)
		if resp.Config.Labels != nil {
			c.Labels = resp.Config.Labels
		}
	}
	return c, nil
}

// Image inspects an image by id.
func (e *Engine) Image(ctx context.Context, id string) (Image, error) {
	resp, err := e.api.ImageInspect(ctx, id)
	if err != nil {
		if cerrdefs.IsNotFound(err) {
			return Image{}, fmt.Errorf("%w: image %s", ErrNotFound, id)
		}
		return Image{}, fmt.Errorf("inspecting image %s: %w", id, err)
	}
	return Image{
		ID:           resp.ID,
		RepoTags:     resp.RepoTags,
		RepoDigests:  resp.RepoDigests,
		OS:           resp.Os,
		Architecture: resp.Architecture,
		Variant:      resp.Variant,
	}, nil
}

// RegistryDigest asks the registry for the manifest digest of ref.
func (e *Engine) RegistryDigest(ctx context.Context, ref string) (string, error) {
	info, err := e.api.DistributionInspect(ctx, ref, "")
	if err != nil {
		return "", fmt.Errorf("querying registry for %s: %w", ref, err)
	}
	return info.Descriptor.Digest.String(), nil
}

// Pull fetches ref and drains the progress stream so the call returns only
// once the pull is complete.
func (e *Engine) Pull(ctx context.Context, ref, platform string) error {
	rc, err := e.api.ImagePull(ctx, ref, image.PullOptions{Platform: platform})
	if err != nil {
		return fmt.Errorf("pulling %s: %w", ref, err)
	}
	defer rc.Close()

	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("reading pull progress for %s: %w", ref, err)
	}
	return nil
}

// parseEnv turns KEY=VALUE entries into a map. Entries without "=" map to "".
func parseEnv(env []string) map[string]string {
	m := make(map[string]string, len(env))
	for _, e := range env {
		k, v, _ := strings.Cut(e, "=")
		m[k] = v
	}
	return m
}
