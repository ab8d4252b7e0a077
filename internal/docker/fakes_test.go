package docker

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// fakeInspector serves containers, images and registry digests from memory.
type fakeInspector struct {
	ids        []string
	containers map[string]Container
	images     map[string]Image
	listErr    error

	// registry maps image refs to digests. Refs in registryFailures fail
	// that many times before succeeding; refs missing from registry always fail.
	registry         map[string]string
	registryFailures map[string]int
	registryCalls    map[string]int

	pullErr error
	pulls   []string
}

func newFakeInspector() *fakeInspector {
	return &fakeInspector{
		containers:       map[string]Container{},
		images:           map[string]Image{},
		registry:         map[string]string{},
		registryFailures: map[string]int{},
		registryCalls:    map[string]int{},
	}
}

// add registers a running container with its image.
func (f *fakeInspector) add(c Container, img Image) {
	if c.ID == "" {
		c.ID = "id-" + c.Name
	}
	if c.ImageID == "" {
		c.ImageID = "img-" + c.Name
	}
	if c.Env == nil {
		c.Env = map[string]string{}
	}
	if c.Labels == nil {
		c.Labels = map[string]string{}
	}
	img.ID = c.ImageID
	f.ids = append(f.ids, c.ID)
	f.containers[c.ID] = c
	f.images[c.ImageID] = img
}

func (f *fakeInspector) List(context.Context) ([]string, error) {
	return f.ids, f.listErr
}

func (f *fakeInspector) Container(_ context.Context, idOrName string) (Container, error) {
	if c, ok := f.containers[idOrName]; ok {
		return c, nil
	}
	for _, c := range f.containers {
		if c.Name == idOrName {
			return c, nil
		}
	}
	return Container{}, fmt.Errorf("%w: container %s", ErrNotFound, idOrName)
}

func (f *fakeInspector) Image(_ context.Context, id string) (Image, error) {
	img, ok := f.images[id]
	if !ok {
		return Image{}, fmt.Errorf("%w: image %s", ErrNotFound, id)
	}
	return img, nil
}

func (f *fakeInspector) RegistryDigest(_ context.Context, ref string) (string, error) {
	f.registryCalls[ref]++
	if f.registryFailures[ref] > 0 {
		f.registryFailures[ref]--
		return "", errors.New("registry unavailable")
	}
	digest, ok := f.registry[ref]
	if !ok {
		return "", errors.New("registry unavailable")
	}
	return digest, nil
}

func (f *fakeInspector) Pull(_ context.Context, ref, platform string) error {
	f.pulls = append(f.pulls, ref+"|"+platform)
	return f.pullErr
}

// fakeComposer records compose invocations.
type fakeComposer struct {
	builds, ups []string
	buildOK     bool
	upOK        bool
	err         error
	panicOnUp   bool
}

func newFakeComposer() *fakeComposer {
	return &fakeComposer{buildOK: true, upOK: true}
}

func (f *fakeComposer) Build(_ context.Context, dir string) (bool, error) {
	f.builds = append(f.builds, dir)
	return f.buildOK, f.err
}

func (f *fakeComposer) Up(_ context.Context, dir string) (bool, error) {
	if f.panicOnUp {
		panic("compose exploded")
	}
	f.ups = append(f.ups, dir)
	return f.upOK, f.err
}

// fakeSource scripts git checkout state.
type fakeSource struct {
	behind    bool
	behindErr error
	pullOK    bool
	stamp     time.Time
	stampErr  error

	trusted, pulled []string
}

func (f *fakeSource) Trust(_ context.Context, dir string) error {
	f.trusted = append(f.trusted, dir)
	return nil
}

func (f *fakeSource) Behind(context.Context, string) (bool, error) {
	return f.behind, f.behindErr
}

func (f *fakeSource) Pull(_ context.Context, dir string) (bool, error) {
	f.pulled = append(f.pulled, dir)
	return f.pullOK, nil
}

func (f *fakeSource) Timestamp(context.Context, string) (time.Time, error) {
	return f.stamp, f.stampErr
}

const longHash = "9e2bbca079387d7965c3a9cee6d0c53f4f4e63ff7637877a83c4c05f2a666112"

// digestImage returns an image tagged tag with a single repo digest.
func digestImage(tag, hash string) Image {
	repo, _, _ := cutTag(tag)
	return Image{
		RepoTags:     []string{tag},
		RepoDigests:  []string{repo + "@sha256:" + hash},
		OS:           "linux",
		Architecture: "arm64",
	}
}

// cutTag splits "repo:tag" into repo and tag.
func cutTag(ref string) (string, string, bool) {
	for i := len(ref) - 1; i >= 0; i-- {
		switch ref[i] {
		case ':':
			return ref[:i], ref[i+1:], true
		case '/':
			return ref, "", false
		}
	}
	return ref, "", false
}
