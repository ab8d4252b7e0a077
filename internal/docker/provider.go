package docker

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/release2mqtt/internal/release"
)

// SourceType is the provider type used in topics and commands.
const SourceType = "docker"

// titleTemplate is the Home Assistant title for docker update entities.
const titleTemplate = "Docker image update for {name} on {node}"

// registryAttempts bounds registry lookups per container per analysis.
const registryAttempts = 3

// defaultRegistryTimeout applies when Options.RegistryTimeout is zero.
const defaultRegistryTimeout = 30 * time.Second

// Logger defines the logging interface used by the Provider.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Provider.
type Options struct {
	AllowPull    bool
	AllowRestart bool
	AllowBuild   bool

	// DefaultEntityPictureURL is used unless a container sets REL2MQTT_PICTURE.
	DefaultEntityPictureURL string
	DeviceIcon              string

	// RegistryTimeout bounds a single registry lookup attempt.
	RegistryTimeout time.Duration
}

// Provider is the release.Provider for docker containers.
type Provider struct {
	inspector Inspector
	composer  Composer
	source    SourceSync
	opts      Options
	clock     clock.Clock
	logger    Logger

	// discoveries holds the latest Discovery per container name.
	discoveries map[string]*release.Discovery
}

var _ release.Provider = (*Provider)(nil)

// NewProvider creates a Provider.
//
// Parameters:
//   - inspector: Docker Engine access for containers, images and registries
//   - composer: compose runner used to rebuild and recreate containers
//   - source: git access for containers built from a local checkout (may be nil)
//   - opts: which update steps are allowed, plus payload defaults
//
// Returns:
//   - *Provider: Provider with an empty registry; call Scan to populate it
func NewProvider(inspector Inspector, composer Composer, source SourceSync, opts Options) *Provider {
	if opts.RegistryTimeout == 0 {
		opts.RegistryTimeout = defaultRegistryTimeout
	}
	return &Provider{
		inspector:   inspector,
		composer:    composer,
		source:      source,
		opts:        opts,
		clock:       clock.New(),
		logger:      noopLogger{},
		discoveries: make(map[string]*release.Discovery),
	}
}

// SetLogger sets the logger for the provider.
func (p *Provider) SetLogger(logger Logger) {
	p.logger = logger
}

// SetClock replaces the clock used to stamp update attempts.
func (p *Provider) SetClock(c clock.Clock) {
	p.clock = c
}

// SourceType implements release.Provider.
func (p *Provider) SourceType() string {
	return SourceType
}

// Discovery returns the latest Discovery for a container name.
func (p *Provider) Discovery(name string) (*release.Discovery, bool) {
	d, ok := p.discoveries[name]
	return d, ok
}

// Scan implements release.Provider. The sequence inspects containers lazily,
// one per iteration step.
//
// Parameters:
//   - ctx: Context for cancellation; a cancelled context ends the sequence
//   - session: Token stamped on every Discovery produced by this scan
//
// Returns:
//   - iter.Seq[*release.Discovery]: One Discovery per running container that
//     could be inspected; failures are logged and skipped
func (p *Provider) Scan(ctx context.Context, session string) iter.Seq[*release.Discovery] {
	return func(yield func(*release.Discovery) bool) {
		ids, err := p.inspector.List(ctx)
		if err != nil {
			p.logger.Error("listing containers failed", "error", err)
			return
		}

		for _, id := range ids {
			if ctx.Err() != nil {
				return
			}

			c, err := p.inspector.Container(ctx, id)
			if err != nil {
				p.logger.Warn("skipping container", "id", id, "error", err)
				continue
			}

			d, err := p.analyze(ctx, c, session)
			if err != nil {
				p.logger.Warn("skipping container", "container", c.Name, "error", err)
				continue
			}

			p.remember(d)
			if !yield(d) {
				return
			}
		}
	}
}

// Rescan implements release.Provider.
//
// Returns:
//   - *release.Discovery: Fresh Discovery for d's container, or nil if the
//     container no longer exists
//   - error: If the container could not be inspected
func (p *Provider) Rescan(ctx context.Context, d *release.Discovery) (*release.Discovery, error) {
	c, err := p.inspector.Container(ctx, d.Name)
	if errors.Is(err, ErrNotFound) {
		p.logger.Warn("container gone on rescan", "container", d.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("rescanning %s: %w", d.Name, err)
	}

	refreshed, err := p.analyze(ctx, c, d.Session)
	if err != nil {
		return nil, fmt.Errorf("rescanning %s: %w", d.Name, err)
	}

	p.remember(refreshed)
	if refreshed.UpdateLastAttempt == nil && d.UpdateLastAttempt != nil {
		t := *d.UpdateLastAttempt
		refreshed.UpdateLastAttempt = &t
	}
	return refreshed, nil
}

// remember stores d, carrying forward the last update attempt of the unit.
func (p *Provider) remember(d *release.Discovery) {
	if prev, ok := p.discoveries[d.Name]; ok && d.UpdateLastAttempt == nil && prev.UpdateLastAttempt != nil {
		t := *prev.UpdateLastAttempt
		d.UpdateLastAttempt = &t
	}
	p.discoveries[d.Name] = d
}

// analyze turns an inspected container into a Discovery.
func (p *Provider) analyze(ctx context.Context, c Container, session string) (*release.Discovery, error) {
	img, err := p.inspector.Image(ctx, c.ImageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrNoImage, c.Name, err)
	}

	imageRef := ""
	if len(img.RepoTags) > 0 {
		imageRef = img.RepoTags[0]
	} else {
		p.logger.Warn("no tags found", "container", c.Name)
	}

	var local []string
	for _, rd := range img.RepoDigests {
		if short := shortDigest(rd); short != "" {
			local = append(local, short)
		}
	}

	current := release.UnknownVersion
	if len(local) > 0 {
		current = local[0]
	} else {
		p.logger.Warn("cannot determine local version, no digests found", "container", c.Name)
	}
	latest := current

	if imageRef != "" && len(local) > 0 {
		if remote, ok := p.latestDigest(ctx, c.Name, imageRef); ok {
			latest = remote
			// Multi-arch images carry several digests; any match is current.
			if slices.Contains(local, remote) {
				current = remote
			}
		}
	}

	details := Details{
		ImageRef:       imageRef,
		Platform:       platformOf(img),
		ComposePath:    release.NonEmpty(c.Labels[LabelComposeWorkingDir]),
		ComposeVersion: release.NonEmpty(c.Labels[LabelComposeVersion]),
		GitRepoPath:    release.NonEmpty(c.Env[EnvGitRepoPath]),
		AptPkgs:        release.NonEmpty(c.Env[EnvApt]),
	}
	if dir := details.RepoDir(); dir != "" && p.source != nil {
		ts, err := p.source.Timestamp(ctx, dir)
		if err != nil {
			p.logger.Warn("cannot read checkout timestamp", "container", c.Name, "dir", dir, "error", err)
		} else {
			details.GitLocalTimestamp = release.Some(ts)
		}
	}

	policy := release.PolicyPassive
	if strings.EqualFold(c.Env[EnvUpdate], string(release.PolicyAuto)) {
		policy = release.PolicyAuto
	}

	status := release.StatusOff
	if c.Running {
		status = release.StatusOn
	}

	picture := p.opts.DefaultEntityPictureURL
	if v, ok := c.Env[EnvPicture]; ok && v != "" {
		picture = v
	}

	return &release.Discovery{
		Name:             c.Name,
		SourceType:       SourceType,
		Session:          session,
		CurrentVersion:   current,
		LatestVersion:    latest,
		CanUpdate:        p.canUpdate(details),
		UpdatePolicy:     policy,
		Status:           status,
		TitleTemplate:    titleTemplate,
		EntityPictureURL: picture,
		ReleaseURL:       release.NonEmpty(c.Env[EnvRelNotes]),
		DeviceIcon:       p.opts.DeviceIcon,
		Custom:           details,
	}, nil
}

// canUpdate reports whether configuration allows any update path the
// container offers.
func (p *Provider) canUpdate(d Details) bool {
	return (p.opts.AllowPull && d.ImageRef != "") ||
		(p.opts.AllowRestart && d.ComposePath.IsSet()) ||
		(p.opts.AllowBuild && d.GitRepoPath.IsSet())
}

// latestDigest asks the registry for the current digest of ref, trying up to
// registryAttempts times in a row.
func (p *Provider) latestDigest(ctx context.Context, name, ref string) (string, bool) {
	for attempt := 1; attempt <= registryAttempts; attempt++ {
		digest, err := p.registryDigest(ctx, ref)
		if err == nil {
			if short := shortDigest(digest); short != "" {
				return short, true
			}
			err = fmt.Errorf("unexpected digest %q", digest)
		}

		if attempt < registryAttempts && ctx.Err() == nil {
			p.logger.Debug("registry lookup failed, retrying",
				"container", name, "image", ref, "attempt", attempt, "error", err)
			continue
		}
		p.logger.Warn("registry lookup failed",
			"container", name, "image", ref, "attempts", attempt, "error", err)
		return "", false
	}
	return "", false
}

func (p *Provider) registryDigest(ctx context.Context, ref string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.opts.RegistryTimeout)
	defer cancel()
	return p.inspector.RegistryDigest(ctx, ref)
}

// Update implements release.Provider.
//
// Source-built containers pull their checkout when it is behind and rebuild;
// other tagged images are pulled from the registry. Compose then recreates
// the container when restarts are allowed.
//
// Parameters:
//   - ctx: Context for cancellation of registry and subprocess calls
//   - d: The Discovery to update; its attempt time is recorded first
//
// Returns:
//   - bool: false if a step ran but did not succeed
//   - error: If a step could not run at all
func (p *Provider) Update(ctx context.Context, d *release.Discovery) (bool, error) {
	p.discoveries[d.Name] = d.WithLastAttempt(p.clock.Now())

	details := detailsOf(d)
	composePath, hasCompose := details.ComposePath.Get()

	p.logger.Info("updating container", "container", d.Name)

	switch {
	case details.GitRepoPath.IsSet() && p.opts.AllowBuild:
		ok, err := p.rebuild(ctx, d.Name, details)
		if err != nil || !ok {
			return false, err
		}
	case details.ImageRef != "" && p.opts.AllowPull:
		p.logger.Info("pulling image", "container", d.Name, "image", details.ImageRef, "platform", details.Platform)
		if err := p.inspector.Pull(ctx, details.ImageRef, details.Platform); err != nil {
			return false, fmt.Errorf("updating %s: %w", d.Name, err)
		}
	}

	if hasCompose && p.opts.AllowRestart {
		p.logger.Info("restarting container via compose", "container", d.Name, "dir", composePath)
		ok, err := p.composer.Up(ctx, composePath)
		if err != nil {
			return false, fmt.Errorf("restarting %s: %w", d.Name, err)
		}
		if !ok {
			p.logger.Warn("compose restart failed", "container", d.Name)
			return false, nil
		}
	}

	p.logger.Info("updated container", "container", d.Name)
	return true, nil
}

// rebuild pulls the checkout if it is behind and rebuilds the image.
func (p *Provider) rebuild(ctx context.Context, name string, details Details) (bool, error) {
	composePath, ok := details.ComposePath.Get()
	if !ok {
		return false, fmt.Errorf("rebuilding %s: %w", name, ErrNoComposePath)
	}
	dir := details.RepoDir()

	if p.source != nil {
		ok, err := p.syncSource(ctx, name, dir)
		if err != nil || !ok {
			return false, err
		}
	}

	p.logger.Info("building image via compose", "container", name, "dir", composePath)
	built, err := p.composer.Build(ctx, composePath)
	if err != nil {
		return false, fmt.Errorf("rebuilding %s: %w", name, err)
	}
	if !built {
		p.logger.Warn("compose build failed", "container", name)
	}
	return built, nil
}

// syncSource pulls the checkout at dir when it is behind its upstream.
func (p *Provider) syncSource(ctx context.Context, name, dir string) (bool, error) {
	if err := p.source.Trust(ctx, dir); err != nil {
		p.logger.Warn("cannot mark checkout as safe", "container", name, "dir", dir, "error", err)
	}

	behind, err := p.source.Behind(ctx, dir)
	if err != nil {
		p.logger.Warn("cannot check checkout status, building current source", "container", name, "dir", dir, "error", err)
		return true, nil
	}
	if !behind {
		return true, nil
	}

	p.logger.Info("pulling checkout", "container", name, "dir", dir)
	pulled, err := p.source.Pull(ctx, dir)
	if err != nil {
		return false, fmt.Errorf("rebuilding %s: %w", name, err)
	}
	if !pulled {
		p.logger.Warn("git pull failed", "container", name, "dir", dir)
	}
	return pulled, nil
}

// Command implements release.Provider.
//
// Parameters:
//   - ctx: Context passed to Update and Rescan
//   - name: Container name from the inbound command
//   - command: Only "install" is acted on
//   - onStart: Called with the current Discovery before the update begins
//   - onEnd: Called with the last known Discovery when a started update
//     produced no refreshed Discovery
//
// Returns:
//   - *release.Discovery: The refreshed Discovery, or nil if the command was
//     rejected or the update failed
func (p *Provider) Command(ctx context.Context, name, command string, onStart, onEnd release.Callback) *release.Discovery {
	p.logger.Info("executing command", "container", name, "command", command)

	if command != release.CommandInstall {
		p.logger.Warn("unknown command", "container", name, "command", command)
		return nil
	}
	d, ok := p.discoveries[name]
	if !ok {
		p.logger.Warn("unknown container", "container", name)
		return nil
	}
	if !d.CanUpdate {
		p.logger.Warn("container cannot be updated", "container", name)
		return nil
	}

	return p.install(ctx, d, onStart, onEnd)
}

// install runs update and rescan, containing any error or panic so nothing
// escapes to the caller.
func (p *Provider) install(ctx context.Context, d *release.Discovery, onStart, onEnd release.Callback) (result *release.Discovery) {
	started := false
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("update panicked", "container", d.Name, "panic", r)
			result = nil
		}
		if started && result == nil && onEnd != nil {
			onEnd(p.lastKnown(d))
		}
	}()

	if onStart != nil {
		onStart(d)
	}
	started = true

	ok, err := p.Update(ctx, d)
	if err != nil {
		p.logger.Error("update failed", "container", d.Name, "error", err)
		return nil
	}
	if !ok {
		p.logger.Warn("update did not complete", "container", d.Name)
		return nil
	}

	p.logger.Info("rescanning", "container", d.Name)
	refreshed, err := p.Rescan(ctx, d)
	if err != nil {
		p.logger.Error("rescan failed", "container", d.Name, "error", err)
		return nil
	}
	if refreshed == nil {
		p.logger.Info("rescan with no result", "container", d.Name)
		return nil
	}
	return refreshed
}

// lastKnown returns the registry entry for d's unit, falling back to d.
func (p *Provider) lastKnown(d *release.Discovery) *release.Discovery {
	if cur, ok := p.discoveries[d.Name]; ok {
		return cur
	}
	return d
}

// FormatConfig implements release.Provider.
func (p *Provider) FormatConfig(d *release.Discovery) map[string]any {
	details := detailsOf(d)
	return map[string]any{
		"image_ref":       details.ImageRef,
		"platform":        details.Platform,
		"compose_path":    details.ComposePath,
		"compose_version": details.ComposeVersion,
		"git_repo_path":   details.GitRepoPath,
	}
}

// FormatState implements release.Provider.
func (p *Provider) FormatState(d *release.Discovery) map[string]any {
	details := detailsOf(d)
	return map[string]any{
		"git_local_timestamp": details.GitLocalTimestamp,
		"apt_pkgs":            details.AptPkgs,
	}
}
