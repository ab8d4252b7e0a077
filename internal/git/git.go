package git

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nerrad567/release2mqtt/internal/process"
)

// Default timeouts, used when Options leaves them zero.
const (
	defaultStatusTimeout = 2 * time.Minute
	defaultPullTimeout   = 5 * time.Minute
	defaultQueryTimeout  = 30 * time.Second
)

// behindMarker is what "git status" prints when the upstream has new commits.
const behindMarker = "Your branch is behind"

// Runner executes a subprocess. *process.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, c process.Command) (process.Result, error)
}

// Options configures a Client.
type Options struct {
	// Binary is the git executable. Defaults to "git".
	Binary string

	StatusTimeout time.Duration
	PullTimeout   time.Duration
}

// Client runs git commands against arbitrary repositories.
type Client struct {
	runner Runner
	opts   Options
}

// New creates a Client.
func New(runner Runner, opts Options) *Client {
	if opts.Binary == "" {
		opts.Binary = "git"
	}
	if opts.StatusTimeout == 0 {
		opts.StatusTimeout = defaultStatusTimeout
	}
	if opts.PullTimeout == 0 {
		opts.PullTimeout = defaultPullTimeout
	}
	return &Client{runner: runner, opts: opts}
}

// run executes git with -C dir prepended.
func (c *Client) run(ctx context.Context, name, dir string, timeout time.Duration, args ...string) (process.Result, error) {
	return c.runner.Run(ctx, process.Command{
		Name:   name,
		Binary: c.opts.Binary,
		Args:   append([]string{"-C", dir}, args...),
		// Messages are matched on, so keep them untranslated.
		Env:     []string{"LC_ALL=C"},
		Timeout: timeout,
	})
}

// Trust marks dir as a safe directory. Checkouts mounted into a container
// are usually owned by another uid, which git otherwise refuses to touch.
func (c *Client) Trust(ctx context.Context, dir string) error {
	res, err := c.runner.Run(ctx, process.Command{
		Name:    "git-trust",
		Binary:  c.opts.Binary,
		Args:    []string{"config", "--global", "--add", "safe.directory", dir},
		Timeout: defaultQueryTimeout,
	})
	if err != nil {
		return fmt.Errorf("trusting %s: %w", dir, err)
	}
	if !res.Success() {
		return fmt.Errorf("%w: git config safe.directory %s exited %d: %s", ErrCommandFailed, dir, res.ExitCode, res.Output)
	}
	return nil
}

// Timestamp returns the committer date of HEAD.
func (c *Client) Timestamp(ctx context.Context, dir string) (time.Time, error) {
	res, err := c.run(ctx, "git-log", dir, defaultQueryTimeout, "log", "-1", "--format=%cI", "--no-show-signature")
	if err != nil {
		return time.Time{}, fmt.Errorf("reading HEAD timestamp in %s: %w", dir, err)
	}
	if !res.Success() {
		return time.Time{}, fmt.Errorf("%w: git log in %s exited %d: %s", ErrCommandFailed, dir, res.ExitCode, res.Output)
	}

	ts, err := time.Parse(time.RFC3339, strings.TrimSpace(res.Output))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: HEAD timestamp %q in %s: %w", ErrParse, res.Output, dir, err)
	}
	return ts, nil
}

// Behind reports whether the checkout's branch is behind its upstream,
// according to the last fetch.
func (c *Client) Behind(ctx context.Context, dir string) (bool, error) {
	res, err := c.run(ctx, "git-status", dir, c.opts.StatusTimeout, "status", "-uno")
	if err != nil {
		return false, fmt.Errorf("checking status in %s: %w", dir, err)
	}
	if !res.Success() {
		return false, fmt.Errorf("%w: git status in %s exited %d: %s", ErrCommandFailed, dir, res.ExitCode, res.Output)
	}
	return strings.Contains(res.Output, behindMarker), nil
}

// Pull fast-forwards the checkout.
//
// Returns:
//   - bool: true if git exited zero
//   - error: If git could not run or timed out; a non-zero exit is not an error
func (c *Client) Pull(ctx context.Context, dir string) (bool, error) {
	res, err := c.run(ctx, "git-pull", dir, c.opts.PullTimeout, "pull")
	if err != nil {
		return false, fmt.Errorf("pulling in %s: %w", dir, err)
	}
	return res.Success(), nil
}
