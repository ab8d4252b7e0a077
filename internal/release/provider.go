package release

import (
	"context"
	"iter"
)

// CommandInstall is the only command providers act on.
const CommandInstall = "install"

// Callback observes a Discovery at an update boundary.
type Callback func(d *Discovery)

// Provider inspects and updates units of one source type.
//
// Implementations are not required to be safe for concurrent use; callers
// drive Scan, Rescan, Update and Command from a single goroutine.
// FormatConfig and FormatState may be called concurrently.
type Provider interface {
	// SourceType names the provider, e.g. "docker". It appears in topics
	// and in inbound commands.
	SourceType() string

	// Scan lists and analyses every running unit, tagging each Discovery
	// with session. Units that fail inspection are logged and skipped.
	Scan(ctx context.Context, session string) iter.Seq[*Discovery]

	// Update fetches and restarts the unit. A false result with a nil error
	// means a step ran but failed; an error means a step could not run.
	Update(ctx context.Context, d *Discovery) (bool, error)

	// Rescan re-inspects a single unit. It returns nil without error when
	// the unit no longer exists.
	Rescan(ctx context.Context, d *Discovery) (*Discovery, error)

	// Command handles an inbound command for the named unit. onStart is
	// called before the update begins; onEnd is called after a started
	// update that did not yield a refreshed Discovery. Rejected commands
	// invoke neither callback and return nil.
	Command(ctx context.Context, name, command string, onStart, onEnd Callback) *Discovery

	// FormatConfig returns provider fields merged into the config payload.
	FormatConfig(d *Discovery) map[string]any

	// FormatState returns provider fields merged into the state payload.
	FormatState(d *Discovery) map[string]any
}
