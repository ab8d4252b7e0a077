package dispatch

import (
	"context"
	"fmt"
	"sync"

	"github.com/nerrad567/release2mqtt/internal/hass"
	"github.com/nerrad567/release2mqtt/internal/release"
)

// Update outcomes passed to a Recorder.
const (
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

// Publisher publishes discovery payloads. *hass.Publisher satisfies it.
type Publisher interface {
	Publish(ext hass.Extender, d *release.Discovery, progress hass.Progress) error
	PublishState(ext hass.Extender, d *release.Discovery, progress hass.Progress) error
}

// Recorder receives the outcome of every accepted update.
type Recorder interface {
	RecordUpdate(d *release.Discovery, outcome, source string)
}

// Logger defines the logging interface used by the Dispatcher.
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

// Dispatcher routes commands to providers and drives the per-unit state
// machine. All methods are safe for concurrent use. A unit is reserved as
// InProgress before its provider is called, so a command for a unit that is
// already in progress is rejected without waiting. Provider calls for
// different units are serialized.
type Dispatcher struct {
	providers map[string]release.Provider
	publisher Publisher
	recorder  Recorder
	logger    Logger

	// run serializes provider calls.
	run sync.Mutex

	mu     sync.Mutex
	states map[string]State
}

// New creates a Dispatcher for the given providers.
func New(publisher Publisher, providers ...release.Provider) *Dispatcher {
	m := make(map[string]release.Provider, len(providers))
	for _, p := range providers {
		m[p.SourceType()] = p
	}
	return &Dispatcher{
		providers: m,
		publisher: publisher,
		logger:    noopLogger{},
		states:    make(map[string]State),
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetRecorder sets a recorder for update outcomes.
func (d *Dispatcher) SetRecorder(r Recorder) {
	d.recorder = r
}

// State returns the current state of a unit.
func (d *Dispatcher) State(sourceType, name string) State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.states[sourceType+"/"+name]
}

// HandleMessage decodes a bus payload and dispatches it.
func (d *Dispatcher) HandleMessage(ctx context.Context, payload []byte) error {
	cmd, err := Decode(payload)
	if err != nil {
		d.logger.Warn("rejecting command", "error", err, "payload", string(payload))
		return err
	}
	return d.Dispatch(ctx, cmd)
}

// Dispatch executes cmd and blocks until the update has finished.
//
// Parameters:
//   - ctx: Context passed to the provider
//   - cmd: The command; Source is recorded with the outcome
//
// Returns:
//   - error: nil when the unit was updated, ErrUpdateFailed when an accepted
//     update failed, or ErrMalformed, ErrUnknownProvider, ErrUnknownCommand,
//     ErrInProgress or ErrRejected when no update was started
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) error {
	if err := cmd.Validate(); err != nil {
		d.logger.Warn("rejecting command", "error", err)
		return err
	}
	provider, ok := d.providers[cmd.SourceType]
	if !ok {
		d.logger.Warn("rejecting command", "source_type", cmd.SourceType, "error", ErrUnknownProvider)
		return fmt.Errorf("%w: %s", ErrUnknownProvider, cmd.SourceType)
	}
	if cmd.Command != release.CommandInstall {
		d.logger.Warn("rejecting command", "name", cmd.Name, "command", cmd.Command, "error", ErrUnknownCommand)
		return fmt.Errorf("%w: %s", ErrUnknownCommand, cmd.Command)
	}

	key := cmd.key()
	if err := d.transition(key, StateIdle, StateInProgress); err != nil {
		d.logger.Warn("rejecting command", "name", cmd.Name, "error", ErrInProgress)
		return fmt.Errorf("%w: %s", ErrInProgress, cmd.Name)
	}

	d.logger.Info("dispatching command",
		"source_type", cmd.SourceType,
		"name", cmd.Name,
		"command", cmd.Command,
		"source", cmd.Source,
	)

	d.run.Lock()
	defer d.run.Unlock()

	started := false
	failed := false

	result := provider.Command(ctx, cmd.Name, cmd.Command,
		func(disc *release.Discovery) {
			started = true
			d.begin(provider, disc)
		},
		func(disc *release.Discovery) {
			if started {
				failed = true
				d.fail(key, provider, disc, cmd.Source)
			}
		},
	)

	switch {
	case !started:
		d.idle(key, StateInProgress)
		d.logger.Warn("command rejected by provider", "name", cmd.Name)
		return fmt.Errorf("%w: %s", ErrRejected, cmd.Name)
	case result != nil && !failed:
		d.complete(key, provider, result, cmd.Source)
		return nil
	case !failed:
		// The provider returned nothing without calling onEnd. Do not
		// leave the unit in progress.
		d.fail(key, provider, nil, cmd.Source)
	}
	return fmt.Errorf("%w: %s", ErrUpdateFailed, cmd.Name)
}

// transition moves key from one state to another.
func (d *Dispatcher) transition(key string, from, to State) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur := d.states[key]; cur != from {
		return fmt.Errorf("%w: %s is %s, want %s", ErrInvalidTransition, key, cur, from)
	}
	if to == StateIdle {
		delete(d.states, key)
	} else {
		d.states[key] = to
	}
	return nil
}

// begin publishes the in-progress state of a unit that Dispatch has
// already reserved.
func (d *Dispatcher) begin(ext hass.Extender, disc *release.Discovery) {
	d.logger.Info("update started", "name", disc.Name)
	if err := d.publisher.PublishState(ext, disc, hass.ProgressActive); err != nil {
		d.logger.Warn("publishing in-progress state failed", "name", disc.Name, "error", err)
	}
}

// complete moves InProgress→Updated→Idle and publishes the refreshed unit.
func (d *Dispatcher) complete(key string, ext hass.Extender, disc *release.Discovery, source string) {
	if err := d.transition(key, StateInProgress, StateUpdated); err != nil {
		d.logger.Error("cannot complete update", "error", err)
		return
	}
	d.logger.Info("update completed",
		"name", disc.Name,
		"installed_version", disc.CurrentVersion,
		"latest_version", disc.LatestVersion,
	)
	if err := d.publisher.Publish(ext, disc, hass.ProgressDone); err != nil {
		d.logger.Warn("publishing updated unit failed", "name", disc.Name, "error", err)
	}
	if d.recorder != nil {
		d.recorder.RecordUpdate(disc, OutcomeUpdated, source)
	}
	d.idle(key, StateUpdated)
}

// fail moves InProgress→Failed→Idle and republishes the last known state.
// disc may be nil when the provider supplied nothing to report.
func (d *Dispatcher) fail(key string, ext hass.Extender, disc *release.Discovery, source string) {
	if err := d.transition(key, StateInProgress, StateFailed); err != nil {
		d.logger.Error("cannot fail update", "error", err)
		return
	}
	if disc == nil {
		d.logger.Warn("update failed", "unit", key)
		d.idle(key, StateFailed)
		return
	}
	d.logger.Warn("update failed", "name", disc.Name)
	if err := d.publisher.PublishState(ext, disc, hass.ProgressDone); err != nil {
		d.logger.Warn("publishing failed state failed", "name", disc.Name, "error", err)
	}
	if d.recorder != nil {
		d.recorder.RecordUpdate(disc, OutcomeFailed, source)
	}
	d.idle(key, StateFailed)
}

// idle returns a finished unit to Idle.
func (d *Dispatcher) idle(key string, from State) {
	if err := d.transition(key, from, StateIdle); err != nil {
		d.logger.Error("cannot return to idle", "error", err)
	}
}
