package policy

import (
	"context"
	"errors"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/nerrad567/release2mqtt/internal/dispatch"
	"github.com/nerrad567/release2mqtt/internal/release"
)

// DefaultInterval is the throttle used when none is configured.
const DefaultInterval = 4 * time.Hour

// Dispatcher executes install commands. *dispatch.Dispatcher satisfies it.
type Dispatcher interface {
	Dispatch(ctx context.Context, cmd dispatch.Command) error
}

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Engine applies the auto update policy.
type Engine struct {
	dispatcher Dispatcher
	interval   time.Duration
	clock      clock.Clock
	logger     Logger
}

// New creates an Engine. A non-positive interval uses DefaultInterval.
func New(dispatcher Dispatcher, interval time.Duration) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		dispatcher: dispatcher,
		interval:   interval,
		clock:      clock.New(),
		logger:     noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetClock replaces the clock, for tests.
func (e *Engine) SetClock(c clock.Clock) {
	e.clock = c
}

// Due reports whether d should be installed automatically now.
func (e *Engine) Due(d *release.Discovery) bool {
	if d.UpdatePolicy != release.PolicyAuto {
		return false
	}
	if d.UpdateLastAttempt == nil {
		return true
	}
	return e.clock.Since(*d.UpdateLastAttempt) > e.interval
}

// Apply dispatches an install for every due discovery, one at a time, and
// returns the number of installs attempted. Failed installs are logged and
// do not stop the remaining ones.
func (e *Engine) Apply(ctx context.Context, discoveries []*release.Discovery) int {
	attempted := 0
	for _, d := range discoveries {
		if ctx.Err() != nil {
			break
		}
		if d.UpdatePolicy != release.PolicyAuto {
			continue
		}
		if !e.Due(d) {
			e.logger.Info("auto update throttled",
				"name", d.Name,
				"last_attempt", d.UpdateLastAttempt,
				"interval", e.interval,
			)
			continue
		}

		attempted++
		err := e.dispatcher.Dispatch(ctx, dispatch.Command{
			SourceType: d.SourceType,
			Name:       d.Name,
			Command:    release.CommandInstall,
			Source:     dispatch.SourceAuto,
		})
		switch {
		case err == nil:
			e.logger.Info("auto update installed", "name", d.Name)
		case errors.Is(err, dispatch.ErrUpdateFailed):
			e.logger.Warn("auto update failed", "name", d.Name, "error", err)
		default:
			e.logger.Warn("auto update not started", "name", d.Name, "error", err)
		}
	}
	return attempted
}
