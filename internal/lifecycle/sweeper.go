package lifecycle

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/tidwall/gjson"

	"github.com/nerrad567/release2mqtt/internal/hass"
	"github.com/nerrad567/release2mqtt/internal/infrastructure/mqtt"
)

// DefaultWindow is how long a sweep collects retained messages when no
// window is configured.
const DefaultWindow = 20 * time.Second

// Bus is the subset of the transport a sweep uses. *mqtt.Client satisfies it.
type Bus interface {
	Subscribe(filter string, opts mqtt.SubscribeOptions, handler mqtt.MessageHandler) error
	Unsubscribe(filter string) error
	Retract(topic string) error
	Close() error
}

// Connector opens a transient bus connection for one sweep. It must not
// reuse the client id of the main connection.
type Connector func(ctx context.Context) (Bus, error)

// Logger defines the logging interface used by the Sweeper.
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

// Options configures a Sweeper.
type Options struct {
	// Window is how long retained messages are collected.
	Window time.Duration

	// NoLocal drops live echoes of the sweep connection's own publishes.
	NoLocal bool
}

// Sweeper retracts stale retained topics.
type Sweeper struct {
	connect Connector
	topics  hass.Topics
	opts    Options
	clock   clock.Clock
	logger  Logger
}

// NewSweeper creates a Sweeper. A non-positive window uses DefaultWindow.
func NewSweeper(connect Connector, topics hass.Topics, opts Options) *Sweeper {
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Sweeper{
		connect: connect,
		topics:  topics,
		opts:    opts,
		clock:   clock.New(),
		logger:  noopLogger{},
	}
}

// SetLogger sets the logger for the sweeper.
func (s *Sweeper) SetLogger(logger Logger) {
	s.logger = logger
}

// SetClock replaces the clock, for tests.
func (s *Sweeper) SetClock(c clock.Clock) {
	s.clock = c
}

// Sweep retracts every retained config and state topic of sourceType whose
// payload was not published in session.
//
// Sweep blocks for the configured window. If ctx ends first nothing is
// retracted.
//
// Parameters:
//   - ctx: Context for cancellation
//   - sourceType: Provider whose topics are swept, e.g. "docker"
//   - session: Session of the scan that just finished publishing
//
// Returns:
//   - []string: Retracted topics, sorted
//   - error: ErrConnect or ErrSubscribe, or ctx.Err() if cancelled
func (s *Sweeper) Sweep(ctx context.Context, sourceType, session string) ([]string, error) {
	bus, err := s.connect(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	defer func() {
		if err := bus.Close(); err != nil {
			s.logger.Debug("closing sweep connection", "error", err)
		}
	}()

	c := &collector{
		session:      session,
		objectPrefix: s.topics.ObjectPrefix(sourceType),
		topics:       s.topics,
		logger:       s.logger,
		stale:        make(map[string]struct{}),
	}

	filters := []string{s.topics.ConfigFilter(), s.topics.StateFilter(sourceType)}
	subOpts := mqtt.SubscribeOptions{NoLocal: s.opts.NoLocal}

	timer := s.clock.Timer(s.opts.Window)
	defer timer.Stop()

	var subscribed []string
	defer func() {
		for _, f := range subscribed {
			if err := bus.Unsubscribe(f); err != nil {
				s.logger.Warn("sweep unsubscribe failed", "filter", f, "error", err)
			}
		}
	}()

	for _, f := range filters {
		if err := bus.Subscribe(f, subOpts, c.handle); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrSubscribe, f, err)
		}
		subscribed = append(subscribed, f)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
	}

	for _, f := range subscribed {
		if err := bus.Unsubscribe(f); err != nil {
			s.logger.Warn("sweep unsubscribe failed", "filter", f, "error", err)
		}
	}
	subscribed = nil

	stale := c.topicsToRetract()
	var retracted []string
	for _, topic := range stale {
		if err := bus.Retract(topic); err != nil {
			s.logger.Warn("retracting stale topic failed", "topic", topic, "error", err)
			continue
		}
		retracted = append(retracted, topic)
	}

	s.logger.Info("sweep complete",
		"source_type", sourceType,
		"session", session,
		"retracted", len(retracted),
	)
	return retracted, nil
}

// collector gathers stale topics from retained deliveries.
type collector struct {
	session      string
	objectPrefix string
	topics       hass.Topics
	logger       Logger

	mu    sync.Mutex
	stale map[string]struct{}
}

func (c *collector) handle(msg mqtt.Message) error {
	if !msg.Retained || len(msg.Payload) == 0 {
		return nil
	}

	// The config filter spans every node and provider.
	if id := c.topics.ConfigObjectID(msg.Topic); id != "" && !strings.HasPrefix(id, c.objectPrefix) {
		return nil
	}

	if !gjson.ValidBytes(msg.Payload) {
		c.logger.Warn("skipping malformed retained payload", "topic", msg.Topic)
		return nil
	}
	if gjson.GetBytes(msg.Payload, "source_session").String() == c.session {
		return nil
	}

	c.logger.Debug("stale retained topic", "topic", msg.Topic)
	c.mu.Lock()
	c.stale[msg.Topic] = struct{}{}
	c.mu.Unlock()
	return nil
}

func (c *collector) topicsToRetract() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.stale))
	for topic := range c.stale {
		out = append(out, topic)
	}
	slices.Sort(out)
	return out
}
