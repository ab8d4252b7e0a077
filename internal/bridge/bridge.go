package bridge

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/release2mqtt/internal/hass"
	"github.com/nerrad567/release2mqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/release2mqtt/internal/release"
)

// Defaults used when Options leave a field zero.
const (
	DefaultInterval           = 3 * time.Hour
	DefaultPublishConcurrency = 4
	DefaultQueueSize          = 32
)

// Bus receives install commands. *mqtt.Client satisfies it.
type Bus interface {
	Subscribe(filter string, opts mqtt.SubscribeOptions, handler mqtt.MessageHandler) error
	Unsubscribe(filter string) error
}

// Publisher publishes discoveries. *hass.Publisher satisfies it.
type Publisher interface {
	Publish(ext hass.Extender, d *release.Discovery, progress hass.Progress) error
}

// Dispatcher executes an inbound command payload. *dispatch.Dispatcher
// satisfies it.
type Dispatcher interface {
	HandleMessage(ctx context.Context, payload []byte) error
}

// Policy installs due auto-update units. *policy.Engine satisfies it.
type Policy interface {
	Apply(ctx context.Context, discoveries []*release.Discovery) int
}

// Sweeper retracts topics left behind by earlier sessions.
// *lifecycle.Sweeper satisfies it.
type Sweeper interface {
	Sweep(ctx context.Context, sourceType, session string) ([]string, error)
}

// Recorder receives every discovery a scan produces.
// *influxdb.Client satisfies it.
type Recorder interface {
	WriteDiscovery(d *release.Discovery)
}

// Logger defines the logging interface used by the Bridge.
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

// Options configures a Bridge.
type Options struct {
	// Interval between scan cycles.
	Interval time.Duration

	// PublishConcurrency bounds concurrent publishes within one scan.
	PublishConcurrency int

	// QueueSize bounds commands waiting for the run loop.
	QueueSize int
}

// Deps are the collaborators of a Bridge. Policy, Sweeper and Recorder are
// optional.
type Deps struct {
	Providers  []release.Provider
	Bus        Bus
	Topics     hass.Topics
	Publisher  Publisher
	Dispatcher Dispatcher
	Policy     Policy
	Sweeper    Sweeper
	Recorder   Recorder
}

// Bridge runs scan cycles and executes commands.
type Bridge struct {
	deps     Deps
	opts     Options
	commands chan []byte
	dropped  atomic.Int64

	clock      clock.Clock
	logger     Logger
	newSession func() string
}

// New creates a Bridge.
func New(deps Deps, opts Options) *Bridge {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.PublishConcurrency <= 0 {
		opts.PublishConcurrency = DefaultPublishConcurrency
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	return &Bridge{
		deps:       deps,
		opts:       opts,
		commands:   make(chan []byte, opts.QueueSize),
		clock:      clock.New(),
		logger:     noopLogger{},
		newSession: release.NewSession,
	}
}

// SetLogger sets the logger for the bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.logger = logger
}

// SetClock replaces the clock, for tests.
func (b *Bridge) SetClock(c clock.Clock) {
	b.clock = c
}

// Dropped returns the number of commands dropped on a full queue.
func (b *Bridge) Dropped() int64 {
	return b.dropped.Load()
}

// Run subscribes to the command topics, then scans and executes commands
// until ctx is cancelled.
//
// Parameters:
//   - ctx: Context for shutdown; cancelling it stops the loop
//
// Returns:
//   - error: nil on clean shutdown, or the subscription failure
func (b *Bridge) Run(ctx context.Context) error {
	filters, err := b.subscribe()
	defer b.unsubscribe(filters)
	if err != nil {
		return err
	}

	b.logger.Info("bridge running",
		"providers", len(b.deps.Providers),
		"interval", b.opts.Interval,
	)

	b.Cycle(ctx)

	ticker := b.clock.Ticker(b.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("bridge stopping")
			return nil
		case <-ticker.C:
			b.Cycle(ctx)
		case payload := <-b.commands:
			if err := b.deps.Dispatcher.HandleMessage(ctx, payload); err != nil {
				b.logger.Debug("command finished with error", "error", err)
			}
		}
	}
}

// subscribe registers the command handler of every provider and returns the
// filters subscribed so far.
func (b *Bridge) subscribe() ([]string, error) {
	var filters []string
	for _, p := range b.deps.Providers {
		topic := b.deps.Topics.Command(p.SourceType())
		if err := b.deps.Bus.Subscribe(topic, mqtt.SubscribeOptions{NoLocal: true}, b.enqueue); err != nil {
			return filters, fmt.Errorf("subscribing to %s: %w", topic, err)
		}
		filters = append(filters, topic)
		b.logger.Info("listening for commands", "topic", topic)
	}
	return filters, nil
}

func (b *Bridge) unsubscribe(filters []string) {
	for _, f := range filters {
		if err := b.deps.Bus.Unsubscribe(f); err != nil {
			b.logger.Debug("unsubscribing from command topic", "topic", f, "error", err)
		}
	}
}

// enqueue runs on a bus goroutine. It copies the payload and never blocks.
func (b *Bridge) enqueue(msg mqtt.Message) error {
	if msg.Retained {
		// A retained command would replay on every reconnect.
		b.logger.Warn("ignoring retained command", "topic", msg.Topic)
		return nil
	}
	payload := append([]byte(nil), msg.Payload...)
	select {
	case b.commands <- payload:
	default:
		b.dropped.Add(1)
		b.logger.Warn("command queue full, dropping command",
			"topic", msg.Topic,
			"queue_size", b.opts.QueueSize,
		)
	}
	return nil
}

// Cycle runs one scan cycle for every provider.
func (b *Bridge) Cycle(ctx context.Context) {
	for _, p := range b.deps.Providers {
		if ctx.Err() != nil {
			return
		}
		b.scanProvider(ctx, p)
	}
}

func (b *Bridge) scanProvider(ctx context.Context, p release.Provider) {
	session := b.newSession()
	started := b.clock.Now()
	log := b.logger

	var g errgroup.Group
	g.SetLimit(b.opts.PublishConcurrency)

	var discoveries []*release.Discovery
	var failed atomic.Int64
	for d := range p.Scan(ctx, session) {
		discoveries = append(discoveries, d)
		g.Go(func() error {
			if err := b.deps.Publisher.Publish(p, d, hass.ProgressNone); err != nil {
				failed.Add(1)
				log.Warn("publishing discovery failed", "name", d.Name, "error", err)
				return err
			}
			if b.deps.Recorder != nil {
				b.deps.Recorder.WriteDiscovery(d)
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info("scan complete",
		"source_type", p.SourceType(),
		"session", session,
		"units", len(discoveries),
		"publish_failures", failed.Load(),
		"duration", b.clock.Since(started),
	)

	if b.deps.Policy != nil {
		if n := b.deps.Policy.Apply(ctx, discoveries); n > 0 {
			log.Info("auto updates attempted", "source_type", p.SourceType(), "count", n)
		}
	}

	if b.deps.Sweeper != nil && ctx.Err() == nil {
		if _, err := b.deps.Sweeper.Sweep(ctx, p.SourceType(), session); err != nil {
			log.Warn("sweep failed", "source_type", p.SourceType(), "error", err)
		}
	}
}
