package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/release2mqtt/internal/hass"
	"github.com/nerrad567/release2mqtt/internal/infrastructure/mqtt"
)

// fakeBus replays retained messages to matching subscriptions, the way a
// broker does on subscribe.
type fakeBus struct {
	mu           sync.Mutex
	retained     []mqtt.Message
	subscribed   []string
	unsubscribed []string
	retracted    []string
	opts         []mqtt.SubscribeOptions
	closed       bool
	subscribeErr error

	// ready is closed once every expected subscription is in place.
	ready  chan struct{}
	expect int
}

func newFakeBus(msgs ...mqtt.Message) *fakeBus {
	return &fakeBus{retained: msgs, ready: make(chan struct{}), expect: 2}
}

func (b *fakeBus) Subscribe(filter string, opts mqtt.SubscribeOptions, handler mqtt.MessageHandler) error {
	if b.subscribeErr != nil {
		return b.subscribeErr
	}
	b.mu.Lock()
	b.subscribed = append(b.subscribed, filter)
	b.opts = append(b.opts, opts)
	var deliver []mqtt.Message
	for _, m := range b.retained {
		if mqtt.Match(filter, m.Topic) {
			deliver = append(deliver, m)
		}
	}
	done := len(b.subscribed) == b.expect
	b.mu.Unlock()

	for _, m := range deliver {
		_ = handler(m)
	}
	if done {
		close(b.ready)
	}
	return nil
}

func (b *fakeBus) Unsubscribe(filter string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.unsubscribed = append(b.unsubscribed, filter)
	return nil
}

func (b *fakeBus) Retract(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.retracted = append(b.retracted, topic)
	return nil
}

func (b *fakeBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func retained(topic, payload string) mqtt.Message {
	return mqtt.Message{Topic: topic, Payload: []byte(payload), Retained: true}
}

func testTopics() hass.Topics {
	return hass.NewTopics("homeassistant", "release2mqtt", "nas01")
}

type sweepResult struct {
	topics []string
	err    error
}

// runSweep starts a sweep and fires its window once the bus is subscribed.
func runSweep(t *testing.T, bus *fakeBus, session string) ([]string, error) {
	t.Helper()
	mock := clock.NewMock()
	s := NewSweeper(func(context.Context) (Bus, error) { return bus, nil }, testTopics(), Options{Window: 20 * time.Second, NoLocal: true})
	s.SetClock(mock)

	done := make(chan sweepResult, 1)
	go func() {
		topics, err := s.Sweep(context.Background(), "docker", session)
		done <- sweepResult{topics, err}
	}()

	select {
	case <-bus.ready:
	case <-time.After(time.Second):
		t.Fatal("sweep did not subscribe")
	}
	mock.Add(20 * time.Second)

	select {
	case res := <-done:
		return res.topics, res.err
	case <-time.After(time.Second):
		t.Fatal("sweep did not finish")
	}
	return nil, nil
}

func TestSweep_RetractsStaleTopics(t *testing.T) {
	bus := newFakeBus(
		retained("homeassistant/update/nas01_docker_web/update/config", `{"source_session":"current"}`),
		retained("release2mqtt/nas01/docker/web", `{"source_session":"current"}`),
		retained("homeassistant/update/nas01_docker_old/update/config", `{"source_session":"previous"}`),
		retained("release2mqtt/nas01/docker/old", `{"source_session":"previous"}`),
		retained("release2mqtt/nas01/docker/legacy", `{"state":"off"}`),
	)

	got, err := runSweep(t, bus, "current")

	require.NoError(t, err)
	assert.Equal(t, []string{
		"homeassistant/update/nas01_docker_old/update/config",
		"release2mqtt/nas01/docker/legacy",
		"release2mqtt/nas01/docker/old",
	}, got)
	assert.Equal(t, got, bus.retracted)
	assert.True(t, bus.closed)
	assert.ElementsMatch(t, []string{
		"homeassistant/update/+/update/config",
		"release2mqtt/nas01/docker/+",
	}, bus.unsubscribed)
	for _, o := range bus.opts {
		assert.True(t, o.NoLocal)
	}
}

func TestSweep_LeavesOtherMessagesAlone(t *testing.T) {
	bus := newFakeBus(
		// other node and other provider under the shared config filter
		retained("homeassistant/update/nas02_docker_web/update/config", `{"source_session":"previous"}`),
		retained("homeassistant/update/nas01_snap_web/update/config", `{"source_session":"previous"}`),
		// live, not retained
		mqtt.Message{Topic: "release2mqtt/nas01/docker/live", Payload: []byte(`{"source_session":"previous"}`)},
		// already retracted
		retained("release2mqtt/nas01/docker/gone", ""),
		// malformed
		retained("release2mqtt/nas01/docker/bad", `{not json`),
	)

	got, err := runSweep(t, bus, "current")

	require.NoError(t, err)
	assert.Empty(t, got)
	assert.Empty(t, bus.retracted)
}

func TestSweep_ConnectFailure(t *testing.T) {
	s := NewSweeper(func(context.Context) (Bus, error) {
		return nil, errors.New("refused")
	}, testTopics(), Options{})

	_, err := s.Sweep(context.Background(), "docker", "current")

	assert.ErrorIs(t, err, ErrConnect)
}

func TestSweep_SubscribeFailure(t *testing.T) {
	bus := newFakeBus()
	bus.subscribeErr = mqtt.ErrNotConnected
	s := NewSweeper(func(context.Context) (Bus, error) { return bus, nil }, testTopics(), Options{})

	_, err := s.Sweep(context.Background(), "docker", "current")

	assert.ErrorIs(t, err, ErrSubscribe)
	assert.ErrorIs(t, err, mqtt.ErrNotConnected)
	assert.True(t, bus.closed)
}

func TestSweep_CancelledRetractsNothing(t *testing.T) {
	bus := newFakeBus(retained("release2mqtt/nas01/docker/old", `{"source_session":"previous"}`))
	s := NewSweeper(func(context.Context) (Bus, error) { return bus, nil }, testTopics(), Options{})
	s.SetClock(clock.NewMock())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := s.Sweep(ctx, "docker", "current")
		done <- err
	}()
	<-bus.ready
	cancel()

	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, bus.retracted)
	assert.Len(t, bus.unsubscribed, 2)
}

func TestNewSweeper_DefaultWindow(t *testing.T) {
	s := NewSweeper(nil, testTopics(), Options{})
	if s.opts.Window != DefaultWindow {
		t.Errorf("Window = %v, want %v", s.opts.Window, DefaultWindow)
	}
}
