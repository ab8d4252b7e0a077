package dispatch

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/release2mqtt/internal/hass"
	"github.com/nerrad567/release2mqtt/internal/release"
)

// fakeProvider follows the release.Provider callback contract with a
// scripted outcome.
type fakeProvider struct {
	units map[string]*release.Discovery

	// outcome is returned from Command after onStart. nil means failure.
	outcome *release.Discovery

	// gate, when set, blocks Command after onStart until closed.
	gate    chan struct{}
	started chan struct{}

	// hold, when set, blocks Command before onStart until closed. entered
	// is closed once Command is holding.
	hold    chan struct{}
	entered chan struct{}

	calls int
}

func newFakeProvider(units ...*release.Discovery) *fakeProvider {
	p := &fakeProvider{units: make(map[string]*release.Discovery)}
	for _, d := range units {
		p.units[d.Name] = d
	}
	return p
}

func (p *fakeProvider) SourceType() string { return "docker" }

func (p *fakeProvider) Scan(context.Context, string) iter.Seq[*release.Discovery] {
	return func(func(*release.Discovery) bool) {}
}

func (p *fakeProvider) Update(context.Context, *release.Discovery) (bool, error) {
	return true, nil
}

func (p *fakeProvider) Rescan(_ context.Context, d *release.Discovery) (*release.Discovery, error) {
	return d, nil
}

func (p *fakeProvider) Command(_ context.Context, name, command string, onStart, onEnd release.Callback) *release.Discovery {
	p.calls++
	d, ok := p.units[name]
	if !ok || command != release.CommandInstall || !d.CanUpdate {
		return nil
	}
	if p.hold != nil {
		close(p.entered)
		<-p.hold
	}
	onStart(d)
	if p.started != nil {
		close(p.started)
	}
	if p.gate != nil {
		<-p.gate
	}
	if p.outcome == nil {
		onEnd(d)
		return nil
	}
	return p.outcome
}

func (p *fakeProvider) FormatConfig(*release.Discovery) map[string]any { return map[string]any{} }
func (p *fakeProvider) FormatState(*release.Discovery) map[string]any  { return map[string]any{} }

type published struct {
	name     string
	config   bool
	progress hass.Progress
	current  string
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (r *recordingPublisher) Publish(_ hass.Extender, d *release.Discovery, progress hass.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{name: d.Name, config: true, progress: progress, current: d.CurrentVersion})
	return nil
}

func (r *recordingPublisher) PublishState(_ hass.Extender, d *release.Discovery, progress hass.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, published{name: d.Name, progress: progress, current: d.CurrentVersion})
	return nil
}

func (r *recordingPublisher) snapshot() []published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]published(nil), r.events...)
}

type recordingRecorder struct {
	outcomes []string
	sources  []string
}

func (r *recordingRecorder) RecordUpdate(_ *release.Discovery, outcome, source string) {
	r.outcomes = append(r.outcomes, outcome)
	r.sources = append(r.sources, source)
}

func webUnit() *release.Discovery {
	return &release.Discovery{
		Name:           "web",
		SourceType:     "docker",
		CurrentVersion: "abc123",
		LatestVersion:  "def456",
		CanUpdate:      true,
	}
}

func installWeb() Command {
	return Command{SourceType: "docker", Name: "web", Command: "install", Source: SourceBus}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    Command
		wantErr bool
	}{
		{
			name:    "install",
			payload: `{"source_type":"docker","name":"web","command":"install"}`,
			want:    Command{SourceType: "docker", Name: "web", Command: "install", Source: SourceBus},
		},
		{name: "not json", payload: `install`, wantErr: true},
		{name: "missing source type", payload: `{"name":"web","command":"install"}`, wantErr: true},
		{name: "missing name", payload: `{"source_type":"docker","command":"install"}`, wantErr: true},
		{name: "missing command", payload: `{"source_type":"docker","name":"web"}`, wantErr: true},
		{name: "empty", payload: ``, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode([]byte(tt.payload))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrMalformed)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDispatch_Updated(t *testing.T) {
	provider := newFakeProvider(webUnit())
	updated := webUnit()
	updated.CurrentVersion = "def456"
	provider.outcome = updated
	pub := &recordingPublisher{}
	rec := &recordingRecorder{}
	d := New(pub, provider)
	d.SetRecorder(rec)

	require.NoError(t, d.Dispatch(context.Background(), installWeb()))

	assert.Equal(t, []published{
		{name: "web", progress: hass.ProgressActive, current: "abc123"},
		{name: "web", config: true, progress: hass.ProgressDone, current: "def456"},
	}, pub.snapshot())
	assert.Equal(t, StateIdle, d.State("docker", "web"))
	assert.Equal(t, []string{OutcomeUpdated}, rec.outcomes)
	assert.Equal(t, []string{SourceBus}, rec.sources)
}

func TestDispatch_Failed(t *testing.T) {
	provider := newFakeProvider(webUnit())
	pub := &recordingPublisher{}
	rec := &recordingRecorder{}
	d := New(pub, provider)
	d.SetRecorder(rec)

	err := d.Dispatch(context.Background(), installWeb())

	assert.ErrorIs(t, err, ErrUpdateFailed)
	assert.Equal(t, []published{
		{name: "web", progress: hass.ProgressActive, current: "abc123"},
		{name: "web", progress: hass.ProgressDone, current: "abc123"},
	}, pub.snapshot())
	assert.Equal(t, StateIdle, d.State("docker", "web"))
	assert.Equal(t, []string{OutcomeFailed}, rec.outcomes)
}

func TestDispatch_Rejections(t *testing.T) {
	noUpdate := webUnit()
	noUpdate.CanUpdate = false

	tests := []struct {
		name    string
		cmd     Command
		wantErr error
		calls   int
	}{
		{
			name:    "missing name",
			cmd:     Command{SourceType: "docker", Command: "install"},
			wantErr: ErrMalformed,
		},
		{
			name:    "unknown source type",
			cmd:     Command{SourceType: "snap", Name: "web", Command: "install"},
			wantErr: ErrUnknownProvider,
		},
		{
			name:    "unknown command",
			cmd:     Command{SourceType: "docker", Name: "web", Command: "remove"},
			wantErr: ErrUnknownCommand,
		},
		{
			name:    "unknown unit",
			cmd:     Command{SourceType: "docker", Name: "db", Command: "install"},
			wantErr: ErrRejected,
			calls:   1,
		},
		{
			name:    "cannot update",
			cmd:     installWeb(),
			wantErr: ErrRejected,
			calls:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := newFakeProvider(noUpdate)
			pub := &recordingPublisher{}
			d := New(pub, provider)

			err := d.Dispatch(context.Background(), tt.cmd)

			assert.ErrorIs(t, err, tt.wantErr)
			assert.Empty(t, pub.snapshot())
			assert.Equal(t, tt.calls, provider.calls)
		})
	}
}

func TestDispatch_RejectsWhileInProgress(t *testing.T) {
	provider := newFakeProvider(webUnit())
	provider.outcome = webUnit()
	provider.gate = make(chan struct{})
	provider.started = make(chan struct{})
	pub := &recordingPublisher{}
	d := New(pub, provider)

	done := make(chan error, 1)
	go func() {
		done <- d.Dispatch(context.Background(), installWeb())
	}()

	select {
	case <-provider.started:
	case <-time.After(time.Second):
		t.Fatal("first update did not start")
	}
	assert.Equal(t, StateInProgress, d.State("docker", "web"))

	err := d.Dispatch(context.Background(), installWeb())
	assert.ErrorIs(t, err, ErrInProgress)

	close(provider.gate)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("first update did not finish")
	}
	assert.Equal(t, 1, provider.calls)
	assert.Equal(t, StateIdle, d.State("docker", "web"))
}

func TestDispatch_RejectsBeforeProviderStarts(t *testing.T) {
	provider := newFakeProvider(webUnit())
	provider.outcome = webUnit()
	provider.hold = make(chan struct{})
	provider.entered = make(chan struct{})
	pub := &recordingPublisher{}
	d := New(pub, provider)

	done := make(chan error, 1)
	go func() {
		done <- d.Dispatch(context.Background(), installWeb())
	}()

	select {
	case <-provider.entered:
	case <-time.After(time.Second):
		t.Fatal("first command did not reach the provider")
	}
	assert.Equal(t, StateInProgress, d.State("docker", "web"))

	second := make(chan error, 1)
	go func() {
		second <- d.Dispatch(context.Background(), installWeb())
	}()
	select {
	case err := <-second:
		assert.ErrorIs(t, err, ErrInProgress)
	case <-time.After(time.Second):
		t.Fatal("second command waited instead of being rejected")
	}

	close(provider.hold)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("first update did not finish")
	}
	assert.Equal(t, 1, provider.calls)
	assert.Len(t, pub.snapshot(), 2)
	assert.Equal(t, StateIdle, d.State("docker", "web"))
}

func TestDispatch_ProviderRejectionReturnsToIdle(t *testing.T) {
	noUpdate := webUnit()
	noUpdate.CanUpdate = false
	provider := newFakeProvider(noUpdate)
	d := New(&recordingPublisher{}, provider)

	require.ErrorIs(t, d.Dispatch(context.Background(), installWeb()), ErrRejected)
	assert.Equal(t, StateIdle, d.State("docker", "web"))

	// A later command is not blocked by the rejected one.
	provider.units["web"] = webUnit()
	provider.outcome = webUnit()
	assert.NoError(t, d.Dispatch(context.Background(), installWeb()))
}

func TestHandleMessage(t *testing.T) {
	provider := newFakeProvider(webUnit())
	provider.outcome = webUnit()
	d := New(&recordingPublisher{}, provider)

	assert.NoError(t, d.HandleMessage(context.Background(), []byte(`{"source_type":"docker","name":"web","command":"install"}`)))
	assert.ErrorIs(t, d.HandleMessage(context.Background(), []byte(`{"name":"web"}`)), ErrMalformed)
}

func TestTransition_RejectsWrongStart(t *testing.T) {
	d := New(&recordingPublisher{})

	err := d.transition("docker/web", StateInProgress, StateUpdated)

	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "in_progress", StateInProgress.String())
	assert.Equal(t, "updated", StateUpdated.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
}
