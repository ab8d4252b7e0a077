package policy

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"

	"github.com/nerrad567/release2mqtt/internal/dispatch"
	"github.com/nerrad567/release2mqtt/internal/release"
)

type recordingDispatcher struct {
	commands []dispatch.Command
	err      error
}

func (r *recordingDispatcher) Dispatch(_ context.Context, cmd dispatch.Command) error {
	r.commands = append(r.commands, cmd)
	return r.err
}

func autoUnit(name string, lastAttempt *time.Time) *release.Discovery {
	return &release.Discovery{
		Name:              name,
		SourceType:        "docker",
		CurrentVersion:    "abc123",
		LatestVersion:     "def456",
		CanUpdate:         true,
		UpdatePolicy:      release.PolicyAuto,
		UpdateLastAttempt: lastAttempt,
	}
}

func newTestEngine(d Dispatcher) (*Engine, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	e := New(d, 4*time.Hour)
	e.SetClock(mock)
	return e, mock
}

func TestDue(t *testing.T) {
	e, mock := newTestEngine(&recordingDispatcher{})
	now := mock.Now()
	fiveHoursAgo := now.Add(-5 * time.Hour)
	oneHourAgo := now.Add(-1 * time.Hour)

	passive := autoUnit("passive", nil)
	passive.UpdatePolicy = release.PolicyPassive
	current := autoUnit("current", nil)
	current.LatestVersion = current.CurrentVersion

	tests := []struct {
		name string
		d    *release.Discovery
		want bool
	}{
		{"never attempted", autoUnit("a", nil), true},
		{"attempted five hours ago", autoUnit("b", &fiveHoursAgo), true},
		{"attempted one hour ago", autoUnit("c", &oneHourAgo), false},
		{"passive policy", passive, false},
		{"already current", current, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Due(tt.d); got != tt.want {
				t.Errorf("Due() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestApply_DispatchesDueUnits(t *testing.T) {
	rec := &recordingDispatcher{}
	e, mock := newTestEngine(rec)
	recent := mock.Now().Add(-time.Hour)
	stale := mock.Now().Add(-5 * time.Hour)

	passive := autoUnit("passive", nil)
	passive.UpdatePolicy = release.PolicyPassive

	n := e.Apply(context.Background(), []*release.Discovery{
		autoUnit("stale", &stale),
		autoUnit("recent", &recent),
		passive,
		autoUnit("fresh", nil),
	})

	assert.Equal(t, 2, n)
	assert.Equal(t, []dispatch.Command{
		{SourceType: "docker", Name: "stale", Command: "install", Source: dispatch.SourceAuto},
		{SourceType: "docker", Name: "fresh", Command: "install", Source: dispatch.SourceAuto},
	}, rec.commands)
}

func TestApply_ContinuesAfterFailure(t *testing.T) {
	rec := &recordingDispatcher{err: errors.Join(dispatch.ErrUpdateFailed)}
	e, _ := newTestEngine(rec)

	n := e.Apply(context.Background(), []*release.Discovery{autoUnit("a", nil), autoUnit("b", nil)})

	assert.Equal(t, 2, n)
	assert.Len(t, rec.commands, 2)
}

func TestApply_StopsOnCancel(t *testing.T) {
	rec := &recordingDispatcher{}
	e, _ := newTestEngine(rec)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	n := e.Apply(ctx, []*release.Discovery{autoUnit("a", nil)})

	assert.Zero(t, n)
	assert.Empty(t, rec.commands)
}

func TestNew_DefaultInterval(t *testing.T) {
	e := New(&recordingDispatcher{}, 0)
	if e.interval != DefaultInterval {
		t.Errorf("interval = %v, want %v", e.interval, DefaultInterval)
	}
}

func TestApply_InstallsStaleUnitWithoutNewerVersion(t *testing.T) {
	rec := &recordingDispatcher{}
	e, mock := newTestEngine(rec)
	stale := mock.Now().Add(-5 * time.Hour)
	d := autoUnit("web", &stale)
	d.LatestVersion = d.CurrentVersion

	n := e.Apply(context.Background(), []*release.Discovery{d})

	assert.Equal(t, 1, n)
	assert.Equal(t, []dispatch.Command{
		{SourceType: "docker", Name: "web", Command: "install", Source: dispatch.SourceAuto},
	}, rec.commands)
}
