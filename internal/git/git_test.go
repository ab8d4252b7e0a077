package git

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/release2mqtt/internal/process"
)

// fakeRunner records commands and replays scripted results.
type fakeRunner struct {
	calls  []process.Command
	result process.Result
	err    error
}

func (f *fakeRunner) Run(_ context.Context, c process.Command) (process.Result, error) {
	f.calls = append(f.calls, c)
	return f.result, f.err
}

func TestBehind(t *testing.T) {
	tests := []struct {
		name    string
		result  process.Result
		want    bool
		wantErr error
	}{
		{
			name:   "behind",
			result: process.Result{Output: "On branch main\nYour branch is behind 'origin/main' by 2 commits."},
			want:   true,
		},
		{
			name:   "up to date",
			result: process.Result{Output: "On branch main\nYour branch is up to date with 'origin/main'."},
			want:   false,
		},
		{
			name:    "not a repository",
			result:  process.Result{ExitCode: 128, Output: "fatal: not a git repository"},
			wantErr: ErrCommandFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{result: tt.result}
			c := New(runner, Options{StatusTimeout: time.Minute})

			got, err := c.Behind(context.Background(), "/srv/app")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			require.Len(t, runner.calls, 1)
			call := runner.calls[0]
			assert.Equal(t, "git", call.Binary)
			assert.Equal(t, []string{"-C", "/srv/app", "status", "-uno"}, call.Args)
			assert.Equal(t, time.Minute, call.Timeout)
			assert.Contains(t, call.Env, "LC_ALL=C")
		})
	}
}

func TestPull(t *testing.T) {
	runner := &fakeRunner{result: process.Result{ExitCode: 1}}
	c := New(runner, Options{})

	ok, err := c.Pull(context.Background(), "/srv/app")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, defaultPullTimeout, runner.calls[0].Timeout)

	runner.result = process.Result{}
	ok, err = c.Pull(context.Background(), "/srv/app")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPull_SpawnError(t *testing.T) {
	runner := &fakeRunner{err: process.ErrStart}
	c := New(runner, Options{})

	_, err := c.Pull(context.Background(), "/srv/app")
	assert.ErrorIs(t, err, process.ErrStart)
}

func TestTimestamp(t *testing.T) {
	runner := &fakeRunner{result: process.Result{Output: "2026-10-01T09:30:00+02:00"}}
	c := New(runner, Options{})

	ts, err := c.Timestamp(context.Background(), "/srv/app")
	require.NoError(t, err)
	assert.True(t, ts.Equal(time.Date(2026, 10, 1, 7, 30, 0, 0, time.UTC)))
	assert.Equal(t, []string{"-C", "/srv/app", "log", "-1", "--format=%cI", "--no-show-signature"}, runner.calls[0].Args)
}

func TestTimestamp_Garbage(t *testing.T) {
	runner := &fakeRunner{result: process.Result{Output: "not a date"}}
	c := New(runner, Options{})

	_, err := c.Timestamp(context.Background(), "/srv/app")
	assert.ErrorIs(t, err, ErrParse)
}

func TestTrust(t *testing.T) {
	runner := &fakeRunner{}
	c := New(runner, Options{Binary: "/usr/bin/git"})

	require.NoError(t, c.Trust(context.Background(), "/srv/app"))
	assert.Equal(t, "/usr/bin/git", runner.calls[0].Binary)
	assert.Equal(t, []string{"config", "--global", "--add", "safe.directory", "/srv/app"}, runner.calls[0].Args)

	runner.result = process.Result{ExitCode: 255}
	err := c.Trust(context.Background(), "/srv/app")
	assert.True(t, errors.Is(err, ErrCommandFailed))
}

func TestTimestamp_RealRepository(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}

	dir := t.TempDir()
	runner := process.NewRunner()
	ctx := context.Background()

	for _, args := range [][]string{
		{"init", "-q"},
		{"-c", "user.name=test", "-c", "user.email=test@example.com", "commit", "-q", "--allow-empty", "-m", "init"},
	} {
		res, err := runner.Run(ctx, process.Command{Name: "setup", Binary: "git", Args: append([]string{"-C", dir}, args...)})
		require.NoError(t, err)
		require.True(t, res.Success(), "git %v: %s", args, res.Output)
	}

	c := New(runner, Options{})
	ts, err := c.Timestamp(ctx, dir)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}
