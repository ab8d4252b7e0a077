package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// outputBufferSize bounds the tail of output kept in Result.Output.
const outputBufferSize = 4096

// waitDelay is how long Run waits for output pipes after the process is killed.
const waitDelay = 5 * time.Second

// Command describes a single subprocess invocation.
type Command struct {
	// Name is a human-readable identifier for logging.
	Name string

	// Binary is the executable, resolved through PATH when not absolute.
	Binary string

	// Args are command-line arguments to pass to the binary.
	Args []string

	// Env are additional environment variables (key=value format) appended
	// to the parent environment.
	Env []string

	// WorkDir is the working directory for the process.
	// If empty, inherits from parent process.
	WorkDir string

	// Timeout kills the process group when exceeded. Zero means no limit
	// beyond the caller's context.
	Timeout time.Duration
}

// Result describes a command that ran to completion.
type Result struct {
	ExitCode int
	Duration time.Duration

	// Output is the tail of combined stdout and stderr.
	Output string
}

// Success reports whether the command exited zero.
func (r Result) Success() bool {
	return r.ExitCode == 0
}

// Logger defines the logging interface for the runner.
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

// Runner executes commands. It is safe for concurrent use.
type Runner struct {
	logger Logger
}

// NewRunner creates a Runner that discards logs until SetLogger is called.
func NewRunner() *Runner {
	return &Runner{logger: noopLogger{}}
}

// SetLogger sets the logger for the runner.
func (r *Runner) SetLogger(logger Logger) {
	r.logger = logger
}

// Run executes c and waits for it to finish.
//
// A non-zero exit is reported through Result.ExitCode with a nil error. An
// error is returned when the binary cannot be started, when the timeout
// expires, or when ctx is cancelled.
func (r *Runner) Run(ctx context.Context, c Command) (Result, error) {
	if c.Binary == "" {
		return Result{}, fmt.Errorf("%w: %s: binary is empty", ErrInvalidCommand, c.Name)
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.Binary, c.Args...) //nolint:gosec // binaries come from operator config or are fixed

	// Own process group so a timeout kills children too.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	if c.Env != nil {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	if c.WorkDir != "" {
		cmd.Dir = c.WorkDir
	}

	tail := &tailBuffer{limit: outputBufferSize}
	cmd.Stdout = &outputWriter{logger: r.logger, name: c.Name, stream: "stdout", tail: tail}
	cmd.Stderr = &outputWriter{logger: r.logger, name: c.Name, stream: "stderr", tail: tail}

	r.logger.Info("running command",
		"name", c.Name,
		"binary", c.Binary,
		"args", c.Args,
		"dir", c.WorkDir,
	)

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Duration: time.Since(start),
		Output:   strings.TrimSpace(tail.String()),
	}

	if err == nil {
		r.logger.Info("command finished", "name", c.Name, "duration", res.Duration)
		return res, nil
	}

	// A killed process also reports an ExitError, so check the context first.
	if ctxErr := ctx.Err(); ctxErr != nil {
		res.ExitCode = -1
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			r.logger.Warn("command timed out", "name", c.Name, "timeout", c.Timeout)
			return res, fmt.Errorf("%w: %s after %v", ErrTimeout, c.Name, c.Timeout)
		}
		return res, fmt.Errorf("running %s: %w", c.Name, ctxErr)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		r.logger.Warn("command failed",
			"name", c.Name,
			"exit_code", res.ExitCode,
			"output", res.Output,
		)
		return res, nil
	}

	r.logger.Error("command could not start", "name", c.Name, "error", err)
	return res, fmt.Errorf("%w: %s: %w", ErrStart, c.Name, err)
}

// outputWriter logs each chunk written by the subprocess and keeps a tail.
type outputWriter struct {
	logger Logger
	name   string
	stream string
	tail   *tailBuffer
}

func (w *outputWriter) Write(p []byte) (int, error) {
	w.logger.Debug("process output",
		"name", w.name,
		"stream", w.stream,
		"output", string(p),
	)
	w.tail.Write(p)
	return len(p), nil
}

// tailBuffer keeps the last limit bytes written to it.
// stdout and stderr are copied by separate goroutines, hence the lock.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
