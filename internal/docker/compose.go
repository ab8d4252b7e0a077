package docker

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/release2mqtt/internal/process"
)

// Runner executes a subprocess. *process.Runner satisfies it.
type Runner interface {
	Run(ctx context.Context, c process.Command) (process.Result, error)
}

// Compose runs docker compose through a process.Runner.
type Compose struct {
	runner  Runner
	command []string
	timeout time.Duration
}

// NewCompose creates a Compose.
//
// Parameters:
//   - runner: Executes the compose subprocess
//   - command: The compose invocation, e.g. ["docker", "compose"] or ["docker-compose"]
//   - timeout: Upper bound for a single build or up
func NewCompose(runner Runner, command []string, timeout time.Duration) *Compose {
	return &Compose{runner: runner, command: command, timeout: timeout}
}

// Build runs "compose build" in dir.
func (c *Compose) Build(ctx context.Context, dir string) (bool, error) {
	return c.run(ctx, "compose-build", dir, "build")
}

// Up runs "compose up --detach" in dir, recreating changed containers.
func (c *Compose) Up(ctx context.Context, dir string) (bool, error) {
	return c.run(ctx, "compose-up", dir, "up", "--detach")
}

func (c *Compose) run(ctx context.Context, name, dir string, args ...string) (bool, error) {
	if dir == "" {
		return false, ErrNoComposePath
	}
	if len(c.command) == 0 {
		return false, fmt.Errorf("%w: compose command is empty", process.ErrInvalidCommand)
	}

	full := append(append([]string{}, c.command[1:]...), args...)
	res, err := c.runner.Run(ctx, process.Command{
		Name:    name,
		Binary:  c.command[0],
		Args:    full,
		WorkDir: dir,
		Timeout: c.timeout,
	})
	if err != nil {
		return false, fmt.Errorf("%s in %s: %w", name, dir, err)
	}
	return res.Success(), nil
}
