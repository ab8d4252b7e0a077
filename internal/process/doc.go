// Package process runs one-shot subprocesses such as docker compose and git.
//
// Each command runs in its own process group with an explicit timeout. When
// the timeout fires the whole group is killed, so helpers spawned by the
// command (compose plugins, git credential helpers) do not linger.
//
// Run separates the two ways a command can fail:
//   - it ran and exited non-zero: Result.ExitCode is set and the error is nil
//   - it could not run or did not finish: the error is non-nil
//
// Output from stdout and stderr is logged at debug level as it arrives, and
// the tail of the combined output is kept in Result.Output for error reports.
//
// Example usage:
//
//	runner := process.NewRunner()
//	runner.SetLogger(logger)
//
//	res, err := runner.Run(ctx, process.Command{
//	    Name:    "compose-up",
//	    Binary:  "docker",
//	    Args:    []string{"compose", "up", "--detach"},
//	    WorkDir: "/srv/web",
//	    Timeout: 10 * time.Minute,
//	})
//	if err != nil {
//	    return err
//	}
//	if !res.Success() {
//	    log.Printf("compose exited %d: %s", res.ExitCode, res.Output)
//	}
package process
