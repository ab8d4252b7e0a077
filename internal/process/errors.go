package process

import "errors"

var (
	// ErrStart is returned when the binary cannot be spawned.
	ErrStart = errors.New("process: failed to start")

	// ErrTimeout is returned when a command exceeds its timeout and is killed.
	ErrTimeout = errors.New("process: timed out")

	// ErrInvalidCommand is returned for a Command without a binary.
	ErrInvalidCommand = errors.New("process: invalid command")
)
