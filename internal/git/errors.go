package git

import "errors"

var (
	// ErrCommandFailed is returned when git exits non-zero where success is required.
	ErrCommandFailed = errors.New("git: command failed")

	// ErrParse is returned when git output cannot be interpreted.
	ErrParse = errors.New("git: unexpected output")
)
