package lifecycle

import "errors"

var (
	// ErrConnect is returned when the sweep connection cannot be opened.
	ErrConnect = errors.New("lifecycle: sweep connection failed")

	// ErrSubscribe is returned when a sweep subscription fails.
	ErrSubscribe = errors.New("lifecycle: sweep subscription failed")
)
