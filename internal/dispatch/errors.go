package dispatch

import "errors"

var (
	// ErrMalformed is returned for commands that cannot be decoded or lack
	// required fields.
	ErrMalformed = errors.New("dispatch: malformed command")

	// ErrUnknownProvider is returned when no provider handles the source type.
	ErrUnknownProvider = errors.New("dispatch: unknown source type")

	// ErrUnknownCommand is returned for commands other than install.
	ErrUnknownCommand = errors.New("dispatch: unknown command")

	// ErrInProgress is returned when the unit already has an update in flight.
	ErrInProgress = errors.New("dispatch: update already in progress")

	// ErrRejected is returned when the provider declined the command, for
	// example for an unknown unit or one that cannot be updated.
	ErrRejected = errors.New("dispatch: command rejected by provider")

	// ErrUpdateFailed is returned when an accepted update did not complete.
	ErrUpdateFailed = errors.New("dispatch: update failed")

	// ErrInvalidTransition is returned by a state transition that does not
	// start from its expected state.
	ErrInvalidTransition = errors.New("dispatch: invalid state transition")
)
