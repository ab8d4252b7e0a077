package docker

import "errors"

var (
	// ErrNotFound is returned when a container or image does not exist.
	ErrNotFound = errors.New("docker: not found")

	// ErrNoImage is returned when a container's image cannot be inspected.
	ErrNoImage = errors.New("docker: image unavailable")

	// ErrNoComposePath is returned when a compose action is needed but the
	// container was not created by compose.
	ErrNoComposePath = errors.New("docker: container has no compose working directory")
)
