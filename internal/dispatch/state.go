package dispatch

// State is a unit's position in the update state machine.
type State int

const (
	StateIdle State = iota
	StateInProgress
	StateUpdated
	StateFailed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateInProgress:
		return "in_progress"
	case StateUpdated:
		return "updated"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
