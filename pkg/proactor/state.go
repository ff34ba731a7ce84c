package proactor

// State is the lifecycle position of a dispatched connection.
type State int

const (
	StateRegistered State = iota
	StateClaimed
	StateInCallback
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateRegistered:
		return "registered"
	case StateClaimed:
		return "claimed"
	case StateInCallback:
		return "in_callback"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// TransitionHook observes lifecycle transitions. It is called from the
// registering goroutine for StateRegistered and from the worker for the
// rest, so implementations must be safe for concurrent use and fast.
type TransitionHook func(id HandleID, s State)
