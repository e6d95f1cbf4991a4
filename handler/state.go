package handler

// State is the lifecycle state of one handler instance as tracked by its
// container.
type State int32

const (
	Uninitialized State = iota
	Initialized
	InService
	// Destroying means destroy has begun: no new Service call is admitted
	// while in-flight calls drain.
	Destroying
	Destroyed
	// Failed means Init returned an error or timed out. The instance is
	// discarded without being destroyed.
	Failed
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initialized:
		return "initialized"
	case InService:
		return "in_service"
	case Destroying:
		return "destroying"
	case Destroyed:
		return "destroyed"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// CanTransition reports whether moving from s to next is a legal step.
func (s State) CanTransition(next State) bool {
	switch s {
	case Uninitialized:
		return next == Initialized || next == Failed
	case Initialized:
		return next == InService
	case InService:
		return next == Destroying
	case Destroying:
		return next == Destroyed
	default:
		return false
	}
}

// Serviceable reports whether Service calls may be admitted in s.
func (s State) Serviceable() bool {
	return s == InService
}

// Terminal reports whether no further transition is possible from s.
func (s State) Terminal() bool {
	return s == Destroyed || s == Failed
}
