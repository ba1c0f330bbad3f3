package engine

// Phase is the position of the engine inside a cycle.
type Phase int32

const (
	PhaseIdle Phase = iota
	PhaseFetching
	PhaseDeciding
	PhaseExecuting
	PhasePublishing
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseFetching:
		return "fetching"
	case PhaseDeciding:
		return "deciding"
	case PhaseExecuting:
		return "executing"
	case PhasePublishing:
		return "publishing"
	default:
		return "unknown"
	}
}
