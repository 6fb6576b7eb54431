package session

// Stage is the lifecycle position of a session. Stages only move forward.
type Stage string

// Session stages.
const (
	StageConnecting Stage = "CONNECTING"
	StageActive     Stage = "ACTIVE"
	StageEnded      Stage = "ENDED"
)

func (s Stage) rank() int {
	switch s {
	case StageConnecting:
		return 1
	case StageActive:
		return 2
	case StageEnded:
		return 3
	default:
		return 0
	}
}

// CanAdvance reports whether moving from s to next goes forward.
func (s Stage) CanAdvance(next Stage) bool {
	return next.rank() > s.rank()
}

// Terminal reports whether no further transition is possible.
func (s Stage) Terminal() bool {
	return s == StageEnded
}
