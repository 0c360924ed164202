// Package state holds the per-consumer timer lifecycle.
package state

type State string

const (
	Absent  State = "absent"
	Active  State = "active"
	Stopped State = "stopped"
)

var allStates = []State{
	Absent,
	Active,
	Stopped,
}

// Active -> Active is a restart: the running loop is retired and replaced.
var transitions = map[State]map[State]bool{
	Absent: {
		Active: true,
	},
	Active: {
		Active:  true,
		Stopped: true,
		Absent:  true,
	},
	Stopped: {
		Active: true,
		Absent: true,
	},
}

func AllStates() []State {
	out := make([]State, len(allStates))
	copy(out, allStates)
	return out
}

func CanTransition(from, to State) bool {
	next, ok := transitions[from]
	if !ok {
		return false
	}
	return next[to]
}

// Of derives the state from persisted timer configuration.
func Of(configured, active bool) State {
	switch {
	case !configured:
		return Absent
	case active:
		return Active
	default:
		return Stopped
	}
}
