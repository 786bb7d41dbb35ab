package pipeline

import (
	"fmt"
	"sync/atomic"
)

// State is the stage a job is in. Reading covers decoding and coercion,
// which run ahead in the worker pool.
type State int32

const (
	StateInit State = iota
	StateEnumerating
	StateProbing
	StateReading
	StateReconciling
	StateWriting
	StateFinalizing
	StatePublishing
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:        "init",
	StateEnumerating: "enumerating",
	StateProbing:     "probing",
	StateReading:     "reading",
	StateReconciling: "reconciling",
	StateWriting:     "writing",
	StateFinalizing:  "finalizing",
	StatePublishing:  "publishing",
	StateDone:        "done",
	StateFailed:      "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int32(s))
	}
	return stateNames[s]
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// stateMachine holds the current state. Terminal states absorb every later
// transition.
type stateMachine struct {
	v atomic.Int32
}

func (m *stateMachine) get() State { return State(m.v.Load()) }

func (m *stateMachine) set(s State) bool {
	for {
		cur := m.v.Load()
		if State(cur).Terminal() {
			return false
		}
		if m.v.CompareAndSwap(cur, int32(s)) {
			return true
		}
	}
}
