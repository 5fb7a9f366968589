// Package sync owns the merged, deduplicated, ordered transcript state
// for one meeting session and mediates between the push and poll
// delivery sources.
package sync

import "fmt"

// State represents the lifecycle state of a sync session.
type State int

const (
	// StateInitializing - session created, delivery mode not yet settled.
	StateInitializing State = iota
	// StatePushActive - the push channel is the live delivery source.
	StatePushActive
	// StatePollActive - snapshot polling is the live delivery source.
	// A session moves here when push fails; it never moves back on its own.
	StatePollActive
	// StateStopped - the session is over. Terminal.
	StateStopped
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateInitializing:
		return "INITIALIZING"
	case StatePushActive:
		return "PUSH_ACTIVE"
	case StatePollActive:
		return "POLL_ACTIVE"
	case StateStopped:
		return "STOPPED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateStopped
}
