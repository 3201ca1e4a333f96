package connection

import (
	"time"

	"github.com/vietddude/zkrelay/internal/core/domain"
)

// State is an alias for domain.ConnectionState for internal use.
type State = domain.ConnectionState

// State constants re-exported for convenience.
const (
	StateDisconnected = domain.ConnStateDisconnected
	StateConnecting   = domain.ConnStateConnecting
	StateConnected    = domain.ConnStateConnected
	StateReconnecting = domain.ConnStateReconnecting
	StateGivingUp     = domain.ConnStateGivingUp
	StateShuttingDown = domain.ConnStateShuttingDown
)

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// ShuttingDown has no way out; GivingUp only leads to ShuttingDown.
var ValidTransitions = map[State][]State{
	StateDisconnected: {StateConnecting, StateShuttingDown},
	StateConnecting:   {StateConnected, StateReconnecting, StateShuttingDown},
	StateConnected:    {StateReconnecting, StateShuttingDown},
	StateReconnecting: {StateConnecting, StateGivingUp, StateShuttingDown},
	StateGivingUp:     {StateShuttingDown},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	for _, target := range ValidTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State
	To        State
	Reason    string
	Attempt   int
	Timestamp time.Time
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string, attempt int) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Attempt:   attempt,
		Timestamp: time.Now(),
	}
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case StateDisconnected:
		return "Disconnected - manager not started"
	case StateConnecting:
		return "Connecting - dialing the chain node"
	case StateConnected:
		return "Connected - session is live, submissions flow"
	case StateReconnecting:
		return "Reconnecting - waiting out backoff before the next dial"
	case StateGivingUp:
		return "Giving up - reconnection budget exhausted, restart required"
	case StateShuttingDown:
		return "Shutting down - process is stopping"
	default:
		return "Unknown state"
	}
}
