// Package dialogue runs the conversational order-taking state machine.
package dialogue

import (
	"errors"
	"fmt"
)

// State represents where a session is in the conversation.
type State int

const (
	// StateGreeting - Session created, greeting not yet spoken.
	StateGreeting State = iota
	// StateListening - Waiting for the caller to name an item.
	StateListening
	// StateProcessing - A turn is being transcribed and resolved.
	StateProcessing
	// StateAwaitingConfirmation - An item is pending the caller's yes or no.
	StateAwaitingConfirmation
	// StateTerminated - Session is over. This is a terminal state.
	StateTerminated
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateGreeting:
		return "GREETING"
	case StateListening:
		return "LISTENING"
	case StateProcessing:
		return "PROCESSING"
	case StateAwaitingConfirmation:
		return "AWAITING_CONFIRMATION"
	case StateTerminated:
		return "TERMINATED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if no further turns are accepted.
func (s State) IsTerminal() bool {
	return s == StateTerminated
}

// Errors for invalid turns and terminal outcomes.
var (
	ErrSessionTerminated = errors.New("session is terminated")
	ErrTurnInProgress    = errors.New("a turn is already in progress for this session")
	ErrNotStarted        = errors.New("session greeting has not been spoken")
	ErrAlreadyStarted    = errors.New("session already started")
	ErrTooManyFailures   = errors.New("too many consecutive failures")
	ErrEmptyMenu         = errors.New("restaurant menu is empty")
	ErrSessionExpired    = errors.New("session expired")
	ErrDuplicateSession  = errors.New("session already registered")

	errNoSpeech = errors.New("no speech detected")
)

// Termination reasons, used as metric labels.
const (
	ReasonOrderPlaced      = "order_placed"
	ReasonCancelled        = "cancelled"
	ReasonHangup           = "hangup"
	ReasonTooManyFailures  = "too_many_failures"
	ReasonPermissionDenied = "permission_denied"
	ReasonConfiguration    = "configuration"
	ReasonExpired          = "expired"
	ReasonShutdown         = "shutdown"
)
