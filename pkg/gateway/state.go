// Copyright 2025-2026 KMT Marketplace

package gateway

// ConnState describes the lifecycle state of the session. Exactly one live
// connection is associated with the Connecting/AwaitingLink/Open states;
// Uninitialized and the closed states have no connection.
type ConnState int

const (
	// StateUninitialized means Initialize has not succeeded yet.
	StateUninitialized ConnState = iota
	// StateConnecting means a connection attempt is in flight.
	StateConnecting
	// StateAwaitingLink means the platform issued a pairing challenge and is
	// waiting for an operator to scan it.
	StateAwaitingLink
	// StateOpen means the session is authenticated and can send messages.
	StateOpen
	// StateClosedRecoverable means the connection dropped and a reconnect is
	// scheduled within the retry budget.
	StateClosedRecoverable
	// StateClosedTerminal means no further automatic action will be taken:
	// either the retry budget is exhausted or the remote side logged the
	// device out. An operator must restart or re-link.
	StateClosedTerminal
)

func (s ConnState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateConnecting:
		return "connecting"
	case StateAwaitingLink:
		return "awaiting_link"
	case StateOpen:
		return "open"
	case StateClosedRecoverable:
		return "closed_recoverable"
	case StateClosedTerminal:
		return "closed_terminal"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time read of the supervisor's shared state.
type Snapshot struct {
	State               ConnState `json:"state"`
	Ready               bool      `json:"ready"`
	ReconnectAttempts   int       `json:"reconnect_attempts"`
	ArtifactOutstanding bool      `json:"artifact_outstanding"`
}
