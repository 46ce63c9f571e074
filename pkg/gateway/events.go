// Copyright 2025-2026 KMT Marketplace

package gateway

// Event is a lifecycle event delivered by a Client. Events for one client
// are delivered in order on a single channel and handled one at a time.
type Event interface {
	gatewayEvent()
}

// ConnectingEvent reports that the transport started a connection attempt.
// Informational; the supervisor only updates its state.
type ConnectingEvent struct{}

// ChallengeEvent carries a fresh pairing code issued by the platform. Each
// new challenge supersedes the previous one.
type ChallengeEvent struct {
	Code string
}

// ConnectedEvent reports that the session is authenticated and open.
type ConnectedEvent struct{}

// ClosedEvent reports that the connection was closed. LoggedOut marks a
// remote-initiated, non-recoverable termination; anything else is treated
// as recoverable within the retry budget.
type ClosedEvent struct {
	StatusCode int
	LoggedOut  bool
	Err        error
}

// CredsRotatedEvent reports that the platform rotated session credentials.
// The supervisor persists the updated bundle metadata before handling the
// next event.
type CredsRotatedEvent struct {
	JID      string
	Platform string
}

func (ConnectingEvent) gatewayEvent()   {}
func (ChallengeEvent) gatewayEvent()    {}
func (ConnectedEvent) gatewayEvent()    {}
func (ClosedEvent) gatewayEvent()       {}
func (CredsRotatedEvent) gatewayEvent() {}
