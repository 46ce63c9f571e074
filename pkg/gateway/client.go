// Copyright 2025-2026 KMT Marketplace

package gateway

import (
	"context"

	"github.com/kmt/wagateway/pkg/gateway/authstore"
)

// Client is a live connection to the messaging platform. The supervisor is
// its only consumer. The event channel is closed when the connection is
// gone for good, which ends the supervisor's handling loop for this client.
type Client interface {
	// Events returns the lifecycle event stream for this connection.
	Events() <-chan Event
	// SendText submits a text message to a destination that has already been
	// normalized to bare digits.
	SendText(ctx context.Context, destination, text string) error
	// Disconnect tears the connection down and closes the event channel.
	// Safe to call more than once.
	Disconnect()
}

// Dialer opens a new connection using a previously loaded credential
// bundle. Dial covers the fallible initialization steps: opening the
// session store inside the bundle and performing the connection handshake.
// This is an interface so tests can inject a fake transport.
type Dialer interface {
	Dial(ctx context.Context, rec *authstore.Record) (Client, error)
}
