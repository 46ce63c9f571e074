// Copyright 2025-2026 KMT Marketplace

package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrNotReady is returned by Send while no open session exists. Callers
	// should treat it as transient and retry after the session recovers.
	ErrNotReady = errors.New("session is not ready")

	// ErrInvalidDestination is returned by Send when the destination has
	// fewer than 10 digits after normalization. Permanent; never retried.
	ErrInvalidDestination = errors.New("invalid destination phone number")

	// ErrClosed is returned by Initialize after the supervisor was shut down.
	ErrClosed = errors.New("supervisor is closed")
)

// InitError wraps a failure to load credentials or open the platform
// connection. Initialize surfaces it to its caller; the session stays
// unavailable until a later attempt succeeds.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("session initialization failed: %v", e.Err)
}

func (e *InitError) Unwrap() error {
	return e.Err
}

// DeliveryError wraps a submission rejected by the platform. The dispatcher
// never retries; callers decide whether to roll back the operation that
// needed the message.
type DeliveryError struct {
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("message delivery failed: %v", e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
