// Copyright 2025-2026 KMT Marketplace

package gateway

import (
	"context"
	"strings"
)

// minDestinationDigits is the shortest destination accepted: country code
// plus subscriber number.
const minDestinationDigits = 10

// normalizeDestination strips everything but digits from a phone number.
func normalizeDestination(destination string) string {
	var b strings.Builder
	b.Grow(len(destination))
	for _, r := range destination {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Send submits a text message to a phone number on the open session.
//
// The destination is validated before the readiness check, so a malformed
// number gets ErrInvalidDestination no matter what state the session is in.
// Submission errors are wrapped in DeliveryError and not retried here;
// retry policy belongs to the caller.
func (s *Supervisor) Send(ctx context.Context, destination, text string) error {
	digits := normalizeDestination(destination)
	if len(digits) < minDestinationDigits {
		return ErrInvalidDestination
	}

	s.mu.RLock()
	cli := s.client
	open := s.state == StateOpen
	s.mu.RUnlock()
	if cli == nil || !open {
		return ErrNotReady
	}

	if err := cli.SendText(ctx, digits, text); err != nil {
		s.log.Error().Err(err).Str("destination", digits).Msg("Message delivery failed")
		return &DeliveryError{Err: err}
	}
	s.log.Debug().Str("destination", digits).Msg("Message delivered")
	return nil
}
