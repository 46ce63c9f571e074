// Copyright 2025-2026 KMT Marketplace

package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.mau.fi/util/jsontime"

	"github.com/kmt/wagateway/pkg/gateway/authstore"
)

// Supervisor owns the session lifecycle. It holds the only reference to the
// live Client, consumes its event stream on a single goroutine, and exposes
// the read and send operations the CRUD backend consumes.
//
// All shared state (client, connection state, artifact, reconnect counter)
// is guarded by one mutex, so each event handler updates it atomically.
// A generation counter identifies the current client: events and scheduled
// reconnects that belong to a superseded client check the generation (or
// the resulting state) and are dropped instead of being cancelled.
type Supervisor struct {
	identity    string
	maxAttempts int
	backoff     time.Duration

	store authstore.Store
	dial  Dialer
	log   zerolog.Logger

	// initMu serializes Initialize calls; mu guards the fields below.
	initMu sync.Mutex
	mu     sync.RWMutex

	client   Client
	rec      *authstore.Record
	state    ConnState
	artifact []byte
	attempts int
	gen      uint64
	closed   bool
}

// NewSupervisor creates a supervisor. It does not connect; call Initialize.
func NewSupervisor(cfg *Config, store authstore.Store, dial Dialer, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		identity:    cfg.Identity,
		maxAttempts: cfg.MaxReconnectAttempts,
		backoff:     cfg.ReconnectBackoff(),
		store:       store,
		dial:        dial,
		log:         log.With().Str("component", "supervisor").Logger(),
	}
}

// Initialize establishes the session. It is idempotent: if an open session
// already exists it returns immediately. Otherwise any stale connection is
// discarded, the credential bundle is loaded (created empty when absent)
// and a new connection is dialed. The event loop for the new connection is
// running before Initialize returns.
//
// Failures to load credentials or dial are wrapped in InitError and left to
// the caller; nothing is retried here.
func (s *Supervisor) Initialize(ctx context.Context) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.client != nil && s.state == StateOpen {
		s.mu.Unlock()
		return nil
	}
	if stale := s.client; stale != nil {
		s.client = nil
		go stale.Disconnect()
	}
	s.gen++
	gen := s.gen
	s.state = StateConnecting
	s.mu.Unlock()

	rec, err := s.store.Load(ctx, s.identity)
	if err != nil {
		s.abortInit(gen)
		return &InitError{Err: fmt.Errorf("load credential bundle: %w", err)}
	}

	cli, err := s.dial.Dial(ctx, rec)
	if err != nil {
		s.abortInit(gen)
		return &InitError{Err: err}
	}

	s.mu.Lock()
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		cli.Disconnect()
		return ErrClosed
	}
	s.client = cli
	s.rec = rec
	s.mu.Unlock()

	go s.consumeEvents(gen, cli)
	s.log.Info().Str("identity", s.identity).Bool("fresh", rec.Fresh()).
		Msg("Session initialized")
	return nil
}

// abortInit rolls the state back after a failed attempt, unless a newer
// attempt has already taken over.
func (s *Supervisor) abortInit(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen && !s.closed {
		s.state = StateUninitialized
	}
}

// consumeEvents is the handling loop for one client. It exits when the
// client closes its event channel.
func (s *Supervisor) consumeEvents(gen uint64, cli Client) {
	for evt := range cli.Events() {
		switch evt := evt.(type) {
		case ConnectingEvent:
			s.handleConnecting(gen)
		case ChallengeEvent:
			s.handleChallenge(gen, evt)
		case ConnectedEvent:
			s.handleConnected(gen)
		case CredsRotatedEvent:
			s.handleCredsRotated(gen, evt)
		case ClosedEvent:
			s.handleClosed(gen, evt)
		default:
			s.log.Trace().Type("event_type", evt).Msg("Unhandled gateway event")
		}
	}
}

func (s *Supervisor) handleConnecting(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.closed {
		return
	}
	// Informational. Don't downgrade an outstanding pairing challenge.
	if s.state != StateAwaitingLink {
		s.state = StateConnecting
	}
}

// handleChallenge renders the pairing code into the linking artifact. A new
// challenge resets the reconnect budget. Render failures degrade to "no
// artifact yet" instead of taking the supervisor down.
func (s *Supervisor) handleChallenge(gen uint64, evt ChallengeEvent) {
	png, err := renderArtifact(evt.Code)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to render pairing challenge")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.closed {
		return
	}
	s.attempts = 0
	s.artifact = png
	s.state = StateAwaitingLink
	s.log.Info().Bool("rendered", png != nil).
		Msg("Pairing challenge issued, scan it on the QR page")
}

func (s *Supervisor) handleConnected(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.closed {
		return
	}
	s.state = StateOpen
	s.artifact = nil
	s.attempts = 0
	s.log.Info().Str("identity", s.identity).Msg("Session is open")
}

// handleCredsRotated persists rotated credential metadata before the next
// event is handled. Persistence is best effort: a failure is logged and the
// connection keeps going, an operator can re-link if writes keep failing.
func (s *Supervisor) handleCredsRotated(gen uint64, evt CredsRotatedEvent) {
	s.mu.Lock()
	if s.gen != gen || s.closed || s.rec == nil {
		s.mu.Unlock()
		return
	}
	rec := s.rec
	if rec.Meta.JID == "" {
		rec.Meta.RegisteredAt = jsontime.UnixMilliNow()
	}
	rec.Meta.JID = evt.JID
	rec.Meta.Platform = evt.Platform
	rec.Meta.RotatedAt = jsontime.UnixMilliNow()
	s.mu.Unlock()

	if err := s.store.Save(context.Background(), rec); err != nil {
		s.log.Error().Err(err).Msg("Failed to persist rotated credentials")
		return
	}
	s.log.Debug().Str("jid", evt.JID).Msg("Rotated credentials persisted")
}

// handleClosed classifies a closure and decides between reconnect,
// giving up, and purging after a remote logout.
func (s *Supervisor) handleClosed(gen uint64, evt ClosedEvent) {
	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}

	if evt.LoggedOut {
		s.client = nil
		s.artifact = nil
		s.state = StateClosedTerminal
		s.mu.Unlock()
		s.log.Warn().Int("status_code", evt.StatusCode).
			Msg("Device was logged out, a fresh link is required")
		if err := s.store.Purge(context.Background(), s.identity); err != nil {
			s.log.Error().Err(err).Msg("Failed to purge credential bundle")
		}
		return
	}

	s.attempts++
	if s.attempts >= s.maxAttempts {
		s.client = nil
		s.artifact = nil
		s.state = StateClosedTerminal
		attempts := s.attempts
		s.mu.Unlock()
		s.log.Error().Int("attempts", attempts).AnErr("cause", evt.Err).
			Msg("Reconnect budget exhausted, restart the service")
		return
	}
	attempt := s.attempts
	s.client = nil
	s.state = StateClosedRecoverable
	s.mu.Unlock()

	s.log.Warn().Int("status_code", evt.StatusCode).AnErr("cause", evt.Err).
		Int("attempt", attempt).Int("max_attempts", s.maxAttempts).
		Msg("Connection closed, reconnecting after backoff")
	time.AfterFunc(s.backoff, s.reconnect)
}

// reconnect runs a scheduled attempt. By the time the timer fires the world
// may have moved on (a newer Initialize succeeded, the supervisor shut
// down), so it re-checks state instead of blindly dialing. Failures are
// logged and swallowed: there is no caller waiting on this path, and the
// next closure event or operator restart decides what happens after.
func (s *Supervisor) reconnect() {
	s.mu.RLock()
	due := !s.closed && s.state == StateClosedRecoverable
	s.mu.RUnlock()
	if !due {
		return
	}
	if err := s.Initialize(context.Background()); err != nil {
		s.log.Error().Err(err).Msg("Reconnect attempt failed")
	}
}

// IsReady reports whether the session is open and can send messages.
func (s *Supervisor) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.state == StateOpen
}

// State returns a point-in-time snapshot of the shared state.
func (s *Supervisor) State() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		State:               s.state,
		Ready:               s.client != nil && s.state == StateOpen,
		ReconnectAttempts:   s.attempts,
		ArtifactOutstanding: s.artifact != nil,
	}
}

// Close tears the session down and invalidates scheduled reconnects.
func (s *Supervisor) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.gen++
	cli := s.client
	s.client = nil
	s.artifact = nil
	s.mu.Unlock()

	if cli != nil {
		cli.Disconnect()
	}
	s.log.Info().Msg("Supervisor closed")
}
