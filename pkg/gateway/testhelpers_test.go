// Copyright 2025-2026 KMT Marketplace

package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/kmt/wagateway/pkg/gateway/authstore"
)

// sentMessage records one SendText call on a fake client.
type sentMessage struct {
	Destination string
	Text        string
}

// fakeClient is a scriptable gateway.Client. Tests emit lifecycle events on
// it and inspect what was sent.
type fakeClient struct {
	events chan Event

	mu           sync.Mutex
	sent         []sentMessage
	sendErr      error
	disconnected bool
	closeOnce    sync.Once
}

func newFakeClient() *fakeClient {
	return &fakeClient{events: make(chan Event, 16)}
}

func (c *fakeClient) Events() <-chan Event {
	return c.events
}

func (c *fakeClient) SendText(_ context.Context, destination, text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, sentMessage{Destination: destination, Text: text})
	return nil
}

func (c *fakeClient) Disconnect() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.disconnected = true
		c.mu.Unlock()
		close(c.events)
	})
}

// emit queues a lifecycle event for the supervisor's loop.
func (c *fakeClient) emit(evt Event) {
	c.events <- evt
}

// emitClosed mirrors the production transport: a closure event is the last
// event before the channel closes.
func (c *fakeClient) emitClosed(evt ClosedEvent) {
	c.emit(evt)
	c.Disconnect()
}

func (c *fakeClient) Sent() []sentMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := make([]sentMessage, len(c.sent))
	copy(cp, c.sent)
	return cp
}

func (c *fakeClient) Disconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *fakeClient) setSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

// fakeDialer hands out a fresh fakeClient per dial and counts attempts.
type fakeDialer struct {
	mu      sync.Mutex
	clients []*fakeClient
	dialErr error
}

func (d *fakeDialer) Dial(_ context.Context, _ *authstore.Record) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.dialErr != nil {
		return nil, d.dialErr
	}
	c := newFakeClient()
	d.clients = append(d.clients, c)
	return c, nil
}

func (d *fakeDialer) Dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.clients)
}

// Client returns the client created by the i-th successful dial.
func (d *fakeDialer) Client(i int) *fakeClient {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.clients[i]
}

func (d *fakeDialer) setDialErr(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dialErr = err
}

// memStore is an in-memory authstore.Store with scriptable failures.
type memStore struct {
	mu       sync.Mutex
	recs     map[string]*authstore.Record
	saves    int
	purges   int
	loadErr  error
	saveErr  error
	purgeErr error
}

func newMemStore() *memStore {
	return &memStore{recs: make(map[string]*authstore.Record)}
}

func (s *memStore) Load(_ context.Context, identity string) (*authstore.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	if rec, ok := s.recs[identity]; ok {
		return rec, nil
	}
	rec := &authstore.Record{Identity: identity, Dir: "/nonexistent/" + identity}
	s.recs[identity] = rec
	return rec, nil
}

func (s *memStore) Save(_ context.Context, rec *authstore.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	s.recs[rec.Identity] = rec
	return nil
}

func (s *memStore) Purge(_ context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.purgeErr != nil {
		return s.purgeErr
	}
	s.purges++
	delete(s.recs, identity)
	return nil
}

func (s *memStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *memStore) Purges() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purges
}

func (s *memStore) Record(identity string) *authstore.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recs[identity]
}

// newTestSupervisor builds a supervisor with a millisecond backoff so
// reconnect tests run fast.
func newTestSupervisor(t *testing.T, dial Dialer, store authstore.Store) *Supervisor {
	t.Helper()
	cfg := &Config{Identity: "test"}
	if err := cfg.PostProcess(); err != nil {
		t.Fatalf("PostProcess failed: %v", err)
	}
	sup := NewSupervisor(cfg, store, dial, zerolog.Nop())
	sup.backoff = time.Millisecond
	t.Cleanup(sup.Close)
	return sup
}

// waitFor polls until cond holds or the test times out.
func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", msg)
}

// openSession drives a supervisor to the open state and returns the live
// fake client.
func openSession(t *testing.T, sup *Supervisor, dialer *fakeDialer) *fakeClient {
	t.Helper()
	if err := sup.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	cli := dialer.Client(dialer.Dials() - 1)
	cli.emit(ConnectedEvent{})
	waitFor(t, sup.IsReady, "session to open")
	return cli
}
