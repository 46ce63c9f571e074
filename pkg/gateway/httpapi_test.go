// Copyright 2025-2026 KMT Marketplace

package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

const testSecret = "kmt-test-secret"

// newTestAPI builds a supervisor plus HTTP surface around fakes.
func newTestAPI(t *testing.T) (*Supervisor, *fakeDialer, *httptest.Server) {
	t.Helper()
	dialer := &fakeDialer{}
	sup := newTestSupervisor(t, dialer, newMemStore())
	srv := httptest.NewServer(NewAPI(sup, testSecret, zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)
	return sup, dialer, srv
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func body(t *testing.T, resp *http.Response) string {
	t.Helper()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(raw)
}

// TestGate_MissingSecret verifies requests without a secret get 401.
func TestGate_MissingSecret(t *testing.T) {
	t.Parallel()
	_, _, srv := newTestAPI(t)

	for _, path := range []string{"/qr", "/qr.png", "/api/send", "/api/status"} {
		resp := get(t, srv.URL+path)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s = %d, want 401", path, resp.StatusCode)
		}
	}
}

// TestGate_WrongSecret verifies a mismatched secret gets 403.
func TestGate_WrongSecret(t *testing.T) {
	t.Parallel()
	_, _, srv := newTestAPI(t)

	resp := get(t, srv.URL+"/qr?secret=not-it")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", resp.StatusCode)
	}
}

// TestGate_EmptyConfiguredSecretFailsClosed verifies an unset server secret
// refuses every request instead of letting everything through.
func TestGate_EmptyConfiguredSecretFailsClosed(t *testing.T) {
	t.Parallel()
	sup := newTestSupervisor(t, &fakeDialer{}, newMemStore())
	srv := httptest.NewServer(NewAPI(sup, "", zerolog.Nop()).Handler())
	t.Cleanup(srv.Close)

	resp := get(t, srv.URL+"/qr?secret=anything")
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 with empty configured secret", resp.StatusCode)
	}
}

// TestGate_HeaderAccepted verifies the secret can come from the X-QR-Secret
// header instead of the query string.
func TestGate_HeaderAccepted(t *testing.T) {
	t.Parallel()
	_, _, srv := newTestAPI(t)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/api/status", nil)
	req.Header.Set("X-QR-Secret", testSecret)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}

// TestQRPage_Waiting verifies the page shows the waiting message while no
// challenge is outstanding.
func TestQRPage_Waiting(t *testing.T) {
	t.Parallel()
	_, _, srv := newTestAPI(t)

	resp := get(t, srv.URL+"/qr?secret="+testSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if !strings.Contains(body(t, resp), "جاري انتظار") {
		t.Fatal("expected the waiting page")
	}
}

// TestQRPage_ShowsArtifact verifies an outstanding challenge is rendered
// inline as a data URL.
func TestQRPage_ShowsArtifact(t *testing.T) {
	t.Parallel()
	sup, dialer, srv := newTestAPI(t)
	if err := sup.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	dialer.Client(0).emit(ChallengeEvent{Code: "pairing-code"})
	waitFor(t, func() bool { return sup.CurrentArtifact() != nil }, "artifact to be published")

	resp := get(t, srv.URL+"/qr?secret="+testSecret)
	if !strings.Contains(body(t, resp), "data:image/png;base64,") {
		t.Fatal("expected an inline PNG data URL")
	}
}

// TestQRImage verifies the raw PNG endpoint: 404 without a challenge, the
// image with one.
func TestQRImage(t *testing.T) {
	t.Parallel()
	sup, dialer, srv := newTestAPI(t)

	resp := get(t, srv.URL+"/qr.png?secret="+testSecret)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without a challenge", resp.StatusCode)
	}

	if err := sup.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	dialer.Client(0).emit(ChallengeEvent{Code: "pairing-code"})
	waitFor(t, func() bool { return sup.CurrentArtifact() != nil }, "artifact to be published")

	resp = get(t, srv.URL+"/qr.png?secret="+testSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content type = %q, want image/png", ct)
	}
}

func postSend(t *testing.T, srv *httptest.Server, payload string) *http.Response {
	t.Helper()
	resp, err := http.Post(srv.URL+"/api/send?secret="+testSecret, "application/json",
		bytes.NewReader([]byte(payload)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// TestSendEndpoint_MethodNotAllowed verifies only POST is accepted.
func TestSendEndpoint_MethodNotAllowed(t *testing.T) {
	t.Parallel()
	_, _, srv := newTestAPI(t)

	resp := get(t, srv.URL+"/api/send?secret="+testSecret)
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d, want 405", resp.StatusCode)
	}
}

// TestSendEndpoint_BadRequests verifies malformed bodies and missing fields
// get 400.
func TestSendEndpoint_BadRequests(t *testing.T) {
	t.Parallel()
	_, _, srv := newTestAPI(t)

	for _, payload := range []string{"{", `{}`, `{"phone":"5551234567"}`, `{"message":"hi"}`} {
		resp := postSend(t, srv, payload)
		if resp.StatusCode != http.StatusBadRequest {
			t.Errorf("payload %q: status = %d, want 400", payload, resp.StatusCode)
		}
	}
}

// TestSendEndpoint_InvalidDestination verifies the permanent failure maps
// to 400 even with no session at all.
func TestSendEndpoint_InvalidDestination(t *testing.T) {
	t.Parallel()
	_, _, srv := newTestAPI(t)

	resp := postSend(t, srv, `{"phone":"12345","message":"hi"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
}

// TestSendEndpoint_NotReady verifies the transient failure maps to 503.
func TestSendEndpoint_NotReady(t *testing.T) {
	t.Parallel()
	_, _, srv := newTestAPI(t)

	resp := postSend(t, srv, `{"phone":"5551234567","message":"hi"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", resp.StatusCode)
	}
}

// TestSendEndpoint_DeliveryFailed verifies gateway rejections map to 502.
func TestSendEndpoint_DeliveryFailed(t *testing.T) {
	t.Parallel()
	sup, dialer, srv := newTestAPI(t)
	cli := openSession(t, sup, dialer)
	cli.setSendErr(errors.New("rejected"))

	resp := postSend(t, srv, `{"phone":"5551234567","message":"hi"}`)
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", resp.StatusCode)
	}
}

// TestSendEndpoint_Success verifies the happy path delivers the message.
func TestSendEndpoint_Success(t *testing.T) {
	t.Parallel()
	sup, dialer, srv := newTestAPI(t)
	cli := openSession(t, sup, dialer)

	resp := postSend(t, srv, `{"phone":"555-123-4567","message":"Your verification code is: 123456"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var out apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || !out.Success {
		t.Fatalf("unexpected response: %+v err=%v", out, err)
	}
	sent := cli.Sent()
	if len(sent) != 1 || sent[0].Destination != "5551234567" {
		t.Fatalf("unexpected delivery: %+v", sent)
	}
}

// TestStatusEndpoint verifies the snapshot JSON.
func TestStatusEndpoint(t *testing.T) {
	t.Parallel()
	sup, dialer, srv := newTestAPI(t)
	openSession(t, sup, dialer)

	resp := get(t, srv.URL+"/api/status?secret="+testSecret)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var snap struct {
		State string `json:"state"`
		Ready bool   `json:"ready"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		t.Fatal(err)
	}
	if snap.State != "open" || !snap.Ready {
		t.Fatalf("unexpected snapshot: %+v", snap)
	}
}

// TestHealth_Ungated verifies the liveness endpoint needs no secret.
func TestHealth_Ungated(t *testing.T) {
	t.Parallel()
	_, _, srv := newTestAPI(t)

	resp := get(t, srv.URL+"/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
}
