// Copyright 2025-2026 KMT Marketplace

package gateway

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// API is the operator HTTP surface: the QR linking page for a human with a
// phone, and the JSON endpoints the CRUD backend calls over localhost.
// Everything except /health is gated by the shared link secret.
type API struct {
	sup    *Supervisor
	secret string
	log    zerolog.Logger
}

// NewAPI creates the HTTP surface for a supervisor.
func NewAPI(sup *Supervisor, secret string, log zerolog.Logger) *API {
	return &API{
		sup:    sup,
		secret: secret,
		log:    log.With().Str("component", "httpapi").Logger(),
	}
}

// Handler returns the route mux.
func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/qr", a.handleQRPage)
	mux.HandleFunc("/qr.png", a.handleQRImage)
	mux.HandleFunc("/api/send", a.handleSend)
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/health", a.handleHealth)
	return mux
}

// NewServer wraps the handler in an http.Server with sane timeouts.
func (a *API) NewServer(addr string) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// gate enforces the shared secret from the ?secret= query parameter or the
// X-QR-Secret header: 401 when absent, 403 when mismatched. An empty
// configured secret fails closed rather than open.
func (a *API) gate(w http.ResponseWriter, r *http.Request) bool {
	secret := r.URL.Query().Get("secret")
	if secret == "" {
		secret = r.Header.Get("X-QR-Secret")
	}
	if secret == "" {
		servePage(w, http.StatusUnauthorized, pageUnauthorized)
		return false
	}
	if a.secret == "" || secret != a.secret {
		a.log.Warn().Str("remote", r.RemoteAddr).Str("path", r.URL.Path).
			Msg("Rejected request with wrong link secret")
		servePage(w, http.StatusForbidden, pageForbidden)
		return false
	}
	return true
}

// handleQRPage serves the linking page: the current challenge as an inline
// image, or a waiting message while none is outstanding.
func (a *API) handleQRPage(w http.ResponseWriter, r *http.Request) {
	if !a.gate(w, r) {
		return
	}
	art := a.sup.CurrentArtifact()
	if art == nil {
		servePage(w, http.StatusOK, fmt.Sprintf(pageWaiting, a.sup.State().State))
		return
	}
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(art)
	servePage(w, http.StatusOK, fmt.Sprintf(pageQR, dataURL))
}

// handleQRImage serves the raw artifact PNG, 404 while none is outstanding.
func (a *API) handleQRImage(w http.ResponseWriter, r *http.Request) {
	if !a.gate(w, r) {
		return
	}
	art := a.sup.CurrentArtifact()
	if art == nil {
		http.Error(w, "no pairing challenge outstanding", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(art)
}

type sendRequest struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

type apiResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// handleSend is the seam the CRUD backend calls to deliver a verification
// code. Error mapping follows what the callers need: 400 is permanent, 503
// and 502 are retryable from the end user's point of view.
func (a *API) handleSend(w http.ResponseWriter, r *http.Request) {
	if !a.gate(w, r) {
		return
	}
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, apiResponse{Error: "method not allowed"})
		return
	}
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid request body"})
		return
	}
	if req.Phone == "" || req.Message == "" {
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "phone and message are required"})
		return
	}

	err := a.sup.Send(r.Context(), req.Phone, req.Message)
	var deliveryErr *DeliveryError
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, apiResponse{Success: true})
	case errors.Is(err, ErrInvalidDestination):
		writeJSON(w, http.StatusBadRequest, apiResponse{Error: "invalid phone number format"})
	case errors.Is(err, ErrNotReady):
		writeJSON(w, http.StatusServiceUnavailable, apiResponse{Error: "session is not ready yet, try again later"})
	case errors.As(err, &deliveryErr):
		writeJSON(w, http.StatusBadGateway, apiResponse{Error: "failed to deliver message"})
	default:
		a.log.Error().Err(err).Msg("Unexpected send error")
		writeJSON(w, http.StatusInternalServerError, apiResponse{Error: "internal error"})
	}
}

func (a *API) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !a.gate(w, r) {
		return
	}
	snap := a.sup.State()
	writeJSON(w, http.StatusOK, struct {
		State               string `json:"state"`
		Ready               bool   `json:"ready"`
		ReconnectAttempts   int    `json:"reconnect_attempts"`
		ArtifactOutstanding bool   `json:"artifact_outstanding"`
	}{
		State:               snap.State.String(),
		Ready:               snap.Ready,
		ReconnectAttempts:   snap.ReconnectAttempts,
		ArtifactOutstanding: snap.ArtifactOutstanding,
	})
}

// handleHealth is the ungated liveness probe.
func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Success   bool   `json:"success"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}{true, "Server is running", time.Now().UTC().Format(time.RFC3339)})
}

func writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(body)
}

func servePage(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	fmt.Fprint(w, body)
}
