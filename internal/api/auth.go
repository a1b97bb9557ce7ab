package api

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/identity-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	ApplicationKey string `json:"application_key"`
	DeviceInfo     string `json:"device_info,omitempty"`
}

// tokenLoginRequest is the request body for POST /auth/token-login.
type tokenLoginRequest struct {
	Token          string `json:"token"`
	ApplicationKey string `json:"application_key"`
}

// refreshRequest is the request body for POST /auth/refresh and /auth/logout.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleLogin authenticates a username/password pair on behalf of an
// application and returns a full session (access + refresh token).
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Username == "" || req.Password == "" || req.ApplicationKey == "" {
		writeBadRequest(w, "username, password, and application_key are required")
		return
	}

	session, err := s.authSvc.LoginWithCredentials(r.Context(), req.Username, req.Password, req.ApplicationKey, req.DeviceInfo)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// handleTokenLogin re-authenticates an existing access token, returning
// a fresh session without touching the refresh token store. Used by
// clients restoring state on startup.
func (s *Server) handleTokenLogin(w http.ResponseWriter, r *http.Request) {
	var req tokenLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Token == "" || req.ApplicationKey == "" {
		writeBadRequest(w, "token and application_key are required")
		return
	}

	session, err := s.authSvc.LoginWithToken(r.Context(), req.Token, req.ApplicationKey)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// handleRefresh rotates a refresh token and returns a new session.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	session, err := s.authSvc.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}

// handleLogout revokes a refresh token. Logging out with an unknown or
// already-revoked token still succeeds.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	if err := s.authSvc.Logout(r.Context(), req.RefreshToken); err != nil {
		s.logger.Error("logout failed", "error", err)
		writeInternalError(w, "failed to log out")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// writeAuthError maps auth service errors to HTTP responses. Credential
// failures deliberately share one message so callers cannot probe for
// valid usernames.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeUnauthorized(w, "invalid credentials")
	case errors.Is(err, auth.ErrAccountDisabled):
		writeUnauthorized(w, "account is disabled")
	case errors.Is(err, auth.ErrAppUnknown), errors.Is(err, auth.ErrAppInactive):
		writeUnauthorized(w, "application not recognised")
	case errors.Is(err, auth.ErrAppNotAuthorized):
		writeForbidden(w, "application not authorised for your organisation")
	case errors.Is(err, auth.ErrTokenReuse):
		writeUnauthorized(w, "refresh token reuse detected; session family revoked")
	case errors.Is(err, auth.ErrTokenExpired), errors.Is(err, auth.ErrTokenRevoked), errors.Is(err, auth.ErrTokenInvalid):
		writeUnauthorized(w, "invalid or expired token")
	default:
		s.logger.Error("auth operation failed", "error", err)
		writeInternalError(w, "authentication failed")
	}
}

// ─── WebSocket Tickets ─────────────────────────────────────────────

// ticketStore holds pending WebSocket authentication tickets.
// Tickets are single-use and expire after ticketTTL.
type ticketStore struct {
	tickets map[string]ticketEntry
	mu      sync.Mutex
}

// ticketEntry carries the issuing caller's identity to the WebSocket
// connection that redeems the ticket.
type ticketEntry struct {
	accountID string
	username  string
	expiresAt time.Time
}

func newTicketStore() *ticketStore {
	return &ticketStore{tickets: make(map[string]ticketEntry)}
}

// issue creates and stores a single-use ticket for the caller.
func (ts *ticketStore) issue(c caller) string {
	ticket := generateTicket()

	ts.mu.Lock()
	ts.tickets[ticket] = ticketEntry{
		accountID: c.AccountID,
		username:  c.Username,
		expiresAt: time.Now().Add(ticketTTL),
	}
	ts.mu.Unlock()

	return ticket
}

// consume validates a ticket and removes it (single-use).
func (ts *ticketStore) consume(ticket string) (ticketEntry, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	entry, ok := ts.tickets[ticket]
	if !ok {
		return ticketEntry{}, false
	}

	// Remove ticket (single-use)
	delete(ts.tickets, ticket)

	if time.Now().After(entry.expiresAt) {
		return ticketEntry{}, false
	}
	return entry, true
}

// cleanExpired removes expired tickets from the store.
func (ts *ticketStore) cleanExpired() {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	now := time.Now()
	for ticket, entry := range ts.tickets {
		if now.After(entry.expiresAt) {
			delete(ts.tickets, ticket)
		}
	}
}

// cleanLoop runs cleanExpired periodically until the context is cancelled.
func (ts *ticketStore) cleanLoop(ctx context.Context) {
	ticker := time.NewTicker(ticketTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ts.cleanExpired()
		}
	}
}

// handleWSTicket generates a single-use WebSocket authentication ticket.
// The client uses this ticket to authenticate the WebSocket connection
// without exposing the JWT in the URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	ticket := s.tickets.issue(callerFromContext(r.Context()))

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// generateTicket creates a cryptographically random ticket string.
func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}
