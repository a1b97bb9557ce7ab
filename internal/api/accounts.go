package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/identity-core/internal/auth"
	"github.com/nerrad567/identity-core/internal/identity"
)

// minPasswordLength is the minimum accepted password length.
const minPasswordLength = 8

// ─── Request Types ─────────────────────────────────────────────────

type createAccountRequest struct {
	Username    string `json:"username"`
	DisplayName string `json:"display_name"`
	BadgeURL    string `json:"badge_url,omitempty"`
	Password    string `json:"password"`
}

type updateAccountRequest struct {
	DisplayName *string                 `json:"display_name,omitempty"`
	BadgeURL    *string                 `json:"badge_url,omitempty"`
	Status      *identity.AccountStatus `json:"status,omitempty"`
}

type changePasswordRequest struct {
	Password string `json:"password"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleListAccounts returns all accounts.
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		s.logger.Error("list accounts failed", "error", err)
		writeInternalError(w, "failed to list accounts")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"accounts": accounts,
		"count":    len(accounts),
	})
}

// handleCreateAccount creates a new account.
func (s *Server) handleCreateAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.Username == "" || req.Password == "" || req.DisplayName == "" {
		writeBadRequest(w, "username, password, and display_name are required")
		return
	}
	if !identity.IsValidUsername(req.Username) {
		writeBadRequest(w, "username must be 1-64 characters: letters, digits, dots, hyphens, underscores")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeInternalError(w, "failed to create account")
		return
	}

	account := &identity.Account{
		Username:     req.Username,
		DisplayName:  req.DisplayName,
		BadgeURL:     req.BadgeURL,
		PasswordHash: hash,
		Status:       identity.StatusActive,
	}

	if err := s.accounts.Create(r.Context(), account); err != nil {
		if errors.Is(err, identity.ErrUsernameExists) {
			writeConflict(w, "username already exists")
			return
		}
		s.logger.Error("create account failed", "error", err)
		writeInternalError(w, "failed to create account")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("account created", "account_id", account.ID, "username", account.Username, "created_by", c.AccountID)

	writeJSON(w, http.StatusCreated, account)
}

// handleGetAccount returns a single account by ID.
func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	account, err := s.accounts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeNotFound(w, "account not found")
			return
		}
		s.logger.Error("get account failed", "error", err)
		writeInternalError(w, "failed to get account")
		return
	}

	writeJSON(w, http.StatusOK, account)
}

// handleUpdateAccount modifies an account's mutable fields. Disabling
// an account also revokes its refresh tokens, cutting off every open
// session.
func (s *Server) handleUpdateAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c := callerFromContext(r.Context())

	var req updateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	account, err := s.accounts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeNotFound(w, "account not found")
			return
		}
		s.logger.Error("get account for update failed", "error", err)
		writeInternalError(w, "failed to update account")
		return
	}

	// Self-protection: cannot disable yourself
	if req.Status != nil && *req.Status == identity.StatusDisabled && id == c.AccountID {
		writeForbidden(w, "cannot disable your own account")
		return
	}

	if req.Status != nil && !identity.IsValidAccountStatus(*req.Status) {
		writeBadRequest(w, "invalid status: must be active or disabled")
		return
	}

	// Apply patches
	if req.DisplayName != nil {
		account.DisplayName = *req.DisplayName
	}
	if req.BadgeURL != nil {
		account.BadgeURL = *req.BadgeURL
	}
	disabling := false
	if req.Status != nil {
		disabling = account.Status == identity.StatusActive && *req.Status == identity.StatusDisabled
		account.Status = *req.Status
	}

	if err := s.accounts.Update(r.Context(), account); err != nil {
		s.logger.Error("update account failed", "error", err)
		writeInternalError(w, "failed to update account")
		return
	}

	if disabling && s.tokens != nil {
		if err := s.tokens.RevokeAllForAccount(r.Context(), id); err != nil {
			s.logger.Error("revoke sessions after disable failed", "error", err)
		}
	}

	s.logger.Info("account updated", "account_id", id, "updated_by", c.AccountID)

	writeJSON(w, http.StatusOK, account)
}

// handleDeleteAccount removes an account and revokes its sessions.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c := callerFromContext(r.Context())

	// Cannot delete yourself
	if id == c.AccountID {
		writeForbidden(w, "cannot delete your own account")
		return
	}

	account, err := s.accounts.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeNotFound(w, "account not found")
			return
		}
		s.logger.Error("get account for delete failed", "error", err)
		writeInternalError(w, "failed to delete account")
		return
	}

	if err := s.accounts.Delete(r.Context(), id); err != nil {
		s.logger.Error("delete account failed", "error", err)
		writeInternalError(w, "failed to delete account")
		return
	}

	if s.tokens != nil {
		if err := s.tokens.RevokeAllForAccount(r.Context(), id); err != nil {
			s.logger.Error("revoke sessions after delete failed", "error", err)
		}
	}

	s.logger.Info("account deleted", "account_id", id, "username", account.Username, "deleted_by", c.AccountID)

	w.WriteHeader(http.StatusNoContent)
}

// handleChangePassword replaces an account's password and revokes all
// of its refresh tokens, forcing a fresh login everywhere.
func (s *Server) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c := callerFromContext(r.Context())

	var req changePasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if len(req.Password) < minPasswordLength {
		writeBadRequest(w, "password must be at least 8 characters")
		return
	}

	if _, err := s.accounts.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeNotFound(w, "account not found")
			return
		}
		s.logger.Error("get account for password change failed", "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error("hash password failed", "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	if err := s.accounts.UpdatePassword(r.Context(), id, hash); err != nil {
		s.logger.Error("update password failed", "error", err)
		writeInternalError(w, "failed to change password")
		return
	}

	if s.tokens != nil {
		if err := s.tokens.RevokeAllForAccount(r.Context(), id); err != nil {
			s.logger.Error("revoke sessions after password change failed", "error", err)
		}
	}

	s.logger.Info("account password changed", "account_id", id, "changed_by", c.AccountID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// handleListAccountSessions returns active refresh tokens for an account.
func (s *Server) handleListAccountSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	sessions, err := s.tokens.ListActiveByAccount(r.Context(), id)
	if err != nil {
		s.logger.Error("list account sessions failed", "error", err)
		writeInternalError(w, "failed to list sessions")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// handleRevokeAccountSessions revokes all refresh tokens for an account.
func (s *Server) handleRevokeAccountSessions(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	c := callerFromContext(r.Context())

	if err := s.tokens.RevokeAllForAccount(r.Context(), id); err != nil {
		s.logger.Error("revoke account sessions failed", "error", err)
		writeInternalError(w, "failed to revoke sessions")
		return
	}

	s.logger.Info("account sessions revoked", "account_id", id, "revoked_by", c.AccountID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "sessions_revoked"})
}
