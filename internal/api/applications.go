package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/identity-core/internal/identity"
)

// ─── Request Types ─────────────────────────────────────────────────

type createApplicationRequest struct {
	Name     string `json:"name"`
	BadgeURL string `json:"badge_url,omitempty"`
}

type updateApplicationRequest struct {
	Name     *string `json:"name,omitempty"`
	BadgeURL *string `json:"badge_url,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// ─── Handlers ──────────────────────────────────────────────────────

// handleListApplications returns all registered applications.
func (s *Server) handleListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.apps.List(r.Context())
	if err != nil {
		s.logger.Error("list applications failed", "error", err)
		writeInternalError(w, "failed to list applications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"applications": apps,
		"count":        len(apps),
	})
}

// handleCreateApplication registers a new application. The opaque app
// key is generated server-side and returned once in the response; it
// is what clients present on login and handshake requests.
func (s *Server) handleCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req createApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	app := &identity.Application{
		Name:     req.Name,
		BadgeURL: req.BadgeURL,
		IsActive: true,
	}
	if err := s.apps.Create(r.Context(), app); err != nil {
		if errors.Is(err, identity.ErrAppKeyExists) {
			writeConflict(w, "application key already exists")
			return
		}
		s.logger.Error("create application failed", "error", err)
		writeInternalError(w, "failed to create application")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("application created", "application_id", app.ID, "name", app.Name, "created_by", c.AccountID)

	writeJSON(w, http.StatusCreated, app)
}

// handleGetApplication returns a single application by ID.
func (s *Server) handleGetApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	app, err := s.apps.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrApplicationNotFound) {
			writeNotFound(w, "application not found")
			return
		}
		s.logger.Error("get application failed", "error", err)
		writeInternalError(w, "failed to get application")
		return
	}

	writeJSON(w, http.StatusOK, app)
}

// handleUpdateApplication modifies an application's mutable fields.
// Deactivating an application refuses new logins and handshakes
// immediately; sessions already issued remain valid until expiry.
func (s *Server) handleUpdateApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	app, err := s.apps.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrApplicationNotFound) {
			writeNotFound(w, "application not found")
			return
		}
		s.logger.Error("get application for update failed", "error", err)
		writeInternalError(w, "failed to update application")
		return
	}

	if req.Name != nil {
		app.Name = *req.Name
	}
	if req.BadgeURL != nil {
		app.BadgeURL = *req.BadgeURL
	}
	if req.IsActive != nil {
		app.IsActive = *req.IsActive
	}

	if err := s.apps.Update(r.Context(), app); err != nil {
		s.logger.Error("update application failed", "error", err)
		writeInternalError(w, "failed to update application")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("application updated", "application_id", id, "updated_by", c.AccountID)

	writeJSON(w, http.StatusOK, app)
}

// handleDeleteApplication removes an application. Whitelist entries
// cascade via foreign keys.
func (s *Server) handleDeleteApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.apps.Delete(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrApplicationNotFound) {
			writeNotFound(w, "application not found")
			return
		}
		s.logger.Error("delete application failed", "error", err)
		writeInternalError(w, "failed to delete application")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("application deleted", "application_id", id, "deleted_by", c.AccountID)

	w.WriteHeader(http.StatusNoContent)
}
