package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/identity-core/internal/identity"
)

// ─── Request Types ─────────────────────────────────────────────────

type createOrganizationRequest struct {
	Name              string `json:"name"`
	WhitelistEnforced bool   `json:"whitelist_enforced"`
}

type updateOrganizationRequest struct {
	Name              *string `json:"name,omitempty"`
	WhitelistEnforced *bool   `json:"whitelist_enforced,omitempty"`
}

type addMemberRequest struct {
	AccountID string              `json:"account_id"`
	Role      identity.MemberRole `json:"role"`
}

// ─── Organisation Handlers ─────────────────────────────────────────

// handleListOrganizations returns all organisations.
func (s *Server) handleListOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := s.orgs.List(r.Context())
	if err != nil {
		s.logger.Error("list organizations failed", "error", err)
		writeInternalError(w, "failed to list organisations")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"organizations": orgs,
		"count":         len(orgs),
	})
}

// handleCreateOrganization creates a new organisation.
func (s *Server) handleCreateOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeBadRequest(w, "name is required")
		return
	}

	org := &identity.Organization{
		Name:              req.Name,
		WhitelistEnforced: req.WhitelistEnforced,
	}
	if err := s.orgs.Create(r.Context(), org); err != nil {
		s.logger.Error("create organization failed", "error", err)
		writeInternalError(w, "failed to create organisation")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("organization created", "org_id", org.ID, "name", org.Name, "created_by", c.AccountID)

	writeJSON(w, http.StatusCreated, org)
}

// handleGetOrganization returns a single organisation by ID.
func (s *Server) handleGetOrganization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	org, err := s.orgs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrOrganizationNotFound) {
			writeNotFound(w, "organisation not found")
			return
		}
		s.logger.Error("get organization failed", "error", err)
		writeInternalError(w, "failed to get organisation")
		return
	}

	writeJSON(w, http.StatusOK, org)
}

// handleUpdateOrganization modifies an organisation's name or whitelist
// policy. Flipping whitelist_enforced on takes effect on the next login
// or handshake; existing sessions are untouched.
func (s *Server) handleUpdateOrganization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req updateOrganizationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	org, err := s.orgs.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, identity.ErrOrganizationNotFound) {
			writeNotFound(w, "organisation not found")
			return
		}
		s.logger.Error("get organization for update failed", "error", err)
		writeInternalError(w, "failed to update organisation")
		return
	}

	if req.Name != nil {
		org.Name = *req.Name
	}
	if req.WhitelistEnforced != nil {
		org.WhitelistEnforced = *req.WhitelistEnforced
	}

	if err := s.orgs.Update(r.Context(), org); err != nil {
		s.logger.Error("update organization failed", "error", err)
		writeInternalError(w, "failed to update organisation")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("organization updated", "org_id", id, "updated_by", c.AccountID)

	writeJSON(w, http.StatusOK, org)
}

// handleDeleteOrganization removes an organisation. Memberships and
// whitelist entries cascade via foreign keys.
func (s *Server) handleDeleteOrganization(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.orgs.Delete(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrOrganizationNotFound) {
			writeNotFound(w, "organisation not found")
			return
		}
		s.logger.Error("delete organization failed", "error", err)
		writeInternalError(w, "failed to delete organisation")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("organization deleted", "org_id", id, "deleted_by", c.AccountID)

	w.WriteHeader(http.StatusNoContent)
}

// ─── Member Handlers ───────────────────────────────────────────────

// handleListMembers returns an organisation's members.
func (s *Server) handleListMembers(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.orgs.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrOrganizationNotFound) {
			writeNotFound(w, "organisation not found")
			return
		}
		s.logger.Error("get organization for members failed", "error", err)
		writeInternalError(w, "failed to list members")
		return
	}

	members, err := s.orgs.ListMembers(r.Context(), id)
	if err != nil {
		s.logger.Error("list members failed", "error", err)
		writeInternalError(w, "failed to list members")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"members": members,
		"count":   len(members),
	})
}

// handleAddMember adds an account to an organisation. An account may
// belong to at most one organisation.
func (s *Server) handleAddMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.AccountID == "" {
		writeBadRequest(w, "account_id is required")
		return
	}
	if req.Role == "" {
		req.Role = identity.RoleMember
	}
	if !identity.IsValidMemberRole(req.Role) {
		writeBadRequest(w, "invalid role: must be member or admin")
		return
	}

	if _, err := s.orgs.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrOrganizationNotFound) {
			writeNotFound(w, "organisation not found")
			return
		}
		s.logger.Error("get organization for add member failed", "error", err)
		writeInternalError(w, "failed to add member")
		return
	}
	if _, err := s.accounts.GetByID(r.Context(), req.AccountID); err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			writeNotFound(w, "account not found")
			return
		}
		s.logger.Error("get account for add member failed", "error", err)
		writeInternalError(w, "failed to add member")
		return
	}

	if err := s.orgs.AddMember(r.Context(), id, req.AccountID, req.Role); err != nil {
		if errors.Is(err, identity.ErrMemberExists) {
			writeConflict(w, "account is already a member of an organisation")
			return
		}
		s.logger.Error("add member failed", "error", err)
		writeInternalError(w, "failed to add member")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("member added", "org_id", id, "account_id", req.AccountID, "role", req.Role, "added_by", c.AccountID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"organization_id": id,
		"account_id":      req.AccountID,
		"role":            req.Role,
	})
}

// handleRemoveMember removes an account from an organisation.
func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	accountID := chi.URLParam(r, "accountID")

	if err := s.orgs.RemoveMember(r.Context(), id, accountID); err != nil {
		if errors.Is(err, identity.ErrMemberNotFound) {
			writeNotFound(w, "member not found")
			return
		}
		s.logger.Error("remove member failed", "error", err)
		writeInternalError(w, "failed to remove member")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("member removed", "org_id", id, "account_id", accountID, "removed_by", c.AccountID)

	w.WriteHeader(http.StatusNoContent)
}

// ─── Whitelist Handlers ────────────────────────────────────────────

// handleListWhitelist returns the applications whitelisted for an organisation.
func (s *Server) handleListWhitelist(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if _, err := s.orgs.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrOrganizationNotFound) {
			writeNotFound(w, "organisation not found")
			return
		}
		s.logger.Error("get organization for whitelist failed", "error", err)
		writeInternalError(w, "failed to list whitelist")
		return
	}

	apps, err := s.orgs.ListWhitelistedApplications(r.Context(), id)
	if err != nil {
		s.logger.Error("list whitelist failed", "error", err)
		writeInternalError(w, "failed to list whitelist")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"applications": apps,
		"count":        len(apps),
	})
}

// handleWhitelistApplication adds an application to an organisation's
// whitelist. Whitelisting is idempotent from the client's perspective.
func (s *Server) handleWhitelistApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	applicationID := chi.URLParam(r, "applicationID")

	if _, err := s.orgs.GetByID(r.Context(), id); err != nil {
		if errors.Is(err, identity.ErrOrganizationNotFound) {
			writeNotFound(w, "organisation not found")
			return
		}
		s.logger.Error("get organization for whitelist add failed", "error", err)
		writeInternalError(w, "failed to whitelist application")
		return
	}
	if _, err := s.apps.GetByID(r.Context(), applicationID); err != nil {
		if errors.Is(err, identity.ErrApplicationNotFound) {
			writeNotFound(w, "application not found")
			return
		}
		s.logger.Error("get application for whitelist add failed", "error", err)
		writeInternalError(w, "failed to whitelist application")
		return
	}

	err := s.orgs.WhitelistApplication(r.Context(), id, applicationID)
	if err != nil && !errors.Is(err, identity.ErrAlreadyWhitelisted) {
		s.logger.Error("whitelist application failed", "error", err)
		writeInternalError(w, "failed to whitelist application")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("application whitelisted", "org_id", id, "application_id", applicationID, "whitelisted_by", c.AccountID)

	writeJSON(w, http.StatusOK, map[string]string{"status": "whitelisted"})
}

// handleUnwhitelistApplication removes an application from an
// organisation's whitelist. Members with open sessions through that
// application keep them; the policy bites on the next login or handshake.
func (s *Server) handleUnwhitelistApplication(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	applicationID := chi.URLParam(r, "applicationID")

	if err := s.orgs.UnwhitelistApplication(r.Context(), id, applicationID); err != nil {
		if errors.Is(err, identity.ErrApplicationNotFound) {
			writeNotFound(w, "application is not whitelisted")
			return
		}
		s.logger.Error("unwhitelist application failed", "error", err)
		writeInternalError(w, "failed to remove application from whitelist")
		return
	}

	c := callerFromContext(r.Context())
	s.logger.Info("application unwhitelisted", "org_id", id, "application_id", applicationID, "removed_by", c.AccountID)

	w.WriteHeader(http.StatusNoContent)
}
