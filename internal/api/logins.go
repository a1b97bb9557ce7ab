package api

import (
	"net/http"
	"strconv"

	"github.com/nerrad567/identity-core/internal/audit"
)

// handleListLogins returns the login log, newest first, with optional
// filtering by account, application, and login type.
//
// Query parameters:
//   - account_id: filter by account
//   - application_id: filter by application
//   - type: credentials, token, or passkey
//   - limit, offset: pagination (default 50, max 200)
func (s *Server) handleListLogins(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		AccountID:     q.Get("account_id"),
		ApplicationID: q.Get("application_id"),
		LoginType:     q.Get("type"),
	}

	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.logins.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("list logins failed", "error", err)
		writeInternalError(w, "failed to list login logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
