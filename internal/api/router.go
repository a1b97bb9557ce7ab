package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required; they take credentials or tokens
		// in the request body)
		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/token-login", s.handleTokenLogin)
		r.Post("/auth/refresh", s.handleRefresh)
		r.Post("/auth/logout", s.handleLogout)

		// WebSocket (auth via single-use ticket in the query string;
		// browsers cannot set an Authorization header on the upgrade)
		r.Get("/ws", s.handleWebSocket)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// WS ticket requires authentication - caller must be logged in
			r.Post("/auth/ws-ticket", s.handleWSTicket)

			// Account endpoints
			r.Route("/accounts", func(r chi.Router) {
				r.Get("/", s.handleListAccounts)
				r.Post("/", s.handleCreateAccount)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetAccount)
					r.Patch("/", s.handleUpdateAccount)
					r.Delete("/", s.handleDeleteAccount)
					r.Put("/password", s.handleChangePassword)
					r.Get("/sessions", s.handleListAccountSessions)
					r.Delete("/sessions", s.handleRevokeAccountSessions)
				})
			})

			// Organisation endpoints
			r.Route("/organizations", func(r chi.Router) {
				r.Get("/", s.handleListOrganizations)
				r.Post("/", s.handleCreateOrganization)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetOrganization)
					r.Patch("/", s.handleUpdateOrganization)
					r.Delete("/", s.handleDeleteOrganization)

					r.Route("/members", func(r chi.Router) {
						r.Get("/", s.handleListMembers)
						r.Post("/", s.handleAddMember)
						r.Delete("/{accountID}", s.handleRemoveMember)
					})

					r.Route("/applications", func(r chi.Router) {
						r.Get("/", s.handleListWhitelist)
						r.Put("/{applicationID}", s.handleWhitelistApplication)
						r.Delete("/{applicationID}", s.handleUnwhitelistApplication)
					})
				})
			})

			// Application endpoints
			r.Route("/applications", func(r chi.Router) {
				r.Get("/", s.handleListApplications)
				r.Post("/", s.handleCreateApplication)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetApplication)
					r.Patch("/", s.handleUpdateApplication)
					r.Delete("/", s.handleDeleteApplication)
				})
			})

			// Login log endpoints
			r.Get("/logins", s.handleListLogins)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
