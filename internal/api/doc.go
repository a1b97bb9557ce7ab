// Package api implements the HTTP REST API and WebSocket server for Identity Core.
//
// This package provides:
//   - REST endpoints for account, organisation, and application management
//   - Authentication endpoints (credential login, token login, refresh, logout)
//   - WebSocket hub carrying the cross-device passkey handshake
//   - JWT authentication with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between client applications and the directory
// repositories, the auth service, and the passkey coordinator:
//
//	client app ──HTTP──▶ router ──▶ auth.Service / repositories
//	client app ──WS────▶ hub ─────▶ passkey.Coordinator ──▶ broker ──▶ hub
//
// REST requests are stateless; each WebSocket connection is a passkey
// endpoint that the coordinator publishes handshake events to.
//
// # Security
//
// REST endpoints under the protected group require a Bearer access token,
// validated against the directory on every request (disabled accounts are
// cut off immediately). WebSocket connections authenticate with single-use
// tickets to keep tokens out of URLs; handshake messages carry their own
// token where the protocol requires one.
//
// # Graceful Degradation
//
// The server operates without the MQTT relay and InfluxDB sink — those are
// observability-only and wired in at composition time.
package api
