// Package auth provides authentication for Identity Core.
//
// It implements the service's credential flows with:
//   - Argon2id password hashing (OWASP 2025 recommendation)
//   - JWT access tokens (HS256) carrying account and organisation claims
//   - Refresh token rotation with family-based theft detection
//   - Token login for clients restoring a session on startup
//   - Organisation application whitelists enforced at every login path
//
// The Gate type exposes the narrow authorisation surface the passkey
// handshake depends on: token validation and application-whitelist
// checks. It fails closed on any internal fault.
package auth
