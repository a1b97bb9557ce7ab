// Package identity provides the directory layer of Identity Core:
// accounts, organisations, organisation membership, and registered
// client applications.
//
// This package manages:
//   - Account persistence and lifecycle (active/disabled)
//   - Organisations with member roles (member, admin)
//   - Application registration keyed by opaque app keys
//   - Per-organisation application whitelists
//
// Authorisation decisions built on this data (token validation,
// whitelist enforcement during login and passkey handshakes) live in
// the auth package; this package is persistence and invariants only.
//
// Thread Safety:
//   - All repositories are safe for concurrent use. SQLite serialises
//     writes; reads run concurrently under WAL mode.
package identity
