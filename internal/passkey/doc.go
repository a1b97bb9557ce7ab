// Package passkey implements the cross-device passkey login handshake
// for Identity Core.
//
// A requesting device (a TV, a kiosk, a fresh browser) opens a pending
// login attempt for a user. The user's already-authenticated devices —
// approvers — are notified in real time; one of them approves or
// rejects. The result, gated by the organisation's application policy
// and a strict two-minute window, is delivered privately back to the
// requester, carrying a session token only when approved and
// authorised.
//
// # Architecture
//
//	┌───────────────────────────────────────────────────────────────┐
//	│                     HandshakeCoordinator                      │
//	│                      (coordinator.go)                         │
//	│                                                               │
//	│  BeginAttempt ── JoinApprover ── Resolve ── OnDisconnect      │
//	└───────┬──────────────────┬──────────────────────┬─────────────┘
//	        │                  │                      │
//	        ▼                  ▼                      ▼
//	┌───────────────┐  ┌───────────────┐  ┌───────────────────────┐
//	│   Registry    │  │  TopicBroker  │  │     IdentityGate      │
//	│ (registry.go) │  │  (broker.go)  │  │ (consumed interface)  │
//	│               │  │               │  │                       │
//	│ • attempts    │  │ • topics      │  │ • ValidateToken       │
//	│ • finalize    │  │ • fan-out     │  │ • CheckAppAuthorized  │
//	│ • reaper      │  │ • best-effort │  │                       │
//	└───────────────┘  └───────────────┘  └───────────────────────┘
//
// # Key Types
//
//   - Attempt: one in-flight or resolved handshake, addressed by its
//     requester topic and grouped by normalised user key
//   - Registry: thread-safe attempt store; Finalize is an atomic
//     compare-and-set, so racing resolutions cannot both win
//   - Broker / TopicBroker: topic → live-endpoint fan-out, best-effort
//   - Coordinator: the protocol state machine tying them together
//
// # Protocol
//
//	Pending ──▶ Approved | Rejected | Expired | BlockedByOrg | Failed
//
// All five right-hand statuses are terminal. Expiry is enforced at the
// moment of resolution — a decision arriving after the window closes
// becomes Expired no matter what the approver said — and a background
// reaper evicts abandoned attempts so memory cannot grow unbounded.
//
// # Thread Safety
//
// Registry and TopicBroker are safe for concurrent use with short
// internal critical sections. The Coordinator holds no locks of its
// own and never calls the IdentityGate while a registry or broker lock
// is held, because the gate may perform storage I/O.
package passkey
