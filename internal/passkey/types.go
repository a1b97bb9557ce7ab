package passkey

import (
	"strings"
	"time"
)

// Status is the lifecycle state of a handshake attempt. An attempt
// starts Pending and moves to exactly one terminal status.
type Status string

const (
	// StatusPending attempts are awaiting an approver decision.
	StatusPending Status = "pending"

	// StatusApproved attempts were accepted by an approver and passed
	// the organisation's application policy.
	StatusApproved Status = "approved"

	// StatusRejected attempts were declined by an approver, or their
	// requester disconnected before a decision arrived.
	StatusRejected Status = "rejected"

	// StatusExpired attempts outlived the handshake window. Any
	// decision submitted after expiry is forced to this status.
	StatusExpired Status = "expired"

	// StatusBlockedByOrg attempts were approved but the application is
	// not whitelisted for the account's organisation.
	StatusBlockedByOrg Status = "blocked_by_org"

	// StatusFailed attempts were approved with a session token that
	// did not validate. The requester is told explicitly rather than
	// being left to time out.
	StatusFailed Status = "failed"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Decision is what an approver submits for a pending attempt.
type Decision string

const (
	DecisionApproved Decision = "approved"
	DecisionRejected Decision = "rejected"
)

// IsValid reports whether the decision is one an approver may submit.
func (d Decision) IsValid() bool {
	return d == DecisionApproved || d == DecisionRejected
}

// status maps a decision to the attempt status it produces.
func (d Decision) status() Status {
	if d == DecisionApproved {
		return StatusApproved
	}
	return StatusRejected
}

// Outcome classifies what a coordinator operation did, so callers and
// tests can tell the branches apart. The wire surface stays fail-closed
// regardless: a prober learns nothing from a NotFound or Invalid.
type Outcome string

const (
	// OutcomeOK means the operation ran to completion.
	OutcomeOK Outcome = "ok"

	// OutcomeNotFound means no matching pending attempt existed. This
	// covers both never-existed and already-resolved.
	OutcomeNotFound Outcome = "not_found"

	// OutcomeDenied means organisation policy refused the application.
	OutcomeDenied Outcome = "denied"

	// OutcomeInvalid means a presented credential or reference did not
	// check out (unknown application, bad session token).
	OutcomeInvalid Outcome = "invalid"
)

// Attempt is one in-flight or resolved handshake. Attempts are
// volatile, process-local state; they do not survive a restart.
type Attempt struct {
	// RequesterTopic addresses the requesting connection. Unique per
	// attempt; the terminal resolution is delivered here privately.
	RequesterTopic string

	// UserKey is the normalised identity the attempt belongs to.
	UserKey string

	// Application details captured at creation for the approver prompt.
	ApplicationID    string
	ApplicationKey   string
	ApplicationName  string
	ApplicationBadge string

	Status Status

	// Token is populated only when Status is Approved and the
	// organisation policy check passed.
	Token string

	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the attempt's handshake window has closed.
func (a *Attempt) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt)
}

// NormalizeUserKey canonicalises a user identity for registry and
// topic addressing: trimmed and lowercased, so "Alice" and "alice "
// share one approver topic and one attempt list.
func NormalizeUserKey(user string) string {
	return strings.ToLower(strings.TrimSpace(user))
}

// Event is a message published through the ConnectionBroker.
type Event interface {
	// EventType is the wire message type the transport sends this as.
	EventType() string
}

// NewIntentEvent notifies a user's approver devices that a login
// attempt is waiting for a decision.
type NewIntentEvent struct {
	ApplicationName  string    `json:"application_name"`
	ApplicationBadge string    `json:"application_badge,omitempty"`
	User             string    `json:"user"`
	RequesterTopic   string    `json:"requester_topic"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// EventType implements Event.
func (NewIntentEvent) EventType() string { return "new_intent" }

// ResolutionEvent delivers an attempt's terminal status to its
// requester. Token is empty unless the attempt was approved and
// authorised.
type ResolutionEvent struct {
	Status Status `json:"status"`
	Token  string `json:"token,omitempty"`
}

// EventType implements Event.
func (ResolutionEvent) EventType() string { return "resolution" }
