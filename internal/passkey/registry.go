package passkey

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/identity-core/internal/infrastructure/logging"
)

// Registry owns the set of in-flight handshake attempts. Attempts are
// keyed by normalised user key for fan-out and by requester topic for
// resolution; the underlying maps are never exposed.
//
// Finalize is the single mutation path for an attempt's status: the
// Pending check and the terminal write happen as one operation under
// the lock, so two racing resolutions (or a disconnect racing a
// decision) produce exactly one terminal transition.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	byUser  map[string][]*Attempt
	byTopic map[string]*Attempt

	ttl    time.Duration
	logger *logging.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// NewRegistry creates an attempt registry. ttl is the handshake window
// applied to every attempt at creation.
func NewRegistry(ttl time.Duration, logger *logging.Logger) *Registry {
	return &Registry{
		byUser:  make(map[string][]*Attempt),
		byTopic: make(map[string]*Attempt),
		ttl:     ttl,
		logger:  logger.With("component", "passkey.registry"),
		now:     time.Now,
	}
}

// Create allocates a new Pending attempt for userKey, addressable by
// requesterTopic. If the topic already owns an attempt (a reconnecting
// client reusing its connection) the old attempt is evicted first; a
// topic maps to at most one attempt at a time.
func (r *Registry) Create(userKey, requesterTopic string, app AppRef) *Attempt {
	now := r.now()
	attempt := &Attempt{
		RequesterTopic:   requesterTopic,
		UserKey:          NormalizeUserKey(userKey),
		ApplicationID:    app.ID,
		ApplicationKey:   app.Key,
		ApplicationName:  app.Name,
		ApplicationBadge: app.Badge,
		Status:           StatusPending,
		CreatedAt:        now,
		ExpiresAt:        now.Add(r.ttl),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.byTopic[requesterTopic]; ok {
		r.removeLocked(old)
	}
	r.byTopic[requesterTopic] = attempt
	r.byUser[attempt.UserKey] = append(r.byUser[attempt.UserKey], attempt)

	return snapshot(attempt)
}

// AppRef carries the application details captured into an attempt.
type AppRef struct {
	ID    string
	Key   string
	Name  string
	Badge string
}

// FindByTopic returns the attempt owned by requesterTopic, or nil if
// none exists or it belongs to a different user.
func (r *Registry) FindByTopic(userKey, requesterTopic string) *Attempt {
	r.mu.RLock()
	defer r.mu.RUnlock()

	attempt, ok := r.byTopic[requesterTopic]
	if !ok || attempt.UserKey != NormalizeUserKey(userKey) {
		return nil
	}
	return snapshot(attempt)
}

// Finalize applies an approver decision to a pending attempt as a
// compare-and-set. The returned attempt reflects the state after the
// call; changed reports whether this call performed the transition.
//
// Rules, in order:
//   - no attempt for (userKey, requesterTopic): returns (nil, false)
//   - already terminal: returns the existing attempt unchanged (the
//     racing caller observes the winner's status, not its own decision)
//   - now past ExpiresAt: the outcome is forced to Expired regardless
//     of the submitted decision, and no token can ever attach
//   - otherwise: the decision's status is written
func (r *Registry) Finalize(userKey, requesterTopic string, decision Decision, now time.Time) (attempt *Attempt, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byTopic[requesterTopic]
	if !ok || a.UserKey != NormalizeUserKey(userKey) {
		return nil, false
	}
	if a.Status.Terminal() {
		return snapshot(a), false
	}

	if a.Expired(now) {
		a.Status = StatusExpired
	} else {
		a.Status = decision.status()
	}
	return snapshot(a), true
}

// MarkOwnerDisconnected rejects the attempt owned by requesterTopic if
// it is still Pending. A terminal attempt is left untouched, and a
// topic with no attempt is a no-op: most disconnects do not correspond
// to a pending handshake.
func (r *Registry) MarkOwnerDisconnected(requesterTopic string, now time.Time) (attempt *Attempt, changed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byTopic[requesterTopic]
	if !ok || a.Status.Terminal() {
		return nil, false
	}

	if a.Expired(now) {
		a.Status = StatusExpired
	} else {
		a.Status = StatusRejected
	}
	return snapshot(a), true
}

// Demote overrides an Approved attempt to a failure status after the
// post-approval checks (token validation, organisation policy) did not
// pass. Only the caller that won the Finalize compare-and-set may hold
// an Approved attempt, so this never races another writer. Demoting an
// attempt in any other status is a no-op.
func (r *Registry) Demote(userKey, requesterTopic string, status Status) *Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byTopic[requesterTopic]
	if !ok || a.UserKey != NormalizeUserKey(userKey) {
		return nil
	}
	if a.Status == StatusApproved {
		a.Status = status
		a.Token = ""
	}
	return snapshot(a)
}

// AttachToken records the session token on an Approved attempt once
// the policy check has passed. No-op for any other status.
func (r *Registry) AttachToken(userKey, requesterTopic, token string) *Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.byTopic[requesterTopic]
	if !ok || a.UserKey != NormalizeUserKey(userKey) {
		return nil
	}
	if a.Status == StatusApproved {
		a.Token = token
	}
	return snapshot(a)
}

// Remove drops the attempt owned by requesterTopic, if any. Called
// once the terminal resolution has been delivered.
func (r *Registry) Remove(requesterTopic string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if a, ok := r.byTopic[requesterTopic]; ok {
		r.removeLocked(a)
	}
}

// Count returns the number of attempts currently held, across all users.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byTopic)
}

// Reap evicts every attempt past ExpiresAt plus grace, returning the
// number removed. Expiry is already enforced at resolution time; the
// reaper exists so abandoned attempts cannot accumulate forever.
func (r *Registry) Reap(grace time.Duration) int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var reaped int
	for _, a := range r.byTopic {
		if now.After(a.ExpiresAt.Add(grace)) {
			r.removeLocked(a)
			reaped++
		}
	}
	return reaped
}

// RunReaper sweeps expired attempts on a timer until ctx is cancelled.
// Run as a goroutine from startup wiring.
func (r *Registry) RunReaper(ctx context.Context, interval, grace time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Reap(grace); n > 0 {
				r.logger.Debug("reaped expired attempts", "count", n)
			}
		}
	}
}

// removeLocked unlinks an attempt from both indexes. Caller holds mu.
func (r *Registry) removeLocked(a *Attempt) {
	delete(r.byTopic, a.RequesterTopic)

	list := r.byUser[a.UserKey]
	for i, other := range list {
		if other == a {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(r.byUser, a.UserKey)
	} else {
		r.byUser[a.UserKey] = list
	}
}

// snapshot returns a copy so callers never hold a pointer into the
// registry's mutable state.
func snapshot(a *Attempt) *Attempt {
	cp := *a
	return &cp
}
