package passkey

import (
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/identity-core/internal/infrastructure/config"
	"github.com/nerrad567/identity-core/internal/infrastructure/logging"
)

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func testRegistry() *Registry {
	return NewRegistry(2*time.Minute, testLogger())
}

var testApp = AppRef{ID: "app-1", Key: "notes-key", Name: "Notes", Badge: "https://example.com/notes.png"}

func TestRegistry_Create(t *testing.T) {
	r := testRegistry()

	attempt := r.Create("Alice", "topic-1", testApp)

	if attempt.Status != StatusPending {
		t.Errorf("Status = %q, want %q", attempt.Status, StatusPending)
	}
	if attempt.UserKey != "alice" {
		t.Errorf("UserKey = %q, want normalised %q", attempt.UserKey, "alice")
	}
	if got := attempt.ExpiresAt.Sub(attempt.CreatedAt); got != 2*time.Minute {
		t.Errorf("expiry window = %v, want 2m", got)
	}
	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1", r.Count())
	}
}

func TestRegistry_Create_ReplacesTopicOwner(t *testing.T) {
	r := testRegistry()

	r.Create("alice", "topic-1", testApp)
	r.Create("alice", "topic-1", testApp)

	if r.Count() != 1 {
		t.Errorf("Count() = %d, want 1 (topic maps to one attempt)", r.Count())
	}
}

func TestRegistry_FindByTopic(t *testing.T) {
	r := testRegistry()
	r.Create("alice", "topic-1", testApp)

	if got := r.FindByTopic("ALICE", "topic-1"); got == nil {
		t.Error("FindByTopic() = nil for owning user (case-insensitive)")
	}
	if got := r.FindByTopic("bob", "topic-1"); got != nil {
		t.Error("FindByTopic() should not return another user's attempt")
	}
	if got := r.FindByTopic("alice", "topic-2"); got != nil {
		t.Error("FindByTopic() = non-nil for unknown topic")
	}
}

func TestRegistry_Finalize(t *testing.T) {
	r := testRegistry()
	attempt := r.Create("alice", "topic-1", testApp)

	got, changed := r.Finalize("alice", "topic-1", DecisionApproved, attempt.CreatedAt.Add(10*time.Second))
	if !changed {
		t.Fatal("Finalize() changed = false, want true")
	}
	if got.Status != StatusApproved {
		t.Errorf("Status = %q, want %q", got.Status, StatusApproved)
	}
}

func TestRegistry_Finalize_Idempotent(t *testing.T) {
	r := testRegistry()
	attempt := r.Create("alice", "topic-1", testApp)
	now := attempt.CreatedAt.Add(10 * time.Second)

	if _, changed := r.Finalize("alice", "topic-1", DecisionRejected, now); !changed {
		t.Fatal("first Finalize() should transition")
	}

	// Second resolution observes the first one's status,
	// not its own decision.
	got, changed := r.Finalize("alice", "topic-1", DecisionApproved, now)
	if changed {
		t.Error("second Finalize() changed = true, want false")
	}
	if got.Status != StatusRejected {
		t.Errorf("Status = %q, want %q (winner's status)", got.Status, StatusRejected)
	}
}

func TestRegistry_Finalize_ForcesExpiry(t *testing.T) {
	r := testRegistry()
	attempt := r.Create("alice", "topic-1", testApp)

	got, changed := r.Finalize("alice", "topic-1", DecisionApproved, attempt.CreatedAt.Add(130*time.Second))
	if !changed {
		t.Fatal("Finalize() changed = false, want true")
	}
	if got.Status != StatusExpired {
		t.Errorf("Status = %q, want %q despite Approved decision", got.Status, StatusExpired)
	}
	if got.Token != "" {
		t.Errorf("Token = %q, want empty on expiry", got.Token)
	}
}

func TestRegistry_Finalize_NotFound(t *testing.T) {
	r := testRegistry()

	if got, changed := r.Finalize("alice", "nope", DecisionApproved, time.Now()); got != nil || changed {
		t.Errorf("Finalize(unknown) = (%v, %v), want (nil, false)", got, changed)
	}
}

func TestRegistry_Finalize_ConcurrentSingleWinner(t *testing.T) {
	r := testRegistry()
	attempt := r.Create("alice", "topic-1", testApp)
	now := attempt.CreatedAt.Add(time.Second)

	const resolvers = 32
	var wg sync.WaitGroup
	wins := make(chan Status, resolvers)

	for i := 0; i < resolvers; i++ {
		decision := DecisionApproved
		if i%2 == 1 {
			decision = DecisionRejected
		}
		wg.Add(1)
		go func(d Decision) {
			defer wg.Done()
			if got, changed := r.Finalize("alice", "topic-1", d, now); changed {
				wins <- got.Status
			}
		}(decision)
	}
	wg.Wait()
	close(wins)

	var winners []Status
	for s := range wins {
		winners = append(winners, s)
	}
	if len(winners) != 1 {
		t.Fatalf("winners = %d, want exactly 1", len(winners))
	}

	final := r.FindByTopic("alice", "topic-1")
	if final.Status != winners[0] {
		t.Errorf("final status = %q, want winner's %q", final.Status, winners[0])
	}
}

func TestRegistry_MarkOwnerDisconnected(t *testing.T) {
	r := testRegistry()
	attempt := r.Create("alice", "topic-1", testApp)

	got, changed := r.MarkOwnerDisconnected("topic-1", attempt.CreatedAt.Add(time.Second))
	if !changed {
		t.Fatal("MarkOwnerDisconnected() changed = false, want true")
	}
	if got.Status != StatusRejected {
		t.Errorf("Status = %q, want %q", got.Status, StatusRejected)
	}
}

func TestRegistry_MarkOwnerDisconnected_TerminalUntouched(t *testing.T) {
	r := testRegistry()
	attempt := r.Create("alice", "topic-1", testApp)
	now := attempt.CreatedAt.Add(time.Second)

	r.Finalize("alice", "topic-1", DecisionApproved, now)

	if _, changed := r.MarkOwnerDisconnected("topic-1", now); changed {
		t.Error("MarkOwnerDisconnected() should not overwrite a terminal status")
	}
	if got := r.FindByTopic("alice", "topic-1"); got.Status != StatusApproved {
		t.Errorf("Status = %q, want %q", got.Status, StatusApproved)
	}
}

func TestRegistry_MarkOwnerDisconnected_NoAttempt(t *testing.T) {
	r := testRegistry()

	// Most disconnects have no pending attempt behind them.
	if _, changed := r.MarkOwnerDisconnected("topic-unknown", time.Now()); changed {
		t.Error("MarkOwnerDisconnected(unknown) changed = true, want false")
	}
}

func TestRegistry_IndependentAttemptsPerUser(t *testing.T) {
	r := testRegistry()
	a1 := r.Create("alice", "topic-1", testApp)
	r.Create("alice", "topic-2", testApp)
	now := a1.CreatedAt.Add(time.Second)

	r.Finalize("alice", "topic-1", DecisionApproved, now)

	if got := r.FindByTopic("alice", "topic-2"); got.Status != StatusPending {
		t.Errorf("sibling attempt status = %q, want %q", got.Status, StatusPending)
	}
}

func TestRegistry_Demote(t *testing.T) {
	r := testRegistry()
	attempt := r.Create("alice", "topic-1", testApp)
	now := attempt.CreatedAt.Add(time.Second)

	r.Finalize("alice", "topic-1", DecisionApproved, now)
	r.AttachToken("alice", "topic-1", "session-token")

	got := r.Demote("alice", "topic-1", StatusBlockedByOrg)
	if got.Status != StatusBlockedByOrg {
		t.Errorf("Status = %q, want %q", got.Status, StatusBlockedByOrg)
	}
	if got.Token != "" {
		t.Errorf("Token = %q, want cleared", got.Token)
	}

	// Demote only applies to Approved attempts.
	if got := r.Demote("alice", "topic-1", StatusFailed); got.Status != StatusBlockedByOrg {
		t.Errorf("second Demote() status = %q, want unchanged %q", got.Status, StatusBlockedByOrg)
	}
}

func TestRegistry_AttachToken_OnlyWhenApproved(t *testing.T) {
	r := testRegistry()
	attempt := r.Create("alice", "topic-1", testApp)
	now := attempt.CreatedAt.Add(time.Second)

	if got := r.AttachToken("alice", "topic-1", "early"); got.Token != "" {
		t.Errorf("Token = %q on pending attempt, want empty", got.Token)
	}

	r.Finalize("alice", "topic-1", DecisionApproved, now)
	if got := r.AttachToken("alice", "topic-1", "session-token"); got.Token != "session-token" {
		t.Errorf("Token = %q, want %q", got.Token, "session-token")
	}
}

func TestRegistry_Remove(t *testing.T) {
	r := testRegistry()
	r.Create("alice", "topic-1", testApp)

	r.Remove("topic-1")

	if r.Count() != 0 {
		t.Errorf("Count() = %d, want 0", r.Count())
	}
	if got := r.FindByTopic("alice", "topic-1"); got != nil {
		t.Error("FindByTopic() = non-nil after Remove")
	}
}

func TestRegistry_Reap(t *testing.T) {
	r := testRegistry()
	base := time.Now()
	r.now = func() time.Time { return base }

	r.Create("alice", "topic-old", testApp)

	// Fresh attempt created later stays within its window.
	r.now = func() time.Time { return base.Add(6 * time.Minute) }
	r.Create("alice", "topic-new", testApp)

	// topic-old is past ExpiresAt (base+2m) + grace (5m) at base+8m.
	r.now = func() time.Time { return base.Add(8 * time.Minute) }
	if reaped := r.Reap(5 * time.Minute); reaped != 1 {
		t.Errorf("Reap() = %d, want 1", reaped)
	}

	if got := r.FindByTopic("alice", "topic-old"); got != nil {
		t.Error("reaped attempt still findable")
	}
	if got := r.FindByTopic("alice", "topic-new"); got == nil {
		t.Error("live attempt was reaped")
	}
}

func TestRegistry_Reap_KeepsWithinGrace(t *testing.T) {
	r := testRegistry()
	base := time.Now()
	r.now = func() time.Time { return base }

	r.Create("alice", "topic-1", testApp)

	// Expired but inside the grace period: still resolvable to Expired
	// by a late decision, so the reaper leaves it alone.
	r.now = func() time.Time { return base.Add(4 * time.Minute) }
	if reaped := r.Reap(5 * time.Minute); reaped != 0 {
		t.Errorf("Reap() = %d, want 0", reaped)
	}
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	r := testRegistry()
	attempt := r.Create("alice", "topic-1", testApp)

	// Mutating the returned copy must not leak into the registry.
	attempt.Status = StatusApproved
	attempt.Token = "forged"

	got := r.FindByTopic("alice", "topic-1")
	if got.Status != StatusPending || got.Token != "" {
		t.Errorf("registry state = (%q, %q), want (%q, empty)", got.Status, got.Token, StatusPending)
	}
}
