package mqtt

import (
	"testing"
	"time"

	"github.com/nerrad567/identity-core/internal/passkey"
)

// TestRelay_NonBlocking verifies event methods return immediately even
// when the broker is unreachable: publishing happens on a background
// goroutine and failures are dropped.
func TestRelay_NonBlocking(t *testing.T) {
	relay := NewRelay(&Client{}, 1)

	done := make(chan struct{})
	go func() {
		relay.AttemptCreated("alice", "notes-key")
		relay.AttemptResolved("alice", passkey.StatusApproved)
		relay.LoginRecorded("alice", "credentials", true)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("relay methods blocked")
	}
}
