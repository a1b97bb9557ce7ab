package mqtt

import (
	"encoding/json"
	"time"

	"github.com/nerrad567/identity-core/internal/passkey"
)

// Relay publishes passkey handshake lifecycle events to the MQTT
// broker for fleet monitoring. It satisfies passkey.EventRelay.
//
// Publishing happens on a separate goroutine per event so the
// handshake path never blocks on broker acknowledgement; failures are
// logged through the client's logger and otherwise dropped — the bus
// is observability, not a source of truth.
type Relay struct {
	client *Client
	qos    byte
}

// NewRelay creates a relay over an established client.
func NewRelay(client *Client, qos byte) *Relay {
	return &Relay{client: client, qos: qos}
}

// AttemptCreated implements passkey.EventRelay.
func (r *Relay) AttemptCreated(userKey, applicationKey string) {
	r.publish(Topics{}.PasskeyCreated(), attemptCreatedPayload(userKey, applicationKey, time.Now()))
}

// AttemptResolved implements passkey.EventRelay.
func (r *Relay) AttemptResolved(userKey string, status passkey.Status) {
	r.publish(Topics{}.PasskeyResolved(), attemptResolvedPayload(userKey, status, time.Now()))
}

// LoginRecorded publishes a login event (credential, token, or passkey).
func (r *Relay) LoginRecorded(username, loginType string, succeeded bool) {
	r.publish(Topics{}.AuthLogin(), loginPayload(username, loginType, succeeded, time.Now()))
}

func (r *Relay) publish(topic string, payload []byte) {
	go func() {
		if err := r.client.Publish(topic, payload, r.qos, false); err != nil {
			if logger := r.client.getLogger(); logger != nil {
				logger.Warn("event relay publish failed", "topic", topic, "error", err)
			}
		}
	}()
}

func attemptCreatedPayload(userKey, applicationKey string, now time.Time) []byte {
	b, _ := json.Marshal(map[string]any{ //nolint:errcheck // map of strings cannot fail to marshal
		"user":            userKey,
		"application_key": applicationKey,
		"timestamp":       now.UTC().Format(time.RFC3339),
	})
	return b
}

func attemptResolvedPayload(userKey string, status passkey.Status, now time.Time) []byte {
	b, _ := json.Marshal(map[string]any{ //nolint:errcheck // map of strings cannot fail to marshal
		"user":      userKey,
		"status":    string(status),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
	return b
}

func loginPayload(username, loginType string, succeeded bool, now time.Time) []byte {
	b, _ := json.Marshal(map[string]any{ //nolint:errcheck // flat map cannot fail to marshal
		"username":  username,
		"type":      loginType,
		"succeeded": succeeded,
		"timestamp": now.UTC().Format(time.RFC3339),
	})
	return b
}
