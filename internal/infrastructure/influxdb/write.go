package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/identity-core/internal/passkey"
)

// RecordHandshake writes a passkey handshake outcome measurement. It
// satisfies passkey.MetricsRecorder; the coordinator calls it once per
// resolved attempt.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Parameters:
//   - status: Terminal status of the attempt (approved, rejected, ...)
//   - elapsed: Time from attempt creation to resolution
func (c *Client) RecordHandshake(status passkey.Status, elapsed time.Duration) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"passkey_handshake",
		map[string]string{
			"status": string(status),
		},
		map[string]interface{}{
			"count":       1,
			"duration_ms": float64(elapsed.Milliseconds()),
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// LoginRecorded writes a login event measurement. It satisfies
// auth.LoginRelay, so it can be wired straight into the auth service.
//
// Usernames are tagged for per-account dashboards; tokens and
// passwords never reach the metrics store.
//
// Parameters:
//   - username: Account username
//   - loginType: credentials, token, or passkey
//   - succeeded: Whether the login was accepted
func (c *Client) LoginRecorded(username, loginType string, succeeded bool) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"login",
		map[string]string{
			"username":  username,
			"type":      loginType,
			"succeeded": boolTag(succeeded),
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "identity-01"},
//	    map[string]interface{}{"goroutines": 42, "attempts_open": 3})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

func boolTag(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
