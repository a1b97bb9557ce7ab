// Package influxdb provides InfluxDB connectivity for Identity Core.
//
// It wraps the official influxdb-client-go v2 library with Identity Core-specific
// patterns for connection management, metric writing, and health monitoring.
//
// # Purpose
//
// This package handles time-series data storage for:
//   - Passkey handshake outcomes and durations
//   - Login volume by type and result
//   - Ad-hoc service telemetry via WritePoint
//
// # Usage
//
//	cfg := config.InfluxDBConfig{
//	    URL:    "http://localhost:8086",
//	    Token:  "your-token",
//	    Org:    "identity",
//	    Bucket: "metrics",
//	}
//
//	client, err := influxdb.Connect(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Record a completed handshake
//	client.RecordHandshake(passkey.StatusApproved, elapsed)
//
// The Client satisfies passkey.MetricsRecorder and auth.LoginRelay, so it can
// be wired directly into the coordinator and login service.
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// The underlying write API uses non-blocking batched writes.
//
// # Error Handling
//
// Write operations are non-blocking and batch errors are logged via a callback.
// Connection and health check errors are returned directly. Writes against a
// disconnected client are silently dropped.
//
// # Performance
//
// Writes are batched according to config.yaml settings (batch_size, flush_interval).
// This reduces network overhead when login or handshake volume is high.
package influxdb
