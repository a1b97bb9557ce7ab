// Package mqtt publishes Identity Core lifecycle events to an MQTT broker.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publish-only event delivery with QoS guarantees
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// The event relay is optional observability: when enabled, the service
// announces itself on identity/system/status and emits passkey attempt
// lifecycle and login events for fleet monitoring. The service never
// consumes messages from the bus, so the client carries no
// subscription state.
//
//	Identity Core → MQTT Broker → monitoring consumers
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Payloads carry usernames and attempt statuses, never tokens
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	relay := mqtt.NewRelay(client, byte(cfg.MQTT.QoS))
//	// relay satisfies passkey.EventRelay and auth.LoginRelay
package mqtt
