package mqtt

import "fmt"

// Topic prefixes for Identity Core publications.
//
// All topics use the flat scheme: identity/{category}/{event}
const (
	// TopicPrefix is the base for all Identity Core topics.
	TopicPrefix = "identity"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "identity/system"

	// TopicPrefixPasskey is the base for passkey handshake lifecycle topics.
	TopicPrefixPasskey = "identity/passkey"

	// TopicPrefixAuth is the base for authentication event topics.
	TopicPrefixAuth = "identity/auth"
)

// Topics provides builders for Identity Core MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topics.PasskeyResolved() // "identity/passkey/resolved"
type Topics struct{}

// SystemStatus returns the topic for service online/offline status.
// Retained; also used as the LWT topic.
//
// Example: identity/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// PasskeyCreated returns the topic for new handshake attempts.
//
// Example: identity/passkey/created
func (Topics) PasskeyCreated() string {
	return fmt.Sprintf("%s/created", TopicPrefixPasskey)
}

// PasskeyResolved returns the topic for resolved handshake attempts.
//
// Example: identity/passkey/resolved
func (Topics) PasskeyResolved() string {
	return fmt.Sprintf("%s/resolved", TopicPrefixPasskey)
}

// AuthLogin returns the topic for login events.
//
// Example: identity/auth/login
func (Topics) AuthLogin() string {
	return fmt.Sprintf("%s/login", TopicPrefixAuth)
}
