package identity

import (
	"regexp"
	"time"
)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// maxUsernameLength is the maximum allowed username length.
const maxUsernameLength = 64

// IsValidUsername checks if a username meets format requirements.
// Usernames must be 1-64 characters, alphanumeric with dots, hyphens, underscores.
func IsValidUsername(username string) bool {
	return len(username) <= maxUsernameLength && usernamePattern.MatchString(username)
}

// AccountStatus represents the lifecycle state of an account.
type AccountStatus string

const (
	// StatusActive accounts may sign in and approve passkey handshakes.
	StatusActive AccountStatus = "active"

	// StatusDisabled accounts are refused at every authentication path.
	StatusDisabled AccountStatus = "disabled"
)

// IsValidAccountStatus returns true for a recognised account status.
func IsValidAccountStatus(s AccountStatus) bool {
	return s == StatusActive || s == StatusDisabled
}

// Account represents a human identity known to the service.
type Account struct {
	ID           string        `json:"id"`
	Username     string        `json:"username"`
	DisplayName  string        `json:"display_name"`
	BadgeURL     string        `json:"badge_url,omitempty"`
	PasswordHash string        `json:"-"` // never serialised
	Status       AccountStatus `json:"status"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// MemberRole represents an account's role within an organisation.
type MemberRole string

const (
	// RoleMember is a regular organisation member.
	RoleMember MemberRole = "member"

	// RoleAdmin may manage the organisation's members and
	// application whitelist.
	RoleAdmin MemberRole = "admin"
)

// IsValidMemberRole returns true for a recognised membership role.
func IsValidMemberRole(r MemberRole) bool {
	return r == RoleMember || r == RoleAdmin
}

// Organization groups accounts under a shared security policy.
type Organization struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	// WhitelistEnforced restricts members to signing in only through
	// applications listed in the organisation's whitelist.
	WhitelistEnforced bool `json:"whitelist_enforced"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Member represents an account's membership in an organisation.
type Member struct {
	OrganizationID string     `json:"organization_id"`
	AccountID      string     `json:"account_id"`
	Role           MemberRole `json:"role"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Application represents a registered client application. Clients
// identify themselves with the opaque AppKey on login and passkey
// handshake requests.
type Application struct {
	ID        string    `json:"id"`
	AppKey    string    `json:"app_key"`
	Name      string    `json:"name"`
	BadgeURL  string    `json:"badge_url,omitempty"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
