package auth

import (
	"errors"
	"time"
)

// RefreshToken represents a stored refresh token for session management.
// Raw tokens are never stored — only their SHA-256 hashes.
type RefreshToken struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"account_id"`
	FamilyID   string    `json:"family_id"`
	TokenHash  string    `json:"-"` // never serialised
	DeviceInfo string    `json:"device_info,omitempty"`
	ExpiresAt  time.Time `json:"expires_at"`
	Revoked    bool      `json:"revoked"`
	CreatedAt  time.Time `json:"created_at"`
}

// Session describes an authenticated session issued by the service.
type Session struct {
	AccountID    string    `json:"account_id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	OrgID        string    `json:"org_id,omitempty"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = errors.New("account is disabled")
	ErrAppUnknown         = errors.New("unknown application")
	ErrAppInactive        = errors.New("application is inactive")
	ErrAppNotAuthorized   = errors.New("application not authorised for organization")
	ErrTokenExpired       = errors.New("token has expired")
	ErrTokenRevoked       = errors.New("token has been revoked")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrTokenReuse         = errors.New("refresh token reuse detected")
	ErrForbidden          = errors.New("insufficient permissions")
)
