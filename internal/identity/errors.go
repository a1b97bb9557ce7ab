package identity

import "errors"

// Sentinel errors for directory operations.
var (
	ErrAccountNotFound      = errors.New("account not found")
	ErrAccountDisabled      = errors.New("account is disabled")
	ErrUsernameExists       = errors.New("username already exists")
	ErrOrganizationNotFound = errors.New("organization not found")
	ErrMemberNotFound       = errors.New("organization member not found")
	ErrMemberExists         = errors.New("account is already a member")
	ErrApplicationNotFound  = errors.New("application not found")
	ErrAppKeyExists         = errors.New("application key already exists")
	ErrAlreadyWhitelisted   = errors.New("application already whitelisted")
)
