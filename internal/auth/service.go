package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/identity-core/internal/audit"
	"github.com/nerrad567/identity-core/internal/identity"
	"github.com/nerrad567/identity-core/internal/infrastructure/logging"
)

// LoginRelay receives login event notifications for external
// monitoring. Implementations must not block.
type LoginRelay interface {
	LoginRecorded(username, loginType string, succeeded bool)
}

// Service implements the authentication flows: credential login, token
// login, refresh token rotation, and logout.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Service struct {
	accounts identity.AccountRepository
	orgs     identity.OrganizationRepository
	apps     identity.ApplicationRepository
	tokens   TokenRepository
	logins   audit.Repository
	relay    LoginRelay // optional
	logger   *logging.Logger

	jwtSecret       string
	accessTokenTTL  int // minutes
	refreshTokenTTL int // minutes
}

// ServiceConfig bundles the dependencies for NewService.
type ServiceConfig struct {
	Accounts identity.AccountRepository
	Orgs     identity.OrganizationRepository
	Apps     identity.ApplicationRepository
	Tokens   TokenRepository
	Logins   audit.Repository
	Relay    LoginRelay
	Logger   *logging.Logger

	JWTSecret       string
	AccessTokenTTL  int
	RefreshTokenTTL int
}

// NewService creates an authentication service.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		accounts:        cfg.Accounts,
		orgs:            cfg.Orgs,
		apps:            cfg.Apps,
		tokens:          cfg.Tokens,
		logins:          cfg.Logins,
		relay:           cfg.Relay,
		logger:          cfg.Logger.With("component", "auth"),
		jwtSecret:       cfg.JWTSecret,
		accessTokenTTL:  cfg.AccessTokenTTL,
		refreshTokenTTL: cfg.RefreshTokenTTL,
	}
}

// LoginWithCredentials authenticates a username/password pair on behalf
// of a registered application.
//
// The flow is:
//  1. Resolve and check the application (must exist and be active)
//  2. Resolve the account (case-insensitive username)
//  3. Check account status and verify the password
//  4. Enforce the organisation's application whitelist, if any
//  5. Issue an access token and a refresh token, and record the login
//
// Account-not-found and wrong-password both return ErrInvalidCredentials
// so callers cannot probe for valid usernames.
func (s *Service) LoginWithCredentials(ctx context.Context, username, password, appKey, deviceInfo string) (*Session, error) {
	app, err := s.resolveApplication(ctx, appKey)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if account.Status != identity.StatusActive {
		return nil, ErrAccountDisabled
	}

	ok, err := VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verifying password: %w", err)
	}
	if !ok {
		s.recordLogin(ctx, account, app.ID, audit.LoginTypeCredentials, false, "wrong password")
		return nil, ErrInvalidCredentials
	}

	orgID, err := s.enforceWhitelist(ctx, account.ID, app.ID)
	if err != nil {
		if errors.Is(err, ErrAppNotAuthorized) {
			s.recordLogin(ctx, account, app.ID, audit.LoginTypeCredentials, false, "application not whitelisted")
		}
		return nil, err
	}

	session, err := s.issueSession(ctx, account, orgID, deviceInfo)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, account, app.ID, audit.LoginTypeCredentials, true, "")
	return session, nil
}

// LoginWithToken re-authenticates an existing access token on behalf of
// an application, returning a fresh session without touching the
// refresh token store. Used by clients restoring state on startup.
func (s *Service) LoginWithToken(ctx context.Context, token, appKey string) (*Session, error) {
	app, err := s.resolveApplication(ctx, appKey)
	if err != nil {
		return nil, err
	}

	claims, err := ParseToken(token, s.jwtSecret)
	if err != nil {
		return nil, err
	}

	account, err := s.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, identity.ErrAccountNotFound) {
			return nil, ErrTokenInvalid
		}
		return nil, fmt.Errorf("looking up account: %w", err)
	}

	if account.Status != identity.StatusActive {
		return nil, ErrAccountDisabled
	}

	orgID, err := s.enforceWhitelist(ctx, account.ID, app.ID)
	if err != nil {
		return nil, err
	}

	access, err := GenerateAccessToken(account, orgID, s.jwtSecret, s.accessTokenTTL)
	if err != nil {
		return nil, err
	}

	s.recordLogin(ctx, account, app.ID, audit.LoginTypeToken, true, "")

	return &Session{
		AccountID:   account.ID,
		Username:    account.Username,
		DisplayName: account.DisplayName,
		OrgID:       orgID,
		AccessToken: access,
		ExpiresAt:   time.Now().Add(time.Duration(s.accessTokenTTL) * time.Minute),
	}, nil
}

// Refresh rotates a refresh token and issues a new access token.
// Reuse of a revoked token revokes the whole family (theft detection).
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*Session, error) {
	stored, err := s.tokens.GetByTokenHash(ctx, HashToken(rawRefresh))
	if err != nil {
		return nil, err
	}

	if stored.Revoked {
		// A revoked token was presented: assume the family is compromised.
		if err := s.tokens.RevokeFamily(ctx, stored.FamilyID); err != nil {
			s.logger.Error("revoking token family", "error", err)
		}
		return nil, ErrTokenReuse
	}

	if time.Now().After(stored.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	account, err := s.accounts.GetByID(ctx, stored.AccountID)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if account.Status != identity.StatusActive {
		return nil, ErrAccountDisabled
	}

	orgID := s.membershipOrg(ctx, account.ID)

	rawNew, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	newToken := &RefreshToken{
		AccountID:  account.ID,
		FamilyID:   stored.FamilyID,
		TokenHash:  HashToken(rawNew),
		DeviceInfo: stored.DeviceInfo,
		ExpiresAt:  time.Now().Add(time.Duration(s.refreshTokenTTL) * time.Minute),
	}
	if err := s.tokens.RotateRefreshToken(ctx, stored.ID, newToken); err != nil {
		return nil, err
	}

	access, err := GenerateAccessToken(account, orgID, s.jwtSecret, s.accessTokenTTL)
	if err != nil {
		return nil, err
	}

	return &Session{
		AccountID:    account.ID,
		Username:     account.Username,
		DisplayName:  account.DisplayName,
		OrgID:        orgID,
		AccessToken:  access,
		RefreshToken: rawNew,
		ExpiresAt:    time.Now().Add(time.Duration(s.accessTokenTTL) * time.Minute),
	}, nil
}

// Logout revokes a refresh token. Revoking an already-revoked or
// unknown token is not an error from the client's perspective.
func (s *Service) Logout(ctx context.Context, rawRefresh string) error {
	stored, err := s.tokens.GetByTokenHash(ctx, HashToken(rawRefresh))
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return nil
		}
		return err
	}
	return s.tokens.Revoke(ctx, stored.ID)
}

// resolveApplication looks up an application by key and checks it is active.
func (s *Service) resolveApplication(ctx context.Context, appKey string) (*identity.Application, error) {
	app, err := s.apps.GetByKey(ctx, appKey)
	if err != nil {
		if errors.Is(err, identity.ErrApplicationNotFound) {
			return nil, ErrAppUnknown
		}
		return nil, fmt.Errorf("looking up application: %w", err)
	}
	if !app.IsActive {
		return nil, ErrAppInactive
	}
	return app, nil
}

// enforceWhitelist returns the account's organisation ID (empty if
// none) after checking the organisation's application whitelist.
// Returns ErrAppNotAuthorized when the organisation enforces a
// whitelist that does not include the application.
func (s *Service) enforceWhitelist(ctx context.Context, accountID, applicationID string) (string, error) {
	member, err := s.orgs.GetMembership(ctx, accountID)
	if err != nil {
		if errors.Is(err, identity.ErrMemberNotFound) {
			return "", nil // no organisation, no policy
		}
		return "", fmt.Errorf("looking up membership: %w", err)
	}

	org, err := s.orgs.GetByID(ctx, member.OrganizationID)
	if err != nil {
		return "", fmt.Errorf("looking up organization: %w", err)
	}

	if !org.WhitelistEnforced {
		return org.ID, nil
	}

	allowed, err := s.orgs.IsApplicationWhitelisted(ctx, org.ID, applicationID)
	if err != nil {
		return "", fmt.Errorf("checking whitelist: %w", err)
	}
	if !allowed {
		return "", ErrAppNotAuthorized
	}
	return org.ID, nil
}

// membershipOrg returns the account's organisation ID, or empty string
// if the account belongs to no organisation or the lookup fails.
func (s *Service) membershipOrg(ctx context.Context, accountID string) string {
	member, err := s.orgs.GetMembership(ctx, accountID)
	if err != nil {
		return ""
	}
	return member.OrganizationID
}

// issueSession creates the access/refresh token pair for an account.
func (s *Service) issueSession(ctx context.Context, account *identity.Account, orgID, deviceInfo string) (*Session, error) {
	access, err := GenerateAccessToken(account, orgID, s.jwtSecret, s.accessTokenTTL)
	if err != nil {
		return nil, err
	}

	rawRefresh, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	token := &RefreshToken{
		AccountID:  account.ID,
		TokenHash:  HashToken(rawRefresh),
		DeviceInfo: deviceInfo,
		ExpiresAt:  time.Now().Add(time.Duration(s.refreshTokenTTL) * time.Minute),
	}
	if err := s.tokens.Create(ctx, token); err != nil {
		return nil, err
	}

	return &Session{
		AccountID:    account.ID,
		Username:     account.Username,
		DisplayName:  account.DisplayName,
		OrgID:        orgID,
		AccessToken:  access,
		RefreshToken: rawRefresh,
		ExpiresAt:    time.Now().Add(time.Duration(s.accessTokenTTL) * time.Minute),
	}, nil
}

// recordLogin writes a login log entry and notifies the optional
// relay. Logging failures are reported but never fail the
// authentication flow.
func (s *Service) recordLogin(ctx context.Context, account *identity.Account, applicationID, loginType string, succeeded bool, detail string) {
	err := s.logins.Create(ctx, &audit.LoginLog{
		AccountID:     account.ID,
		ApplicationID: applicationID,
		LoginType:     loginType,
		Succeeded:     succeeded,
		Detail:        detail,
	})
	if err != nil {
		s.logger.Error("recording login", "error", err)
	}

	if s.relay != nil {
		s.relay.LoginRecorded(account.Username, loginType, succeeded)
	}
}
