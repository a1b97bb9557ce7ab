package auth

import (
	"context"
	"errors"

	"github.com/nerrad567/identity-core/internal/identity"
	"github.com/nerrad567/identity-core/internal/infrastructure/logging"
)

// Gate answers the two authorisation questions the passkey handshake
// asks: is this session token valid, and may this application be used
// by members of this organisation.
//
// Any internal fault (database error, unexpected state) is answered
// fail-closed: invalid token, application not authorised.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Gate struct {
	accounts  identity.AccountRepository
	orgs      identity.OrganizationRepository
	apps      identity.ApplicationRepository
	jwtSecret string
	logger    *logging.Logger
}

// NewGate creates an identity gate backed by the directory repositories.
func NewGate(accounts identity.AccountRepository, orgs identity.OrganizationRepository, apps identity.ApplicationRepository, jwtSecret string, logger *logging.Logger) *Gate {
	return &Gate{
		accounts:  accounts,
		orgs:      orgs,
		apps:      apps,
		jwtSecret: jwtSecret,
		logger:    logger.With("component", "gate"),
	}
}

// ValidateToken checks a session token and, when valid, returns the
// account ID, username, and organisation ID it is bound to. The
// account must still exist and be active; a token for a deleted or
// disabled account is invalid regardless of its signature.
func (g *Gate) ValidateToken(ctx context.Context, token string) (valid bool, accountID, username, orgID string) {
	claims, err := ParseToken(token, g.jwtSecret)
	if err != nil {
		return false, "", "", ""
	}

	account, err := g.accounts.GetByID(ctx, claims.Subject)
	if err != nil {
		if !errors.Is(err, identity.ErrAccountNotFound) {
			g.logger.Error("validating token", "error", err)
		}
		return false, "", "", ""
	}
	if account.Status != identity.StatusActive {
		return false, "", "", ""
	}

	return true, account.ID, account.Username, claims.OrgID
}

// CheckAppAuthorized reports whether an application, identified by its
// app key, may be used within the given organisation. An empty orgID
// means no organisation policy applies; only the application's own
// state is checked.
func (g *Gate) CheckAppAuthorized(ctx context.Context, applicationKey, orgID string) bool {
	app, err := g.apps.GetByKey(ctx, applicationKey)
	if err != nil {
		if !errors.Is(err, identity.ErrApplicationNotFound) {
			g.logger.Error("resolving application", "error", err)
		}
		return false
	}
	if !app.IsActive {
		return false
	}

	if orgID == "" {
		return true
	}

	org, err := g.orgs.GetByID(ctx, orgID)
	if err != nil {
		if !errors.Is(err, identity.ErrOrganizationNotFound) {
			g.logger.Error("resolving organization", "error", err)
		}
		return false
	}
	if !org.WhitelistEnforced {
		return true
	}

	allowed, err := g.orgs.IsApplicationWhitelisted(ctx, orgID, app.ID)
	if err != nil {
		g.logger.Error("checking whitelist", "error", err)
		return false
	}
	return allowed
}
