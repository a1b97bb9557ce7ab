package passkey

import (
	"context"
	"errors"
	"time"

	"github.com/nerrad567/identity-core/internal/identity"
	"github.com/nerrad567/identity-core/internal/infrastructure/logging"
)

// IdentityGate is the external authority the coordinator consults
// before releasing a session token to a requester. Both answers must
// be fail-closed: an internal fault reads as invalid / not authorised.
type IdentityGate interface {
	// ValidateToken checks a session token and returns the identity it
	// is bound to.
	ValidateToken(ctx context.Context, token string) (valid bool, accountID, username, orgID string)

	// CheckAppAuthorized reports whether the application may be used
	// within the organisation. Empty orgID means no policy applies.
	CheckAppAuthorized(ctx context.Context, applicationKey, orgID string) bool
}

// ApplicationLookup resolves an application key to its directory
// record. Satisfied by identity.ApplicationRepository.
type ApplicationLookup interface {
	GetByKey(ctx context.Context, key string) (*identity.Application, error)
}

// EventRelay receives attempt lifecycle notifications for external
// monitoring. Implementations must not block.
type EventRelay interface {
	AttemptCreated(userKey, applicationKey string)
	AttemptResolved(userKey string, status Status)
}

// MetricsRecorder receives handshake outcome measurements.
type MetricsRecorder interface {
	RecordHandshake(status Status, elapsed time.Duration)
}

// Coordinator orchestrates the cross-device handshake: attempt
// creation, fan-out to approver devices, decision intake, expiry
// enforcement, policy gating, and private delivery of the result.
//
// Locking discipline: the coordinator itself holds no locks. All
// shared state lives in the Registry and Broker, whose critical
// sections never span an IdentityGate call — the gate may perform
// storage or network I/O.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
type Coordinator struct {
	registry *Registry
	broker   Broker
	gate     IdentityGate
	apps     ApplicationLookup
	relay    EventRelay      // optional
	metrics  MetricsRecorder // optional
	logger   *logging.Logger

	// now is replaceable in tests.
	now func() time.Time
}

// CoordinatorConfig bundles the dependencies for NewCoordinator.
// Relay and Metrics are optional.
type CoordinatorConfig struct {
	Registry *Registry
	Broker   Broker
	Gate     IdentityGate
	Apps     ApplicationLookup
	Relay    EventRelay
	Metrics  MetricsRecorder
	Logger   *logging.Logger
}

// NewCoordinator creates a handshake coordinator.
func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	return &Coordinator{
		registry: cfg.Registry,
		broker:   cfg.Broker,
		gate:     cfg.Gate,
		apps:     cfg.Apps,
		relay:    cfg.Relay,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger.With("component", "passkey.coordinator"),
		now:      time.Now,
	}
}

// BeginAttempt opens a pending attempt for user on behalf of the
// application identified by applicationKey, subscribes the requesting
// endpoint to its private topic, and notifies the user's approver
// devices.
//
// An unknown or inactive application key aborts the operation without
// creating anything and without telling the requester why: an
// unauthenticated prober learns nothing about which keys exist. The
// returned Outcome lets the transport layer log the branch.
func (c *Coordinator) BeginAttempt(ctx context.Context, user, applicationKey, requesterTopic string, requester Endpoint) Outcome {
	app, err := c.apps.GetByKey(ctx, applicationKey)
	if err != nil {
		if !errors.Is(err, identity.ErrApplicationNotFound) {
			c.logger.Error("resolving application", "error", err)
		}
		return OutcomeInvalid
	}
	if !app.IsActive {
		return OutcomeInvalid
	}

	userKey := NormalizeUserKey(user)
	attempt := c.registry.Create(userKey, requesterTopic, AppRef{
		ID:    app.ID,
		Key:   app.AppKey,
		Name:  app.Name,
		Badge: app.BadgeURL,
	})

	c.broker.Subscribe(requesterTopic, requester)
	c.broker.Publish(userKey, NewIntentEvent{
		ApplicationName:  attempt.ApplicationName,
		ApplicationBadge: attempt.ApplicationBadge,
		User:             userKey,
		RequesterTopic:   requesterTopic,
		ExpiresAt:        attempt.ExpiresAt,
	})

	if c.relay != nil {
		c.relay.AttemptCreated(userKey, applicationKey)
	}
	c.logger.Debug("attempt created", "user", userKey, "topic", requesterTopic)
	return OutcomeOK
}

// JoinApprover subscribes an authenticated device to a user's approver
// topic. The presented session token must be valid and belong to the
// same user: knowing a user key alone is not enough to observe that
// user's login intents.
func (c *Coordinator) JoinApprover(ctx context.Context, user, token string, approver Endpoint) Outcome {
	userKey := NormalizeUserKey(user)

	valid, _, username, _ := c.gate.ValidateToken(ctx, token)
	if !valid || NormalizeUserKey(username) != userKey {
		return OutcomeInvalid
	}

	c.broker.Subscribe(userKey, approver)
	c.logger.Debug("approver joined", "user", userKey)
	return OutcomeOK
}

// Resolve applies an approver's decision to a pending attempt and
// delivers the terminal result to the requester's private topic.
//
// Exactly one Resolve (or disconnect) wins the terminal transition for
// an attempt; a racing call observes the winner's status and delivers
// nothing. A decision arriving after the handshake window closes is
// forced to Expired. An Approved decision only releases the token
// after the presented session token validates for the same user and
// the organisation's application policy allows it; a policy refusal
// becomes BlockedByOrg, an invalid token becomes Failed. All three
// demotions reach the requester with an empty token.
func (c *Coordinator) Resolve(ctx context.Context, user, requesterTopic string, decision Decision, token string) Outcome {
	if !decision.IsValid() {
		return OutcomeInvalid
	}
	userKey := NormalizeUserKey(user)

	attempt, changed := c.registry.Finalize(userKey, requesterTopic, decision, c.now())
	if attempt == nil {
		return OutcomeNotFound
	}
	if !changed {
		// Already terminal: the winner delivered (or will deliver) the
		// resolution. Delivering again would double-notify.
		return OutcomeNotFound
	}

	if attempt.Status != StatusApproved {
		c.deliver(attempt, "")
		return OutcomeOK
	}

	// No registry lock is held here; the gate may block on I/O.
	valid, _, username, orgID := c.gate.ValidateToken(ctx, token)
	if !valid || NormalizeUserKey(username) != userKey {
		attempt = c.registry.Demote(userKey, requesterTopic, StatusFailed)
		c.deliver(attempt, "")
		return OutcomeInvalid
	}

	if !c.gate.CheckAppAuthorized(ctx, attempt.ApplicationKey, orgID) {
		attempt = c.registry.Demote(userKey, requesterTopic, StatusBlockedByOrg)
		c.deliver(attempt, "")
		return OutcomeDenied
	}

	attempt = c.registry.AttachToken(userKey, requesterTopic, token)
	c.deliver(attempt, token)
	return OutcomeOK
}

// OnDisconnect handles a connection going away: it is removed from
// every topic, and the attempt it owns (if any, addressed by its
// private topic) is rejected if still pending and then dropped — the
// owner is gone, so nothing further can be delivered to it.
func (c *Coordinator) OnDisconnect(endpoint Endpoint, requesterTopic string) {
	c.broker.Unsubscribe(endpoint)

	attempt, changed := c.registry.MarkOwnerDisconnected(requesterTopic, c.now())
	if changed {
		c.logger.Debug("attempt rejected on disconnect", "user", attempt.UserKey, "topic", requesterTopic)
		if c.relay != nil {
			c.relay.AttemptResolved(attempt.UserKey, attempt.Status)
		}
		if c.metrics != nil {
			c.metrics.RecordHandshake(attempt.Status, c.now().Sub(attempt.CreatedAt))
		}
	}
	c.registry.Remove(requesterTopic)
}

// deliver publishes the terminal resolution to the requester's private
// topic and fires the optional hooks.
func (c *Coordinator) deliver(attempt *Attempt, token string) {
	if attempt == nil {
		return
	}

	c.broker.Publish(attempt.RequesterTopic, ResolutionEvent{
		Status: attempt.Status,
		Token:  token,
	})

	if c.relay != nil {
		c.relay.AttemptResolved(attempt.UserKey, attempt.Status)
	}
	if c.metrics != nil {
		c.metrics.RecordHandshake(attempt.Status, c.now().Sub(attempt.CreatedAt))
	}
	c.logger.Info("attempt resolved", "user", attempt.UserKey, "status", attempt.Status)
}
