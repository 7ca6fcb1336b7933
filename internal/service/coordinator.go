package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage"
)

var (
	// ErrInvalidToken covers unknown, already-rotated and revoked refresh
	// secrets. Callers cannot distinguish these cases; only the audit trail
	// does.
	ErrInvalidToken = errors.New("refresh token invalid")
	ErrExpiredToken = errors.New("refresh token expired")
	// ErrReplayDetected means the presented secret was already consumed by a
	// concurrent or earlier rotation. The session is deactivated as a side
	// effect (fail closed).
	ErrReplayDetected = errors.New("refresh token replay detected")
)

// SessionCoordinator owns the session state machine. It holds no in-process
// locks and no cache: every decision reads the durable store, and rotation
// correctness rests entirely on the store's CompareAndRotate primitive.
type SessionCoordinator struct {
	store  storage.SessionStore
	hasher *SecretHasher
	policy *ExpiryPolicy
	audit  AuditSink
	log    *zap.SugaredLogger

	sessionCap int
}

func NewSessionCoordinator(store storage.SessionStore, hasher *SecretHasher, policy *ExpiryPolicy, audit AuditSink, log *zap.SugaredLogger, sessionCap int) *SessionCoordinator {
	return &SessionCoordinator{
		store:      store,
		hasher:     hasher,
		policy:     policy,
		audit:      audit,
		log:        log,
		sessionCap: sessionCap,
	}
}

type CreateSessionParams struct {
	SessionID         string
	UserID            string
	DeviceFingerprint string
	DeviceName        string
	DeviceType        models.DeviceType
	UserAgent         string
	IPAddress         string
	Location          string
	Trusted           bool
	AccessTokenJTI    string
}

// CreateSession enforces the per-user cap (evicting the least-recently-active
// session rather than failing the login), computes the policy expiry and
// inserts the session under the hash of refreshSecret.
func (c *SessionCoordinator) CreateSession(ctx context.Context, p CreateSessionParams, refreshSecret string) (*models.Session, error) {
	if err := c.enforceCap(ctx, p.UserID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	id := p.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	session := models.Session{
		ID:                id,
		UserID:            p.UserID,
		RefreshTokenHash:  c.hasher.Hash(refreshSecret),
		AccessTokenJTI:    p.AccessTokenJTI,
		DeviceFingerprint: p.DeviceFingerprint,
		DeviceName:        p.DeviceName,
		DeviceType:        p.DeviceType,
		UserAgent:         p.UserAgent,
		IPAddress:         p.IPAddress,
		Location:          p.Location,
		IsTrusted:         p.Trusted,
		IsActive:          true,
		RotationVersion:   1,
		CreatedAt:         now,
		LastActivityAt:    now,
		ExpiresAt:         c.policy.ExpiryFrom(now, p.DeviceType, p.Trusted),
		LastModifiedAt:    now,
	}

	created, err := c.store.Insert(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.audit.Record(ctx, models.AuditEvent{
		Type:              models.AuditSessionCreated,
		UserID:            created.UserID,
		SessionID:         created.ID,
		DeviceFingerprint: created.DeviceFingerprint,
		IPAddress:         created.IPAddress,
		UserAgent:         created.UserAgent,
		Risk:              models.RiskLow,
	})
	c.log.Infow("session created", "sessionID", created.ID, "userID", created.UserID, "deviceType", created.DeviceType, "trusted", created.IsTrusted)

	return created, nil
}

// enforceCap is best-effort under races: two concurrent logins at the cap
// boundary may briefly exceed it by the number of in-flight callers, which is
// acceptable because eviction is non-destructive to security.
func (c *SessionCoordinator) enforceCap(ctx context.Context, userID string) error {
	count, err := c.store.CountActiveForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to count sessions: %w", err)
	}
	if count < c.sessionCap {
		return nil
	}

	sessions, err := c.store.ListActiveForUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActivityAt.Before(sessions[j].LastActivityAt)
	})

	evict := len(sessions) - c.sessionCap + 1
	for i := 0; i < evict && i < len(sessions); i++ {
		victim := sessions[i]
		ok, err := c.store.Deactivate(ctx, victim.ID)
		if err != nil {
			return fmt.Errorf("failed to evict session: %w", err)
		}
		if !ok {
			continue
		}
		c.audit.Record(ctx, models.AuditEvent{
			Type:      models.AuditSessionRevoked,
			UserID:    victim.UserID,
			SessionID: victim.ID,
			Risk:      models.RiskLow,
			Reason:    models.RevokeReasonCapEvicted,
		})
		c.log.Infow("session evicted at cap", "sessionID", victim.ID, "userID", victim.UserID)
	}
	return nil
}

// Rotate exchanges a valid, unused refresh secret for the next one. Exactly
// one of N concurrent calls with the same prior secret wins; the rest land on
// the version conflict, which deactivates the session and surfaces as replay.
func (c *SessionCoordinator) Rotate(ctx context.Context, currentSecret, newSecret, newAccessTokenJTI string) (*models.Session, error) {
	curHash := c.hasher.Hash(currentSecret)
	session, err := c.store.FindActiveByHash(ctx, curHash)
	if err != nil {
		if !errors.Is(err, storage.ErrSessionNotFound) {
			return nil, fmt.Errorf("failed to look up session: %w", err)
		}
		// The hash is not current. If it is the superseded hash of a live
		// session, this secret was already consumed: replay.
		if prev, perr := c.store.FindActiveByPreviousHash(ctx, curHash); perr == nil {
			return nil, c.handleReplay(ctx, prev)
		}
		return nil, ErrInvalidToken
	}

	now := time.Now().UTC()
	if now.After(session.ExpiresAt) {
		if _, err := c.store.Deactivate(ctx, session.ID); err != nil {
			c.log.Errorw("failed to deactivate expired session", "sessionID", session.ID, "error", err)
		}
		return nil, ErrExpiredToken
	}

	rotated, err := c.store.CompareAndRotate(
		ctx,
		session.ID,
		session.RotationVersion,
		c.hasher.Hash(newSecret),
		c.policy.ExpiryFrom(now, session.DeviceType, session.IsTrusted),
		newAccessTokenJTI,
	)
	if err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return nil, c.handleReplay(ctx, session)
		}
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	c.audit.Record(ctx, models.AuditEvent{
		Type:              models.AuditTokenRotated,
		UserID:            rotated.UserID,
		SessionID:         rotated.ID,
		DeviceFingerprint: rotated.DeviceFingerprint,
		IPAddress:         rotated.IPAddress,
		UserAgent:         rotated.UserAgent,
		Risk:              models.RiskLow,
	})
	c.log.Debugw("token rotated", "sessionID", rotated.ID, "version", rotated.RotationVersion)

	return rotated, nil
}

// handleReplay is the fail-closed response to a consumed secret: the whole
// session dies, so the concurrent winner's new secret is revoked as well.
func (c *SessionCoordinator) handleReplay(ctx context.Context, session *models.Session) error {
	if _, err := c.store.Deactivate(ctx, session.ID); err != nil {
		c.log.Errorw("failed to deactivate session after replay", "sessionID", session.ID, "error", err)
	}
	c.audit.Record(ctx, models.AuditEvent{
		Type:              models.AuditSuspectedReplay,
		UserID:            session.UserID,
		SessionID:         session.ID,
		DeviceFingerprint: session.DeviceFingerprint,
		IPAddress:         session.IPAddress,
		UserAgent:         session.UserAgent,
		Risk:              models.RiskElevated,
	})
	c.log.Warnw("suspected refresh token replay", "sessionID", session.ID, "userID", session.UserID)
	return ErrReplayDetected
}

// Validate is the read-only half of Rotate: hash lookup plus expiry check,
// no mutation. Never use it to mint tokens.
func (c *SessionCoordinator) Validate(ctx context.Context, refreshSecret string) (*models.Session, error) {
	session, err := c.store.FindActiveByHash(ctx, c.hasher.Hash(refreshSecret))
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, fmt.Errorf("failed to look up session: %w", err)
	}
	if time.Now().UTC().After(session.ExpiresAt) {
		return nil, ErrExpiredToken
	}
	return session, nil
}

// Revoke deactivates one session. Idempotent: revoking an already-inactive
// session returns false with no error.
func (c *SessionCoordinator) Revoke(ctx context.Context, sessionID, reason string) (bool, error) {
	session, err := c.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return false, storage.ErrSessionNotFound
		}
		return false, fmt.Errorf("failed to get session: %w", err)
	}

	ok, err := c.store.Deactivate(ctx, sessionID)
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	if !ok {
		return false, nil
	}

	c.audit.Record(ctx, models.AuditEvent{
		Type:      models.AuditSessionRevoked,
		UserID:    session.UserID,
		SessionID: session.ID,
		Risk:      models.RiskLow,
		Reason:    reason,
	})
	c.log.Infow("session revoked", "sessionID", session.ID, "reason", reason)
	return true, nil
}

func (c *SessionCoordinator) RevokeByHash(ctx context.Context, refreshSecret, reason string) (bool, error) {
	session, err := c.store.FindActiveByHash(ctx, c.hasher.Hash(refreshSecret))
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to look up session: %w", err)
	}
	return c.Revoke(ctx, session.ID, reason)
}

func (c *SessionCoordinator) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	count, err := c.store.DeactivateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate user sessions: %w", err)
	}
	if count > 0 {
		c.audit.Record(ctx, models.AuditEvent{
			Type:   models.AuditSessionRevoked,
			UserID: userID,
			Risk:   models.RiskLow,
			Reason: reason,
		})
		c.log.Infow("all user sessions revoked", "userID", userID, "count", count, "reason", reason)
	}
	return count, nil
}

// RevokeByAccessTokenJTI maps an access-token reference back to its session
// and revokes it. Returns the revoked session so the caller can denylist the
// paired access token.
func (c *SessionCoordinator) RevokeByAccessTokenJTI(ctx context.Context, jti, reason string) (*models.Session, error) {
	session, err := c.store.FindActiveByAccessTokenJTI(ctx, jti)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to look up session by jti: %w", err)
	}
	if _, err := c.Revoke(ctx, session.ID, reason); err != nil {
		return nil, err
	}
	return session, nil
}

// UpdateActivity touches lastActivityAt and request metadata. The store
// write is disjoint from the rotation version, so it cannot race a Rotate.
func (c *SessionCoordinator) UpdateActivity(ctx context.Context, sessionID, ipAddress, userAgent, location string) error {
	if err := c.store.UpdateActivity(ctx, sessionID, ipAddress, userAgent, location); err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	return nil
}

// GetSession is a read-only fetch by id.
func (c *SessionCoordinator) GetSession(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := c.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

// ListSessions returns the user's active sessions for status endpoints.
func (c *SessionCoordinator) ListSessions(ctx context.Context, userID string) ([]models.Session, error) {
	sessions, err := c.store.ListActiveForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	return sessions, nil
}
