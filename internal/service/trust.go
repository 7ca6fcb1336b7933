package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage"
)

// DeviceTrustManager flips the trust state of a session's device and keeps
// the expiry consistent with the resulting policy window.
type DeviceTrustManager struct {
	store  storage.SessionStore
	policy *ExpiryPolicy
	audit  AuditSink
	log    *zap.SugaredLogger
}

func NewDeviceTrustManager(store storage.SessionStore, policy *ExpiryPolicy, audit AuditSink, log *zap.SugaredLogger) *DeviceTrustManager {
	return &DeviceTrustManager{store: store, policy: policy, audit: audit, log: log}
}

// TrustDevice marks the session's device as trusted and extends the expiry
// to the trusted window. The expiry only ever moves forward: if the stored
// value is already later, it is kept.
func (m *DeviceTrustManager) TrustDevice(ctx context.Context, sessionID string) (bool, error) {
	session, err := m.getActive(ctx, sessionID)
	if err != nil {
		return false, err
	}

	newExpiry := m.policy.ExpiryFrom(time.Now().UTC(), session.DeviceType, true)
	if session.ExpiresAt.After(newExpiry) {
		newExpiry = session.ExpiresAt
	}

	if err := m.store.UpdateTrust(ctx, sessionID, true, newExpiry); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return false, storage.ErrSessionNotFound
		}
		return false, fmt.Errorf("failed to trust device: %w", err)
	}
	m.log.Infow("device trusted", "sessionID", sessionID, "expiresAt", newExpiry)
	return true, nil
}

// UntrustDevice recomputes the expiry with the standard window for the
// session's device type, anchored at the last activity so untrusting never
// revives a session that has already outlived its untrusted window. If the
// recomputed expiry plus the grace period is already in the past, the session
// is deactivated outright rather than left in an inconsistent state.
func (m *DeviceTrustManager) UntrustDevice(ctx context.Context, sessionID string) (bool, error) {
	session, err := m.getActive(ctx, sessionID)
	if err != nil {
		return false, err
	}

	now := time.Now().UTC()
	newExpiry := m.policy.ExpiryFrom(session.LastActivityAt, session.DeviceType, false)

	if !newExpiry.Add(m.policy.UntrustGrace()).After(now) {
		if _, err := m.store.Deactivate(ctx, sessionID); err != nil {
			return false, fmt.Errorf("failed to deactivate session: %w", err)
		}
		m.audit.Record(ctx, models.AuditEvent{
			Type:      models.AuditSessionRevoked,
			UserID:    session.UserID,
			SessionID: session.ID,
			Risk:      models.RiskLow,
			Reason:    models.RevokeReasonDeviceUntrusted,
		})
		m.log.Infow("session deactivated on untrust", "sessionID", sessionID)
		return true, nil
	}

	if err := m.store.UpdateTrust(ctx, sessionID, false, newExpiry); err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return false, storage.ErrSessionNotFound
		}
		return false, fmt.Errorf("failed to untrust device: %w", err)
	}
	m.log.Infow("device untrusted", "sessionID", sessionID, "expiresAt", newExpiry)
	return true, nil
}

func (m *DeviceTrustManager) getActive(ctx context.Context, sessionID string) (*models.Session, error) {
	session, err := m.store.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	if !session.IsActive {
		return nil, storage.ErrSessionNotFound
	}
	return session, nil
}
