package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage"
	"github.com/upravdom/sessiond/internal/util"
)

// SessionJanitor sweeps expired and abandoned sessions on a timer. Both
// sweeps are two-phase: soft-deactivate first so concurrent validation reads
// a consistent inactive row, hard-delete only past the retention window.
// The sweeps only narrow the active set, so overlapping runs are harmless.
type SessionJanitor struct {
	store storage.SessionStore
	audit AuditSink
	log   *zap.SugaredLogger

	staleAfter time.Duration
	retention  time.Duration
	interval   time.Duration
}

func NewSessionJanitor(store storage.SessionStore, audit AuditSink, log *zap.SugaredLogger, cfg *util.SessionConfig) *SessionJanitor {
	return &SessionJanitor{
		store:      store,
		audit:      audit,
		log:        log,
		staleAfter: cfg.StaleAfter,
		retention:  cfg.PurgeRetention,
		interval:   cfg.JanitorInterval,
	}
}

// Run blocks until ctx is cancelled, sweeping every interval.
func (j *SessionJanitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	j.log.Infow("session janitor started", "interval", j.interval)
	for {
		select {
		case <-ctx.Done():
			j.log.Info("session janitor stopped")
			return
		case <-ticker.C:
			if _, err := j.CleanupExpired(ctx); err != nil {
				j.log.Errorw("expired sweep failed", "error", err)
			}
			if _, err := j.CleanupStale(ctx); err != nil {
				j.log.Errorw("stale sweep failed", "error", err)
			}
		}
	}
}

// CleanupExpired deactivates sessions whose expiry has passed, then purges
// inactive rows older than the retention window. Returns the number of
// sessions deactivated in this sweep.
func (j *SessionJanitor) CleanupExpired(ctx context.Context) (int, error) {
	now := time.Now().UTC()

	expired, err := j.store.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, s := range expired {
		ok, err := j.store.Deactivate(ctx, s.ID)
		if err != nil {
			j.log.Errorw("failed to deactivate expired session", "sessionID", s.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		count++
		j.audit.Record(ctx, models.AuditEvent{
			Type:      models.AuditSessionRevoked,
			UserID:    s.UserID,
			SessionID: s.ID,
			Risk:      models.RiskLow,
			Reason:    models.RevokeReasonExpired,
		})
	}

	purged, err := j.store.PurgeExpired(ctx, now.Add(-j.retention))
	if err != nil {
		return count, err
	}
	if count > 0 || purged > 0 {
		j.log.Infow("expired sweep complete", "deactivated", count, "purged", purged)
	}
	return count, nil
}

// CleanupStale deactivates sessions with no activity beyond the stale
// threshold, independent of their expiry. This catches abandoned
// trusted-device sessions whose windows are very long.
func (j *SessionJanitor) CleanupStale(ctx context.Context) (int, error) {
	cutoff := time.Now().UTC().Add(-j.staleAfter)

	stale, err := j.store.ListStale(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	count := 0
	for _, s := range stale {
		ok, err := j.store.Deactivate(ctx, s.ID)
		if err != nil {
			j.log.Errorw("failed to deactivate stale session", "sessionID", s.ID, "error", err)
			continue
		}
		if !ok {
			continue
		}
		count++
		j.audit.Record(ctx, models.AuditEvent{
			Type:      models.AuditSessionRevoked,
			UserID:    s.UserID,
			SessionID: s.ID,
			Risk:      models.RiskLow,
			Reason:    models.RevokeReasonStale,
		})
	}
	if count > 0 {
		j.log.Infow("stale sweep complete", "deactivated", count)
	}
	return count, nil
}
