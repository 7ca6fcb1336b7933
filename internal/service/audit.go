package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage"
)

// AuditSink receives security events. Implementations must be safe to call
// from request paths; the recorder guarantees failures never reach callers.
type AuditSink interface {
	Record(ctx context.Context, event models.AuditEvent)
}

// AuditRecorder persists events through the audit repository and mirrors
// elevated ones to the security webhook. Best-effort on every path: security
// telemetry must not become an availability dependency.
type AuditRecorder struct {
	repo    storage.AuditRepository
	webhook *WebhookNotifier
	log     *zap.SugaredLogger
}

func NewAuditRecorder(repo storage.AuditRepository, webhook *WebhookNotifier, log *zap.SugaredLogger) *AuditRecorder {
	return &AuditRecorder{repo: repo, webhook: webhook, log: log}
}

func (r *AuditRecorder) Record(ctx context.Context, event models.AuditEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}
	if event.Risk == "" {
		event.Risk = models.RiskLow
	}

	if r.repo != nil {
		if err := r.repo.InsertAuditEvent(ctx, event); err != nil {
			r.log.Errorw("failed to record audit event", "type", event.Type, "sessionID", event.SessionID, "error", err)
		}
	}

	if r.webhook != nil && event.Risk != models.RiskLow {
		r.webhook.NotifySecurityEvent(ctx, event)
	}
}
