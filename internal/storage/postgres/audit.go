package postgres

import (
	"context"
	"fmt"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage"
)

type AuditRepository struct {
	db storage.DBTX
}

func NewAuditRepository(db storage.DBTX) *AuditRepository {
	return &AuditRepository{db: db}
}

// InsertAuditEvent appends one event. The table has no UPDATE/DELETE path.
func (r *AuditRepository) InsertAuditEvent(ctx context.Context, event models.AuditEvent) error {
	query := `INSERT INTO audit_events (id, event_type, user_id, session_id, device_fingerprint, ip_address, user_agent, risk_level, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err := r.db.ExecContext(
		ctx,
		query,
		event.ID,
		event.Type,
		event.UserID,
		event.SessionID,
		event.DeviceFingerprint,
		event.IPAddress,
		event.UserAgent,
		event.Risk,
		event.Reason,
		event.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
