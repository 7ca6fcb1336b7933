package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage"
)

const uniqueViolation = "23505"

const sessionColumns = `id, user_id, refresh_token_hash, previous_token_hash, access_token_jti, device_fingerprint, device_name, device_type, user_agent, ip_address, location, is_trusted, is_active, rotation_version, created_at, last_activity_at, expires_at, last_modified_at`

type SessionRepository struct {
	db storage.DBTX
}

func NewSessionRepository(db storage.DBTX) *SessionRepository {
	return &SessionRepository{db: db}
}

func scanSession(row *sql.Row) (*models.Session, error) {
	var s models.Session
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.RefreshTokenHash,
		&s.PreviousTokenHash,
		&s.AccessTokenJTI,
		&s.DeviceFingerprint,
		&s.DeviceName,
		&s.DeviceType,
		&s.UserAgent,
		&s.IPAddress,
		&s.Location,
		&s.IsTrusted,
		&s.IsActive,
		&s.RotationVersion,
		&s.CreatedAt,
		&s.LastActivityAt,
		&s.ExpiresAt,
		&s.LastModifiedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *SessionRepository) Insert(ctx context.Context, session models.Session) (*models.Session, error) {
	query := `INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		RETURNING ` + sessionColumns
	created, err := scanSession(r.db.QueryRowContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.RefreshTokenHash,
		session.PreviousTokenHash,
		session.AccessTokenJTI,
		session.DeviceFingerprint,
		session.DeviceName,
		session.DeviceType,
		session.UserAgent,
		session.IPAddress,
		session.Location,
		session.IsTrusted,
		session.IsActive,
		session.RotationVersion,
		session.CreatedAt,
		session.LastActivityAt,
		session.ExpiresAt,
		session.LastModifiedAt,
	))
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return nil, storage.ErrDuplicateHash
		}
		return nil, fmt.Errorf("failed to insert session: %w", err)
	}
	return created, nil
}

func (r *SessionRepository) GetByID(ctx context.Context, sessionID string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE id = $1`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) FindActiveByHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE refresh_token_hash = $1 AND is_active`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session by hash: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) FindActiveByPreviousHash(ctx context.Context, hash string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE previous_token_hash = $1 AND is_active`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, hash))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session by previous hash: %w", err)
	}
	return session, nil
}

func (r *SessionRepository) FindActiveByAccessTokenJTI(ctx context.Context, jti string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE access_token_jti = $1 AND is_active`
	session, err := scanSession(r.db.QueryRowContext(ctx, query, jti))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to find session by jti: %w", err)
	}
	return session, nil
}

// CompareAndRotate is a single conditional UPDATE guarded by rotation_version;
// the row version is the serialization point for concurrent rotations.
func (r *SessionRepository) CompareAndRotate(ctx context.Context, sessionID string, expectedVersion int64, newHash string, newExpiry time.Time, newAccessTokenJTI string) (*models.Session, error) {
	now := time.Now().UTC()
	query := `UPDATE sessions
		SET previous_token_hash = refresh_token_hash,
		    refresh_token_hash = $2,
		    access_token_jti = $3,
		    expires_at = $4,
		    rotation_version = rotation_version + 1,
		    last_activity_at = $5,
		    last_modified_at = $5
		WHERE id = $1 AND rotation_version = $6 AND is_active
		RETURNING ` + sessionColumns
	session, err := scanSession(r.db.QueryRowContext(ctx, query, sessionID, newHash, newAccessTokenJTI, newExpiry, now, expectedVersion))
	if err == nil {
		return session, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to rotate session: %w", err)
	}

	// No row matched: either the version moved (or the session was
	// deactivated) under us, or the session never existed.
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check session existence: %w", err)
	}
	if !exists {
		return nil, storage.ErrSessionNotFound
	}
	return nil, storage.ErrVersionConflict
}

func (r *SessionRepository) Deactivate(ctx context.Context, sessionID string) (bool, error) {
	query := `UPDATE sessions SET is_active = FALSE, last_modified_at = $2 WHERE id = $1 AND is_active`
	res, err := r.db.ExecContext(ctx, query, sessionID, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SessionRepository) DeactivateByHash(ctx context.Context, hash string) (bool, error) {
	query := `UPDATE sessions SET is_active = FALSE, last_modified_at = $2 WHERE refresh_token_hash = $1 AND is_active`
	res, err := r.db.ExecContext(ctx, query, hash, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to deactivate session by hash: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

func (r *SessionRepository) DeactivateAllForUser(ctx context.Context, userID string) (int, error) {
	query := `UPDATE sessions SET is_active = FALSE, last_modified_at = $2 WHERE user_id = $1 AND is_active`
	res, err := r.db.ExecContext(ctx, query, userID, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate user sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (r *SessionRepository) ListActiveForUser(ctx context.Context, userID string) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 AND is_active ORDER BY last_activity_at DESC`
	return r.querySessions(ctx, query, userID)
}

func (r *SessionRepository) CountActiveForUser(ctx context.Context, userID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM sessions WHERE user_id = $1 AND is_active`
	if err := r.db.QueryRowContext(ctx, query, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user sessions: %w", err)
	}
	return count, nil
}

func (r *SessionRepository) UpdateActivity(ctx context.Context, sessionID, ipAddress, userAgent, location string) error {
	now := time.Now().UTC()
	query := `UPDATE sessions
		SET last_activity_at = $2, ip_address = $3, user_agent = $4, location = $5, last_modified_at = $2
		WHERE id = $1 AND is_active`
	if _, err := r.db.ExecContext(ctx, query, sessionID, now, ipAddress, userAgent, location); err != nil {
		return fmt.Errorf("failed to update session activity: %w", err)
	}
	return nil
}

func (r *SessionRepository) UpdateTrust(ctx context.Context, sessionID string, trusted bool, expiresAt time.Time) error {
	query := `UPDATE sessions SET is_trusted = $2, expires_at = $3, last_modified_at = $4 WHERE id = $1 AND is_active`
	res, err := r.db.ExecContext(ctx, query, sessionID, trusted, expiresAt, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to update session trust: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return storage.ErrSessionNotFound
	}
	return nil
}

func (r *SessionRepository) ListExpired(ctx context.Context, before time.Time) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE is_active AND expires_at < $1`
	return r.querySessions(ctx, query, before)
}

func (r *SessionRepository) ListStale(ctx context.Context, inactiveSince time.Time) ([]models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE is_active AND last_activity_at < $1`
	return r.querySessions(ctx, query, inactiveSince)
}

func (r *SessionRepository) PurgeExpired(ctx context.Context, before time.Time) (int, error) {
	query := `DELETE FROM sessions WHERE NOT is_active AND expires_at < $1`
	res, err := r.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return int(n), nil
}

func (r *SessionRepository) querySessions(ctx context.Context, query string, args ...any) ([]models.Session, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var sessions []models.Session
	for rows.Next() {
		var s models.Session
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.RefreshTokenHash,
			&s.PreviousTokenHash,
			&s.AccessTokenJTI,
			&s.DeviceFingerprint,
			&s.DeviceName,
			&s.DeviceType,
			&s.UserAgent,
			&s.IPAddress,
			&s.Location,
			&s.IsTrusted,
			&s.IsActive,
			&s.RotationVersion,
			&s.CreatedAt,
			&s.LastActivityAt,
			&s.ExpiresAt,
			&s.LastModifiedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return sessions, nil
}
