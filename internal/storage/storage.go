package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/upravdom/sessiond/internal/models"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrDuplicateHash means an active session already holds the refresh-token
	// hash being inserted. With random secret generation this is an invariant
	// violation, not a recoverable condition.
	ErrDuplicateHash = errors.New("refresh token hash already active")
	// ErrVersionConflict means CompareAndRotate lost the race: the expected
	// rotation version no longer matches the stored row.
	ErrVersionConflict = errors.New("session rotation version conflict")
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Storage interface {
	SessionStore
	AuditRepository
}

// SessionStore is the single shared mutable resource of the engine. Every
// method must be safe under concurrent callers; CompareAndRotate is the one
// atomic primitive rotation correctness depends on.
type SessionStore interface {
	Insert(ctx context.Context, session models.Session) (*models.Session, error)
	GetByID(ctx context.Context, sessionID string) (*models.Session, error)
	FindActiveByHash(ctx context.Context, hash string) (*models.Session, error)
	// FindActiveByPreviousHash matches the superseded hash kept from the last
	// rotation. A hit means the presented secret was already consumed.
	FindActiveByPreviousHash(ctx context.Context, hash string) (*models.Session, error)
	FindActiveByAccessTokenJTI(ctx context.Context, jti string) (*models.Session, error)

	// CompareAndRotate atomically installs the new hash, expiry and access
	// token reference, moves the old hash into the previous-hash slot and
	// increments the rotation version, but only if the stored version still
	// equals expectedVersion and the session is active. Returns
	// ErrVersionConflict otherwise, without mutating anything.
	CompareAndRotate(ctx context.Context, sessionID string, expectedVersion int64, newHash string, newExpiry time.Time, newAccessTokenJTI string) (*models.Session, error)

	Deactivate(ctx context.Context, sessionID string) (bool, error)
	DeactivateByHash(ctx context.Context, hash string) (bool, error)
	DeactivateAllForUser(ctx context.Context, userID string) (int, error)

	ListActiveForUser(ctx context.Context, userID string) ([]models.Session, error)
	CountActiveForUser(ctx context.Context, userID string) (int, error)

	// UpdateActivity touches lastActivityAt and request metadata only. The
	// field set is disjoint from what CompareAndRotate guards, so it never
	// introduces a version conflict.
	UpdateActivity(ctx context.Context, sessionID, ipAddress, userAgent, location string) error
	// UpdateTrust flips the trust flag and installs the recomputed expiry.
	UpdateTrust(ctx context.Context, sessionID string, trusted bool, expiresAt time.Time) error

	ListExpired(ctx context.Context, before time.Time) ([]models.Session, error)
	ListStale(ctx context.Context, inactiveSince time.Time) ([]models.Session, error)
	// PurgeExpired hard-deletes inactive rows whose expiry is older than the
	// cutoff. Soft-deactivation must have happened first (two-phase sweep).
	PurgeExpired(ctx context.Context, before time.Time) (int, error)
}

// TokenStorage is the denylist for revoked access-token JTIs.
type TokenStorage interface {
	InvalidateToken(ctx context.Context, jti string, expiration time.Duration) error
	IsTokenInvalidated(ctx context.Context, jti string) (bool, error)
}

type AuditRepository interface {
	InsertAuditEvent(ctx context.Context, event models.AuditEvent) error
}

type APIKeyRepository interface {
	GetAPIKey(ctx context.Context, apiKey string) (*models.APIKey, error)
}
