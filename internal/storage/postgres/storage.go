package postgres

import (
	"database/sql"
)

type Storage struct {
	db *sql.DB
	*SessionRepository
	*AuditRepository
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{
		db:                db,
		SessionRepository: NewSessionRepository(db),
		AuditRepository:   NewAuditRepository(db),
	}
}
