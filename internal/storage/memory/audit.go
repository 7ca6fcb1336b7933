package memory

import (
	"context"
	"sync"

	"github.com/upravdom/sessiond/internal/models"
)

type InMemoryAuditRepository struct {
	mu     sync.RWMutex
	events []models.AuditEvent
}

func NewAuditRepository() *InMemoryAuditRepository {
	return &InMemoryAuditRepository{}
}

func (m *InMemoryAuditRepository) InsertAuditEvent(_ context.Context, event models.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.events = append(m.events, event)
	return nil
}

// Events returns a copy of everything recorded so far.
func (m *InMemoryAuditRepository) Events() []models.AuditEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]models.AuditEvent, len(m.events))
	copy(out, m.events)
	return out
}
