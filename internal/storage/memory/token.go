package memory

import (
	"context"
	"sync"
	"time"
)

// InMemoryTokenStorage mirrors the redis denylist for dev mode and tests.
type InMemoryTokenStorage struct {
	mu     sync.RWMutex
	denied map[string]time.Time
}

func NewTokenStorage() *InMemoryTokenStorage {
	return &InMemoryTokenStorage{denied: make(map[string]time.Time)}
}

func (m *InMemoryTokenStorage) InvalidateToken(_ context.Context, jti string, expiration time.Duration) error {
	if expiration <= 0 {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.denied[jti] = time.Now().Add(expiration)
	return nil
}

func (m *InMemoryTokenStorage) IsTokenInvalidated(_ context.Context, jti string) (bool, error) {
	m.mu.RLock()
	until, ok := m.denied[jti]
	m.mu.RUnlock()
	if !ok {
		return false, nil
	}
	if time.Now().After(until) {
		m.mu.Lock()
		delete(m.denied, jti)
		m.mu.Unlock()
		return false, nil
	}
	return true, nil
}
