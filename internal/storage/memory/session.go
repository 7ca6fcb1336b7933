package memory

import (
	"context"
	"sync"
	"time"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage"
)

// InMemorySessionStore keeps sessions in a mutex-guarded map. The hash index
// only ever points at active sessions, which makes the uniqueness invariant
// and CompareAndRotate trivially atomic under the lock. Used in dev mode and
// by the unit tests.
type InMemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	byHash   map[string]string // refresh token hash -> session id, active only
	byPrev   map[string]string // previous token hash -> session id, active only
}

func NewSessionStore() *InMemorySessionStore {
	return &InMemorySessionStore{
		sessions: make(map[string]models.Session),
		byHash:   make(map[string]string),
		byPrev:   make(map[string]string),
	}
}

func (m *InMemorySessionStore) Insert(_ context.Context, session models.Session) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byHash[session.RefreshTokenHash]; ok {
		return nil, storage.ErrDuplicateHash
	}

	m.sessions[session.ID] = session
	if session.IsActive {
		m.byHash[session.RefreshTokenHash] = session.ID
	}
	s := session
	return &s, nil
}

func (m *InMemorySessionStore) GetByID(_ context.Context, sessionID string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	return &s, nil
}

func (m *InMemorySessionStore) FindActiveByHash(_ context.Context, hash string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byHash[hash]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	s := m.sessions[id]
	return &s, nil
}

func (m *InMemorySessionStore) FindActiveByPreviousHash(_ context.Context, hash string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byPrev[hash]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	s := m.sessions[id]
	return &s, nil
}

func (m *InMemorySessionStore) FindActiveByAccessTokenJTI(_ context.Context, jti string) (*models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, s := range m.sessions {
		if s.IsActive && s.AccessTokenJTI == jti {
			found := s
			return &found, nil
		}
	}
	return nil, storage.ErrSessionNotFound
}

func (m *InMemorySessionStore) CompareAndRotate(_ context.Context, sessionID string, expectedVersion int64, newHash string, newExpiry time.Time, newAccessTokenJTI string) (*models.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, storage.ErrSessionNotFound
	}
	if !s.IsActive || s.RotationVersion != expectedVersion {
		return nil, storage.ErrVersionConflict
	}
	if id, taken := m.byHash[newHash]; taken && id != sessionID {
		return nil, storage.ErrDuplicateHash
	}

	now := time.Now().UTC()
	delete(m.byHash, s.RefreshTokenHash)
	delete(m.byPrev, s.PreviousTokenHash)
	s.PreviousTokenHash = s.RefreshTokenHash
	s.RefreshTokenHash = newHash
	s.AccessTokenJTI = newAccessTokenJTI
	s.ExpiresAt = newExpiry
	s.RotationVersion++
	s.LastActivityAt = now
	s.LastModifiedAt = now
	m.sessions[sessionID] = s
	m.byHash[newHash] = sessionID
	m.byPrev[s.PreviousTokenHash] = sessionID

	rotated := s
	return &rotated, nil
}

func (m *InMemorySessionStore) Deactivate(_ context.Context, sessionID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.deactivateLocked(sessionID), nil
}

func (m *InMemorySessionStore) DeactivateByHash(_ context.Context, hash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byHash[hash]
	if !ok {
		return false, nil
	}
	return m.deactivateLocked(id), nil
}

func (m *InMemorySessionStore) DeactivateAllForUser(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			if m.deactivateLocked(id) {
				count++
			}
		}
	}
	return count, nil
}

func (m *InMemorySessionStore) ListActiveForUser(_ context.Context, userID string) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []models.Session
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

func (m *InMemorySessionStore) CountActiveForUser(_ context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, s := range m.sessions {
		if s.UserID == userID && s.IsActive {
			count++
		}
	}
	return count, nil
}

func (m *InMemorySessionStore) UpdateActivity(_ context.Context, sessionID, ipAddress, userAgent, location string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || !s.IsActive {
		return nil
	}
	now := time.Now().UTC()
	s.LastActivityAt = now
	s.LastModifiedAt = now
	if ipAddress != "" {
		s.IPAddress = ipAddress
	}
	if userAgent != "" {
		s.UserAgent = userAgent
	}
	if location != "" {
		s.Location = location
	}
	m.sessions[sessionID] = s
	return nil
}

func (m *InMemorySessionStore) UpdateTrust(_ context.Context, sessionID string, trusted bool, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || !s.IsActive {
		return storage.ErrSessionNotFound
	}
	s.IsTrusted = trusted
	s.ExpiresAt = expiresAt
	s.LastModifiedAt = time.Now().UTC()
	m.sessions[sessionID] = s
	return nil
}

func (m *InMemorySessionStore) ListExpired(_ context.Context, before time.Time) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []models.Session
	for _, s := range m.sessions {
		if s.IsActive && s.ExpiresAt.Before(before) {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

func (m *InMemorySessionStore) ListStale(_ context.Context, inactiveSince time.Time) ([]models.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sessions []models.Session
	for _, s := range m.sessions {
		if s.IsActive && s.LastActivityAt.Before(inactiveSince) {
			sessions = append(sessions, s)
		}
	}
	return sessions, nil
}

func (m *InMemorySessionStore) PurgeExpired(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for id, s := range m.sessions {
		if !s.IsActive && s.ExpiresAt.Before(before) {
			delete(m.sessions, id)
			count++
		}
	}
	return count, nil
}

func (m *InMemorySessionStore) deactivateLocked(sessionID string) bool {
	s, ok := m.sessions[sessionID]
	if !ok || !s.IsActive {
		return false
	}
	s.IsActive = false
	s.LastModifiedAt = time.Now().UTC()
	m.sessions[sessionID] = s
	delete(m.byHash, s.RefreshTokenHash)
	delete(m.byPrev, s.PreviousTokenHash)
	return true
}
