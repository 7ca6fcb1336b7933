package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage"
	"github.com/upravdom/sessiond/internal/storage/memory"
)

func newTestTrustManager(t *testing.T) (*DeviceTrustManager, *memory.InMemorySessionStore, *memory.InMemoryAuditRepository) {
	t.Helper()
	store := memory.NewSessionStore()
	auditRepo := memory.NewAuditRepository()
	log := zap.NewNop().Sugar()
	audit := NewAuditRecorder(auditRepo, nil, log)
	policy := NewExpiryPolicy(testSessionConfig())
	return NewDeviceTrustManager(store, policy, audit, log), store, auditRepo
}

func insertSession(t *testing.T, store *memory.InMemorySessionStore, s models.Session) *models.Session {
	t.Helper()
	created, err := store.Insert(context.Background(), s)
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	return created
}

func baseSession(id, hash string, now time.Time) models.Session {
	return models.Session{
		ID:               id,
		UserID:           "u1",
		RefreshTokenHash: hash,
		DeviceType:       models.DeviceWeb,
		IsActive:         true,
		RotationVersion:  1,
		CreatedAt:        now,
		LastActivityAt:   now,
		ExpiresAt:        now.Add(time.Hour),
		LastModifiedAt:   now,
	}
}

func TestTrustDeviceExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	mgr, store, _ := newTestTrustManager(t)
	now := time.Now().UTC()

	s := insertSession(t, store, baseSession("s1", "h1", now))

	ok, err := mgr.TrustDevice(ctx, s.ID)
	if err != nil || !ok {
		t.Fatalf("trust: ok=%v err=%v", ok, err)
	}

	after, _ := store.GetByID(ctx, s.ID)
	if !after.IsTrusted {
		t.Fatal("session not marked trusted")
	}
	want := now.Add(30 * 24 * time.Hour)
	if after.ExpiresAt.Before(want) {
		t.Fatalf("trusted expiry %v is before the trusted window %v", after.ExpiresAt, want)
	}
}

func TestTrustDeviceNeverShortensExpiry(t *testing.T) {
	ctx := context.Background()
	mgr, store, _ := newTestTrustManager(t)
	now := time.Now().UTC()

	// Stored expiry already beyond the trusted window.
	far := now.Add(90 * 24 * time.Hour)
	sess := baseSession("s1", "h1", now)
	sess.ExpiresAt = far
	s := insertSession(t, store, sess)

	if _, err := mgr.TrustDevice(ctx, s.ID); err != nil {
		t.Fatalf("trust: %v", err)
	}

	after, _ := store.GetByID(ctx, s.ID)
	if !after.ExpiresAt.Equal(far) {
		t.Fatalf("trust shortened expiry: %v -> %v", far, after.ExpiresAt)
	}
}

func TestUntrustDeviceRecomputesWindow(t *testing.T) {
	ctx := context.Background()
	mgr, store, _ := newTestTrustManager(t)
	now := time.Now().UTC()

	sess := baseSession("s1", "h1", now)
	sess.IsTrusted = true
	sess.ExpiresAt = now.Add(30 * 24 * time.Hour)
	s := insertSession(t, store, sess)

	ok, err := mgr.UntrustDevice(ctx, s.ID)
	if err != nil || !ok {
		t.Fatalf("untrust: ok=%v err=%v", ok, err)
	}

	after, _ := store.GetByID(ctx, s.ID)
	if after.IsTrusted {
		t.Fatal("session still trusted")
	}
	if !after.IsActive {
		t.Fatal("recently active session should survive untrust")
	}
	// Back on the base window.
	limit := now.Add(time.Hour + time.Minute)
	if after.ExpiresAt.After(limit) {
		t.Fatalf("expiry %v not recomputed to the base window", after.ExpiresAt)
	}
}

func TestUntrustDeactivatesDormantSession(t *testing.T) {
	ctx := context.Background()
	mgr, store, auditRepo := newTestTrustManager(t)
	now := time.Now().UTC()

	// Trusted session whose last activity predates the base window plus grace.
	sess := baseSession("s1", "h1", now)
	sess.IsTrusted = true
	sess.LastActivityAt = now.Add(-3 * time.Hour)
	sess.ExpiresAt = now.Add(30 * 24 * time.Hour)
	s := insertSession(t, store, sess)

	ok, err := mgr.UntrustDevice(ctx, s.ID)
	if err != nil || !ok {
		t.Fatalf("untrust: ok=%v err=%v", ok, err)
	}

	after, _ := store.GetByID(ctx, s.ID)
	if after.IsActive {
		t.Fatal("dormant session should be deactivated on untrust")
	}

	found := false
	for _, e := range auditRepo.Events() {
		if e.Type == models.AuditSessionRevoked && e.Reason == models.RevokeReasonDeviceUntrusted {
			found = true
		}
	}
	if !found {
		t.Fatal("no device_untrusted revocation event recorded")
	}
}

func TestTrustRejectsInactiveSession(t *testing.T) {
	ctx := context.Background()
	mgr, store, _ := newTestTrustManager(t)
	now := time.Now().UTC()

	sess := baseSession("s1", "h1", now)
	sess.IsActive = false
	insertSession(t, store, sess)

	if _, err := mgr.TrustDevice(ctx, "s1"); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for inactive session, got %v", err)
	}
	if _, err := mgr.UntrustDevice(ctx, "missing"); !errors.Is(err, storage.ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound for missing session, got %v", err)
	}
}
