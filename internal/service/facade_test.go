package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage/memory"
	"github.com/upravdom/sessiond/internal/util"
)

func newTestFacade(t *testing.T) (*TokenRotationFacade, *memory.InMemorySessionStore, *memory.InMemoryTokenStorage) {
	t.Helper()
	store := memory.NewSessionStore()
	tokenStorage := memory.NewTokenStorage()
	log := zap.NewNop().Sugar()
	audit := NewAuditRecorder(memory.NewAuditRepository(), nil, log)
	policy := NewExpiryPolicy(testSessionConfig())
	hasher := NewSecretHasher([]byte("test-hash-key"))
	coord := NewSessionCoordinator(store, hasher, policy, audit, log, 10)
	tokens := NewTokenService(&util.TokenConfig{
		JwtSecretKey: []byte("test-jwt-secret"),
		AccessTTL:    time.Minute,
	}, tokenStorage)
	return NewTokenRotationFacade(coord, tokens, log), store, tokenStorage
}

func issueRequest() models.TokenIssueRequest {
	return models.TokenIssueRequest{
		UserID:            "u1",
		DeviceFingerprint: "fp-1",
		DeviceName:        "Chrome on Linux",
		DeviceType:        "web",
	}
}

func TestCreateTokenPairBindsSessionAndClaims(t *testing.T) {
	ctx := context.Background()
	facade, store, _ := newTestFacade(t)

	pair, err := facade.CreateTokenPair(ctx, issueRequest(), "10.0.0.1", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if pair.RefreshToken == "" || pair.AccessToken == "" || pair.SessionID == "" {
		t.Fatalf("incomplete pair: %+v", pair)
	}

	// The access token's sid claim matches the stored session.
	_, sid, err := facade.tokens.ValidateAccessToken(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access token: %v", err)
	}
	if sid != pair.SessionID {
		t.Fatalf("sid claim %s != session %s", sid, pair.SessionID)
	}

	s, err := store.GetByID(ctx, pair.SessionID)
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	jti, _ := facade.tokens.ExtractJTI(pair.AccessToken)
	if s.AccessTokenJTI != jti {
		t.Fatalf("stored jti %s != token jti %s", s.AccessTokenJTI, jti)
	}
	if s.IPAddress != "10.0.0.1" || s.UserAgent != "Mozilla/5.0" {
		t.Fatalf("request metadata not stored: %+v", s)
	}
}

func TestRotateTokensIssuesFreshPair(t *testing.T) {
	ctx := context.Background()
	facade, store, _ := newTestFacade(t)

	pair, err := facade.CreateTokenPair(ctx, issueRequest(), "10.0.0.1", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	next, err := facade.RotateTokens(ctx, pair.RefreshToken, "10.0.0.2", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next.SessionID != pair.SessionID {
		t.Fatalf("rotation changed session: %s != %s", next.SessionID, pair.SessionID)
	}
	if next.RefreshToken == pair.RefreshToken {
		t.Fatal("refresh secret not replaced")
	}

	// New access token carries the jti installed by the rotation.
	s, _ := store.GetByID(ctx, pair.SessionID)
	jti, _ := facade.tokens.ExtractJTI(next.AccessToken)
	if s.AccessTokenJTI != jti {
		t.Fatalf("stored jti %s != rotated token jti %s", s.AccessTokenJTI, jti)
	}

	// The consumed secret is now replay.
	if _, err := facade.RotateTokens(ctx, pair.RefreshToken, "", ""); !errors.Is(err, ErrReplayDetected) {
		t.Fatalf("expected ErrReplayDetected, got %v", err)
	}
}

func TestRevokeByAccessTokenDenylistsJTI(t *testing.T) {
	ctx := context.Background()
	facade, store, tokenStorage := newTestFacade(t)

	pair, err := facade.CreateTokenPair(ctx, issueRequest(), "10.0.0.1", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ok, err := facade.RevokeByAccessToken(ctx, pair.AccessToken, models.RevokeReasonLogout)
	if err != nil || !ok {
		t.Fatalf("revoke: ok=%v err=%v", ok, err)
	}

	s, _ := store.GetByID(ctx, pair.SessionID)
	if s.IsActive {
		t.Fatal("session still active after revoke")
	}

	jti, _ := facade.tokens.ExtractJTI(pair.AccessToken)
	denied, err := tokenStorage.IsTokenInvalidated(ctx, jti)
	if err != nil || !denied {
		t.Fatalf("jti not denylisted: denied=%v err=%v", denied, err)
	}

	// Second revocation finds no active session and reports no-op.
	ok, err = facade.RevokeByAccessToken(ctx, pair.AccessToken, models.RevokeReasonLogout)
	if err != nil || ok {
		t.Fatalf("second revoke: ok=%v err=%v", ok, err)
	}

	if _, err := facade.RevokeByAccessToken(ctx, "garbage", models.RevokeReasonLogout); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for garbage token, got %v", err)
	}
}

func TestRevokeAllForUserDenylistsEveryJTI(t *testing.T) {
	ctx := context.Background()
	facade, _, tokenStorage := newTestFacade(t)

	var jtis []string
	for i := 0; i < 3; i++ {
		pair, err := facade.CreateTokenPair(ctx, issueRequest(), "10.0.0.1", "Mozilla/5.0")
		if err != nil {
			t.Fatalf("issue %d: %v", i, err)
		}
		jti, _ := facade.tokens.ExtractJTI(pair.AccessToken)
		jtis = append(jtis, jti)
	}

	count, err := facade.RevokeAllForUser(ctx, "u1", models.RevokeReasonAdmin)
	if err != nil {
		t.Fatalf("revoke all: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 revoked, got %d", count)
	}
	for _, jti := range jtis {
		denied, err := tokenStorage.IsTokenInvalidated(ctx, jti)
		if err != nil || !denied {
			t.Fatalf("jti %s not denylisted: denied=%v err=%v", jti, denied, err)
		}
	}
}

func TestRevokeSessionDenylistsCurrentJTI(t *testing.T) {
	ctx := context.Background()
	facade, _, tokenStorage := newTestFacade(t)

	pair, err := facade.CreateTokenPair(ctx, issueRequest(), "10.0.0.1", "Mozilla/5.0")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	ok, err := facade.RevokeSession(ctx, pair.SessionID, models.RevokeReasonAdmin)
	if err != nil || !ok {
		t.Fatalf("revoke: ok=%v err=%v", ok, err)
	}

	jti, _ := facade.tokens.ExtractJTI(pair.AccessToken)
	denied, _ := tokenStorage.IsTokenInvalidated(ctx, jti)
	if !denied {
		t.Fatal("current jti not denylisted")
	}
	if _, _, err := facade.tokens.ValidateAccessToken(ctx, pair.AccessToken); !errors.Is(err, ErrAccessTokenRevoked) {
		t.Fatalf("expected ErrAccessTokenRevoked, got %v", err)
	}
}
