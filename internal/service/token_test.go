package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/upravdom/sessiond/internal/storage/memory"
	"github.com/upravdom/sessiond/internal/util"
)

func newTestTokenService() (*TokenService, *memory.InMemoryTokenStorage) {
	tokenStorage := memory.NewTokenStorage()
	cfg := &util.TokenConfig{
		JwtSecretKey: []byte("test-jwt-secret"),
		AccessTTL:    time.Minute,
	}
	return NewTokenService(cfg, tokenStorage), tokenStorage
}

func TestAccessTokenRoundTrip(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestTokenService()

	token, jti, err := ts.CreateAccessToken("u1", "s1", time.Now().UTC())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if jti == "" {
		t.Fatal("empty jti")
	}

	userID, sessionID, err := ts.ValidateAccessToken(ctx, token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if userID != "u1" || sessionID != "s1" {
		t.Fatalf("claims mismatch: uid=%s sid=%s", userID, sessionID)
	}

	got, err := ts.ExtractJTI(token)
	if err != nil || got != jti {
		t.Fatalf("ExtractJTI = %q, %v; want %q", got, err, jti)
	}
}

func TestAccessTokenWithChosenJTI(t *testing.T) {
	ts, _ := newTestTokenService()

	token, err := ts.CreateAccessTokenWithJTI("u1", "s1", time.Now().UTC(), "jti-chosen")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	got, err := ts.ExtractJTI(token)
	if err != nil || got != "jti-chosen" {
		t.Fatalf("ExtractJTI = %q, %v", got, err)
	}
}

func TestDenylistedTokenIsRevoked(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestTokenService()

	token, _, err := ts.CreateAccessToken("u1", "s1", time.Now().UTC())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := ts.InvalidateAccessToken(ctx, token); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if _, _, err := ts.ValidateAccessToken(ctx, token); !errors.Is(err, ErrAccessTokenRevoked) {
		t.Fatalf("expected ErrAccessTokenRevoked, got %v", err)
	}
}

func TestExpiredTokenRejected(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestTokenService()

	// Issued long enough ago that leeway cannot save it.
	token, _, err := ts.CreateAccessToken("u1", "s1", time.Now().UTC().Add(-time.Hour))
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, _, err := ts.ValidateAccessToken(ctx, token); err == nil {
		t.Fatal("expired token validated")
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestTokenService()

	token, _, err := ts.CreateAccessToken("u1", "s1", time.Now().UTC())
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	// Flip a character in the signature segment.
	parts := strings.Split(token, ".")
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := strings.Join([]string{parts[0], parts[1], string(sig)}, ".")

	if _, _, err := ts.ValidateAccessToken(ctx, tampered); err == nil {
		t.Fatal("tampered token validated")
	}
}

func TestForeignSigningMethodRejected(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestTokenService()

	// HS256 token signed with the same key still fails the method allowlist.
	claims := &jwtClaims{
		UserID:    "u1",
		SessionID: "s1",
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "jti-x",
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(time.Minute)),
		},
	}
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-jwt-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, _, err := ts.ValidateAccessToken(ctx, foreign); err == nil {
		t.Fatal("HS256 token accepted")
	}
}

func TestMalformedTokenRejected(t *testing.T) {
	ctx := context.Background()
	ts, _ := newTestTokenService()

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		if _, _, err := ts.ValidateAccessToken(ctx, token); !errors.Is(err, ErrAccessTokenMalformed) {
			t.Fatalf("token %q: expected ErrAccessTokenMalformed, got %v", token, err)
		}
		if _, err := ts.ExtractJTI(token); !errors.Is(err, ErrAccessTokenMalformed) {
			t.Fatalf("token %q: ExtractJTI expected ErrAccessTokenMalformed, got %v", token, err)
		}
	}
}
