package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/upravdom/sessiond/internal/storage"
	"github.com/upravdom/sessiond/internal/util"
)

var (
	ErrAccessTokenInvalid   = errors.New("access token invalid")
	ErrAccessTokenMalformed = errors.New("access token is malformed")
	ErrAccessTokenRevoked   = errors.New("access token revoked")
	ErrInvalidSigningMethod = errors.New("invalid signing method")
)

// TokenService mints and verifies the short-lived access tokens paired with a
// session. Revocation goes through the JTI denylist so an access token dies
// with its session instead of outliving it until exp.
type TokenService struct {
	jwtSecretKey []byte
	accessTTL    time.Duration
	tokenStorage storage.TokenStorage
}

func NewTokenService(cfg *util.TokenConfig, tokenStorage storage.TokenStorage) *TokenService {
	return &TokenService{
		jwtSecretKey: cfg.JwtSecretKey,
		accessTTL:    cfg.AccessTTL,
		tokenStorage: tokenStorage,
	}
}

type jwtClaims struct {
	UserID    string `json:"uid"`
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func (ts *TokenService) AccessTTL() time.Duration { return ts.accessTTL }

// CreateAccessToken mints an HS512 signed access token with a fresh JTI.
// The JTI is the session's accessTokenRef.
func (ts *TokenService) CreateAccessToken(userID, sessionID string, now time.Time) (string, string, error) {
	jti := uuid.NewString()
	signedToken, err := ts.CreateAccessTokenWithJTI(userID, sessionID, now, jti)
	if err != nil {
		return "", "", err
	}
	return signedToken, jti, nil
}

// CreateAccessTokenWithJTI mints an access token carrying a caller-chosen
// JTI. Rotation picks the JTI first so the session row and the token agree.
func (ts *TokenService) CreateAccessTokenWithJTI(userID, sessionID string, now time.Time, jti string) (string, error) {
	claims := &jwtClaims{
		UserID:    userID,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ts.accessTTL)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS512, claims)
	signedToken, err := token.SignedString(ts.jwtSecretKey)
	if err != nil {
		return "", fmt.Errorf("signed string: %w", err)
	}

	return signedToken, nil
}

// ValidateAccessToken checks the denylist first, then signature and expiry.
// Returns the owning userID and sessionID.
func (ts *TokenService) ValidateAccessToken(ctx context.Context, token string) (string, string, error) {
	claims, err := ts.getClaimsFromToken(token)
	if err != nil {
		return "", "", err
	}

	isInvalidated, err := ts.tokenStorage.IsTokenInvalidated(ctx, claims.ID)
	if err != nil {
		return "", "", fmt.Errorf("failed to check if token is invalidated: %w", err)
	}
	if isInvalidated {
		return "", "", ErrAccessTokenRevoked
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS512.Alg()}),
		jwt.WithLeeway(util.JWTLeeWay),
		jwt.WithExpirationRequired(),
	}

	parsedToken, err := jwt.ParseWithClaims(
		token,
		&jwtClaims{},
		func(t *jwt.Token) (interface{}, error) {
			if t.Method.Alg() != jwt.SigningMethodHS512.Alg() {
				return nil, ErrInvalidSigningMethod
			}
			return ts.jwtSecretKey, nil
		},
		opts...,
	)
	if err != nil {
		return "", "", fmt.Errorf("parse token claims: %w", err)
	}

	if parsedToken == nil || !parsedToken.Valid {
		return "", "", ErrAccessTokenInvalid
	}

	parsed, ok := parsedToken.Claims.(*jwtClaims)
	if !ok || parsed.UserID == "" {
		return "", "", ErrAccessTokenInvalid
	}

	return parsed.UserID, parsed.SessionID, nil
}

// InvalidateAccessToken denylists the token's JTI for its remaining lifetime.
func (ts *TokenService) InvalidateAccessToken(ctx context.Context, accessToken string) error {
	claims, err := ts.getClaimsFromToken(accessToken)
	if err != nil {
		return fmt.Errorf("get claims from token: %w", err)
	}
	return ts.InvalidateJTI(ctx, claims.ID, time.Until(claims.ExpiresAt.Time))
}

func (ts *TokenService) InvalidateJTI(ctx context.Context, jti string, remaining time.Duration) error {
	if err := ts.tokenStorage.InvalidateToken(ctx, jti, remaining); err != nil {
		return fmt.Errorf("invalidate token: %w", err)
	}
	return nil
}

// ExtractJTI parses the token without verifying the signature. Revocation by
// access token only needs the reference, not a valid token.
func (ts *TokenService) ExtractJTI(accessToken string) (string, error) {
	claims, err := ts.getClaimsFromToken(accessToken)
	if err != nil {
		return "", err
	}
	return claims.ID, nil
}

func (ts *TokenService) getClaimsFromToken(token string) (*jwtClaims, error) {
	parsedToken, _, err := new(jwt.Parser).ParseUnverified(token, &jwtClaims{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrAccessTokenMalformed, err)
	}

	claims, ok := parsedToken.Claims.(*jwtClaims)
	if !ok || claims.ExpiresAt == nil {
		return nil, ErrAccessTokenMalformed
	}

	return claims, nil
}
