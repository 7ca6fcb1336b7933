package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/storage"
)

// TokenRotationFacade is the only component aware of both the session state
// machine and the signing capability. It performs no state mutation of its
// own beyond what the coordinator does.
type TokenRotationFacade struct {
	coordinator *SessionCoordinator
	tokens      *TokenService
	log         *zap.SugaredLogger
}

func NewTokenRotationFacade(coordinator *SessionCoordinator, tokens *TokenService, log *zap.SugaredLogger) *TokenRotationFacade {
	return &TokenRotationFacade{coordinator: coordinator, tokens: tokens, log: log}
}

// CreateTokenPair opens a session and mints the access+refresh pair bound to
// it. The session id is chosen up front so the access token's sid claim and
// the stored row agree.
func (f *TokenRotationFacade) CreateTokenPair(ctx context.Context, req models.TokenIssueRequest, ipAddress, userAgent string) (*models.TokenPairResponse, error) {
	now := time.Now().UTC()
	sessionID := uuid.NewString()

	accessToken, jti, err := f.tokens.CreateAccessToken(req.UserID, sessionID, now)
	if err != nil {
		return nil, fmt.Errorf("failed to mint access token: %w", err)
	}

	refreshSecret, err := GenerateRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh secret: %w", err)
	}

	session, err := f.coordinator.CreateSession(ctx, CreateSessionParams{
		SessionID:         sessionID,
		UserID:            req.UserID,
		DeviceFingerprint: req.DeviceFingerprint,
		DeviceName:        req.DeviceName,
		DeviceType:        models.ParseDeviceType(req.DeviceType),
		UserAgent:         userAgent,
		IPAddress:         ipAddress,
		Location:          req.Location,
		Trusted:           req.Trusted,
		AccessTokenJTI:    jti,
	}, refreshSecret)
	if err != nil {
		return nil, err
	}

	return &models.TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: refreshSecret,
		SessionID:    session.ID,
		ExpiresIn:    int64(f.tokens.AccessTTL().Seconds()),
		Session:      session,
	}, nil
}

// RotateTokens exchanges a refresh secret for a fresh pair. The new JTI is
// fixed before the store write, so the rotation either installs both the new
// hash and the new access reference or neither.
func (f *TokenRotationFacade) RotateTokens(ctx context.Context, refreshSecret, ipAddress, userAgent string) (*models.TokenPairResponse, error) {
	newSecret, err := GenerateRefreshSecret()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refresh secret: %w", err)
	}
	newJTI := uuid.NewString()

	session, err := f.coordinator.Rotate(ctx, refreshSecret, newSecret, newJTI)
	if err != nil {
		return nil, err
	}

	if ipAddress != "" || userAgent != "" {
		if err := f.coordinator.UpdateActivity(ctx, session.ID, ipAddress, userAgent, ""); err != nil {
			f.log.Errorw("failed to update session metadata after rotation", "sessionID", session.ID, "error", err)
		}
	}

	accessToken, err := f.tokens.CreateAccessTokenWithJTI(session.UserID, session.ID, time.Now().UTC(), newJTI)
	if err != nil {
		return nil, fmt.Errorf("failed to mint access token: %w", err)
	}

	return &models.TokenPairResponse{
		AccessToken:  accessToken,
		RefreshToken: newSecret,
		SessionID:    session.ID,
		ExpiresIn:    int64(f.tokens.AccessTTL().Seconds()),
		Session:      session,
	}, nil
}

// RevokeByAccessToken looks up the session owning the token's JTI, revokes
// it, and denylists the token for its remaining lifetime. The token's
// signature is not required to be valid; the reference alone identifies the
// session.
func (f *TokenRotationFacade) RevokeByAccessToken(ctx context.Context, accessToken, reason string) (bool, error) {
	jti, err := f.tokens.ExtractJTI(accessToken)
	if err != nil {
		return false, ErrInvalidToken
	}

	_, err = f.coordinator.RevokeByAccessTokenJTI(ctx, jti, reason)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return false, nil
		}
		return false, err
	}

	if err := f.tokens.InvalidateAccessToken(ctx, accessToken); err != nil {
		f.log.Errorw("failed to denylist access token", "jti", jti, "error", err)
	}
	return true, nil
}

// RevokeSession revokes one session by id and denylists its current access
// token reference.
func (f *TokenRotationFacade) RevokeSession(ctx context.Context, sessionID, reason string) (bool, error) {
	session, err := f.coordinator.GetSession(ctx, sessionID)
	if err != nil {
		return false, err
	}

	ok, err := f.coordinator.Revoke(ctx, sessionID, reason)
	if err != nil || !ok {
		return ok, err
	}

	if session.AccessTokenJTI != "" {
		if err := f.tokens.InvalidateJTI(ctx, session.AccessTokenJTI, f.tokens.AccessTTL()); err != nil {
			f.log.Errorw("failed to denylist access token", "jti", session.AccessTokenJTI, "error", err)
		}
	}
	return true, nil
}

// RevokeAllForUser revokes every active session of the user and denylists
// each session's current access token reference.
func (f *TokenRotationFacade) RevokeAllForUser(ctx context.Context, userID, reason string) (int, error) {
	sessions, err := f.coordinator.ListSessions(ctx, userID)
	if err != nil {
		return 0, err
	}

	count, err := f.coordinator.RevokeAllForUser(ctx, userID, reason)
	if err != nil {
		return 0, err
	}

	for _, s := range sessions {
		if s.AccessTokenJTI == "" {
			continue
		}
		if err := f.tokens.InvalidateJTI(ctx, s.AccessTokenJTI, f.tokens.AccessTTL()); err != nil {
			f.log.Errorw("failed to denylist access token", "jti", s.AccessTokenJTI, "error", err)
		}
	}
	return count, nil
}
