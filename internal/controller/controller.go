package controller

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/models"
	"github.com/upravdom/sessiond/internal/service"
)

// Controller translates the HTTP surface into facade/coordinator calls. It
// holds no session logic of its own.
type Controller struct {
	log    *zap.SugaredLogger
	facade *service.TokenRotationFacade
	coord  *service.SessionCoordinator
	trust  *service.DeviceTrustManager
}

func NewController(log *zap.SugaredLogger, facade *service.TokenRotationFacade, coord *service.SessionCoordinator, trust *service.DeviceTrustManager) *Controller {
	return &Controller{
		log:    log,
		facade: facade,
		coord:  coord,
		trust:  trust,
	}
}

// (GET /api/ping).
func (c *Controller) CheckServer(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, "ok")
}

// (POST /api/tokens).
func (c *Controller) IssueTokens(ctx echo.Context) error {
	var req models.TokenIssueRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.UserID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "user_id is required")
	}

	pair, err := c.facade.CreateTokenPair(ctx.Request().Context(), req, ctx.RealIP(), ctx.Request().UserAgent())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pair)
}

// (POST /api/tokens/refresh).
func (c *Controller) RefreshTokens(ctx echo.Context) error {
	var req models.TokenRefreshRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RefreshToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "refresh_token is required")
	}

	pair, err := c.facade.RotateTokens(ctx.Request().Context(), req.RefreshToken, ctx.RealIP(), ctx.Request().UserAgent())
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, pair)
}

// (POST /api/tokens/revoke).
func (c *Controller) RevokeTokens(ctx echo.Context) error {
	var req models.TokenRevokeRequest
	if err := ctx.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.AccessToken == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "access_token is required")
	}

	revoked, err := c.facade.RevokeByAccessToken(ctx.Request().Context(), req.AccessToken, models.RevokeReasonLogout)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.RevokeCountResponse{Revoked: boolToCount(revoked)})
}

// (GET /api/users/:userID/sessions).
func (c *Controller) ListUserSessions(ctx echo.Context) error {
	sessions, err := c.coord.ListSessions(ctx.Request().Context(), ctx.Param("userID"))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, sessions)
}

// (DELETE /api/users/:userID/sessions).
func (c *Controller) RevokeUserSessions(ctx echo.Context) error {
	count, err := c.facade.RevokeAllForUser(ctx.Request().Context(), ctx.Param("userID"), models.RevokeReasonAdmin)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.RevokeCountResponse{Revoked: count})
}

// (DELETE /api/sessions/:id).
func (c *Controller) RevokeSession(ctx echo.Context) error {
	revoked, err := c.facade.RevokeSession(ctx.Request().Context(), ctx.Param("id"), models.RevokeReasonAdmin)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, models.RevokeCountResponse{Revoked: boolToCount(revoked)})
}

// (POST /api/sessions/:id/trust).
func (c *Controller) TrustDevice(ctx echo.Context) error {
	if _, err := c.trust.TrustDevice(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

// (DELETE /api/sessions/:id/trust).
func (c *Controller) UntrustDevice(ctx echo.Context) error {
	if _, err := c.trust.UntrustDevice(ctx.Request().Context(), ctx.Param("id")); err != nil {
		return err
	}
	return ctx.NoContent(http.StatusNoContent)
}

func RegisterHandlers(e *echo.Echo, c *Controller, base string) {
	g := e.Group(base)
	g.GET("/ping", c.CheckServer)
	g.POST("/tokens", c.IssueTokens)
	g.POST("/tokens/refresh", c.RefreshTokens)
	g.POST("/tokens/revoke", c.RevokeTokens)
	g.GET("/users/:userID/sessions", c.ListUserSessions)
	g.DELETE("/users/:userID/sessions", c.RevokeUserSessions)
	g.DELETE("/sessions/:id", c.RevokeSession)
	g.POST("/sessions/:id/trust", c.TrustDevice)
	g.DELETE("/sessions/:id/trust", c.UntrustDevice)
}

func boolToCount(b bool) int {
	if b {
		return 1
	}
	return 0
}
