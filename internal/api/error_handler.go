package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/service"
	"github.com/upravdom/sessiond/internal/storage"
	"github.com/upravdom/sessiond/internal/util"
)

func ErrorHandler(log *zap.SugaredLogger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		// The auth taxonomy collapses to one uniform 401: callers must not
		// be able to tell an expired token from a replayed one.
		if isUnauthorizedTokenError(err) {
			c.JSON(http.StatusUnauthorized, map[string]string{"reason": "unauthorized"})
			return
		}

		if errors.Is(err, storage.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, map[string]string{"reason": "session not found"})
			return
		}

		if errors.Is(err, storage.ErrDuplicateHash) {
			log.Errorw("refresh hash collision", "error", err, "uri", c.Request().RequestURI)
			c.JSON(http.StatusInternalServerError, map[string]string{"reason": "internal server error"})
			return
		}

		var respErr util.ResponseError
		if errors.As(err, &respErr) {
			c.JSON(respErr.Status, map[string]string{"reason": respErr.Msg})
			return
		}

		he, ok := err.(*echo.HTTPError)
		if ok {
			if he.Code == http.StatusInternalServerError {
				log.Errorw("HTTP error", "error", err, "uri", c.Request().RequestURI)
			}
			msg, isStr := he.Message.(string)
			if !isStr {
				msg = http.StatusText(he.Code)
			}
			if err := c.JSON(he.Code, map[string]string{"reason": msg}); err != nil {
				log.Errorw("failed to write json response", "error", err)
			}
			return
		}

		log.Errorw("unhandled error", "error", err, "uri", c.Request().RequestURI)
		c.JSON(http.StatusInternalServerError, map[string]string{"reason": "internal server error"})
	}
}

func isUnauthorizedTokenError(err error) bool {
	return errors.Is(err, service.ErrInvalidToken) ||
		errors.Is(err, service.ErrExpiredToken) ||
		errors.Is(err, service.ErrReplayDetected) ||
		errors.Is(err, service.ErrAccessTokenInvalid) ||
		errors.Is(err, service.ErrAccessTokenMalformed) ||
		errors.Is(err, service.ErrAccessTokenRevoked)
}
