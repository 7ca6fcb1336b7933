package api

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/controller"
	"github.com/upravdom/sessiond/internal/service"
	"github.com/upravdom/sessiond/internal/storage"
	"github.com/upravdom/sessiond/internal/util"
)

const (
	shutdownTimeout = 5 * time.Second
)

type API struct {
	server           *echo.Echo
	controller       *controller.Controller
	janitor          *service.SessionJanitor
	log              *zap.SugaredLogger
	gracefulTimeout  time.Duration
	apiKeyRepository storage.APIKeyRepository
}

func NewAPI(c *controller.Controller, janitor *service.SessionJanitor, apiKeyRepository storage.APIKeyRepository, sc *util.ServerConfig, l *zap.SugaredLogger) *API {
	e := echo.New()

	e.Server.Addr = sc.ServerAddr
	e.Server.WriteTimeout = sc.WriteTimeout
	e.Server.ReadTimeout = sc.ReadTimeout
	e.Server.IdleTimeout = sc.IdleTimeout
	e.HTTPErrorHandler = ErrorHandler(l)

	return &API{
		server:           e,
		controller:       c,
		janitor:          janitor,
		log:              l,
		gracefulTimeout:  sc.GracefulTimeout,
		apiKeyRepository: apiKeyRepository,
	}
}

func (a *API) Run(ctxBackground context.Context) {
	ctx, stop := signal.NotifyContext(ctxBackground, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a.server.Use(APIKeyAuthMiddleware(a.apiKeyRepository))
	a.server.Use(echomiddleware.RequestLoggerWithConfig(GetLoggerMiddlewareConfig(a)))

	controller.RegisterHandlers(a.server, a.controller, "/api")

	go a.janitor.Run(ctx)

	a.ListenGracefulShutdown(ctx)
}

func (a *API) ListenGracefulShutdown(ctx context.Context) {
	go func() {
		err := a.server.Start(a.server.Server.Addr)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Fatalf("HTTP server ListenAndServe: %v", err)
		}
	}()
	a.log.Infof("Listening on: %s", a.server.Server.Addr)

	<-ctx.Done()
	a.log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err := a.server.Shutdown(shutdownCtx)
	if err != nil {
		a.log.Errorf("shutdown: %v", err)
	}

	longShutdown := make(chan struct{}, 1)

	go func() {
		time.Sleep(a.gracefulTimeout)
		longShutdown <- struct{}{}
	}()

	select {
	case <-shutdownCtx.Done():
		if errors.Is(ctx.Err(), context.Canceled) {
			a.log.Info("server shutdown completed")
		} else {
			a.log.Errorf("server shutdown: %v", ctx.Err())
		}
	case <-longShutdown:
		a.log.Infof("finished")
	}
}
