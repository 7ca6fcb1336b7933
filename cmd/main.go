package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/upravdom/sessiond/internal/api"
	"github.com/upravdom/sessiond/internal/controller"
	"github.com/upravdom/sessiond/internal/migrations"
	"github.com/upravdom/sessiond/internal/service"
	"github.com/upravdom/sessiond/internal/storage/postgres"
	"github.com/upravdom/sessiond/internal/storage/redis"
	"github.com/upravdom/sessiond/internal/util"

	_ "github.com/lib/pq"
)

func main() {
	ctx := context.Background()
	logger := util.NewZapLogger()

	db, dbCleanup, err := util.NewDBConnection(logger)
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	defer dbCleanup()
	if err := migrations.RunMigrations(db, logger, "./internal/migrations"); err != nil {
		logger.Fatal(zap.Error(err))
	}

	redisClient, redisCleanup, err := util.NewRedisClient(logger, util.NewRedisConfig())
	if err != nil {
		logger.Fatal(zap.Error(err))
	}
	defer redisCleanup()

	apiKeyService := service.NewAPIKeyService(redisClient, logger)
	if err := apiKeyService.SyncAPIKey(ctx); err != nil {
		logger.Fatal(zap.Error(err))
	}

	store := postgres.NewStorage(db)
	sessionCfg := util.NewSessionConfig()
	tokenCfg := util.NewTokenConfig()

	webhook := service.NewWebhookNotifier(logger, util.GetSecurityWebhookURL())
	audit := service.NewAuditRecorder(store, webhook, logger)

	hasher := service.NewSecretHasher(tokenCfg.HashKey)
	policy := service.NewExpiryPolicy(sessionCfg)
	coordinator := service.NewSessionCoordinator(store, hasher, policy, audit, logger, sessionCfg.SessionCap)
	trust := service.NewDeviceTrustManager(store, policy, audit, logger)
	janitor := service.NewSessionJanitor(store, audit, logger, sessionCfg)

	tokenStorage := redis.NewTokenStorage(redisClient)
	tokenService := service.NewTokenService(tokenCfg, tokenStorage)
	facade := service.NewTokenRotationFacade(coordinator, tokenService, logger)

	ctrl := controller.NewController(logger, facade, coordinator, trust)

	apiServer := api.NewAPI(ctrl, janitor, apiKeyService, util.NewServerConfig(), logger)
	apiServer.Run(ctx)
}
