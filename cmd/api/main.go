package main

import (
	"log"

	"moralduel-controlplane/internal/httpapi"
	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/chain"
	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/db"
	"moralduel-controlplane/pkg/featureflags"
	"moralduel-controlplane/pkg/gen"
	"moralduel-controlplane/pkg/hashistack/secretmanager"
	"moralduel-controlplane/pkg/health"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/pkg/minio"
	"moralduel-controlplane/pkg/otelcol"
	"moralduel-controlplane/pkg/profiling"
	"moralduel-controlplane/pkg/redis"
	"moralduel-controlplane/pkg/sequence"
	"moralduel-controlplane/pkg/server"
	"moralduel-controlplane/pkg/task"
	"moralduel-controlplane/services/badge"
	"moralduel-controlplane/services/bootstrap"
	"moralduel-controlplane/services/cases"
	"moralduel-controlplane/services/generator"
	"moralduel-controlplane/services/leaderboard"
	"moralduel-controlplane/services/ledger"
	"moralduel-controlplane/services/participation"
	"moralduel-controlplane/services/reward"
	"moralduel-controlplane/services/settlement"
	casetask "moralduel-controlplane/services/task"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	opts := []fx.Option{
		secretmanager.Module,
		config.Select(),
		logger.Module,
		otelcol.Module,
		profiling.Module,
		db.Module,
		redis.Module,
		sequence.Module,
		gen.Module,
		authz.Module,
		featureflags.Module,
		chain.Module,
		minio.Client,
		task.Client,
		health.Module,
		bootstrap.Module,
		generator.Module,
		cases.Module,
		participation.Module,
		reward.Module,
		ledger.Module,
		settlement.Module,
		leaderboard.Module,
		badge.Module,
		casetask.Module,
		httpapi.Module,
		server.ProvideHTTPServer,
		fxLogger,
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	app := fx.New(opts...)

	app.Run()
}

var fxLogger = fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
	return fxevent.NopLogger
})
