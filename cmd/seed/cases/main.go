package main

import (
	"context"
	"flag"
	"log"

	"moralduel-controlplane/pkg/authz"
	"moralduel-controlplane/pkg/chain"
	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/pkg/db"
	"moralduel-controlplane/pkg/gen"
	"moralduel-controlplane/pkg/logger"
	"moralduel-controlplane/services/bootstrap"
	"moralduel-controlplane/services/cases"
	"moralduel-controlplane/services/generator"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

var count = flag.Int("n", 3, "number of cases to create")

// seed creates active system cases through the lifecycle controller. Without
// an AI key the built-in dilemma catalog is used.
func seed(lc fx.Lifecycle, shutdown fx.Shutdowner, svc *cases.Service) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				created := 0
				for i := 0; i < *count; i++ {
					c, err := svc.CreateSystemCase(context.Background())
					if err != nil {
						zap.L().Error("[seed] failed to create case", zap.Error(err))
						continue
					}
					created++
					zap.L().Info("[seed] case created", zap.String("case_id", c.ID), zap.String("code", c.Code), zap.String("title", c.Title))
				}
				zap.L().Info("[seed] done", zap.Int("created", created))
				_ = shutdown.Shutdown()
			}()
			return nil
		},
	})
}

func main() {
	flag.Parse()

	opts := []fx.Option{
		config.Module,
		logger.Module,
		db.Module,
		gen.Module,
		authz.Module,
		chain.Module,
		bootstrap.Module,
		generator.Module,
		cases.Module,
		fx.Invoke(seed),
		fx.WithLogger(func(cfg *config.Config, logger *zap.Logger) fxevent.Logger {
			return fxevent.NopLogger
		}),
	}

	if err := fx.ValidateApp(opts...); err != nil {
		log.Fatalf("fx validation failed: %v", err)
	}

	fx.New(opts...).Run()
}
