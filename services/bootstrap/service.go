package bootstrap

import (
	"context"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/services/badge"
	"moralduel-controlplane/services/cases"
	"moralduel-controlplane/services/leaderboard"
	"moralduel-controlplane/services/ledger"
	"moralduel-controlplane/services/reward"
	"moralduel-controlplane/services/task"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	config *config.Config
}

type ServiceParams struct {
	fx.In
	DB     *gorm.DB
	Config *config.Config
}

func NewService(p ServiceParams) *Service {
	return &Service{
		db:     p.DB,
		config: p.Config,
	}
}

// Models lists every table of the control plane.
func Models() []any {
	var out []any
	out = append(out, cases.Models()...)
	out = append(out, reward.Models()...)
	out = append(out, ledger.Models()...)
	out = append(out, leaderboard.Models()...)
	out = append(out, badge.Models()...)
	out = append(out, task.Models()...)
	return out
}

// Migrate creates or alters the tables when DATABASE.AUTO_MIGRATE is set.
func (s *Service) Migrate(ctx context.Context) error {
	if !s.config.Database.AutoMigrate {
		zap.L().Info("[bootstrap] Auto migration disabled")
		return nil
	}

	models := Models()
	if err := s.db.WithContext(ctx).AutoMigrate(models...); err != nil {
		zap.L().Error("[bootstrap] Failed to migrate schema", zap.Error(err))
		return err
	}

	zap.L().Info("[bootstrap] Schema migrated", zap.Int("tables", len(models)))
	return nil
}
