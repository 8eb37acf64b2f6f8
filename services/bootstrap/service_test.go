package bootstrap

import (
	"context"
	"testing"

	"moralduel-controlplane/pkg/config"
	"moralduel-controlplane/services/testutil"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestMigrate(t *testing.T) {
	db := testutil.NewTestDB(t)

	cfg := &config.Config{}
	svc := NewService(ServiceParams{DB: db, Config: cfg})

	require.NoError(t, svc.Migrate(context.Background()))
	require.False(t, db.Migrator().HasTable("cases"))

	cfg.Database.AutoMigrate = true
	require.NoError(t, svc.Migrate(context.Background()))
	for _, table := range []string{"cases", "votes", "arguments", "argument_likes", "rewards", "balances", "ledger_entries", "leaderboard_entries", "jobs"} {
		require.True(t, db.Migrator().HasTable(table), table)
	}

	// running twice is harmless
	require.NoError(t, svc.Migrate(context.Background()))
}
