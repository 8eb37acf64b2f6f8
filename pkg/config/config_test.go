package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))

	require.Equal(t, 24*time.Hour, cfg.Case.Duration)
	require.Equal(t, int64(40), cfg.Reward.WinningVotersPercent)
	require.Equal(t, int64(30), cfg.Reward.TopArgumentsPercent)
	require.Equal(t, int64(20), cfg.Reward.AllParticipantsPercent)
	require.Equal(t, int64(10), cfg.Reward.CreatorPercent)
	require.Equal(t, []int64{50, 30, 20}, cfg.Reward.TopWeights)
	require.Equal(t, int64(100), cfg.Reward.CreatorThreshold)
	require.Equal(t, 5*time.Minute, cfg.Scheduler.SweepInterval)
	require.Equal(t, 30*time.Second, cfg.Scheduler.SettlementInterval)
	require.Equal(t, time.Hour, cfg.Scheduler.BadgeInterval)
	require.Equal(t, 100, cfg.Ledger.BatchSize)
	require.Equal(t, 24*time.Hour, cfg.Ledger.StaleAfter)
}

func TestYAMLOverridesDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.SetConfigType("yaml")
	require.NoError(t, v.ReadConfig(strings.NewReader(`
REWARD:
  CREATOR_THRESHOLD: 5
CASE:
  DURATION: 2h
`)))

	var cfg Config
	require.NoError(t, v.Unmarshal(&cfg))
	require.Equal(t, int64(5), cfg.Reward.CreatorThreshold)
	require.Equal(t, 2*time.Hour, cfg.Case.Duration)
	require.Equal(t, int64(40), cfg.Reward.WinningVotersPercent)
}

func TestCurrentFallsBack(t *testing.T) {
	fallback := &Config{AppName: "fallback"}
	if _, ok := configHolder.Load().(*Config); !ok {
		require.Same(t, fallback, Current(fallback))
	}

	loaded := &Config{AppName: "loaded"}
	configHolder.Store(loaded)
	require.Same(t, loaded, Current(fallback))
}

func TestSelect(t *testing.T) {
	t.Setenv("REMOTE_CONFIG_PROVIDER", "etcd3")
	require.Equal(t, RemoteModule, Select())
}
