package config

import (
	"context"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/vault-client-go"
	"github.com/spf13/viper"
	_ "github.com/spf13/viper/remote"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	config       = viper.New()
	configHolder atomic.Value
	backend      = "consul"
	backendAddr  = "127.0.0.1:8500"
	backendPath  = "development" // e.g., app/<env>/<service_name>
	configType   = "yaml"
)

type Config struct {
	AppEnv     string `mapstructure:"APP_ENV"`
	AppName    string `mapstructure:"APP_NAME"`
	AppVersion string `mapstructure:"APP_VERSION"`
	AppNodeID  int64  `mapstructure:"APP_NODE_ID"`
	TLS        struct {
		Enable   bool   `mapstructure:"ENABLE"`
		CertPath string `mapstructure:"CERT_PATH"`
		KeyPath  string `mapstructure:"KEY_PATH"`
	} `mapstructure:"TLS"`
	Otel struct {
		Addr     string `mapstructure:"ADDR"`
		Protocol string `mapstructure:"PROTOCOL"`
	} `mapstructure:"OTEL"`
	Pyroscope struct {
		Addr string `mapstructure:"ADDR"`
	} `mapstructure:"PYROSCOPE"`
	Metrics struct {
		Enable bool   `mapstructure:"ENABLE"`
		Port   uint32 `mapstructure:"PORT"`
	} `mapstructure:"METRICS"`
	Server struct {
		Addr         string        `mapstructure:"ADDR"`
		ReadTimeout  time.Duration `mapstructure:"READ_TIMEOUT"`
		WriteTimeout time.Duration `mapstructure:"WRITE_TIMEOUT"`
		IdleTimeout  time.Duration `mapstructure:"IDLE_TIMEOUT"`
	} `mapstructure:"HTTP_SERVER"`
	Database struct {
		Type           string `mapstructure:"TYPE"`
		Host           string `mapstructure:"HOST"`
		Port           string `mapstructure:"PORT"`
		DBNAME         string `mapstructure:"DBNAME"`
		User           string `mapstructure:"USER"`
		Password       string `mapstructure:"PASSWORD"`
		SSLMode        string `mapstructure:"SSLMODE"`
		Timezone       string `mapstructure:"TIMEZONE"`
		AutoMigrate    bool   `mapstructure:"AUTO_MIGRATE"`
		ConnectionPool struct {
			MaxIdleConn     int           `mapstructure:"MAX_IDLE_CONN"`
			MaxOpenConns    int           `mapstructure:"MAX_OPEN_CONNS"`
			ConnMaxLifetime time.Duration `mapstructure:"CONN_MAX_LIFETIME"`
			ConnMaxIdleTime time.Duration `mapstructure:"CONN_MAX_IDLE_TIME"`
		} `mapstructure:"CONNECTION_POOL"`
	} `mapstructure:"DATABASE"`
	Redis struct {
		Addr        string        `mapstructure:"ADDR"`
		Password    string        `mapstructure:"PASSWORD"`
		DB          int           `mapstructure:"DB"`
		PoolSize    int           `mapstructure:"POOL_SIZE"`
		PoolTimeout time.Duration `mapstructure:"POOL_TIMEOUT"`
	} `mapstructure:"REDIS"`
	AccessControl struct {
		Model  string `mapstructure:"MODEL"`
		Policy string `mapstructure:"POLICY"`
	} `mapstructure:"ACCESS_CONTROL"`
	Flagsmith struct {
		Addr   string `mapstructure:"ADDR"`
		ApiKey string `mapstructure:"API_KEY"`
	} `mapstructure:"FLAGSMITH"`
	Minio struct {
		Endpoint   string `mapstructure:"ENDPOINT"`
		AccessKey  string `mapstructure:"ACCESS_KEY"`
		SecretKey  string `mapstructure:"SECRET_KEY"`
		Secure     bool   `mapstructure:"SECURE"`
		BucketName string `mapstructure:"BUCKET_NAME"`
	} `mapstructure:"MINIO"`
	Case      CaseConfig      `mapstructure:"CASE"`
	Reward    RewardConfig    `mapstructure:"REWARD"`
	Scheduler SchedulerConfig `mapstructure:"SCHEDULER"`
	Ledger    LedgerConfig    `mapstructure:"LEDGER"`
	AI        AIConfig        `mapstructure:"AI"`
}

type CaseConfig struct {
	Duration          time.Duration `mapstructure:"DURATION"`
	DefaultRewardPool string        `mapstructure:"DEFAULT_REWARD_POOL"`
	TitleMin          int           `mapstructure:"TITLE_MIN"`
	TitleMax          int           `mapstructure:"TITLE_MAX"`
	ContextMin        int           `mapstructure:"CONTEXT_MIN"`
	ContextMax        int           `mapstructure:"CONTEXT_MAX"`
	ArgumentMin       int           `mapstructure:"ARGUMENT_MIN"`
	ArgumentMax       int           `mapstructure:"ARGUMENT_MAX"`
	SweepBatch        int           `mapstructure:"SWEEP_BATCH"`
}

type RewardConfig struct {
	WinningVotersPercent   int64   `mapstructure:"WINNING_VOTERS_PERCENT"`
	TopArgumentsPercent    int64   `mapstructure:"TOP_ARGUMENTS_PERCENT"`
	AllParticipantsPercent int64   `mapstructure:"ALL_PARTICIPANTS_PERCENT"`
	CreatorPercent         int64   `mapstructure:"CREATOR_PERCENT"`
	TopWeights             []int64 `mapstructure:"TOP_WEIGHTS"`
	CreatorThreshold       int64   `mapstructure:"CREATOR_THRESHOLD"`
	CreatorExpression      string  `mapstructure:"CREATOR_EXPRESSION"`
}

type SchedulerConfig struct {
	GenerationInterval  time.Duration `mapstructure:"GENERATION_INTERVAL"`
	SweepInterval       time.Duration `mapstructure:"SWEEP_INTERVAL"`
	SettlementInterval  time.Duration `mapstructure:"SETTLEMENT_INTERVAL"`
	LeaderboardInterval time.Duration `mapstructure:"LEADERBOARD_INTERVAL"`
	BadgeInterval       time.Duration `mapstructure:"BADGE_INTERVAL"`
	LockTTL             time.Duration `mapstructure:"LOCK_TTL"`
}

type LedgerConfig struct {
	Enabled     bool          `mapstructure:"ENABLED"`
	RPCURL      string        `mapstructure:"RPC_URL"`
	Contract    string        `mapstructure:"CONTRACT"`
	Timeout     time.Duration `mapstructure:"TIMEOUT"`
	BatchSize   int           `mapstructure:"BATCH_SIZE"`
	Concurrency int           `mapstructure:"CONCURRENCY"`
	StaleAfter  time.Duration `mapstructure:"STALE_AFTER"`
}

type AIConfig struct {
	ApiKey           string        `mapstructure:"API_KEY"`
	BaseURL          string        `mapstructure:"BASE_URL"`
	Model            string        `mapstructure:"MODEL"`
	Timeout          time.Duration `mapstructure:"TIMEOUT"`
	BypassModeration bool          `mapstructure:"BYPASS_MODERATION"`
}

var Module = fx.Module("config", fx.Provide(LoadConfig))
var RemoteModule = fx.Module("remote.config", fx.Provide(LoadRemote))

// Select returns RemoteModule when REMOTE_CONFIG_PROVIDER is set and the file
// based Module otherwise.
func Select() fx.Option {
	if _, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		return RemoteModule
	}
	return Module
}

type Params struct {
	fx.In
	Vault *vault.Client `optional:"true"`
}

// SetDefaults registers the defaults for every tunable on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("APP_NAME", "moralduel-controlplane")
	v.SetDefault("APP_NODE_ID", 1)
	v.SetDefault("HTTP_SERVER.ADDR", "8080")
	v.SetDefault("HTTP_SERVER.READ_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("HTTP_SERVER.IDLE_TIMEOUT", 60*time.Second)
	v.SetDefault("METRICS.PORT", 9464)
	v.SetDefault("DATABASE.TYPE", "postgres")
	v.SetDefault("DATABASE.SSLMODE", "disable")
	v.SetDefault("DATABASE.TIMEZONE", "UTC")
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_IDLE_CONN", 10)
	v.SetDefault("DATABASE.CONNECTION_POOL.MAX_OPEN_CONNS", 50)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_LIFETIME", time.Hour)
	v.SetDefault("DATABASE.CONNECTION_POOL.CONN_MAX_IDLE_TIME", 10*time.Minute)
	v.SetDefault("REDIS.POOL_SIZE", 10)
	v.SetDefault("REDIS.POOL_TIMEOUT", 5*time.Second)

	v.SetDefault("CASE.DURATION", 24*time.Hour)
	v.SetDefault("CASE.DEFAULT_REWARD_POOL", "1000")
	v.SetDefault("CASE.TITLE_MIN", 10)
	v.SetDefault("CASE.TITLE_MAX", 200)
	v.SetDefault("CASE.CONTEXT_MIN", 50)
	v.SetDefault("CASE.CONTEXT_MAX", 2000)
	v.SetDefault("CASE.ARGUMENT_MIN", 20)
	v.SetDefault("CASE.ARGUMENT_MAX", 300)
	v.SetDefault("CASE.SWEEP_BATCH", 100)

	v.SetDefault("REWARD.WINNING_VOTERS_PERCENT", 40)
	v.SetDefault("REWARD.TOP_ARGUMENTS_PERCENT", 30)
	v.SetDefault("REWARD.ALL_PARTICIPANTS_PERCENT", 20)
	v.SetDefault("REWARD.CREATOR_PERCENT", 10)
	v.SetDefault("REWARD.TOP_WEIGHTS", []int64{50, 30, 20})
	v.SetDefault("REWARD.CREATOR_THRESHOLD", 100)
	v.SetDefault("REWARD.CREATOR_EXPRESSION", "total_participants >= creator_threshold")

	v.SetDefault("SCHEDULER.GENERATION_INTERVAL", 12*time.Hour)
	v.SetDefault("SCHEDULER.SWEEP_INTERVAL", 5*time.Minute)
	v.SetDefault("SCHEDULER.SETTLEMENT_INTERVAL", 30*time.Second)
	v.SetDefault("SCHEDULER.LEADERBOARD_INTERVAL", 15*time.Minute)
	v.SetDefault("SCHEDULER.BADGE_INTERVAL", time.Hour)
	v.SetDefault("SCHEDULER.LOCK_TTL", 10*time.Minute)

	v.SetDefault("LEDGER.TIMEOUT", 10*time.Second)
	v.SetDefault("LEDGER.BATCH_SIZE", 100)
	v.SetDefault("LEDGER.CONCURRENCY", 8)
	v.SetDefault("LEDGER.STALE_AFTER", 24*time.Hour)

	v.SetDefault("AI.MODEL", "gpt-4o-mini")
	v.SetDefault("AI.TIMEOUT", 60*time.Second)
}

// Defaults returns a Config holding only the registered defaults.
func Defaults() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal default config", zap.Error(err))
	}
	return &cfg
}

func LoadConfig(p Params) *Config {

	config.SetConfigName("config")
	config.SetConfigType(configType)
	config.AddConfigPath(".")

	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	SetDefaults(config)

	if err := config.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			zap.L().Error("failed to read config file", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Warn("config file not found, using defaults and environment")
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		zap.L().Error("failed to unmarshal config", zap.Error(err))
		os.Exit(1)
	}

	if p.Vault != nil {
		applyVaultSecrets(p.Vault, &cfg)
	}

	configHolder.Store(&cfg)

	if config.ConfigFileUsed() != "" {
		config.OnConfigChange(func(e fsnotify.Event) {
			reload(e.Name, &cfg)
		})
		config.WatchConfig()
	}

	return &cfg
}

// reload re-reads tunables after the config file changed. Secrets resolved at
// boot are carried over from base since the file never holds them.
func reload(name string, base *Config) {
	var next Config
	if err := config.Unmarshal(&next); err != nil {
		zap.L().Error("failed to reload config", zap.String("file", name), zap.Error(err))
		return
	}

	next.Database = base.Database
	next.Redis = base.Redis
	next.AI.ApiKey = base.AI.ApiKey
	next.Flagsmith.ApiKey = base.Flagsmith.ApiKey

	configHolder.Store(&next)
	zap.L().Info("config reloaded", zap.String("file", name))
}

// Current returns the most recently loaded config, or fallback if nothing
// has been loaded in this process.
func Current(fallback *Config) *Config {
	if v, ok := configHolder.Load().(*Config); ok && v != nil {
		return v
	}
	return fallback
}

func LoadRemote(p Params) *Config {
	if v, ok := os.LookupEnv("REMOTE_CONFIG_PROVIDER"); ok {
		backend = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_ADDR"); ok {
		backendAddr = v
	}

	if v, ok := os.LookupEnv("REMOTE_CONFIG_PATH"); ok {
		backendPath = v
	}

	config.SetConfigType(configType)
	config.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	config.AutomaticEnv()
	SetDefaults(config)

	if err := config.AddRemoteProvider(backend, backendAddr, backendPath); err != nil {
		zap.L().Error("failed to add remote config provider", zap.String("backend", backend), zap.Error(err))
		os.Exit(1)
	}

	if err := config.ReadRemoteConfig(); err != nil {
		zap.L().Error("failed to read remote config", zap.String("addr", backendAddr), zap.Error(err))
		os.Exit(1)
	}

	var cfg Config
	if err := config.Unmarshal(&cfg); err != nil {
		os.Exit(1)
	}

	if p.Vault != nil {
		applyVaultSecrets(p.Vault, &cfg)
	}
	configHolder.Store(&cfg)

	go func() {
		for {
			time.Sleep(time.Second * 5) // delay after each request

			if err := config.WatchRemoteConfig(); err != nil {
				zap.L().Error("unable to read remote config", zap.Error(err))
				continue
			}

			reload(backendPath, &cfg)
		}
	}()

	return &cfg
}

func applyVaultSecrets(client *vault.Client, cfg *Config) {
	ctx := context.Background()

	zap.L().Info("Starting Get Secrets", zap.String("path", cfg.AppEnv))
	secret, err := client.Secrets.KvV2Read(ctx, cfg.AppEnv, vault.WithMountPath("secret"))
	if err != nil {
		zap.L().Error("failed get secret from vault", zap.Error(err))
		os.Exit(1)
	}
	zap.L().Info("Success Get Secret")

	get := func(key, fallback string) string {
		if val, ok := secret.Data.Data[key].(string); ok && val != "" {
			return val
		}
		return fallback
	}

	cfg.Database.User = get("postgres_user", cfg.Database.User)
	cfg.Database.Password = get("postgres_password", cfg.Database.Password)
	cfg.Redis.Password = get("redis_password", cfg.Redis.Password)
	cfg.Flagsmith.ApiKey = get("flagsmith_api_key", cfg.Flagsmith.ApiKey)
	cfg.AI.ApiKey = get("ai_api_key", cfg.AI.ApiKey)
	cfg.Minio.SecretKey = get("minio_secret_key", cfg.Minio.SecretKey)
}
