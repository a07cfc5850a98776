package framework

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shaurya/tradeledger/config"
	"github.com/spf13/viper"
)

// LoadConfig reads config/app.yaml, merges config/environments/<env>.yaml and
// applies environment overrides. A .env file, when present, is loaded first.
func LoadConfig() (*config.Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	setDefaults(v, config.Defaults())

	v.AddConfigPath("config")
	v.SetConfigName("app")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read app.yaml: %w", err)
	}

	v.SetConfigName("environments/" + env)
	if err := v.MergeInConfig(); err != nil {
		fmt.Printf("[TradeLedger] Warning: No environment-specific config for %s, using defaults\n", env)
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg config.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers every default so AutomaticEnv can override keys that
// the yaml files leave out.
func setDefaults(v *viper.Viper, d *config.Config) {
	v.SetDefault("app.name", d.App.Name)
	v.SetDefault("app.port", d.App.Port)
	v.SetDefault("app.secret_key_base", d.App.SecretKeyBase)
	v.SetDefault("app.jwt_secret", d.App.JWTSecret)
	v.SetDefault("app.auto_migrate", d.App.AutoMigrate)
	v.SetDefault("app.env", d.App.Env)
	v.SetDefault("app.locales_dir", d.App.LocalesDir)
	v.SetDefault("app.bcrypt_cost", d.App.BcryptCost)
	v.SetDefault("app.login_rate", d.App.LoginRate)
	v.SetDefault("app.mutation_rate", d.App.MutationRate)
	v.SetDefault("app.csrf", d.App.CSRF)
	v.SetDefault("app.ws_origins", d.App.WSOrigins)

	v.SetDefault("database.driver", d.Database.Driver)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.host", d.Database.Host)
	v.SetDefault("database.port", d.Database.Port)
	v.SetDefault("database.name", d.Database.Name)
	v.SetDefault("database.user", d.Database.User)
	v.SetDefault("database.password", d.Database.Password)
	v.SetDefault("database.pool", d.Database.Pool)
	v.SetDefault("database.ssl_mode", d.Database.SSLMode)
	v.SetDefault("database.slow_query_ms", d.Database.SlowQueryMs)

	v.SetDefault("redis.url", d.Redis.URL)
	v.SetDefault("redis.pool", d.Redis.Pool)
	v.SetDefault("redis.db", d.Redis.DB)

	v.SetDefault("queue.max_depth", d.Queue.MaxDepth)
	v.SetDefault("queue.job_timeout_ms", d.Queue.JobTimeoutMs)
	v.SetDefault("queue.event_queue", d.Queue.EventQueue)
	v.SetDefault("queue.event_concurrency", d.Queue.EventConcurrency)
	v.SetDefault("queue.event_max_retry", d.Queue.EventMaxRetry)

	v.SetDefault("ledger.store", d.Ledger.Store)
	v.SetDefault("ledger.admin_enroll_id", d.Ledger.AdminEnrollID)
	v.SetDefault("ledger.tls", d.Ledger.TLS)
	v.SetDefault("ledger.key_prefix", d.Ledger.KeyPrefix)
	v.SetDefault("ledger.seed_users", d.Ledger.SeedUsers)

	v.SetDefault("cache.ttl", d.Cache.TTL)
	v.SetDefault("cache.prefix", d.Cache.Prefix)

	v.SetDefault("sessions.store", d.Sessions.Store)
	v.SetDefault("sessions.name", d.Sessions.Name)
	v.SetDefault("sessions.ttl", d.Sessions.TTL)
	v.SetDefault("sessions.key_prefix", d.Sessions.KeyPrefix)
}
