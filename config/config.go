package config

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Ledger   LedgerConfig   `mapstructure:"ledger"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Sessions SessionConfig  `mapstructure:"sessions"`
}

type AppConfig struct {
	Name          string   `mapstructure:"name"`
	Port          int      `mapstructure:"port"`
	SecretKeyBase string   `mapstructure:"secret_key_base"`
	JWTSecret     string   `mapstructure:"jwt_secret"`
	AutoMigrate   bool     `mapstructure:"auto_migrate"`
	Env           string   `mapstructure:"env"`
	LocalesDir    string   `mapstructure:"locales_dir"`
	BcryptCost    int      `mapstructure:"bcrypt_cost"`
	LoginRate     int      `mapstructure:"login_rate"`
	MutationRate  int      `mapstructure:"mutation_rate"`
	CSRF          bool     `mapstructure:"csrf"`
	WSOrigins     []string `mapstructure:"ws_origins"`
}

type DatabaseConfig struct {
	Driver      string `mapstructure:"driver"`
	Path        string `mapstructure:"path"`
	Host        string `mapstructure:"host"`
	Port        int    `mapstructure:"port"`
	Name        string `mapstructure:"name"`
	User        string `mapstructure:"user"`
	Password    string `mapstructure:"password"`
	Pool        int    `mapstructure:"pool"`
	SSLMode     string `mapstructure:"ssl_mode"`
	SlowQueryMs int    `mapstructure:"slow_query_ms"`
}

type RedisConfig struct {
	URL  string `mapstructure:"url"`
	Pool int    `mapstructure:"pool"`
	DB   int    `mapstructure:"db"`
}

type SessionConfig struct {
	Store     string `mapstructure:"store"`
	Name      string `mapstructure:"name"`
	TTL       int    `mapstructure:"ttl"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// QueueConfig covers the in-process mutation queue and the asynq event queue.
type QueueConfig struct {
	MaxDepth         int    `mapstructure:"max_depth"`
	JobTimeoutMs     int    `mapstructure:"job_timeout_ms"`
	EventQueue       string `mapstructure:"event_queue"`
	EventConcurrency int    `mapstructure:"event_concurrency"`
	EventMaxRetry    int    `mapstructure:"event_max_retry"`
}

// LedgerConfig selects the world-state backend and membership settings.
type LedgerConfig struct {
	Store         string `mapstructure:"store"`
	AdminEnrollID string `mapstructure:"admin_enroll_id"`
	TLS           bool   `mapstructure:"tls"`
	KeyPrefix     string `mapstructure:"key_prefix"`
	SeedUsers     bool   `mapstructure:"seed_users"`
}

type CacheConfig struct {
	TTL    int    `mapstructure:"ttl"`
	Prefix string `mapstructure:"prefix"`
}

// Defaults returns the configuration used when no config files are present.
func Defaults() *Config {
	return &Config{
		App: AppConfig{
			Name:         "TradeLedger",
			Port:         3000,
			Env:          "development",
			LocalesDir:   "config/locales",
			BcryptCost:   12,
			LoginRate:    10,
			MutationRate: 60,
		},
		Database: DatabaseConfig{
			Pool:        10,
			SSLMode:     "disable",
			SlowQueryMs: 200,
		},
		Redis: RedisConfig{Pool: 10},
		Queue: QueueConfig{
			MaxDepth:         1000,
			JobTimeoutMs:     30000,
			EventQueue:       "events",
			EventConcurrency: 1,
			EventMaxRetry:    5,
		},
		Ledger: LedgerConfig{
			Store:         "memory",
			AdminEnrollID: "WebAppAdmin",
			KeyPrefix:     "ledger:",
			SeedUsers:     true,
		},
		Cache: CacheConfig{TTL: 30, Prefix: "tradeledger:"},
		Sessions: SessionConfig{
			Store:     "cookie",
			Name:      "tradeledger_session",
			TTL:       86400,
			KeyPrefix: "session_",
		},
	}
}
