package framework

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/sessions"
	"github.com/redis/go-redis/v9"
	"github.com/shaurya/tradeledger/cache"
	"github.com/shaurya/tradeledger/config"
	"github.com/shaurya/tradeledger/db"
	"github.com/shaurya/tradeledger/framework/i18n"
	"github.com/shaurya/tradeledger/orm"
	"github.com/shaurya/tradeledger/queue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Version is reported by the CLI and the health endpoint.
const Version = "v1.0.0"

// App holds the services shared by every request: stores, the mutation
// queue, sessions and the router.
type App struct {
	DB       *gorm.DB
	Redis    *redis.Client
	Cache    cache.Cache
	Sessions sessions.Store
	Queue    *queue.Serial
	Config   *config.Config
	Router   *Router
	Plugins  []Plugin
	Log      *zap.Logger

	mu            sync.Mutex
	booted        bool
	routesOnce    sync.Once
	errorMap      []errorMapping
	healthChecks  map[string]HealthCheck
	shutdownHooks []func(context.Context) error
}

type errorMapping struct {
	target error
	status int
}

// New loads configuration from config/ and creates an application. When the
// config files are missing the defaults are used.
func New() *App {
	cfg, err := LoadConfig()
	if err != nil {
		cfg = config.Defaults()
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = cfg.App.Env
		if env == "" {
			env = "development"
		}
		os.Setenv("APP_ENV", env)
	}
	cfg.App.Env = env

	return NewWithConfig(cfg)
}

// NewWithConfig creates an application from an explicit configuration.
func NewWithConfig(cfg *config.Config) *App {
	if cfg.App.Env == "" {
		cfg.App.Env = "development"
	}
	router := NewRouter()
	app := &App{
		Config:       cfg,
		Router:       router,
		Plugins:      make([]Plugin, 0),
		Log:          zap.NewNop(),
		healthChecks: make(map[string]HealthCheck),
	}
	router.app = app
	return app
}

// Register adds a plugin to the application. Plugins must be registered
// before Boot.
func (a *App) Register(p Plugin) {
	a.Plugins = append(a.Plugins, p)
}

// Boot initializes all application subsystems in order. Stores that are
// already set (for example by tests) are kept.
func (a *App) Boot() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.booted {
		return nil
	}

	log, err := InitLogger(a.Config.App.Env)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	a.Log = log
	a.Log.Info("Booting TradeLedger...", zap.String("env", a.Config.App.Env))

	if err := i18n.Init(a.Config.App.LocalesDir); err != nil {
		a.Log.Warn("Failed to initialize i18n", zap.Error(err))
	}

	if err := a.initStores(); err != nil {
		return err
	}
	if err := a.initSessions(); err != nil {
		return err
	}

	if a.Queue == nil {
		a.Queue = queue.NewSerial(
			queue.WithName("ledger"),
			queue.WithMaxDepth(a.Config.Queue.MaxDepth),
			queue.WithLogger(a.Log.Named("queue")),
		)
	}
	a.Queue.Observe(QueueMetrics{})
	a.AddHealthCheck("queue", func(context.Context) error {
		if max := a.Config.Queue.MaxDepth; max > 0 && a.Queue.Len() >= max {
			return queue.ErrQueueFull
		}
		return nil
	})

	a.Router.Use(RequestID())
	a.Router.Use(Logger(a.Log))
	a.Router.Use(Recovery(a.Config.App.Env))
	a.Router.Use(SecureHeaders)
	a.Router.Use(Metrics)
	a.Router.Use(Locale)

	for _, p := range a.Plugins {
		a.Log.Info("Booting plugin...", zap.String("name", p.Name()), zap.String("version", p.Version()))
		if err := p.Boot(a); err != nil {
			return fmt.Errorf("plugin %s: %w", p.Name(), err)
		}
	}

	a.booted = true
	a.Log.Info("TradeLedger booted successfully")
	return nil
}

func (a *App) initStores() error {
	if a.DB == nil {
		gdb, err := db.Open(a.Config.Database)
		if err != nil {
			return err
		}
		a.DB = gdb
	}
	if a.DB != nil {
		if a.Config.App.AutoMigrate {
			if err := db.Migrate(a.DB); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
		}
		if err := orm.RegisterQueryTimer(a.DB, RecordDBQuery); err != nil {
			return err
		}
		gdb := a.DB
		a.AddHealthCheck("database", func(ctx context.Context) error {
			sqlDB, err := gdb.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		})
	}

	if a.Cache == nil {
		if a.Config.Redis.URL != "" {
			adapter, err := cache.NewRedisAdapter(a.Config.Redis, a.Config.Cache.Prefix)
			if err != nil {
				return err
			}
			a.Redis = adapter.Client
			a.Cache = adapter
		} else {
			a.Cache = cache.NewMemoryAdapter()
		}
	}
	if a.Redis != nil {
		client := a.Redis
		a.AddHealthCheck("redis", func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})
	}
	return nil
}

const defaultSecret = "tradeledger-default-secret-change-me"

func (a *App) initSessions() error {
	if a.Sessions != nil {
		return nil
	}
	secret := a.Config.App.SecretKeyBase
	if secret == "" {
		if a.Config.App.Env == "production" {
			a.Log.Warn("app.secret_key_base is empty, sessions are signed with the default key")
		} else {
			a.Log.Info("app.secret_key_base not set, using the default key")
		}
		secret = defaultSecret
	}

	if a.Config.Sessions.Store == "redis" {
		store, err := cache.NewRedisSessionStore(a.Config.Redis, a.Config.Sessions, secret)
		if err != nil {
			return fmt.Errorf("session store: %w", err)
		}
		a.Sessions = store
		a.OnShutdown(func(context.Context) error { return store.Close() })
		return nil
	}

	store := sessions.NewCookieStore([]byte(secret))
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	store.Options.Secure = a.Config.App.Env == "production"
	if a.Config.Sessions.TTL > 0 {
		store.MaxAge(a.Config.Sessions.TTL)
	}
	a.Sessions = store
	return nil
}

func (a *App) sessionName() string {
	if a.Config.Sessions.Name != "" {
		return a.Config.Sessions.Name
	}
	return "tradeledger_session"
}

// Routes registers plugin routes and /metrics (once), then the routes in fn.
// Middleware must be added with Router.Use before the first call.
func (a *App) Routes(fn func(r *Router)) {
	a.routesOnce.Do(func() {
		for _, p := range a.Plugins {
			p.Routes(a.Router)
		}
		a.Router.HandleFunc(http.MethodGet, "/metrics", "Prometheus", MetricsHandler().ServeHTTP)
	})
	if fn != nil {
		fn(a.Router)
	}
}

// Handler returns the root HTTP handler.
func (a *App) Handler() http.Handler {
	return a.Router.Mux
}

// MapError makes handlers answer errors matching target (errors.Is) with
// status. Earlier mappings win.
func (a *App) MapError(target error, status int) {
	a.errorMap = append(a.errorMap, errorMapping{target: target, status: status})
}

func (a *App) statusFor(err error) (int, bool) {
	for _, m := range a.errorMap {
		if errors.Is(err, m.target) {
			return m.status, true
		}
	}
	return 0, false
}

// AddHealthCheck registers a named readiness check.
func (a *App) AddHealthCheck(name string, check HealthCheck) {
	if a.healthChecks == nil {
		a.healthChecks = make(map[string]HealthCheck)
	}
	a.healthChecks[name] = check
}

// CheckHealth runs every readiness check and returns the failures by name.
func (a *App) CheckHealth(ctx context.Context) (map[string]string, bool) {
	names := make([]string, 0, len(a.healthChecks))
	for name := range a.healthChecks {
		names = append(names, name)
	}
	sort.Strings(names)

	results := make(map[string]string, len(names))
	healthy := true
	for _, name := range names {
		if err := a.healthChecks[name](ctx); err != nil {
			results[name] = err.Error()
			healthy = false
			continue
		}
		results[name] = "ok"
	}
	return results, healthy
}

// OnShutdown registers fn to run during Shutdown, after the queue drained.
// Hooks run in reverse registration order.
func (a *App) OnShutdown(fn func(context.Context) error) {
	a.shutdownHooks = append(a.shutdownHooks, fn)
}

// Shutdown stops accepting mutations, waits for queued ones to finish,
// runs shutdown hooks and closes the stores.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	if a.Queue != nil {
		a.Queue.Close()
		if err := a.Queue.Drain(ctx); err != nil {
			a.Log.Warn("Mutation queue did not drain", zap.Int("pending", a.Queue.Len()), zap.Error(err))
			errs = append(errs, fmt.Errorf("drain queue: %w", err))
		}
	}
	for i := len(a.shutdownHooks) - 1; i >= 0; i-- {
		if err := a.shutdownHooks[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := db.Close(a.DB); err != nil {
		errs = append(errs, err)
	}
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	_ = a.Log.Sync()
	return errors.Join(errs...)
}

// Run serves HTTP until SIGINT/SIGTERM, then shuts down gracefully. Boot and
// Routes must have been called.
func (a *App) Run() error {
	port := a.Config.App.Port
	if port == 0 {
		port = 3000
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	dbStatus := "-"
	if a.DB != nil {
		dbStatus = a.DB.Dialector.Name()
	}
	a.Log.Info("TradeLedger listening",
		zap.String("version", Version),
		zap.String("name", a.Config.App.Name),
		zap.String("env", a.Config.App.Env),
		zap.Int("port", port),
		zap.String("db", dbStatus),
		zap.Bool("redis", a.Redis != nil),
		zap.Int("plugins", len(a.Plugins)),
	)

	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case err := <-serverErr:
		if err != nil {
			return err
		}
	case <-stop:
	}

	a.Log.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		a.Log.Error("Shutdown failed", zap.Error(err))
	}
	if err := a.Shutdown(ctx); err != nil {
		return err
	}
	a.Log.Info("TradeLedger stopped gracefully")
	return nil
}
