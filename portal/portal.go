// Package portal assembles the trade finance portal: the ledger world state,
// the chaincode operations behind the mutation queue, the event pipeline,
// the websocket hub and every HTTP route.
package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	"github.com/hibiken/asynq"
	"github.com/shaurya/tradeledger/auth"
	"github.com/shaurya/tradeledger/chaincode"
	"github.com/shaurya/tradeledger/controllers"
	"github.com/shaurya/tradeledger/events"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/ledger"
	"github.com/shaurya/tradeledger/ledger/redisstore"
	"github.com/shaurya/tradeledger/ledger/sqlstore"
	"github.com/shaurya/tradeledger/plugins/admin"
	"github.com/shaurya/tradeledger/plugins/healthcheck"
	"github.com/shaurya/tradeledger/plugins/mutationlog"
	"github.com/shaurya/tradeledger/queue"
	"github.com/shaurya/tradeledger/queue/dashboard"
	"github.com/shaurya/tradeledger/websocket"
	"go.uber.org/zap"
)

// Ledger store backends selectable with ledger.store.
const (
	StoreMemory = "memory"
	StoreSQL    = "sql"
	StoreRedis  = "redis"
)

// Portal is a booted application with its ledger services.
type Portal struct {
	App        *framework.App
	Store      ledger.Store
	Contract   *ledger.Contract
	Membership *ledger.Membership
	Ops        *chaincode.Ops
	Hub        *websocket.Hub
	Events     *events.Processor
	Publisher  events.Publisher
	Inspector  *asynq.Inspector

	log *zap.Logger
}

// Build registers the portal plugins, boots app, initializes the ledger and
// registers every route. The app must not have been booted yet.
func Build(app *framework.App) (*Portal, error) {
	app.Register(&healthcheck.Plugin{})
	app.Register(&mutationlog.Plugin{Auth: auth.Middleware(app)})
	if err := app.Boot(); err != nil {
		return nil, err
	}

	p := &Portal{App: app, log: app.Log.Named("portal")}
	if err := p.initLedger(); err != nil {
		return nil, err
	}
	p.initEvents()

	cfg := app.Config
	p.Ops = chaincode.New(app.Queue, p.Contract, p.Membership,
		chaincode.WithAdmin(cfg.Ledger.AdminEnrollID),
		chaincode.WithJobTimeout(time.Duration(cfg.Queue.JobTimeoutMs)*time.Millisecond),
		chaincode.WithCache(app.Cache, time.Duration(cfg.Cache.TTL)*time.Second),
		chaincode.WithPublisher(p.Publisher),
		chaincode.WithLogger(app.Log.Named("chaincode")),
	)

	p.Hub = websocket.NewHub(
		websocket.WithHubLogger(app.Log.Named("websocket")),
		websocket.WithOriginPatterns(app.Config.App.WSOrigins...),
	)
	p.startRelay()

	mapErrors(app)

	secret := cfg.App.JWTSecret
	if secret == "" {
		secret = cfg.App.SecretKeyBase
	}
	auth.InitJWT(secret)
	app.Router.Use(auth.JWTMiddleware())
	if cfg.App.CSRF {
		app.Router.Use(framework.CSRF())
	}

	app.Routes(p.routes)
	return p, nil
}

func (p *Portal) initLedger() error {
	app := p.App
	cfg := app.Config.Ledger

	switch cfg.Store {
	case "", StoreMemory:
		p.Store = ledger.NewMemoryStore()
	case StoreSQL:
		if app.DB == nil {
			return errors.New("ledger: store sql needs database.driver")
		}
		p.Store = sqlstore.New(app.DB)
	case StoreRedis:
		if app.Redis == nil {
			return errors.New("ledger: store redis needs redis.url")
		}
		p.Store = redisstore.New(app.Redis, cfg.KeyPrefix)
	default:
		return fmt.Errorf("ledger: unknown store %q", cfg.Store)
	}
	store := p.Store
	app.AddHealthCheck("ledger", store.Ping)
	app.OnShutdown(func(context.Context) error { return store.Close() })

	hasher := auth.Bcrypt{Cost: app.Config.App.BcryptCost}
	opts := []ledger.ContractOption{ledger.WithContractLogger(app.Log.Named("ledger"))}
	if !cfg.SeedUsers {
		opts = append(opts, ledger.WithoutSeedUsers())
	}
	p.Contract = ledger.NewContract(store, hasher, opts...)
	p.Membership = ledger.NewMembership(store, hasher, cfg.AdminEnrollID, cfg.TLS)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := p.Contract.Init(ctx); err != nil {
		return fmt.Errorf("ledger init: %w", err)
	}
	p.log.Info("Ledger ready", zap.String("store", cfg.Store), zap.Bool("tls", cfg.TLS))
	return nil
}

// initEvents publishes through asynq when Redis is configured, and
// processes events in-process otherwise.
func (p *Portal) initEvents() {
	app := p.App
	p.Events = events.NewProcessor(app.DB, app.Cache, app.Log.Named("events"))

	if app.Redis == nil {
		p.Publisher = events.InlinePublisher{Processor: p.Events}
		return
	}
	pub := events.NewAsynqPublisher(app.Redis, app.Config.Queue.EventQueue, app.Config.Queue.EventMaxRetry)
	p.Publisher = pub
	p.Inspector = asynq.NewInspectorFromRedisClient(app.Redis)
	inspector := p.Inspector
	app.OnShutdown(func(context.Context) error {
		return errors.Join(pub.Close(), inspector.Close())
	})
}

// startRelay forwards published events to websocket clients until shutdown.
func (p *Portal) startRelay() {
	ctx, cancel := context.WithCancel(context.Background())
	relay := events.NewRelay(p.App.Cache, p.Hub, p.App.Log.Named("relay"))
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			p.log.Error("Event relay stopped", zap.Error(err))
		}
	}()
	p.App.OnShutdown(func(context.Context) error {
		cancel()
		<-done
		return nil
	})
}

// EventWorker returns an asynq worker that stores and relays ledger events.
// It is nil without Redis.
func (p *Portal) EventWorker() *events.Worker {
	if p.App.Redis == nil {
		return nil
	}
	w := events.NewWorker(p.App.Redis, p.App.Config.Queue, p.App.Log.Named("worker"))
	w.Handle(events.TaskType, events.HandleEvent(p.Events))
	return w
}

func mapErrors(app *framework.App) {
	app.MapError(ledger.ErrNotFound, http.StatusNotFound)
	app.MapError(ledger.ErrDocumentNotFound, http.StatusNotFound)
	app.MapError(ledger.ErrInvalidCredentials, http.StatusUnauthorized)
	app.MapError(ledger.ErrUserExists, http.StatusConflict)
	app.MapError(ledger.ErrInvalidLC, http.StatusUnprocessableEntity)
	app.MapError(ledger.ErrUnknownStatus, http.StatusUnprocessableEntity)
	app.MapError(queue.ErrQueueFull, http.StatusServiceUnavailable)
	app.MapError(queue.ErrClosed, http.StatusServiceUnavailable)
	app.MapError(queue.ErrTimeout, http.StatusGatewayTimeout)
}

func (p *Portal) routes(r *framework.Router) {
	app := p.App
	cfg := app.Config.App
	deps := controllers.Deps{Ops: p.Ops, Events: p.Events}
	sessions := &controllers.SessionsController{Deps: deps}
	lcs := &controllers.LCsController{Deps: deps}
	pages := &controllers.PagesController{Deps: deps}
	requireLogin := auth.Middleware(app)

	r.GET("/login", sessions.Login)
	r.GET("/logout", sessions.Logout)
	r.Group(func(r *framework.Router) {
		if cfg.LoginRate > 0 {
			r.Use(httprate.LimitByIP(cfg.LoginRate, time.Minute))
		}
		r.POST("/processLogin", sessions.ProcessLogin)
		r.POST("/register", sessions.Register)
		r.POST("/api/token", sessions.Token)
	})

	r.Mount("/jobs", "QueueDashboard", dashboard.Dashboard(dashboard.Config{
		Auth:      requireLogin,
		Inspector: p.Inspector,
		Serial:    app.Queue,
	}))
	r.Mount("/admin/events", "AuditPanel", admin.Panel(admin.Config{
		DB:   app.DB,
		Auth: requireLogin,
	}))

	r.Group(func(r *framework.Router) {
		r.Use(requireLogin)

		r.GET("/lcList", lcs.List)
		r.GET("/lcList/export", lcs.Export)
		r.GET("/getDocument", lcs.GetDocument)
		r.WebSocket("/ws", p.Hub.HandleChannel(websocket.NewLedgerChannel(p.Ops,
			websocket.WithChannelLogger(app.Log.Named("channel")),
			websocket.WithIdentity(func(req *http.Request) string {
				id, _ := auth.Lookup(app, req)
				return id.Username
			}),
		)))

		mutations := framework.RateLimit(app.Redis, cfg.MutationRate, time.Minute)
		r.Resources("lcs", &lcsResource{LCsController: lcs, limit: mutations}, func(r *framework.Router) {
			r.GET("/events", lcs.Events)
			r.With(mutations).POST("/status", lcs.Status)
			r.With(mutations).POST("/documents", lcs.Documents)
		})

		r.GET("/{page}", pages.Show)
	})
}

// lcsResource routes the LC resource with creation rate limited.
type lcsResource struct {
	*controllers.LCsController
	limit func(http.Handler) http.Handler
}

func (r *lcsResource) Create(ctx *framework.Context) error {
	return framework.Guard(r.LCsController.Create, r.limit)(ctx)
}
