package mutationlog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/shaurya/tradeledger/config"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bootApp(t *testing.T, withDB bool) (*framework.App, *Plugin) {
	t.Helper()
	cfg := config.Defaults()
	cfg.App.Env = "test"
	cfg.App.LocalesDir = ""
	if withDB {
		cfg.Database.Driver = "sqlite"
		cfg.Database.Path = filepath.Join(t.TempDir(), "ledger.db")
		cfg.App.AutoMigrate = true
	}
	app := framework.NewWithConfig(cfg)
	p := &Plugin{}
	app.Register(p)
	require.NoError(t, app.Boot())
	app.Routes(nil)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = app.Shutdown(ctx)
	})
	return app, p
}

func TestRecordsQueueJobs(t *testing.T) {
	app, p := bootApp(t, true)
	ctx := context.Background()

	for _, name := range []string{"createLC", "createLC", "updateStatus"} {
		require.NoError(t, app.Queue.SubmitNamed(name, func(done queue.Done) { done(nil, nil) }, nil))
	}
	require.NoError(t, app.Queue.SubmitNamed("updateStatus", func(done queue.Done) {
		done(nil, errors.New("ledger: not found"))
	}, nil))
	require.NoError(t, app.Queue.Drain(ctx))
	require.NoError(t, p.Close(ctx))

	stats, err := Stats(ctx, app.DB)
	require.NoError(t, err)
	require.Len(t, stats, 2)
	assert.Equal(t, "createLC", stats[0].Name)
	assert.Equal(t, int64(2), stats[0].Total)
	assert.Equal(t, int64(0), stats[0].Failed)
	assert.Equal(t, "updateStatus", stats[1].Name)
	assert.Equal(t, int64(1), stats[1].Failed)

	recent, err := Recent(ctx, app.DB, "updateStatus", 1)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, StatusFailed, recent[0].Status)
	assert.Equal(t, "ledger: not found", recent[0].Error)

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/mutations", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"createLC"`)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/mutations/recent?limit=2", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/mutations/recent?limit=x", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWithoutDatabase(t *testing.T) {
	app, p := bootApp(t, false)
	require.NoError(t, app.Queue.Submit(func(done queue.Done) { done(nil, nil) }, nil))
	require.NoError(t, app.Queue.Drain(context.Background()))
	require.NoError(t, p.Close(context.Background()))

	rec := httptest.NewRecorder()
	app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/admin/mutations", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAuthGuardsRoutes(t *testing.T) {
	cfg := config.Defaults()
	cfg.App.Env = "test"
	cfg.App.LocalesDir = ""
	app := framework.NewWithConfig(cfg)
	app.Register(&Plugin{Auth: func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusForbidden)
		})
	}})
	require.NoError(t, app.Boot())
	app.Routes(nil)
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })

	for _, path := range []string{"/admin/mutations", "/admin/mutations/recent"} {
		rec := httptest.NewRecorder()
		app.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusForbidden, rec.Code, path)
	}
}
