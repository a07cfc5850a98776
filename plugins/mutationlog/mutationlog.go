// Package mutationlog records every job of the mutation queue in the
// mutation_logs table and serves per-job statistics.
package mutationlog

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/orm"
	"github.com/shaurya/tradeledger/queue"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Job outcomes stored in MutationLog.Status.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

const bufferSize = 256

// MutationLog is one finished mutation job.
type MutationLog struct {
	orm.Record
	JobID      string `gorm:"size:64;not null" json:"jobId"`
	Name       string `gorm:"size:128;not null" json:"name"`
	Status     string `gorm:"size:16;not null" json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `gorm:"column:duration_ms" json:"durationMs"`
}

// JobStats aggregates the log per job name.
type JobStats struct {
	Name          string  `json:"name"`
	Total         int64   `json:"total"`
	Failed        int64   `json:"failed"`
	AvgDurationMS float64 `json:"avgDurationMs"`
}

// Plugin writes mutation logs from a background goroutine so the queue's
// worker never waits on the database. Without a database it does nothing.
// Auth, when set, guards the plugin's routes.
type Plugin struct {
	Auth func(http.Handler) http.Handler

	db      *gorm.DB
	log     *zap.Logger
	entries chan MutationLog
	wg      sync.WaitGroup
	once    sync.Once
}

func (p *Plugin) Name() string    { return "mutationlog" }
func (p *Plugin) Version() string { return "1.0.0" }

func (p *Plugin) Boot(app *framework.App) error {
	p.db = app.DB
	p.log = app.Log.Named("mutationlog")
	if p.db == nil {
		return nil
	}
	if !app.Config.App.AutoMigrate {
		if err := p.db.AutoMigrate(&MutationLog{}); err != nil {
			return err
		}
	}

	p.entries = make(chan MutationLog, bufferSize)
	p.wg.Add(1)
	go p.writer()
	app.Queue.Observe(queue.ObserverFuncs{OnFinished: p.record})
	app.OnShutdown(p.Close)
	return nil
}

func (p *Plugin) Routes(r *framework.Router) {
	if p.Auth != nil {
		r = r.With(p.Auth)
	}
	r.GET("/admin/mutations", p.statsHandler)
	r.GET("/admin/mutations/recent", p.recentHandler)
}

func (p *Plugin) record(job queue.JobInfo, elapsed time.Duration, err error) {
	entry := MutationLog{
		JobID:      job.ID,
		Name:       job.Name,
		Status:     StatusOK,
		DurationMS: elapsed.Milliseconds(),
	}
	if entry.Name == "" {
		entry.Name = "anonymous"
	}
	if err != nil {
		entry.Status = StatusFailed
		entry.Error = err.Error()
	}
	select {
	case p.entries <- entry:
	default:
		p.log.Warn("Mutation log buffer full, dropping entry", zap.String("job", job.Name), zap.String("id", job.ID))
	}
}

func (p *Plugin) writer() {
	defer p.wg.Done()
	for entry := range p.entries {
		if err := orm.Query[MutationLog](p.db).Create(&entry); err != nil {
			p.log.Error("Failed to write mutation log", zap.String("id", entry.JobID), zap.Error(err))
		}
	}
}

// Close flushes buffered entries. It runs after the queue has drained.
func (p *Plugin) Close(ctx context.Context) error {
	if p.entries == nil {
		return nil
	}
	p.once.Do(func() { close(p.entries) })

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats aggregates the log by job name, busiest first.
func Stats(ctx context.Context, db *gorm.DB) ([]JobStats, error) {
	stats := make([]JobStats, 0)
	err := db.WithContext(ctx).Model(&MutationLog{}).
		Select("name, COUNT(*) AS total, " +
			"SUM(CASE WHEN status = '" + StatusFailed + "' THEN 1 ELSE 0 END) AS failed, " +
			"AVG(duration_ms) AS avg_duration_ms").
		Group("name").
		Order("total DESC, name").
		Scan(&stats).Error
	return stats, err
}

// Recent returns the newest n entries, optionally for one job name.
func Recent(ctx context.Context, db *gorm.DB, name string, n int) ([]MutationLog, error) {
	return orm.QueryContext[MutationLog](ctx, db).
		Scope(orm.Equal("name", name), orm.Recent(n)).
		All()
}

var errNoDatabase = errors.New("mutation log requires a database")

func (p *Plugin) statsHandler(ctx *framework.Context) error {
	if p.db == nil {
		return ctx.ServiceUnavailable(errNoDatabase)
	}
	stats, err := Stats(ctx.Context(), p.db)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, framework.H{"jobs": stats})
}

func (p *Plugin) recentHandler(ctx *framework.Context) error {
	if p.db == nil {
		return ctx.ServiceUnavailable(errNoDatabase)
	}
	limit := 20
	if s := ctx.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			return ctx.BadRequest(errors.New("limit must be a positive number"))
		}
		limit = min(n, 200)
	}
	entries, err := Recent(ctx.Context(), p.db, ctx.Query("name"), limit)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, framework.H{"mutations": entries})
}
