package dashboard

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/shaurya/tradeledger/framework"
	"github.com/shaurya/tradeledger/queue"
)

// Config configures the queue dashboard. Inspector is optional; without it
// only the mutation queue is reported.
type Config struct {
	Auth      func(http.Handler) http.Handler
	Inspector *asynq.Inspector
	Serial    *queue.Serial
}

// Dashboard returns an http.Handler reporting the mutation queue and the
// background event queues as JSON.
func Dashboard(cfg Config) http.Handler {
	d := &jobDashboard{inspector: cfg.Inspector, serial: cfg.Serial}

	r := chi.NewRouter()
	if cfg.Auth != nil {
		r.Use(cfg.Auth)
	}
	r.Get("/", d.Index)
	r.Get("/queues/{queue}", d.QueueInfo)
	r.Get("/api/stats", d.APIStats)
	return r
}

type jobDashboard struct {
	inspector *asynq.Inspector
	serial    *queue.Serial
}

// QueueStats is one background queue as reported by asynq.
type QueueStats struct {
	Queue     string `json:"queue"`
	Size      int    `json:"size"`
	Pending   int    `json:"pending"`
	Active    int    `json:"active"`
	Scheduled int    `json:"scheduled"`
	Retry     int    `json:"retry"`
	Archived  int    `json:"archived"`
	Completed int    `json:"completed"`
	Processed int    `json:"processed"`
	Failed    int    `json:"failed"`
	Paused    bool   `json:"paused"`
	LatencyMS int64  `json:"latency_ms"`
}

func fromInfo(info *asynq.QueueInfo) QueueStats {
	return QueueStats{
		Queue:     info.Queue,
		Size:      info.Size,
		Pending:   info.Pending,
		Active:    info.Active,
		Scheduled: info.Scheduled,
		Retry:     info.Retry,
		Archived:  info.Archived,
		Completed: info.Completed,
		Processed: info.Processed,
		Failed:    info.Failed,
		Paused:    info.Paused,
		LatencyMS: info.Latency.Milliseconds(),
	}
}

func (d *jobDashboard) Index(w http.ResponseWriter, r *http.Request) {
	body := framework.H{"mutations": d.mutationStats()}
	events, err := d.eventStats()
	if err != nil {
		body["events_error"] = err.Error()
	} else {
		body["events"] = events
	}
	writeJSON(w, http.StatusOK, body)
}

func (d *jobDashboard) QueueInfo(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "queue")
	if d.serial != nil && name == d.serial.Name() {
		writeJSON(w, http.StatusOK, d.serial.Stats())
		return
	}
	if d.inspector == nil {
		writeJSON(w, http.StatusNotFound, framework.H{"error": "unknown queue " + name})
		return
	}
	info, err := d.inspector.GetQueueInfo(name)
	if err != nil {
		writeJSON(w, http.StatusNotFound, framework.H{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, fromInfo(info))
}

func (d *jobDashboard) APIStats(w http.ResponseWriter, r *http.Request) {
	stats := make([]framework.H, 0)
	if m := d.mutationStats(); m != nil {
		stats = append(stats, framework.H{
			"queue":     m.Name,
			"pending":   m.Depth,
			"busy":      m.Busy,
			"completed": m.Processed - m.Failed,
			"failed":    m.Failed,
		})
	}
	events, err := d.eventStats()
	if err != nil {
		writeJSON(w, http.StatusBadGateway, framework.H{"error": err.Error()})
		return
	}
	for _, q := range events {
		stats = append(stats, framework.H{
			"queue":     q.Queue,
			"pending":   q.Pending,
			"active":    q.Active,
			"completed": q.Completed,
			"failed":    q.Failed,
		})
	}
	writeJSON(w, http.StatusOK, stats)
}

func (d *jobDashboard) mutationStats() *queue.Stats {
	if d.serial == nil {
		return nil
	}
	st := d.serial.Stats()
	return &st
}

func (d *jobDashboard) eventStats() ([]QueueStats, error) {
	out := make([]QueueStats, 0)
	if d.inspector == nil {
		return out, nil
	}
	names, err := d.inspector.Queues()
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	for _, q := range names {
		info, err := d.inspector.GetQueueInfo(q)
		if err != nil {
			continue
		}
		out = append(out, fromInfo(info))
	}
	return out, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	_ = framework.WriteJSON(w, status, v)
}
