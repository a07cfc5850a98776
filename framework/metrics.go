package framework

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shaurya/tradeledger/queue"
)

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeledger_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	dbQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeledger_db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)

	eventsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_events_processed_total",
			Help: "Total number of ledger events handled by the event worker",
		},
		[]string{"type", "status"},
	)

	cacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_cache_lookups_total",
			Help: "Read cache lookups by outcome",
		},
		[]string{"result"},
	)

	mutationQueueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "tradeledger_mutation_queue_depth",
			Help: "Jobs held by the mutation queue, including the running one",
		},
		[]string{"queue"},
	)

	mutationJobsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradeledger_mutation_jobs_total",
			Help: "Mutation jobs finished, by job name and outcome",
		},
		[]string{"queue", "job", "status"},
	)

	mutationJobDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "tradeledger_mutation_job_duration_seconds",
			Help:    "Time from a mutation starting to its done callback",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue", "job"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDuration,
		dbQueryDuration,
		eventsProcessedTotal,
		cacheLookupsTotal,
		mutationQueueDepth,
		mutationJobsTotal,
		mutationJobDuration,
	)
}

// MetricsHandler returns the Prometheus metrics HTTP handler.
func MetricsHandler() http.Handler {
	return promhttp.Handler()
}

// Metrics records request counts and latency labelled by route pattern.
func Metrics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				path = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		RecordHTTPRequest(r.Method, path, status, time.Since(start))
	})
}

// RecordHTTPRequest records a metric for an HTTP request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordDBQuery records a metric for a database statement.
func RecordDBQuery(op string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordEventProcessed records a ledger event handled by the event worker.
func RecordEventProcessed(eventType, status string) {
	eventsProcessedTotal.WithLabelValues(eventType, status).Inc()
}

// RecordCacheHit records a cache hit metric.
func RecordCacheHit() {
	cacheLookupsTotal.WithLabelValues("hit").Inc()
}

// RecordCacheMiss records a cache miss metric.
func RecordCacheMiss() {
	cacheLookupsTotal.WithLabelValues("miss").Inc()
}

// QueueMetrics is a queue.Observer exporting depth, job counts and job
// durations.
type QueueMetrics struct{}

var _ queue.Observer = QueueMetrics{}

func (QueueMetrics) JobQueued(job queue.JobInfo, _ int) {
	mutationQueueDepth.WithLabelValues(job.Queue).Inc()
}

func (QueueMetrics) JobStarted(queue.JobInfo) {}

func (QueueMetrics) JobFinished(job queue.JobInfo, elapsed time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	mutationQueueDepth.WithLabelValues(job.Queue).Dec()
	mutationJobsTotal.WithLabelValues(job.Queue, job.Name, status).Inc()
	mutationJobDuration.WithLabelValues(job.Queue, job.Name).Observe(elapsed.Seconds())
}
