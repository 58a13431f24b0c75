// Package metrics exposes Prometheus collectors for the ingestion pipeline
// and the query engine.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeSkipped = "skipped"
	OutcomeFailed  = "failed"
	OutcomeSuccess = "success"
)

var (
	articlesScrapedTotal       *prometheus.CounterVec
	vectorChunksTotal          prometheus.Counter
	backoffRetriesTotal        prometheus.Counter
	ragQueriesTotal            *prometheus.CounterVec
	stageRunsTotal             *prometheus.CounterVec
	activeStageWorkers         prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaySeconds      *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		articlesScrapedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumrag_articles_scraped_total",
				Help: "Articles processed by the scraper, labeled by board and outcome.",
			},
			[]string{"board", "outcome"},
		)

		vectorChunksTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "forumrag_vector_chunks_total",
				Help: "Chunks upserted into the vector index.",
			},
		)

		backoffRetriesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "forumrag_backoff_retries_total",
				Help: "Retries scheduled after a rate-limited or overloaded vector upsert.",
			},
		)

		ragQueriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumrag_rag_queries_total",
				Help: "Questions answered by the query engine, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		stageRunsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "forumrag_stage_runs_total",
				Help: "Pipeline stage executions, labeled by stage and status.",
			},
			[]string{"stage", "status"},
		)

		activeStageWorkers = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "forumrag_active_stage_workers",
				Help: "Number of stage workers currently handling a task.",
			},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "forumrag_fetch_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the per-host fetch rate limiter.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"host"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveArticle counts one processed article for board.
func ObserveArticle(board, outcome string) {
	Init()
	articlesScrapedTotal.WithLabelValues(board, outcome).Inc()
}

// ObserveChunks adds n upserted chunks.
func ObserveChunks(n int) {
	Init()
	if n > 0 {
		vectorChunksTotal.Add(float64(n))
	}
}

// ObserveBackoffRetry counts one scheduled retry.
func ObserveBackoffRetry() {
	Init()
	backoffRetriesTotal.Inc()
}

// ObserveQuery counts one answered or failed question.
func ObserveQuery(outcome string) {
	Init()
	ragQueriesTotal.WithLabelValues(outcome).Inc()
}

// ObserveStage counts one stage execution.
func ObserveStage(stage, status string) {
	Init()
	stageRunsTotal.WithLabelValues(stage, status).Inc()
}

// IncActiveWorkers increments the active workers gauge.
func IncActiveWorkers() {
	Init()
	activeStageWorkers.Inc()
}

// DecActiveWorkers decrements the active workers gauge.
func DecActiveWorkers() {
	Init()
	activeStageWorkers.Dec()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records how long a fetch to host waited for a token.
func ObserveRateLimitDelay(host string, d time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
}
