package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
	require.NotNil(t, articlesScrapedTotal)
	require.NotNil(t, stageRunsTotal)
	require.NotNil(t, httpRequestsTotal)
}

func TestObserveArticle(t *testing.T) {
	Init()
	counter := articlesScrapedTotal.WithLabelValues("MetricsBoard", OutcomeCreated)
	before := testutil.ToFloat64(counter)
	ObserveArticle("MetricsBoard", OutcomeCreated)
	ObserveArticle("MetricsBoard", OutcomeCreated)
	require.InDelta(t, before+2, testutil.ToFloat64(counter), 1e-9)
}

func TestObserveCounters(t *testing.T) {
	Init()
	chunks := testutil.ToFloat64(vectorChunksTotal)
	ObserveChunks(7)
	ObserveChunks(0)
	require.InDelta(t, chunks+7, testutil.ToFloat64(vectorChunksTotal), 1e-9)

	retries := testutil.ToFloat64(backoffRetriesTotal)
	ObserveBackoffRetry()
	require.InDelta(t, retries+1, testutil.ToFloat64(backoffRetriesTotal), 1e-9)

	ObserveQuery("retrieval")
	require.InDelta(t, 1, testutil.ToFloat64(ragQueriesTotal.WithLabelValues("retrieval")), 1e-9)

	ObserveStage("scrape", OutcomeSuccess)
	require.GreaterOrEqual(t, testutil.ToFloat64(stageRunsTotal.WithLabelValues("scrape", OutcomeSuccess)), 1.0)

	IncActiveWorkers()
	IncActiveWorkers()
	DecActiveWorkers()
	require.GreaterOrEqual(t, testutil.ToFloat64(activeStageWorkers), 1.0)
	DecActiveWorkers()

	ObserveHTTPRequest("GET", "/healthz", 200, 5*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(httpRequestDurationSeconds))

	ObserveRateLimitDelay("forum.example", 20*time.Millisecond)
	require.Positive(t, testutil.CollectAndCount(rateLimitDelaySeconds))
}
