package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestWithCategoryTagsEntries(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.InfoLevel)
	WithCategory(zap.New(core), ScrapeCategory("Stock")).Info("board done")

	entries := logs.All()
	require.Len(t, entries, 1)
	require.Equal(t, "scrape-Stock", entries[0].ContextMap()["category"])
}

func TestWithCategoryNilLogger(t *testing.T) {
	t.Parallel()

	require.NotPanics(t, func() {
		WithCategory(nil, CategoryRAGLLM).Info("dropped")
	})
}
