// Package vectorize chunks stored articles, embeds the chunks, and upserts
// them into the vector index in bounded, retried batches.
package vectorize

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumrag/internal/chunk"
	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/logging"
	"github.com/JakeFAU/forumrag/internal/metrics"
	"github.com/JakeFAU/forumrag/internal/retry"
)

const (
	defaultBatchSize   = 50
	defaultMaxAttempts = 5
	defaultBaseDelay   = 2 * time.Second
	defaultMaxJitter   = time.Second
)

// Config tunes batching and backoff.
type Config struct {
	BatchSize   int
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxJitter of zero takes the default; a negative value disables jitter.
	MaxJitter time.Duration
	Pauser    retry.Pauser
}

// Summary reports what one Vectorize call wrote.
type Summary struct {
	Articles int `json:"articles"`
	Chunks   int `json:"chunks"`
	Batches  int `json:"batches"`
}

func (s Summary) String() string {
	if s.Articles == 0 {
		return "No new articles."
	}
	return fmt.Sprintf("Processed %d chunks.", s.Chunks)
}

// Worker turns article ids into indexed chunks.
type Worker struct {
	store    forum.ArticleStore
	splitter *chunk.Splitter
	embedder forum.Embedder
	index    forum.VectorIndex
	policy   retry.Policy
	size     int
	logger   *zap.Logger
}

// New constructs a Worker; zero Config fields take the defaults.
func New(
	store forum.ArticleStore,
	splitter *chunk.Splitter,
	embedder forum.Embedder,
	index forum.VectorIndex,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = defaultBaseDelay
	}
	if cfg.MaxJitter < 0 {
		cfg.MaxJitter = 0
	} else if cfg.MaxJitter == 0 {
		cfg.MaxJitter = defaultMaxJitter
	}
	logger = logging.WithCategory(logger, logging.CategoryVectorize)

	w := &Worker{
		store:    store,
		splitter: splitter,
		embedder: embedder,
		index:    index,
		size:     cfg.BatchSize,
		logger:   logger,
	}
	w.policy = retry.Policy{
		MaxAttempts: cfg.MaxAttempts,
		BaseDelay:   cfg.BaseDelay,
		MaxJitter:   cfg.MaxJitter,
		Pauser:      cfg.Pauser,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			metrics.ObserveBackoffRetry()
			w.logger.Warn("vector upsert throttled, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err))
		},
	}
	return w
}

// Vectorize indexes the chunks of the given articles. An empty id list returns
// immediately without touching any store.
func (w *Worker) Vectorize(ctx context.Context, ids []int64) (Summary, error) {
	if len(ids) == 0 {
		return Summary{}, nil
	}

	articles, err := w.store.ArticlesByID(ctx, ids)
	if err != nil {
		return Summary{}, fmt.Errorf("load articles: %w", err)
	}

	docs := w.documents(articles)
	summary := Summary{Articles: len(articles)}

	for start := 0; start < len(docs); start += w.size {
		batch := docs[start:min(start+w.size, len(docs))]
		if err := w.upsertBatch(ctx, batch); err != nil {
			return summary, fmt.Errorf("upsert batch %d: %w", summary.Batches, err)
		}
		summary.Batches++
		summary.Chunks += len(batch)
		metrics.ObserveChunks(len(batch))
		w.logger.Debug("batch indexed",
			zap.Int("batch", summary.Batches),
			zap.Int("size", len(batch)))
	}

	w.logger.Info(summary.String(),
		zap.Int("articles", summary.Articles),
		zap.Int("chunks", summary.Chunks))
	return summary, nil
}

func (w *Worker) documents(articles []forum.Article) []forum.VectorDocument {
	var docs []forum.VectorDocument
	for _, a := range articles {
		for i, span := range w.splitter.Split(a.Content) {
			docs = append(docs, forum.VectorDocument{
				ID:      DocumentID(a.ID, i),
				Content: span,
				Metadata: forum.ChunkMetadata{
					ArticleID:  a.ID,
					Board:      a.Board,
					Title:      a.Title,
					Author:     a.Author,
					PostTime:   a.PostTime.Format(time.RFC3339),
					URL:        a.URL,
					ChunkIndex: i,
				},
			})
		}
	}
	return docs
}

func (w *Worker) upsertBatch(ctx context.Context, batch []forum.VectorDocument) error {
	texts := make([]string, len(batch))
	for i, d := range batch {
		texts[i] = d.Content
	}

	_, err := retry.Do(ctx, w.policy, func(ctx context.Context) (struct{}, error) {
		vectors, err := w.embedder.Embed(ctx, texts)
		if err != nil {
			return struct{}{}, fmt.Errorf("embed chunks: %w", err)
		}
		if len(vectors) != len(batch) {
			return struct{}{}, errors.New("embedder returned wrong number of vectors")
		}
		embedded := make([]forum.EmbeddedDocument, len(batch))
		for i, d := range batch {
			embedded[i] = forum.EmbeddedDocument{VectorDocument: d, Embedding: vectors[i]}
		}
		return struct{}{}, w.index.Upsert(ctx, embedded)
	})
	return err
}

// DocumentID is the vector-store id of chunk idx of an article. Re-indexing an
// article overwrites its earlier chunks.
func DocumentID(articleID int64, idx int) string {
	return strconv.FormatInt(articleID, 10) + "-" + strconv.Itoa(idx)
}
