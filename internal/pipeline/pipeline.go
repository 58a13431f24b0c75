package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/metrics"
	"github.com/JakeFAU/forumrag/internal/queue"
	"github.com/JakeFAU/forumrag/internal/scrape"
	"github.com/JakeFAU/forumrag/internal/vectorize"
)

// BoardScraper runs stage one.
type BoardScraper interface {
	ScrapeBoard(ctx context.Context, board string) scrape.Report
}

// ArticleVectorizer runs stage two.
type ArticleVectorizer interface {
	Vectorize(ctx context.Context, ids []int64) (vectorize.Summary, error)
}

// Pipeline consumes stage tasks from the broker. Every delivery is
// acknowledged: failed stages are logged and counted, not redelivered.
type Pipeline struct {
	broker     queue.Broker
	scraper    BoardScraper
	vectorizer ArticleVectorizer
	ids        forum.IDGenerator
	clock      forum.Clock
	topics     Topics
	logger     *zap.Logger
}

// New constructs a Pipeline.
func New(
	broker queue.Broker,
	scraper BoardScraper,
	vectorizer ArticleVectorizer,
	ids forum.IDGenerator,
	clock forum.Clock,
	topics Topics,
	logger *zap.Logger,
) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		broker:     broker,
		scraper:    scraper,
		vectorizer: vectorizer,
		ids:        ids,
		clock:      clock,
		topics:     topics,
		logger:     logger.Named("pipeline"),
	}
}

// Run subscribes both stages and blocks until ctx ends or a subscription fails.
func (p *Pipeline) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.broker.Subscribe(gctx, p.topics.Scrape, p.HandleScrape)
	})
	g.Go(func() error {
		return p.broker.Subscribe(gctx, p.topics.Vectorize, p.HandleVectorize)
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// EnqueueScrape publishes a scrape task for board and returns its id.
func (p *Pipeline) EnqueueScrape(ctx context.Context, board string) (string, error) {
	id, err := p.ids.NewID()
	if err != nil {
		return "", fmt.Errorf("generate task id: %w", err)
	}
	data, err := json.Marshal(ScrapeTask{ID: id, Board: board, EnqueuedAt: p.clock.Now()})
	if err != nil {
		return "", fmt.Errorf("encode scrape task: %w", err)
	}
	if err := p.broker.Publish(ctx, p.topics.Scrape, data); err != nil {
		return "", fmt.Errorf("enqueue scrape %s: %w", board, err)
	}
	return id, nil
}

// HandleScrape runs stage one and publishes its created ids to stage two.
func (p *Pipeline) HandleScrape(ctx context.Context, data []byte) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	var task ScrapeTask
	if err := json.Unmarshal(data, &task); err != nil || task.Board == "" {
		p.logger.Error("dropping malformed scrape task", zap.ByteString("payload", data), zap.Error(err))
		metrics.ObserveStage(StageScrape, metrics.OutcomeFailed)
		return nil
	}
	logger := p.logger.With(zap.String("task_id", task.ID), zap.String("board", task.Board))

	report := p.scraper.ScrapeBoard(ctx, task.Board)
	if report.IndexFailed {
		metrics.ObserveStage(StageScrape, metrics.OutcomeFailed)
	} else {
		metrics.ObserveStage(StageScrape, metrics.OutcomeSuccess)
	}

	if err := p.publishVectorize(ctx, task, report.CreatedIDs); err != nil {
		logger.Error("chain vectorize stage", zap.Error(err))
		return nil
	}
	logger.Info("scrape stage done",
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated))
	return nil
}

func (p *Pipeline) publishVectorize(ctx context.Context, parent ScrapeTask, ids []int64) error {
	id, err := p.ids.NewID()
	if err != nil {
		return fmt.Errorf("generate task id: %w", err)
	}
	if ids == nil {
		ids = []int64{}
	}
	data, err := json.Marshal(VectorizeTask{ID: id, ParentID: parent.ID, Board: parent.Board, ArticleIDs: ids})
	if err != nil {
		return fmt.Errorf("encode vectorize task: %w", err)
	}
	if err := p.broker.Publish(ctx, p.topics.Vectorize, data); err != nil {
		return fmt.Errorf("publish vectorize task: %w", err)
	}
	return nil
}

// HandleVectorize runs stage two.
func (p *Pipeline) HandleVectorize(ctx context.Context, data []byte) error {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	var task VectorizeTask
	if err := json.Unmarshal(data, &task); err != nil {
		p.logger.Error("dropping malformed vectorize task", zap.ByteString("payload", data), zap.Error(err))
		metrics.ObserveStage(StageVectorize, metrics.OutcomeFailed)
		return nil
	}
	logger := p.logger.With(
		zap.String("task_id", task.ID),
		zap.String("parent_id", task.ParentID),
		zap.String("board", task.Board))

	summary, err := p.vectorizer.Vectorize(ctx, task.ArticleIDs)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("vectorize stage interrupted", zap.Error(err))
		} else {
			logger.Error("vectorize stage failed", zap.Error(err))
		}
		metrics.ObserveStage(StageVectorize, metrics.OutcomeFailed)
		return nil
	}
	metrics.ObserveStage(StageVectorize, metrics.OutcomeSuccess)
	logger.Info(summary.String(), zap.Int("articles", summary.Articles))
	return nil
}
