// Package app builds the long-lived services from a Config and hands them to
// the commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcsstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/JakeFAU/forumrag/internal/api"
	"github.com/JakeFAU/forumrag/internal/chunk"
	"github.com/JakeFAU/forumrag/internal/clock/system"
	"github.com/JakeFAU/forumrag/internal/config"
	collyfetcher "github.com/JakeFAU/forumrag/internal/fetcher/colly"
	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/id/uuid"
	"github.com/JakeFAU/forumrag/internal/llm"
	"github.com/JakeFAU/forumrag/internal/parser"
	"github.com/JakeFAU/forumrag/internal/pipeline"
	"github.com/JakeFAU/forumrag/internal/policy/ratelimit"
	"github.com/JakeFAU/forumrag/internal/policy/robots"
	"github.com/JakeFAU/forumrag/internal/queue"
	queuememory "github.com/JakeFAU/forumrag/internal/queue/memory"
	queuepubsub "github.com/JakeFAU/forumrag/internal/queue/pubsub"
	"github.com/JakeFAU/forumrag/internal/rag"
	"github.com/JakeFAU/forumrag/internal/scrape"
	"github.com/JakeFAU/forumrag/internal/storage"
	"github.com/JakeFAU/forumrag/internal/storage/gcs"
	"github.com/JakeFAU/forumrag/internal/storage/local"
	"github.com/JakeFAU/forumrag/internal/storage/memory"
	"github.com/JakeFAU/forumrag/internal/storage/postgres"
	"github.com/JakeFAU/forumrag/internal/vectorize"
	vectormemory "github.com/JakeFAU/forumrag/internal/vectorstore/memory"
	vectorpg "github.com/JakeFAU/forumrag/internal/vectorstore/postgres"
)

const embeddingCacheSize = 4096

// App holds the shared services. It is built once per process.
type App struct {
	cfg     config.Config
	logger  *zap.Logger
	clock   *system.Clock
	ids     *uuid.Generator
	store   forum.ArticleStore
	index   forum.VectorIndex
	model   llm.Client
	embed   forum.Embedder
	archive storage.BlobStore
	limiter *ratelimit.Limiter
	robots  robots.Policy
	ready   func(ctx context.Context) error
	closers []func() error

	broker     queue.Broker
	pubsubOpts []option.ClientOption
}

// Option customizes an App.
type Option func(*App)

// WithPubSubOptions passes client options to the Pub/Sub broker.
func WithPubSubOptions(opts ...option.ClientOption) Option {
	return func(a *App) { a.pubsubOpts = append(a.pubsubOpts, opts...) }
}

// New connects the stores and clients selected by cfg. The broker is built
// lazily by Broker so one-shot commands never dial Pub/Sub.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:    cfg,
		logger: logger,
		clock:  system.New(cfg.Location()),
		ids:    uuid.New(),
		ready:  func(context.Context) error { return nil },
	}
	for _, opt := range opts {
		opt(a)
	}
	a.limiter = ratelimit.New(ratelimit.Config{RPS: cfg.Fetch.MaxRPS, Burst: cfg.Fetch.Burst})
	a.robots = robots.New(cfg.Fetch.RespectRobots, cfg.Site.UserAgent, nil, logger.Named("robots"))
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		if a.cfg.Vector.Backend == config.VectorPG {
			return errors.New("vector.backend postgres requires db.dsn")
		}
		a.logger.Info("using in-memory article store")
		a.store = memory.NewArticleStore()
	} else {
		pool, err := postgres.NewPool(ctx, postgres.StoreConfig{
			DSN:             a.cfg.DB.DSN,
			MaxConns:        int32(a.cfg.DB.MaxConns), //nolint:gosec // validated positive
			MaxConnLifetime: 30 * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("init article store: %w", err)
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })
		a.ready = pool.Ping

		if err := postgres.Migrate(ctx, pool); err != nil {
			return fmt.Errorf("migrate article store: %w", err)
		}
		store, err := postgres.NewArticleStore(pool)
		if err != nil {
			return fmt.Errorf("init article store: %w", err)
		}
		a.store = store

		if a.cfg.Vector.Backend == config.VectorPG {
			index, err := vectorpg.New(pool, a.cfg.Vector.Table, a.cfg.Vector.Dimensions)
			if err != nil {
				return fmt.Errorf("init vector index: %w", err)
			}
			if err := index.Migrate(ctx); err != nil {
				return fmt.Errorf("migrate vector index: %w", err)
			}
			a.index = index
		}
	}
	if a.index == nil {
		a.logger.Info("using in-memory vector index", zap.Int("dimensions", a.cfg.Vector.Dimensions))
		a.index = vectormemory.New(a.cfg.Vector.Dimensions)
	}

	model, err := llm.New(llm.Config{
		Provider:   a.cfg.LLM.Provider,
		BaseURL:    a.cfg.LLM.BaseURL,
		EmbedModel: a.cfg.LLM.EmbedModel,
		ChatModel:  a.cfg.LLM.ChatModel,
		APIKey:     a.cfg.LLM.APIKey,
		Timeout:    time.Duration(a.cfg.LLM.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("init llm client: %w", err)
	}
	a.model = model
	a.embed = llm.NewCachedEmbedder(model, a.cfg.LLM.EmbedModel, embeddingCacheSize)

	return a.initArchive(ctx)
}

func (a *App) initArchive(ctx context.Context) error {
	switch a.cfg.Archive.Backend {
	case config.ArchiveLocal:
		store, err := local.New(local.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("init local archive: %w", err)
		}
		a.archive = store
	case config.ArchiveGCS:
		client, err := gcsstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("init gcs archive: %w", err)
		}
		a.archive = store
	default:
		a.archive = storage.NopStore{}
	}
	return nil
}

// Config returns the configuration the App was built from.
func (a *App) Config() config.Config { return a.cfg }

// Logger returns the root logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Store returns the article store.
func (a *App) Store() forum.ArticleStore { return a.store }

// Index returns the vector index.
func (a *App) Index() forum.VectorIndex { return a.index }

// Scraper builds a board scraper.
func (a *App) Scraper() *scrape.Scraper {
	cfg := a.cfg
	fetcher := collyfetcher.New(collyfetcher.Config{
		UserAgent:      cfg.Site.UserAgent,
		Referer:        cfg.Site.Referer,
		CookieName:     cfg.Site.CookieName,
		CookieValue:    cfg.Site.CookieValue,
		Timeout:        cfg.FetchTimeout(),
		MaxAttempts:    cfg.Fetch.MaxAttempts,
		BackoffInitial: time.Duration(cfg.Fetch.BackoffInitialMs) * time.Millisecond,
		Limiter:        a.limiter,
		Robots:         a.robots,
	}, a.logger.Named("fetcher"))
	times := parser.NewTimeParser(cfg.Location(), a.clock, a.logger.Named("parser"))
	return scrape.New(
		fetcher,
		parser.NewArticleParser(times, cfg.Scrape.SignatureMarker),
		a.store,
		a.clock,
		scrape.Config{
			BaseURL:       cfg.Site.BaseURL,
			Delay:         cfg.ScrapeDelay(),
			ArchivePrefix: cfg.Archive.Prefix,
		},
		a.logger.Named("scrape"),
		scrape.WithArchive(a.archive),
	)
}

// Vectorizer builds the vector upsert worker.
func (a *App) Vectorizer() (*vectorize.Worker, error) {
	splitter, err := chunk.New(a.cfg.Chunk.Size, a.cfg.Chunk.Overlap)
	if err != nil {
		return nil, fmt.Errorf("init chunker: %w", err)
	}
	return vectorize.New(a.store, splitter, a.model, a.index, vectorize.Config{
		BatchSize:   a.cfg.Vectorize.BatchSize,
		MaxAttempts: a.cfg.Vectorize.MaxAttempts,
		BaseDelay:   time.Duration(a.cfg.Vectorize.BaseDelayMs) * time.Millisecond,
	}, a.logger.Named("vectorize")), nil
}

// Engine builds the query engine.
func (a *App) Engine() *rag.Engine {
	return rag.New(a.embed, a.index, a.store, a.model, rag.Config{
		DefaultTopK:     a.cfg.RAG.DefaultTopK,
		MaxTopK:         a.cfg.RAG.MaxTopK,
		SnippetChars:    a.cfg.RAG.SnippetChars,
		MaxContextChars: a.cfg.RAG.MaxContextChars,
		Temperature:     a.cfg.LLM.Temperature,
	}, a.logger)
}

// Server builds the HTTP server.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Engine(), a.store, api.Config{
		Location: a.cfg.Location(),
		Ready:    a.ready,
	}, a.logger)
}

// Broker returns the configured broker, connecting on first use.
func (a *App) Broker(ctx context.Context) (queue.Broker, error) {
	if a.broker != nil {
		return a.broker, nil
	}
	switch a.cfg.Pipeline.Broker {
	case config.BrokerPubSub:
		ps := a.cfg.PubSub
		b, err := queuepubsub.New(ctx, queuepubsub.Config{
			ProjectID: ps.ProjectID,
			Subscriptions: map[string]string{
				ps.ScrapeTopic:    ps.ScrapeSubscription,
				ps.VectorizeTopic: ps.VectorizeSubscription,
			},
			Concurrency: a.cfg.Pipeline.Workers,
		}, a.logger.Named("pubsub"), a.pubsubOpts...)
		if err != nil {
			return nil, fmt.Errorf("init pubsub broker: %w", err)
		}
		if err := b.EnsureTopology(ctx); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf("init pubsub topology: %w", err)
		}
		a.broker = b
	default:
		a.broker = queuememory.NewBroker(a.cfg.Pipeline.QueueDepth, a.cfg.Pipeline.Workers, a.logger.Named("broker"))
	}
	a.closers = append(a.closers, a.broker.Close)
	return a.broker, nil
}

// DurableBroker reports whether published tasks outlive this process.
func (a *App) DurableBroker() bool {
	return a.cfg.Pipeline.Broker == config.BrokerPubSub
}

// Pipeline builds the stage consumers on the configured broker.
func (a *App) Pipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	broker, err := a.Broker(ctx)
	if err != nil {
		return nil, err
	}
	vec, err := a.Vectorizer()
	if err != nil {
		return nil, err
	}
	return pipeline.New(broker, a.Scraper(), vec, a.ids, a.clock, Topics(a.cfg), a.logger), nil
}

// Scheduler builds the periodic scrape scheduler for p.
func (a *App) Scheduler(p *pipeline.Pipeline) *pipeline.Scheduler {
	return pipeline.NewScheduler(p, a.cfg.Schedule.Boards, a.cfg.ScheduleInterval(), a.logger)
}

// Topics derives the broker topics from cfg.
func Topics(cfg config.Config) pipeline.Topics {
	return pipeline.Topics{Scrape: cfg.PubSub.ScrapeTopic, Vectorize: cfg.PubSub.VectorizeTopic}
}

// Close releases resources in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("close resource", zap.Error(err))
		}
	}
	a.closers = nil
}
