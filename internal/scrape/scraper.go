// Package scrape drives one board pass: fetch the index, then fetch, parse and
// upsert every listed article with per-article failure isolation.
package scrape

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/logging"
	"github.com/JakeFAU/forumrag/internal/metrics"
	"github.com/JakeFAU/forumrag/internal/parser"
	"github.com/JakeFAU/forumrag/internal/retry"
	"github.com/JakeFAU/forumrag/internal/storage"
)

// Config controls Scraper behavior.
type Config struct {
	BaseURL string
	// Delay is waited before every article fetch.
	Delay         time.Duration
	ArchivePrefix string
}

// Report summarizes one board pass.
type Report struct {
	Board       string  `json:"board"`
	CreatedIDs  []int64 `json:"created_ids"`
	Created     int     `json:"created"`
	Updated     int     `json:"updated"`
	Skipped     int     `json:"skipped"`
	Failed      int     `json:"failed"`
	IndexFailed bool    `json:"index_failed"`
}

// String renders the completion summary.
func (r Report) String() string {
	return fmt.Sprintf("Scrape %s completed. Created: %d, Updated: %d", r.Board, r.Created, r.Updated)
}

// Scraper scrapes boards into an ArticleStore.
type Scraper struct {
	fetcher forum.Fetcher
	parser  *parser.ArticleParser
	store   forum.ArticleStore
	archive storage.BlobStore
	pauser  retry.Pauser
	clock   forum.Clock
	cfg     Config
	logger  *zap.Logger
}

// Option customizes a Scraper.
type Option func(*Scraper)

// WithArchive keeps every fetched article page in store.
func WithArchive(store storage.BlobStore) Option {
	return func(s *Scraper) { s.archive = store }
}

// WithPauser replaces the timer used for the politeness delay.
func WithPauser(p retry.Pauser) Option {
	return func(s *Scraper) { s.pauser = p }
}

// New constructs a Scraper.
func New(
	fetcher forum.Fetcher,
	articleParser *parser.ArticleParser,
	store forum.ArticleStore,
	clock forum.Clock,
	cfg Config,
	logger *zap.Logger,
	opts ...Option,
) *Scraper {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scraper{
		fetcher: fetcher,
		parser:  articleParser,
		store:   store,
		archive: storage.NopStore{},
		pauser:  retry.TimerPauser{},
		clock:   clock,
		cfg:     cfg,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ScrapeBoard processes the first index page of board. It never fails as a
// whole: an unreachable index yields an empty report with IndexFailed set,
// and a broken article is logged, counted and skipped.
func (s *Scraper) ScrapeBoard(ctx context.Context, board string) Report {
	logger := logging.WithCategory(s.logger, logging.ScrapeCategory(board)).With(zap.String("board", board))
	report := Report{Board: board, CreatedIDs: []int64{}}
	logger.Info("scrape started")

	urls, err := s.articleURLs(ctx, board)
	if err != nil {
		logger.Error("board index unavailable", zap.Error(err))
		report.IndexFailed = true
		return report
	}

	for _, url := range urls {
		if err := s.pauser.Pause(ctx, s.cfg.Delay); err != nil {
			logger.Warn("scrape interrupted", zap.Error(err))
			break
		}
		outcome, id, err := s.processArticle(ctx, logger, board, url)
		metrics.ObserveArticle(board, outcome)
		switch outcome {
		case metrics.OutcomeCreated:
			report.Created++
			report.CreatedIDs = append(report.CreatedIDs, id)
		case metrics.OutcomeUpdated:
			report.Updated++
		case metrics.OutcomeSkipped:
			report.Skipped++
			logger.Warn("article page has no data", zap.String("url", url))
		default:
			report.Failed++
			logger.Error("article failed", zap.String("url", url), zap.Error(err))
		}
	}

	logger.Info(report.String(),
		zap.Int("created", report.Created),
		zap.Int("updated", report.Updated),
		zap.Int("skipped", report.Skipped),
		zap.Int("failed", report.Failed),
	)
	return report
}

func (s *Scraper) articleURLs(ctx context.Context, board string) ([]string, error) {
	html, err := s.fetcher.Fetch(ctx, parser.BoardIndexURL(s.cfg.BaseURL, board))
	if err != nil {
		return nil, fmt.Errorf("fetch board index: %w", err)
	}
	urls, err := parser.ParseIndex(html, s.cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse board index: %w", err)
	}
	return urls, nil
}

func (s *Scraper) processArticle(
	ctx context.Context,
	logger *zap.Logger,
	board, url string,
) (outcome string, id int64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			outcome, id, err = metrics.OutcomeFailed, 0, fmt.Errorf("panic processing article: %v", rec)
		}
	}()

	html, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return metrics.OutcomeFailed, 0, err
	}
	parsed, err := s.parser.Parse(html)
	if errors.Is(err, forum.ErrNoData) {
		return metrics.OutcomeSkipped, 0, nil
	}
	if err != nil {
		return metrics.OutcomeFailed, 0, err
	}

	article := forum.Article{
		Board:             board,
		Title:             parsed.Title,
		Author:            parsed.Author,
		Content:           parsed.Content,
		PostTime:          parsed.PostTime,
		PostTimeEstimated: parsed.PostTimeEstimated,
		URL:               url,
	}
	saved, created, err := s.store.SaveArticle(ctx, article, parsed.Comments)
	if err != nil {
		return metrics.OutcomeFailed, 0, fmt.Errorf("save article: %w", err)
	}
	s.archivePage(ctx, logger, board, url, html)
	if created {
		return metrics.OutcomeCreated, saved.ID, nil
	}
	return metrics.OutcomeUpdated, saved.ID, nil
}

func (s *Scraper) archivePage(ctx context.Context, logger *zap.Logger, board, url, html string) {
	path := storage.PagePath(s.cfg.ArchivePrefix, board, url, s.clock.Now())
	if _, err := s.archive.PutObject(ctx, path, "text/html; charset=utf-8", strings.NewReader(html)); err != nil {
		logger.Warn("archive page failed", zap.String("url", url), zap.Error(err))
	}
}
