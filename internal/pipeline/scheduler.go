package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Enqueuer publishes a scrape task for a board.
type Enqueuer interface {
	EnqueueScrape(ctx context.Context, board string) (string, error)
}

// Scheduler enqueues one scrape per board at start and on every tick.
type Scheduler struct {
	enqueuer Enqueuer
	boards   []string
	interval time.Duration
	logger   *zap.Logger
}

// NewScheduler constructs a Scheduler.
func NewScheduler(enqueuer Enqueuer, boards []string, interval time.Duration, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scheduler{
		enqueuer: enqueuer,
		boards:   append([]string(nil), boards...),
		interval: interval,
		logger:   logger.Named("scheduler"),
	}
}

// Run blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.enqueueAll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.enqueueAll(ctx)
		}
	}
}

func (s *Scheduler) enqueueAll(ctx context.Context) {
	for _, board := range s.boards {
		id, err := s.enqueuer.EnqueueScrape(ctx, board)
		if err != nil {
			// One board's failure must not hold back the others.
			s.logger.Error("enqueue scrape", zap.String("board", board), zap.Error(err))
			continue
		}
		s.logger.Debug("scrape enqueued", zap.String("board", board), zap.String("task_id", id))
	}
}
