// Package retry implements bounded exponential backoff with jitter.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/JakeFAU/forumrag/internal/forum"
)

// ErrRetriesExhausted is returned once every attempt failed with a retryable error.
var ErrRetriesExhausted = errors.New("retries exhausted")

// Pauser blocks for a backoff delay.
type Pauser interface {
	Pause(ctx context.Context, delay time.Duration) error
}

// TimerPauser sleeps on a timer and returns early if the context ends.
type TimerPauser struct{}

// Pause waits for delay or until ctx is done.
func (TimerPauser) Pause(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("backoff canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}

// Policy controls how many attempts are made and how long to wait between them.
type Policy struct {
	// MaxAttempts counts the first call; values below 1 mean a single attempt.
	MaxAttempts int
	// BaseDelay is doubled per attempt: BaseDelay * 2^attempt.
	BaseDelay time.Duration
	// MaxJitter bounds the random delay added to every wait.
	MaxJitter time.Duration
	// Retryable classifies errors; nil means forum.IsRetryable.
	Retryable func(error) bool
	// OnRetry is called before each wait.
	OnRetry func(attempt int, delay time.Duration, err error)
	// Pauser performs the wait; nil means TimerPauser.
	Pauser Pauser
}

// Backoff returns the wait before the retry that follows the given 0-based attempt.
func (p Policy) Backoff(attempt int) time.Duration {
	delay := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt)))
	return delay + randomJitter(p.MaxJitter)
}

// Do calls fn until it succeeds, returns a non-retryable error, or the attempt
// budget runs out. Non-retryable errors are returned unchanged and immediately.
func Do[T any](ctx context.Context, p Policy, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	retryable := p.Retryable
	if retryable == nil {
		retryable = forum.IsRetryable
	}
	pauser := p.Pauser
	if pauser == nil {
		pauser = TimerPauser{}
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		if !retryable(err) {
			return zero, err
		}
		lastErr = err
		if attempt == attempts-1 {
			break
		}
		delay := p.Backoff(attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		if perr := pauser.Pause(ctx, delay); perr != nil {
			return zero, perr
		}
	}
	return zero, fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempts, lastErr)
}

func randomJitter(limit time.Duration) time.Duration {
	if limit <= 0 {
		return 0
	}
	n, err := rand.Int(rand.Reader, big.NewInt(int64(limit)))
	if err != nil {
		return limit / 2
	}
	return time.Duration(n.Int64())
}
