// Package collyfetcher implements the resilient page fetcher using gocolly.
package collyfetcher

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/retry"
)

const defaultAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8"

// Config controls collector behavior.
type Config struct {
	UserAgent      string
	Referer        string
	CookieName     string
	CookieValue    string
	Timeout        time.Duration
	MaxAttempts    int
	BackoffInitial time.Duration
	// Pauser overrides the backoff sleep; nil uses a timer.
	Pauser retry.Pauser
	// Limiter, when set, is waited on before every attempt.
	Limiter Limiter
	// Robots, when set, is consulted once per Fetch.
	Robots RobotsPolicy
}

// RobotsPolicy reports whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, url string) bool
}

// Limiter paces requests per host.
type Limiter interface {
	Wait(ctx context.Context, url string) error
}

// Fetcher implements forum.Fetcher using the Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

var _ forum.Fetcher = (*Fetcher)(nil)

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false), colly.AllowURLRevisit())
	if cfg.UserAgent != "" {
		c.UserAgent = cfg.UserAgent
	}
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch issues a GET for url and returns the body text. HTTP 500/502/503/504
// responses are retried with increasing backoff up to MaxAttempts in total;
// every other failure is returned on the first occurrence.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.cfg.Robots != nil && !f.cfg.Robots.Allowed(ctx, url) {
		return "", &forum.FetchError{URL: url, Err: forum.ErrDisallowed}
	}
	policy := retry.Policy{
		MaxAttempts: f.cfg.MaxAttempts,
		BaseDelay:   f.cfg.BackoffInitial,
		Pauser:      f.cfg.Pauser,
		Retryable:   isRetryableStatus,
		OnRetry: func(attempt int, delay time.Duration, err error) {
			f.logger.Warn("fetch retry scheduled",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(err),
			)
		},
	}
	body, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		if f.cfg.Limiter != nil {
			if err := f.cfg.Limiter.Wait(ctx, url); err != nil {
				return "", err
			}
		}
		return f.fetchOnce(ctx, url)
	})
	if err != nil {
		return "", fmt.Errorf("fetch page: %w", err)
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (string, error) {
	var (
		body       string
		statusCode int
		fetchErr   error
	)
	collector := f.baseCollector.Clone()
	f.configureCollectorHooks(collector, &body, &statusCode, &fetchErr)

	if err := f.runCollector(ctx, collector, url); err != nil {
		if fetchErr == nil {
			fetchErr = err
		}
		return "", &forum.FetchError{URL: url, StatusCode: statusCode, Err: fetchErr}
	}
	if fetchErr != nil {
		return "", &forum.FetchError{URL: url, StatusCode: statusCode, Err: fetchErr}
	}
	return body, nil
}

func (f *Fetcher) configureCollectorHooks(
	hooks collectorHooks,
	body *string,
	statusCode *int,
	fetchErr *error,
) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Accept", defaultAccept)
		if f.cfg.Referer != "" {
			r.Headers.Set("Referer", f.cfg.Referer)
		}
		if f.cfg.CookieName != "" {
			r.Headers.Set("Cookie", (&http.Cookie{Name: f.cfg.CookieName, Value: f.cfg.CookieValue}).String())
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*statusCode = r.StatusCode
		*body = string(r.Body)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			*statusCode = r.StatusCode
		}
		if err == nil {
			err = errors.New("unknown colly error")
		}
		*fetchErr = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		return nil
	}
}

func isRetryableStatus(err error) bool {
	var fe *forum.FetchError
	return errors.As(err, &fe) && fe.Retryable()
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
