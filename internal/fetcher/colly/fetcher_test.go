package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/retry"
)

type recordingPauser struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (p *recordingPauser) Pause(_ context.Context, d time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.delays = append(p.delays, d)
	return nil
}

func (p *recordingPauser) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.delays)
}

func newTestFetcher(p retry.Pauser) *Fetcher {
	return New(Config{
		UserAgent:      "forumrag-test",
		Referer:        "https://forum.example/",
		CookieName:     "over18",
		CookieValue:    "1",
		Timeout:        2 * time.Second,
		MaxAttempts:    3,
		BackoffInitial: time.Second,
		Pauser:         p,
	}, nil)
}

func TestFetchSendsIdentityHeadersAndCookie(t *testing.T) {
	t.Parallel()

	var got http.Header
	var cookie *http.Cookie
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		cookie, _ = r.Cookie("over18")
		_, _ = w.Write([]byte("<html>ok</html>"))
	}))
	defer srv.Close()

	body, err := newTestFetcher(&recordingPauser{}).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "<html>ok</html>", body)
	require.Equal(t, "forumrag-test", got.Get("User-Agent"))
	require.Equal(t, "https://forum.example/", got.Get("Referer"))
	require.Contains(t, got.Get("Accept"), "text/html")
	require.NotNil(t, cookie)
	require.Equal(t, "1", cookie.Value)
}

func TestFetchRetriesTransientStatus(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer srv.Close()

	pauser := &recordingPauser{}
	body, err := newTestFetcher(pauser).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, "recovered", body)
	require.Equal(t, int32(3), calls.Load())
	require.Equal(t, 2, pauser.count())
	require.Less(t, pauser.delays[0], pauser.delays[1])
}

func TestFetchGivesUpAfterMaxAttempts(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := newTestFetcher(&recordingPauser{}).Fetch(context.Background(), srv.URL)
	require.Error(t, err)
	require.ErrorIs(t, err, retry.ErrRetriesExhausted)

	var fe *forum.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusBadGateway, fe.StatusCode)
	require.Equal(t, int32(3), calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	pauser := &recordingPauser{}
	_, err := newTestFetcher(pauser).Fetch(context.Background(), srv.URL)

	var fe *forum.FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, http.StatusNotFound, fe.StatusCode)
	require.NotErrorIs(t, err, retry.ErrRetriesExhausted)
	require.Equal(t, int32(1), calls.Load())
	require.Zero(t, pauser.count())
}

func TestFetchHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		<-release
		_, _ = w.Write([]byte("late"))
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestFetcher(&recordingPauser{}).Fetch(ctx, srv.URL)
	require.ErrorIs(t, err, context.Canceled)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func TestConfigureCollectorHooksCapturesStatus(t *testing.T) {
	t.Parallel()

	f := newTestFetcher(nil)
	var (
		body     string
		status   int
		fetchErr error
	)
	hooks := &stubHooks{}
	f.configureCollectorHooks(hooks, &body, &status, &fetchErr)
	require.NotNil(t, hooks.onRequest)

	hooks.onResponse(&colly.Response{StatusCode: http.StatusOK, Body: []byte("page")})
	require.Equal(t, "page", body)
	require.Equal(t, http.StatusOK, status)

	hooks.onError(&colly.Response{StatusCode: http.StatusGatewayTimeout}, errors.New("Gateway Timeout"))
	require.Equal(t, http.StatusGatewayTimeout, status)
	require.EqualError(t, fetchErr, "Gateway Timeout")

	hooks.onError(nil, nil)
	require.EqualError(t, fetchErr, "unknown colly error")
}

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Wait(context.Context, string) error {
	l.calls.Add(1)
	return l.err
}

func TestFetchWaitsOnLimiterBeforeEveryAttempt(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := newTestFetcher(&recordingPauser{})
	limiter := &countingLimiter{}
	f.cfg.Limiter = limiter

	_, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	require.Equal(t, int32(2), limiter.calls.Load())
}

func TestFetchStopsWhenLimiterFails(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	f := newTestFetcher(&recordingPauser{})
	f.cfg.Limiter = &countingLimiter{err: context.DeadlineExceeded}

	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Zero(t, calls.Load())
}

type denyRobots struct{}

func (denyRobots) Allowed(context.Context, string) bool { return false }

func TestFetchRefusesDisallowedURL(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	f := newTestFetcher(&recordingPauser{})
	f.cfg.Robots = denyRobots{}

	_, err := f.Fetch(context.Background(), srv.URL)
	require.ErrorIs(t, err, forum.ErrDisallowed)
	require.Zero(t, calls.Load())
}
