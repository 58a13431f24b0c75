package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/metrics"
	"github.com/JakeFAU/forumrag/internal/rag"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	dateLayout       = "2006-01-02"
)

// Querier answers questions; rag.Engine implements it.
type Querier interface {
	Answer(ctx context.Context, question string, topK int) (rag.Answer, error)
}

// Config tunes the server.
type Config struct {
	// Location interprets start_date and end_date; nil means UTC.
	Location       *time.Location
	RequestTimeout time.Duration
	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error
}

// Server wires HTTP handlers to the query engine and article store.
type Server struct {
	router  chi.Router
	querier Querier
	store   forum.ArticleStore
	cfg     Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(querier Querier, store forum.ArticleStore, cfg Config, logger *zap.Logger) *Server {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 150 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		querier: querier,
		store:   store,
		cfg:     cfg,
		logger:  logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(cfg.RequestTimeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/query", s.query)
		r.Get("/articles", s.listArticles)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Ready != nil {
		if err := s.cfg.Ready(r.Context()); err != nil {
			s.writeError(w, http.StatusServiceUnavailable, "not ready: "+err.Error())
			return
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type queryRequest struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k"`
}

func (s *Server) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	topK := 0
	if req.TopK != nil {
		topK = *req.TopK
		if topK == 0 {
			s.writeError(w, http.StatusBadRequest, "top_k must be positive")
			return
		}
	}

	ans, err := s.querier.Answer(r.Context(), req.Question, topK)
	if err != nil {
		status := http.StatusInternalServerError
		var qe *rag.QueryError
		if errors.As(err, &qe) {
			status = qe.Kind.HTTPStatus()
		}
		s.writeError(w, status, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, ans)
}

type articleList struct {
	Count   int             `json:"count"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
	Results []forum.Article `json:"results"`
}

func (s *Server) listArticles(w http.ResponseWriter, r *http.Request) {
	filter, err := s.parseFilter(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	articles, total, err := s.store.ListArticles(r.Context(), filter)
	if err != nil {
		s.logger.Error("list articles", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to list articles")
		return
	}
	if articles == nil {
		articles = []forum.Article{}
	}
	s.writeJSON(w, http.StatusOK, articleList{
		Count:   total,
		Limit:   filter.Limit,
		Offset:  filter.Offset,
		Results: articles,
	})
}

func (s *Server) parseFilter(r *http.Request) (forum.ArticleFilter, error) {
	q := r.URL.Query()
	filter := forum.ArticleFilter{
		Board:  firstNonEmpty(q.Get("board"), q.Get("board_name")),
		Author: firstNonEmpty(q.Get("author"), q.Get("author_name")),
		Limit:  defaultListLimit,
	}

	var err error
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil || filter.Limit < 1 || filter.Limit > maxListLimit {
			return forum.ArticleFilter{}, fmt.Errorf("limit must be between 1 and %d", maxListLimit)
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil || filter.Offset < 0 {
			return forum.ArticleFilter{}, errors.New("offset must be a non-negative integer")
		}
	}
	if v := q.Get("start_date"); v != "" {
		day, err := time.ParseInLocation(dateLayout, v, s.cfg.Location)
		if err != nil {
			return forum.ArticleFilter{}, errors.New("start_date must be YYYY-MM-DD")
		}
		filter.Since = &day
	}
	if v := q.Get("end_date"); v != "" {
		day, err := time.ParseInLocation(dateLayout, v, s.cfg.Location)
		if err != nil {
			return forum.ArticleFilter{}, errors.New("end_date must be YYYY-MM-DD")
		}
		// end_date is inclusive: everything before the following midnight.
		until := day.AddDate(0, 0, 1)
		filter.Until = &until
	}
	if filter.Since != nil && filter.Until != nil && !filter.Since.Before(*filter.Until) {
		return forum.ArticleFilter{}, errors.New("start_date must not be after end_date")
	}
	return filter, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		reqID, _ := r.Context().Value(requestIDKey{}).(string)
		s.logger.Info("request completed",
			zap.String("request_id", reqID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec), zap.String("path", r.URL.Path))
				s.writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write JSON failed", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
