// Package rag answers questions from scraped articles: it retrieves similar
// chunks, resolves them to articles, and asks a language model.
package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/logging"
	"github.com/JakeFAU/forumrag/internal/metrics"
)

// NoAnswer is what the model is told to reply when the context is irrelevant.
const NoAnswer = "找不到相關討論"

const promptTemplate = `你是一個專業的 PTT 輿情分析師。請根據以下 PTT 文章內容，用繁體中文回答使用者的問題。
如果文章內容沒有提到相關資訊，請直接回答「%s」。

--- 參考文章 ---
%s
---

使用者問題：%s
`

// ErrContextTooLarge is wrapped by the context_too_large QueryError.
var ErrContextTooLarge = errors.New("retrieved articles are too long, reduce top_k")

// Config bounds query input and context assembly.
type Config struct {
	DefaultTopK      int
	MaxTopK          int
	MaxQuestionChars int
	SnippetChars     int
	MaxContextChars  int
	Temperature      float64
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{
		DefaultTopK:      3,
		MaxTopK:          10,
		MaxQuestionChars: 100,
		SnippetChars:     500,
		MaxContextChars:  100000,
		Temperature:      0.3,
	}
}

// Answer is a successful query result.
type Answer struct {
	Question        string          `json:"question"`
	Answer          string          `json:"answer"`
	RelatedArticles []forum.Article `json:"related_articles"`
}

// Engine runs the retrieve, reconcile, generate sequence.
type Engine struct {
	embedder  forum.Embedder
	index     forum.VectorIndex
	store     forum.ArticleStore
	generator forum.Generator
	cfg       Config
	search    *zap.Logger
	db        *zap.Logger
	llm       *zap.Logger
}

// New constructs an Engine. Zero Config fields take DefaultConfig values.
func New(
	embedder forum.Embedder,
	index forum.VectorIndex,
	store forum.ArticleStore,
	generator forum.Generator,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	def := DefaultConfig()
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = def.DefaultTopK
	}
	if cfg.MaxTopK <= 0 {
		cfg.MaxTopK = def.MaxTopK
	}
	if cfg.MaxQuestionChars <= 0 {
		cfg.MaxQuestionChars = def.MaxQuestionChars
	}
	if cfg.SnippetChars <= 0 {
		cfg.SnippetChars = def.SnippetChars
	}
	if cfg.MaxContextChars <= 0 {
		cfg.MaxContextChars = def.MaxContextChars
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("rag")
	return &Engine{
		embedder:  embedder,
		index:     index,
		store:     store,
		generator: generator,
		cfg:       cfg,
		search:    logging.WithCategory(logger, logging.CategoryRAGSearch),
		db:        logging.WithCategory(logger, logging.CategoryRAGDB),
		llm:       logging.WithCategory(logger, logging.CategoryRAGLLM),
	}
}

// Answer answers question from the topK most similar chunks. topK of 0 takes
// the default. Failures are *QueryError.
func (e *Engine) Answer(ctx context.Context, question string, topK int) (Answer, error) {
	ans, err := e.answer(ctx, question, topK)
	var qe *QueryError
	if errors.As(err, &qe) {
		metrics.ObserveQuery(string(qe.Kind))
		return Answer{}, err
	}
	metrics.ObserveQuery(metrics.OutcomeSuccess)
	return ans, nil
}

func (e *Engine) answer(ctx context.Context, question string, topK int) (Answer, error) {
	question = strings.TrimSpace(question)
	if topK == 0 {
		topK = e.cfg.DefaultTopK
	}
	if err := e.validate(question, topK); err != nil {
		return Answer{}, &QueryError{Kind: KindInvalidRequest, Err: err}
	}

	hits, err := e.retrieve(ctx, question, topK)
	if err != nil {
		e.search.Error("similarity search failed", zap.String("question", question), zap.Error(err))
		return Answer{}, &QueryError{Kind: KindRetrieval, Err: err}
	}

	related, err := e.resolve(ctx, hits)
	if err != nil {
		e.db.Error("article lookup failed", zap.Error(err))
		return Answer{}, &QueryError{Kind: KindLookup, Err: err}
	}

	merged, err := e.buildContext(related)
	if err != nil {
		e.db.Warn("context rejected", zap.Int("articles", len(related)), zap.Error(err))
		return Answer{}, &QueryError{Kind: KindContextTooLarge, Err: err}
	}

	text, err := e.generator.Generate(ctx, fmt.Sprintf(promptTemplate, NoAnswer, merged, question), e.cfg.Temperature)
	if err != nil {
		e.llm.Error("generation failed", zap.Error(err))
		return Answer{}, &QueryError{Kind: KindGeneration, Err: err}
	}

	if related == nil {
		related = []forum.Article{}
	}
	return Answer{Question: question, Answer: strings.TrimSpace(text), RelatedArticles: related}, nil
}

func (e *Engine) validate(question string, topK int) error {
	n := utf8.RuneCountInString(question)
	if n == 0 {
		return errors.New("question is required")
	}
	if n > e.cfg.MaxQuestionChars {
		return fmt.Errorf("question must be at most %d characters", e.cfg.MaxQuestionChars)
	}
	if topK < 1 || topK > e.cfg.MaxTopK {
		return fmt.Errorf("top_k must be between 1 and %d", e.cfg.MaxTopK)
	}
	return nil
}

func (e *Engine) retrieve(ctx context.Context, question string, topK int) ([]forum.ScoredDocument, error) {
	vectors, err := e.embedder.Embed(ctx, []string{question})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embed question: got %d vectors", len(vectors))
	}
	hits, err := e.index.Query(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("query index: %w", err)
	}
	return hits, nil
}

// resolve maps hits to articles in rank order. Ids that no longer resolve
// are dropped.
func (e *Engine) resolve(ctx context.Context, hits []forum.ScoredDocument) ([]forum.Article, error) {
	ids := RankedArticleIDs(hits)
	if len(ids) == 0 {
		return nil, nil
	}
	found, err := e.store.ArticlesByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load articles: %w", err)
	}
	byID := make(map[int64]forum.Article, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	out := make([]forum.Article, 0, len(ids))
	for _, id := range ids {
		if a, ok := byID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// RankedArticleIDs returns the distinct article ids of hits, first occurrence first.
func RankedArticleIDs(hits []forum.ScoredDocument) []int64 {
	seen := make(map[int64]struct{}, len(hits))
	ids := make([]int64, 0, len(hits))
	for _, h := range hits {
		id := h.Document.Metadata.ArticleID
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) buildContext(articles []forum.Article) (string, error) {
	parts := make([]string, 0, len(articles))
	for _, a := range articles {
		parts = append(parts, "標題:"+a.Title+"\n內文:"+truncate(a.Content, e.cfg.SnippetChars)+"...")
	}
	merged := strings.Join(parts, "\n")
	if n := utf8.RuneCountInString(merged); n > e.cfg.MaxContextChars {
		return "", fmt.Errorf("%w: %d characters exceeds %d", ErrContextTooLarge, n, e.cfg.MaxContextChars)
	}
	return merged, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
