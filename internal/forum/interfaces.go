package forum

import (
	"context"
	"time"
)

// Fetcher retrieves the HTML text of a page.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// ArticleStore is the system of record for articles and comments.
type ArticleStore interface {
	// SaveArticle upserts the article by URL and, when comments is non-empty,
	// replaces the article's comment set, all in one atomic unit. It reports
	// whether the article row was newly created.
	SaveArticle(ctx context.Context, article Article, comments []Comment) (Article, bool, error)
	ArticlesByID(ctx context.Context, ids []int64) ([]Article, error)
	Comments(ctx context.Context, articleID int64) ([]Comment, error)
	ListArticles(ctx context.Context, filter ArticleFilter) ([]Article, int, error)
}

// Embedder turns texts into embeddings, one per input, in order.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Generator produces a completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float64) (string, error)
}

// VectorIndex stores embedded chunks and answers nearest-neighbour queries.
type VectorIndex interface {
	Upsert(ctx context.Context, docs []EmbeddedDocument) error
	Query(ctx context.Context, vector []float32, k int) ([]ScoredDocument, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces task message IDs.
type IDGenerator interface {
	NewID() (string, error)
}
