package forum

import "time"

// Article is one forum post, keyed by its source URL.
type Article struct {
	ID                int64     `json:"id"`
	Board             string    `json:"board"`
	Title             string    `json:"title"`
	Author            string    `json:"author"`
	Content           string    `json:"content"`
	PostTime          time.Time `json:"post_time"`
	PostTimeEstimated bool      `json:"post_time_estimated"`
	URL               string    `json:"url"`
}

// Comment is a push attached to an article.
type Comment struct {
	ID         int64  `json:"id"`
	ArticleID  int64  `json:"article_id"`
	Tag        string `json:"tag"`
	UserID     string `json:"user_id"`
	Content    string `json:"content"`
	IPDateTime string `json:"ip_datetime"`
}

// ParsedArticle is the structured result of parsing one article page.
type ParsedArticle struct {
	Title             string
	Author            string
	PostTime          time.Time
	PostTimeEstimated bool
	Content           string
	Comments          []Comment
}

// ChunkMetadata is stored alongside every chunk in the vector store.
type ChunkMetadata struct {
	ArticleID  int64  `json:"article_id"`
	Board      string `json:"board"`
	Title      string `json:"title"`
	Author     string `json:"author"`
	PostTime   string `json:"post_time"`
	URL        string `json:"url"`
	ChunkIndex int    `json:"chunk_index"`
}

// VectorDocument is one text chunk of an article with its metadata.
type VectorDocument struct {
	ID       string        `json:"id"`
	Content  string        `json:"content"`
	Metadata ChunkMetadata `json:"metadata"`
}

// EmbeddedDocument pairs a document with its embedding.
type EmbeddedDocument struct {
	VectorDocument
	Embedding []float32
}

// ScoredDocument is a similarity search hit; higher scores rank first.
type ScoredDocument struct {
	Document VectorDocument
	Score    float64
}

// ArticleFilter narrows article listings.
type ArticleFilter struct {
	Board  string
	Author string
	Since  *time.Time
	Until  *time.Time
	Limit  int
	Offset int
}
