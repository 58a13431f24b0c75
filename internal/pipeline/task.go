// Package pipeline chains the scrape and vectorize stages through a broker and
// schedules periodic scrapes of the configured boards.
package pipeline

import "time"

// Stage names used in logs and metrics.
const (
	StageScrape    = "scrape"
	StageVectorize = "vectorize"
)

// Topics names the broker topics of the two stages.
type Topics struct {
	Scrape    string
	Vectorize string
}

// ScrapeTask asks a worker to scrape one board.
type ScrapeTask struct {
	ID         string    `json:"id"`
	Board      string    `json:"board"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// VectorizeTask carries a scrape stage's newly created article ids.
type VectorizeTask struct {
	ID         string  `json:"id"`
	ParentID   string  `json:"parent_id"`
	Board      string  `json:"board"`
	ArticleIDs []int64 `json:"article_ids"`
}
