package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

// Execer runs schema statements.
type Execer interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS articles (
	id BIGSERIAL PRIMARY KEY,
	board TEXT NOT NULL,
	title TEXT NOT NULL,
	author TEXT NOT NULL,
	content TEXT NOT NULL,
	post_time TIMESTAMPTZ NOT NULL,
	post_time_estimated BOOLEAN NOT NULL DEFAULT FALSE,
	url TEXT NOT NULL UNIQUE
)`,
	`CREATE INDEX IF NOT EXISTS articles_board_post_time_idx ON articles (board, post_time DESC)`,
	`CREATE TABLE IF NOT EXISTS comments (
	id BIGSERIAL PRIMARY KEY,
	article_id BIGINT NOT NULL REFERENCES articles (id) ON DELETE CASCADE,
	tag TEXT NOT NULL,
	user_id TEXT NOT NULL,
	content TEXT NOT NULL,
	ip_datetime TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS comments_article_id_idx ON comments (article_id)`,
}

// Migrate creates the article and comment tables when absent.
func Migrate(ctx context.Context, db Execer) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
