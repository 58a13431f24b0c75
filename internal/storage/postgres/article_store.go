// Package postgres provides the Postgres-backed article and comment store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/forumrag/internal/forum"
)

const (
	defaultListLimit = 50
	articleColumns   = "id, board, title, author, content, post_time, post_time_estimated, url"
)

var commentColumns = []string{"article_id", "tag", "user_id", "content", "ip_datetime"}

// StoreConfig controls the Postgres connection pool.
type StoreConfig struct {
	DSN             string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

// Pool is the subset of pgxpool.Pool the store uses.
type Pool interface {
	Begin(context.Context) (pgx.Tx, error)
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// ArticleStore implements forum.ArticleStore on Postgres.
type ArticleStore struct {
	pool Pool
}

var _ forum.ArticleStore = (*ArticleStore)(nil)

// NewPool opens a pgx pool from cfg.
func NewPool(ctx context.Context, cfg StoreConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// NewArticleStore constructs a store on an existing pool.
func NewArticleStore(pool Pool) (*ArticleStore, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	return &ArticleStore{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *ArticleStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveArticle upserts by URL and swaps the comment set inside one transaction,
// so a failure after the delete leaves the previous comments in place.
func (s *ArticleStore) SaveArticle(
	ctx context.Context,
	article forum.Article,
	comments []forum.Comment,
) (forum.Article, bool, error) {
	if article.URL == "" {
		return forum.Article{}, false, errors.New("article url is required")
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return forum.Article{}, false, fmt.Errorf("begin upsert: %w", err)
	}

	const upsert = `
INSERT INTO articles (board, title, author, content, post_time, post_time_estimated, url)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (url) DO UPDATE SET
	board = EXCLUDED.board,
	title = EXCLUDED.title,
	author = EXCLUDED.author,
	content = EXCLUDED.content,
	post_time = EXCLUDED.post_time,
	post_time_estimated = EXCLUDED.post_time_estimated
RETURNING id, (xmax = 0) AS inserted`

	var created bool
	err = tx.QueryRow(ctx, upsert,
		article.Board,
		article.Title,
		article.Author,
		article.Content,
		article.PostTime,
		article.PostTimeEstimated,
		article.URL,
	).Scan(&article.ID, &created)
	if err != nil {
		rollback(ctx, tx)
		return forum.Article{}, false, fmt.Errorf("upsert article: %w", err)
	}

	if len(comments) > 0 {
		if err := replaceComments(ctx, tx, article.ID, comments); err != nil {
			rollback(ctx, tx)
			return forum.Article{}, false, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return forum.Article{}, false, fmt.Errorf("commit upsert: %w", err)
	}
	return article, created, nil
}

func replaceComments(ctx context.Context, tx pgx.Tx, articleID int64, comments []forum.Comment) error {
	if _, err := tx.Exec(ctx, "DELETE FROM comments WHERE article_id = $1", articleID); err != nil {
		return fmt.Errorf("delete comments: %w", err)
	}
	_, err := tx.CopyFrom(ctx, pgx.Identifier{"comments"}, commentColumns,
		pgx.CopyFromSlice(len(comments), func(i int) ([]any, error) {
			c := comments[i]
			return []any{articleID, c.Tag, c.UserID, c.Content, c.IPDateTime}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("insert comments: %w", err)
	}
	return nil
}

func rollback(ctx context.Context, tx pgx.Tx) {
	_ = tx.Rollback(ctx) //nolint:errcheck // the original error is returned
}

// ArticlesByID returns the articles that exist among ids, in no particular order.
func (s *ArticleStore) ArticlesByID(ctx context.Context, ids []int64) ([]forum.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, "SELECT "+articleColumns+" FROM articles WHERE id = ANY($1)", ids)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}
	return collectArticles(rows)
}

// Comments returns an article's comments in insertion order.
func (s *ArticleStore) Comments(ctx context.Context, articleID int64) ([]forum.Comment, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, article_id, tag, user_id, content, ip_datetime
FROM comments WHERE article_id = $1 ORDER BY id`, articleID)
	if err != nil {
		return nil, fmt.Errorf("query comments: %w", err)
	}
	defer rows.Close()

	var out []forum.Comment
	for rows.Next() {
		var c forum.Comment
		if err := rows.Scan(&c.ID, &c.ArticleID, &c.Tag, &c.UserID, &c.Content, &c.IPDateTime); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return out, nil
}

// ListArticles returns one page of articles, newest first, and the total
// number of matching rows.
func (s *ArticleStore) ListArticles(ctx context.Context, filter forum.ArticleFilter) ([]forum.Article, int, error) {
	where, args := filterClause(filter)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT count(*) FROM articles"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count articles: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query := fmt.Sprintf("SELECT %s FROM articles%s ORDER BY post_time DESC, id DESC LIMIT $%d OFFSET $%d",
		articleColumns, where, len(args)-1, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list articles: %w", err)
	}
	articles, err := collectArticles(rows)
	if err != nil {
		return nil, 0, err
	}
	return articles, total, nil
}

func filterClause(filter forum.ArticleFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Board != "" {
		add("board = $%d", filter.Board)
	}
	if filter.Author != "" {
		add("author = $%d", filter.Author)
	}
	if filter.Since != nil {
		add("post_time >= $%d", *filter.Since)
	}
	if filter.Until != nil {
		add("post_time < $%d", *filter.Until)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func collectArticles(rows pgx.Rows) ([]forum.Article, error) {
	defer rows.Close()
	var out []forum.Article
	for rows.Next() {
		var a forum.Article
		if err := rows.Scan(&a.ID, &a.Board, &a.Title, &a.Author, &a.Content,
			&a.PostTime, &a.PostTimeEstimated, &a.URL); err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return out, nil
}
