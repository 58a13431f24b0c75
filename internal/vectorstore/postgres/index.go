// Package postgres implements forum.VectorIndex on Postgres with pgvector.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/pgvector/pgvector-go"

	"github.com/JakeFAU/forumrag/internal/forum"
	store "github.com/JakeFAU/forumrag/internal/storage/postgres"
	"github.com/JakeFAU/forumrag/internal/vectorstore"
)

var tableName = regexp.MustCompile(`^[a-z_][a-z0-9_]*$`)

// Index stores chunk embeddings in a pgvector column and ranks by cosine distance.
type Index struct {
	pool       store.Pool
	table      string
	dimensions int
}

var _ forum.VectorIndex = (*Index)(nil)

// New returns an Index over table. The table name is interpolated into SQL and
// must be a plain lower-case identifier.
func New(pool store.Pool, table string, dimensions int) (*Index, error) {
	if pool == nil {
		return nil, errors.New("pool is required")
	}
	if !tableName.MatchString(table) {
		return nil, fmt.Errorf("invalid vector table name %q", table)
	}
	if dimensions <= 0 {
		return nil, errors.New("dimensions must be > 0")
	}
	return &Index{pool: pool, table: table, dimensions: dimensions}, nil
}

// Migrate creates the extension, table, and HNSW index when absent.
func (x *Index) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id TEXT PRIMARY KEY,
	article_id BIGINT NOT NULL,
	content TEXT NOT NULL,
	metadata JSONB NOT NULL,
	embedding vector(%d) NOT NULL
)`, x.table, x.dimensions),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_embedding_idx ON %s USING hnsw (embedding vector_cosine_ops)`, x.table, x.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_article_id_idx ON %s (article_id)`, x.table, x.table),
	}
	for _, stmt := range stmts {
		if _, err := x.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply vector schema: %w", err)
		}
	}
	return nil
}

// Upsert writes docs in one transaction, replacing rows with the same id.
func (x *Index) Upsert(ctx context.Context, docs []forum.EmbeddedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	for _, d := range docs {
		if len(d.Embedding) != x.dimensions {
			return fmt.Errorf("%w: document %s has %d, index has %d",
				vectorstore.ErrDimensionMismatch, d.ID, len(d.Embedding), x.dimensions)
		}
	}

	tx, err := x.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin vector upsert: %w", err)
	}

	query := fmt.Sprintf(`INSERT INTO %s (id, article_id, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE SET
	article_id = EXCLUDED.article_id,
	content = EXCLUDED.content,
	metadata = EXCLUDED.metadata,
	embedding = EXCLUDED.embedding`, x.table)

	for _, d := range docs {
		meta, err := json.Marshal(d.Metadata)
		if err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("encode metadata for %s: %w", d.ID, err)
		}
		if _, err := tx.Exec(ctx, query, d.ID, d.Metadata.ArticleID, d.Content, meta, pgvector.NewVector(d.Embedding)); err != nil {
			_ = tx.Rollback(ctx)
			return fmt.Errorf("upsert vector %s: %w", d.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit vector upsert: %w", err)
	}
	return nil
}

// Query returns the k nearest chunks; Score is cosine similarity.
func (x *Index) Query(ctx context.Context, vector []float32, k int) ([]forum.ScoredDocument, error) {
	if k <= 0 {
		return []forum.ScoredDocument{}, nil
	}
	if len(vector) != x.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d",
			vectorstore.ErrDimensionMismatch, len(vector), x.dimensions)
	}

	query := fmt.Sprintf(`SELECT id, content, metadata, 1 - (embedding <=> $1) AS score
FROM %s
ORDER BY embedding <=> $1
LIMIT $2`, x.table)

	rows, err := x.pool.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		return nil, fmt.Errorf("query vectors: %w", err)
	}
	defer rows.Close()

	out := make([]forum.ScoredDocument, 0, k)
	for rows.Next() {
		var (
			hit  forum.ScoredDocument
			meta []byte
		)
		if err := rows.Scan(&hit.Document.ID, &hit.Document.Content, &meta, &hit.Score); err != nil {
			return nil, fmt.Errorf("scan vector row: %w", err)
		}
		if err := json.Unmarshal(meta, &hit.Document.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", hit.Document.ID, err)
		}
		out = append(out, hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector rows: %w", err)
	}
	return out, nil
}
