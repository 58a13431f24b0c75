// Package vectorstore holds the vector index backends: an in-process HNSW
// graph (memory) and pgvector on Postgres (postgres).
package vectorstore

import "errors"

// ErrDimensionMismatch is returned when a vector's length differs from the index's.
var ErrDimensionMismatch = errors.New("vector dimension mismatch")
