// Package memory implements forum.VectorIndex as an in-process HNSW graph.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"

	"github.com/JakeFAU/forumrag/internal/forum"
	"github.com/JakeFAU/forumrag/internal/vectorstore"
)

// Index stores normalized vectors in an HNSW graph under cosine distance.
// Re-upserting an id orphans the old graph node instead of deleting it.
type Index struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int
	docs       map[string]forum.VectorDocument
	idToKey    map[string]uint64
	keyToID    map[uint64]string
	nextKey    uint64
	orphans    int
}

var _ forum.VectorIndex = (*Index)(nil)

// New creates an Index. dimensions of 0 adopts the length of the first vector.
func New(dimensions int) *Index {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	return &Index{
		graph:      graph,
		dimensions: dimensions,
		docs:       make(map[string]forum.VectorDocument),
		idToKey:    make(map[string]uint64),
		keyToID:    make(map[uint64]string),
	}
}

// Upsert inserts or replaces documents by id.
func (x *Index) Upsert(_ context.Context, docs []forum.EmbeddedDocument) error {
	if len(docs) == 0 {
		return nil
	}
	x.mu.Lock()
	defer x.mu.Unlock()

	if x.dimensions == 0 {
		x.dimensions = len(docs[0].Embedding)
	}
	for _, d := range docs {
		if len(d.Embedding) != x.dimensions {
			return fmt.Errorf("%w: document %s has %d, index has %d",
				vectorstore.ErrDimensionMismatch, d.ID, len(d.Embedding), x.dimensions)
		}
	}

	for _, d := range docs {
		if old, ok := x.idToKey[d.ID]; ok {
			delete(x.keyToID, old)
			x.orphans++
		}
		key := x.nextKey
		x.nextKey++

		x.graph.Add(hnsw.MakeNode(key, normalized(d.Embedding)))
		x.idToKey[d.ID] = key
		x.keyToID[key] = d.ID
		x.docs[d.ID] = d.VectorDocument
	}
	return nil
}

// Query returns up to k documents ordered by descending cosine similarity.
func (x *Index) Query(_ context.Context, vector []float32, k int) ([]forum.ScoredDocument, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	if k <= 0 || x.graph.Len() == 0 {
		return []forum.ScoredDocument{}, nil
	}
	if len(vector) != x.dimensions {
		return nil, fmt.Errorf("%w: query has %d, index has %d",
			vectorstore.ErrDimensionMismatch, len(vector), x.dimensions)
	}

	query := normalized(vector)
	nodes := x.graph.Search(query, min(k+x.orphans, x.graph.Len()))
	out := make([]forum.ScoredDocument, 0, k)
	for _, node := range nodes {
		id, ok := x.keyToID[node.Key]
		if !ok {
			continue
		}
		dist := x.graph.Distance(query, node.Value)
		out = append(out, forum.ScoredDocument{
			Document: x.docs[id],
			Score:    1 - float64(dist)/2,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > k {
		out = out[:k]
	}
	return out, nil
}

// Len returns the number of live documents.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.idToKey)
}

func normalized(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sum float64
	for _, f := range out {
		sum += float64(f) * float64(f)
	}
	if sum == 0 {
		return out
	}
	inv := float32(1 / math.Sqrt(sum))
	for i := range out {
		out[i] *= inv
	}
	return out
}
