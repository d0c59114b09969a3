// Package vectorstore persists chunk vectors and supports similarity search
// with metadata filters.
package vectorstore

import (
	"context"

	"lawchat-backend/models"
)

// SearchResult is one ranked hit: the full chunk plus its similarity score.
type SearchResult struct {
	Chunk models.Chunk
	Score float64
}

// Filter restricts a query to chunks with matching metadata. Zero-value
// fields are ignored.
type Filter struct {
	LawLevel models.LawLevel
}

// VectorStore is the storage boundary for chunk vectors. CollectionExists
// reports whether the collection has been created and populated; retrieval
// against an unpopulated collection is the caller's CollectionNotInitialized
// condition.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float64) error
	Query(ctx context.Context, vector []float64, topK int, filter *Filter) ([]SearchResult, error)
	Get(ctx context.Context, chunkIDs []string) ([]models.Chunk, error)
	All(ctx context.Context) ([]models.Chunk, error)
	CollectionExists(ctx context.Context) (bool, error)
	Count(ctx context.Context) (int, error)
	Reset(ctx context.Context) error
}
