package vectorstore

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"lawchat-backend/models"
)

// MemoryStore is an in-process VectorStore using exact cosine similarity.
// It backs tests and small local deployments where Postgres is overkill.
type MemoryStore struct {
	mu        sync.RWMutex
	dimension int
	chunks    map[string]models.Chunk
	vectors   map[string][]float64
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(dimension int) *MemoryStore {
	return &MemoryStore{
		dimension: dimension,
		chunks:    make(map[string]models.Chunk),
		vectors:   make(map[string][]float64),
	}
}

// Upsert stores chunks and vectors keyed by chunk id.
func (s *MemoryStore) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, chunk := range chunks {
		if len(vectors[i]) != s.dimension {
			return fmt.Errorf("vector for %s must be %d dimensions, got %d", chunk.ChunkID, s.dimension, len(vectors[i]))
		}
		s.chunks[chunk.ChunkID] = chunk
		s.vectors[chunk.ChunkID] = vectors[i]
	}
	return nil
}

// Query ranks all stored chunks by cosine similarity, ties broken by chunk
// id for determinism.
func (s *MemoryStore) Query(ctx context.Context, vector []float64, topK int, filter *Filter) ([]SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := make([]SearchResult, 0, len(s.chunks))
	for id, chunk := range s.chunks {
		if filter != nil && filter.LawLevel != "" && chunk.LawLevel != filter.LawLevel {
			continue
		}
		results = append(results, SearchResult{Chunk: chunk, Score: cosine(vector, s.vectors[id])})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Chunk.ChunkID < results[j].Chunk.ChunkID
	})
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// Get fetches stored chunks by id; missing ids are skipped.
func (s *MemoryStore) Get(ctx context.Context, chunkIDs []string) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var chunks []models.Chunk
	for _, id := range chunkIDs {
		if chunk, ok := s.chunks[id]; ok {
			chunks = append(chunks, chunk)
		}
	}
	return chunks, nil
}

// All returns every stored chunk in chunk-id order.
func (s *MemoryStore) All(ctx context.Context) ([]models.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.chunks))
	for id := range s.chunks {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	chunks := make([]models.Chunk, 0, len(ids))
	for _, id := range ids {
		chunks = append(chunks, s.chunks[id])
	}
	return chunks, nil
}

// CollectionExists reports whether any chunks have been ingested.
func (s *MemoryStore) CollectionExists(ctx context.Context) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks) > 0, nil
}

// Count returns the number of stored chunks.
func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks), nil
}

// Reset drops all stored chunks.
func (s *MemoryStore) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chunks = make(map[string]models.Chunk)
	s.vectors = make(map[string][]float64)
	return nil
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
