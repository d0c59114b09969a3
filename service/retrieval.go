package service

import (
	"context"
	"sort"
	"sync"

	"lawchat-backend/graph"
	"lawchat-backend/llm"
	"lawchat-backend/models"
	"lawchat-backend/vectorstore"

	"go.uber.org/zap"
)

const (
	// DefaultTopK is the result count when the caller does not specify one.
	DefaultTopK = 5
	// DefaultReferenceDecay multiplies a referring hit's score for its
	// graph-expanded neighbors. A referenced chunk never outranks the chunk
	// that cited it unless it also scores higher on its own.
	DefaultReferenceDecay = 0.7
	// DefaultContextDecay multiplies the original citation score of chunks
	// carried over from prior turns.
	DefaultContextDecay = 0.5
)

// SearchOptions controls the expansion stages of a search.
type SearchOptions struct {
	TopK             int
	LawLevel         models.LawLevel // optional metadata filter
	ExpandReferences bool
	ReferenceDecay   float64 // defaults to DefaultReferenceDecay
	ExpandSynonyms   bool
	ContextChunks    []models.CitedChunk // prior-turn citations with their scores
	ContextDecay     float64             // defaults to DefaultContextDecay
}

// ScoredChunk is one ranked retrieval result.
type ScoredChunk struct {
	Chunk models.Chunk
	Score float64
}

// RetrievalEngine combines vector similarity, reference-graph expansion,
// synonym expansion and prior-turn context into a ranked, deduplicated
// result set. Collaborators are injected; the engine holds no ambient state
// beyond the swappable graph index.
type RetrievalEngine struct {
	normalizer *QueryNormalizer // optional
	embedder   llm.Embedder
	store      vectorstore.VectorStore
	logger     *zap.Logger

	graphMu  sync.RWMutex
	graphIdx *graph.Index
}

// NewRetrievalEngine creates a retrieval engine. The normalizer may be nil,
// in which case queries are searched as given.
func NewRetrievalEngine(normalizer *QueryNormalizer, embedder llm.Embedder, store vectorstore.VectorStore, graphIdx *graph.Index, logger *zap.Logger) *RetrievalEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RetrievalEngine{
		normalizer: normalizer,
		embedder:   embedder,
		store:      store,
		graphIdx:   graphIdx,
		logger:     logger,
	}
}

// SetGraph swaps the reference graph after a reindex. Reindexing is a
// maintenance window; in-flight searches finish against the old graph.
func (e *RetrievalEngine) SetGraph(idx *graph.Index) {
	e.graphMu.Lock()
	e.graphIdx = idx
	e.graphMu.Unlock()
}

// Graph returns the current reference graph index.
func (e *RetrievalEngine) Graph() *graph.Index {
	e.graphMu.RLock()
	defer e.graphMu.RUnlock()
	return e.graphIdx
}

// Search runs the full retrieval pipeline: normalize, embed, vector query,
// then the enabled expansions, then merge and rank. Results are
// deterministic for a fixed query, options and index: scores merge by max,
// ordering is score-descending with chunk-id tie-breaks.
func (e *RetrievalEngine) Search(ctx context.Context, query string, opts SearchOptions) ([]ScoredChunk, error) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.ReferenceDecay <= 0 {
		opts.ReferenceDecay = DefaultReferenceDecay
	}
	if opts.ContextDecay <= 0 {
		opts.ContextDecay = DefaultContextDecay
	}

	exists, err := e.store.CollectionExists(ctx)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrCollectionNotInitialized
	}

	searchQuery := query
	if e.normalizer != nil {
		normalized, err := e.normalizer.Normalize(ctx, query)
		if err != nil {
			// Never fatal: search proceeds with the raw query.
			e.logger.Warn("falling back to raw query", zap.Error(err))
		} else {
			searchQuery = normalized
		}
	}

	var filter *vectorstore.Filter
	if opts.LawLevel != "" {
		filter = &vectorstore.Filter{LawLevel: opts.LawLevel}
	}

	hits, err := e.vectorSearch(ctx, searchQuery, opts.TopK, filter)
	if err != nil {
		return nil, err
	}

	pool := make(map[string]ScoredChunk)
	for _, hit := range hits {
		mergeMax(pool, ScoredChunk{Chunk: hit.Chunk, Score: hit.Score})
	}

	if opts.ExpandReferences {
		if err := e.expandReferences(ctx, hits, opts.ReferenceDecay, pool); err != nil {
			return nil, err
		}
	}

	if opts.ExpandSynonyms {
		if substituted, changed := applySynonyms(searchQuery); changed {
			synHits, err := e.vectorSearch(ctx, substituted, opts.TopK, filter)
			if err != nil {
				return nil, err
			}
			// Synonym hits are independent evidence: merged at their own
			// similarity, no decay.
			for _, hit := range synHits {
				mergeMax(pool, ScoredChunk{Chunk: hit.Chunk, Score: hit.Score})
			}
		}
	}

	if len(opts.ContextChunks) > 0 {
		if err := e.expandContext(ctx, opts.ContextChunks, opts.ContextDecay, pool); err != nil {
			return nil, err
		}
	}

	return rank(pool, opts.TopK), nil
}

func (e *RetrievalEngine) vectorSearch(ctx context.Context, query string, topK int, filter *vectorstore.Filter) ([]vectorstore.SearchResult, error) {
	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		// No partial or degraded result: answering off stale data is worse
		// than failing the call.
		return nil, err
	}
	return e.store.Query(ctx, vectors[0], topK, filter)
}

// expandReferences pulls each hit's outgoing neighbors from the reference
// graph and adds them at the referring hit's score times the decay factor.
func (e *RetrievalEngine) expandReferences(ctx context.Context, hits []vectorstore.SearchResult, decay float64, pool map[string]ScoredChunk) error {
	idx := e.Graph()
	if idx == nil {
		return nil
	}

	scores := make(map[string]float64)
	for _, hit := range hits {
		for _, neighbor := range idx.Neighbors(hit.Chunk.ChunkID) {
			score := hit.Score * decay
			if score > scores[neighbor] {
				scores[neighbor] = score
			}
		}
	}
	if len(scores) == 0 {
		return nil
	}

	ids := make([]string, 0, len(scores))
	for id := range scores {
		ids = append(ids, id)
	}
	chunks, err := e.store.Get(ctx, ids)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		mergeMax(pool, ScoredChunk{Chunk: chunk, Score: scores[chunk.ChunkID]})
	}
	return nil
}

// expandContext adds chunks cited on recent turns, modeling topical
// continuity: each enters at its original citation score times the decay.
func (e *RetrievalEngine) expandContext(ctx context.Context, cited []models.CitedChunk, decay float64, pool map[string]ScoredChunk) error {
	scores := make(map[string]float64)
	ids := make([]string, 0, len(cited))
	for _, c := range cited {
		score := c.Score * decay
		if existing, ok := scores[c.ChunkID]; !ok || score > existing {
			if !ok {
				ids = append(ids, c.ChunkID)
			}
			scores[c.ChunkID] = score
		}
	}
	chunks, err := e.store.Get(ctx, ids)
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		mergeMax(pool, ScoredChunk{Chunk: chunk, Score: scores[chunk.ChunkID]})
	}
	return nil
}

func mergeMax(pool map[string]ScoredChunk, candidate ScoredChunk) {
	if existing, ok := pool[candidate.Chunk.ChunkID]; ok && existing.Score >= candidate.Score {
		return
	}
	pool[candidate.Chunk.ChunkID] = candidate
}

func rank(pool map[string]ScoredChunk, topK int) []ScoredChunk {
	ranked := make([]ScoredChunk, 0, len(pool))
	for _, sc := range pool {
		ranked = append(ranked, sc)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].Chunk.ChunkID < ranked[j].Chunk.ChunkID
	})
	if topK < len(ranked) {
		ranked = ranked[:topK]
	}
	return ranked
}
