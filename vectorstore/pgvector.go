package vectorstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lawchat-backend/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PgVectorStore stores chunks and their embeddings in Postgres with the
// pgvector extension.
type PgVectorStore struct {
	db        *pgxpool.Pool
	dimension int
	logger    *zap.Logger
}

// NewPgVectorStore creates a pgvector-backed store. Call EnsureSchema (or
// Reset) before the first upsert.
func NewPgVectorStore(db *pgxpool.Pool, dimension int, logger *zap.Logger) *PgVectorStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PgVectorStore{db: db, dimension: dimension, logger: logger}
}

// EnsureSchema creates the pgvector extension, the law_chunks table and its
// similarity index if they do not exist.
func (s *PgVectorStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create pgvector extension: %w", err)
	}
	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS law_chunks (
			chunk_id       TEXT PRIMARY KEY,
			index_label    TEXT NOT NULL,
			subtitle       TEXT,
			content        TEXT NOT NULL,
			law_name       TEXT NOT NULL,
			law_level      TEXT NOT NULL,
			hierarchy_path TEXT NOT NULL,
			chunk_type     TEXT NOT NULL,
			internal_refs  JSONB NOT NULL DEFAULT '[]',
			external_refs  JSONB NOT NULL DEFAULT '[]',
			effective_date TEXT,
			embedding      vector(%d) NOT NULL
		)`, s.dimension)
	if _, err := s.db.Exec(ctx, createTable); err != nil {
		return fmt.Errorf("failed to create law_chunks table: %w", err)
	}
	createIndex := `
		CREATE INDEX IF NOT EXISTS law_chunks_embedding_idx
		ON law_chunks USING hnsw (embedding vector_cosine_ops)`
	if _, err := s.db.Exec(ctx, createIndex); err != nil {
		return fmt.Errorf("failed to create embedding index: %w", err)
	}
	return nil
}

// Upsert writes chunks and their vectors, replacing existing rows by
// chunk_id. Re-running ingestion on unchanged input is a no-op rewrite.
func (s *PgVectorStore) Upsert(ctx context.Context, chunks []models.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	batch := &pgx.Batch{}
	query := `
		INSERT INTO law_chunks (
			chunk_id, index_label, subtitle, content, law_name, law_level,
			hierarchy_path, chunk_type, internal_refs, external_refs,
			effective_date, embedding
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12::vector)
		ON CONFLICT (chunk_id) DO UPDATE SET
			index_label = EXCLUDED.index_label,
			subtitle = EXCLUDED.subtitle,
			content = EXCLUDED.content,
			law_name = EXCLUDED.law_name,
			law_level = EXCLUDED.law_level,
			hierarchy_path = EXCLUDED.hierarchy_path,
			chunk_type = EXCLUDED.chunk_type,
			internal_refs = EXCLUDED.internal_refs,
			external_refs = EXCLUDED.external_refs,
			effective_date = EXCLUDED.effective_date,
			embedding = EXCLUDED.embedding`

	for i, chunk := range chunks {
		internalRefs, err := json.Marshal(chunk.InternalReferences)
		if err != nil {
			return fmt.Errorf("failed to marshal internal refs for %s: %w", chunk.ChunkID, err)
		}
		externalRefs, err := json.Marshal(chunk.ExternalReferences)
		if err != nil {
			return fmt.Errorf("failed to marshal external refs for %s: %w", chunk.ChunkID, err)
		}
		batch.Queue(query,
			chunk.ChunkID,
			chunk.IndexLabel,
			nullable(chunk.Subtitle),
			chunk.Content,
			chunk.LawName,
			string(chunk.LawLevel),
			strings.Join(chunk.HierarchyPath, " > "),
			string(chunk.ChunkType),
			internalRefs,
			externalRefs,
			nullable(chunk.EffectiveDate),
			formatVector(vectors[i]),
		)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()
	for range chunks {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to upsert chunk batch: %w", err)
		}
	}
	return nil
}

const chunkColumns = `chunk_id, index_label, subtitle, content, law_name, law_level,
	hierarchy_path, chunk_type, internal_refs, external_refs, effective_date`

// Query returns the topK nearest chunks by cosine similarity, scored in
// [0,1] as 1 - cosine distance.
func (s *PgVectorStore) Query(ctx context.Context, vector []float64, topK int, filter *Filter) ([]SearchResult, error) {
	if len(vector) != s.dimension {
		return nil, fmt.Errorf("query vector must be %d dimensions, got %d", s.dimension, len(vector))
	}
	if topK <= 0 {
		topK = 5
	}

	where := ""
	args := []interface{}{formatVector(vector), topK}
	if filter != nil && filter.LawLevel != "" {
		where = "WHERE law_level = $3"
		args = append(args, string(filter.LawLevel))
	}

	query := fmt.Sprintf(`
		SELECT %s, 1 - (embedding <=> $1::vector) AS score
		FROM law_chunks
		%s
		ORDER BY embedding <=> $1::vector
		LIMIT $2`, chunkColumns, where)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query law chunks: %w", err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var res SearchResult
		if err := scanChunk(rows, &res.Chunk, &res.Score); err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating law chunks: %w", err)
	}
	return results, nil
}

// Get fetches chunks by id. Missing ids are silently absent from the result.
func (s *PgVectorStore) Get(ctx context.Context, chunkIDs []string) ([]models.Chunk, error) {
	if len(chunkIDs) == 0 {
		return nil, nil
	}
	query := fmt.Sprintf(`SELECT %s, 0 AS score FROM law_chunks WHERE chunk_id = ANY($1)`, chunkColumns)
	rows, err := s.db.Query(ctx, query, chunkIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to get law chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var score float64
		if err := scanChunk(rows, &chunk, &score); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// All returns every chunk in the collection; used to build the reference
// graph at startup and after reindexing.
func (s *PgVectorStore) All(ctx context.Context) ([]models.Chunk, error) {
	query := fmt.Sprintf(`SELECT %s, 0 AS score FROM law_chunks ORDER BY chunk_id`, chunkColumns)
	rows, err := s.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list law chunks: %w", err)
	}
	defer rows.Close()

	var chunks []models.Chunk
	for rows.Next() {
		var chunk models.Chunk
		var score float64
		if err := scanChunk(rows, &chunk, &score); err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, rows.Err()
}

// CollectionExists reports whether the law_chunks table exists and holds at
// least one chunk.
func (s *PgVectorStore) CollectionExists(ctx context.Context) (bool, error) {
	var tableExists bool
	err := s.db.QueryRow(ctx,
		"SELECT EXISTS (SELECT FROM information_schema.tables WHERE table_name = 'law_chunks')").
		Scan(&tableExists)
	if err != nil {
		return false, fmt.Errorf("failed to check table existence: %w", err)
	}
	if !tableExists {
		return false, nil
	}
	count, err := s.Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Count returns the number of stored chunks.
func (s *PgVectorStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRow(ctx, "SELECT COUNT(*) FROM law_chunks").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count law chunks: %w", err)
	}
	return count, nil
}

// Reset drops and recreates the collection. Callers treat this as a
// maintenance window; concurrent reads must be excluded.
func (s *PgVectorStore) Reset(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "DROP TABLE IF EXISTS law_chunks"); err != nil {
		return fmt.Errorf("failed to drop law_chunks table: %w", err)
	}
	return s.EnsureSchema(ctx)
}

func scanChunk(rows pgx.Rows, chunk *models.Chunk, score *float64) error {
	var subtitle, effectiveDate *string
	var lawLevel, chunkType, hierarchyPath string
	var internalRefs, externalRefs []byte
	err := rows.Scan(
		&chunk.ChunkID,
		&chunk.IndexLabel,
		&subtitle,
		&chunk.Content,
		&chunk.LawName,
		&lawLevel,
		&hierarchyPath,
		&chunkType,
		&internalRefs,
		&externalRefs,
		&effectiveDate,
		score,
	)
	if err != nil {
		return fmt.Errorf("failed to scan law chunk: %w", err)
	}
	if subtitle != nil {
		chunk.Subtitle = *subtitle
	}
	if effectiveDate != nil {
		chunk.EffectiveDate = *effectiveDate
	}
	chunk.LawLevel = models.LawLevel(lawLevel)
	chunk.ChunkType = models.ChunkType(chunkType)
	if hierarchyPath != "" {
		chunk.HierarchyPath = strings.Split(hierarchyPath, " > ")
	}
	if err := json.Unmarshal(internalRefs, &chunk.InternalReferences); err != nil {
		return fmt.Errorf("failed to unmarshal internal refs for %s: %w", chunk.ChunkID, err)
	}
	if err := json.Unmarshal(externalRefs, &chunk.ExternalReferences); err != nil {
		return fmt.Errorf("failed to unmarshal external refs for %s: %w", chunk.ChunkID, err)
	}
	return nil
}

// formatVector formats an embedding vector as a pgvector literal.
func formatVector(embedding []float64) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = fmt.Sprintf("%.6f", v)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
