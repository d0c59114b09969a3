package service

import (
	"context"
	"fmt"
	"sync"

	"lawchat-backend/graph"
	"lawchat-backend/llm"
	"lawchat-backend/models"
	"lawchat-backend/parser"
	"lawchat-backend/storage"
	"lawchat-backend/vectorstore"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultEmbedBatchSize bounds how many chunk texts go into one provider
	// call, respecting provider rate limits.
	DefaultEmbedBatchSize = 32
	// DefaultEmbedConcurrency bounds how many batches are in flight at once.
	DefaultEmbedConcurrency = 4
)

// IngestReport aggregates everything a batch run saw: counts plus every
// non-fatal condition. Parsing errors never abort the run; they are
// collected and reported at the end.
type IngestReport struct {
	Documents          int
	Articles           int
	Chunks             int
	ArticleChunks      int
	ParagraphChunks    int
	SkippedDocuments   []string
	SkippedArticles    []*parser.ParseError
	OrdinalIssues      []*parser.UnsupportedOrdinalError
	DanglingReferences int
}

// IngestService runs the batch pipeline: corpus storage, hierarchy parsing,
// reference extraction, chunking, batched embedding, vector upsert, then the
// reference graph rebuild.
type IngestService struct {
	source   storage.CorpusStorage
	parser   *parser.HierarchyParser
	chunker  *parser.DocumentChunker
	embedder llm.Embedder
	store    vectorstore.VectorStore
	logger   *zap.Logger

	batchSize   int
	concurrency int
}

// IngestOption is a functional option for IngestService.
type IngestOption func(*IngestService)

// IngestWithBatchSize sets the embedding batch size.
func IngestWithBatchSize(n int) IngestOption {
	return func(s *IngestService) {
		s.batchSize = n
	}
}

// IngestWithConcurrency sets how many embedding batches run in parallel.
func IngestWithConcurrency(n int) IngestOption {
	return func(s *IngestService) {
		s.concurrency = n
	}
}

// IngestWithLogger sets the logger.
func IngestWithLogger(logger *zap.Logger) IngestOption {
	return func(s *IngestService) {
		s.logger = logger
	}
}

// NewIngestService creates an ingest service.
func NewIngestService(source storage.CorpusStorage, hp *parser.HierarchyParser, chunker *parser.DocumentChunker, embedder llm.Embedder, store vectorstore.VectorStore, opts ...IngestOption) *IngestService {
	s := &IngestService{
		source:      source,
		parser:      hp,
		chunker:     chunker,
		embedder:    embedder,
		store:       store,
		logger:      zap.NewNop(),
		batchSize:   DefaultEmbedBatchSize,
		concurrency: DefaultEmbedConcurrency,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run ingests the whole corpus. With reset, the collection is dropped and
// recreated first. A batch that still fails after the embedder's retries
// fails the run; the report accompanies the error so partial ingestion is
// visible, not silently swallowed.
func (s *IngestService) Run(ctx context.Context, reset bool) (*IngestReport, *graph.Index, error) {
	if reset {
		if err := s.store.Reset(ctx); err != nil {
			return nil, nil, fmt.Errorf("failed to reset collection: %w", err)
		}
	} else if ensurer, ok := s.store.(interface{ EnsureSchema(context.Context) error }); ok {
		if err := ensurer.EnsureSchema(ctx); err != nil {
			return nil, nil, err
		}
	}

	report := &IngestReport{}
	chunks, err := s.collectChunks(ctx, report)
	if err != nil {
		return report, nil, err
	}
	if len(chunks) == 0 {
		return report, nil, fmt.Errorf("corpus produced no chunks")
	}

	if err := s.embedAndUpsert(ctx, chunks, report); err != nil {
		return report, nil, err
	}

	// The graph is rebuilt from the store so that a non-reset run over an
	// existing collection still resolves references across all chunks.
	all, err := s.store.All(ctx)
	if err != nil {
		return report, nil, fmt.Errorf("failed to load chunks for graph build: %w", err)
	}
	idx := graph.Build(all, s.logger)
	report.DanglingReferences = len(idx.Dangling())

	s.logger.Info("ingestion complete",
		zap.Int("documents", report.Documents),
		zap.Int("articles", report.Articles),
		zap.Int("chunks", report.Chunks),
		zap.Int("skipped_articles", len(report.SkippedArticles)),
		zap.Int("dangling_references", report.DanglingReferences))
	return report, idx, nil
}

func (s *IngestService) collectChunks(ctx context.Context, report *IngestReport) ([]models.Chunk, error) {
	names, err := s.source.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list corpus: %w", err)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("corpus is empty")
	}

	var chunks []models.Chunk
	for _, name := range names {
		data, err := s.source.Read(ctx, name)
		if err != nil {
			report.SkippedDocuments = append(report.SkippedDocuments, name)
			s.logger.Warn("skipping unreadable document", zap.String("name", name), zap.Error(err))
			continue
		}
		result, err := s.parser.Parse(data)
		if err != nil {
			report.SkippedDocuments = append(report.SkippedDocuments, name)
			s.logger.Warn("skipping malformed document", zap.String("name", name), zap.Error(err))
			continue
		}
		report.Documents++
		report.Articles += len(result.Articles)
		report.SkippedArticles = append(report.SkippedArticles, result.Skipped...)
		report.OrdinalIssues = append(report.OrdinalIssues, result.OrdinalIssues...)

		for _, article := range result.Articles {
			for _, chunk := range s.chunker.Chunk(article) {
				chunks = append(chunks, chunk)
				if chunk.ChunkType == models.ChunkTypeArticle {
					report.ArticleChunks++
				} else {
					report.ParagraphChunks++
				}
			}
		}
	}
	report.Chunks = len(chunks)
	return chunks, nil
}

// embedAndUpsert embeds chunk texts in bounded batches with bounded
// parallelism. Chunk-level work shares no mutable state, so batches are
// independent; the first failed batch cancels the rest.
func (s *IngestService) embedAndUpsert(ctx context.Context, chunks []models.Chunk, report *IngestReport) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	var mu sync.Mutex
	upserted := 0

	for start := 0; start < len(chunks); start += s.batchSize {
		end := start + s.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, chunk := range batch {
				texts[i] = chunk.Content
			}
			vectors, err := s.embedder.Embed(ctx, texts)
			if err != nil {
				return fmt.Errorf("embedding batch failed: %w", err)
			}
			if err := s.store.Upsert(ctx, batch, vectors); err != nil {
				return fmt.Errorf("upsert batch failed: %w", err)
			}
			mu.Lock()
			upserted += len(batch)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		mu.Lock()
		done := upserted
		mu.Unlock()
		return fmt.Errorf("ingestion incomplete: %d/%d chunks upserted: %w", done, len(chunks), err)
	}
	return nil
}
