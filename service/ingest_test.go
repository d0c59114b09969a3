package service

import (
	"context"
	"fmt"
	"sort"
	"testing"

	"lawchat-backend/llm"
	"lawchat-backend/parser"
	"lawchat-backend/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapCorpus serves documents from a map, names sorted by the List contract.
type mapCorpus struct {
	docs map[string]string
}

func (m *mapCorpus) List(ctx context.Context) ([]string, error) {
	names := make([]string, 0, len(m.docs))
	for name := range m.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *mapCorpus) Read(ctx context.Context, name string) ([]byte, error) {
	doc, ok := m.docs[name]
	if !ok {
		return nil, fmt.Errorf("no such document: %s", name)
	}
	return []byte(doc), nil
}

// countingEmbedder embeds everything to the same unit vector.
type countingEmbedder struct {
	dim     int
	batches int
	err     error
}

func (e *countingEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if e.err != nil {
		return nil, e.err
	}
	e.batches++
	out := make([][]float64, len(texts))
	for i := range texts {
		v := make([]float64, e.dim)
		v[0] = 1
		out[i] = v
	}
	return out, nil
}

func (e *countingEmbedder) Dimension() int { return e.dim }

const statuteDoc = `{
  "law_name": "관세법",
  "law_level": "법률",
  "sections": [
    {"type": "조", "index": "제1조", "subtitle": "(목적)", "content": "이 법은 관세의 부과를 규정한다. 세부 사항은 영 제2조를 따른다."},
    {"type": "조", "index": "제2조", "content": {
      "①": "첫째 항",
      "②": "둘째 항",
      "③": "셋째 항은 영 제2조를 따른다."
    }}
  ]
}`

const decreeDoc = `{
  "law_name": "관세법 시행령",
  "law_level": "시행령",
  "sections": [
    {"type": "조", "index": "제2조", "content": "법 제1조에 따른 세부 절차."}
  ]
}`

func newTestIngest(corpus *mapCorpus, embedder llm.Embedder, store vectorstore.VectorStore, opts ...IngestOption) *IngestService {
	hp := parser.NewHierarchyParser(nil)
	chunker := parser.NewDocumentChunker(parser.NewReferenceExtractor())
	return NewIngestService(corpus, hp, chunker, embedder, store, opts...)
}

func TestIngestRunEndToEnd(t *testing.T) {
	corpus := &mapCorpus{docs: map[string]string{
		"customs_act.json":    statuteDoc,
		"customs_decree.json": decreeDoc,
	}}
	store := vectorstore.NewMemoryStore(3)
	svc := newTestIngest(corpus, &countingEmbedder{dim: 3}, store)

	report, idx, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	require.NotNil(t, idx)

	assert.Equal(t, 2, report.Documents)
	assert.Equal(t, 3, report.Articles)
	// 제1조 and the decree article stay whole, 제2조 splits into 3 paragraphs.
	assert.Equal(t, 5, report.Chunks)
	assert.Equal(t, 2, report.ArticleChunks)
	assert.Equal(t, 3, report.ParagraphChunks)
	assert.Zero(t, report.DanglingReferences)

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, count)

	// Both the whole article and the split paragraph reference the decree.
	decreeID := "관세법 시행령:제2조"
	assert.Equal(t, []string{decreeID}, idx.Neighbors("관세법:제1조"))
	assert.Equal(t, []string{decreeID}, idx.Neighbors("관세법:제2조제3항"))
}

func TestIngestRunIsIdempotent(t *testing.T) {
	corpus := &mapCorpus{docs: map[string]string{"customs_act.json": statuteDoc}}
	store := vectorstore.NewMemoryStore(3)
	svc := newTestIngest(corpus, &countingEmbedder{dim: 3}, store)

	_, _, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	first, err := store.Count(context.Background())
	require.NoError(t, err)

	_, _, err = svc.Run(context.Background(), false)
	require.NoError(t, err)
	second, err := store.Count(context.Background())
	require.NoError(t, err)

	// Deterministic chunk ids make a rerun an upsert, not a duplication.
	assert.Equal(t, first, second)
}

func TestIngestSkipsBadDocumentsAndContinues(t *testing.T) {
	corpus := &mapCorpus{docs: map[string]string{
		"bad.json":  `{"law_level": "법률"}`,
		"good.json": decreeDoc,
	}}
	store := vectorstore.NewMemoryStore(3)
	svc := newTestIngest(corpus, &countingEmbedder{dim: 3}, store)

	report, _, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Documents)
	assert.Equal(t, []string{"bad.json"}, report.SkippedDocuments)
}

func TestIngestEmbeddingFailureReportsPartialCounts(t *testing.T) {
	corpus := &mapCorpus{docs: map[string]string{"customs_act.json": statuteDoc}}
	store := vectorstore.NewMemoryStore(3)
	svc := newTestIngest(corpus, &countingEmbedder{dim: 3, err: llm.ErrEmbeddingUnavailable}, store)

	report, idx, err := svc.Run(context.Background(), false)
	require.Error(t, err)
	assert.ErrorIs(t, err, llm.ErrEmbeddingUnavailable)
	assert.Nil(t, idx)
	// The report survives the failure so the operator sees how far it got.
	require.NotNil(t, report)
	assert.Equal(t, 5, report.Chunks)
}

func TestIngestEmptyCorpusFails(t *testing.T) {
	corpus := &mapCorpus{docs: map[string]string{}}
	store := vectorstore.NewMemoryStore(3)
	svc := newTestIngest(corpus, &countingEmbedder{dim: 3}, store)

	_, _, err := svc.Run(context.Background(), false)
	assert.Error(t, err)
}

func TestIngestBatchesEmbeddingCalls(t *testing.T) {
	corpus := &mapCorpus{docs: map[string]string{
		"customs_act.json":    statuteDoc,
		"customs_decree.json": decreeDoc,
	}}
	store := vectorstore.NewMemoryStore(3)
	embedder := &countingEmbedder{dim: 3}
	svc := newTestIngest(corpus, embedder, store,
		IngestWithBatchSize(2), IngestWithConcurrency(1))

	report, _, err := svc.Run(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Chunks)
	assert.Equal(t, 3, embedder.batches)
}
