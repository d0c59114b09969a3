package parser

import (
	"testing"

	"lawchat-backend/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testArticle(paragraphs ...Paragraph) ArticleNode {
	return ArticleNode{
		LawName:       "관세법",
		LawLevel:      models.LawLevelStatute,
		EffectiveDate: "2024-01-01",
		Index:         "제5조",
		Subtitle:      "(신고)",
		HierarchyPath: []string{"제1편 총칙", "제5조(신고)"},
		Paragraphs:    paragraphs,
	}
}

func TestChunkShortArticleStaysWhole(t *testing.T) {
	c := NewDocumentChunker(NewReferenceExtractor())

	article := testArticle(
		Paragraph{Ordinal: 1, Marker: "①", Text: "수입신고는 법 제241조에 따른다."},
		Paragraph{Ordinal: 2, Marker: "②", Text: "세부 절차는 영 제246조에 따른다."},
	)
	chunks := c.Chunk(article)

	require.Len(t, chunks, 1)
	chunk := chunks[0]
	assert.Equal(t, models.ChunkTypeArticle, chunk.ChunkType)
	assert.Equal(t, "제5조", chunk.IndexLabel)
	assert.Equal(t, models.ChunkID("관세법", "제5조"), chunk.ChunkID)
	assert.Equal(t, "수입신고는 법 제241조에 따른다.\n세부 절차는 영 제246조에 따른다.", chunk.Content)
	// References aggregate over every paragraph of an unsplit article.
	assert.Equal(t, []models.Reference{
		{LawLevel: models.LawLevelStatute, IndexLabel: "제241조"},
		{LawLevel: models.LawLevelDecree, IndexLabel: "제246조"},
	}, chunk.InternalReferences)
}

func TestChunkSplitsAtThreeParagraphs(t *testing.T) {
	c := NewDocumentChunker(NewReferenceExtractor())

	article := testArticle(
		Paragraph{Ordinal: 1, Marker: "①", Text: "첫째 항은 법 제1조를 따른다."},
		Paragraph{Ordinal: 2, Marker: "②", Text: "둘째 항은 영 제2조를 따른다."},
		Paragraph{Ordinal: 3, Marker: "③", Text: "셋째 항."},
	)
	chunks := c.Chunk(article)

	require.Len(t, chunks, 3)
	labels := []string{chunks[0].IndexLabel, chunks[1].IndexLabel, chunks[2].IndexLabel}
	assert.Equal(t, []string{"제5조제1항", "제5조제2항", "제5조제3항"}, labels)

	for _, chunk := range chunks {
		assert.Equal(t, models.ChunkTypeParagraph, chunk.ChunkType)
		assert.Equal(t, article.HierarchyPath, chunk.HierarchyPath)
		assert.Equal(t, models.ChunkID("관세법", chunk.IndexLabel), chunk.ChunkID)
	}

	// References stay scoped to the owning paragraph.
	assert.Equal(t, []models.Reference{
		{LawLevel: models.LawLevelStatute, IndexLabel: "제1조"},
	}, chunks[0].InternalReferences)
	assert.Equal(t, []models.Reference{
		{LawLevel: models.LawLevelDecree, IndexLabel: "제2조"},
	}, chunks[1].InternalReferences)
	assert.Empty(t, chunks[2].InternalReferences)
}

func TestChunkIDsAreDeterministic(t *testing.T) {
	c := NewDocumentChunker(NewReferenceExtractor())
	article := testArticle(
		Paragraph{Ordinal: 1, Marker: "①", Text: "첫째"},
		Paragraph{Ordinal: 2, Marker: "②", Text: "둘째"},
		Paragraph{Ordinal: 3, Marker: "③", Text: "셋째"},
	)

	first := c.Chunk(article)
	second := c.Chunk(article)
	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].ChunkID, second[i].ChunkID)
	}
}

func TestChunkNormalizesWhitespace(t *testing.T) {
	c := NewDocumentChunker(NewReferenceExtractor())
	article := testArticle(
		Paragraph{Ordinal: 0, Text: "수입신고는　　세관장에게   한다.\n\n  둘째 줄  "},
	)

	chunks := c.Chunk(article)
	require.Len(t, chunks, 1)
	assert.Equal(t, "수입신고는 세관장에게 한다.\n둘째 줄", chunks[0].Content)
}
