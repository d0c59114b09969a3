package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkID(t *testing.T) {
	assert.Equal(t, "관세법:제5조제1항", ChunkID("관세법", "제5조제1항"))
	// Same inputs always derive the same id.
	assert.Equal(t, ChunkID("관세법", "제1조"), ChunkID("관세법", "제1조"))
}

func TestArticleLabel(t *testing.T) {
	assert.Equal(t, "제5조", ArticleLabel("제5조"))
	assert.Equal(t, "제5조", ArticleLabel("제5조제1항"))
	assert.Equal(t, "제5조의2", ArticleLabel("제5조의2"))
	assert.Equal(t, "제5조의2", ArticleLabel("제5조의2제3항"))
	assert.Equal(t, "부칙", ArticleLabel("부칙"))
}

func TestChunkJSONContract(t *testing.T) {
	chunk := Chunk{
		ChunkID:       ChunkID("관세법", "제241조제1항"),
		IndexLabel:    "제241조제1항",
		Subtitle:      "(수출ㆍ수입 또는 반송의 신고)",
		Content:       "물품을 수출ㆍ수입 또는 반송하려면 세관장에게 신고하여야 한다.",
		LawName:       "관세법",
		LawLevel:      LawLevelStatute,
		HierarchyPath: []string{"제9장 통관", "제2절 수출ㆍ수입 및 반송", "제241조(수출ㆍ수입 또는 반송의 신고)"},
		ChunkType:     ChunkTypeParagraph,
		InternalReferences: []Reference{
			{LawLevel: LawLevelDecree, IndexLabel: "제246조"},
			{LawLevel: LawLevelStatute, IndexLabel: "제2조"},
		},
		ExternalReferences: []string{"대외무역법"},
		EffectiveDate:      "2024-01-01",
	}

	data, err := json.Marshal(chunk)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	assert.Equal(t, "제241조제1항", wire["index"])
	assert.Equal(t, chunk.Content, wire["content"])

	meta, ok := wire["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "관세법", meta["law_name"])
	assert.Equal(t, "법률", meta["law_level"])
	assert.Equal(t, "제9장 통관 > 제2절 수출ㆍ수입 및 반송 > 제241조(수출ㆍ수입 또는 반송의 신고)", meta["hierarchy_path"])
	assert.Equal(t, "paragraph_level", meta["chunk_type"])

	refs, ok := meta["internal_law_references"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"제246조"}, refs["시행령"])
	assert.Equal(t, []any{"제2조"}, refs["법률"])

	var back Chunk
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, chunk.ChunkID, back.ChunkID)
	assert.Equal(t, chunk.IndexLabel, back.IndexLabel)
	assert.Equal(t, chunk.Subtitle, back.Subtitle)
	assert.Equal(t, chunk.HierarchyPath, back.HierarchyPath)
	assert.Equal(t, chunk.ExternalReferences, back.ExternalReferences)
	assert.Equal(t, chunk.EffectiveDate, back.EffectiveDate)
	assert.ElementsMatch(t, chunk.InternalReferences, back.InternalReferences)
}

func TestChunkJSONOptionalFields(t *testing.T) {
	chunk := Chunk{
		ChunkID:    ChunkID("관세법", "제1조"),
		IndexLabel: "제1조",
		Content:    "내용",
		LawName:    "관세법",
		LawLevel:   LawLevelStatute,
		ChunkType:  ChunkTypeArticle,
	}

	data, err := json.Marshal(chunk)
	require.NoError(t, err)

	var wire map[string]any
	require.NoError(t, json.Unmarshal(data, &wire))
	// Absent subtitle and effective date serialize as explicit nulls.
	assert.Contains(t, wire, "subtitle")
	assert.Nil(t, wire["subtitle"])

	meta := wire["metadata"].(map[string]any)
	assert.Nil(t, meta["effective_date"])
	assert.Equal(t, []any{}, meta["external_law_references"])

	var back Chunk
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Empty(t, back.Subtitle)
	assert.Empty(t, back.EffectiveDate)
}

func TestChunkUnmarshalRejectsInvalidLawLevel(t *testing.T) {
	doc := `{"index": "제1조", "subtitle": null, "content": "내용", "metadata": {"law_name": "조례집", "law_level": "조례", "hierarchy_path": "", "chunk_type": "article_level", "internal_law_references": {}, "external_law_references": [], "effective_date": null}}`
	var chunk Chunk
	err := json.Unmarshal([]byte(doc), &chunk)
	assert.Error(t, err)
}
