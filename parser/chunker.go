package parser

import (
	"fmt"
	"regexp"
	"strings"

	"lawchat-backend/models"
)

// paragraphSplitThreshold is the paragraph count at which an article is
// chunked per paragraph instead of as a whole.
const paragraphSplitThreshold = 3

var whitespaceRe = regexp.MustCompile(`[ \t\x{3000}]+`)

// DocumentChunker decides article-level vs paragraph-level granularity per
// article and emits immutable chunk records carrying hierarchy path and
// reference metadata. Chunking is a partition over each article's
// paragraphs: an article split at paragraph level is never also emitted as a
// whole-article chunk.
type DocumentChunker struct {
	refs *ReferenceExtractor
}

// NewDocumentChunker creates a document chunker.
func NewDocumentChunker(refs *ReferenceExtractor) *DocumentChunker {
	return &DocumentChunker{refs: refs}
}

// Chunk emits the chunk records for one article. Articles with fewer than
// three paragraphs become a single article-level chunk with references
// aggregated over all paragraphs; articles with three or more become one
// paragraph-level chunk each, references scoped to the paragraph's own text.
func (c *DocumentChunker) Chunk(article ArticleNode) []models.Chunk {
	if len(article.Paragraphs) < paragraphSplitThreshold {
		return []models.Chunk{c.articleChunk(article)}
	}

	chunks := make([]models.Chunk, 0, len(article.Paragraphs))
	for _, para := range article.Paragraphs {
		label := article.Index
		if para.Ordinal > 0 {
			label = fmt.Sprintf("%s제%d항", article.Index, para.Ordinal)
		}
		content := normalizeText(para.Text)
		internal, external := c.refs.Extract(content)
		chunks = append(chunks, models.Chunk{
			ChunkID:            models.ChunkID(article.LawName, label),
			IndexLabel:         label,
			Subtitle:           article.Subtitle,
			Content:            content,
			LawName:            article.LawName,
			LawLevel:           article.LawLevel,
			HierarchyPath:      article.HierarchyPath,
			ChunkType:          models.ChunkTypeParagraph,
			InternalReferences: internal,
			ExternalReferences: external,
			EffectiveDate:      article.EffectiveDate,
		})
	}
	return chunks
}

func (c *DocumentChunker) articleChunk(article ArticleNode) models.Chunk {
	parts := make([]string, 0, len(article.Paragraphs))
	for _, para := range article.Paragraphs {
		parts = append(parts, normalizeText(para.Text))
	}
	content := strings.Join(parts, "\n")
	internal, external := c.refs.Extract(content)
	return models.Chunk{
		ChunkID:            models.ChunkID(article.LawName, article.Index),
		IndexLabel:         article.Index,
		Subtitle:           article.Subtitle,
		Content:            content,
		LawName:            article.LawName,
		LawLevel:           article.LawLevel,
		HierarchyPath:      article.HierarchyPath,
		ChunkType:          models.ChunkTypeArticle,
		InternalReferences: internal,
		ExternalReferences: external,
		EffectiveDate:      article.EffectiveDate,
	}
}

// normalizeText collapses runs of spaces (including ideographic spaces) and
// trims each line, keeping line breaks intact.
func normalizeText(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(whitespaceRe.ReplaceAllString(line, " "))
		if line == "" {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
