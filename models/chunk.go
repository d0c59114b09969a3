package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// LawLevel identifies which document of the three-law corpus a chunk belongs to.
type LawLevel string

const (
	LawLevelStatute LawLevel = "법률"
	LawLevelDecree  LawLevel = "시행령"
	LawLevelRule    LawLevel = "시행규칙"
)

// Valid reports whether the level is one of the three corpus levels.
func (l LawLevel) Valid() bool {
	switch l {
	case LawLevelStatute, LawLevelDecree, LawLevelRule:
		return true
	}
	return false
}

// ChunkType distinguishes whole-article chunks from per-paragraph chunks.
type ChunkType string

const (
	ChunkTypeArticle   ChunkType = "article_level"
	ChunkTypeParagraph ChunkType = "paragraph_level"
)

// Reference is one internal citation extracted from chunk text, e.g.
// "영 제12조제2항" becomes {시행령, 제12조제2항}.
type Reference struct {
	LawLevel   LawLevel `json:"law_level"`
	IndexLabel string   `json:"index_label"`
}

// Chunk is the atomic retrievable unit: one article, or one paragraph of an
// article that was split at paragraph level. Chunks are immutable after
// creation; re-chunking replaces a chunk, it never patches one.
type Chunk struct {
	ChunkID            string
	IndexLabel         string // human legal citation: "제1조" or "제5조제1항"
	Subtitle           string
	Content            string
	LawName            string
	LawLevel           LawLevel
	HierarchyPath      []string // ancestor titles, division down to article
	ChunkType          ChunkType
	InternalReferences []Reference
	ExternalReferences []string
	EffectiveDate      string // "2006-01-02" or empty
}

// ChunkID derives the stable chunk identifier for a law/label pair. Re-running
// the chunker on unchanged input must yield identical identifiers, so the id
// is a plain composite of the two stable fields.
func ChunkID(lawName, indexLabel string) string {
	return lawName + ":" + indexLabel
}

var articleLabelRe = regexp.MustCompile(`^제\d+조(?:의\d+)?`)

// ArticleLabel returns the article part of an index label, stripping any
// paragraph suffix: "제5조제1항" -> "제5조", "제5조의2제1항" -> "제5조의2".
func ArticleLabel(indexLabel string) string {
	if m := articleLabelRe.FindString(indexLabel); m != "" {
		return m
	}
	return indexLabel
}

// hierarchyPathSeparator joins ancestor titles in the persisted metadata form.
const hierarchyPathSeparator = " > "

// chunkJSON is the persisted wire form shared by ingestion output and
// retrieval input.
type chunkJSON struct {
	Index    string        `json:"index"`
	Subtitle *string       `json:"subtitle"`
	Content  string        `json:"content"`
	Metadata chunkMetadata `json:"metadata"`
}

type chunkMetadata struct {
	LawName       string              `json:"law_name"`
	LawLevel      LawLevel            `json:"law_level"`
	HierarchyPath string              `json:"hierarchy_path"`
	ChunkType     ChunkType           `json:"chunk_type"`
	InternalRefs  map[string][]string `json:"internal_law_references"`
	ExternalRefs  []string            `json:"external_law_references"`
	EffectiveDate *string             `json:"effective_date"`
}

// MarshalJSON emits the persisted chunk contract: index/subtitle/content plus
// a metadata object with internal references grouped by law level.
func (c Chunk) MarshalJSON() ([]byte, error) {
	refs := make(map[string][]string)
	for _, r := range c.InternalReferences {
		refs[string(r.LawLevel)] = append(refs[string(r.LawLevel)], r.IndexLabel)
	}
	external := c.ExternalReferences
	if external == nil {
		external = []string{}
	}
	var subtitle *string
	if c.Subtitle != "" {
		subtitle = &c.Subtitle
	}
	var effective *string
	if c.EffectiveDate != "" {
		effective = &c.EffectiveDate
	}
	return json.Marshal(chunkJSON{
		Index:    c.IndexLabel,
		Subtitle: subtitle,
		Content:  c.Content,
		Metadata: chunkMetadata{
			LawName:       c.LawName,
			LawLevel:      c.LawLevel,
			HierarchyPath: strings.Join(c.HierarchyPath, hierarchyPathSeparator),
			ChunkType:     c.ChunkType,
			InternalRefs:  refs,
			ExternalRefs:  external,
			EffectiveDate: effective,
		},
	})
}

// UnmarshalJSON parses the persisted chunk contract back into a Chunk,
// recomputing the derived chunk id.
func (c *Chunk) UnmarshalJSON(data []byte) error {
	var cj chunkJSON
	if err := json.Unmarshal(data, &cj); err != nil {
		return err
	}
	if !cj.Metadata.LawLevel.Valid() {
		return fmt.Errorf("invalid law_level %q", cj.Metadata.LawLevel)
	}
	c.IndexLabel = cj.Index
	c.Content = cj.Content
	c.Subtitle = ""
	if cj.Subtitle != nil {
		c.Subtitle = *cj.Subtitle
	}
	c.LawName = cj.Metadata.LawName
	c.LawLevel = cj.Metadata.LawLevel
	c.ChunkType = cj.Metadata.ChunkType
	c.HierarchyPath = nil
	if cj.Metadata.HierarchyPath != "" {
		c.HierarchyPath = strings.Split(cj.Metadata.HierarchyPath, hierarchyPathSeparator)
	}
	c.InternalReferences = nil
	for _, level := range []LawLevel{LawLevelStatute, LawLevelDecree, LawLevelRule} {
		for _, label := range cj.Metadata.InternalRefs[string(level)] {
			c.InternalReferences = append(c.InternalReferences, Reference{LawLevel: level, IndexLabel: label})
		}
	}
	c.ExternalReferences = cj.Metadata.ExternalRefs
	c.EffectiveDate = ""
	if cj.Metadata.EffectiveDate != nil {
		c.EffectiveDate = *cj.Metadata.EffectiveDate
	}
	c.ChunkID = ChunkID(c.LawName, c.IndexLabel)
	return nil
}
