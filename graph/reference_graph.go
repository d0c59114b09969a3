// Package graph builds the in-memory cross-reference index over chunk ids.
// The corpus reference graph is directed and may contain cycles (mutual
// article references), so edges are stored as id pairs in adjacency maps
// rather than object pointers.
package graph

import (
	"sort"

	"lawchat-backend/models"

	"go.uber.org/zap"
)

// DanglingReference is an internal reference that could not be resolved to
// any chunk. Retained for reporting, excluded from traversal.
type DanglingReference struct {
	SourceChunkID string
	Reference     models.Reference
}

// Index maps every chunk id to the chunk ids it references (outgoing) and
// the chunk ids that reference it (incoming). Built once per corpus load;
// lookups are O(1) afterwards.
type Index struct {
	out      map[string][]string
	in       map[string][]string
	dangling []DanglingReference
	edges    int
}

// Build resolves every chunk's internal references against the full chunk
// set. An exact index-label match wins; an article-level reference into an
// article that was split at paragraph level resolves to all paragraph chunks
// under that article; a paragraph-level reference into an unsplit article
// resolves to the whole-article chunk. Anything else stays dangling.
func Build(chunks []models.Chunk, logger *zap.Logger) *Index {
	if logger == nil {
		logger = zap.NewNop()
	}

	exact := make(map[string][]string)
	byArticle := make(map[string][]string)
	for _, c := range chunks {
		ek := refKey(c.LawLevel, c.IndexLabel)
		exact[ek] = append(exact[ek], c.ChunkID)
		ak := refKey(c.LawLevel, models.ArticleLabel(c.IndexLabel))
		byArticle[ak] = append(byArticle[ak], c.ChunkID)
	}

	outSets := make(map[string]map[string]struct{})
	inSets := make(map[string]map[string]struct{})
	idx := &Index{}

	for _, c := range chunks {
		for _, ref := range c.InternalReferences {
			targets := exact[refKey(ref.LawLevel, ref.IndexLabel)]
			if len(targets) == 0 {
				targets = byArticle[refKey(ref.LawLevel, models.ArticleLabel(ref.IndexLabel))]
			}
			if len(targets) == 0 {
				idx.dangling = append(idx.dangling, DanglingReference{SourceChunkID: c.ChunkID, Reference: ref})
				logger.Debug("dangling reference",
					zap.String("source", c.ChunkID),
					zap.String("target_level", string(ref.LawLevel)),
					zap.String("target_label", ref.IndexLabel))
				continue
			}
			for _, target := range targets {
				if target == c.ChunkID {
					continue
				}
				addEdge(outSets, c.ChunkID, target)
				addEdge(inSets, target, c.ChunkID)
			}
		}
	}

	idx.out = flatten(outSets)
	idx.in = flatten(inSets)
	for _, targets := range idx.out {
		idx.edges += len(targets)
	}
	logger.Info("reference graph built",
		zap.Int("chunks", len(chunks)),
		zap.Int("edges", idx.edges),
		zap.Int("dangling", len(idx.dangling)))
	return idx
}

// Neighbors returns the chunk ids this chunk references, sorted for
// deterministic traversal order.
func (idx *Index) Neighbors(chunkID string) []string {
	return idx.out[chunkID]
}

// Referrers returns the chunk ids that reference this chunk, sorted.
func (idx *Index) Referrers(chunkID string) []string {
	return idx.in[chunkID]
}

// Dangling returns the references that resolved to no chunk.
func (idx *Index) Dangling() []DanglingReference {
	return idx.dangling
}

// EdgeCount returns the number of resolved directed edges.
func (idx *Index) EdgeCount() int {
	return idx.edges
}

func refKey(level models.LawLevel, label string) string {
	return string(level) + "|" + label
}

func addEdge(sets map[string]map[string]struct{}, from, to string) {
	if sets[from] == nil {
		sets[from] = make(map[string]struct{})
	}
	sets[from][to] = struct{}{}
}

func flatten(sets map[string]map[string]struct{}) map[string][]string {
	out := make(map[string][]string, len(sets))
	for id, set := range sets {
		ids := make([]string, 0, len(set))
		for target := range set {
			ids = append(ids, target)
		}
		sort.Strings(ids)
		out[id] = ids
	}
	return out
}
