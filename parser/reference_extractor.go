package parser

import (
	"regexp"

	"lawchat-backend/models"
)

// Internal citations name their target level with a short prefix: 법 for the
// statute, 영 for the enforcement decree, 규칙 for the enforcement rules.
// The leading group rejects matches inside a longer word (e.g. the 법 at the
// end of a quoted statute name like 관세법).
var internalRefRe = regexp.MustCompile(`(?:^|[^가-힣])(법|영|규칙)\s*(제\d+조(?:의\d+)?)(\s*제\d+항)?`)

var paragraphSuffixRe = regexp.MustCompile(`\s+`)

// External citations quote statute names in corner brackets: 「관세법」.
// They are captured verbatim and never resolved against the internal graph.
var externalRefRe = regexp.MustCompile(`「([^」]+)」`)

var refLevelByPrefix = map[string]models.LawLevel{
	"법":  models.LawLevelStatute,
	"영":  models.LawLevelDecree,
	"규칙": models.LawLevelRule,
}

// ReferenceExtractor scans chunk text for internal and external legal
// citations. Extraction is purely textual; no external calls.
type ReferenceExtractor struct{}

// NewReferenceExtractor creates a reference extractor.
func NewReferenceExtractor() *ReferenceExtractor {
	return &ReferenceExtractor{}
}

// Extract returns the internal references and external citations found in
// text. Both lists are deduplicated with first-occurrence order preserved.
func (e *ReferenceExtractor) Extract(text string) ([]models.Reference, []string) {
	var internal []models.Reference
	seen := make(map[models.Reference]struct{})
	for _, m := range internalRefRe.FindAllStringSubmatch(text, -1) {
		level := refLevelByPrefix[m[1]]
		label := m[2]
		if m[3] != "" {
			label += paragraphSuffixRe.ReplaceAllString(m[3], "")
		}
		ref := models.Reference{LawLevel: level, IndexLabel: label}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}
		internal = append(internal, ref)
	}

	var external []string
	seenExt := make(map[string]struct{})
	for _, m := range externalRefRe.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if _, ok := seenExt[name]; ok {
			continue
		}
		seenExt[name] = struct{}{}
		external = append(external, name)
	}
	return internal, external
}
