package parser

import (
	"encoding/json"
	"fmt"
	"sort"

	"lawchat-backend/models"

	"go.uber.org/zap"
)

// circledOrdinals maps circled-digit paragraph markers to their ordinal
// value. Decoding is a table lookup, not numeric parsing of the glyph; the
// table covers ordinals 1 through 20 (U+2460..U+2473).
var circledOrdinals = map[string]int{
	"①": 1, "②": 2, "③": 3, "④": 4, "⑤": 5,
	"⑥": 6, "⑦": 7, "⑧": 8, "⑨": 9, "⑩": 10,
	"⑪": 11, "⑫": 12, "⑬": 13, "⑭": 14, "⑮": 15,
	"⑯": 16, "⑰": 17, "⑱": 18, "⑲": 19, "⑳": 20,
}

// Structural node types in the source documents, outermost first:
// 편 (division), 장 (chapter), 절 (section), 관 (subsection), 조 (article).
const (
	nodeDivision   = "편"
	nodeChapter    = "장"
	nodeSection    = "절"
	nodeSubsection = "관"
	nodeArticle    = "조"
)

// RawLaw is the source document format: one law per JSON file with nested
// structural sections.
type RawLaw struct {
	LawName       string          `json:"law_name"`
	LawLevel      models.LawLevel `json:"law_level"`
	EffectiveDate string          `json:"effective_date,omitempty"`
	Sections      []RawSection    `json:"sections"`
}

// RawSection is one structural node. Articles (type 조) carry an index label
// and content; everything above an article carries only a title and children.
// Article content is either a plain string or an object keyed by circled
// paragraph markers.
type RawSection struct {
	Type     string          `json:"type"`
	Title    string          `json:"title,omitempty"`
	Index    string          `json:"index,omitempty"`
	Subtitle string          `json:"subtitle,omitempty"`
	Content  json.RawMessage `json:"content,omitempty"`
	Children []RawSection    `json:"children,omitempty"`
}

// Paragraph is one decoded paragraph of an article. Ordinal 0 marks an
// unnumbered body (articles written without paragraph markers).
type Paragraph struct {
	Ordinal int
	Marker  string
	Text    string
}

// ArticleNode is the parser output: one article annotated with its full
// ancestor path and law metadata.
type ArticleNode struct {
	LawName       string
	LawLevel      models.LawLevel
	EffectiveDate string
	Index         string // "제1조", "제5조의2"
	Subtitle      string
	HierarchyPath []string
	Paragraphs    []Paragraph
}

// ParseResult collects the flat article list plus every non-fatal condition
// hit along the way. Errors are reported in aggregate, never aborting the
// document.
type ParseResult struct {
	Articles      []ArticleNode
	Skipped       []*ParseError
	OrdinalIssues []*UnsupportedOrdinalError
}

// HierarchyParser turns raw legal-document JSON into flat article nodes.
type HierarchyParser struct {
	logger *zap.Logger
}

// NewHierarchyParser creates a hierarchy parser.
func NewHierarchyParser(logger *zap.Logger) *HierarchyParser {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HierarchyParser{logger: logger}
}

// Parse decodes one law document. A document-level failure (unreadable JSON,
// missing law metadata) is returned as an error; article-level failures are
// collected in the result.
func (p *HierarchyParser) Parse(data []byte) (*ParseResult, error) {
	var law RawLaw
	if err := json.Unmarshal(data, &law); err != nil {
		return nil, fmt.Errorf("failed to decode law document: %w", err)
	}
	if law.LawName == "" {
		return nil, fmt.Errorf("law document missing law_name")
	}
	if !law.LawLevel.Valid() {
		return nil, fmt.Errorf("law document %s has invalid law_level %q", law.LawName, law.LawLevel)
	}

	result := &ParseResult{}
	p.walk(&law, law.Sections, nil, result)
	return result, nil
}

func (p *HierarchyParser) walk(law *RawLaw, sections []RawSection, path []string, result *ParseResult) {
	for _, sec := range sections {
		switch sec.Type {
		case nodeArticle:
			p.parseArticle(law, sec, path, result)
		case nodeDivision, nodeChapter, nodeSection, nodeSubsection:
			childPath := append(append([]string{}, path...), sec.Title)
			p.walk(law, sec.Children, childPath, result)
		default:
			result.Skipped = append(result.Skipped, &ParseError{
				LawName: law.LawName,
				Index:   sec.Index,
				Reason:  fmt.Sprintf("unknown section type %q", sec.Type),
			})
			p.logger.Warn("skipping section with unknown type",
				zap.String("law", law.LawName), zap.String("type", sec.Type))
		}
	}
}

func (p *HierarchyParser) parseArticle(law *RawLaw, sec RawSection, path []string, result *ParseResult) {
	if sec.Index == "" {
		result.Skipped = append(result.Skipped, &ParseError{
			LawName: law.LawName,
			Index:   sec.Title,
			Reason:  "article missing index label",
		})
		p.logger.Warn("skipping article without index label", zap.String("law", law.LawName))
		return
	}

	paragraphs, issues, err := p.decodeParagraphs(law.LawName, sec.Index, sec.Content)
	if err != nil {
		result.Skipped = append(result.Skipped, &ParseError{
			LawName: law.LawName,
			Index:   sec.Index,
			Reason:  err.Error(),
		})
		p.logger.Warn("skipping malformed article",
			zap.String("law", law.LawName), zap.String("index", sec.Index), zap.Error(err))
		return
	}
	result.OrdinalIssues = append(result.OrdinalIssues, issues...)

	articleTitle := sec.Index
	if sec.Subtitle != "" {
		articleTitle += sec.Subtitle
	}
	hierarchyPath := append(append([]string{}, path...), articleTitle)

	result.Articles = append(result.Articles, ArticleNode{
		LawName:       law.LawName,
		LawLevel:      law.LawLevel,
		EffectiveDate: law.EffectiveDate,
		Index:         sec.Index,
		Subtitle:      sec.Subtitle,
		HierarchyPath: hierarchyPath,
		Paragraphs:    paragraphs,
	})
}

// decodeParagraphs handles the two article content forms. A string body is a
// single unnumbered paragraph. An object body is keyed by circled markers;
// markers outside the ordinal table are reported and their text appended to
// the previous paragraph rather than dropped.
func (p *HierarchyParser) decodeParagraphs(lawName, index string, content json.RawMessage) ([]Paragraph, []*UnsupportedOrdinalError, error) {
	if len(content) == 0 {
		return nil, nil, fmt.Errorf("article has no content")
	}

	var body string
	if err := json.Unmarshal(content, &body); err == nil {
		if body == "" {
			return nil, nil, fmt.Errorf("article has empty content")
		}
		return []Paragraph{{Ordinal: 0, Text: body}}, nil, nil
	}

	var keyed map[string]string
	if err := json.Unmarshal(content, &keyed); err != nil {
		return nil, nil, fmt.Errorf("article content is neither string nor paragraph map")
	}
	if len(keyed) == 0 {
		return nil, nil, fmt.Errorf("article has empty paragraph map")
	}

	var paragraphs []Paragraph
	var unknown []string
	for marker, text := range keyed {
		if ord, ok := circledOrdinals[marker]; ok {
			paragraphs = append(paragraphs, Paragraph{Ordinal: ord, Marker: marker, Text: text})
		} else {
			unknown = append(unknown, marker)
		}
	}
	sort.Slice(paragraphs, func(i, j int) bool { return paragraphs[i].Ordinal < paragraphs[j].Ordinal })
	sort.Strings(unknown)

	var issues []*UnsupportedOrdinalError
	for _, marker := range unknown {
		issues = append(issues, &UnsupportedOrdinalError{LawName: lawName, Index: index, Marker: marker})
		p.logger.Warn("paragraph marker outside ordinal table",
			zap.String("law", lawName), zap.String("index", index), zap.String("marker", marker))
		fragment := marker + " " + keyed[marker]
		if len(paragraphs) == 0 {
			paragraphs = append(paragraphs, Paragraph{Ordinal: 0, Text: fragment})
			continue
		}
		last := &paragraphs[len(paragraphs)-1]
		last.Text = last.Text + "\n" + fragment
	}
	return paragraphs, issues, nil
}
