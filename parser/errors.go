package parser

import "fmt"

// ParseError reports a malformed article node in a source document. The error
// is scoped to a single article: the article is skipped and logged, the rest
// of the document continues.
type ParseError struct {
	LawName string
	Index   string
	Reason  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error in %s %s: %s", e.LawName, e.Index, e.Reason)
}

// UnsupportedOrdinalError reports a paragraph marker outside the ordinal
// lookup table. Degraded, not fatal: the fragment is folded into the previous
// paragraph instead of becoming its own chunk.
type UnsupportedOrdinalError struct {
	LawName string
	Index   string
	Marker  string
}

func (e *UnsupportedOrdinalError) Error() string {
	return fmt.Sprintf("unsupported paragraph marker %q in %s %s", e.Marker, e.LawName, e.Index)
}
