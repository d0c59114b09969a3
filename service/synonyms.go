package service

import "strings"

// legalSynonyms maps colloquial and trade-practice terms to the wording used
// in the statutes. This table is data to be tuned against the corpus, not
// logic; substitution produces an alternate query that is embedded and
// searched independently.
var legalSynonyms = map[string]string{
	"B/L":    "선하증권",
	"비엘":     "선하증권",
	"선하 증권":  "선하증권",
	"인보이스":   "송장",
	"패킹리스트":  "포장명세서",
	"HS코드":   "품목분류번호",
	"에이치에스코드": "품목분류번호",
	"FTA":    "자유무역협정",
	"세관신고":   "수입신고",
	"통관료":    "관세",
	"딜레이":    "지연",
}

// applySynonyms substitutes every known synonym in the query. The second
// return value reports whether anything changed; an unchanged query is not
// worth a second embedding call.
func applySynonyms(query string) (string, bool) {
	substituted := query
	for from, to := range legalSynonyms {
		substituted = strings.ReplaceAll(substituted, from, to)
	}
	return substituted, substituted != query
}
