package models

// QueryIntent is the structured intent record extracted from a raw user
// query by the normalizer. Field values come from the completion provider
// and are validated against this schema before use; anything that does not
// fit is a normalization failure, never a silent default.
type QueryIntent struct {
	IntentType string   `json:"intent_type"` // e.g. "정의조회", "절차문의", "요건문의"
	LawArea    string   `json:"law_area"`
	Entities   []string `json:"entities"`
}
