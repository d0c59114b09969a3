package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"lawchat-backend/llm"
	"lawchat-backend/models"

	"go.uber.org/zap"
)

const normalizeInstruction = `당신은 한국 법령 검색 질의 전문가입니다.
사용자의 구어체 질문을 법령 검색에 최적화된 질의로 재작성하고, 질문의 의도를 분류하세요.

반드시 아래 JSON 형식으로만 응답하세요. 다른 텍스트를 포함하지 마세요.
{"normalized_query": "법령 용어로 재작성한 검색 질의", "intent_type": "정의조회|절차문의|요건문의|벌칙문의|기타", "law_area": "관련 법 분야", "entities": ["질문에 등장한 핵심 법률 용어"]}`

// normalizerResponse is the strict schema the provider response is validated
// against. Any violation is a normalization failure, never a silent default.
type normalizerResponse struct {
	NormalizedQuery string   `json:"normalized_query"`
	IntentType      string   `json:"intent_type"`
	LawArea         string   `json:"law_area"`
	Entities        []string `json:"entities"`
}

// QueryNormalizer rewrites raw colloquial queries into legal-search form and
// extracts a structured intent record via the completion provider.
type QueryNormalizer struct {
	completer llm.Completer
	logger    *zap.Logger
}

// NewQueryNormalizer creates a query normalizer.
func NewQueryNormalizer(completer llm.Completer, logger *zap.Logger) *QueryNormalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueryNormalizer{completer: completer, logger: logger}
}

// Normalize rewrites the raw query for legal search. On any provider or
// schema failure it returns ErrNormalizationFailed; callers fall back to the
// raw query, so this is never fatal to a chat turn.
func (n *QueryNormalizer) Normalize(ctx context.Context, rawQuery string) (string, error) {
	resp, err := n.call(ctx, rawQuery)
	if err != nil {
		return "", err
	}
	return resp.NormalizedQuery, nil
}

// ExtractIntent classifies the raw query into the structured intent record.
func (n *QueryNormalizer) ExtractIntent(ctx context.Context, rawQuery string) (*models.QueryIntent, error) {
	resp, err := n.call(ctx, rawQuery)
	if err != nil {
		return nil, err
	}
	return &models.QueryIntent{
		IntentType: resp.IntentType,
		LawArea:    resp.LawArea,
		Entities:   resp.Entities,
	}, nil
}

func (n *QueryNormalizer) call(ctx context.Context, rawQuery string) (*normalizerResponse, error) {
	messages := []llm.Message{
		{Role: "system", Content: normalizeInstruction},
		{Role: "user", Content: rawQuery},
	}
	raw, err := n.completer.Complete(ctx, messages, 0.0, 512)
	if err != nil {
		n.logger.Warn("normalization provider call failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNormalizationFailed, err)
	}

	resp, err := parseNormalizerResponse(raw)
	if err != nil {
		n.logger.Warn("normalization response rejected",
			zap.String("response", raw), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrNormalizationFailed, err)
	}
	return resp, nil
}

// parseNormalizerResponse validates the provider output against the intent
// schema. Code fences around the JSON are tolerated; everything else is not.
func parseNormalizerResponse(raw string) (*normalizerResponse, error) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	dec := json.NewDecoder(strings.NewReader(cleaned))
	dec.DisallowUnknownFields()
	var resp normalizerResponse
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("response is not valid intent JSON: %v", err)
	}
	if resp.NormalizedQuery == "" {
		return nil, fmt.Errorf("response missing normalized_query")
	}
	if resp.IntentType == "" {
		return nil, fmt.Errorf("response missing intent_type")
	}
	return &resp, nil
}
