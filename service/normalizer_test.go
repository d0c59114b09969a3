package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRewritesQuery(t *testing.T) {
	completer := &fakeCompleter{
		response: `{"normalized_query": "통관 지연 사유 및 절차", "intent_type": "절차문의", "law_area": "관세", "entities": ["통관", "지연"]}`,
	}
	n := NewQueryNormalizer(completer, nil)

	normalized, err := n.Normalize(context.Background(), "통관이 왜 이렇게 오래 걸려요?")
	require.NoError(t, err)
	assert.Equal(t, "통관 지연 사유 및 절차", normalized)
	assert.Equal(t, 1, completer.calls)
}

func TestNormalizeToleratesCodeFences(t *testing.T) {
	completer := &fakeCompleter{
		response: "```json\n{\"normalized_query\": \"수입신고 기한\", \"intent_type\": \"절차문의\", \"law_area\": \"관세\", \"entities\": []}\n```",
	}
	n := NewQueryNormalizer(completer, nil)

	normalized, err := n.Normalize(context.Background(), "신고는 언제까지 해야 하나요")
	require.NoError(t, err)
	assert.Equal(t, "수입신고 기한", normalized)
}

func TestNormalizeRejectsSchemaViolations(t *testing.T) {
	cases := map[string]string{
		"not json":         "질의를 다음과 같이 바꾸면 됩니다: 통관 지연",
		"unknown field":    `{"normalized_query": "통관 지연", "intent_type": "절차문의", "law_area": "관세", "entities": [], "confidence": 0.9}`,
		"missing query":    `{"intent_type": "절차문의", "law_area": "관세", "entities": []}`,
		"missing intent":   `{"normalized_query": "통관 지연", "law_area": "관세", "entities": []}`,
		"wrong value type": `{"normalized_query": 42, "intent_type": "절차문의"}`,
	}
	for name, response := range cases {
		t.Run(name, func(t *testing.T) {
			n := NewQueryNormalizer(&fakeCompleter{response: response}, nil)
			_, err := n.Normalize(context.Background(), "질문")
			assert.ErrorIs(t, err, ErrNormalizationFailed)
		})
	}
}

func TestNormalizeWrapsProviderFailure(t *testing.T) {
	n := NewQueryNormalizer(&fakeCompleter{err: errors.New("quota exceeded")}, nil)

	_, err := n.Normalize(context.Background(), "질문")
	assert.ErrorIs(t, err, ErrNormalizationFailed)
}

func TestExtractIntent(t *testing.T) {
	completer := &fakeCompleter{
		response: `{"normalized_query": "밀수출입죄 처벌", "intent_type": "벌칙문의", "law_area": "관세", "entities": ["밀수", "처벌"]}`,
	}
	n := NewQueryNormalizer(completer, nil)

	intent, err := n.ExtractIntent(context.Background(), "밀수하면 어떤 처벌을 받나요")
	require.NoError(t, err)
	assert.Equal(t, "벌칙문의", intent.IntentType)
	assert.Equal(t, "관세", intent.LawArea)
	assert.Equal(t, []string{"밀수", "처벌"}, intent.Entities)
}
