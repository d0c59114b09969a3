package parser

import (
	"testing"

	"lawchat-backend/models"

	"github.com/stretchr/testify/assert"
)

func TestExtractInternalReferences(t *testing.T) {
	e := NewReferenceExtractor()

	text := "수입신고는 법 제241조제1항에 따르고, 절차는 영 제246조에 따르며, 서식은 규칙 제8조의2를 따른다."
	internal, external := e.Extract(text)

	assert.Equal(t, []models.Reference{
		{LawLevel: models.LawLevelStatute, IndexLabel: "제241조제1항"},
		{LawLevel: models.LawLevelDecree, IndexLabel: "제246조"},
		{LawLevel: models.LawLevelRule, IndexLabel: "제8조의2"},
	}, internal)
	assert.Empty(t, external)
}

func TestExtractDoesNotMatchInsideStatuteNames(t *testing.T) {
	e := NewReferenceExtractor()

	// 관세법 ends in 법 but is part of a longer word, not a level prefix.
	internal, _ := e.Extract("관세법 제1조는 여기서 내부 참조가 아니다.")
	assert.Empty(t, internal)

	internal, _ = e.Extract("법 제1조에 따른다.")
	assert.Equal(t, []models.Reference{
		{LawLevel: models.LawLevelStatute, IndexLabel: "제1조"},
	}, internal)
}

func TestExtractExternalReferences(t *testing.T) {
	e := NewReferenceExtractor()

	internal, external := e.Extract("「대외무역법」 및 「외국환거래법」에 따른 수출입, 그리고 다시 「대외무역법」을 본다.")
	assert.Empty(t, internal)
	assert.Equal(t, []string{"대외무역법", "외국환거래법"}, external)
}

func TestExtractDeduplicatesKeepingFirstOccurrence(t *testing.T) {
	e := NewReferenceExtractor()

	text := "법 제10조제2항과 영 제3조, 그리고 다시 법 제10조제2항을 본다."
	internal, _ := e.Extract(text)

	assert.Equal(t, []models.Reference{
		{LawLevel: models.LawLevelStatute, IndexLabel: "제10조제2항"},
		{LawLevel: models.LawLevelDecree, IndexLabel: "제3조"},
	}, internal)
}
