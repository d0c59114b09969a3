package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"lawchat-backend/graph"
	"lawchat-backend/models"
	"lawchat-backend/vectorstore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingTranscripts captures persisted turns per session.
type recordingTranscripts struct {
	saved map[string][]models.ConversationTurn
	err   error
}

func (r *recordingTranscripts) SaveTurns(ctx context.Context, sessionID string, turns []models.ConversationTurn) error {
	if r.err != nil {
		return r.err
	}
	if r.saved == nil {
		r.saved = make(map[string][]models.ConversationTurn)
	}
	r.saved[sessionID] = append(r.saved[sessionID], turns...)
	return nil
}

func newTestEngine(t *testing.T) *RetrievalEngine {
	t.Helper()
	chunks := []models.Chunk{statuteChunk("제1조"), statuteChunk("제2조")}
	store := vectorstore.NewMemoryStore(3)
	seedStore(t, store, chunks, [][]float64{{1, 0, 0}, {0, 1, 0}})
	embedder := &fakeEmbedder{dim: 3, vectors: map[string][]float64{}}
	return NewRetrievalEngine(nil, embedder, store, graph.Build(chunks, nil), nil)
}

func TestChatCreatesSessionAndAnswers(t *testing.T) {
	completer := &fakeCompleter{response: "수입신고는 세관장에게 합니다. [관세법 제1조]"}
	svc := NewChatService(newTestEngine(t), completer)

	result, err := svc.Chat(context.Background(), "", "수입신고는 어디에 하나요?")
	require.NoError(t, err)
	assert.NotEmpty(t, result.SessionID)
	assert.Equal(t, completer.response, result.Answer)
	assert.Equal(t, 1, svc.SessionCount())

	history := svc.History(result.SessionID)
	require.Len(t, history, 2)
	assert.Equal(t, models.RoleUser, history[0].Role)
	assert.Equal(t, models.RoleAssistant, history[1].Role)
	assert.NotEmpty(t, history[1].CitedChunks)
}

func TestChatReusesSessionByID(t *testing.T) {
	svc := NewChatService(newTestEngine(t), &fakeCompleter{response: "답변"})

	first, err := svc.Chat(context.Background(), "sess-1", "첫 질문")
	require.NoError(t, err)
	second, err := svc.Chat(context.Background(), "sess-1", "둘째 질문")
	require.NoError(t, err)

	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, 1, svc.SessionCount())
	assert.Len(t, svc.History("sess-1"), 4)
}

func TestChatEvictsOldestTurnsPastHistoryBound(t *testing.T) {
	svc := NewChatService(newTestEngine(t), &fakeCompleter{response: "답변"},
		ChatWithMaxHistory(4))

	for i := 0; i < 3; i++ {
		_, err := svc.Chat(context.Background(), "sess-1", fmt.Sprintf("질문 %d", i))
		require.NoError(t, err)
	}

	history := svc.History("sess-1")
	require.Len(t, history, 4)
	// The first turn pair was evicted; the oldest surviving turn is 질문 1.
	assert.Equal(t, "질문 1", history[0].Content)
	assert.Equal(t, models.RoleUser, history[0].Role)
}

func TestChatFailedCompletionLeavesHistoryUntouched(t *testing.T) {
	svc := NewChatService(newTestEngine(t), &fakeCompleter{err: errors.New("provider down")})

	_, err := svc.Chat(context.Background(), "sess-1", "질문")
	require.Error(t, err)
	assert.Empty(t, svc.History("sess-1"))
}

func TestChatRejectsEmptyMessage(t *testing.T) {
	svc := NewChatService(newTestEngine(t), &fakeCompleter{response: "답변"})

	_, err := svc.Chat(context.Background(), "", "   ")
	assert.Error(t, err)
	assert.Zero(t, svc.SessionCount())
}

func TestChatPersistsTranscripts(t *testing.T) {
	transcripts := &recordingTranscripts{}
	svc := NewChatService(newTestEngine(t), &fakeCompleter{response: "답변"},
		ChatWithTranscriptStore(transcripts))

	result, err := svc.Chat(context.Background(), "", "질문")
	require.NoError(t, err)
	require.Len(t, transcripts.saved[result.SessionID], 2)
}

func TestChatTranscriptFailureDoesNotFailTurn(t *testing.T) {
	transcripts := &recordingTranscripts{err: errors.New("db down")}
	svc := NewChatService(newTestEngine(t), &fakeCompleter{response: "답변"},
		ChatWithTranscriptStore(transcripts))

	result, err := svc.Chat(context.Background(), "sess-1", "질문")
	require.NoError(t, err)
	assert.Equal(t, "답변", result.Answer)
	assert.Len(t, svc.History("sess-1"), 2)
}

func TestRecentCitedChunksWindowsAssistantTurns(t *testing.T) {
	sess := newSession("sess-1", DefaultMaxHistory, 2)
	appendAssistant := func(cited ...models.CitedChunk) {
		sess.appendTurns(
			models.ConversationTurn{Role: models.RoleUser, Content: "질문"},
			models.ConversationTurn{Role: models.RoleAssistant, Content: "답변", CitedChunks: cited},
		)
	}

	appendAssistant(models.CitedChunk{ChunkID: "관세법:제1조", Score: 0.9})
	appendAssistant(models.CitedChunk{ChunkID: "관세법:제2조", Score: 0.8})
	appendAssistant(
		models.CitedChunk{ChunkID: "관세법:제2조", Score: 0.6},
		models.CitedChunk{ChunkID: "관세법:제3조", Score: 0.7},
	)

	cited := sess.RecentCitedChunks()
	// Window of 2 assistant turns: 제1조 fell out; 제2조 keeps its best score.
	require.Len(t, cited, 2)
	byID := map[string]float64{}
	for _, c := range cited {
		byID[c.ChunkID] = c.Score
	}
	assert.NotContains(t, byID, "관세법:제1조")
	assert.Equal(t, 0.8, byID["관세법:제2조"])
	assert.Equal(t, 0.7, byID["관세법:제3조"])
}

func TestComposeMessagesIncludesContextAndHistory(t *testing.T) {
	svc := NewChatService(newTestEngine(t), &fakeCompleter{response: "답변"})
	sess := newSession("sess-1", DefaultMaxHistory, DefaultMaxContextDocs)
	sess.appendTurns(
		models.ConversationTurn{Role: models.RoleUser, Content: "이전 질문"},
		models.ConversationTurn{Role: models.RoleAssistant, Content: "이전 답변"},
	)

	results := []ScoredChunk{{Chunk: statuteChunk("제241조"), Score: 0.9}}
	messages := svc.composeMessages(sess, "새 질문", results)

	require.Len(t, messages, 5)
	assert.Equal(t, "system", messages[0].Role)
	assert.Contains(t, messages[1].Content, "[관세법 제241조]")
	assert.Equal(t, "이전 질문", messages[2].Content)
	assert.Equal(t, "assistant", messages[3].Role)
	assert.Equal(t, "새 질문", messages[4].Content)
}
