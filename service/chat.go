package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"lawchat-backend/llm"
	"lawchat-backend/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DefaultMaxHistory bounds a session's retained turn count; oldest turns
	// are evicted first once exceeded.
	DefaultMaxHistory = 20
	// DefaultMaxContextDocs is both the per-turn retrieval top_k and the
	// number of recent assistant turns whose citations feed context
	// expansion.
	DefaultMaxContextDocs = 5

	chatTemperature = 0.2
	chatMaxTokens   = 2048
)

const chatSystemInstruction = `당신은 한국 관세·무역 법령 전문 상담사입니다.
아래 제공된 법령 조문만을 근거로 답변하세요.
- 조문에 없는 내용은 추측하지 말고 모른다고 답하세요.
- 답변에 근거 조문을 [법령명 조문번호] 형식으로 인용하세요.
- 간결하고 정확한 한국어로 답변하세요.`

// Session holds one conversation's bounded turn history. A session's turn
// list is mutated only by the turn-processing flow for that session; the
// mutex serializes turns so at most one is in flight per session id.
type Session struct {
	ID string

	mu             sync.Mutex
	turns          []models.ConversationTurn
	maxHistory     int
	maxContextDocs int
}

func newSession(id string, maxHistory, maxContextDocs int) *Session {
	return &Session{ID: id, maxHistory: maxHistory, maxContextDocs: maxContextDocs}
}

// Turns returns a copy of the session history, oldest first.
func (s *Session) Turns() []models.ConversationTurn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.ConversationTurn, len(s.turns))
	copy(out, s.turns)
	return out
}

// RecentCitedChunks returns the union of citations from the last
// maxContextDocs assistant turns, most recent first, keeping the highest
// score seen per chunk id. Only the recent window feeds forward context
// expansion, not all history.
func (s *Session) RecentCitedChunks() []models.CitedChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recentCitedLocked()
}

func (s *Session) recentCitedLocked() []models.CitedChunk {
	var cited []models.CitedChunk
	best := make(map[string]int) // chunk id -> index into cited
	assistantTurns := 0
	for i := len(s.turns) - 1; i >= 0 && assistantTurns < s.maxContextDocs; i-- {
		turn := s.turns[i]
		if turn.Role != models.RoleAssistant {
			continue
		}
		assistantTurns++
		for _, c := range turn.CitedChunks {
			if at, ok := best[c.ChunkID]; ok {
				if c.Score > cited[at].Score {
					cited[at].Score = c.Score
				}
				continue
			}
			best[c.ChunkID] = len(cited)
			cited = append(cited, c)
		}
	}
	return cited
}

// appendTurns appends turns atomically and evicts oldest-first past the
// history bound. This is the last step of a chat turn: a cancelled turn
// appends nothing.
func (s *Session) appendTurns(turns ...models.ConversationTurn) {
	s.turns = append(s.turns, turns...)
	if excess := len(s.turns) - s.maxHistory; excess > 0 {
		s.turns = append([]models.ConversationTurn{}, s.turns[excess:]...)
	}
}

// TranscriptStore persists completed turns. Persistence failures are logged
// and do not fail the turn; the in-memory session is the source of truth for
// the conversation contract.
type TranscriptStore interface {
	SaveTurns(ctx context.Context, sessionID string, turns []models.ConversationTurn) error
}

// ChatService drives the per-turn pipeline: retrieve, compose prompt,
// complete, append. Sessions are created on first message and held in
// memory; archival is external.
type ChatService struct {
	engine      *RetrievalEngine
	completer   llm.Completer
	transcripts TranscriptStore
	logger      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*Session

	maxHistory     int
	maxContextDocs int
}

// ChatOption is a functional option for ChatService.
type ChatOption func(*ChatService)

// ChatWithTranscriptStore enables transcript persistence.
func ChatWithTranscriptStore(store TranscriptStore) ChatOption {
	return func(s *ChatService) {
		s.transcripts = store
	}
}

// ChatWithMaxHistory sets the per-session history bound.
func ChatWithMaxHistory(n int) ChatOption {
	return func(s *ChatService) {
		s.maxHistory = n
	}
}

// ChatWithMaxContextDocs sets the per-turn retrieval size and the context
// expansion window.
func ChatWithMaxContextDocs(n int) ChatOption {
	return func(s *ChatService) {
		s.maxContextDocs = n
	}
}

// ChatWithLogger sets the logger.
func ChatWithLogger(logger *zap.Logger) ChatOption {
	return func(s *ChatService) {
		s.logger = logger
	}
}

// NewChatService creates a chat service.
func NewChatService(engine *RetrievalEngine, completer llm.Completer, opts ...ChatOption) *ChatService {
	s := &ChatService{
		engine:         engine,
		completer:      completer,
		logger:         zap.NewNop(),
		sessions:       make(map[string]*Session),
		maxHistory:     DefaultMaxHistory,
		maxContextDocs: DefaultMaxContextDocs,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ChatResult is one completed turn: the answer plus the chunks it cites.
type ChatResult struct {
	SessionID   string
	Answer      string
	CitedChunks []ScoredChunk
}

var errEmptyMessage = errors.New("message must not be empty")

// Chat processes one user turn. Retrieval uses the session's recent
// citations as context-expansion input; the user and assistant turns are
// appended together only after the completion succeeds, so a failed or
// cancelled turn leaves history untouched.
func (s *ChatService) Chat(ctx context.Context, sessionID, message string) (*ChatResult, error) {
	if strings.TrimSpace(message) == "" {
		return nil, errEmptyMessage
	}

	sess := s.session(sessionID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	results, err := s.engine.Search(ctx, message, SearchOptions{
		TopK:             s.maxContextDocs,
		ExpandReferences: true,
		ExpandSynonyms:   true,
		ContextChunks:    sess.recentCitedLocked(),
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	messages := s.composeMessages(sess, message, results)
	answer, err := s.completer.Complete(ctx, messages, chatTemperature, chatMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	now := time.Now()
	cited := make([]models.CitedChunk, 0, len(results))
	for _, r := range results {
		cited = append(cited, models.CitedChunk{ChunkID: r.Chunk.ChunkID, Score: r.Score})
	}
	userTurn := models.ConversationTurn{Role: models.RoleUser, Content: message, Timestamp: now}
	assistantTurn := models.ConversationTurn{
		Role:        models.RoleAssistant,
		Content:     answer,
		CitedChunks: cited,
		Timestamp:   now,
	}
	sess.appendTurns(userTurn, assistantTurn)

	if s.transcripts != nil {
		if err := s.transcripts.SaveTurns(ctx, sess.ID, []models.ConversationTurn{userTurn, assistantTurn}); err != nil {
			s.logger.Warn("failed to persist transcript",
				zap.String("session_id", sess.ID), zap.Error(err))
		}
	}

	return &ChatResult{SessionID: sess.ID, Answer: answer, CitedChunks: results}, nil
}

// Session returns the session for id, creating it on first use. An empty id
// starts a fresh session.
func (s *ChatService) session(id string) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		id = uuid.New().String()
	}
	sess, ok := s.sessions[id]
	if !ok {
		sess = newSession(id, s.maxHistory, s.maxContextDocs)
		s.sessions[id] = sess
	}
	return sess
}

// SessionCount returns the number of live sessions.
func (s *ChatService) SessionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// History returns the turn history for a session id, or nil if the session
// does not exist.
func (s *ChatService) History(sessionID string) []models.ConversationTurn {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	return sess.Turns()
}

// composeMessages builds the completion request: system instruction, the
// retrieved chunk contents with citations, prior turns, then the user
// message.
func (s *ChatService) composeMessages(sess *Session, message string, results []ScoredChunk) []llm.Message {
	var contextBlock strings.Builder
	contextBlock.WriteString("참고 법령 조문:\n\n")
	for _, r := range results {
		fmt.Fprintf(&contextBlock, "[%s %s]", r.Chunk.LawName, r.Chunk.IndexLabel)
		if r.Chunk.Subtitle != "" {
			contextBlock.WriteString(" " + r.Chunk.Subtitle)
		}
		contextBlock.WriteString("\n")
		contextBlock.WriteString(r.Chunk.Content)
		contextBlock.WriteString("\n\n")
	}

	messages := []llm.Message{
		{Role: "system", Content: chatSystemInstruction},
		{Role: "system", Content: contextBlock.String()},
	}
	for _, turn := range sess.turns {
		role := "user"
		if turn.Role == models.RoleAssistant {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Content})
	}
	return append(messages, llm.Message{Role: "user", Content: message})
}
