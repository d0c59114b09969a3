package models

import (
	"time"
)

// Role is the author of a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// CitedChunk records one chunk an assistant turn was grounded on, with the
// retrieval score it carried at citation time. The score feeds context
// expansion on later turns.
type CitedChunk struct {
	ChunkID string  `json:"chunk_id"`
	Score   float64 `json:"score"`
}

// ConversationTurn is a single entry in a session's history. Immutable once
// appended.
type ConversationTurn struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	CitedChunks []CitedChunk `json:"cited_chunks,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// CitedChunkIDs returns the chunk ids cited by this turn, in citation order.
func (t ConversationTurn) CitedChunkIDs() []string {
	ids := make([]string, 0, len(t.CitedChunks))
	for _, c := range t.CitedChunks {
		ids = append(ids, c.ChunkID)
	}
	return ids
}
