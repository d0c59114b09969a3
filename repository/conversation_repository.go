// Package repository handles relational persistence for conversation
// transcripts. The in-memory session contract stands on its own; this layer
// archives completed turns for later inspection.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"lawchat-backend/models"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ConversationRepository handles database operations for conversation turns.
type ConversationRepository struct {
	db *pgxpool.Pool
}

// NewConversationRepository creates a new conversation repository.
func NewConversationRepository(db *pgxpool.Pool) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// EnsureSchema creates the conversation_turns table if it does not exist.
func (r *ConversationRepository) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS conversation_turns (
			id           UUID PRIMARY KEY,
			session_id   TEXT NOT NULL,
			role         TEXT NOT NULL,
			content      TEXT NOT NULL,
			cited_chunks JSONB NOT NULL DEFAULT '[]',
			created_at   TIMESTAMPTZ NOT NULL
		)`
	if _, err := r.db.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create conversation_turns table: %w", err)
	}
	index := `
		CREATE INDEX IF NOT EXISTS conversation_turns_session_idx
		ON conversation_turns (session_id, created_at)`
	if _, err := r.db.Exec(ctx, index); err != nil {
		return fmt.Errorf("failed to create session index: %w", err)
	}
	return nil
}

// SaveTurns appends completed turns for a session.
func (r *ConversationRepository) SaveTurns(ctx context.Context, sessionID string, turns []models.ConversationTurn) error {
	batch := &pgx.Batch{}
	query := `
		INSERT INTO conversation_turns (id, session_id, role, content, cited_chunks, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`
	for _, turn := range turns {
		cited, err := json.Marshal(turn.CitedChunks)
		if err != nil {
			return fmt.Errorf("failed to marshal cited chunks: %w", err)
		}
		batch.Queue(query, uuid.New(), sessionID, string(turn.Role), turn.Content, cited, turn.Timestamp)
	}
	results := r.db.SendBatch(ctx, batch)
	defer results.Close()
	for range turns {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert conversation turn: %w", err)
		}
	}
	return nil
}

// GetBySession retrieves all persisted turns for a session, oldest first.
func (r *ConversationRepository) GetBySession(ctx context.Context, sessionID string) ([]models.ConversationTurn, error) {
	query := `
		SELECT role, content, cited_chunks, created_at
		FROM conversation_turns
		WHERE session_id = $1
		ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query conversation turns: %w", err)
	}
	defer rows.Close()

	var turns []models.ConversationTurn
	for rows.Next() {
		var turn models.ConversationTurn
		var role string
		var cited []byte
		if err := rows.Scan(&role, &turn.Content, &cited, &turn.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan conversation turn: %w", err)
		}
		turn.Role = models.Role(role)
		if err := json.Unmarshal(cited, &turn.CitedChunks); err != nil {
			return nil, fmt.Errorf("failed to unmarshal cited chunks: %w", err)
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
