// Package llm defines the embedding and completion provider boundary. The
// retrieval and chat services depend only on these interfaces so that
// deterministic stand-ins can replace the live provider in tests.
package llm

import (
	"context"
	"errors"
)

var (
	// ErrEmbeddingUnavailable is returned when the embedding provider keeps
	// failing after the retry budget is exhausted.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")
	// ErrCompletionUnavailable is returned when the completion provider keeps
	// failing after the retry budget is exhausted.
	ErrCompletionUnavailable = errors.New("completion provider unavailable")
)

// Message is one entry of a completion request.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Embedder converts batches of text into vectors. Every call within one
// deployment returns vectors of the same dimensionality.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
	Dimension() int
}

// Completer generates a text completion for an ordered message sequence.
type Completer interface {
	Complete(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error)
}
