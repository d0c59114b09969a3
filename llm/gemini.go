package llm

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"go.uber.org/zap"
	"google.golang.org/api/option"
)

const (
	defaultEmbeddingModel  = "text-embedding-004"
	defaultCompletionModel = "gemini-1.5-pro"
	defaultDimension       = 768
	maxRetries             = 3
	initialBackoff         = time.Second
)

// GeminiConfig configures the Gemini-backed provider.
type GeminiConfig struct {
	APIKey          string
	EmbeddingModel  string
	CompletionModel string
	Dimension       int
}

// GeminiClient implements Embedder and Completer against the Gemini API.
// Transient failures are retried with bounded exponential backoff before the
// typed unavailable error is returned.
type GeminiClient struct {
	client          *genai.Client
	embeddingModel  string
	completionModel string
	dimension       int
	logger          *zap.Logger
}

// NewGeminiClient creates a Gemini provider client.
func NewGeminiClient(ctx context.Context, cfg GeminiConfig, logger *zap.Logger) (*GeminiClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if cfg.EmbeddingModel == "" {
		cfg.EmbeddingModel = defaultEmbeddingModel
	}
	if cfg.CompletionModel == "" {
		cfg.CompletionModel = defaultCompletionModel
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = defaultDimension
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiClient{
		client:          client,
		embeddingModel:  cfg.EmbeddingModel,
		completionModel: cfg.CompletionModel,
		dimension:       cfg.Dimension,
		logger:          logger,
	}, nil
}

// Close releases the underlying API client.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}

// Dimension returns the embedding dimensionality for this deployment.
func (g *GeminiClient) Dimension() int {
	return g.dimension
}

// Embed embeds a batch of texts in a single provider call. Vectors are
// normalized to unit length so the store's cosine scores land in [0,1].
func (g *GeminiClient) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	em := g.client.EmbeddingModel(g.embeddingModel)
	batch := em.NewBatch()
	for _, text := range texts {
		batch.AddContent(genai.Text(text))
	}

	var res *genai.BatchEmbedContentsResponse
	err := g.withRetry(ctx, "embed", func() error {
		var callErr error
		res, callErr = em.BatchEmbedContents(ctx, batch)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if len(res.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", ErrEmbeddingUnavailable, len(texts), len(res.Embeddings))
	}

	vectors := make([][]float64, len(res.Embeddings))
	for i, emb := range res.Embeddings {
		vectors[i] = normalize(emb.Values)
		if len(vectors[i]) != g.dimension {
			return nil, fmt.Errorf("%w: embedding dimension %d does not match configured %d", ErrEmbeddingUnavailable, len(vectors[i]), g.dimension)
		}
	}
	return vectors, nil
}

// Complete sends an ordered message sequence to the completion model. System
// messages become the system instruction; earlier user/assistant turns become
// chat history; the final user message is the sent prompt.
func (g *GeminiClient) Complete(ctx context.Context, messages []Message, temperature float32, maxTokens int) (string, error) {
	if len(messages) == 0 {
		return "", fmt.Errorf("%w: empty message sequence", ErrCompletionUnavailable)
	}

	model := g.client.GenerativeModel(g.completionModel)
	model.SetTemperature(temperature)
	if maxTokens > 0 {
		model.SetMaxOutputTokens(int32(maxTokens))
	}

	var system []string
	var turns []Message
	for _, m := range messages {
		if m.Role == "system" {
			system = append(system, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(system) > 0 {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(strings.Join(system, "\n\n"))}}
	}
	if len(turns) == 0 {
		return "", fmt.Errorf("%w: no user message to send", ErrCompletionUnavailable)
	}

	session := model.StartChat()
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == "assistant" {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{
			Role:  role,
			Parts: []genai.Part{genai.Text(m.Content)},
		})
	}

	var resp *genai.GenerateContentResponse
	err := g.withRetry(ctx, "complete", func() error {
		var callErr error
		resp, callErr = session.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionUnavailable, err)
	}

	text := responseText(resp)
	if text == "" {
		return "", fmt.Errorf("%w: empty completion", ErrCompletionUnavailable)
	}
	return text, nil
}

// withRetry runs call up to maxRetries times with exponential backoff,
// stopping early on context cancellation.
func (g *GeminiClient) withRetry(ctx context.Context, op string, call func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			g.logger.Warn("retrying gemini call",
				zap.String("op", op), zap.Int("attempt", attempt), zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}
		if err = call(); err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("after %d attempts: %w", maxRetries, err)
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func normalize(values []float32) []float64 {
	vec := make([]float64, len(values))
	var norm float64
	for i, v := range values {
		vec[i] = float64(v)
		norm += vec[i] * vec[i]
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec
}
