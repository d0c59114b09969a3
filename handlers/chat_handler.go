package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"lawchat-backend/llm"
	"lawchat-backend/models"
	"lawchat-backend/service"
	"lawchat-backend/vectorstore"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ChatHandler handles HTTP requests for the chat, search, stats and setup
// operations.
type ChatHandler struct {
	chatService   *service.ChatService
	engine        *service.RetrievalEngine
	ingestService *service.IngestService
	store         vectorstore.VectorStore
	logger        *zap.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chatService *service.ChatService, engine *service.RetrievalEngine, ingestService *service.IngestService, store vectorstore.VectorStore, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{
		chatService:   chatService,
		engine:        engine,
		ingestService: ingestService,
		store:         store,
		logger:        logger,
	}
}

// ChatRequest represents the request body for a chat turn.
type ChatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message" binding:"required"`
}

// Chat handles POST /api/chat.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	result, err := h.chatService.Chat(c.Request.Context(), req.SessionID, req.Message)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"session_id":   result.SessionID,
			"answer":       result.Answer,
			"cited_chunks": toChunkList(result.CitedChunks),
		},
	})
}

// Search handles GET /api/search.
func (h *ChatHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "query parameter q is required")
		return
	}
	topK := service.DefaultTopK
	if raw := c.Query("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(c, http.StatusBadRequest, "INVALID_REQUEST", "top_k must be a positive integer")
			return
		}
		topK = n
	}

	results, err := h.engine.Search(c.Request.Context(), query, service.SearchOptions{
		TopK:             topK,
		ExpandReferences: true,
		ExpandSynonyms:   true,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"results": toChunkList(results)},
	})
}

// SetupRequest represents the request body for corpus ingestion.
type SetupRequest struct {
	Reset bool `json:"reset"`
}

// Setup handles POST /api/setup. Reindexing is a maintenance operation: the
// new reference graph is swapped in only after ingestion completes.
func (h *ChatHandler) Setup(c *gin.Context) {
	var req SetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "INVALID_REQUEST", err.Error())
		return
	}

	report, idx, err := h.ingestService.Run(c.Request.Context(), req.Reset)
	if err != nil {
		h.logger.Error("ingestion failed", zap.Error(err))
		body := gin.H{
			"success": false,
			"error":   gin.H{"code": "INGEST_FAILED", "message": err.Error()},
		}
		if report != nil {
			body["report"] = toReportJSON(report)
		}
		c.JSON(http.StatusInternalServerError, body)
		return
	}
	h.engine.SetGraph(idx)

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toReportJSON(report),
	})
}

// Stats handles GET /api/stats.
func (h *ChatHandler) Stats(c *gin.Context) {
	ctx := c.Request.Context()
	count, err := h.store.Count(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STATS_FAILED", err.Error())
		return
	}
	chunks, err := h.store.All(ctx)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "STATS_FAILED", err.Error())
		return
	}

	byLevel := make(map[string]int)
	byType := make(map[string]int)
	for _, chunk := range chunks {
		byLevel[string(chunk.LawLevel)]++
		byType[string(chunk.ChunkType)]++
	}

	data := gin.H{
		"chunks":        count,
		"by_law_level":  byLevel,
		"by_chunk_type": byType,
		"sessions":      h.chatService.SessionCount(),
	}
	if idx := h.engine.Graph(); idx != nil {
		data["reference_edges"] = idx.EdgeCount()
		data["dangling_references"] = len(idx.Dangling())
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func (h *ChatHandler) respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrCollectionNotInitialized):
		respondError(c, http.StatusConflict, "COLLECTION_NOT_INITIALIZED", err.Error())
	case errors.Is(err, llm.ErrEmbeddingUnavailable):
		respondError(c, http.StatusServiceUnavailable, "EMBEDDING_UNAVAILABLE", err.Error())
	case errors.Is(err, llm.ErrCompletionUnavailable):
		respondError(c, http.StatusServiceUnavailable, "COMPLETION_UNAVAILABLE", err.Error())
	default:
		h.logger.Error("request failed", zap.Error(err))
		respondError(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	}
}

func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   gin.H{"code": code, "message": message},
	})
}

func toChunkList(results []service.ScoredChunk) []gin.H {
	out := make([]gin.H, 0, len(results))
	for _, r := range results {
		out = append(out, toChunkJSON(r.Chunk, r.Score))
	}
	return out
}

func toChunkJSON(chunk models.Chunk, score float64) gin.H {
	return gin.H{
		"chunk_id":       chunk.ChunkID,
		"index":          chunk.IndexLabel,
		"subtitle":       chunk.Subtitle,
		"content":        chunk.Content,
		"law_name":       chunk.LawName,
		"law_level":      chunk.LawLevel,
		"hierarchy_path": chunk.HierarchyPath,
		"chunk_type":     chunk.ChunkType,
		"score":          score,
	}
}

func toReportJSON(report *service.IngestReport) gin.H {
	skippedArticles := make([]string, 0, len(report.SkippedArticles))
	for _, e := range report.SkippedArticles {
		skippedArticles = append(skippedArticles, e.Error())
	}
	ordinalIssues := make([]string, 0, len(report.OrdinalIssues))
	for _, e := range report.OrdinalIssues {
		ordinalIssues = append(ordinalIssues, e.Error())
	}
	return gin.H{
		"documents":           report.Documents,
		"articles":            report.Articles,
		"chunks":              report.Chunks,
		"article_chunks":      report.ArticleChunks,
		"paragraph_chunks":    report.ParagraphChunks,
		"skipped_documents":   report.SkippedDocuments,
		"skipped_articles":    skippedArticles,
		"ordinal_issues":      ordinalIssues,
		"dangling_references": report.DanglingReferences,
	}
}
