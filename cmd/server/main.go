package main

import (
	"context"

	"lawchat-backend/config"
	"lawchat-backend/graph"
	"lawchat-backend/handlers"
	"lawchat-backend/llm"
	"lawchat-backend/parser"
	"lawchat-backend/repository"
	"lawchat-backend/service"
	"lawchat-backend/storage"
	"lawchat-backend/vectorstore"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	ctx := context.Background()

	db, err := initPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to initialize postgres", zap.Error(err))
	}
	defer db.Close()

	gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:          cfg.GeminiAPIKey,
		EmbeddingModel:  cfg.EmbeddingModel,
		CompletionModel: cfg.CompletionModel,
		Dimension:       cfg.EmbeddingDim,
	}, logger)
	if err != nil {
		logger.Fatal("failed to initialize gemini client", zap.Error(err))
	}
	defer gemini.Close()

	corpus, err := storage.NewCorpusStorageFromEnv()
	if err != nil {
		logger.Fatal("failed to initialize corpus storage", zap.Error(err))
	}

	store := vectorstore.NewPgVectorStore(db, cfg.EmbeddingDim, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to ensure vector schema", zap.Error(err))
	}

	convRepo := repository.NewConversationRepository(db)
	if err := convRepo.EnsureSchema(ctx); err != nil {
		logger.Fatal("failed to ensure conversation schema", zap.Error(err))
	}

	idx := loadGraph(ctx, store, logger)

	hierarchyParser := parser.NewHierarchyParser(logger)
	chunker := parser.NewDocumentChunker(parser.NewReferenceExtractor())
	normalizer := service.NewQueryNormalizer(gemini, logger)
	engine := service.NewRetrievalEngine(normalizer, gemini, store, idx, logger)
	chatService := service.NewChatService(engine, gemini,
		service.ChatWithTranscriptStore(convRepo),
		service.ChatWithMaxHistory(cfg.MaxHistory),
		service.ChatWithMaxContextDocs(cfg.MaxContextDocs),
		service.ChatWithLogger(logger),
	)
	ingestService := service.NewIngestService(corpus, hierarchyParser, chunker, gemini, store,
		service.IngestWithBatchSize(cfg.EmbedBatchSize),
		service.IngestWithConcurrency(cfg.EmbedConcurrency),
		service.IngestWithLogger(logger),
	)

	chatHandler := handlers.NewChatHandler(chatService, engine, ingestService, store, logger)

	r := gin.Default()
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	api := r.Group("/api")
	{
		api.POST("/chat", chatHandler.Chat)
		api.GET("/search", chatHandler.Search)
		api.POST("/setup", chatHandler.Setup)
		api.GET("/stats", chatHandler.Stats)
	}

	logger.Info("server starting", zap.String("port", cfg.Port))
	if err := r.Run(":" + cfg.Port); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func initPostgres(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}
	return pool, nil
}

// loadGraph builds the reference graph from the existing collection, if any.
// A fresh deployment starts with an empty graph until setup runs.
func loadGraph(ctx context.Context, store vectorstore.VectorStore, logger *zap.Logger) *graph.Index {
	exists, err := store.CollectionExists(ctx)
	if err != nil || !exists {
		if err != nil {
			logger.Warn("could not check collection", zap.Error(err))
		}
		return graph.Build(nil, logger)
	}
	chunks, err := store.All(ctx)
	if err != nil {
		logger.Warn("could not load chunks for graph", zap.Error(err))
		return graph.Build(nil, logger)
	}
	return graph.Build(chunks, logger)
}
