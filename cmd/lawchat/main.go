// Command lawchat is the operational CLI for the legal chat backend:
// corpus ingestion, one-off search, interactive chat and corpus statistics.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"lawchat-backend/config"
	"lawchat-backend/graph"
	"lawchat-backend/llm"
	"lawchat-backend/parser"
	"lawchat-backend/repository"
	"lawchat-backend/service"
	"lawchat-backend/storage"
	"lawchat-backend/vectorstore"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	root := &cobra.Command{
		Use:           "lawchat",
		Short:         "Korean legal RAG chat backend CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(setupCmd(), searchCmd(), chatCmd(), statsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// app holds the wired collaborators shared by all commands.
type app struct {
	db     *pgxpool.Pool
	gemini *llm.GeminiClient
	store  *vectorstore.PgVectorStore
	engine *service.RetrievalEngine
	chat   *service.ChatService
	ingest *service.IngestService
	logger *zap.Logger
}

func newApp(ctx context.Context) (*app, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	db, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	gemini, err := llm.NewGeminiClient(ctx, llm.GeminiConfig{
		APIKey:          cfg.GeminiAPIKey,
		EmbeddingModel:  cfg.EmbeddingModel,
		CompletionModel: cfg.CompletionModel,
		Dimension:       cfg.EmbeddingDim,
	}, logger)
	if err != nil {
		db.Close()
		return nil, err
	}

	corpus, err := storage.NewCorpusStorageFromEnv()
	if err != nil {
		db.Close()
		return nil, err
	}

	store := vectorstore.NewPgVectorStore(db, cfg.EmbeddingDim, logger)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	convRepo := repository.NewConversationRepository(db)
	if err := convRepo.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	idx := loadGraph(ctx, store, logger)

	normalizer := service.NewQueryNormalizer(gemini, logger)
	engine := service.NewRetrievalEngine(normalizer, gemini, store, idx, logger)
	chatService := service.NewChatService(engine, gemini,
		service.ChatWithTranscriptStore(convRepo),
		service.ChatWithMaxHistory(cfg.MaxHistory),
		service.ChatWithMaxContextDocs(cfg.MaxContextDocs),
		service.ChatWithLogger(logger),
	)
	hierarchyParser := parser.NewHierarchyParser(logger)
	chunker := parser.NewDocumentChunker(parser.NewReferenceExtractor())
	ingestService := service.NewIngestService(corpus, hierarchyParser, chunker, gemini, store,
		service.IngestWithBatchSize(cfg.EmbedBatchSize),
		service.IngestWithConcurrency(cfg.EmbedConcurrency),
		service.IngestWithLogger(logger),
	)

	return &app{
		db:     db,
		gemini: gemini,
		store:  store,
		engine: engine,
		chat:   chatService,
		ingest: ingestService,
		logger: logger,
	}, nil
}

func (a *app) close() {
	a.gemini.Close()
	a.db.Close()
	a.logger.Sync()
}

func setupCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Ingest the corpus into the vector store",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			report, idx, err := a.ingest.Run(ctx, reset)
			if report != nil {
				fmt.Printf("documents: %d, articles: %d, chunks: %d (article-level %d, paragraph-level %d)\n",
					report.Documents, report.Articles, report.Chunks,
					report.ArticleChunks, report.ParagraphChunks)
				for _, doc := range report.SkippedDocuments {
					fmt.Printf("skipped document: %s\n", doc)
				}
				for _, e := range report.SkippedArticles {
					fmt.Printf("skipped article: %s\n", e.Error())
				}
				for _, e := range report.OrdinalIssues {
					fmt.Printf("ordinal issue: %s\n", e.Error())
				}
			}
			if err != nil {
				return err
			}
			fmt.Printf("reference edges: %d, dangling references: %d\n",
				idx.EdgeCount(), len(idx.Dangling()))
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop and recreate the collection first")
	return cmd
}

func searchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search the corpus and print ranked chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			results, err := a.engine.Search(ctx, args[0], service.SearchOptions{
				TopK:             topK,
				ExpandReferences: true,
				ExpandSynonyms:   true,
			})
			if err != nil {
				return err
			}
			for i, r := range results {
				fmt.Printf("%d. [%.3f] %s %s %s\n", i+1, r.Score, r.Chunk.LawName, r.Chunk.IndexLabel, r.Chunk.Subtitle)
				fmt.Printf("   %s\n", firstLine(r.Chunk.Content))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&topK, "top-k", service.DefaultTopK, "number of results")
	return cmd
}

func chatCmd() *cobra.Command {
	var sessionID string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Interactive chat against the corpus",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			fmt.Println("질문을 입력하세요 (종료: exit)")
			scanner := bufio.NewScanner(os.Stdin)
			for {
				fmt.Print("> ")
				if !scanner.Scan() {
					return scanner.Err()
				}
				message := strings.TrimSpace(scanner.Text())
				if message == "" {
					continue
				}
				if message == "exit" || message == "quit" {
					return nil
				}

				result, err := a.chat.Chat(ctx, sessionID, message)
				if err != nil {
					fmt.Fprintln(os.Stderr, "Error:", err)
					continue
				}
				sessionID = result.SessionID

				fmt.Println()
				fmt.Println(result.Answer)
				fmt.Println()
				for _, r := range result.CitedChunks {
					fmt.Printf("  근거: %s %s (%.3f)\n", r.Chunk.LawName, r.Chunk.IndexLabel, r.Score)
				}
				fmt.Println()
			}
		},
	}
	cmd.Flags().StringVar(&sessionID, "session", "", "resume an existing session id")
	return cmd
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print corpus and collection statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			count, err := a.store.Count(ctx)
			if err != nil {
				return err
			}
			chunks, err := a.store.All(ctx)
			if err != nil {
				return err
			}
			byLevel := make(map[string]int)
			byType := make(map[string]int)
			for _, chunk := range chunks {
				byLevel[string(chunk.LawLevel)]++
				byType[string(chunk.ChunkType)]++
			}

			fmt.Printf("chunks: %d\n", count)
			for level, n := range byLevel {
				fmt.Printf("  %s: %d\n", level, n)
			}
			for chunkType, n := range byType {
				fmt.Printf("  %s: %d\n", chunkType, n)
			}
			if idx := a.engine.Graph(); idx != nil {
				fmt.Printf("reference edges: %d\n", idx.EdgeCount())
				fmt.Printf("dangling references: %d\n", len(idx.Dangling()))
			}
			return nil
		},
	}
}

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

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len([]rune(s)) > 80 {
		s = string([]rune(s)[:80]) + "…"
	}
	return s
}
