package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/cache/redis"
	"github.com/mlfolio/backend/internal/ingestion"
	"github.com/mlfolio/backend/internal/llm"
	"github.com/mlfolio/backend/internal/storage/sqlite"
	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/internal/vector/local"
	"github.com/mlfolio/backend/internal/vector/milvus"
	"github.com/mlfolio/backend/pkg/config"
	appLogger "github.com/mlfolio/backend/pkg/logger"
)

func main() {
	reset := flag.Bool("reset", false, "drop existing vectors before ingesting")
	skipPapers := flag.Bool("skip-papers", false, "skip ingesting scraped blog posts from SQLite")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	appLogger.Info("Starting ingestion run",
		zap.Strings("directories", cfg.Ingest.Directories),
		zap.Bool("reset", *reset),
	)

	store := openVectorStore(cfg)
	defer store.Close()

	if *reset {
		if err := store.Reset(ctx); err != nil {
			appLogger.Fatal("Failed to reset vector store", zap.Error(err))
		}
		appLogger.Info("Vector store reset")
	}

	var docs []ingestion.Document
	for _, dir := range cfg.Ingest.Directories {
		loaded, err := ingestion.LoadMarkdownDir(dir)
		if err != nil {
			appLogger.Fatal("Failed to load documents", zap.String("dir", dir), zap.Error(err))
		}
		docs = append(docs, loaded...)
	}

	if !*skipPapers {
		db, err := sqlite.NewClient(cfg.SQLite.Path)
		if err != nil {
			appLogger.Warn("SQLite unavailable, skipping blog posts", zap.Error(err))
		} else {
			defer db.Close()
			if err := db.InitSchema(); err != nil {
				appLogger.Fatal("Failed to initialize schema", zap.Error(err))
			}
			papers, err := ingestion.LoadPapers(db)
			if err != nil {
				appLogger.Warn("Failed to load blog posts", zap.Error(err))
			} else {
				docs = append(docs, papers...)
			}
		}
	}

	if len(docs) == 0 {
		appLogger.Warn("Nothing to ingest")
		return
	}

	llmClient := llm.NewClient(llm.Options{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		EmbeddingBatch: cfg.LLM.EmbeddingBatch,
	})

	proc := ingestion.NewProcessor(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap, llmClient, store)

	result, err := proc.Process(ctx, docs)
	if err != nil {
		appLogger.Fatal("Ingestion failed", zap.Error(err))
	}

	// Cached answers were computed against the old corpus.
	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, answer cache not invalidated", zap.Error(err))
		} else {
			defer redisClient.Close()
			if err := redisClient.InvalidateAnswers(ctx); err != nil {
				appLogger.Warn("Failed to invalidate answer cache", zap.Error(err))
			}
		}
	}

	appLogger.Info("Ingestion complete",
		zap.Int("documents", result.Documents),
		zap.Int("chunks", result.Chunks),
		zap.Int("stored_total", result.StoreCount),
	)
}

func openVectorStore(cfg *config.Config) vector.Store {
	switch cfg.Vector.Provider {
	case "milvus":
		store, err := milvus.New(context.Background(), cfg.Vector.Endpoint, cfg.Vector.CollectionName, cfg.Vector.VectorDim)
		if err != nil {
			appLogger.Fatal("Failed to connect to Milvus", zap.Error(err))
		}
		return store
	default:
		store, err := local.Open(cfg.Vector.Path)
		if err != nil {
			appLogger.Fatal("Failed to open local vector store", zap.Error(err))
		}
		return store
	}
}
