package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/chatbot"
	"github.com/mlfolio/backend/internal/evaluation"
	"github.com/mlfolio/backend/internal/llm"
	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/internal/vector/local"
	"github.com/mlfolio/backend/internal/vector/milvus"
	"github.com/mlfolio/backend/pkg/config"
	appLogger "github.com/mlfolio/backend/pkg/logger"
)

func main() {
	datasetPath := flag.String("dataset", "eval/dataset.json", "path to the golden dataset JSON")
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

	data, err := os.ReadFile(*datasetPath)
	if err != nil {
		appLogger.Fatal("Failed to read dataset", zap.String("path", *datasetPath), zap.Error(err))
	}

	dataset, err := evaluation.LoadDataset(data)
	if err != nil {
		appLogger.Fatal("Failed to parse dataset", zap.Error(err))
	}

	store := openVectorStore(cfg)
	defer store.Close()

	llmClient := llm.NewClient(llm.Options{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		EmbeddingBatch: cfg.LLM.EmbeddingBatch,
		Temperature:    cfg.LLM.Temperature,
		TopP:           cfg.LLM.TopP,
		MaxTokens:      cfg.LLM.MaxTokens,
	})

	engine := chatbot.NewEngine(llmClient, store, llmClient)
	evaluator := evaluation.NewEvaluator(engine, llmClient)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	report := evaluator.Run(ctx, dataset)
	fmt.Println(evaluation.FormatReport(report))
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
