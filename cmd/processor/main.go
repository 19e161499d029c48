package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/jobs"
	"github.com/mlfolio/backend/internal/llm"
	"github.com/mlfolio/backend/internal/processor"
	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/internal/vector/local"
	"github.com/mlfolio/backend/internal/vector/milvus"
	"github.com/mlfolio/backend/internal/webhook"
	"github.com/mlfolio/backend/pkg/config"
	appLogger "github.com/mlfolio/backend/pkg/logger"
)

func main() {
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

	appLogger.Info("Starting document processor service")

	store := openVectorStore(cfg)
	defer store.Close()

	jobStore, err := jobs.Open[processor.Job](cfg.Processor.JobStorePath, "process_jobs")
	if err != nil {
		appLogger.Fatal("Failed to open job store", zap.Error(err))
	}
	defer jobStore.Close()

	llmClient := llm.NewClient(llm.Options{
		APIKey:         cfg.LLM.APIKey,
		BaseURL:        cfg.LLM.BaseURL,
		Model:          cfg.LLM.Model,
		EmbeddingModel: cfg.LLM.EmbeddingModel,
		EmbeddingBatch: cfg.LLM.EmbeddingBatch,
	})

	notifier := webhook.NewClient(cfg.Webhook.BackendURL, cfg.Webhook.Secret)

	service := processor.NewService(
		cfg.Processor.ChunkSize,
		cfg.Processor.ChunkOverlap,
		processor.NewPDFFetcher(),
		llmClient,
		store,
		jobStore,
		notifier,
	)

	app := fiber.New(fiber.Config{
		BodyLimit: cfg.Processor.MaxFileSizeMB * 1024 * 1024,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	processor.NewHandler(service, store).RegisterRoutes(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Processor.Port)
	appLogger.Info("Processor service starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Processor shutting down, draining jobs...")
	service.Wait()
	app.Shutdown()
	appLogger.Info("Processor stopped")
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
