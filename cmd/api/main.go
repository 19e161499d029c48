package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mlfolio/backend/internal/api/handlers"
	"github.com/mlfolio/backend/internal/cache/redis"
	"github.com/mlfolio/backend/internal/chatbot"
	"github.com/mlfolio/backend/internal/llm"
	"github.com/mlfolio/backend/internal/metrics"
	"github.com/mlfolio/backend/internal/middleware/ratelimit"
	"github.com/mlfolio/backend/internal/middleware/security"
	"github.com/mlfolio/backend/internal/middleware/validation"
	"github.com/mlfolio/backend/internal/storage/sqlite"
	"github.com/mlfolio/backend/internal/vector"
	"github.com/mlfolio/backend/internal/vector/local"
	"github.com/mlfolio/backend/internal/vector/milvus"
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

	appLogger.Info("Starting portfolio API server")

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
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

	engineOpts := []chatbot.Option{
		chatbot.WithPaperSearch(sqliteClient),
		chatbot.WithHistory(sqliteClient),
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			appLogger.Warn("Redis unavailable, running without cache", zap.Error(err))
		} else {
			defer redisClient.Close()
			engineOpts = append(engineOpts, chatbot.WithCache(redisClient, 24*time.Hour))
		}
	}

	engine := chatbot.NewEngine(llmClient, store, llmClient, engineOpts...)

	metrics.Init()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Session-ID, X-Webhook-Secret",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.Headers(security.HeadersConfig{IsDevelopment: cfg.Logging.Level == "debug"}))

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: 60,
		Logger:               appLogger.GetLogger(),
	})
	defer limiter.Stop()

	chatbotHandler := handlers.NewChatbotHandler(engine, sqliteClient)
	papersHandler := handlers.NewPapersHandler(sqliteClient)
	webhookHandler := handlers.NewWebhookHandler(sqliteClient, cfg.Webhook.Secret)
	wsHandler := handlers.NewWebSocketHandler(engine)

	chat := app.Group("/api/chatbot", limiter.Middleware())
	chat.Post("/", validation.ChatRequest(), chatbotHandler.HandleQuery)
	chat.Get("/suggestions", chatbotHandler.HandleSuggestions)
	chat.Get("/health", chatbotHandler.HandleHealth)
	chat.Get("/history", chatbotHandler.HandleHistory)

	papers := app.Group("/api/papers")
	papers.Get("/", papersHandler.HandleList)
	papers.Get("/stats", papersHandler.HandleStats)

	webhooks := app.Group("/api/webhooks", validation.JSONBody(), webhookHandler.RequireSecret())
	webhooks.Post("/scraper-complete/", webhookHandler.HandleScraperComplete)
	webhooks.Post("/document-processed/", webhookHandler.HandleProcessorComplete)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	app.Get("/ready", func(c *fiber.Ctx) error {
		health := engine.Health(c.Context())
		if !health.Ready {
			return c.Status(fiber.StatusServiceUnavailable).JSON(health)
		}
		return c.JSON(health)
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
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
