package main

import (
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
	"github.com/mlfolio/backend/internal/scraper"
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

	appLogger.Info("Starting scraper service")

	jobStore, err := jobs.Open[scraper.Job](cfg.Scraper.JobStorePath, "scrape_jobs")
	if err != nil {
		appLogger.Fatal("Failed to open job store", zap.Error(err))
	}
	defer jobStore.Close()

	notifier := webhook.NewClient(cfg.Webhook.BackendURL, cfg.Webhook.Secret)

	service := scraper.NewService(
		scraper.NewArxivScraper(cfg.Scraper.ArxivBaseURL),
		scraper.NewFeedScraper(scraper.DefaultFeedSources),
		jobStore,
		notifier,
	)

	app := fiber.New()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New())

	scraper.NewHandler(service).RegisterRoutes(app)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Scraper.Port)
	appLogger.Info("Scraper service starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Scraper shutting down, draining jobs...")
	service.Wait()
	app.Shutdown()
	appLogger.Info("Scraper stopped")
}
