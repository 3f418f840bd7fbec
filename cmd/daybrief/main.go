package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/joho/godotenv"

	httpapi "daybrief/internal/api/http"
	"daybrief/internal/assistant"
	"daybrief/internal/calendar"
	"daybrief/internal/config"
	"daybrief/internal/news"
	"daybrief/internal/prefs"
	"daybrief/internal/report"
	"daybrief/internal/tasks"
	"daybrief/internal/weather"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("INFO: No .env file found or error loading it: %v", err)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Shared HTTP client for outbound provider calls.
	httpClient := &http.Client{
		Timeout: cfg.HTTPTimeout,
	}

	// Preference storage: SQLite when PREFS_DB is set, per-user JSON files
	// under DATA_DIR otherwise.
	var prefStore prefs.Store
	if cfg.PrefsDB != "" {
		s, err := prefs.NewSQLiteStore(cfg.PrefsDB)
		if err != nil {
			log.Fatalf("failed to open preference database: %v", err)
		}
		defer s.Close()
		prefStore = s
	} else {
		s, err := prefs.NewFileStore(cfg.DataDir)
		if err != nil {
			log.Fatalf("failed to prepare preference directory: %v", err)
		}
		prefStore = s
	}

	taskStore, err := tasks.NewStore(cfg.TasksDB)
	if err != nil {
		log.Fatalf("failed to open task database: %v", err)
	}
	defer taskStore.Close()

	// Outbound providers.
	weatherClient := weather.NewClient(httpClient)
	calendarClient := calendar.NewClient(httpClient)
	newsClient := news.NewClient(httpClient)
	ai := assistant.New(cfg.OpenAIAPIKey, cfg.TTSModel, cfg.TTSVoice)

	composer := report.NewComposer(prefStore, weatherClient, calendarClient, newsClient, ai, cfg.DefaultTimezone)

	// Basic app configuration
	app := fiber.New(fiber.Config{
		AppName:               "daybrief",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          10 * time.Second,
		ErrorHandler:          httpapi.ErrorHandler,
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	// Basic health endpoint
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "daybrief",
		})
	})

	// API routes.
	httpapi.RegisterRoutes(app, httpapi.Deps{
		Prefs:    prefStore,
		Composer: composer,
		Speaker:  ai,
		Study:    ai,
		News:     newsClient,
		Tasks:    taskStore,
	})

	// Start server with graceful shutdown
	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
}
