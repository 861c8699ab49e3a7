package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/gorm"

	"github.com/hibikilabs/hibiki/internal/config"
	"github.com/hibikilabs/hibiki/internal/handlers"
	"github.com/hibikilabs/hibiki/internal/jobs"
	"github.com/hibikilabs/hibiki/internal/session"
	"github.com/hibikilabs/hibiki/internal/version"
	"github.com/hibikilabs/hibiki/pkg/database"
	"github.com/hibikilabs/hibiki/pkg/database/repository"
	"github.com/hibikilabs/hibiki/pkg/logging"
	"github.com/hibikilabs/hibiki/pkg/metadata"
	"github.com/hibikilabs/hibiki/pkg/radio"
	"github.com/hibikilabs/hibiki/pkg/thumbnail"
)

func main() {
	// Initialize application with proper error handling
	if err := initializeApplication(); err != nil {
		log.Fatalf("Application initialization failed: %v", err)
	}
}

// initializeApplication handles the complete application initialization process
func initializeApplication() error {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: Error loading .env file: %v", err)
		// Continue execution as .env file might not exist in production
	}

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Connect PostgreSQL when a DSN is configured. The service runs with
	// persistence disabled otherwise.
	var db *gorm.DB
	if cfg.DatabaseURL != "" {
		gormDB, err := database.NewGormDB(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}

		// Get the underlying *sql.DB for Close() method
		sqlDB, err := gormDB.DB()
		if err != nil {
			return fmt.Errorf("failed to get underlying database: %w", err)
		}
		defer sqlDB.Close()

		db = gormDB
		log.Println("Connected to database")
	} else {
		log.Println("DATABASE_URL not set, running without persistence")
	}

	historyRepo := createHistoryRepository(db)

	// Initialize centralized logging system
	initializeCentralizedLogging(historyRepo, db != nil)

	// Validate system dependencies for the broadcast pipeline
	if err := radio.ValidateSystemDependencies(); err != nil {
		log.Printf("Warning: audio dependencies validation failed: %v", err)
		log.Printf("Playback may be limited. Please ensure ffmpeg and yt-dlp are installed.")
	}

	// Engine configuration, shared with the metadata resolver
	radioConfig, err := radio.NewConfigManager()
	if err != nil {
		return fmt.Errorf("failed to load engine config: %w", err)
	}

	// Initialize the broadcast engine
	engine, err := radio.NewBroadcastEngineWithConfig(db, radioConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize broadcast engine: %w", err)
	}

	loggerFactory := logging.GetGlobalLoggerFactory()

	resolver := metadata.NewResolver(radioConfig.GetSourceConfig(), loggerFactory.CreateLogger("metadata"))
	thumbs := thumbnail.NewProxy(engine, loggerFactory.CreateLogger("thumbnail"))
	sessionManager := session.NewManager(cfg.SessionSecret, cfg.SecureCookies, loggerFactory.CreateLogger("session"))
	policy := session.NewPolicy(cfg.AllowedIDs, cfg.AdminIDs)

	server := handlers.NewServer(handlers.Options{
		Engine:   engine,
		Resolver: resolver,
		Thumbs:   thumbs,
		Sessions: sessionManager,
		Policy:   policy,
		History:  historyRepo,
		Config:   cfg,
		Logger:   loggerFactory.CreateRequestLogger("api"),
	})

	// Start maintenance jobs
	scheduler := jobs.NewScheduler(engine, historyRepo, cfg.HistoryRetentionDays, loggerFactory.CreateLogger("jobs"))
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start job scheduler: %w", err)
	}

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Printf("hibiki %s listening on :%s", version.Get().Version, cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	// Wait here until CTRL-C or other term signal is received
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

	select {
	case err := <-serverErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-sc:
	}

	log.Println("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// The engine goes first: closing the sinks ends the open /stream
	// responses, which lets the HTTP server drain instead of hanging on
	// indefinite connections.
	if err := radio.ShutdownBroadcastEngine(shutdownCtx, engine); err != nil {
		log.Printf("Broadcast engine shutdown error: %v", err)
	}

	scheduler.Stop()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}

	log.Println("Application shutdown complete")
	return nil
}

// createHistoryRepository returns the journal repository, or the nop
// implementation when persistence is disabled
func createHistoryRepository(db *gorm.DB) repository.HistoryRepository {
	if db == nil {
		return repository.NewNopHistoryRepository()
	}
	return repository.NewHistoryRepository(db)
}

// initializeCentralizedLogging sets up the centralized logging system
func initializeCentralizedLogging(history repository.HistoryRepository, persist bool) {
	var loggerFactory logging.LoggerFactory
	if persist {
		// Tee WARN/ERROR entries into the stream-error journal
		logRepo := &radio.LogRepositoryAdapter{History: history}
		loggerFactory = logging.NewDatabaseLoggerFactory(logRepo)
	} else {
		loggerFactory = logging.NewLoggerFactory()
	}

	// Set as global logger factory
	logging.SetGlobalLoggerFactory(loggerFactory)

	systemLogger := loggerFactory.CreateLogger("system")
	systemLogger.Info("Centralized logging system initialized successfully", map[string]interface{}{
		"database_connected": persist,
	})
}
