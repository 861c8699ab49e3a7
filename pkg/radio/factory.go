package radio

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibikilabs/hibiki/pkg/common"
	"github.com/hibikilabs/hibiki/pkg/database/models"
	"github.com/hibikilabs/hibiki/pkg/database/repository"
	"github.com/hibikilabs/hibiki/pkg/logging"
	"gorm.io/gorm"
)

// NewBroadcastEngineWithDependencies creates a complete broadcast engine with all dependencies
// This factory function implements proper dependency injection using interfaces only
func NewBroadcastEngineWithDependencies(db *gorm.DB) (BroadcastEngine, error) {
	// Step 1: Create configuration provider (no dependencies)
	config, err := createConfigProvider()
	if err != nil {
		return nil, fmt.Errorf("config creation failed: %w", err)
	}

	return NewBroadcastEngineWithConfig(db, config)
}

// NewBroadcastEngineWithConfig wires the engine onto an existing
// configuration provider so callers can share one provider across
// components
func NewBroadcastEngineWithConfig(db *gorm.DB, config ConfigProvider) (BroadcastEngine, error) {
	// Create components in dependency order to prevent circular dependencies

	// Step 2: Validate configuration and dependencies early
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	if err := config.ValidateDependencies(); err != nil {
		return nil, fmt.Errorf("dependency validation failed: %w", err)
	}

	// Step 3: Create history repository (depends on database only)
	history := createHistoryRepository(db)

	// Step 4: Create centralized logging factory and logger (depends on repository)
	loggerFactory := createLoggerFactory(history, config.GetLoggerConfig())
	logger := loggerFactory.CreateEngineLogger()

	// Log successful dependency validation
	logger.Info("Binary dependencies validated successfully", map[string]interface{}{
		"component": "factory",
	})

	// Step 5: Create individual components with interface injection only
	errorHandler := createErrorHandler(config, logger, history)
	metrics := createMetricsCollector()

	fetchers := createFetchers(config, loggerFactory)

	// Step 6: Wire the engine with all interfaces
	queue := common.NewTrackQueue()
	engine := createEngine(queue, fetchers, config, errorHandler, metrics, history, logger)

	logger.Info("Broadcast engine created successfully", map[string]interface{}{
		"component": "factory",
		"sources":   len(fetchers),
	})

	return engine, nil
}

// Separate factory functions for each component to prevent circular dependencies
// These functions create components with interface injection only

// createConfigProvider creates a ConfigProvider implementation
func createConfigProvider() (ConfigProvider, error) {
	return NewConfigManager()
}

// createHistoryRepository creates a HistoryRepository implementation
// A nil database disables persistence rather than failing startup
func createHistoryRepository(db *gorm.DB) repository.HistoryRepository {
	if db == nil {
		return repository.NewNopHistoryRepository()
	}
	return repository.NewHistoryRepository(db)
}

// createLoggerFactory creates a centralized logging factory, with database
// persistence of warnings and errors when the logger config asks for it
func createLoggerFactory(history repository.HistoryRepository, loggerConfig *LoggerConfig) logging.LoggerFactory {
	if loggerConfig != nil && loggerConfig.SaveToDB {
		logRepo := &LogRepositoryAdapter{History: history}
		return logging.NewDatabaseLoggerFactory(logRepo)
	}
	return logging.NewLoggerFactory()
}

// createErrorHandler creates an ErrorHandler implementation
func createErrorHandler(config ConfigProvider, logger logging.Logger, history repository.HistoryRepository) ErrorHandler {
	retryConfig := config.GetRetryConfig()
	return NewBasicErrorHandler(retryConfig, logger, history)
}

// createMetricsCollector creates a MetricsCollector implementation
func createMetricsCollector() MetricsCollector {
	return NewPrometheusMetrics()
}

// createFetchers creates one SourceFetcher per supported source
// The external subprocess fetcher is shared as the fallback for both
func createFetchers(config ConfigProvider, loggerFactory logging.LoggerFactory) []SourceFetcher {
	pipelineConfig := config.GetPipelineConfig()
	sourceConfig := config.GetSourceConfig()

	external := NewExternalProcessFetcher(pipelineConfig, sourceConfig, loggerFactory.CreateFetcherLogger("external"))

	return []SourceFetcher{
		NewYouTubeFetcher(pipelineConfig, sourceConfig, external, loggerFactory.CreateFetcherLogger(common.SourceYouTube)),
		NewSoundCloudFetcher(pipelineConfig, sourceConfig, external, loggerFactory.CreateFetcherLogger(common.SourceSoundCloud)),
	}
}

// createEngine creates the main BroadcastEngine with all dependencies
func createEngine(
	queue *common.TrackQueue,
	fetchers []SourceFetcher,
	config ConfigProvider,
	errorHandler ErrorHandler,
	metrics MetricsCollector,
	history repository.HistoryRepository,
	logger logging.Logger,
) BroadcastEngine {
	return NewEngine(queue, fetchers, config.GetPipelineConfig(), errorHandler, metrics, history, logger)
}

// LogRepositoryAdapter adapts HistoryRepository to the logging.LogRepository interface
type LogRepositoryAdapter struct {
	History repository.HistoryRepository
}

// SaveLog implements logging.LogRepository interface
func (l *LogRepositoryAdapter) SaveLog(entry logging.LogEntry) error {
	// Convert logging.LogEntry to models.StreamError
	streamError := &models.StreamError{
		ID:        uuid.New(), // Generate unique UUID for each log entry
		Component: entry.Component,
		Level:     entry.Level,
		Message:   entry.Message,
		Error:     entry.Error,
		Fields:    entry.Fields,
		TrackID:   entry.TrackID,
		Source:    entry.Source,
		Timestamp: time.Now(),
	}

	if streamError.Component == "" {
		streamError.Component = "radio"
	}

	// Ensure Fields map exists
	if streamError.Fields == nil {
		streamError.Fields = make(map[string]interface{})
	}

	return l.History.SaveError(streamError)
}

// Default configuration values
var (
	DefaultPipelineConfig = &PipelineConfig{
		FFmpegPath:        "ffmpeg",
		YtDlpPath:         "yt-dlp",
		Bitrate:           128,
		SampleRate:        44100,
		Channels:          2,
		FirstDataTimeout:  30 * time.Second,
		TrackEndDelay:     100 * time.Millisecond,
		FailureDelay:      1 * time.Second,
		SkipCooldown:      150 * time.Millisecond,
		InProcessTimeout:  5 * time.Second,
		SubprocessTimeout: 90 * time.Second,
		SinkBuffer:        256,
	}

	DefaultRetryConfig = &RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}

	DefaultLoggerConfig = &LoggerConfig{
		Level:    "info",
		Format:   "json",
		SaveToDB: true,
	}
)

// ShutdownBroadcastEngine gracefully shuts down a broadcast engine
// This function should be called during application shutdown to ensure proper cleanup
func ShutdownBroadcastEngine(ctx context.Context, engine BroadcastEngine) error {
	if engine == nil {
		return nil
	}

	return engine.Shutdown(ctx)
}

// ValidateSystemDependencies validates that all required system dependencies are available
// This function can be called during application startup to ensure the system is ready
func ValidateSystemDependencies() error {
	// Use default binary paths for validation
	return ValidateAllBinaryDependencies("ffmpeg", "yt-dlp")
}
