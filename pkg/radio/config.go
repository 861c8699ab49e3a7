package radio

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// PipelineConfig contains encoder output format and playback timing
type PipelineConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path" toml:"ffmpeg_path" env:"RADIO_FFMPEG_PATH"`
	YtDlpPath  string `yaml:"ytdlp_path" toml:"ytdlp_path" env:"RADIO_YTDLP_PATH"`

	Bitrate    int `yaml:"bitrate" toml:"bitrate" env:"RADIO_BITRATE"`
	SampleRate int `yaml:"sample_rate" toml:"sample_rate" env:"RADIO_SAMPLE_RATE"`
	Channels   int `yaml:"channels" toml:"channels" env:"RADIO_CHANNELS"`

	// FirstDataTimeout destroys a pipeline that produced no audio at all
	FirstDataTimeout time.Duration `yaml:"first_data_timeout" toml:"first_data_timeout" env:"RADIO_FIRST_DATA_TIMEOUT"`

	// TrackEndDelay is the gap between a clean track end and the next track
	TrackEndDelay time.Duration `yaml:"track_end_delay" toml:"track_end_delay" env:"RADIO_TRACK_END_DELAY"`

	// FailureDelay is the gap before advancing past a failed track
	FailureDelay time.Duration `yaml:"failure_delay" toml:"failure_delay" env:"RADIO_FAILURE_DELAY"`

	// SkipCooldown absorbs rapid repeated skip requests
	SkipCooldown time.Duration `yaml:"skip_cooldown" toml:"skip_cooldown" env:"RADIO_SKIP_COOLDOWN"`

	// InProcessTimeout bounds the in-process fetcher startup
	InProcessTimeout time.Duration `yaml:"in_process_timeout" toml:"in_process_timeout" env:"RADIO_IN_PROCESS_TIMEOUT"`

	// SubprocessTimeout bounds the fetcher subprocess startup, generous
	// because HLS fragment assembly can be slow
	SubprocessTimeout time.Duration `yaml:"subprocess_timeout" toml:"subprocess_timeout" env:"RADIO_SUBPROCESS_TIMEOUT"`

	// SinkBuffer is the per-listener chunk buffer before eviction
	SinkBuffer int `yaml:"sink_buffer" toml:"sink_buffer" env:"RADIO_SINK_BUFFER"`
}

// RetryConfig contains retry logic configuration
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" toml:"max_retries" env:"RADIO_MAX_RETRIES"`
	BaseDelay  time.Duration `yaml:"base_delay" toml:"base_delay" env:"RADIO_BASE_DELAY"`
	MaxDelay   time.Duration `yaml:"max_delay" toml:"max_delay" env:"RADIO_MAX_DELAY"`
	Multiplier float64       `yaml:"multiplier" toml:"multiplier" env:"RADIO_RETRY_MULTIPLIER"`
}

// DefaultExternalFetcherFormat prefers direct webm/opus audio over HLS so the
// subprocess streams bytes immediately instead of assembling fragments.
const DefaultExternalFetcherFormat = "251/250/bestaudio[ext=webm]/bestaudio/best"

// SourceConfig contains per-provider credentials and fetcher policy
type SourceConfig struct {
	SoundCloudClientID string `yaml:"soundcloud_client_id" toml:"soundcloud_client_id" env:"RADIO_SOUNDCLOUD_CLIENT_ID"`

	YouTubeCookie     string `yaml:"youtube_cookie" toml:"youtube_cookie" env:"RADIO_YOUTUBE_COOKIE"`
	YouTubeCookieFile string `yaml:"youtube_cookie_file" toml:"youtube_cookie_file" env:"RADIO_YOUTUBE_COOKIE_FILE"`
	YouTubeUserAgent  string `yaml:"youtube_user_agent" toml:"youtube_user_agent" env:"RADIO_YOUTUBE_USER_AGENT"`

	// DisableExternalFetcher restricts YouTube to the in-process client
	DisableExternalFetcher bool `yaml:"disable_external_fetcher" toml:"disable_external_fetcher" env:"RADIO_DISABLE_EXTERNAL_FETCHER"`

	// ExternalFetcherFirst restricts YouTube to the fetcher subprocess
	ExternalFetcherFirst bool `yaml:"external_fetcher_first" toml:"external_fetcher_first" env:"RADIO_EXTERNAL_FETCHER_FIRST"`

	// ExternalFetcherFormat is the format selector passed to the fetcher subprocess
	ExternalFetcherFormat string `yaml:"external_fetcher_format" toml:"external_fetcher_format" env:"RADIO_EXTERNAL_FETCHER_FORMAT"`
}

// LoggerConfig contains logging configuration
type LoggerConfig struct {
	Level    string `yaml:"level" toml:"level" env:"RADIO_LOG_LEVEL"`
	Format   string `yaml:"format" toml:"format" env:"RADIO_LOG_FORMAT"`
	SaveToDB bool   `yaml:"save_to_db" toml:"save_to_db" env:"RADIO_LOG_SAVE_DB"`
}

// RadioConfig represents the complete configuration structure for YAML/TOML files
type RadioConfig struct {
	Pipeline PipelineConfig `yaml:"pipeline" toml:"pipeline"`
	Retry    RetryConfig    `yaml:"retry" toml:"retry"`
	Source   SourceConfig   `yaml:"source" toml:"source"`
	Logger   LoggerConfig   `yaml:"logger" toml:"logger"`
}

// ConfigManager implements the ConfigProvider interface
type ConfigManager struct {
	pipeline *PipelineConfig
	retry    *RetryConfig
	source   *SourceConfig
	logger   *LoggerConfig
}

// NewConfigManager creates a new ConfigManager with configuration loaded from multiple sources
func NewConfigManager() (*ConfigManager, error) {
	manager := &ConfigManager{}

	// Try to load configuration in order of preference:
	// 1. YAML file (config/radio.yaml)
	// 2. TOML file (config/radio.toml)
	// 3. Environment variables (.env file)
	// 4. Default values

	config := &RadioConfig{}

	if err := manager.loadYAMLConfig(config); err != nil {
		if err := manager.loadTOMLConfig(config); err != nil {
			if err := manager.loadEnvConfig(config); err != nil {
				manager.setDefaults(config)
			}
		}
	}

	manager.pipeline = &config.Pipeline
	manager.retry = &config.Retry
	manager.source = &config.Source
	manager.logger = &config.Logger

	if err := manager.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return manager, nil
}

// loadYAMLConfig attempts to load configuration from YAML file
func (cm *ConfigManager) loadYAMLConfig(config *RadioConfig) error {
	yamlPath := filepath.Join("config", "radio.yaml")
	if _, err := os.Stat(yamlPath); os.IsNotExist(err) {
		return fmt.Errorf("YAML config file not found: %s", yamlPath)
	}

	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return fmt.Errorf("failed to read YAML config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return nil
}

// loadTOMLConfig attempts to load configuration from TOML file
func (cm *ConfigManager) loadTOMLConfig(config *RadioConfig) error {
	tomlPath := filepath.Join("config", "radio.toml")
	if _, err := os.Stat(tomlPath); os.IsNotExist(err) {
		return fmt.Errorf("TOML config file not found: %s", tomlPath)
	}

	if _, err := toml.DecodeFile(tomlPath, config); err != nil {
		return fmt.Errorf("failed to parse TOML config: %w", err)
	}

	return nil
}

// loadEnvConfig loads configuration from environment variables
func (cm *ConfigManager) loadEnvConfig(config *RadioConfig) error {
	// Load .env file if it exists
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return fmt.Errorf("failed to load .env file: %w", err)
		}
	}

	config.Pipeline = PipelineConfig{
		FFmpegPath:        getEnvString("RADIO_FFMPEG_PATH", "ffmpeg"),
		YtDlpPath:         getEnvString("RADIO_YTDLP_PATH", "yt-dlp"),
		Bitrate:           getEnvInt("RADIO_BITRATE", 128),
		SampleRate:        getEnvInt("RADIO_SAMPLE_RATE", 44100),
		Channels:          getEnvInt("RADIO_CHANNELS", 2),
		FirstDataTimeout:  getEnvDuration("RADIO_FIRST_DATA_TIMEOUT", 30*time.Second),
		TrackEndDelay:     getEnvDuration("RADIO_TRACK_END_DELAY", 100*time.Millisecond),
		FailureDelay:      getEnvDuration("RADIO_FAILURE_DELAY", time.Second),
		SkipCooldown:      getEnvDuration("RADIO_SKIP_COOLDOWN", 150*time.Millisecond),
		InProcessTimeout:  getEnvDuration("RADIO_IN_PROCESS_TIMEOUT", 5*time.Second),
		SubprocessTimeout: getEnvDuration("RADIO_SUBPROCESS_TIMEOUT", 90*time.Second),
		SinkBuffer:        getEnvInt("RADIO_SINK_BUFFER", 256),
	}

	config.Retry = RetryConfig{
		MaxRetries: getEnvInt("RADIO_MAX_RETRIES", 3),
		BaseDelay:  getEnvDuration("RADIO_BASE_DELAY", 2*time.Second),
		MaxDelay:   getEnvDuration("RADIO_MAX_DELAY", 30*time.Second),
		Multiplier: getEnvFloat("RADIO_RETRY_MULTIPLIER", 2.0),
	}

	config.Source = SourceConfig{
		SoundCloudClientID:     getEnvString("RADIO_SOUNDCLOUD_CLIENT_ID", ""),
		YouTubeCookie:          getEnvString("RADIO_YOUTUBE_COOKIE", ""),
		YouTubeCookieFile:      getEnvString("RADIO_YOUTUBE_COOKIE_FILE", ""),
		YouTubeUserAgent:       getEnvString("RADIO_YOUTUBE_USER_AGENT", ""),
		DisableExternalFetcher: getEnvBool("RADIO_DISABLE_EXTERNAL_FETCHER", false),
		ExternalFetcherFirst:   getEnvBool("RADIO_EXTERNAL_FETCHER_FIRST", false),
		ExternalFetcherFormat:  getEnvString("RADIO_EXTERNAL_FETCHER_FORMAT", DefaultExternalFetcherFormat),
	}

	config.Logger = LoggerConfig{
		Level:    getEnvString("RADIO_LOG_LEVEL", "info"),
		Format:   getEnvString("RADIO_LOG_FORMAT", "json"),
		SaveToDB: getEnvBool("RADIO_LOG_SAVE_DB", true),
	}

	return nil
}

// setDefaults sets default configuration values
func (cm *ConfigManager) setDefaults(config *RadioConfig) {
	config.Pipeline = PipelineConfig{
		FFmpegPath:        "ffmpeg",
		YtDlpPath:         "yt-dlp",
		Bitrate:           128,
		SampleRate:        44100,
		Channels:          2,
		FirstDataTimeout:  30 * time.Second,
		TrackEndDelay:     100 * time.Millisecond,
		FailureDelay:      time.Second,
		SkipCooldown:      150 * time.Millisecond,
		InProcessTimeout:  5 * time.Second,
		SubprocessTimeout: 90 * time.Second,
		SinkBuffer:        256,
	}

	config.Retry = RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}

	config.Source = SourceConfig{
		ExternalFetcherFormat: DefaultExternalFetcherFormat,
	}

	config.Logger = LoggerConfig{
		Level:    "info",
		Format:   "json",
		SaveToDB: true,
	}
}

// GetPipelineConfig returns the pipeline configuration
func (cm *ConfigManager) GetPipelineConfig() *PipelineConfig {
	return cm.pipeline
}

// GetRetryConfig returns the retry configuration
func (cm *ConfigManager) GetRetryConfig() *RetryConfig {
	return cm.retry
}

// GetSourceConfig returns the per-provider source configuration
func (cm *ConfigManager) GetSourceConfig() *SourceConfig {
	return cm.source
}

// GetLoggerConfig returns the logger configuration
func (cm *ConfigManager) GetLoggerConfig() *LoggerConfig {
	return cm.logger
}

// Validate validates the configuration values
func (cm *ConfigManager) Validate() error {
	if cm.pipeline.FFmpegPath == "" {
		return fmt.Errorf("pipeline ffmpeg_path cannot be empty")
	}
	if cm.pipeline.YtDlpPath == "" {
		return fmt.Errorf("pipeline ytdlp_path cannot be empty")
	}
	if cm.pipeline.Bitrate <= 0 {
		return fmt.Errorf("pipeline bitrate must be positive, got %d", cm.pipeline.Bitrate)
	}
	if cm.pipeline.SampleRate <= 0 {
		return fmt.Errorf("pipeline sample_rate must be positive, got %d", cm.pipeline.SampleRate)
	}
	if cm.pipeline.Channels <= 0 {
		return fmt.Errorf("pipeline channels must be positive, got %d", cm.pipeline.Channels)
	}
	if cm.pipeline.FirstDataTimeout <= 0 {
		return fmt.Errorf("pipeline first_data_timeout must be positive, got %v", cm.pipeline.FirstDataTimeout)
	}
	if cm.pipeline.SkipCooldown < 0 {
		return fmt.Errorf("pipeline skip_cooldown must be non-negative, got %v", cm.pipeline.SkipCooldown)
	}
	if cm.pipeline.InProcessTimeout <= 0 {
		return fmt.Errorf("pipeline in_process_timeout must be positive, got %v", cm.pipeline.InProcessTimeout)
	}
	if cm.pipeline.SubprocessTimeout <= 0 {
		return fmt.Errorf("pipeline subprocess_timeout must be positive, got %v", cm.pipeline.SubprocessTimeout)
	}
	if cm.pipeline.SinkBuffer <= 0 {
		return fmt.Errorf("pipeline sink_buffer must be positive, got %d", cm.pipeline.SinkBuffer)
	}

	if cm.retry.MaxRetries < 0 {
		return fmt.Errorf("retry max_retries must be non-negative, got %d", cm.retry.MaxRetries)
	}
	if cm.retry.BaseDelay <= 0 {
		return fmt.Errorf("retry base_delay must be positive, got %v", cm.retry.BaseDelay)
	}
	if cm.retry.MaxDelay <= 0 {
		return fmt.Errorf("retry max_delay must be positive, got %v", cm.retry.MaxDelay)
	}
	if cm.retry.Multiplier <= 1.0 {
		return fmt.Errorf("retry multiplier must be greater than 1.0, got %f", cm.retry.Multiplier)
	}

	if cm.source.DisableExternalFetcher && cm.source.ExternalFetcherFirst {
		return fmt.Errorf("disable_external_fetcher and external_fetcher_first are mutually exclusive")
	}

	if !isValidLogLevel(cm.logger.Level) {
		return fmt.Errorf("invalid logger level: %s (must be debug, info, warn, or error)", cm.logger.Level)
	}
	if !isValidLogFormat(cm.logger.Format) {
		return fmt.Errorf("invalid logger format: %s (must be json or text)", cm.logger.Format)
	}

	return nil
}

// ValidateDependencies validates that all required binary dependencies are available
func (cm *ConfigManager) ValidateDependencies() error {
	return ValidateAllBinaryDependencies(cm.pipeline.FFmpegPath, cm.pipeline.YtDlpPath)
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validation helper functions
func isValidLogLevel(level string) bool {
	validLevels := []string{"debug", "info", "warn", "error"}
	for _, valid := range validLevels {
		if strings.ToLower(level) == valid {
			return true
		}
	}
	return false
}

func isValidLogFormat(format string) bool {
	validFormats := []string{"json", "text"}
	for _, valid := range validFormats {
		if strings.ToLower(format) == valid {
			return true
		}
	}
	return false
}
