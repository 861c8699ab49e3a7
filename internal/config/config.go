package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds the process-level settings read from the environment.
// Engine tuning lives in pkg/radio's own config cascade; this covers the
// HTTP surface, persistence and access control.
type Config struct {
	Port          string
	ClientOrigin  string
	SessionSecret string
	SecureCookies bool
	DatabaseURL   string

	AllowedIDs []string
	AdminIDs   []string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	HistoryRetentionDays int
}

// LoadConfig reads the configuration from the environment
// The .env file, when present, is loaded by the caller before this runs
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Port:                 getEnvString("PORT", "8080"),
		ClientOrigin:         getEnvString("CLIENT_ORIGIN", ""),
		SessionSecret:        getEnvString("SESSION_SECRET", ""),
		SecureCookies:        getEnvBool("SECURE_COOKIES", false),
		DatabaseURL:          getEnvString("DATABASE_URL", ""),
		AllowedIDs:           splitList(getEnvString("ALLOWED_IDS", "")),
		AdminIDs:             splitList(getEnvString("ADMIN_IDS", "")),
		RateLimitRequests:    getEnvInt("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:      getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		HistoryRetentionDays: getEnvInt("HISTORY_RETENTION_DAYS", 30),
	}

	if cfg.SessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}
	if cfg.RateLimitRequests <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", cfg.RateLimitRequests)
	}
	if cfg.RateLimitWindow <= 0 {
		return nil, fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %v", cfg.RateLimitWindow)
	}
	if cfg.HistoryRetentionDays <= 0 {
		return nil, fmt.Errorf("HISTORY_RETENTION_DAYS must be positive, got %d", cfg.HistoryRetentionDays)
	}

	return cfg, nil
}

// splitList parses a comma separated id list, dropping empty entries
func splitList(value string) []string {
	if value == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	ids := make([]string, 0, len(parts))
	for _, part := range parts {
		if id := strings.TrimSpace(part); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
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
