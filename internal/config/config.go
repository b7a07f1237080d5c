package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ExportModeFunction  = "function"
	ExportModeSimulated = "simulated"
)

type Config struct {
	// Supabase
	SupabaseURL            string
	SupabasePublishableKey string
	SupabaseJWTSecret      string
	SupabaseMediaBucket    string

	// Database
	DatabaseURL string

	// Realtime
	RedisAddr    string
	RedisChannel string

	// Export
	ExportMode         string
	ExportFunctionName string
	ExportPollInterval time.Duration
	ExportMaxRetries   int

	// Editor
	AutosaveDebounce   time.Duration
	SessionIdleTimeout time.Duration

	// Server
	Port        string
	Environment string
	BaseURL     string
	LogLevel    string
	CORSOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		SupabaseURL:            getEnv("SUPABASE_URL", ""),
		SupabasePublishableKey: getEnv("SUPABASE_PUBLISHABLE_KEY", ""),
		SupabaseJWTSecret:      getEnv("SUPABASE_JWT_SECRET", ""),
		SupabaseMediaBucket:    getEnv("SUPABASE_MEDIA_BUCKET", "media"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:    getEnv("REDIS_ADDR", ""),
		RedisChannel: getEnv("REDIS_CHANNEL", "timeline-events"),

		ExportMode:         getEnv("EXPORT_MODE", ExportModeFunction),
		ExportFunctionName: getEnv("EXPORT_FUNCTION_NAME", "export-video"),
		ExportPollInterval: getDuration("EXPORT_POLL_INTERVAL", 2*time.Second),
		ExportMaxRetries:   getInt("EXPORT_MAX_RETRIES", 3),

		AutosaveDebounce:   getDuration("AUTOSAVE_DEBOUNCE", 1500*time.Millisecond),
		SessionIdleTimeout: getDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),

		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		BaseURL:     getEnv("BASE_URL", "http://localhost:8080"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		CORSOrigins: getList("CORS_ORIGINS", []string{"http://localhost:5173", "http://localhost:8080"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.SupabaseURL == "" {
		return fmt.Errorf("SUPABASE_URL is required")
	}
	if c.SupabasePublishableKey == "" {
		return fmt.Errorf("SUPABASE_PUBLISHABLE_KEY is required")
	}
	if c.SupabaseJWTSecret == "" {
		return fmt.Errorf("SUPABASE_JWT_SECRET is required")
	}
	if c.ExportMode != ExportModeFunction && c.ExportMode != ExportModeSimulated {
		return fmt.Errorf("EXPORT_MODE must be %q or %q", ExportModeFunction, ExportModeSimulated)
	}
	if c.ExportPollInterval <= 0 {
		return fmt.Errorf("EXPORT_POLL_INTERVAL must be positive")
	}
	if c.ExportMaxRetries < 1 {
		return fmt.Errorf("EXPORT_MAX_RETRIES must be at least 1")
	}
	if c.AutosaveDebounce <= 0 {
		return fmt.Errorf("AUTOSAVE_DEBOUNCE must be positive")
	}
	if c.SessionIdleTimeout < 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must not be negative")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}

// getDuration accepts Go duration strings ("2s") or a bare number of
// milliseconds.
func getDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if ms, err := strconv.Atoi(value); err == nil {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
