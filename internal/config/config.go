package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds all configuration for the tool
type Config struct {
	Source  ExplorerConfig
	Target  ExplorerConfig
	Migrate MigrateConfig
	Journal JournalConfig
	Logging LoggingConfig
	Metrics MetricsConfig
}

// ExplorerConfig holds the endpoint and key for one explorer
type ExplorerConfig struct {
	URL    string
	APIKey string
}

// MigrateConfig holds migration tuning settings
type MigrateConfig struct {
	Concurrency       int
	PollInterval      int // seconds
	PollAttempts      int
	RequestIntervalMS int // minimum spacing between requests per explorer
	MaxRetries        int
	RetryDelay        int // seconds, doubled per retry
	FailFast          bool
}

// JournalConfig holds migration history settings
type JournalConfig struct {
	Enabled bool
	URL     string // postgres URL or SQLite path
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string
	Format string // "text" or "json"
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string // empty disables the metrics listener
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	cfg := &Config{
		Source: ExplorerConfig{
			URL:    getEnv("VERIPORT_SOURCE_URL", ""),
			APIKey: getEnv("VERIPORT_SOURCE_API_KEY", ""),
		},
		Target: ExplorerConfig{
			URL:    getEnv("VERIPORT_TARGET_URL", ""),
			APIKey: getEnv("VERIPORT_TARGET_API_KEY", ""),
		},
		Migrate: MigrateConfig{
			Concurrency:       getEnvInt("VERIPORT_CONCURRENCY", 1),
			PollInterval:      getEnvInt("VERIPORT_POLL_INTERVAL", 10),
			PollAttempts:      getEnvInt("VERIPORT_POLL_ATTEMPTS", 10),
			RequestIntervalMS: getEnvInt("VERIPORT_REQUEST_INTERVAL_MS", 250),
			MaxRetries:        getEnvInt("VERIPORT_MAX_RETRIES", 3),
			RetryDelay:        getEnvInt("VERIPORT_RETRY_DELAY", 5),
			FailFast:          getEnvBool("VERIPORT_FAIL_FAST", false),
		},
		Journal: JournalConfig{
			Enabled: getEnvBool("VERIPORT_JOURNAL_ENABLED", true),
			URL:     getEnv("VERIPORT_JOURNAL_URL", defaultJournalPath()),
		},
		Logging: LoggingConfig{
			Level:  getEnv("VERIPORT_LOG_LEVEL", "info"),
			Format: getEnv("VERIPORT_LOG_FORMAT", "text"),
		},
		Metrics: MetricsConfig{
			Addr: getEnv("VERIPORT_METRICS_ADDR", ""),
		},
	}

	return cfg, nil
}

// defaultJournalPath puts the journal under the user's config directory
func defaultJournalPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "veriport-journal.db"
	}
	return filepath.Join(home, ".veriport", "journal.db")
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}
