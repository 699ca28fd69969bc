package cli

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/veriport/veriport/internal/config"
)

var (
	cfgFile      string
	sourceURL    string
	sourceAPIKey string
	targetURL    string
	targetAPIKey string
)

// Execute runs the CLI
func Execute(version string) error {
	rootCmd := &cobra.Command{
		Use:     "veriport",
		Short:   "Contract verification migration tool",
		Long:    `Veriport copies verified contract sources between Etherscan-compatible explorers: it fetches the verified source from one explorer, re-submits it to another, and polls until verification completes.`,
		Version: version,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: veriport.toml)")
	rootCmd.PersistentFlags().StringVar(&sourceURL, "source-url", "", "source explorer API URL")
	rootCmd.PersistentFlags().StringVar(&sourceAPIKey, "source-api-key", "", "source explorer API key")
	rootCmd.PersistentFlags().StringVar(&targetURL, "target-url", "", "target explorer API URL")
	rootCmd.PersistentFlags().StringVar(&targetAPIKey, "target-api-key", "", "target explorer API key")

	// Add subcommands
	rootCmd.AddCommand(createMigrateCmd())
	rootCmd.AddCommand(createHistoryCmd())
	rootCmd.AddCommand(createKeysCmd())
	rootCmd.AddCommand(createConfigCmd())
	rootCmd.AddCommand(createFakescanCmd())

	return rootCmd.Execute()
}

// getSourceURL returns the source explorer URL from flag, env, or config file
func getSourceURL() string {
	// 1. Command line flag
	if sourceURL != "" {
		return sourceURL
	}

	// 2. Environment variable
	if env := os.Getenv("VERIPORT_SOURCE_URL"); env != "" {
		return env
	}

	// 3. Project config file (TOML)
	if config := loadProjectConfigSilent(); config != nil && config.Source.URL != "" {
		return config.Source.URL
	}

	return ""
}

// getTargetURL returns the target explorer URL from flag, env, or config file
func getTargetURL() string {
	if targetURL != "" {
		return targetURL
	}

	if env := os.Getenv("VERIPORT_TARGET_URL"); env != "" {
		return env
	}

	if config := loadProjectConfigSilent(); config != nil && config.Target.URL != "" {
		return config.Target.URL
	}

	return ""
}

// getSourceAPIKey returns the source key from flag, env, or credentials file
func getSourceAPIKey() string {
	if sourceAPIKey != "" {
		return sourceAPIKey
	}

	if env := os.Getenv("VERIPORT_SOURCE_API_KEY"); env != "" {
		return env
	}

	// Credentials file (keyed by explorer URL)
	return getCredential(getSourceURL())
}

// getTargetAPIKey returns the target key from flag, env, or credentials file
func getTargetAPIKey() string {
	if targetAPIKey != "" {
		return targetAPIKey
	}

	if env := os.Getenv("VERIPORT_TARGET_API_KEY"); env != "" {
		return env
	}

	return getCredential(getTargetURL())
}

// buildLogger builds the command logger. Logs go to stderr so result
// output on stdout stays clean.
func buildLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
