package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// projectConfigFiles is the search order for project config files
var projectConfigFiles = []string{"veriport.toml", "vp.toml"}

// ProjectConfig is the project-level TOML configuration
type ProjectConfig struct {
	Source    ExplorerTOML `toml:"source,omitempty"`
	Target    ExplorerTOML `toml:"target,omitempty"`
	Addresses []string     `toml:"addresses,omitempty"`
	Migrate   MigrateTOML  `toml:"migrate,omitempty"`
}

// ExplorerTOML identifies one explorer in the project config. API keys
// live in the credentials file, not here.
type ExplorerTOML struct {
	URL string `toml:"url,omitempty"`
}

// MigrateTOML contains migration tuning for the project config
type MigrateTOML struct {
	Concurrency  int  `toml:"concurrency,omitempty"`
	PollInterval int  `toml:"poll_interval,omitempty"`
	PollAttempts int  `toml:"poll_attempts,omitempty"`
	FailFast     bool `toml:"fail_fast,omitempty"`
}

// GlobalConfig is the global configuration (stored in ~/.veriport/config.yaml)
type GlobalConfig struct {
	SourceURL string `yaml:"source_url,omitempty"`
	TargetURL string `yaml:"target_url,omitempty"`
}

func createConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration commands",
	}

	cmd.AddCommand(createConfigInitCmd())
	cmd.AddCommand(createConfigShowCmd())

	return cmd
}

func createConfigInitCmd() *cobra.Command {
	var sourceFlag string
	var targetFlag string
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create config file",
		Long: `Create a veriport.toml configuration file in the current directory.

This file stores project-specific settings like the source and target
explorer URLs and the contract addresses to migrate.

EXAMPLES:
  # Create config with explorer URLs
  veriport config init \
    --source https://api.etherscan.io/api \
    --target https://api.basescan.org/api

  # Overwrite existing config
  veriport config init --force
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigInit(sourceFlag, targetFlag, force)
		},
	}

	cmd.Flags().StringVar(&sourceFlag, "source", "https://api.etherscan.io/api", "source explorer API URL")
	cmd.Flags().StringVar(&targetFlag, "target", "", "target explorer API URL")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing config")

	return cmd
}

func createConfigShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Display current config",
		Long: `Display the current configuration.

Shows the local project config (veriport.toml), the global config from
~/.veriport/config.yaml, and stored credentials.

EXAMPLES:
  veriport config show
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow()
		},
	}

	return cmd
}

func runConfigInit(source, target string, force bool) error {
	configPath := "veriport.toml"

	// Check if any config file already exists
	for _, cfgFile := range projectConfigFiles {
		if _, err := os.Stat(cfgFile); err == nil && !force {
			return fmt.Errorf("config file already exists at %s (use --force to overwrite)", cfgFile)
		}
	}

	// Generate TOML config
	content := fmt.Sprintf(`# Veriport project configuration

[source]
url = "%s"

[target]
url = "%s"

# Contract addresses to migrate (can also be passed on the command line)
# addresses = [
#   "0x1234567890abcdef1234567890abcdef12345678",
# ]

[migrate]
concurrency = 1
poll_interval = 10
poll_attempts = 10
# fail_fast = true
`, source, target)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	fmt.Printf("Created %s\n", configPath)
	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Source: %s\n", source)
	if target != "" {
		fmt.Printf("  Target: %s\n", target)
	} else {
		fmt.Println("  Target: (edit veriport.toml to set)")
	}
	fmt.Println()
	fmt.Println("Next steps:")
	fmt.Printf("  1. Edit %s to list the addresses to migrate\n", configPath)
	fmt.Println("  2. Run 'veriport keys set' to store the explorer API keys")
	fmt.Println("  3. Run 'veriport migrate' to start the migration")

	return nil
}

func runConfigShow() error {
	fmt.Println("Configuration sources (in order of precedence):")
	fmt.Println()

	// 1. Command line flags
	fmt.Println("1. Command line flags")
	fmt.Println("   --source-url, --target-url, --source-api-key, --target-api-key, --config")
	fmt.Println()

	// 2. Environment variables
	fmt.Println("2. Environment variables")
	for _, key := range []string{"VERIPORT_SOURCE_URL", "VERIPORT_TARGET_URL"} {
		if v := os.Getenv(key); v != "" {
			fmt.Printf("   %s=%s\n", key, v)
		} else {
			fmt.Printf("   %s=(not set)\n", key)
		}
	}
	for _, key := range []string{"VERIPORT_SOURCE_API_KEY", "VERIPORT_TARGET_API_KEY"} {
		if v := os.Getenv(key); v != "" {
			fmt.Printf("   %s=%s\n", key, maskAPIKey(v))
		} else {
			fmt.Printf("   %s=(not set)\n", key)
		}
	}
	fmt.Println()

	// 3. Local project config
	fmt.Println("3. Local project config (veriport.toml or vp.toml)")
	projectConfig, configPath, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		fmt.Printf("   Loaded from: %s\n", configPath)
		if projectConfig.Source.URL != "" {
			fmt.Printf("   source.url: %s\n", projectConfig.Source.URL)
		}
		if projectConfig.Target.URL != "" {
			fmt.Printf("   target.url: %s\n", projectConfig.Target.URL)
		}
		if len(projectConfig.Addresses) > 0 {
			fmt.Printf("   addresses: %d configured\n", len(projectConfig.Addresses))
		}
	}
	fmt.Println()

	// 4. Global config
	fmt.Println("4. Global config (~/.veriport/config.yaml)")
	globalPath := filepath.Join(credentialsDir(), "config.yaml")
	globalData, err := os.ReadFile(globalPath)
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		var globalConfig GlobalConfig
		if err := yaml.Unmarshal(globalData, &globalConfig); err == nil {
			if globalConfig.SourceURL != "" {
				fmt.Printf("   source_url: %s\n", globalConfig.SourceURL)
			}
			if globalConfig.TargetURL != "" {
				fmt.Printf("   target_url: %s\n", globalConfig.TargetURL)
			}
		}
	}
	fmt.Println()

	// 5. Credentials
	fmt.Println("5. Credentials (~/.veriport/credentials)")
	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("   (not found)")
		} else {
			fmt.Printf("   Error: %v\n", err)
		}
	} else {
		if len(creds.Explorers) == 0 {
			fmt.Println("   (no credentials stored)")
		} else {
			for explorer, cred := range creds.Explorers {
				fmt.Printf("   %s: %s\n", explorer, maskAPIKey(cred.APIKey))
			}
		}
	}
	fmt.Println()

	// Effective config
	fmt.Println("Effective configuration:")
	printEffective("Source", getSourceURL(), getSourceAPIKey())
	printEffective("Target", getTargetURL(), getTargetAPIKey())

	return nil
}

func printEffective(label, url, key string) {
	if url == "" {
		url = "(not set)"
	}
	fmt.Printf("   %s:  %s", label, url)
	if key != "" {
		fmt.Printf(" (key: %s)", maskAPIKey(key))
	}
	fmt.Println()
}

// loadProjectConfig loads the project config from the first matching config file.
// Returns the config, the path it was loaded from, and an error.
func loadProjectConfig() (*ProjectConfig, string, error) {
	// If --config flag was provided, use that directly
	if cfgFile != "" {
		config, err := loadProjectConfigFromPath(cfgFile)
		if err != nil {
			return nil, cfgFile, err
		}
		return config, cfgFile, nil
	}

	// Search for config files in order
	for _, name := range projectConfigFiles {
		if _, err := os.Stat(name); err == nil {
			config, err := loadProjectConfigFromPath(name)
			if err != nil {
				return nil, name, err
			}
			return config, name, nil
		}
	}
	return nil, "", os.ErrNotExist
}

// loadProjectConfigFromPath loads a project config from a specific path
func loadProjectConfigFromPath(path string) (*ProjectConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var config ProjectConfig
	if _, err := toml.Decode(string(data), &config); err != nil {
		return nil, fmt.Errorf("parsing TOML: %w", err)
	}

	return &config, nil
}

// loadProjectConfigSilent loads the project config without returning errors for missing files.
// Returns nil if the file doesn't exist, but returns errors for parse failures.
func loadProjectConfigSilent() *ProjectConfig {
	config, _, err := loadProjectConfig()
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		// Show actionable errors (parse failures)
		fmt.Fprintf(os.Stderr, "Warning: failed to load project config: %v\n", err)
		return nil
	}
	return config
}
