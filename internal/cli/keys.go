package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

// Credentials stores API keys per explorer URL
type Credentials struct {
	Explorers map[string]ExplorerCredential `yaml:"explorers"`
}

// ExplorerCredential stores the credential for a single explorer
type ExplorerCredential struct {
	APIKey string `yaml:"api_key"`
	Name   string `yaml:"name,omitempty"` // Optional name/description
}

func createKeysCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage explorer API keys",
	}

	cmd.AddCommand(createKeysSetCmd())
	cmd.AddCommand(createKeysRemoveCmd())
	cmd.AddCommand(createKeysStatusCmd())

	return cmd
}

func createKeysSetCmd() *cobra.Command {
	var explorerFlag string
	var apiKeyFlag string
	var skipCheck bool

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Store an explorer API key",
		Long: `Save an API key for an explorer endpoint.

The key is stored in ~/.veriport/credentials with secure file permissions,
keyed by the explorer URL. Migrations look keys up there when no flag or
environment variable provides one.

EXAMPLES:
  # Interactive (prompts for the key)
  veriport keys set --explorer https://api.etherscan.io/api

  # Non-interactive (for CI)
  veriport keys set --explorer https://api.etherscan.io/api --api-key $ETHERSCAN_KEY

  # Skip the live key check
  veriport keys set --explorer https://api.etherscan.io/api --no-check
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysSet(explorerFlag, apiKeyFlag, skipCheck)
		},
	}

	cmd.Flags().StringVar(&explorerFlag, "explorer", "", "explorer API URL (required)")
	cmd.Flags().StringVar(&apiKeyFlag, "api-key", "", "API key (prompts if not provided)")
	cmd.Flags().BoolVar(&skipCheck, "no-check", false, "skip validating the key against the explorer")
	_ = cmd.MarkFlagRequired("explorer")

	return cmd
}

func createKeysRemoveCmd() *cobra.Command {
	var explorerFlag string
	var allFlag bool

	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove stored keys",
		Long: `Remove a stored API key.

EXAMPLES:
  # Remove the key for one explorer
  veriport keys remove --explorer https://api.etherscan.io/api

  # Remove all stored keys
  veriport keys remove --all
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysRemove(explorerFlag, allFlag)
		},
	}

	cmd.Flags().StringVar(&explorerFlag, "explorer", "", "explorer API URL")
	cmd.Flags().BoolVar(&allFlag, "all", false, "remove all stored keys")

	return cmd
}

func createKeysStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show stored keys",
		Long: `Show which explorers have stored API keys.

EXAMPLES:
  veriport keys status
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeysStatus()
		},
	}

	return cmd
}

func runKeysSet(explorerURL, apiKeyInput string, skipCheck bool) error {
	// Get API key
	apiKey := apiKeyInput
	if apiKey == "" {
		// Prompt for API key
		fmt.Printf("Enter API key for %s: ", explorerURL)

		// Try to read password without echo
		stdinFd := int(os.Stdin.Fd())
		if term.IsTerminal(stdinFd) {
			byteKey, err := term.ReadPassword(stdinFd)
			fmt.Println() // New line after password input
			if err != nil {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			apiKey = string(byteKey)
		} else {
			// Non-terminal, read from stdin
			reader := bufio.NewReader(os.Stdin)
			key, err := reader.ReadString('\n')
			if err != nil && err != io.EOF {
				return fmt.Errorf("failed to read API key: %w", err)
			}
			apiKey = strings.TrimSpace(key)
		}
	}

	if apiKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}

	// Validate the key with a throwaway request
	if !skipCheck {
		fmt.Printf("Checking key against %s...\n", explorerURL)
		valid, err := validateExplorerKey(explorerURL, apiKey)
		if err != nil {
			fmt.Printf("⚠️  Could not reach explorer to check the key: %v\n", err)
		} else if !valid {
			return fmt.Errorf("explorer rejected the API key")
		}
	}

	// Save credentials
	if err := saveCredential(explorerURL, apiKey); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	// Mask key for display
	masked := maskAPIKey(apiKey)
	fmt.Printf("✅ Key stored for %s (key: %s)\n", explorerURL, masked)
	fmt.Printf("   Credentials saved to %s\n", credentialsFilePath())

	return nil
}

func runKeysRemove(explorerURL string, all bool) error {
	if all {
		// Remove all credentials
		path := credentialsFilePath()
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("failed to remove credentials: %w", err)
		}
		fmt.Println("✅ All stored keys removed")
		return nil
	}

	if explorerURL == "" {
		return fmt.Errorf("pass --explorer or --all")
	}

	creds, err := loadCredentials()
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if _, exists := creds.Explorers[explorerURL]; !exists {
		fmt.Printf("No key stored for %s\n", explorerURL)
		return nil
	}

	delete(creds.Explorers, explorerURL)

	if err := writeCredentials(creds); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("✅ Key removed for %s\n", explorerURL)
	return nil
}

func runKeysStatus() error {
	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			fmt.Println("No explorer keys stored")
			fmt.Println("\nRun 'veriport keys set' to store one")
			return nil
		}
		return fmt.Errorf("failed to load credentials: %w", err)
	}

	if len(creds.Explorers) == 0 {
		fmt.Println("No explorer keys stored")
		fmt.Println("\nRun 'veriport keys set' to store one")
		return nil
	}

	fmt.Println("Stored explorer keys:")
	for explorer, cred := range creds.Explorers {
		masked := maskAPIKey(cred.APIKey)
		if cred.Name != "" {
			fmt.Printf("  • %s (%s, key: %s)\n", explorer, cred.Name, masked)
		} else {
			fmt.Printf("  • %s (key: %s)\n", explorer, masked)
		}
	}

	return nil
}

// Credential file helpers

func credentialsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veriport"
	}
	return filepath.Join(home, ".veriport")
}

func credentialsFilePath() string {
	return filepath.Join(credentialsDir(), "credentials")
}

func loadCredentials() (*Credentials, error) {
	path := credentialsFilePath()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, err
	}

	if creds.Explorers == nil {
		creds.Explorers = make(map[string]ExplorerCredential)
	}

	return &creds, nil
}

func writeCredentials(creds *Credentials) error {
	dir := credentialsDir()
	if err := os.MkdirAll(dir, 0700); err != nil {
		return err
	}

	data, err := yaml.Marshal(creds)
	if err != nil {
		return err
	}

	path := credentialsFilePath()
	return os.WriteFile(path, data, 0600) // Secure permissions
}

func saveCredential(explorerURL, apiKey string) error {
	creds, err := loadCredentials()
	if err != nil {
		if os.IsNotExist(err) {
			creds = &Credentials{Explorers: make(map[string]ExplorerCredential)}
		} else {
			return err
		}
	}

	creds.Explorers[explorerURL] = ExplorerCredential{APIKey: apiKey}
	return writeCredentials(creds)
}

func getCredential(explorerURL string) string {
	if explorerURL == "" {
		return ""
	}
	creds, err := loadCredentials()
	if err != nil {
		return ""
	}
	if cred, ok := creds.Explorers[explorerURL]; ok {
		return cred.APIKey
	}
	return ""
}

// validateExplorerKey probes the explorer with a throwaway getsourcecode
// request. Explorers report key problems inside the response envelope, so
// only the result text distinguishes a bad key from an unverified address.
func validateExplorerKey(explorerURL, apiKey string) (bool, error) {
	params := url.Values{
		"module":  {"contract"},
		"action":  {"getsourcecode"},
		"address": {"0x0000000000000000000000000000000000000000"},
		"apikey":  {apiKey},
	}

	req, err := http.NewRequestWithContext(context.Background(), "GET", explorerURL+"?"+params.Encode(), nil)
	if err != nil {
		return false, err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	var envelope struct {
		Status  string          `json:"status"`
		Message string          `json:"message"`
		Result  json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return false, fmt.Errorf("unexpected response: %s", strings.TrimSpace(string(body)))
	}

	var result string
	_ = json.Unmarshal(envelope.Result, &result)
	if strings.Contains(strings.ToLower(result), "invalid api key") {
		return false, nil
	}

	return true, nil
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "****"
	}
	return key[:8] + "..." + key[len(key)-4:]
}
