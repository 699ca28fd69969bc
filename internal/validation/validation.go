// Package validation provides input validation for veriport.
package validation

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/mod/semver"
)

// ValidateAddress validates an EVM contract address
func ValidateAddress(addr string) error {
	if len(addr) != 42 {
		return errors.New("invalid address length: must be 42 characters (0x + 40 hex)")
	}
	if !strings.HasPrefix(addr, "0x") {
		return errors.New("invalid address: must start with 0x")
	}
	// Check hex characters
	for _, c := range addr[2:] {
		isDigit := c >= '0' && c <= '9'
		isLowerHex := c >= 'a' && c <= 'f'
		isUpperHex := c >= 'A' && c <= 'F'
		if !isDigit && !isLowerHex && !isUpperHex {
			return errors.New("invalid address: contains non-hex characters")
		}
	}
	return nil
}

// ValidateAddresses validates a batch of addresses, reporting the first
// invalid one by position.
func ValidateAddresses(addrs []string) error {
	for i, addr := range addrs {
		if err := ValidateAddress(addr); err != nil {
			return fmt.Errorf("address %d (%s): %w", i+1, addr, err)
		}
	}
	return nil
}

// NormalizeCompilerVersion returns the compiler version in the form the
// verification endpoint expects: solc versions carry a leading "v"
// ("0.8.19+commit.7dd6d404" becomes "v0.8.19+commit.7dd6d404") and must be
// well-formed semver. Vyper versions pass through unchanged.
func NormalizeCompilerVersion(version string) (string, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		return "", errors.New("compiler version is empty")
	}
	if strings.Contains(strings.ToLower(version), "vyper") {
		return version, nil
	}
	if !strings.HasPrefix(version, "v") {
		version = "v" + version
	}
	if !semver.IsValid(version) {
		return "", fmt.Errorf("malformed compiler version %q", version)
	}
	return version, nil
}

// ValidateExplorerURL validates an explorer API base URL
func ValidateExplorerURL(raw string) error {
	if raw == "" {
		return errors.New("explorer URL is empty")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid explorer URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid explorer URL scheme %q: must be http or https", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("invalid explorer URL: missing host")
	}
	return nil
}
