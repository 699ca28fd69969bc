package validation

import (
	"testing"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"valid address", "0x1234567890abcdef1234567890abcdef12345678", false},
		{"valid uppercase", "0x1234567890ABCDEF1234567890ABCDEF12345678", false},
		{"missing 0x", "1234567890abcdef1234567890abcdef12345678", true},
		{"too short", "0x1234", true},
		{"too long", "0x1234567890abcdef1234567890abcdef123456789", true},
		{"invalid characters", "0x1234567890abcdef1234567890abcdef1234567g", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateAddress(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

func TestValidateAddresses(t *testing.T) {
	valid := "0x1234567890abcdef1234567890abcdef12345678"

	if err := ValidateAddresses([]string{valid, valid}); err != nil {
		t.Errorf("ValidateAddresses() error = %v, want nil", err)
	}
	if err := ValidateAddresses(nil); err != nil {
		t.Errorf("ValidateAddresses(nil) error = %v, want nil", err)
	}

	err := ValidateAddresses([]string{valid, "0xbad"})
	if err == nil {
		t.Fatal("ValidateAddresses() expected error for invalid second address")
	}
}

func TestNormalizeCompilerVersion(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{"already prefixed", "v0.8.19+commit.7dd6d404", "v0.8.19+commit.7dd6d404", false},
		{"adds prefix", "0.8.19+commit.7dd6d404", "v0.8.19+commit.7dd6d404", false},
		{"plain version", "0.8.19", "v0.8.19", false},
		{"vyper passthrough", "vyper:0.3.1", "vyper:0.3.1", false},
		{"empty", "", "", true},
		{"garbage", "not-a-version", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeCompilerVersion(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeCompilerVersion(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeCompilerVersion(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestValidateExplorerURL(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr bool
	}{
		{"https", "https://api.etherscan.io/api", false},
		{"http localhost", "http://localhost:8545/api", false},
		{"missing scheme", "api.etherscan.io/api", true},
		{"bad scheme", "ftp://api.etherscan.io/api", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateExplorerURL(tt.input)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateExplorerURL(%q) error = %v, wantErr %v", tt.input, err, tt.wantErr)
			}
		})
	}
}
