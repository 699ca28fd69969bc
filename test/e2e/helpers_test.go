//go:build e2e

package e2e

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/veriport/veriport/internal/fakescan"
	"github.com/veriport/veriport/pkg/etherscan"
	"github.com/veriport/veriport/pkg/migrate"
)

// TestContext holds shared test infrastructure
type TestContext struct {
	PostgresContainer *postgres.PostgresContainer
	ConnString        string
}

// setupPostgresE starts a Postgres container and returns the connection string
func setupPostgresE(ctx context.Context) (*postgres.PostgresContainer, string, error) {
	postgresContainer, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:16-alpine"),
		postgres.WithDatabase("veriport"),
		postgres.WithUsername("veriport"),
		postgres.WithPassword("veriport"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	if err != nil {
		return nil, "", fmt.Errorf("failed to start postgres container: %w", err)
	}

	connString, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = postgresContainer.Terminate(ctx)
		return nil, "", fmt.Errorf("failed to get postgres connection string: %w", err)
	}

	return postgresContainer, connString, nil
}

// explorer bundles a fake explorer with the HTTP server exposing it
type explorer struct {
	fake *fakescan.Server
	ts   *httptest.Server
}

func (e *explorer) apiURL() string {
	return e.ts.URL + "/api"
}

// startExplorer starts an in-process fake explorer behind an httptest server
func startExplorer(t *testing.T, opts ...fakescan.Option) *explorer {
	t.Helper()

	opts = append([]fakescan.Option{fakescan.WithLogger(testLogger())}, opts...)
	fake := fakescan.New(opts...)
	ts := httptest.NewServer(fake.Handler())
	t.Cleanup(ts.Close)

	return &explorer{fake: fake, ts: ts}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newMigrator builds a migrator between two fake explorers with polling
// tightened for tests
func newMigrator(t *testing.T, source, target *explorer, opts ...migrate.Option) *migrate.Migrator {
	t.Helper()

	base := []migrate.Option{
		migrate.WithPolling(5, 10*time.Millisecond),
		migrate.WithRateLimit(time.Millisecond),
		migrate.WithRetry(1, 10*time.Millisecond),
		migrate.WithLogger(testLogger()),
	}
	m, err := migrate.New(migrate.Config{
		SourceURL:    source.apiURL(),
		SourceAPIKey: "source-key",
		TargetURL:    target.apiURL(),
		TargetAPIKey: "target-key",
	}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("Failed to create migrator: %v", err)
	}
	return m
}

// counterSource returns a flattened single-file verification record
func counterSource(name string) etherscan.ContractSource {
	code := fmt.Sprintf(`// SPDX-License-Identifier: MIT
pragma solidity ^0.8.19;

contract %s {
    uint256 public count;

    function increment() external {
        count += 1;
    }
}
`, name)
	return etherscan.ContractSource{
		SourceCode:       code,
		ABI:              `[{"inputs":[],"name":"increment","outputs":[],"stateMutability":"nonpayable","type":"function"}]`,
		ContractName:     name,
		CompilerVersion:  "v0.8.19+commit.7dd6d404",
		OptimizationUsed: "1",
		Runs:             "200",
		EVMVersion:       "Default",
		LicenseType:      "MIT",
	}
}

// vaultSource returns a standard-JSON-input record in the doubled-brace
// shape explorers serve it in
func vaultSource() etherscan.ContractSource {
	return etherscan.ContractSource{
		SourceCode: `{{
  "language": "Solidity",
  "sources": {
    "src/Vault.sol": {
      "content": "// SPDX-License-Identifier: MIT\npragma solidity ^0.8.19;\n\ncontract Vault {\n    mapping(address => uint256) public balances;\n}\n"
    }
  },
  "settings": {
    "optimizer": {"enabled": true, "runs": 200}
  }
}}`,
		ABI:                  `[{"inputs":[{"internalType":"address","name":"","type":"address"}],"name":"balances","outputs":[{"internalType":"uint256","name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`,
		ContractName:         "src/Vault.sol:Vault",
		CompilerVersion:      "v0.8.19+commit.7dd6d404",
		OptimizationUsed:     "1",
		Runs:                 "200",
		ConstructorArguments: "0x000000000000000000000000000000000000000000000000000000000000002a",
		EVMVersion:           "paris",
		LicenseType:          "MIT",
	}
}

func addr(n byte) string {
	return fmt.Sprintf("0x%038x%02x", 0, n)
}
