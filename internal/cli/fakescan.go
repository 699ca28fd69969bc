package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/veriport/veriport/internal/config"
	"github.com/veriport/veriport/internal/fakescan"
)

func createFakescanCmd() *cobra.Command {
	var (
		addr         string
		seedFile     string
		pendingPolls int
		rateLimit    float64
		apiKey       string
	)

	cmd := &cobra.Command{
		Use:   "fakescan",
		Short: "Run a local fake explorer",
		Long: `Run an in-memory Etherscan-compatible explorer.

The fake serves getsourcecode, verifysourcecode, and checkverifystatus
on /api. It is useful for trying veriport without real explorer keys
and for exercising rate limit handling: with --rate-limit set, requests
over the limit get the explorer's usual NOTOK throttling response.

Without --seed, a pair of demo contracts is loaded.

EXAMPLES:
  # Run with demo contracts
  veriport fakescan

  # Run two fakes and migrate between them
  veriport fakescan --addr :8091 &
  veriport fakescan --addr :8092 &
  veriport migrate 0x1000000000000000000000000000000000000001 \
    --source-url http://localhost:8091/api \
    --target-url http://localhost:8092/api

  # Seed from a file and throttle aggressively
  veriport fakescan --seed contracts.json --rate-limit 2
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFakescan(addr, seedFile, pendingPolls, rateLimit, apiKey)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8090", "listen address")
	cmd.Flags().StringVar(&seedFile, "seed", "", "JSON file of contracts to seed")
	cmd.Flags().IntVar(&pendingPolls, "pending-polls", 1, "status checks answered with Pending before verification completes")
	cmd.Flags().Float64Var(&rateLimit, "rate-limit", 0, "requests per second before throttling (0 disables)")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "require this apikey parameter on every request")

	return cmd
}

func runFakescan(addr, seedFile string, pendingPolls int, rateLimit float64, apiKey string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := buildLogger(cfg)

	opts := []fakescan.Option{
		fakescan.WithLogger(logger),
		fakescan.WithPendingPolls(pendingPolls),
	}
	if rateLimit > 0 {
		opts = append(opts, fakescan.WithRateLimit(rateLimit, 1))
	}
	if apiKey != "" {
		opts = append(opts, fakescan.WithAPIKey(apiKey))
	}

	srv := fakescan.New(opts...)

	if seedFile != "" {
		n, err := srv.LoadSeedFile(seedFile)
		if err != nil {
			return fmt.Errorf("seeding explorer: %w", err)
		}
		fmt.Printf("Seeded %d contract(s) from %s\n", n, seedFile)
	} else {
		addrs := srv.SeedDemo()
		fmt.Println("Seeded demo contracts:")
		for _, a := range addrs {
			fmt.Printf("  • %s\n", a)
		}
	}

	httpServer := &http.Server{
		Addr:         addr,
		Handler:      srv.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		logger.Info("fake explorer listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	fmt.Printf("Fake explorer listening on %s\n", addr)
	if strings.HasPrefix(addr, ":") {
		fmt.Printf("  API endpoint: http://localhost%s/api\n", addr)
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig)
	}

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}

	logger.Info("fake explorer stopped")
	return nil
}
