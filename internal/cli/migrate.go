package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/veriport/veriport/internal/config"
	"github.com/veriport/veriport/internal/journal"
	"github.com/veriport/veriport/internal/observability/metrics"
	"github.com/veriport/veriport/pkg/migrate"
)

func createMigrateCmd() *cobra.Command {
	var (
		addressFile  string
		concurrency  int
		pollInterval int
		pollAttempts int
		failFast     bool
		journalURL   string
		noJournal    bool
		metricsAddr  string
		jsonOutput   bool
	)

	cmd := &cobra.Command{
		Use:   "migrate [addresses...]",
		Short: "Re-verify contracts on a target explorer",
		Long: `Migrate contract verifications from one explorer to another.

For each address, veriport fetches the verified source from the source
explorer, normalizes it, submits it to the target explorer, and polls
until the target reports a terminal state. Addresses are processed
independently: one failure does not stop the rest unless --fail-fast
is set.

Addresses come from the command line, from --file (one address per
line, # comments allowed), or from the addresses list in veriport.toml.

EXAMPLES:
  # Migrate two contracts
  veriport migrate 0x1234...5678 0xabcd...ef01 \
    --source-url https://api.etherscan.io/api \
    --target-url https://api.basescan.org/api

  # Migrate a list of addresses from a file, four at a time
  veriport migrate --file addresses.txt --concurrency 4

  # Stop at the first failure
  veriport migrate --file addresses.txt --fail-fast

  # Use the addresses and explorers from veriport.toml
  veriport migrate
`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), args, migrateFlags{
				addressFile:  addressFile,
				concurrency:  concurrency,
				pollInterval: pollInterval,
				pollAttempts: pollAttempts,
				failFast:     failFast,
				journalURL:   journalURL,
				noJournal:    noJournal,
				metricsAddr:  metricsAddr,
				jsonOutput:   jsonOutput,
			})
		},
	}

	cmd.Flags().StringVarP(&addressFile, "file", "f", "", "file with addresses, one per line")
	cmd.Flags().IntVar(&concurrency, "concurrency", 0, "addresses migrated in parallel (default 1)")
	cmd.Flags().IntVar(&pollInterval, "poll-interval", 0, "seconds between status polls (default 10)")
	cmd.Flags().IntVar(&pollAttempts, "poll-attempts", 0, "status polls before giving up (default 10)")
	cmd.Flags().BoolVar(&failFast, "fail-fast", false, "stop dispatching after the first failure")
	cmd.Flags().StringVar(&journalURL, "journal", "", "journal location (SQLite path or postgres:// URL)")
	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "do not record this run in the journal")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output the report as JSON")

	return cmd
}

type migrateFlags struct {
	addressFile  string
	concurrency  int
	pollInterval int
	pollAttempts int
	failFast     bool
	journalURL   string
	noJournal    bool
	metricsAddr  string
	jsonOutput   bool
}

func runMigrate(ctx context.Context, args []string, flags migrateFlags) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := buildLogger(cfg)
	project := loadProjectConfigSilent()

	// Resolve the address list: command line, file, then project config
	addresses := args
	if flags.addressFile != "" {
		fromFile, err := readAddressFile(flags.addressFile)
		if err != nil {
			return fmt.Errorf("reading address file: %w", err)
		}
		addresses = append(addresses, fromFile...)
	}
	if len(addresses) == 0 && project != nil {
		addresses = project.Addresses
	}
	if len(addresses) == 0 {
		return fmt.Errorf("no addresses to migrate (pass them as arguments, via --file, or list them in veriport.toml)")
	}

	srcURL, tgtURL := getSourceURL(), getTargetURL()
	if srcURL == "" {
		return fmt.Errorf("source explorer URL not set (use --source-url, VERIPORT_SOURCE_URL, or veriport.toml)")
	}
	if tgtURL == "" {
		return fmt.Errorf("target explorer URL not set (use --target-url, VERIPORT_TARGET_URL, or veriport.toml)")
	}

	// Flags beat project config beat env defaults for tuning knobs
	tuning := cfg.Migrate
	if project != nil {
		if project.Migrate.Concurrency > 0 {
			tuning.Concurrency = project.Migrate.Concurrency
		}
		if project.Migrate.PollInterval > 0 {
			tuning.PollInterval = project.Migrate.PollInterval
		}
		if project.Migrate.PollAttempts > 0 {
			tuning.PollAttempts = project.Migrate.PollAttempts
		}
		if project.Migrate.FailFast {
			tuning.FailFast = true
		}
	}
	if flags.concurrency > 0 {
		tuning.Concurrency = flags.concurrency
	}
	if flags.pollInterval > 0 {
		tuning.PollInterval = flags.pollInterval
	}
	if flags.pollAttempts > 0 {
		tuning.PollAttempts = flags.pollAttempts
	}
	if flags.failFast {
		tuning.FailFast = true
	}

	metricsAddr := flags.metricsAddr
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	metrics.Init(metricsAddr != "")
	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	// Results stream to stdout as addresses finish; logs go to stderr
	var printMu sync.Mutex
	opts := []migrate.Option{
		migrate.WithConcurrency(tuning.Concurrency),
		migrate.WithPolling(tuning.PollAttempts, time.Duration(tuning.PollInterval)*time.Second),
		migrate.WithRateLimit(time.Duration(tuning.RequestIntervalMS) * time.Millisecond),
		migrate.WithRetry(tuning.MaxRetries, time.Duration(tuning.RetryDelay)*time.Second),
		migrate.WithLogger(logger),
	}
	if tuning.FailFast {
		opts = append(opts, migrate.WithFailFast())
	}
	if !flags.jsonOutput {
		opts = append(opts, migrate.WithOnOutcome(func(index int, outcome migrate.Outcome) {
			printMu.Lock()
			defer printMu.Unlock()
			printOutcome(outcome)
		}))
	}

	m, err := migrate.New(migrate.Config{
		SourceURL:    srcURL,
		SourceAPIKey: getSourceAPIKey(),
		TargetURL:    tgtURL,
		TargetAPIKey: getTargetAPIKey(),
	}, opts...)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !flags.jsonOutput {
		fmt.Printf("Migrating %d contract(s)\n", len(addresses))
		fmt.Printf("  Source: %s\n", srcURL)
		fmt.Printf("  Target: %s\n", tgtURL)
		fmt.Println()
	}

	startedAt := time.Now().UTC()
	report, err := m.Migrate(ctx, addresses)
	if err != nil {
		return err
	}
	elapsed := time.Since(startedAt)

	batchID := recordJournal(cfg, flags, logger, report, srcURL, tgtURL, startedAt)

	if flags.jsonOutput {
		return printJSONReport(report, batchID, startedAt, elapsed)
	}

	printSummary(report, elapsed, batchID)

	if verified, already, failed := report.Counts(); failed > 0 {
		return fmt.Errorf("%d of %d contract(s) failed to migrate (%d verified, %d already verified)",
			failed, len(report.Outcomes), verified, already)
	}
	return nil
}

func printOutcome(o migrate.Outcome) {
	switch o.Status {
	case migrate.StatusVerified:
		fmt.Printf("✅ %s verified (%d polls, %s)\n", o.Address, o.Polls, o.Elapsed.Round(100*time.Millisecond))
	case migrate.StatusAlreadyVerified:
		fmt.Printf("✅ %s already verified on target\n", o.Address)
	case migrate.StatusSourceNotFound:
		fmt.Printf("⚠️  %s not verified on source explorer\n", o.Address)
	case migrate.StatusExhausted:
		fmt.Printf("⚠️  %s gave up: %s\n", o.Address, o.Reason)
	default:
		fmt.Printf("❌ %s failed: %s\n", o.Address, o.Reason)
	}
}

func printSummary(report *migrate.Report, elapsed time.Duration, batchID string) {
	verified, already, failed := report.Counts()

	fmt.Println()
	if failed == 0 {
		fmt.Printf("✅ Migration complete: %d verified, %d already verified (%d total) in %s\n",
			verified, already, len(report.Outcomes), elapsed.Round(100*time.Millisecond))
	} else {
		fmt.Printf("❌ Migration finished with failures: %d verified, %d already verified, %d failed (%d total) in %s\n",
			verified, already, failed, len(report.Outcomes), elapsed.Round(100*time.Millisecond))
	}
	if batchID != "" {
		fmt.Printf("   Recorded as batch %s (veriport history %s)\n", batchID, shortID(batchID))
	}
}

// recordJournal persists the run. Journal problems are reported as
// warnings; they never fail a migration that already happened.
func recordJournal(cfg *config.Config, flags migrateFlags, logger *slog.Logger, report *migrate.Report, srcURL, tgtURL string, startedAt time.Time) string {
	if flags.noJournal {
		return ""
	}
	location := flags.journalURL
	if location == "" {
		if !cfg.Journal.Enabled {
			return ""
		}
		location = cfg.Journal.URL
	}

	store, err := journal.New(journal.ConfigFromURL(location), logger)
	if err != nil {
		logger.Warn("journal unavailable", "error", err)
		fmt.Fprintf(os.Stderr, "⚠️  Journal unavailable: %v\n", err)
		return ""
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.Migrate(ctx); err != nil {
		logger.Warn("journal migration failed", "error", err)
		fmt.Fprintf(os.Stderr, "⚠️  Journal unavailable: %v\n", err)
		return ""
	}

	verified, already, failed := report.Counts()
	batch := &journal.Batch{
		SourceURL:       srcURL,
		TargetURL:       tgtURL,
		Total:           len(report.Outcomes),
		Verified:        verified,
		AlreadyVerified: already,
		Failed:          failed,
		StartedAt:       startedAt.Format(time.RFC3339),
	}
	entries := make([]journal.Entry, len(report.Outcomes))
	for i, o := range report.Outcomes {
		entries[i] = journal.Entry{
			Position:  i,
			Address:   o.Address,
			Status:    string(o.Status),
			Reason:    o.Reason,
			Polls:     o.Polls,
			ElapsedMS: o.Elapsed.Milliseconds(),
		}
	}

	if err := store.RecordBatch(ctx, batch, entries); err != nil {
		logger.Warn("journal write failed", "error", err)
		fmt.Fprintf(os.Stderr, "⚠️  Journal write failed: %v\n", err)
		return ""
	}
	return batch.ID
}

func printJSONReport(report *migrate.Report, batchID string, startedAt time.Time, elapsed time.Duration) error {
	verified, already, failed := report.Counts()

	type jsonOutcome struct {
		Address   string `json:"address"`
		Status    string `json:"status"`
		Reason    string `json:"reason,omitempty"`
		Polls     int    `json:"polls"`
		ElapsedMS int64  `json:"elapsed_ms"`
	}
	out := struct {
		BatchID         string        `json:"batch_id,omitempty"`
		StartedAt       string        `json:"started_at"`
		ElapsedMS       int64         `json:"elapsed_ms"`
		Total           int           `json:"total"`
		Verified        int           `json:"verified"`
		AlreadyVerified int           `json:"already_verified"`
		Failed          int           `json:"failed"`
		Outcomes        []jsonOutcome `json:"outcomes"`
	}{
		BatchID:         batchID,
		StartedAt:       startedAt.Format(time.RFC3339),
		ElapsedMS:       elapsed.Milliseconds(),
		Total:           len(report.Outcomes),
		Verified:        verified,
		AlreadyVerified: already,
		Failed:          failed,
	}
	for _, o := range report.Outcomes {
		out.Outcomes = append(out.Outcomes, jsonOutcome{
			Address:   o.Address,
			Status:    string(o.Status),
			Reason:    o.Reason,
			Polls:     o.Polls,
			ElapsedMS: o.Elapsed.Milliseconds(),
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d contract(s) failed to migrate", failed, len(report.Outcomes))
	}
	return nil
}

func serveMetrics(addr string, logger *slog.Logger) {
	r := chi.NewRouter()
	r.Handle("/metrics", metrics.Handler())
	healthz := func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	}
	r.Get("/health", healthz)
	r.Get("/healthz", healthz)

	logger.Info("metrics listening", "addr", addr)
	if err := http.ListenAndServe(addr, r); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server failed", "error", err)
	}
}

// readAddressFile reads one address per line, skipping blanks and #
// comments.
func readAddressFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var addresses []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		addresses = append(addresses, line)
	}
	return addresses, scanner.Err()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
