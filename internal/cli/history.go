package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/veriport/veriport/internal/config"
	"github.com/veriport/veriport/internal/journal"
)

func createHistoryCmd() *cobra.Command {
	var limit int
	var jsonOutput bool
	var journalURL string

	cmd := &cobra.Command{
		Use:   "history [batch-id]",
		Short: "Show past migration runs",
		Long: `List recorded migration batches, or show the per-address outcomes
of a specific batch.

Batch IDs may be abbreviated to a unique prefix.

EXAMPLES:
  # List recent batches
  veriport history

  # Show one batch in detail
  veriport history 1a2b3c4d

  # Output as JSON
  veriport history --json
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openJournal(journalURL)
			if err != nil {
				return err
			}
			defer store.Close()

			if len(args) == 1 {
				return showBatch(store, args[0], jsonOutput)
			}
			return listBatches(store, limit, jsonOutput)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "number of batches to show")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	cmd.Flags().StringVar(&journalURL, "journal", "", "journal location (SQLite path or postgres:// URL)")

	return cmd
}

func openJournal(journalURL string) (journal.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	location := journalURL
	if location == "" {
		location = cfg.Journal.URL
	}

	store, err := journal.New(journal.ConfigFromURL(location), buildLogger(cfg))
	if err != nil {
		return nil, fmt.Errorf("opening journal: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("preparing journal: %w", err)
	}
	return store, nil
}

func listBatches(store journal.Store, limit int, jsonOutput bool) error {
	ctx := context.Background()

	batches, err := store.ListBatches(ctx, limit)
	if err != nil {
		return fmt.Errorf("failed to list batches: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"batches": batches,
			"count":   len(batches),
		})
	}

	if len(batches) == 0 {
		fmt.Println("No migration batches recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSOURCE\tTARGET\tTOTAL\tOK\tFAILED")
	for _, b := range batches {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\t%d\n",
			shortID(b.ID), b.StartedAt, hostOf(b.SourceURL), hostOf(b.TargetURL),
			b.Total, b.Verified+b.AlreadyVerified, b.Failed)
	}
	w.Flush()

	return nil
}

func showBatch(store journal.Store, idPrefix string, jsonOutput bool) error {
	ctx := context.Background()

	batch, err := resolveBatch(ctx, store, idPrefix)
	if err != nil {
		return err
	}

	entries, err := store.ListEntries(ctx, batch.ID)
	if err != nil {
		return fmt.Errorf("failed to load batch entries: %w", err)
	}

	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"batch":   batch,
			"entries": entries,
		})
	}

	fmt.Printf("Batch %s\n", batch.ID)
	fmt.Printf("  Started:  %s\n", batch.StartedAt)
	fmt.Printf("  Finished: %s\n", batch.FinishedAt)
	fmt.Printf("  Source:   %s\n", batch.SourceURL)
	fmt.Printf("  Target:   %s\n", batch.TargetURL)
	fmt.Printf("  Result:   %d verified, %d already verified, %d failed (%d total)\n",
		batch.Verified, batch.AlreadyVerified, batch.Failed, batch.Total)
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ADDRESS\tSTATUS\tPOLLS\tELAPSED\tREASON")
	for _, e := range entries {
		elapsed := time.Duration(e.ElapsedMS) * time.Millisecond
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
			e.Address, e.Status, e.Polls, elapsed.Round(100*time.Millisecond), e.Reason)
	}
	w.Flush()

	return nil
}

// resolveBatch finds a batch by full ID or unique prefix
func resolveBatch(ctx context.Context, store journal.Store, idPrefix string) (*journal.Batch, error) {
	batch, err := store.GetBatch(ctx, idPrefix)
	if err == nil {
		return batch, nil
	}
	if !errors.Is(err, journal.ErrNotFound) {
		return nil, fmt.Errorf("failed to load batch: %w", err)
	}

	// Not a full ID, try prefix matching over recent batches
	batches, err := store.ListBatches(ctx, 1000)
	if err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	var match *journal.Batch
	for i := range batches {
		if strings.HasPrefix(batches[i].ID, idPrefix) {
			if match != nil {
				return nil, fmt.Errorf("batch ID prefix %q is ambiguous", idPrefix)
			}
			match = &batches[i]
		}
	}
	if match == nil {
		return nil, fmt.Errorf("batch not found: %s", idPrefix)
	}
	return match, nil
}

// hostOf trims a URL down to its host for table display
func hostOf(rawURL string) string {
	s := rawURL
	if i := strings.Index(s, "://"); i != -1 {
		s = s[i+3:]
	}
	if i := strings.IndexAny(s, "/?"); i != -1 {
		s = s[:i]
	}
	return s
}
