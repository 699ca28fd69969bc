// Package journal persists migration batches and their per-address
// outcomes so past runs can be inspected later.
package journal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrNotFound is returned when a batch does not exist
var ErrNotFound = errors.New("not found")

// Batch is one recorded migration run
type Batch struct {
	ID              string `json:"id"`
	SourceURL       string `json:"source_url"`
	TargetURL       string `json:"target_url"`
	Total           int    `json:"total"`
	Verified        int    `json:"verified"`
	AlreadyVerified int    `json:"already_verified"`
	Failed          int    `json:"failed"`
	StartedAt       string `json:"started_at"`
	FinishedAt      string `json:"finished_at"`
}

// Entry is the outcome for a single address within a batch. Position
// preserves the order addresses were given in.
type Entry struct {
	BatchID   string `json:"batch_id"`
	Position  int    `json:"position"`
	Address   string `json:"address"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	Polls     int    `json:"polls"`
	ElapsedMS int64  `json:"elapsed_ms"`
}

// Store is the journal persistence interface
type Store interface {
	// RecordBatch writes a batch and its entries atomically. A missing
	// batch ID is filled in with a generated one.
	RecordBatch(ctx context.Context, batch *Batch, entries []Entry) error

	// GetBatch retrieves a batch by ID
	GetBatch(ctx context.Context, id string) (*Batch, error)

	// ListBatches lists the most recent batches, newest first
	ListBatches(ctx context.Context, limit int) ([]Batch, error)

	// ListEntries lists a batch's entries in input order
	ListEntries(ctx context.Context, batchID string) ([]Entry, error)

	// Migrate runs schema migrations
	Migrate(ctx context.Context) error

	// Close closes the store
	Close() error
}

// Config holds journal backend configuration
type Config struct {
	Backend string // "sqlite" or "postgres"
	Path    string // SQLite database file path
	URL     string // Postgres connection URL
}

// ConfigFromURL derives a Config from a single location string: a
// postgres:// URL selects the postgres backend, anything else is
// treated as a SQLite file path.
func ConfigFromURL(raw string) Config {
	if strings.HasPrefix(raw, "postgres://") || strings.HasPrefix(raw, "postgresql://") {
		return Config{Backend: "postgres", URL: raw}
	}
	return Config{Backend: "sqlite", Path: raw}
}

// New creates a journal store based on configuration
func New(cfg Config, logger *slog.Logger) (Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return NewSQLiteStore(cfg.Path, logger)
	case "postgres":
		return NewPostgresStore(cfg.URL, logger)
	default:
		return nil, fmt.Errorf("unsupported journal backend: %s", cfg.Backend)
	}
}
