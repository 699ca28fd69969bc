package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating journal directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	schema := `
	-- Migration batches
	CREATE TABLE IF NOT EXISTS batches (
		id TEXT PRIMARY KEY,
		source_url TEXT NOT NULL,
		target_url TEXT NOT NULL,
		total INTEGER NOT NULL,
		verified INTEGER NOT NULL,
		already_verified INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		started_at TEXT NOT NULL,
		finished_at TEXT NOT NULL DEFAULT (datetime('now'))
	);

	-- Per-address outcomes
	CREATE TABLE IF NOT EXISTS entries (
		batch_id TEXT NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		address TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		polls INTEGER NOT NULL DEFAULT 0,
		elapsed_ms INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (batch_id, position)
	);

	-- Indexes
	CREATE INDEX IF NOT EXISTS idx_batches_started_at ON batches(started_at);
	CREATE INDEX IF NOT EXISTS idx_entries_address ON entries(address);
	`

	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.logger.Info("journal migrations complete")
	return nil
}

// RecordBatch writes a batch and its entries in one transaction
func (s *SQLiteStore) RecordBatch(ctx context.Context, batch *Batch, entries []Entry) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO batches (id, source_url, target_url, total, verified, already_verified, failed, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
	`
	if _, err := tx.ExecContext(ctx, query, batch.ID, batch.SourceURL, batch.TargetURL, batch.Total, batch.Verified, batch.AlreadyVerified, batch.Failed, batch.StartedAt); err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}

	entryQuery := `
		INSERT INTO entries (batch_id, position, address, status, reason, polls, elapsed_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for i := range entries {
		e := &entries[i]
		if _, err := tx.ExecContext(ctx, entryQuery, batch.ID, e.Position, e.Address, e.Status, e.Reason, e.Polls, e.ElapsedMS); err != nil {
			return fmt.Errorf("inserting entry %d: %w", e.Position, err)
		}
	}

	return tx.Commit()
}

// GetBatch retrieves a batch by ID
func (s *SQLiteStore) GetBatch(ctx context.Context, id string) (*Batch, error) {
	query := `
		SELECT id, source_url, target_url, total, verified, already_verified, failed, started_at, finished_at
		FROM batches
		WHERE id = ?
	`
	var b Batch
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&b.ID, &b.SourceURL, &b.TargetURL, &b.Total, &b.Verified, &b.AlreadyVerified, &b.Failed, &b.StartedAt, &b.FinishedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return &b, err
}

// ListBatches lists the most recent batches
func (s *SQLiteStore) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	query := `
		SELECT id, source_url, target_url, total, verified, already_verified, failed, started_at, finished_at
		FROM batches
		ORDER BY started_at DESC, id
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var batches []Batch
	for rows.Next() {
		var b Batch
		if err := rows.Scan(&b.ID, &b.SourceURL, &b.TargetURL, &b.Total, &b.Verified, &b.AlreadyVerified, &b.Failed, &b.StartedAt, &b.FinishedAt); err != nil {
			return nil, err
		}
		batches = append(batches, b)
	}
	return batches, rows.Err()
}

// ListEntries lists a batch's entries in input order
func (s *SQLiteStore) ListEntries(ctx context.Context, batchID string) ([]Entry, error) {
	query := `
		SELECT batch_id, position, address, status, reason, polls, elapsed_ms
		FROM entries
		WHERE batch_id = ?
		ORDER BY position
	`
	rows, err := s.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.BatchID, &e.Position, &e.Address, &e.Status, &e.Reason, &e.Polls, &e.ElapsedMS); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
