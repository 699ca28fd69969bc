package journal

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore creates a new Postgres store
func NewPostgresStore(url string, logger *slog.Logger) (*PostgresStore, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Migrate runs database migrations
func (s *PostgresStore) Migrate(ctx context.Context) error {
	schema := `
	-- Migration batches
	CREATE TABLE IF NOT EXISTS batches (
		id UUID PRIMARY KEY,
		source_url TEXT NOT NULL,
		target_url TEXT NOT NULL,
		total INTEGER NOT NULL,
		verified INTEGER NOT NULL,
		already_verified INTEGER NOT NULL,
		failed INTEGER NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	-- Per-address outcomes
	CREATE TABLE IF NOT EXISTS entries (
		batch_id UUID NOT NULL REFERENCES batches(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		address TEXT NOT NULL,
		status TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		polls INTEGER NOT NULL DEFAULT 0,
		elapsed_ms BIGINT NOT NULL DEFAULT 0,
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
func (s *PostgresStore) RecordBatch(ctx context.Context, batch *Batch, entries []Entry) error {
	if batch.ID == "" {
		batch.ID = uuid.New().String()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO batches (id, source_url, target_url, total, verified, already_verified, failed, started_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := tx.ExecContext(ctx, query, batch.ID, batch.SourceURL, batch.TargetURL, batch.Total, batch.Verified, batch.AlreadyVerified, batch.Failed, batch.StartedAt); err != nil {
		return fmt.Errorf("inserting batch: %w", err)
	}

	entryQuery := `
		INSERT INTO entries (batch_id, position, address, status, reason, polls, elapsed_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for i := range entries {
		e := &entries[i]
		if _, err := tx.ExecContext(ctx, entryQuery, batch.ID, e.Position, e.Address, e.Status, e.Reason, e.Polls, e.ElapsedMS); err != nil {
			return fmt.Errorf("inserting entry %d: %w", e.Position, err)
		}
	}

	return tx.Commit()
}

// GetBatch retrieves a batch by ID. The text comparison keeps lookups
// with malformed IDs on the ErrNotFound path instead of a cast error.
func (s *PostgresStore) GetBatch(ctx context.Context, id string) (*Batch, error) {
	query := `
		SELECT id, source_url, target_url, total, verified, already_verified, failed, started_at::text, finished_at::text
		FROM batches
		WHERE id::text = $1
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
func (s *PostgresStore) ListBatches(ctx context.Context, limit int) ([]Batch, error) {
	query := `
		SELECT id, source_url, target_url, total, verified, already_verified, failed, started_at::text, finished_at::text
		FROM batches
		ORDER BY started_at DESC, id
		LIMIT $1
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
func (s *PostgresStore) ListEntries(ctx context.Context, batchID string) ([]Entry, error) {
	query := `
		SELECT batch_id, position, address, status, reason, polls, elapsed_ms
		FROM entries
		WHERE batch_id = $1
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
