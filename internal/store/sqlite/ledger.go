package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/davidbz/roomgen/internal/domain"
	"github.com/davidbz/roomgen/internal/metrics"
)

const backend = "sqlite"

// Ledger stores cost entries in the cost_entries table.
type Ledger struct {
	db *sql.DB
}

// NewLedger migrates the database at cfg.Path and returns a ledger over it.
func NewLedger(cfg *Config) (*Ledger, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if err := MigrateUp(cfg.Path, cfg.BusyTimeout); err != nil {
		return nil, err
	}

	db, err := Open(cfg.Path, cfg.BusyTimeout)
	if err != nil {
		return nil, err
	}

	return &Ledger{db: db}, nil
}

// Close releases the database handle.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Append records one completed generation.
func (l *Ledger) Append(ctx context.Context, entry domain.CostEntry) error {
	if entry.UserID == "" {
		return errors.New("user id cannot be empty")
	}
	metrics.IncStoreOp(backend, "append")

	query := `
		INSERT INTO cost_entries (
			id, user_id, design_id, provider, model, images, cost, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := l.db.ExecContext(ctx, query,
		entry.ID,
		entry.UserID,
		entry.DesignID,
		entry.Provider,
		entry.Model,
		entry.Images,
		entry.Cost,
		entry.CreatedAt.UTC().UnixNano(),
	)
	if err != nil {
		metrics.IncError("sqlite_ledger", "append_error")
		return fmt.Errorf("failed to insert cost entry: %w", err)
	}

	return nil
}

// ListByUser returns the user's entries ordered by creation time.
func (l *Ledger) ListByUser(ctx context.Context, userID string) ([]domain.CostEntry, error) {
	metrics.IncStoreOp(backend, "list")

	query := `
		SELECT id, user_id, design_id, provider, model, images, cost, created_at
		FROM cost_entries
		WHERE user_id = ?
		ORDER BY created_at ASC`

	rows, err := l.db.QueryContext(ctx, query, userID)
	if err != nil {
		metrics.IncError("sqlite_ledger", "list_error")
		return nil, fmt.Errorf("failed to query cost entries: %w", err)
	}
	defer rows.Close()

	var entries []domain.CostEntry
	for rows.Next() {
		var (
			entry     domain.CostEntry
			createdAt int64
		)
		if err := rows.Scan(
			&entry.ID,
			&entry.UserID,
			&entry.DesignID,
			&entry.Provider,
			&entry.Model,
			&entry.Images,
			&entry.Cost,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan cost entry: %w", err)
		}
		entry.CreatedAt = time.Unix(0, createdAt).UTC()
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate cost entries: %w", err)
	}

	return entries, nil
}

// DeleteByUser removes every entry for a user.
func (l *Ledger) DeleteByUser(ctx context.Context, userID string) error {
	metrics.IncStoreOp(backend, "delete")

	if _, err := l.db.ExecContext(ctx, `DELETE FROM cost_entries WHERE user_id = ?`, userID); err != nil {
		metrics.IncError("sqlite_ledger", "delete_error")
		return fmt.Errorf("failed to delete cost entries: %w", err)
	}

	return nil
}

var _ domain.CostLedger = (*Ledger)(nil)
