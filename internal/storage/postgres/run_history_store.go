package postgres

import (
	"context"
	"fmt"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/storage"
)

// RunHistoryStore implements storage.RunHistoryStore using PostgreSQL.
type RunHistoryStore struct {
	db querier
}

// NewRunHistoryStore creates a new RunHistoryStore over the pool.
func NewRunHistoryStore(pool *Pool) *RunHistoryStore {
	return &RunHistoryStore{db: pool}
}

// Compile-time interface check.
var _ storage.RunHistoryStore = (*RunHistoryStore)(nil)

// Insert adds a new run checkpoint and assigns its ID.
func (s *RunHistoryStore) Insert(ctx context.Context, cp *domain.RunCheckpoint) error {
	if cp == nil || cp.Date.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO run_history (date)
		VALUES ($1)
		RETURNING id
	`

	if err := s.db.QueryRow(ctx, query, cp.Date).Scan(&cp.ID); err != nil {
		return fmt.Errorf("insert run checkpoint: %w", err)
	}
	return nil
}

// GetLatest returns the checkpoint with the maximum date, ties broken by
// highest id. Returns ErrNotFound if no run has completed yet.
func (s *RunHistoryStore) GetLatest(ctx context.Context) (*domain.RunCheckpoint, error) {
	query := `
		SELECT id, date
		FROM run_history
		ORDER BY date DESC, id DESC
		LIMIT 1
	`

	var cp domain.RunCheckpoint
	err := s.db.QueryRow(ctx, query).Scan(&cp.ID, &cp.Date)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get latest run checkpoint: %w", err)
	}

	return &cp, nil
}
