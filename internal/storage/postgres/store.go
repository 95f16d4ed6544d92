package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cloudmarketwatch/internal/storage"
)

// Store is the PostgreSQL implementation of storage.Store.
type Store struct {
	pool *Pool
}

// NewStore creates a new PostgreSQL store.
func NewStore(pool *Pool) *Store {
	return &Store{pool: pool}
}

var _ storage.Store = (*Store)(nil)

// Begin opens a transaction spanning product, price and run writes.
func (s *Store) Begin(ctx context.Context) (storage.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	return &Tx{tx: tx}, nil
}

// Products returns an auto-committing product store.
func (s *Store) Products() storage.ProductStore { return &ProductStore{db: s.pool} }

// Prices returns an auto-committing price history store.
func (s *Store) Prices() storage.PriceHistoryStore { return &PriceHistoryStore{db: s.pool} }

// Runs returns an auto-committing run history store.
func (s *Store) Runs() storage.RunHistoryStore { return &RunHistoryStore{db: s.pool} }

// Tx is a transaction-scoped view over a pgx transaction.
type Tx struct {
	tx pgx.Tx
}

var _ storage.Tx = (*Tx)(nil)

func (t *Tx) Products() storage.ProductStore    { return &ProductStore{db: t.tx} }
func (t *Tx) Prices() storage.PriceHistoryStore { return &PriceHistoryStore{db: t.tx} }
func (t *Tx) Runs() storage.RunHistoryStore     { return &RunHistoryStore{db: t.tx} }

// Commit makes all writes in the transaction durable.
func (t *Tx) Commit(ctx context.Context) error {
	if err := t.tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Rollback discards the transaction. No-op after Commit.
func (t *Tx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if err == nil || errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return fmt.Errorf("rollback tx: %w", err)
}
