package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/storage"
)

// PriceHistoryStore implements storage.PriceHistoryStore using PostgreSQL.
type PriceHistoryStore struct {
	db querier
}

// NewPriceHistoryStore creates a new PriceHistoryStore over the pool.
func NewPriceHistoryStore(pool *Pool) *PriceHistoryStore {
	return &PriceHistoryStore{db: pool}
}

// Compile-time interface check.
var _ storage.PriceHistoryStore = (*PriceHistoryStore)(nil)

// InsertBulk adds multiple observations through a single batched round trip.
// Inside the run transaction this stages the rows; durability comes from the
// surrounding commit.
func (s *PriceHistoryStore) InsertBulk(ctx context.Context, obs []*domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	query := `
		INSERT INTO price_history (product_id, date, price, availability_zone)
		VALUES ($1, $2, $3, $4)
	`

	batch := &pgx.Batch{}
	for _, o := range obs {
		if o == nil {
			return storage.ErrInvalidInput
		}
		batch.Queue(query, o.ProductID, o.Date, o.Price, o.AvailabilityZone)
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for range obs {
		if _, err := results.Exec(); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert price observation in bulk: %w", err)
		}
	}

	return nil
}

// GetByTimeRange retrieves observations with start < date <= end,
// ordered by date ASC, id ASC.
func (s *PriceHistoryStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.PriceObservation, error) {
	query := `
		SELECT id, product_id, date, price, availability_zone
		FROM price_history
		WHERE date > $1 AND date <= $2
		ORDER BY date ASC, id ASC
	`

	rows, err := s.db.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("get price history by time range: %w", err)
	}
	defer rows.Close()

	return scanPriceObservations(rows)
}

// GetByProductID retrieves all observations for a product, ordered by date ASC.
func (s *PriceHistoryStore) GetByProductID(ctx context.Context, productID int64) ([]*domain.PriceObservation, error) {
	query := `
		SELECT id, product_id, date, price, availability_zone
		FROM price_history
		WHERE product_id = $1
		ORDER BY date ASC, id ASC
	`

	rows, err := s.db.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("get price history by product: %w", err)
	}
	defer rows.Close()

	return scanPriceObservations(rows)
}

// scanPriceObservations scans multiple rows into a slice of PriceObservation.
func scanPriceObservations(rows pgx.Rows) ([]*domain.PriceObservation, error) {
	var obs []*domain.PriceObservation

	for rows.Next() {
		var o domain.PriceObservation

		err := rows.Scan(&o.ID, &o.ProductID, &o.Date, &o.Price, &o.AvailabilityZone)
		if err != nil {
			return nil, fmt.Errorf("scan price history row: %w", err)
		}

		obs = append(obs, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price history rows: %w", err)
	}

	return obs, nil
}
