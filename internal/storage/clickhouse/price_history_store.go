package clickhouse

import (
	"context"
	"fmt"
	"time"

	"cloudmarketwatch/internal/storage"
)

// PriceHistoryStore implements storage.PriceAnalyticsStore using ClickHouse.
// The backing table is a ReplacingMergeTree keyed by the full denormalized
// row, so duplicate mirror writes collapse during merges.
type PriceHistoryStore struct {
	conn *Conn
}

// NewPriceHistoryStore creates a new ClickHouse price history store.
func NewPriceHistoryStore(conn *Conn) *PriceHistoryStore {
	return &PriceHistoryStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceAnalyticsStore = (*PriceHistoryStore)(nil)

// InsertBulk appends denormalized price rows.
func (s *PriceHistoryStore) InsertBulk(ctx context.Context, rows []*storage.PriceAnalyticsRow) error {
	if len(rows) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO spot_price_history (
			platform, instance_type, distribution_type, availability_zone, date, price
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range rows {
		err = batch.Append(
			r.Platform, r.InstanceType, r.DistributionType,
			r.AvailabilityZone, r.Date.UTC(), r.Price,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByTimeRange retrieves mirrored rows with start < date <= end,
// ordered by date ASC. Used by integration tests and ad-hoc inspection.
func (s *PriceHistoryStore) GetByTimeRange(ctx context.Context, start, end time.Time) ([]*storage.PriceAnalyticsRow, error) {
	query := `
		SELECT platform, instance_type, distribution_type, availability_zone, date, price
		FROM spot_price_history
		WHERE date > ? AND date <= ?
		ORDER BY date ASC
	`

	rows, err := s.conn.Query(ctx, query, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	var result []*storage.PriceAnalyticsRow
	for rows.Next() {
		var r storage.PriceAnalyticsRow
		err := rows.Scan(
			&r.Platform, &r.InstanceType, &r.DistributionType,
			&r.AvailabilityZone, &r.Date, &r.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		result = append(result, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}

	return result, nil
}
