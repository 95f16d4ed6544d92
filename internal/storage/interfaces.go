package storage

import (
	"context"
	"time"

	"cloudmarketwatch/internal/domain"
)

// ProductStore provides access to product storage.
type ProductStore interface {
	// Insert adds a new product and assigns its ID. Returns ErrDuplicateKey
	// if the (platform, instance_type, distribution_type) triple exists.
	Insert(ctx context.Context, p *domain.Product) error

	// GetByPlatform retrieves all products for a platform.
	GetByPlatform(ctx context.Context, platform string) ([]*domain.Product, error)
}

// PriceHistoryStore provides access to price_history storage.
type PriceHistoryStore interface {
	// InsertBulk adds multiple observations. When obtained from a Tx the
	// batch is staged inside that transaction; it is not durable until the
	// transaction commits.
	InsertBulk(ctx context.Context, obs []*domain.PriceObservation) error

	// GetByTimeRange retrieves observations with start < date <= end,
	// ordered by date ASC, id ASC.
	GetByTimeRange(ctx context.Context, start, end time.Time) ([]*domain.PriceObservation, error)

	// GetByProductID retrieves all observations for a product, ordered by date ASC.
	GetByProductID(ctx context.Context, productID int64) ([]*domain.PriceObservation, error)
}

// RunHistoryStore provides access to run_history storage.
type RunHistoryStore interface {
	// Insert adds a new run checkpoint and assigns its ID.
	Insert(ctx context.Context, cp *domain.RunCheckpoint) error

	// GetLatest returns the checkpoint with the maximum date, ties broken by
	// highest id. Returns ErrNotFound if no run has completed yet.
	GetLatest(ctx context.Context) (*domain.RunCheckpoint, error)
}

// Tx is a transaction-scoped view of the store. Stores obtained from a Tx
// stage their writes inside the transaction; nothing is durable until Commit.
type Tx interface {
	Products() ProductStore
	Prices() PriceHistoryStore
	Runs() RunHistoryStore

	// Commit makes all staged writes durable atomically.
	Commit(ctx context.Context) error

	// Rollback discards staged writes. Safe to call after Commit (no-op),
	// so callers can unconditionally defer it.
	Rollback(ctx context.Context) error
}

// Store is the persistence entry point. Direct accessors auto-commit each
// call; Begin opens a transaction spanning multiple operations.
type Store interface {
	Begin(ctx context.Context) (Tx, error)

	Products() ProductStore
	Prices() PriceHistoryStore
	Runs() RunHistoryStore
}

// PriceAnalyticsRow is a denormalized price observation for the analytics
// mirror. Mirror writes happen outside the run transaction and are
// best-effort; the sink must tolerate duplicates.
type PriceAnalyticsRow struct {
	Platform         string
	InstanceType     string
	DistributionType string
	AvailabilityZone string
	Date             time.Time
	Price            int64
}

// PriceAnalyticsStore mirrors committed price observations to an analytics sink.
type PriceAnalyticsStore interface {
	InsertBulk(ctx context.Context, rows []*PriceAnalyticsRow) error
}
