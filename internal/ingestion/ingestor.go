package ingestion

import (
	"context"
	"fmt"
	"log"
	"time"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/observability"
	"cloudmarketwatch/internal/storage"
)

// DefaultBatchSize bounds staged observations between flushes.
const DefaultBatchSize = 100

// PriceIngestor drives the paginated fetch loop for one region: request a
// page, filter records to the query window, resolve products through the
// catalog and stage observations in bounded batches.
type PriceIngestor struct {
	source     SpotPriceSource
	prices     storage.PriceHistoryStore
	batchSize  int
	maxSkipped int
	onIngest   func(*domain.PriceObservation, *domain.Product)
	logger     *log.Logger
}

// IngestorOptions contains configuration for creating a PriceIngestor.
type IngestorOptions struct {
	Source SpotPriceSource
	Prices storage.PriceHistoryStore

	// BatchSize is the flush threshold for staged observations. Defaults
	// to DefaultBatchSize.
	BatchSize int

	// MaxSkipped aborts a region once more than this many records failed
	// to parse, on the theory that pervasive corruption means the source
	// contract changed. Zero means isolated bad records are skipped without
	// limit.
	MaxSkipped int

	// OnIngest is called for every staged observation, before the final
	// commit. Used for the analytics mirror.
	OnIngest func(*domain.PriceObservation, *domain.Product)

	Logger *log.Logger
}

// NewPriceIngestor creates a new PriceIngestor.
func NewPriceIngestor(opts IngestorOptions) *PriceIngestor {
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &PriceIngestor{
		source:     opts.Source,
		prices:     opts.Prices,
		batchSize:  batchSize,
		maxSkipped: opts.MaxSkipped,
		onIngest:   opts.OnIngest,
		logger:     logger,
	}
}

// RegionResult contains statistics from ingesting one region.
type RegionResult struct {
	Ingested int // observations staged for persistence
	Filtered int // records outside the query window
	Skipped  int // malformed records skipped
	Pages    int // source pages fetched
}

// IngestRegion pages through the source for one region and stages every
// in-window observation. The window is start-exclusive, end-inclusive:
// the previous run already ingested records at exactly start, and records
// after end belong to the next run.
func (i *PriceIngestor) IngestRegion(ctx context.Context, region string, start, end time.Time, catalog *ProductCatalog) (*RegionResult, error) {
	result := &RegionResult{}
	pending := make([]*domain.PriceObservation, 0, i.batchSize)

	nextToken := ""
	for {
		page, err := i.source.DescribeSpotPriceHistory(ctx, region, start, end, nextToken)
		if err != nil {
			return result, fmt.Errorf("describe spot price history for %s: %w", region, err)
		}
		result.Pages++
		observability.RecordPageFetched()

		for _, rec := range page.Records {
			obs, product, err := i.mapRecord(ctx, rec, catalog)
			if err != nil {
				return result, err
			}
			if obs == nil {
				result.Skipped++
				if i.maxSkipped > 0 && result.Skipped > i.maxSkipped {
					return result, fmt.Errorf("region %s: %d malformed records exceeds limit %d", region, result.Skipped, i.maxSkipped)
				}
				continue
			}

			// The source may return records outside the requested window.
			if !obs.Date.After(start) || obs.Date.After(end) {
				result.Filtered++
				observability.RecordFiltered(1)
				continue
			}

			pending = append(pending, obs)
			result.Ingested++
			if i.onIngest != nil {
				i.onIngest(obs, product)
			}

			if len(pending) >= i.batchSize {
				if err := i.flush(ctx, pending); err != nil {
					return result, err
				}
				pending = pending[:0]
			}
		}

		nextToken = page.NextToken
		if nextToken == "" {
			break
		}
	}

	if err := i.flush(ctx, pending); err != nil {
		return result, err
	}
	observability.RecordIngested(result.Ingested)

	return result, nil
}

// mapRecord converts a raw record into an observation. Malformed records
// yield (nil, nil, nil): logged and counted by the caller, never fatal.
func (i *PriceIngestor) mapRecord(ctx context.Context, rec PriceRecord, catalog *ProductCatalog) (*domain.PriceObservation, *domain.Product, error) {
	date, err := ParseSpotTimestamp(rec.Timestamp)
	if err != nil {
		i.logger.Printf("Skipping record (%s, %s): %v", rec.InstanceType, rec.AvailabilityZone, err)
		observability.RecordSkipped("timestamp")
		return nil, nil, nil
	}

	price, err := ScaleSpotPrice(rec.SpotPrice)
	if err != nil {
		i.logger.Printf("Skipping record (%s, %s): %v", rec.InstanceType, rec.AvailabilityZone, err)
		observability.RecordSkipped("price")
		return nil, nil, nil
	}

	product, err := catalog.Resolve(ctx, rec.InstanceType, rec.ProductDescription)
	if err != nil {
		return nil, nil, err
	}

	return &domain.PriceObservation{
		ProductID:        product.ID,
		Date:             date,
		Price:            price,
		AvailabilityZone: rec.AvailabilityZone,
	}, product, nil
}

// flush stages pending observations in the store and lets the caller clear
// its buffer. This bounds working-set memory; durability still waits for
// the run-level commit.
func (i *PriceIngestor) flush(ctx context.Context, pending []*domain.PriceObservation) error {
	if len(pending) == 0 {
		return nil
	}
	if err := i.prices.InsertBulk(ctx, pending); err != nil {
		return fmt.Errorf("flush %d price observations: %w", len(pending), err)
	}
	return nil
}
