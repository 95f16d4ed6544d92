package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/storage"
)

// LastRunEnd computes the start of the next query window: the most recent
// checkpoint's date, or now minus the default lookback when no run has
// completed yet.
func LastRunEnd(ctx context.Context, runs storage.RunHistoryStore, now time.Time, lookback time.Duration) (time.Time, error) {
	cp, err := runs.GetLatest(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return now.Add(-lookback), nil
		}
		return time.Time{}, fmt.Errorf("query last run checkpoint: %w", err)
	}
	return cp.Date, nil
}

// RecordRun stages a checkpoint marking the end of this run's window.
// Commit belongs to the coordinator so checkpoint visibility is atomic
// with the price data it describes.
func RecordRun(ctx context.Context, runs storage.RunHistoryStore, end time.Time) error {
	if err := runs.Insert(ctx, &domain.RunCheckpoint{Date: end}); err != nil {
		return fmt.Errorf("record run checkpoint: %w", err)
	}
	return nil
}
