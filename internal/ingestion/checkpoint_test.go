package ingestion

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/storage/memory"
)

func TestLastRunEndFallsBackToLookback(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

	start, err := LastRunEnd(ctx, store.Runs(), now, 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, start.Equal(now.Add(-7*24*time.Hour)))
}

func TestLastRunEndUsesLatestCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	runs := store.Runs()

	older := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	require.NoError(t, runs.Insert(ctx, &domain.RunCheckpoint{Date: newer}))
	require.NoError(t, runs.Insert(ctx, &domain.RunCheckpoint{Date: older}))

	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	start, err := LastRunEnd(ctx, runs, now, 7*24*time.Hour)
	require.NoError(t, err)
	assert.True(t, start.Equal(newer), "got %v, want %v", start, newer)
}

func TestLastRunEndTieBreaksOnHighestID(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	runs := store.Runs()

	date := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	first := &domain.RunCheckpoint{Date: date}
	second := &domain.RunCheckpoint{Date: date}
	require.NoError(t, runs.Insert(ctx, first))
	require.NoError(t, runs.Insert(ctx, second))

	latest, err := runs.GetLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestRecordRunStagesCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	end := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	require.NoError(t, RecordRun(ctx, store.Runs(), end))

	cp, err := store.Runs().GetLatest(ctx)
	require.NoError(t, err)
	assert.True(t, cp.Date.Equal(end))
}
