package ingestion

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmarketwatch/internal/clock"
	"cloudmarketwatch/internal/storage"
	"cloudmarketwatch/internal/storage/memory"
)

// fakeLock is an in-process RunLock with configurable outcomes.
type fakeLock struct {
	held       bool
	acquireErr error
	releaseErr error
	acquires   int
	releases   int
}

func (l *fakeLock) TryAcquire(_ context.Context) (bool, error) {
	l.acquires++
	if l.acquireErr != nil {
		return false, l.acquireErr
	}
	if l.held {
		return false, nil
	}
	l.held = true
	return true, nil
}

func (l *fakeLock) Release(_ context.Context) error {
	l.releases++
	l.held = false
	return l.releaseErr
}

// countingSource wraps fakeSource and records the requested windows.
type countingSource struct {
	fakeSource
	starts []time.Time
	ends   []time.Time
}

func (s *countingSource) DescribeSpotPriceHistory(ctx context.Context, region string, start, end time.Time, nextToken string) (*PricePage, error) {
	s.starts = append(s.starts, start)
	s.ends = append(s.ends, end)
	return s.fakeSource.DescribeSpotPriceHistory(ctx, region, start, end, nextToken)
}

var runNow = time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)

func newCoordinator(store storage.Store, source SpotPriceSource, runLock *fakeLock, opts func(*CoordinatorOptions)) *RunCoordinator {
	o := CoordinatorOptions{
		Store:    store,
		Source:   source,
		Lock:     runLock,
		Platform: "aws",
		Regions:  []string{"us-east-1"},
		Clock:    clock.NewFake(runNow),
	}
	if opts != nil {
		opts(&o)
	}
	return NewRunCoordinator(o)
}

func TestRunEndToEnd(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	runLock := &fakeLock{}

	// Three records: two in window across two product triples, one before
	// the window start.
	source := &countingSource{fakeSource: fakeSource{pages: map[string]*PricePage{
		"": {Records: []PriceRecord{
			record("2024-03-02*10:00:00+00:00", "0.0034", "us-east-1a", "m5.large", "Linux/UNIX"),
			record("2024-03-03*11:00:00+00:00", "0.0120", "us-east-1b", "m5.large", "Windows"),
			record("2024-02-20*09:00:00+00:00", "0.0050", "us-east-1a", "m5.large", "Linux/UNIX"),
		}},
	}}}

	coordinator := newCoordinator(store, source, runLock, nil)
	result, err := coordinator.Run(ctx)
	require.NoError(t, err)

	assert.False(t, result.Skipped)
	assert.Equal(t, 1, result.Regions)
	assert.Equal(t, 2, result.Ingested)
	assert.Equal(t, 1, result.Filtered)
	assert.Equal(t, 2, result.NewProducts)
	assert.True(t, result.WindowEnd.Equal(runNow))
	assert.True(t, result.WindowStart.Equal(runNow.Add(-DefaultLookback)))

	// No prior checkpoint, so the source was asked for now minus lookback.
	require.NotEmpty(t, source.starts)
	assert.True(t, source.starts[0].Equal(runNow.Add(-DefaultLookback)))

	products, err := store.Products().GetByPlatform(ctx, "aws")
	require.NoError(t, err)
	assert.Len(t, products, 2)

	prices, err := store.Prices().GetByTimeRange(ctx, runNow.Add(-DefaultLookback), runNow)
	require.NoError(t, err)
	assert.Len(t, prices, 2)

	cp, err := store.Runs().GetLatest(ctx)
	require.NoError(t, err)
	assert.True(t, cp.Date.Equal(runNow))

	assert.Equal(t, 1, runLock.acquires)
	assert.Equal(t, 1, runLock.releases)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	source := &countingSource{fakeSource: fakeSource{pages: map[string]*PricePage{
		"": {Records: nil},
	}}}

	// First run establishes the checkpoint at runNow.
	coordinator := newCoordinator(store, source, &fakeLock{}, nil)
	_, err := coordinator.Run(ctx)
	require.NoError(t, err)

	// Second run starts exactly where the first ended.
	later := runNow.Add(6 * time.Hour)
	second := newCoordinator(store, source, &fakeLock{}, func(o *CoordinatorOptions) {
		o.Clock = clock.NewFake(later)
	})
	result, err := second.Run(ctx)
	require.NoError(t, err)

	assert.True(t, result.WindowStart.Equal(runNow))
	assert.True(t, result.WindowEnd.Equal(later))
}

func TestRunSkipsWhenLockHeld(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	source := &fakeSource{pages: map[string]*PricePage{"": {}}}
	runLock := &fakeLock{held: true}

	coordinator := newCoordinator(store, source, runLock, nil)
	result, err := coordinator.Run(ctx)
	require.NoError(t, err)

	assert.True(t, result.Skipped)
	assert.Equal(t, 0, source.requests)
	assert.Equal(t, 0, runLock.releases, "a lock we never held must not be released")

	// Nothing was persisted.
	_, err = store.Runs().GetLatest(ctx)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRunRollsBackOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	store.FailAfterPriceInserts(1)

	source := &fakeSource{pages: map[string]*PricePage{
		"": {Records: []PriceRecord{
			record("2024-03-02*10:00:00+00:00", "0.0034", "us-east-1a", "m5.large", "Linux/UNIX"),
			record("2024-03-03*11:00:00+00:00", "0.0120", "us-east-1b", "c5.large", "Linux/UNIX"),
		}},
	}}

	runLock := &fakeLock{}
	coordinator := newCoordinator(store, source, runLock, func(o *CoordinatorOptions) {
		o.BatchSize = 1
	})
	_, err := coordinator.Run(ctx)
	require.Error(t, err)

	// The failed run left no products, prices or checkpoint behind.
	products, perr := store.Products().GetByPlatform(ctx, "aws")
	require.NoError(t, perr)
	assert.Empty(t, products)

	prices, perr := store.Prices().GetByTimeRange(ctx, runNow.Add(-DefaultLookback), runNow)
	require.NoError(t, perr)
	assert.Empty(t, prices)

	_, cerr := store.Runs().GetLatest(ctx)
	assert.ErrorIs(t, cerr, storage.ErrNotFound)

	// The lock was still released.
	assert.Equal(t, 1, runLock.releases)
}

func TestRunNoCheckpointOnSourceFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	source := &fakeSource{err: errors.New("api unavailable")}
	runLock := &fakeLock{}

	coordinator := newCoordinator(store, source, runLock, nil)
	_, err := coordinator.Run(ctx)
	require.Error(t, err)

	_, cerr := store.Runs().GetLatest(ctx)
	assert.ErrorIs(t, cerr, storage.ErrNotFound)
	assert.Equal(t, 1, runLock.releases)
}

func TestRunSurfacesReleaseFailure(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	source := &fakeSource{pages: map[string]*PricePage{"": {}}}
	runLock := &fakeLock{releaseErr: errors.New("lock backend down")}

	coordinator := newCoordinator(store, source, runLock, nil)
	_, err := coordinator.Run(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lock backend down")
}

func TestRunAcquireErrorIsFatal(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	source := &fakeSource{pages: map[string]*PricePage{"": {}}}
	runLock := &fakeLock{acquireErr: errors.New("lock backend down")}

	coordinator := newCoordinator(store, source, runLock, nil)
	_, err := coordinator.Run(ctx)
	require.Error(t, err)
	assert.Equal(t, 0, runLock.releases)
}

func TestRunRegionBlacklistAndDedup(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	source := &fakeSource{pages: map[string]*PricePage{"": {}}}

	coordinator := newCoordinator(store, source, &fakeLock{}, func(o *CoordinatorOptions) {
		o.Regions = []string{"us-east-1", "eu-west-1", "us-east-1", "ap-south-1", ""}
		o.RegionBlacklist = []string{"eu-west-1"}
	})
	result, err := coordinator.Run(ctx)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Regions)
	assert.Equal(t, 2, source.requests)
}

// fakeAnalytics records mirrored rows.
type fakeAnalytics struct {
	rows []*storage.PriceAnalyticsRow
	err  error
}

func (f *fakeAnalytics) InsertBulk(_ context.Context, rows []*storage.PriceAnalyticsRow) error {
	if f.err != nil {
		return f.err
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func TestRunMirrorsToAnalytics(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	analytics := &fakeAnalytics{}

	source := &fakeSource{pages: map[string]*PricePage{
		"": {Records: []PriceRecord{
			record("2024-03-02*10:00:00+00:00", "0.0034", "us-east-1a", "m5.large", "Linux/UNIX"),
		}},
	}}

	coordinator := newCoordinator(store, source, &fakeLock{}, func(o *CoordinatorOptions) {
		o.Analytics = analytics
	})
	_, err := coordinator.Run(ctx)
	require.NoError(t, err)

	require.Len(t, analytics.rows, 1)
	row := analytics.rows[0]
	assert.Equal(t, "aws", row.Platform)
	assert.Equal(t, "m5.large", row.InstanceType)
	assert.Equal(t, "Linux/UNIX", row.DistributionType)
	assert.Equal(t, int64(3400), row.Price)
}

func TestRunMirrorFailureDoesNotFailRun(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()
	analytics := &fakeAnalytics{err: errors.New("sink down")}

	source := &fakeSource{pages: map[string]*PricePage{
		"": {Records: []PriceRecord{
			record("2024-03-02*10:00:00+00:00", "0.0034", "us-east-1a", "m5.large", "Linux/UNIX"),
		}},
	}}

	coordinator := newCoordinator(store, source, &fakeLock{}, func(o *CoordinatorOptions) {
		o.Analytics = analytics
	})
	result, err := coordinator.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Ingested)

	// The run committed despite the mirror failure.
	cp, cerr := store.Runs().GetLatest(ctx)
	require.NoError(t, cerr)
	assert.True(t, cp.Date.Equal(runNow))
}
