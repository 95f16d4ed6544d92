package ingestion

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"cloudmarketwatch/internal/clock"
	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/lock"
	"cloudmarketwatch/internal/observability"
	"cloudmarketwatch/internal/storage"
)

// DefaultLookback is the query window when no checkpoint exists yet.
const DefaultLookback = 7 * 24 * time.Hour

// RunCoordinator orchestrates one ingestion run: single-instance lock,
// catalog load, window computation, per-region ingestion and the final
// checkpoint, all inside one transaction.
type RunCoordinator struct {
	store     storage.Store
	source    SpotPriceSource
	lock      lock.RunLock
	analytics storage.PriceAnalyticsStore

	platform   string
	regions    []string
	blacklist  []string
	batchSize  int
	lookback   time.Duration
	maxSkipped int

	clock  clock.Clock
	logger *log.Logger
}

// CoordinatorOptions contains configuration for creating a RunCoordinator.
type CoordinatorOptions struct {
	Store  storage.Store
	Source SpotPriceSource
	Lock   lock.RunLock

	// Analytics enables the post-commit ClickHouse mirror when non-nil.
	Analytics storage.PriceAnalyticsStore

	Platform        string
	Regions         []string
	RegionBlacklist []string
	BatchSize       int
	DefaultLookback time.Duration
	MaxSkipped      int

	Clock  clock.Clock
	Logger *log.Logger
}

// NewRunCoordinator creates a new RunCoordinator.
func NewRunCoordinator(opts CoordinatorOptions) *RunCoordinator {
	lookback := opts.DefaultLookback
	if lookback <= 0 {
		lookback = DefaultLookback
	}

	c := opts.Clock
	if c == nil {
		c = clock.Real{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &RunCoordinator{
		store:      opts.Store,
		source:     opts.Source,
		lock:       opts.Lock,
		analytics:  opts.Analytics,
		platform:   opts.Platform,
		regions:    opts.Regions,
		blacklist:  opts.RegionBlacklist,
		batchSize:  opts.BatchSize,
		lookback:   lookback,
		maxSkipped: opts.MaxSkipped,
		clock:      c,
		logger:     logger,
	}
}

// RunResult contains statistics from one run.
type RunResult struct {
	// Skipped is true when another instance held the run lock. Not an
	// error: overlapping schedules are expected.
	Skipped bool

	Regions        int
	Ingested       int
	Filtered       int
	SkippedRecords int
	NewProducts    int

	WindowStart time.Time
	WindowEnd   time.Time
	Duration    time.Duration
}

// Run executes one ingestion run. Everything between lock acquisition and
// commit is atomic: on any failure the transaction rolls back and no region
// data, product or checkpoint from this run stays durable. The lock is
// released on every exit path.
func (c *RunCoordinator) Run(ctx context.Context) (result *RunResult, err error) {
	started := time.Now()

	acquired, err := c.lock.TryAcquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !acquired {
		c.logger.Printf("Another update run is in progress, skipping")
		observability.RecordRun("skipped", time.Since(started).Seconds())
		return &RunResult{Skipped: true}, nil
	}
	defer func() {
		if rerr := c.lock.Release(ctx); rerr != nil {
			// A stuck lock blocks every future run.
			c.logger.Printf("CRITICAL: failed to release run lock: %v", rerr)
			if err == nil {
				err = rerr
			}
		}
	}()
	defer func() {
		status := "success"
		if err != nil {
			status = "failure"
		}
		observability.RecordRun(status, time.Since(started).Seconds())
	}()

	tx, err := c.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	catalog, err := LoadCatalog(ctx, tx.Products(), c.platform)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("Loaded %d products for platform %s", catalog.Size(), c.platform)

	end := c.clock.Now()
	start, err := LastRunEnd(ctx, tx.Runs(), end, c.lookback)
	if err != nil {
		return nil, err
	}
	c.logger.Printf("Query window: %s to %s", start.Format(time.RFC3339), end.Format(time.RFC3339))

	var mirror []*storage.PriceAnalyticsRow
	var onIngest func(*domain.PriceObservation, *domain.Product)
	if c.analytics != nil {
		onIngest = func(obs *domain.PriceObservation, p *domain.Product) {
			mirror = append(mirror, &storage.PriceAnalyticsRow{
				Platform:         p.Platform,
				InstanceType:     p.InstanceType,
				DistributionType: p.DistributionType,
				AvailabilityZone: obs.AvailabilityZone,
				Date:             obs.Date,
				Price:            obs.Price,
			})
		}
	}

	ingestor := NewPriceIngestor(IngestorOptions{
		Source:     c.source,
		Prices:     tx.Prices(),
		BatchSize:  c.batchSize,
		MaxSkipped: c.maxSkipped,
		OnIngest:   onIngest,
		Logger:     c.logger,
	})

	result = &RunResult{WindowStart: start, WindowEnd: end}
	for _, region := range c.activeRegions() {
		c.logger.Printf("Ingesting region %s", region)
		regionResult, err := ingestor.IngestRegion(ctx, region, start, end, catalog)
		if err != nil {
			return nil, err
		}
		result.Regions++
		result.Ingested += regionResult.Ingested
		result.Filtered += regionResult.Filtered
		result.SkippedRecords += regionResult.Skipped
		c.logger.Printf("Region %s: %d ingested, %d filtered, %d skipped over %d pages",
			region, regionResult.Ingested, regionResult.Filtered, regionResult.Skipped, regionResult.Pages)
	}
	result.NewProducts = catalog.Created()

	if err := RecordRun(ctx, tx.Runs(), end); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	for i := 0; i < result.NewProducts; i++ {
		observability.RecordProductCreated()
	}
	observability.MarkRunSuccess(float64(end.Unix()))

	c.mirrorToAnalytics(ctx, mirror)

	result.Duration = time.Since(started)
	c.logger.Printf("Run complete: %d regions, %d ingested, %d filtered, %d skipped, %d new products in %v",
		result.Regions, result.Ingested, result.Filtered, result.SkippedRecords,
		result.NewProducts, result.Duration)

	return result, nil
}

// activeRegions returns the configured regions minus the blacklist,
// deduplicated and sorted for deterministic runs.
func (c *RunCoordinator) activeRegions() []string {
	excluded := make(map[string]bool, len(c.blacklist))
	for _, r := range c.blacklist {
		excluded[r] = true
	}

	seen := make(map[string]bool, len(c.regions))
	var regions []string
	for _, r := range c.regions {
		if r == "" || excluded[r] || seen[r] {
			continue
		}
		seen[r] = true
		regions = append(regions, r)
	}
	sort.Strings(regions)
	return regions
}

// mirrorToAnalytics forwards committed observations to the analytics sink.
// Best-effort: the run already committed, so mirror failures are logged and
// swallowed; the ReplacingMergeTree sink collapses duplicates on a retry.
func (c *RunCoordinator) mirrorToAnalytics(ctx context.Context, rows []*storage.PriceAnalyticsRow) {
	if c.analytics == nil || len(rows) == 0 {
		return
	}

	batchSize := c.batchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	for i := 0; i < len(rows); i += batchSize {
		end := i + batchSize
		if end > len(rows) {
			end = len(rows)
		}
		if err := c.analytics.InsertBulk(ctx, rows[i:end]); err != nil {
			c.logger.Printf("Analytics mirror failed for %d rows: %v", len(rows)-i, err)
			return
		}
	}
	c.logger.Printf("Mirrored %d observations to analytics", len(rows))
}
