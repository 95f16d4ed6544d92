// Package memory provides in-memory implementations of the storage
// interfaces for tests and local development.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/storage"
)

// tripleKey identifies a product by its unique triple.
type tripleKey struct {
	platform         string
	instanceType     string
	distributionType string
}

// Store is an in-memory implementation of storage.Store.
type Store struct {
	mu       sync.RWMutex
	products map[tripleKey]*domain.Product
	prices   []*domain.PriceObservation
	runs     []*domain.RunCheckpoint

	nextProductID int64
	nextPriceID   int64
	nextRunID     int64

	// Failure injection for transactional tests. When failAfterPrices > 0,
	// price inserts beyond that count fail with errInjected.
	failAfterPrices int
	priceInserts    int
}

var errInjected = errors.New("injected store failure")

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		products: make(map[tripleKey]*domain.Product),
	}
}

// FailAfterPriceInserts makes price inserts fail once n observations have
// been accepted, across all transactions. Zero disables injection.
func (s *Store) FailAfterPriceInserts(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failAfterPrices = n
	s.priceInserts = 0
}

// Begin opens a buffering transaction. Staged writes are applied atomically
// on Commit and discarded on Rollback.
func (s *Store) Begin(_ context.Context) (storage.Tx, error) {
	return &memTx{
		store:  s,
		staged: make(map[tripleKey]*domain.Product),
	}, nil
}

// Products returns an auto-committing product store view.
func (s *Store) Products() storage.ProductStore { return &productStore{store: s} }

// Prices returns an auto-committing price history store view.
func (s *Store) Prices() storage.PriceHistoryStore { return &priceStore{store: s} }

// Runs returns an auto-committing run history store view.
func (s *Store) Runs() storage.RunHistoryStore { return &runStore{store: s} }

var _ storage.Store = (*Store)(nil)

// insertProductLocked adds a product assuming s.mu is held.
func (s *Store) insertProductLocked(p *domain.Product) error {
	key := tripleKey{p.Platform, p.InstanceType, p.DistributionType}
	if _, exists := s.products[key]; exists {
		return storage.ErrDuplicateKey
	}
	productCopy := *p
	s.products[key] = &productCopy
	return nil
}

// productStore is the auto-committing storage.ProductStore view.
type productStore struct {
	store *Store
}

func (ps *productStore) Insert(_ context.Context, p *domain.Product) error {
	if p == nil || p.InstanceType == "" || p.Platform == "" {
		return storage.ErrInvalidInput
	}

	ps.store.mu.Lock()
	defer ps.store.mu.Unlock()

	ps.store.nextProductID++
	p.ID = ps.store.nextProductID
	return ps.store.insertProductLocked(p)
}

func (ps *productStore) GetByPlatform(_ context.Context, platform string) ([]*domain.Product, error) {
	ps.store.mu.RLock()
	defer ps.store.mu.RUnlock()

	return collectByPlatform(ps.store.products, nil, platform), nil
}

// collectByPlatform merges committed and staged products for a platform,
// ordered by id ASC.
func collectByPlatform(committed, staged map[tripleKey]*domain.Product, platform string) []*domain.Product {
	var result []*domain.Product
	for _, p := range committed {
		if p.Platform == platform {
			productCopy := *p
			result = append(result, &productCopy)
		}
	}
	for _, p := range staged {
		if p.Platform == platform {
			productCopy := *p
			result = append(result, &productCopy)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// priceStore is the auto-committing storage.PriceHistoryStore view.
type priceStore struct {
	store *Store
}

func (ps *priceStore) InsertBulk(_ context.Context, obs []*domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	ps.store.mu.Lock()
	defer ps.store.mu.Unlock()

	for _, o := range obs {
		if o == nil {
			return storage.ErrInvalidInput
		}
		if err := ps.store.checkPriceBudgetLocked(); err != nil {
			return err
		}
		ps.store.nextPriceID++
		obsCopy := *o
		obsCopy.ID = ps.store.nextPriceID
		o.ID = obsCopy.ID
		ps.store.prices = append(ps.store.prices, &obsCopy)
	}
	return nil
}

func (ps *priceStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.PriceObservation, error) {
	ps.store.mu.RLock()
	defer ps.store.mu.RUnlock()

	return filterPrices(ps.store.prices, nil, start, end), nil
}

func (ps *priceStore) GetByProductID(_ context.Context, productID int64) ([]*domain.PriceObservation, error) {
	ps.store.mu.RLock()
	defer ps.store.mu.RUnlock()

	var result []*domain.PriceObservation
	for _, o := range ps.store.prices {
		if o.ProductID == productID {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}
	sortPrices(result)
	return result, nil
}

// checkPriceBudgetLocked enforces injected failure. Assumes s.mu is held.
func (s *Store) checkPriceBudgetLocked() error {
	if s.failAfterPrices > 0 && s.priceInserts >= s.failAfterPrices {
		return errInjected
	}
	s.priceInserts++
	return nil
}

// filterPrices returns observations with start < date <= end from both
// slices, ordered by date ASC, id ASC.
func filterPrices(committed, staged []*domain.PriceObservation, start, end time.Time) []*domain.PriceObservation {
	var result []*domain.PriceObservation
	keep := func(o *domain.PriceObservation) {
		if o.Date.After(start) && !o.Date.After(end) {
			obsCopy := *o
			result = append(result, &obsCopy)
		}
	}
	for _, o := range committed {
		keep(o)
	}
	for _, o := range staged {
		keep(o)
	}
	sortPrices(result)
	return result
}

func sortPrices(obs []*domain.PriceObservation) {
	sort.Slice(obs, func(i, j int) bool {
		if obs[i].Date.Equal(obs[j].Date) {
			return obs[i].ID < obs[j].ID
		}
		return obs[i].Date.Before(obs[j].Date)
	})
}

// runStore is the auto-committing storage.RunHistoryStore view.
type runStore struct {
	store *Store
}

func (rs *runStore) Insert(_ context.Context, cp *domain.RunCheckpoint) error {
	if cp == nil || cp.Date.IsZero() {
		return storage.ErrInvalidInput
	}

	rs.store.mu.Lock()
	defer rs.store.mu.Unlock()

	rs.store.nextRunID++
	cpCopy := *cp
	cpCopy.ID = rs.store.nextRunID
	cp.ID = cpCopy.ID
	rs.store.runs = append(rs.store.runs, &cpCopy)
	return nil
}

func (rs *runStore) GetLatest(_ context.Context) (*domain.RunCheckpoint, error) {
	rs.store.mu.RLock()
	defer rs.store.mu.RUnlock()

	return latestRun(rs.store.runs, nil)
}

// latestRun picks the checkpoint with max date, ties broken by highest id.
func latestRun(committed, staged []*domain.RunCheckpoint) (*domain.RunCheckpoint, error) {
	var latest *domain.RunCheckpoint
	consider := func(cp *domain.RunCheckpoint) {
		if latest == nil ||
			cp.Date.After(latest.Date) ||
			(cp.Date.Equal(latest.Date) && cp.ID > latest.ID) {
			latest = cp
		}
	}
	for _, cp := range committed {
		consider(cp)
	}
	for _, cp := range staged {
		consider(cp)
	}
	if latest == nil {
		return nil, storage.ErrNotFound
	}
	cpCopy := *latest
	return &cpCopy, nil
}
