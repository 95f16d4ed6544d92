package memory

import (
	"context"
	"time"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/storage"
)

// memTx is a buffering transaction over Store. Writes are staged locally
// and applied to the parent store on Commit. IDs are reserved from the
// parent's sequences at staging time, so a rollback leaves gaps exactly
// like a database sequence would.
type memTx struct {
	store  *Store
	staged map[tripleKey]*domain.Product
	prices []*domain.PriceObservation
	runs   []*domain.RunCheckpoint
	done   bool
}

var _ storage.Tx = (*memTx)(nil)

func (t *memTx) Products() storage.ProductStore    { return &txProductStore{tx: t} }
func (t *memTx) Prices() storage.PriceHistoryStore { return &txPriceStore{tx: t} }
func (t *memTx) Runs() storage.RunHistoryStore     { return &txRunStore{tx: t} }

// Commit applies staged writes to the parent store atomically.
func (t *memTx) Commit(_ context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	if t.done {
		return storage.ErrInvalidInput
	}
	for _, p := range t.staged {
		if err := t.store.insertProductLocked(p); err != nil {
			return err
		}
	}
	t.store.prices = append(t.store.prices, t.prices...)
	t.store.runs = append(t.store.runs, t.runs...)
	t.done = true
	return nil
}

// Rollback discards staged writes. No-op after Commit.
func (t *memTx) Rollback(_ context.Context) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	t.staged = make(map[tripleKey]*domain.Product)
	t.prices = nil
	t.runs = nil
	t.done = true
	return nil
}

type txProductStore struct {
	tx *memTx
}

func (s *txProductStore) Insert(_ context.Context, p *domain.Product) error {
	if p == nil || p.InstanceType == "" || p.Platform == "" {
		return storage.ErrInvalidInput
	}

	s.tx.store.mu.Lock()
	defer s.tx.store.mu.Unlock()

	key := tripleKey{p.Platform, p.InstanceType, p.DistributionType}
	if _, exists := s.tx.store.products[key]; exists {
		return storage.ErrDuplicateKey
	}
	if _, exists := s.tx.staged[key]; exists {
		return storage.ErrDuplicateKey
	}

	s.tx.store.nextProductID++
	p.ID = s.tx.store.nextProductID
	productCopy := *p
	s.tx.staged[key] = &productCopy
	return nil
}

func (s *txProductStore) GetByPlatform(_ context.Context, platform string) ([]*domain.Product, error) {
	s.tx.store.mu.RLock()
	defer s.tx.store.mu.RUnlock()

	return collectByPlatform(s.tx.store.products, s.tx.staged, platform), nil
}

type txPriceStore struct {
	tx *memTx
}

func (s *txPriceStore) InsertBulk(_ context.Context, obs []*domain.PriceObservation) error {
	if len(obs) == 0 {
		return nil
	}

	s.tx.store.mu.Lock()
	defer s.tx.store.mu.Unlock()

	for _, o := range obs {
		if o == nil {
			return storage.ErrInvalidInput
		}
		if err := s.tx.store.checkPriceBudgetLocked(); err != nil {
			return err
		}
		s.tx.store.nextPriceID++
		obsCopy := *o
		obsCopy.ID = s.tx.store.nextPriceID
		o.ID = obsCopy.ID
		s.tx.prices = append(s.tx.prices, &obsCopy)
	}
	return nil
}

func (s *txPriceStore) GetByTimeRange(_ context.Context, start, end time.Time) ([]*domain.PriceObservation, error) {
	s.tx.store.mu.RLock()
	defer s.tx.store.mu.RUnlock()

	return filterPrices(s.tx.store.prices, s.tx.prices, start, end), nil
}

func (s *txPriceStore) GetByProductID(_ context.Context, productID int64) ([]*domain.PriceObservation, error) {
	s.tx.store.mu.RLock()
	defer s.tx.store.mu.RUnlock()

	var result []*domain.PriceObservation
	for _, list := range [][]*domain.PriceObservation{s.tx.store.prices, s.tx.prices} {
		for _, o := range list {
			if o.ProductID == productID {
				obsCopy := *o
				result = append(result, &obsCopy)
			}
		}
	}
	sortPrices(result)
	return result, nil
}

type txRunStore struct {
	tx *memTx
}

func (s *txRunStore) Insert(_ context.Context, cp *domain.RunCheckpoint) error {
	if cp == nil || cp.Date.IsZero() {
		return storage.ErrInvalidInput
	}

	s.tx.store.mu.Lock()
	defer s.tx.store.mu.Unlock()

	s.tx.store.nextRunID++
	cpCopy := *cp
	cpCopy.ID = s.tx.store.nextRunID
	cp.ID = cpCopy.ID
	s.tx.runs = append(s.tx.runs, &cpCopy)
	return nil
}

func (s *txRunStore) GetLatest(_ context.Context) (*domain.RunCheckpoint, error) {
	s.tx.store.mu.RLock()
	defer s.tx.store.mu.RUnlock()

	return latestRun(s.tx.store.runs, s.tx.runs)
}
