package ingestion

import (
	"context"
	"fmt"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/storage"
)

// catalogKey identifies a product within one platform.
type catalogKey struct {
	instanceType     string
	distributionType string
}

// ProductCatalog is a run-scoped, in-memory mirror of the product dimension
// table for one platform. It must be rebuilt at the start of every run:
// other actors may insert products between runs, and the cache owns no
// persisted state of its own.
type ProductCatalog struct {
	products storage.ProductStore
	platform string
	byKey    map[catalogKey]*domain.Product
	created  int
}

// LoadCatalog reads all persisted products for a platform. The given store
// should be transaction-scoped so lazily created products stay invisible
// until the run commits.
func LoadCatalog(ctx context.Context, products storage.ProductStore, platform string) (*ProductCatalog, error) {
	existing, err := products.GetByPlatform(ctx, platform)
	if err != nil {
		return nil, fmt.Errorf("load product catalog for %s: %w", platform, err)
	}

	byKey := make(map[catalogKey]*domain.Product, len(existing))
	for _, p := range existing {
		byKey[catalogKey{p.InstanceType, p.DistributionType}] = p
	}

	return &ProductCatalog{
		products: products,
		platform: platform,
		byKey:    byKey,
	}, nil
}

// Resolve returns the product for (instanceType, distributionType), creating
// it on first sight. Cache-before-create ordering makes repeated calls with
// the same key idempotent within the run.
func (c *ProductCatalog) Resolve(ctx context.Context, instanceType, distributionType string) (*domain.Product, error) {
	key := catalogKey{instanceType, distributionType}
	if p, ok := c.byKey[key]; ok {
		return p, nil
	}

	p := &domain.Product{
		InstanceType:     instanceType,
		DistributionType: distributionType,
		Platform:         c.platform,
	}
	if err := c.products.Insert(ctx, p); err != nil {
		return nil, fmt.Errorf("create product %s/%s/%s: %w", c.platform, instanceType, distributionType, err)
	}

	c.byKey[key] = p
	c.created++
	return p, nil
}

// Created reports how many products this run discovered.
func (c *ProductCatalog) Created() int {
	return c.created
}

// Size reports the number of cached products.
func (c *ProductCatalog) Size() int {
	return len(c.byKey)
}
