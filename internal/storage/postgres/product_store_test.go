package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/storage/postgres"
	"cloudmarketwatch/internal/storage"
)

func TestProductStore_InsertAssignsID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewProductStore(pool)
	ctx := context.Background()

	p := &domain.Product{
		InstanceType:     "m5.large",
		DistributionType: "Linux/UNIX",
		Platform:         "aws",
	}

	err := store.Insert(ctx, p)
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
}

func TestProductStore_InsertDuplicateTriple(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewProductStore(pool)
	ctx := context.Background()

	p := &domain.Product{
		InstanceType:     "m5.large",
		DistributionType: "Linux/UNIX",
		Platform:         "aws",
	}
	require.NoError(t, store.Insert(ctx, p))

	dup := &domain.Product{
		InstanceType:     "m5.large",
		DistributionType: "Linux/UNIX",
		Platform:         "aws",
	}
	err := store.Insert(ctx, dup)
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestProductStore_GetByPlatform(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewProductStore(pool)
	ctx := context.Background()

	seed := []*domain.Product{
		{InstanceType: "m5.large", DistributionType: "Linux/UNIX", Platform: "aws"},
		{InstanceType: "m5.large", DistributionType: "Windows", Platform: "aws"},
		{InstanceType: "n2-standard-4", DistributionType: "Linux/UNIX", Platform: "gcp"},
	}
	for _, p := range seed {
		require.NoError(t, store.Insert(ctx, p))
	}

	got, err := store.GetByPlatform(ctx, "aws")
	require.NoError(t, err)
	require.Len(t, got, 2)

	// Ordered by id ASC.
	assert.Equal(t, seed[0].ID, got[0].ID)
	assert.Equal(t, seed[1].ID, got[1].ID)
	assert.Equal(t, "Linux/UNIX", got[0].DistributionType)
	assert.Equal(t, "Windows", got[1].DistributionType)

	empty, err := store.GetByPlatform(ctx, "azure")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestProductStore_InsertInvalidInput(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := postgres.NewProductStore(pool)
	ctx := context.Background()

	assert.ErrorIs(t, store.Insert(ctx, nil), storage.ErrInvalidInput)
	assert.ErrorIs(t, store.Insert(ctx, &domain.Product{Platform: "aws"}), storage.ErrInvalidInput)
}
