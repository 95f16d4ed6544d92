package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"cloudmarketwatch/internal/domain"
	"cloudmarketwatch/internal/storage"
)

// ProductStore implements storage.ProductStore using PostgreSQL.
type ProductStore struct {
	db querier
}

// NewProductStore creates a new ProductStore over the pool.
func NewProductStore(pool *Pool) *ProductStore {
	return &ProductStore{db: pool}
}

// Compile-time interface check.
var _ storage.ProductStore = (*ProductStore)(nil)

// Insert adds a new product and assigns its ID. Returns ErrDuplicateKey if
// the (platform, instance_type, distribution_type) triple exists.
func (s *ProductStore) Insert(ctx context.Context, p *domain.Product) error {
	if p == nil || p.InstanceType == "" || p.Platform == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO product (instance_type, distribution_type, platform)
		VALUES ($1, $2, $3)
		RETURNING id
	`

	err := s.db.QueryRow(ctx, query, p.InstanceType, p.DistributionType, p.Platform).Scan(&p.ID)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

// GetByPlatform retrieves all products for a platform, ordered by id ASC.
func (s *ProductStore) GetByPlatform(ctx context.Context, platform string) ([]*domain.Product, error) {
	query := `
		SELECT id, instance_type, distribution_type, platform
		FROM product
		WHERE platform = $1
		ORDER BY id ASC
	`

	rows, err := s.db.Query(ctx, query, platform)
	if err != nil {
		return nil, fmt.Errorf("get products by platform: %w", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// scanProducts scans multiple rows into a slice of Product.
func scanProducts(rows pgx.Rows) ([]*domain.Product, error) {
	var products []*domain.Product

	for rows.Next() {
		var p domain.Product

		err := rows.Scan(&p.ID, &p.InstanceType, &p.DistributionType, &p.Platform)
		if err != nil {
			return nil, fmt.Errorf("scan product row: %w", err)
		}

		products = append(products, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate product rows: %w", err)
	}

	return products, nil
}
