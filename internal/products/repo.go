package products

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velmora/storefront-backend/pkg/db/models"
)

// Repository exposes persistence helpers for catalog products.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, product *models.Product) error
	FindByID(ctx context.Context, productID uuid.UUID) (*models.Product, error)
	// DecrementStock reduces stock by qty, clamped at zero. Oversold
	// quantities never drive the counter negative.
	DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a products repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, product *models.Product) error {
	return r.db.WithContext(ctx).Create(product).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).First(&product, "id = ?", productID).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repositoryImpl) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	if qty <= 0 {
		return nil
	}
	return r.db.WithContext(ctx).Exec(`
		UPDATE products
		SET stock = GREATEST(stock - ?, 0),
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, qty, productID).Error
}
