package invoices

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/velmora/storefront-backend/pkg/db/models"
)

// Repository exposes persistence helpers for billing invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, invoice *models.Invoice) error
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an invoices repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repositoryImpl) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.WithContext(ctx).First(&invoice, "order_id = ?", orderID).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}
