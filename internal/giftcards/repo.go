package giftcards

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/pagination"
)

// Repository exposes persistence helpers for gift cards.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, card *models.GiftCard) error
	FindByID(ctx context.Context, cardID uuid.UUID) (*models.GiftCard, error)
	FindByIDForUpdate(ctx context.Context, cardID uuid.UUID) (*models.GiftCard, error)
	FindByCode(ctx context.Context, code string) (*models.GiftCard, error)
	// FindByCodeForUpdate locks the card row for the duration of the
	// surrounding transaction so a card redeems exactly once.
	FindByCodeForUpdate(ctx context.Context, code string) (*models.GiftCard, error)
	Update(ctx context.Context, cardID uuid.UUID, updates map[string]any) error
	ListByPurchaser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.GiftCard, *pagination.Cursor, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a gift cards repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) Create(ctx context.Context, card *models.GiftCard) error {
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *repositoryImpl) FindByID(ctx context.Context, cardID uuid.UUID) (*models.GiftCard, error) {
	var card models.GiftCard
	if err := r.db.WithContext(ctx).First(&card, "id = ?", cardID).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repositoryImpl) FindByIDForUpdate(ctx context.Context, cardID uuid.UUID) (*models.GiftCard, error) {
	var card models.GiftCard
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&card, "id = ?", cardID).Error
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repositoryImpl) FindByCode(ctx context.Context, code string) (*models.GiftCard, error) {
	var card models.GiftCard
	if err := r.db.WithContext(ctx).First(&card, "code = ?", code).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repositoryImpl) FindByCodeForUpdate(ctx context.Context, code string) (*models.GiftCard, error) {
	var card models.GiftCard
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&card, "code = ?", code).Error
	if err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *repositoryImpl) Update(ctx context.Context, cardID uuid.UUID, updates map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.GiftCard{}).
		Where("id = ?", cardID).
		Updates(updates).Error
}

func (r *repositoryImpl) ListByPurchaser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.GiftCard, *pagination.Cursor, error) {
	limit := pagination.NormalizeLimit(params.Limit)
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).
		Where("purchased_by = ?", userID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(limit))
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var cards []models.GiftCard
	if err := query.Find(&cards).Error; err != nil {
		return nil, nil, err
	}

	var next *pagination.Cursor
	if len(cards) > limit {
		cards = cards[:limit]
		last := cards[len(cards)-1]
		next = &pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
	return cards, next, nil
}
