package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	"github.com/velmora/storefront-backend/pkg/pagination"
)

// Repository exposes persistence helpers for the wallet ledger and
// withdrawal requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, *pagination.Cursor, error)
	CreateWithdrawal(ctx context.Context, request *models.WithdrawalRequest) error
	FindWithdrawal(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error)
	// FindWithdrawalForUpdate locks the request row until the surrounding
	// transaction commits.
	FindWithdrawalForUpdate(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error)
	UpdateWithdrawalStatus(ctx context.Context, requestID uuid.UUID, status enums.WithdrawalStatus, processedBy *uuid.UUID, note *string, now time.Time) error
	ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error)
	ListWithdrawalsByStatus(ctx context.Context, status enums.WithdrawalStatus, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repositoryImpl) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WalletTransaction, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("user_id = ?", userID)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var txns []models.WalletTransaction
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&txns).Error; err != nil {
		return nil, nil, err
	}

	if len(txns) > normalized {
		next := txns[normalized]
		txns = txns[:normalized]
		return txns, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return txns, nil, nil
}

func (r *repositoryImpl) CreateWithdrawal(ctx context.Context, request *models.WithdrawalRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repositoryImpl) FindWithdrawal(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	if err := r.db.WithContext(ctx).First(&request, "id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repositoryImpl) FindWithdrawalForUpdate(ctx context.Context, requestID uuid.UUID) (*models.WithdrawalRequest, error) {
	var request models.WithdrawalRequest
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&request, "id = ?", requestID).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repositoryImpl) UpdateWithdrawalStatus(ctx context.Context, requestID uuid.UUID, status enums.WithdrawalStatus, processedBy *uuid.UUID, note *string, now time.Time) error {
	updates := map[string]any{
		"status":     status,
		"updated_at": now,
	}
	if processedBy != nil {
		updates["processed_by"] = *processedBy
		updates["processed_at"] = now
	}
	if note != nil {
		updates["note"] = *note
	}
	return r.db.WithContext(ctx).
		Model(&models.WithdrawalRequest{}).
		Where("id = ?", requestID).
		Updates(updates).Error
}

func (r *repositoryImpl) ListWithdrawalsByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
	return r.listWithdrawals(ctx, params, "user_id = ?", userID)
}

func (r *repositoryImpl) ListWithdrawalsByStatus(ctx context.Context, status enums.WithdrawalStatus, params pagination.Params) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
	return r.listWithdrawals(ctx, params, "status = ?", status)
}

func (r *repositoryImpl) listWithdrawals(ctx context.Context, params pagination.Params, condition string, args ...any) ([]models.WithdrawalRequest, *pagination.Cursor, error) {
	limit := pagination.LimitWithBuffer(params.Limit)
	normalized := pagination.NormalizeLimit(params.Limit)

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, nil, err
	}

	query := r.db.WithContext(ctx).Model(&models.WithdrawalRequest{}).Where(condition, args...)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var requests []models.WithdrawalRequest
	if err := query.Order("created_at DESC, id DESC").Limit(limit).Find(&requests).Error; err != nil {
		return nil, nil, err
	}

	if len(requests) > normalized {
		next := requests[normalized]
		requests = requests[:normalized]
		return requests, &pagination.Cursor{CreatedAt: next.CreatedAt, ID: next.ID}, nil
	}
	return requests, nil, nil
}
