package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/pkg/enums"
)

// WithdrawalRequest asks to move wallet balance out to an external method.
// The requested amount is debited up front and re-credited on cancel/reject.
type WithdrawalRequest struct {
	ID          uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID      uuid.UUID              `gorm:"column:user_id;type:uuid;not null;index"`
	AmountCents int64                  `gorm:"column:amount_cents;not null"`
	Method      string                 `gorm:"column:method;type:text;not null"`
	Status      enums.WithdrawalStatus `gorm:"column:status;type:withdrawal_status;not null;default:'pending'"`
	Note        *string                `gorm:"column:note"`
	ProcessedAt *time.Time             `gorm:"column:processed_at"`
	ProcessedBy *uuid.UUID             `gorm:"column:processed_by;type:uuid"`
	CreatedAt   time.Time              `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time              `gorm:"column:updated_at;autoUpdateTime"`
}
