package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/pkg/enums"
)

// WalletTransaction is one append-only ledger entry on a user's wallet.
// balance_after - balance_before always equals the signed amount.
type WalletTransaction struct {
	ID                 uuid.UUID                   `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID             uuid.UUID                   `gorm:"column:user_id;type:uuid;not null;index"`
	Type               enums.WalletTransactionType `gorm:"column:type;type:wallet_transaction_type;not null"`
	AmountCents        int64                       `gorm:"column:amount_cents;not null"`
	BalanceBeforeCents int64                       `gorm:"column:balance_before_cents;not null"`
	BalanceAfterCents  int64                       `gorm:"column:balance_after_cents;not null"`
	Description        string                      `gorm:"column:description;type:text;not null"`
	OrderID            *uuid.UUID                  `gorm:"column:order_id;type:uuid"`
	ActorID            *uuid.UUID                  `gorm:"column:actor_id;type:uuid"`
	CreatedAt          time.Time                   `gorm:"column:created_at;autoCreateTime"`
}
