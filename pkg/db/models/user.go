package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/pkg/enums"
)

// User mirrors the identity provider's subject plus the wallet cache.
// wallet_balance_cents is a cache of the transaction log head; every mutation
// happens inside the same transaction that appends the ledger row.
type User struct {
	ID                 uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Email              string         `gorm:"column:email;type:text;not null;uniqueIndex"`
	FullName           string         `gorm:"column:full_name;type:text;not null"`
	Role               enums.UserRole `gorm:"column:role;type:user_role;not null;default:'customer'"`
	WalletBalanceCents int64          `gorm:"column:wallet_balance_cents;not null;default:0"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
