package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/pkg/enums"
)

// GiftCard is a prepaid credit redeemable into any wallet exactly once.
// The PIN is stored as an argon2id hash; the plaintext exists only in the
// purchase response.
type GiftCard struct {
	ID             uuid.UUID            `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Code           string               `gorm:"column:code;type:text;not null;uniqueIndex"`
	PINHash        string               `gorm:"column:pin_hash;type:text;not null"`
	FaceValueCents int64                `gorm:"column:face_value_cents;not null"`
	BonusCents     int64                `gorm:"column:bonus_cents;not null;default:0"`
	Status         enums.GiftCardStatus `gorm:"column:status;type:gift_card_status;not null;default:'active'"`
	PurchasedBy    uuid.UUID            `gorm:"column:purchased_by;type:uuid;not null"`
	RedeemedBy     *uuid.UUID           `gorm:"column:redeemed_by;type:uuid"`
	RedeemedAt     *time.Time           `gorm:"column:redeemed_at"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime"`
}
