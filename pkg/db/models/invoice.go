package models

import (
	"time"

	"github.com/google/uuid"
)

// Invoice records the billing document produced when a payment settles.
// Creation is best-effort during webhook reconciliation.
type Invoice struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID         uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	Number          string    `gorm:"column:number;type:text;not null;uniqueIndex"`
	AmountCents     int64     `gorm:"column:amount_cents;not null"`
	StripeSessionID *string   `gorm:"column:stripe_session_id"`
	IssuedAt        time.Time `gorm:"column:issued_at;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
}
