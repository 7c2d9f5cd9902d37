package models

import (
	"time"

	"github.com/google/uuid"
)

// OrderLineItem is a purchased product line on an order.
type OrderLineItem struct {
	ID             uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID        uuid.UUID `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID `gorm:"column:product_id;type:uuid;not null"`
	ProductName    string    `gorm:"column:product_name;type:text;not null"`
	Qty            int       `gorm:"column:qty;not null"`
	UnitPriceCents int64     `gorm:"column:unit_price_cents;not null"`
	TotalCents     int64     `gorm:"column:total_cents;not null"`
	CreatedAt      time.Time `gorm:"column:created_at;autoCreateTime"`
}
