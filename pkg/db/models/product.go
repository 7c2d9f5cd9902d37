package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is a catalog item with a simple stock counter.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Name       string    `gorm:"column:name;type:text;not null"`
	Slug       string    `gorm:"column:slug;type:text;not null;uniqueIndex"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Stock      int       `gorm:"column:stock;not null;default:0"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
