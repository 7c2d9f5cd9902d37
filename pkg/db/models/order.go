package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/pkg/enums"
)

// Order is the storefront order aggregate, including the cancellation audit trail.
type Order struct {
	ID              uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderNumber     int64               `gorm:"column:order_number;not null;uniqueIndex"`
	UserID          uuid.UUID           `gorm:"column:user_id;type:uuid;not null;index"`
	Status          enums.OrderStatus   `gorm:"column:status;type:order_status;not null;default:'pending'"`
	PaymentStatus   enums.PaymentStatus `gorm:"column:payment_status;type:payment_status;not null;default:'pending'"`
	PaymentMethod   enums.PaymentMethod `gorm:"column:payment_method;type:payment_method;not null;default:'card'"`
	Currency        string              `gorm:"column:currency;type:text;not null;default:'USD'"`
	TotalCents      int64               `gorm:"column:total_cents;not null"`
	AmountPaidCents int64               `gorm:"column:amount_paid_cents;not null;default:0"`

	StripeSessionID       *string `gorm:"column:stripe_session_id"`
	StripePaymentIntentID *string `gorm:"column:stripe_payment_intent_id"`
	StripeRefundID        *string `gorm:"column:stripe_refund_id"`

	CancellationRequested   bool       `gorm:"column:cancellation_requested;not null;default:false"`
	CancellationRequestNote *string    `gorm:"column:cancellation_request_note"`
	CancellationRequestedAt *time.Time `gorm:"column:cancellation_requested_at"`

	CancelledAt        *time.Time `gorm:"column:cancelled_at"`
	CancelledBy        *uuid.UUID `gorm:"column:cancelled_by;type:uuid"`
	CancellationReason *string    `gorm:"column:cancellation_reason"`
	RefundedToWallet   bool       `gorm:"column:refunded_to_wallet;not null;default:false"`
	RefundAmountCents  int64      `gorm:"column:refund_amount_cents;not null;default:0"`

	Items []OrderLineItem `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// RefundableCents is the amount owed back on cancellation: the amount actually
// paid when recorded, otherwise the order total.
func (o *Order) RefundableCents() int64 {
	if o.AmountPaidCents > 0 {
		return o.AmountPaidCents
	}
	return o.TotalCents
}
