package controllers

import (
	"time"

	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	"github.com/velmora/storefront-backend/pkg/pagination"
)

// page is the shared cursor-paginated list envelope.
type page[T any] struct {
	Items      []T     `json:"items"`
	NextCursor *string `json:"next_cursor,omitempty"`
}

func newPage[T any](items []T, next *pagination.Cursor) page[T] {
	p := page[T]{Items: items}
	if p.Items == nil {
		p.Items = []T{}
	}
	if next != nil {
		encoded := pagination.EncodeCursor(*next)
		p.NextCursor = &encoded
	}
	return p
}

type lineItemView struct {
	ProductID      uuid.UUID `json:"product_id"`
	Qty            int       `json:"qty"`
	UnitPriceCents int64     `json:"unit_price_cents"`
	TotalCents     int64     `json:"total_cents"`
}

type orderView struct {
	ID              uuid.UUID           `json:"id"`
	OrderNumber     int64               `json:"order_number"`
	Status          enums.OrderStatus   `json:"status"`
	PaymentStatus   enums.PaymentStatus `json:"payment_status"`
	PaymentMethod   enums.PaymentMethod `json:"payment_method"`
	Currency        string              `json:"currency"`
	TotalCents      int64               `json:"total_cents"`
	AmountPaidCents int64               `json:"amount_paid_cents"`

	CancellationRequested   bool       `json:"cancellation_requested"`
	CancellationRequestNote *string    `json:"cancellation_request_note,omitempty"`
	CancelledAt             *time.Time `json:"cancelled_at,omitempty"`
	CancellationReason      *string    `json:"cancellation_reason,omitempty"`
	RefundedToWallet        bool       `json:"refunded_to_wallet"`
	RefundAmountCents       int64      `json:"refund_amount_cents"`

	Items []lineItemView `json:"items,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func newOrderView(order *models.Order) orderView {
	view := orderView{
		ID:                      order.ID,
		OrderNumber:             order.OrderNumber,
		Status:                  order.Status,
		PaymentStatus:           order.PaymentStatus,
		PaymentMethod:           order.PaymentMethod,
		Currency:                order.Currency,
		TotalCents:              order.TotalCents,
		AmountPaidCents:         order.AmountPaidCents,
		CancellationRequested:   order.CancellationRequested,
		CancellationRequestNote: order.CancellationRequestNote,
		CancelledAt:             order.CancelledAt,
		CancellationReason:      order.CancellationReason,
		RefundedToWallet:        order.RefundedToWallet,
		RefundAmountCents:       order.RefundAmountCents,
		CreatedAt:               order.CreatedAt,
		UpdatedAt:               order.UpdatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, lineItemView{
			ProductID:      item.ProductID,
			Qty:            item.Qty,
			UnitPriceCents: item.UnitPriceCents,
			TotalCents:     item.TotalCents,
		})
	}
	return view
}

// cancellationView reports a committed cancellation plus any refund warnings.
type cancellationView struct {
	Order            orderView `json:"order"`
	RefundCents      int64     `json:"refund_cents"`
	RefundedToWallet bool      `json:"refunded_to_wallet"`
	StripeRefundID   *string   `json:"stripe_refund_id,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
}

type walletTransactionView struct {
	ID                 uuid.UUID                   `json:"id"`
	Type               enums.WalletTransactionType `json:"type"`
	AmountCents        int64                       `json:"amount_cents"`
	BalanceBeforeCents int64                       `json:"balance_before_cents"`
	BalanceAfterCents  int64                       `json:"balance_after_cents"`
	Description        string                      `json:"description"`
	OrderID            *uuid.UUID                  `json:"order_id,omitempty"`
	CreatedAt          time.Time                   `json:"created_at"`
}

func newWalletTransactionView(txn *models.WalletTransaction) walletTransactionView {
	return walletTransactionView{
		ID:                 txn.ID,
		Type:               txn.Type,
		AmountCents:        txn.AmountCents,
		BalanceBeforeCents: txn.BalanceBeforeCents,
		BalanceAfterCents:  txn.BalanceAfterCents,
		Description:        txn.Description,
		OrderID:            txn.OrderID,
		CreatedAt:          txn.CreatedAt,
	}
}

type withdrawalView struct {
	ID          uuid.UUID              `json:"id"`
	UserID      uuid.UUID              `json:"user_id"`
	AmountCents int64                  `json:"amount_cents"`
	Method      string                 `json:"method"`
	Status      enums.WithdrawalStatus `json:"status"`
	Note        *string                `json:"note,omitempty"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

func newWithdrawalView(req *models.WithdrawalRequest) withdrawalView {
	return withdrawalView{
		ID:          req.ID,
		UserID:      req.UserID,
		AmountCents: req.AmountCents,
		Method:      req.Method,
		Status:      req.Status,
		Note:        req.Note,
		ProcessedAt: req.ProcessedAt,
		CreatedAt:   req.CreatedAt,
	}
}

type notificationView struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	OrderID   *uuid.UUID             `json:"order_id,omitempty"`
	ReadAt    *time.Time             `json:"read_at,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

func newNotificationView(n *models.Notification) notificationView {
	return notificationView{
		ID:        n.ID,
		Type:      n.Type,
		Title:     n.Title,
		Message:   n.Message,
		OrderID:   n.OrderID,
		ReadAt:    n.ReadAt,
		CreatedAt: n.CreatedAt,
	}
}

// giftCardView never exposes the PIN hash. The code itself only appears in
// the one-time purchase response.
type giftCardView struct {
	ID             uuid.UUID            `json:"id"`
	FaceValueCents int64                `json:"face_value_cents"`
	BonusCents     int64                `json:"bonus_cents"`
	Status         enums.GiftCardStatus `json:"status"`
	RedeemedAt     *time.Time           `json:"redeemed_at,omitempty"`
	CreatedAt      time.Time            `json:"created_at"`
}

func newGiftCardView(card *models.GiftCard) giftCardView {
	return giftCardView{
		ID:             card.ID,
		FaceValueCents: card.FaceValueCents,
		BonusCents:     card.BonusCents,
		Status:         card.Status,
		RedeemedAt:     card.RedeemedAt,
		CreatedAt:      card.CreatedAt,
	}
}
