package orders

import (
	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
)

// GetInput identifies an order read with the acting user.
type GetInput struct {
	OrderID   uuid.UUID
	ActorID   uuid.UUID
	ActorRole enums.UserRole
}

// UpdateStatusInput advances an order's fulfillment status (admin).
type UpdateStatusInput struct {
	OrderID uuid.UUID
	Target  enums.OrderStatus
	ActorID uuid.UUID
}

// RequestCancellationInput captures a customer's cancellation request.
type RequestCancellationInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Reason  string
}

// ApproveCancellationInput resolves a pending cancellation request (admin).
type ApproveCancellationInput struct {
	OrderID uuid.UUID
	AdminID uuid.UUID
}

// RejectCancellationInput declines a pending cancellation request (admin).
type RejectCancellationInput struct {
	OrderID uuid.UUID
	AdminID uuid.UUID
	Reason  *string
}

// CancelInput cancels an order directly (admin).
type CancelInput struct {
	OrderID uuid.UUID
	AdminID uuid.UUID
	Reason  string
}

// CancelOwnInput is the customer self-service refund route.
type CancelOwnInput struct {
	OrderID uuid.UUID
	UserID  uuid.UUID
	Reason  string
}

// CancellationResult reports a committed cancellation. Warnings carry refund
// or bookkeeping failures that did not abort the state transition.
type CancellationResult struct {
	Order            *models.Order
	RefundCents      int64
	RefundedToWallet bool
	StripeRefundID   *string
	Warnings         []string
}

// Committed reports whether the cancellation landed without side-effect
// failures.
func (r *CancellationResult) Committed() bool {
	return r != nil && len(r.Warnings) == 0
}
