package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripelib "github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/velmora/storefront-backend/internal/notifications"
	"github.com/velmora/storefront-backend/internal/wallet"
	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/logger"
	"github.com/velmora/storefront-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// walletLedger is the slice of the wallet service cancellations need. Credits
// run in their own transaction so a failure cannot roll back a committed
// cancellation.
type walletLedger interface {
	Credit(ctx context.Context, input wallet.CreditInput) (*models.WalletTransaction, error)
}

// refundCreator issues a refund against the payment processor.
type refundCreator interface {
	CreateRefund(ctx context.Context, paymentIntentID string) (*stripelib.Refund, error)
}

// statusNotifier delivers best-effort order notifications.
type statusNotifier interface {
	OrderStatus(ctx context.Context, input notifications.OrderStatusInput)
}

// Service defines order lifecycle operations.
type Service interface {
	Get(ctx context.Context, input GetInput) (*models.Order, error)
	ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, *pagination.Cursor, error)
	UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error)
	RequestCancellation(ctx context.Context, input RequestCancellationInput) (*models.Order, error)
	ApproveCancellation(ctx context.Context, input ApproveCancellationInput) (*CancellationResult, error)
	RejectCancellation(ctx context.Context, input RejectCancellationInput) (*models.Order, error)
	Cancel(ctx context.Context, input CancelInput) (*CancellationResult, error)
	CancelOwn(ctx context.Context, input CancelOwnInput) (*CancellationResult, error)
}

type service struct {
	repo     Repository
	tx       txRunner
	wallet   walletLedger
	refunds  refundCreator
	notifier statusNotifier
	logg     *logger.Logger
	now      func() time.Time
}

// NewService builds the orders service. The refund creator may be nil when no
// payment processor is configured; self-service cancellations then fall back
// to wallet credits.
func NewService(repo Repository, tx txRunner, walletSvc walletLedger, refunds refundCreator, notifier statusNotifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	return &service{
		repo:     repo,
		tx:       tx,
		wallet:   walletSvc,
		refunds:  refunds,
		notifier: notifier,
		logg:     logg,
		now:      time.Now,
	}, nil
}

func (s *service) Get(ctx context.Context, input GetInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	order, err := s.repo.FindByID(ctx, input.OrderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if input.ActorRole != enums.UserRoleAdmin && order.UserID != input.ActorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	if userID == uuid.Nil {
		return nil, nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	orders, cursor, err := s.repo.ListByUser(ctx, userID, params)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	return orders, cursor, nil
}

func (s *service) UpdateStatus(ctx context.Context, input UpdateStatusInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.ActorID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	event, ok := fulfillmentEventFor(input.Target)
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("status %q cannot be set directly", input.Target))
	}

	var order *models.Order
	var previous enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		next, ok := NextStatus(loaded.Status, event)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order cannot move from %s to %s", loaded.Status, input.Target))
		}

		if err := repo.Update(ctx, loaded.ID, map[string]any{
			"status":     next,
			"updated_at": s.now().UTC(),
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}

		previous = loaded.Status
		loaded.Status = next
		order = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifyStatus(ctx, order, &previous, "")
	return order, nil
}

func (s *service) RequestCancellation(ctx context.Context, input RequestCancellationInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if input.Reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cancellation reason required")
	}

	var order *models.Order
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if loaded.UserID != input.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if loaded.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already cancelled")
		}
		if loaded.CancellationRequested {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cancellation already requested")
		}
		if !CanApply(loaded.Status, EventRequestCancellation) {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cancellation cannot be requested while order is %s", loaded.Status))
		}

		now := s.now().UTC()
		if err := repo.Update(ctx, loaded.ID, map[string]any{
			"cancellation_requested":    true,
			"cancellation_request_note": input.Reason,
			"cancellation_requested_at": now,
			"updated_at":                now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record cancellation request")
		}

		loaded.CancellationRequested = true
		loaded.CancellationRequestNote = &input.Reason
		loaded.CancellationRequestedAt = &now
		order = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *service) ApproveCancellation(ctx context.Context, input ApproveCancellationInput) (*CancellationResult, error) {
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.cancel(ctx, cancelRequest{
		orderID:        input.OrderID,
		actorID:        input.AdminID,
		event:          EventApproveCancellation,
		requireRequest: true,
	})
}

func (s *service) RejectCancellation(ctx context.Context, input RejectCancellationInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}

	var order *models.Order
	var previous enums.OrderStatus
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByIDForUpdate(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if !loaded.CancellationRequested {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no pending cancellation request")
		}
		next, ok := NextStatus(loaded.Status, EventRejectCancellation)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("cancellation request cannot be rejected while order is %s", loaded.Status))
		}

		now := s.now().UTC()
		if err := repo.Update(ctx, loaded.ID, map[string]any{
			"status":                    next,
			"cancellation_requested":    false,
			"cancellation_request_note": nil,
			"cancellation_requested_at": nil,
			"updated_at":                now,
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reject cancellation request")
		}

		previous = loaded.Status
		loaded.Status = next
		loaded.CancellationRequested = false
		loaded.CancellationRequestNote = nil
		loaded.CancellationRequestedAt = nil
		order = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	detail := "Your cancellation request was declined."
	if input.Reason != nil && *input.Reason != "" {
		detail = fmt.Sprintf("Your cancellation request was declined: %s", *input.Reason)
	}
	s.notifyStatus(ctx, order, &previous, detail)
	return order, nil
}

func (s *service) Cancel(ctx context.Context, input CancelInput) (*CancellationResult, error) {
	if input.AdminID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.cancel(ctx, cancelRequest{
		orderID: input.OrderID,
		actorID: input.AdminID,
		event:   EventCancel,
		reason:  input.Reason,
	})
}

func (s *service) CancelOwn(ctx context.Context, input CancelOwnInput) (*CancellationResult, error) {
	if input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	return s.cancel(ctx, cancelRequest{
		orderID:          input.OrderID,
		actorID:          input.UserID,
		event:            EventCancel,
		reason:           input.Reason,
		owner:            &input.UserID,
		processorRefunds: true,
	})
}

type cancelRequest struct {
	orderID uuid.UUID
	actorID uuid.UUID
	event   Event
	reason  string
	// owner restricts the cancellation to the order's customer.
	owner *uuid.UUID
	// requireRequest demands a pending cancellation request (approval flow).
	requireRequest bool
	// processorRefunds tries the payment processor before the wallet.
	processorRefunds bool
}

// cancel commits the state transition first, then attempts the refund path.
// Refund failures surface as warnings on the result, never as errors.
func (s *service) cancel(ctx context.Context, req cancelRequest) (*CancellationResult, error) {
	if req.orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var order *models.Order
	var previous enums.OrderStatus
	var refund int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		loaded, err := repo.FindByIDForUpdate(ctx, req.orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if req.owner != nil && loaded.UserID != *req.owner {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
		}
		if loaded.Status == enums.OrderStatusCancelled {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order already cancelled")
		}
		if req.requireRequest && !loaded.CancellationRequested {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "no pending cancellation request")
		}

		next, ok := NextStatus(loaded.Status, req.event)
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict,
				fmt.Sprintf("order cannot be cancelled while %s", loaded.Status))
		}

		reason := req.reason
		if reason == "" && loaded.CancellationRequestNote != nil {
			reason = *loaded.CancellationRequestNote
		}
		if loaded.PaymentStatus == enums.PaymentStatusPaid {
			refund = loaded.RefundableCents()
		}

		now := s.now().UTC()
		updates := map[string]any{
			"status":                    next,
			"cancellation_requested":    false,
			"cancellation_request_note": nil,
			"cancellation_requested_at": nil,
			"cancelled_at":              now,
			"cancelled_by":              req.actorID,
			"cancellation_reason":       reason,
			"refund_amount_cents":       refund,
			"updated_at":                now,
		}
		if loaded.PaymentStatus != enums.PaymentStatusPaid {
			updates["payment_status"] = enums.PaymentStatusCancelled
		}
		if err := repo.Update(ctx, loaded.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel order")
		}

		previous = loaded.Status
		loaded.Status = next
		loaded.CancellationRequested = false
		loaded.CancellationRequestNote = nil
		loaded.CancellationRequestedAt = nil
		loaded.CancelledAt = &now
		actor := req.actorID
		loaded.CancelledBy = &actor
		loaded.CancellationReason = &reason
		loaded.RefundAmountCents = refund
		if loaded.PaymentStatus != enums.PaymentStatusPaid {
			loaded.PaymentStatus = enums.PaymentStatusCancelled
		}
		order = loaded
		return nil
	})
	if err != nil {
		return nil, err
	}

	result := &CancellationResult{Order: order, RefundCents: refund}
	if refund > 0 {
		s.applyRefund(ctx, result, req)
	}

	s.notifyStatus(ctx, order, &previous, "")
	s.logWarnings(ctx, order.ID, result.Warnings)
	return result, nil
}

// applyRefund runs after the cancellation has committed. Processor refunds are
// preferred on the self-service route; every failure falls through to the
// wallet, and a wallet failure becomes a warning.
func (s *service) applyRefund(ctx context.Context, result *CancellationResult, req cancelRequest) {
	order := result.Order

	if req.processorRefunds &&
		order.PaymentMethod == enums.PaymentMethodCard &&
		order.StripePaymentIntentID != nil &&
		s.refunds != nil {
		refund, err := s.refunds.CreateRefund(ctx, *order.StripePaymentIntentID)
		if err == nil {
			result.StripeRefundID = &refund.ID
			s.markRefunded(ctx, result, map[string]any{
				"payment_status":   enums.PaymentStatusRefunded,
				"stripe_refund_id": refund.ID,
			})
			order.StripeRefundID = &refund.ID
			return
		}
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("processor refund failed, falling back to wallet: %v", err))
	}

	actor := req.actorID
	orderID := order.ID
	_, err := s.wallet.Credit(ctx, wallet.CreditInput{
		UserID:      order.UserID,
		Type:        enums.WalletTxnCreditRefund,
		AmountCents: result.RefundCents,
		Description: fmt.Sprintf("Refund for order #%d", order.OrderNumber),
		OrderID:     &orderID,
		ActorID:     &actor,
	})
	if err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("wallet credit failed: %v", err))
		return
	}

	result.RefundedToWallet = true
	s.markRefunded(ctx, result, map[string]any{
		"payment_status":     enums.PaymentStatusRefunded,
		"refunded_to_wallet": true,
	})
	order.RefundedToWallet = true
}

func (s *service) markRefunded(ctx context.Context, result *CancellationResult, updates map[string]any) {
	updates["updated_at"] = s.now().UTC()
	if err := s.repo.Update(ctx, result.Order.ID, updates); err != nil {
		result.Warnings = append(result.Warnings, fmt.Sprintf("recording refund on order failed: %v", err))
		return
	}
	result.Order.PaymentStatus = enums.PaymentStatusRefunded
}

func (s *service) notifyStatus(ctx context.Context, order *models.Order, previous *enums.OrderStatus, detail string) {
	if s.notifier == nil || order == nil {
		return
	}
	s.notifier.OrderStatus(ctx, notifications.OrderStatusInput{
		UserID:         order.UserID,
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         order.Status,
		PreviousStatus: previous,
		Detail:         detail,
	})
}

func (s *service) logWarnings(ctx context.Context, orderID uuid.UUID, warnings []string) {
	if len(warnings) == 0 || s.logg == nil {
		return
	}
	var combined error
	for _, warning := range warnings {
		combined = multierr.Append(combined, fmt.Errorf("%s", warning))
	}
	s.logg.Error(s.logg.WithOrderID(ctx, orderID.String()), "cancellation committed with warnings", combined)
}
