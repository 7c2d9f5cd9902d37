package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/velmora/storefront-backend/internal/invoices"
	"github.com/velmora/storefront-backend/internal/notifications"
	"github.com/velmora/storefront-backend/internal/orders"
	"github.com/velmora/storefront-backend/internal/products"
	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/logger"
	"github.com/velmora/storefront-backend/pkg/metrics"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type statusNotifier interface {
	OrderStatus(ctx context.Context, input notifications.OrderStatusInput)
}

type ServiceParams struct {
	OrdersRepo        orders.Repository
	ProductsRepo      products.Repository
	InvoicesRepo      invoices.Repository
	TransactionRunner txRunner
	Notifier          statusNotifier
	Logger            *logger.Logger
	Metrics           *metrics.CommerceMetrics
}

// Service reconciles payment processor events into order state.
type Service struct {
	ordersRepo   orders.Repository
	productsRepo products.Repository
	invoicesRepo invoices.Repository
	txRunner     txRunner
	notifier     statusNotifier
	logg         *logger.Logger
	metrics      *metrics.CommerceMetrics
	now          func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.OrdersRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.ProductsRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "products repo required")
	}
	if params.InvoicesRepo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "invoices repo required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	return &Service{
		ordersRepo:   params.OrdersRepo,
		productsRepo: params.ProductsRepo,
		invoicesRepo: params.InvoicesRepo,
		txRunner:     params.TransactionRunner,
		notifier:     params.Notifier,
		logg:         params.Logger,
		metrics:      params.Metrics,
		now:          time.Now,
	}, nil
}

// HandleEvent processes a verified webhook event. Unknown event types are
// acknowledged without side effects.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	started := s.now()
	var err error
	switch event.Type {
	case stripe.EventTypeCheckoutSessionCompleted:
		var session stripe.CheckoutSession
		if decodeErr := json.Unmarshal(event.Data.Raw, &session); decodeErr != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, decodeErr, "decode checkout session event")
		}
		err = s.handleCheckoutCompleted(ctx, &session)
	default:
		return nil
	}

	s.metrics.ObserveWebhook(string(event.Type), s.now().Sub(started))
	if err != nil {
		s.metrics.IncWebhookFailed(string(event.Type))
		return err
	}
	s.metrics.IncWebhookHandled(string(event.Type))
	return nil
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, session *stripe.CheckoutSession) error {
	rawOrderID := ""
	if session.Metadata != nil {
		rawOrderID = session.Metadata["order_id"]
	}
	if rawOrderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "metadata.order_id missing")
	}
	orderID, err := uuid.Parse(rawOrderID)
	if err != nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "metadata.order_id is not a valid id")
	}

	var order *models.Order
	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := s.ordersRepo.WithTx(tx)
		productsRepo := s.productsRepo.WithTx(tx)

		loaded, err := ordersRepo.FindByIDForUpdate(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		now := s.now().UTC()
		updates := map[string]any{
			"payment_status":    enums.PaymentStatusPaid,
			"stripe_session_id": session.ID,
			"updated_at":        now,
		}
		if session.AmountTotal > 0 {
			updates["amount_paid_cents"] = session.AmountTotal
			loaded.AmountPaidCents = session.AmountTotal
		}
		if session.PaymentIntent != nil && session.PaymentIntent.ID != "" {
			updates["stripe_payment_intent_id"] = session.PaymentIntent.ID
			intentID := session.PaymentIntent.ID
			loaded.StripePaymentIntentID = &intentID
		}
		// cash_on_delivery settles out of band, fulfillment stays put
		if loaded.PaymentMethod != enums.PaymentMethodCashOnDelivery {
			updates["status"] = enums.OrderStatusPending
			loaded.Status = enums.OrderStatusPending
		}
		if err := ordersRepo.Update(ctx, loaded.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reconcile order payment")
		}
		loaded.PaymentStatus = enums.PaymentStatusPaid
		sessionID := session.ID
		loaded.StripeSessionID = &sessionID

		lineItems, err := ordersRepo.FindLineItems(ctx, loaded.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load line items")
		}
		for _, item := range lineItems {
			if err := productsRepo.DecrementStock(ctx, item.ProductID, item.Qty); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decrement product stock")
			}
		}

		order = loaded
		return nil
	})
	if err != nil {
		return err
	}

	s.issueInvoice(ctx, order, session)
	s.notifyPayment(ctx, order)
	return nil
}

// issueInvoice is best-effort: a failed invoice never fails the webhook.
func (s *Service) issueInvoice(ctx context.Context, order *models.Order, session *stripe.CheckoutSession) {
	amount := order.AmountPaidCents
	if amount == 0 {
		amount = order.TotalCents
	}
	sessionID := session.ID
	invoice := &models.Invoice{
		OrderID:         order.ID,
		Number:          fmt.Sprintf("INV-%d", order.OrderNumber),
		AmountCents:     amount,
		StripeSessionID: &sessionID,
		IssuedAt:        s.now().UTC(),
	}
	if err := s.invoicesRepo.Create(ctx, invoice); err != nil && s.logg != nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, order.ID.String()), "invoice creation failed: "+err.Error())
	}
}

func (s *Service) notifyPayment(ctx context.Context, order *models.Order) {
	if s.notifier == nil {
		return
	}
	s.notifier.OrderStatus(ctx, notifications.OrderStatusInput{
		UserID:      order.UserID,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		Status:      order.Status,
		Detail:      "Payment received.",
	})
}
