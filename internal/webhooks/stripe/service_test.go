package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
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
	"github.com/velmora/storefront-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeOrdersRepo struct {
	orders  map[uuid.UUID]*models.Order
	items   map[uuid.UUID][]models.OrderLineItem
	updates int
}

func (f *fakeOrdersRepo) WithTx(tx *gorm.DB) orders.Repository { return f }

func (f *fakeOrdersRepo) Create(ctx context.Context, order *models.Order) error {
	f.orders[order.ID] = order
	return nil
}

func (f *fakeOrdersRepo) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeOrdersRepo) FindByIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return f.FindByID(ctx, orderID)
}

func (f *fakeOrdersRepo) FindByStripeSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeOrdersRepo) FindLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	return f.items[orderID], nil
}

func (f *fakeOrdersRepo) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	return nil, nil, nil
}

func (f *fakeOrdersRepo) Update(ctx context.Context, orderID uuid.UUID, changes map[string]any) error {
	order, ok := f.orders[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	f.updates++
	if status, ok := changes["status"]; ok {
		order.Status = status.(enums.OrderStatus)
	}
	if status, ok := changes["payment_status"]; ok {
		order.PaymentStatus = status.(enums.PaymentStatus)
	}
	if amount, ok := changes["amount_paid_cents"]; ok {
		order.AmountPaidCents = amount.(int64)
	}
	if sessionID, ok := changes["stripe_session_id"]; ok {
		id := sessionID.(string)
		order.StripeSessionID = &id
	}
	if intentID, ok := changes["stripe_payment_intent_id"]; ok {
		id := intentID.(string)
		order.StripePaymentIntentID = &id
	}
	return nil
}

type fakeProductsRepo struct {
	stock map[uuid.UUID]int
}

func (f *fakeProductsRepo) WithTx(tx *gorm.DB) products.Repository { return f }

func (f *fakeProductsRepo) Create(ctx context.Context, product *models.Product) error { return nil }

func (f *fakeProductsRepo) FindByID(ctx context.Context, productID uuid.UUID) (*models.Product, error) {
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeProductsRepo) DecrementStock(ctx context.Context, productID uuid.UUID, qty int) error {
	remaining := f.stock[productID] - qty
	if remaining < 0 {
		remaining = 0
	}
	f.stock[productID] = remaining
	return nil
}

type fakeInvoicesRepo struct {
	created []*models.Invoice
	err     error
}

func (f *fakeInvoicesRepo) WithTx(tx *gorm.DB) invoices.Repository { return f }

func (f *fakeInvoicesRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	if f.err != nil {
		return f.err
	}
	f.created = append(f.created, invoice)
	return nil
}

func (f *fakeInvoicesRepo) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	return nil, gorm.ErrRecordNotFound
}

type fakeNotifier struct {
	inputs []notifications.OrderStatusInput
}

func (f *fakeNotifier) OrderStatus(ctx context.Context, input notifications.OrderStatusInput) {
	f.inputs = append(f.inputs, input)
}

type webhookFixture struct {
	svc      *Service
	orders   *fakeOrdersRepo
	products *fakeProductsRepo
	invoices *fakeInvoicesRepo
	notifier *fakeNotifier
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	f := &webhookFixture{
		orders:   &fakeOrdersRepo{orders: map[uuid.UUID]*models.Order{}, items: map[uuid.UUID][]models.OrderLineItem{}},
		products: &fakeProductsRepo{stock: map[uuid.UUID]int{}},
		invoices: &fakeInvoicesRepo{},
		notifier: &fakeNotifier{},
	}
	svc, err := NewService(ServiceParams{
		OrdersRepo:        f.orders,
		ProductsRepo:      f.products,
		InvoicesRepo:      f.invoices,
		TransactionRunner: stubTxRunner{},
		Notifier:          f.notifier,
	})
	if err != nil {
		t.Fatalf("NewService error: %v", err)
	}
	f.svc = svc
	return f
}

func (f *webhookFixture) seedOrder(t *testing.T, method enums.PaymentMethod) *models.Order {
	t.Helper()
	order := &models.Order{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		OrderNumber:   1042,
		Status:        enums.OrderStatusPending,
		PaymentStatus: enums.PaymentStatusPending,
		PaymentMethod: method,
		TotalCents:    12500,
	}
	f.orders.orders[order.ID] = order
	return order
}

func checkoutEvent(t *testing.T, session stripe.CheckoutSession) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(session)
	if err != nil {
		t.Fatalf("marshal session: %v", err)
	}
	return &stripe.Event{
		ID:   "evt_test_1",
		Type: stripe.EventTypeCheckoutSessionCompleted,
		Data: &stripe.EventData{Raw: raw},
	}
}

func TestHandleEventCheckoutCompleted(t *testing.T) {
	f := newWebhookFixture(t)
	order := f.seedOrder(t, enums.PaymentMethodCard)

	productA := uuid.New()
	productB := uuid.New()
	f.products.stock[productA] = 10
	f.products.stock[productB] = 2
	f.orders.items[order.ID] = []models.OrderLineItem{
		{OrderID: order.ID, ProductID: productA, Qty: 3},
		{OrderID: order.ID, ProductID: productB, Qty: 5},
	}

	event := checkoutEvent(t, stripe.CheckoutSession{
		ID:            "cs_test_42",
		AmountTotal:   12500,
		Metadata:      map[string]string{"order_id": order.ID.String()},
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_test_42"},
	})

	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}

	if order.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", order.PaymentStatus)
	}
	if order.AmountPaidCents != 12500 {
		t.Fatalf("amount paid = %d, want 12500", order.AmountPaidCents)
	}
	if order.StripeSessionID == nil || *order.StripeSessionID != "cs_test_42" {
		t.Fatalf("stripe session id not recorded: %v", order.StripeSessionID)
	}
	if order.StripePaymentIntentID == nil || *order.StripePaymentIntentID != "pi_test_42" {
		t.Fatalf("stripe payment intent id not recorded: %v", order.StripePaymentIntentID)
	}
	if got := f.products.stock[productA]; got != 7 {
		t.Fatalf("product A stock = %d, want 7", got)
	}
	// oversold quantities clamp at zero rather than going negative
	if got := f.products.stock[productB]; got != 0 {
		t.Fatalf("product B stock = %d, want 0", got)
	}
	if len(f.invoices.created) != 1 {
		t.Fatalf("invoices created = %d, want 1", len(f.invoices.created))
	}
	if f.invoices.created[0].Number != "INV-1042" {
		t.Fatalf("invoice number = %s, want INV-1042", f.invoices.created[0].Number)
	}
	if f.invoices.created[0].AmountCents != 12500 {
		t.Fatalf("invoice amount = %d, want 12500", f.invoices.created[0].AmountCents)
	}
	if len(f.notifier.inputs) != 1 {
		t.Fatalf("notifications sent = %d, want 1", len(f.notifier.inputs))
	}
	if f.notifier.inputs[0].UserID != order.UserID || f.notifier.inputs[0].OrderID != order.ID {
		t.Fatal("notification not addressed to the order owner")
	}
}

func TestHandleEventCashOnDeliveryKeepsStatus(t *testing.T) {
	f := newWebhookFixture(t)
	order := f.seedOrder(t, enums.PaymentMethodCashOnDelivery)
	order.Status = enums.OrderStatusConfirmed

	event := checkoutEvent(t, stripe.CheckoutSession{
		ID:       "cs_test_cod",
		Metadata: map[string]string{"order_id": order.ID.String()},
	})

	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("HandleEvent error: %v", err)
	}
	if order.Status != enums.OrderStatusConfirmed {
		t.Fatalf("status = %s, want confirmed untouched", order.Status)
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", order.PaymentStatus)
	}
}

func TestHandleEventMissingOrderID(t *testing.T) {
	f := newWebhookFixture(t)
	order := f.seedOrder(t, enums.PaymentMethodCard)

	event := checkoutEvent(t, stripe.CheckoutSession{ID: "cs_no_meta"})

	err := f.svc.HandleEvent(context.Background(), event)
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if f.orders.updates != 0 {
		t.Fatal("no order must be mutated when metadata is missing")
	}
	if order.PaymentStatus != enums.PaymentStatusPending {
		t.Fatalf("payment status = %s, want pending", order.PaymentStatus)
	}
}

func TestHandleEventMalformedOrderID(t *testing.T) {
	f := newWebhookFixture(t)

	event := checkoutEvent(t, stripe.CheckoutSession{
		ID:       "cs_bad_meta",
		Metadata: map[string]string{"order_id": "not-a-uuid"},
	})

	if err := f.svc.HandleEvent(context.Background(), event); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHandleEventUnknownOrder(t *testing.T) {
	f := newWebhookFixture(t)

	event := checkoutEvent(t, stripe.CheckoutSession{
		ID:       "cs_unknown",
		Metadata: map[string]string{"order_id": uuid.New().String()},
	})

	if err := f.svc.HandleEvent(context.Background(), event); !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestHandleEventUnknownTypeIgnored(t *testing.T) {
	f := newWebhookFixture(t)

	event := &stripe.Event{
		ID:   "evt_other",
		Type: "invoice.paid",
		Data: &stripe.EventData{Raw: json.RawMessage(`{}`)},
	}
	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("unknown event types must be acknowledged: %v", err)
	}
	if f.orders.updates != 0 {
		t.Fatal("unknown event types must not mutate orders")
	}
}

func TestHandleEventInvoiceFailureIsNonFatal(t *testing.T) {
	f := newWebhookFixture(t)
	order := f.seedOrder(t, enums.PaymentMethodCard)
	f.invoices.err = errors.New("invoices table unavailable")

	event := checkoutEvent(t, stripe.CheckoutSession{
		ID:          "cs_inv_fail",
		AmountTotal: 12500,
		Metadata:    map[string]string{"order_id": order.ID.String()},
	})

	if err := f.svc.HandleEvent(context.Background(), event); err != nil {
		t.Fatalf("invoice failure must not fail the webhook: %v", err)
	}
	if order.PaymentStatus != enums.PaymentStatusPaid {
		t.Fatalf("payment status = %s, want paid", order.PaymentStatus)
	}
}

type fakeIdempotencyStore struct {
	keys map[string]bool
	err  error
}

func (f *fakeIdempotencyStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	if f.keys[key] {
		return false, nil
	}
	f.keys[key] = true
	return true, nil
}

func (f *fakeIdempotencyStore) IdempotencyKey(scope, id string) string {
	return scope + ":" + id
}

func (f *fakeIdempotencyStore) Del(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		delete(f.keys, key)
	}
	return nil
}

func TestIdempotencyGuard(t *testing.T) {
	store := &fakeIdempotencyStore{keys: map[string]bool{}}
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("unexpected guard error: %v", err)
	}

	dup, err := guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || dup {
		t.Fatalf("first delivery must not be duplicate: dup=%v err=%v", dup, err)
	}

	dup, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || !dup {
		t.Fatalf("second delivery must be duplicate: dup=%v err=%v", dup, err)
	}

	// releasing lets the retry through
	if err := guard.Delete(context.Background(), "evt_1"); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	dup, err = guard.CheckAndMark(context.Background(), "evt_1")
	if err != nil || dup {
		t.Fatalf("released event must process again: dup=%v err=%v", dup, err)
	}
}

func TestIdempotencyGuardStoreError(t *testing.T) {
	store := &fakeIdempotencyStore{keys: map[string]bool{}, err: errors.New("redis down")}
	guard, err := NewIdempotencyGuard(store, time.Hour, "stripe")
	if err != nil {
		t.Fatalf("unexpected guard error: %v", err)
	}
	if _, err := guard.CheckAndMark(context.Background(), "evt_1"); err == nil {
		t.Fatal("expected store error to surface")
	}
}
