package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/google/uuid"
	stripelib "github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/velmora/storefront-backend/internal/notifications"
	"github.com/velmora/storefront-backend/internal/wallet"
	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/pagination"
)

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeRepo struct {
	orders map[uuid.UUID]*models.Order
}

func newFakeRepo(orders ...*models.Order) *fakeRepo {
	repo := &fakeRepo{orders: map[uuid.UUID]*models.Order{}}
	for _, order := range orders {
		if order.ID == uuid.Nil {
			order.ID = uuid.New()
		}
		repo.orders[order.ID] = order
	}
	return repo
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, order *models.Order) error {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	f.orders[order.ID] = order
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *order
	return &copied, nil
}

func (f *fakeRepo) FindByIDForUpdate(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return f.FindByID(ctx, orderID)
}

func (f *fakeRepo) FindByStripeSessionID(ctx context.Context, sessionID string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.StripeSessionID != nil && *order.StripeSessionID == sessionID {
			copied := *order
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindLineItems(ctx context.Context, orderID uuid.UUID) ([]models.OrderLineItem, error) {
	order, ok := f.orders[orderID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return order.Items, nil
}

func (f *fakeRepo) ListByUser(ctx context.Context, userID uuid.UUID, params pagination.Params) ([]models.Order, *pagination.Cursor, error) {
	var out []models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			out = append(out, *order)
		}
	}
	return out, nil, nil
}

func (f *fakeRepo) Update(ctx context.Context, orderID uuid.UUID, updates map[string]any) error {
	order, ok := f.orders[orderID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for column, value := range updates {
		applyOrderColumn(order, column, value)
	}
	return nil
}

func applyOrderColumn(order *models.Order, column string, value any) {
	switch column {
	case "status":
		order.Status = value.(enums.OrderStatus)
	case "payment_status":
		order.PaymentStatus = value.(enums.PaymentStatus)
	case "cancellation_requested":
		order.CancellationRequested = value.(bool)
	case "cancellation_request_note":
		order.CancellationRequestNote = toStringPtr(value)
	case "cancellation_requested_at", "cancelled_at", "updated_at", "processed_at":
		// timestamps not asserted through column writes
	case "cancelled_by":
		id := value.(uuid.UUID)
		order.CancelledBy = &id
	case "cancellation_reason":
		order.CancellationReason = toStringPtr(value)
	case "refund_amount_cents":
		order.RefundAmountCents = value.(int64)
	case "refunded_to_wallet":
		order.RefundedToWallet = value.(bool)
	case "stripe_refund_id":
		order.StripeRefundID = toStringPtr(value)
	}
}

func toStringPtr(value any) *string {
	if value == nil {
		return nil
	}
	switch v := value.(type) {
	case string:
		return &v
	case *string:
		return v
	}
	return nil
}

type fakeWallet struct {
	credits []wallet.CreditInput
	err     error
}

func (f *fakeWallet) Credit(ctx context.Context, input wallet.CreditInput) (*models.WalletTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.credits = append(f.credits, input)
	return &models.WalletTransaction{
		ID:          uuid.New(),
		UserID:      input.UserID,
		Type:        input.Type,
		AmountCents: input.AmountCents,
	}, nil
}

type fakeRefunds struct {
	refundID string
	err      error
	calls    []string
}

func (f *fakeRefunds) CreateRefund(ctx context.Context, paymentIntentID string) (*stripelib.Refund, error) {
	f.calls = append(f.calls, paymentIntentID)
	if f.err != nil {
		return nil, f.err
	}
	return &stripelib.Refund{ID: f.refundID}, nil
}

type fakeNotifier struct {
	inputs []notifications.OrderStatusInput
}

func (f *fakeNotifier) OrderStatus(ctx context.Context, input notifications.OrderStatusInput) {
	f.inputs = append(f.inputs, input)
}

type serviceFixture struct {
	svc      Service
	repo     *fakeRepo
	wallet   *fakeWallet
	refunds  *fakeRefunds
	notifier *fakeNotifier
}

func newFixture(t *testing.T, orders ...*models.Order) *serviceFixture {
	t.Helper()
	repo := newFakeRepo(orders...)
	walletFake := &fakeWallet{}
	refunds := &fakeRefunds{refundID: "re_test_123"}
	notifier := &fakeNotifier{}
	svc, err := NewService(repo, stubTxRunner{}, walletFake, refunds, notifier, nil)
	if err != nil {
		t.Fatalf("unexpected service error: %v", err)
	}
	return &serviceFixture{svc: svc, repo: repo, wallet: walletFake, refunds: refunds, notifier: notifier}
}

func paidOrder(userID uuid.UUID, status enums.OrderStatus, totalCents, paidCents int64) *models.Order {
	return &models.Order{
		ID:              uuid.New(),
		OrderNumber:     1001,
		UserID:          userID,
		Status:          status,
		PaymentStatus:   enums.PaymentStatusPaid,
		PaymentMethod:   enums.PaymentMethodCard,
		TotalCents:      totalCents,
		AmountPaidCents: paidCents,
	}
}

func TestRequestCancellationGuards(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name   string
		mutate func(o *models.Order)
	}{
		{name: "delivered", mutate: func(o *models.Order) { o.Status = enums.OrderStatusDelivered }},
		{name: "shipped", mutate: func(o *models.Order) { o.Status = enums.OrderStatusShipped }},
		{name: "out for delivery", mutate: func(o *models.Order) { o.Status = enums.OrderStatusOutForDelivery }},
		{name: "already cancelled", mutate: func(o *models.Order) { o.Status = enums.OrderStatusCancelled }},
		{name: "already requested", mutate: func(o *models.Order) { o.CancellationRequested = true }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := paidOrder(userID, enums.OrderStatusConfirmed, 10000, 10000)
			tc.mutate(order)
			fx := newFixture(t, order)

			_, err := fx.svc.RequestCancellation(context.Background(), RequestCancellationInput{
				OrderID: order.ID,
				UserID:  userID,
				Reason:  "changed my mind",
			})
			if !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
				t.Fatalf("expected state conflict, got %v", err)
			}
		})
	}
}

func TestRequestCancellationOwnership(t *testing.T) {
	order := paidOrder(uuid.New(), enums.OrderStatusConfirmed, 10000, 10000)
	fx := newFixture(t, order)

	_, err := fx.svc.RequestCancellation(context.Background(), RequestCancellationInput{
		OrderID: order.ID,
		UserID:  uuid.New(),
		Reason:  "not mine",
	})
	if !pkgerrors.Is(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRequestCancellationSetsFlagOnly(t *testing.T) {
	userID := uuid.New()
	order := paidOrder(userID, enums.OrderStatusConfirmed, 10000, 10000)
	fx := newFixture(t, order)

	updated, err := fx.svc.RequestCancellation(context.Background(), RequestCancellationInput{
		OrderID: order.ID,
		UserID:  userID,
		Reason:  "found a better price",
	})
	if err != nil {
		t.Fatalf("RequestCancellation error: %v", err)
	}
	if !updated.CancellationRequested || updated.CancellationRequestNote == nil {
		t.Fatalf("expected request flag set: %+v", updated)
	}
	if updated.Status != enums.OrderStatusConfirmed {
		t.Fatalf("status must not change on request, got %s", updated.Status)
	}
	if len(fx.wallet.credits) != 0 {
		t.Fatalf("request must not touch the wallet")
	}
}

func TestApproveCancellationEndState(t *testing.T) {
	userID := uuid.New()
	adminID := uuid.New()
	order := paidOrder(userID, enums.OrderStatusConfirmed, 10000, 10000)
	order.CancellationRequested = true
	note := "please cancel"
	order.CancellationRequestNote = &note
	fx := newFixture(t, order)

	result, err := fx.svc.ApproveCancellation(context.Background(), ApproveCancellationInput{
		OrderID: order.ID,
		AdminID: adminID,
	})
	if err != nil {
		t.Fatalf("ApproveCancellation error: %v", err)
	}
	if !result.Committed() {
		t.Fatalf("expected clean commit, warnings: %v", result.Warnings)
	}

	stored := fx.repo.orders[order.ID]
	if stored.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", stored.Status)
	}
	if stored.PaymentStatus != enums.PaymentStatusRefunded {
		t.Fatalf("expected refunded payment status, got %s", stored.PaymentStatus)
	}
	if !stored.RefundedToWallet || stored.RefundAmountCents != 10000 {
		t.Fatalf("expected wallet refund of 10000, got %+v", stored)
	}
	if stored.CancellationRequested {
		t.Fatal("request flag must be cleared")
	}
	if len(fx.wallet.credits) != 1 || fx.wallet.credits[0].AmountCents != 10000 {
		t.Fatalf("expected one wallet credit of 10000, got %+v", fx.wallet.credits)
	}
	if fx.wallet.credits[0].Type != enums.WalletTxnCreditRefund {
		t.Fatalf("expected credit_refund type, got %s", fx.wallet.credits[0].Type)
	}
	if len(fx.notifier.inputs) == 0 {
		t.Fatal("expected a status notification")
	}
}

func TestApproveCancellationRequiresRequest(t *testing.T) {
	order := paidOrder(uuid.New(), enums.OrderStatusConfirmed, 10000, 10000)
	fx := newFixture(t, order)

	_, err := fx.svc.ApproveCancellation(context.Background(), ApproveCancellationInput{
		OrderID: order.ID,
		AdminID: uuid.New(),
	})
	if !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestCancelAlreadyCancelledNoSecondCredit(t *testing.T) {
	order := paidOrder(uuid.New(), enums.OrderStatusCancelled, 10000, 10000)
	fx := newFixture(t, order)

	_, err := fx.svc.Cancel(context.Background(), CancelInput{
		OrderID: order.ID,
		AdminID: uuid.New(),
		Reason:  "duplicate",
	})
	if !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if len(fx.wallet.credits) != 0 {
		t.Fatalf("cancelled order must not be credited again")
	}
}

func TestRefundPrecedence(t *testing.T) {
	tests := []struct {
		name       string
		totalCents int64
		paidCents  int64
		want       int64
	}{
		{name: "amount paid wins", totalCents: 8000, paidCents: 5000, want: 5000},
		{name: "falls back to total", totalCents: 8000, paidCents: 0, want: 8000},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			order := paidOrder(uuid.New(), enums.OrderStatusConfirmed, tc.totalCents, tc.paidCents)
			fx := newFixture(t, order)

			result, err := fx.svc.Cancel(context.Background(), CancelInput{
				OrderID: order.ID,
				AdminID: uuid.New(),
				Reason:  "admin action",
			})
			if err != nil {
				t.Fatalf("Cancel error: %v", err)
			}
			if result.RefundCents != tc.want {
				t.Fatalf("expected refund %d, got %d", tc.want, result.RefundCents)
			}
			if len(fx.wallet.credits) != 1 || fx.wallet.credits[0].AmountCents != tc.want {
				t.Fatalf("expected wallet credit %d, got %+v", tc.want, fx.wallet.credits)
			}
		})
	}
}

func TestCancelUnpaidOrderNoCredit(t *testing.T) {
	order := paidOrder(uuid.New(), enums.OrderStatusPending, 10000, 0)
	order.PaymentStatus = enums.PaymentStatusPending
	fx := newFixture(t, order)

	result, err := fx.svc.Cancel(context.Background(), CancelInput{
		OrderID: order.ID,
		AdminID: uuid.New(),
		Reason:  "unpaid",
	})
	if err != nil {
		t.Fatalf("Cancel error: %v", err)
	}
	if result.RefundCents != 0 || len(fx.wallet.credits) != 0 {
		t.Fatalf("unpaid order must not be refunded: %+v", result)
	}
	stored := fx.repo.orders[order.ID]
	if stored.PaymentStatus != enums.PaymentStatusCancelled {
		t.Fatalf("expected cancelled payment status, got %s", stored.PaymentStatus)
	}
}

func TestCancelDeliveredRejected(t *testing.T) {
	order := paidOrder(uuid.New(), enums.OrderStatusDelivered, 10000, 10000)
	fx := newFixture(t, order)

	if _, err := fx.svc.Cancel(context.Background(), CancelInput{
		OrderID: order.ID,
		AdminID: uuid.New(),
		Reason:  "too late",
	}); !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
}

func TestWalletFailureBecomesWarning(t *testing.T) {
	order := paidOrder(uuid.New(), enums.OrderStatusConfirmed, 10000, 10000)
	order.CancellationRequested = true
	fx := newFixture(t, order)
	fx.wallet.err = errors.New("wallet unavailable")

	result, err := fx.svc.ApproveCancellation(context.Background(), ApproveCancellationInput{
		OrderID: order.ID,
		AdminID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("cancellation must commit despite wallet failure, got %v", err)
	}
	if result.Committed() {
		t.Fatal("expected warnings on result")
	}
	if !strings.Contains(strings.Join(result.Warnings, "; "), "wallet credit failed") {
		t.Fatalf("expected wallet warning, got %v", result.Warnings)
	}

	stored := fx.repo.orders[order.ID]
	if stored.Status != enums.OrderStatusCancelled {
		t.Fatalf("order must still be cancelled, got %s", stored.Status)
	}
	if stored.PaymentStatus != enums.PaymentStatusPaid || stored.RefundedToWallet {
		t.Fatalf("payment must stay paid when credit failed: %+v", stored)
	}
}

func TestCancelOwnUsesProcessorRefund(t *testing.T) {
	userID := uuid.New()
	order := paidOrder(userID, enums.OrderStatusConfirmed, 10000, 10000)
	intent := "pi_test_456"
	order.StripePaymentIntentID = &intent
	fx := newFixture(t, order)

	result, err := fx.svc.CancelOwn(context.Background(), CancelOwnInput{
		OrderID: order.ID,
		UserID:  userID,
		Reason:  "no longer needed",
	})
	if err != nil {
		t.Fatalf("CancelOwn error: %v", err)
	}
	if len(fx.refunds.calls) != 1 || fx.refunds.calls[0] != intent {
		t.Fatalf("expected one processor refund for %s, got %v", intent, fx.refunds.calls)
	}
	if len(fx.wallet.credits) != 0 {
		t.Fatal("processor refund must not also credit the wallet")
	}
	if result.StripeRefundID == nil || *result.StripeRefundID != "re_test_123" {
		t.Fatalf("expected stripe refund id on result, got %+v", result.StripeRefundID)
	}
	if result.RefundedToWallet {
		t.Fatal("refund went through the processor, not the wallet")
	}

	stored := fx.repo.orders[order.ID]
	if stored.PaymentStatus != enums.PaymentStatusRefunded {
		t.Fatalf("expected refunded payment status, got %s", stored.PaymentStatus)
	}
}

func TestCancelOwnFallsBackToWalletOnProcessorFailure(t *testing.T) {
	userID := uuid.New()
	order := paidOrder(userID, enums.OrderStatusConfirmed, 10000, 10000)
	intent := "pi_test_456"
	order.StripePaymentIntentID = &intent
	fx := newFixture(t, order)
	fx.refunds.err = errors.New("stripe down")

	result, err := fx.svc.CancelOwn(context.Background(), CancelOwnInput{
		OrderID: order.ID,
		UserID:  userID,
		Reason:  "no longer needed",
	})
	if err != nil {
		t.Fatalf("CancelOwn error: %v", err)
	}
	if len(fx.wallet.credits) != 1 || fx.wallet.credits[0].AmountCents != 10000 {
		t.Fatalf("expected wallet fallback credit, got %+v", fx.wallet.credits)
	}
	if !result.RefundedToWallet {
		t.Fatal("expected wallet refund flag")
	}
	if !strings.Contains(strings.Join(result.Warnings, "; "), "processor refund failed") {
		t.Fatalf("expected processor warning, got %v", result.Warnings)
	}

	stored := fx.repo.orders[order.ID]
	if stored.Status != enums.OrderStatusCancelled {
		t.Fatalf("order must be cancelled regardless of refund path, got %s", stored.Status)
	}
}

func TestCancelOwnWithoutIntentUsesWallet(t *testing.T) {
	userID := uuid.New()
	order := paidOrder(userID, enums.OrderStatusConfirmed, 10000, 10000)
	fx := newFixture(t, order)

	result, err := fx.svc.CancelOwn(context.Background(), CancelOwnInput{
		OrderID: order.ID,
		UserID:  userID,
		Reason:  "no longer needed",
	})
	if err != nil {
		t.Fatalf("CancelOwn error: %v", err)
	}
	if len(fx.refunds.calls) != 0 {
		t.Fatal("no payment intent recorded, processor must not be called")
	}
	if len(fx.wallet.credits) != 1 || !result.RefundedToWallet {
		t.Fatalf("expected wallet refund, got %+v", result)
	}
}

func TestCancelOwnOwnership(t *testing.T) {
	order := paidOrder(uuid.New(), enums.OrderStatusConfirmed, 10000, 10000)
	fx := newFixture(t, order)

	if _, err := fx.svc.CancelOwn(context.Background(), CancelOwnInput{
		OrderID: order.ID,
		UserID:  uuid.New(),
		Reason:  "not mine",
	}); !pkgerrors.Is(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestRejectCancellationRestoresConfirmed(t *testing.T) {
	userID := uuid.New()
	order := paidOrder(userID, enums.OrderStatusPacked, 10000, 10000)
	order.CancellationRequested = true
	note := "changed my mind"
	order.CancellationRequestNote = &note
	fx := newFixture(t, order)

	reason := "already packed for dispatch"
	updated, err := fx.svc.RejectCancellation(context.Background(), RejectCancellationInput{
		OrderID: order.ID,
		AdminID: uuid.New(),
		Reason:  &reason,
	})
	if err != nil {
		t.Fatalf("RejectCancellation error: %v", err)
	}
	if updated.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}
	if updated.CancellationRequested {
		t.Fatal("request flag must be cleared")
	}
	if len(fx.notifier.inputs) != 1 || !strings.Contains(fx.notifier.inputs[0].Detail, reason) {
		t.Fatalf("expected rejection context in notification, got %+v", fx.notifier.inputs)
	}
}

func TestUpdateStatusFollowsTable(t *testing.T) {
	userID := uuid.New()
	adminID := uuid.New()

	order := paidOrder(userID, enums.OrderStatusPending, 10000, 10000)
	fx := newFixture(t, order)

	updated, err := fx.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusConfirmed,
		ActorID: adminID,
	})
	if err != nil {
		t.Fatalf("UpdateStatus error: %v", err)
	}
	if updated.Status != enums.OrderStatusConfirmed {
		t.Fatalf("expected confirmed, got %s", updated.Status)
	}

	if _, err := fx.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusShipped,
		ActorID: adminID,
	}); !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict skipping states, got %v", err)
	}

	if _, err := fx.svc.UpdateStatus(context.Background(), UpdateStatusInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusCancelled,
		ActorID: adminID,
	}); !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error setting cancelled directly, got %v", err)
	}
}

func TestGetOwnership(t *testing.T) {
	userID := uuid.New()
	order := paidOrder(userID, enums.OrderStatusConfirmed, 10000, 10000)
	fx := newFixture(t, order)

	if _, err := fx.svc.Get(context.Background(), GetInput{
		OrderID:   order.ID,
		ActorID:   uuid.New(),
		ActorRole: enums.UserRoleCustomer,
	}); !pkgerrors.Is(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for stranger, got %v", err)
	}

	got, err := fx.svc.Get(context.Background(), GetInput{
		OrderID:   order.ID,
		ActorID:   uuid.New(),
		ActorRole: enums.UserRoleAdmin,
	})
	if err != nil {
		t.Fatalf("admin read error: %v", err)
	}
	if got.ID != order.ID {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestCancelReasonFallsBackToRequestNote(t *testing.T) {
	order := paidOrder(uuid.New(), enums.OrderStatusConfirmed, 10000, 10000)
	order.CancellationRequested = true
	note := "wrong size ordered"
	order.CancellationRequestNote = &note
	fx := newFixture(t, order)

	result, err := fx.svc.ApproveCancellation(context.Background(), ApproveCancellationInput{
		OrderID: order.ID,
		AdminID: uuid.New(),
	})
	if err != nil {
		t.Fatalf("ApproveCancellation error: %v", err)
	}
	stored := fx.repo.orders[order.ID]
	if stored.CancellationReason == nil || *stored.CancellationReason != note {
		t.Fatalf("expected request note as reason, got %+v", stored.CancellationReason)
	}
	if fmt.Sprintf("%d", result.RefundCents) != "10000" {
		t.Fatalf("expected full refund, got %d", result.RefundCents)
	}
}
