package notifications

import (
	"context"

	"github.com/velmora/storefront-backend/pkg/logger"
)

// Dispatcher sends notifications fire-and-forget: failures are logged and
// never propagated to the calling flow.
type Dispatcher struct {
	svc  Service
	logg *logger.Logger
}

// NewDispatcher wraps a notifications service for best-effort delivery.
func NewDispatcher(svc Service, logg *logger.Logger) *Dispatcher {
	return &Dispatcher{svc: svc, logg: logg}
}

// OrderStatus records an order status notification, swallowing failures.
func (d *Dispatcher) OrderStatus(ctx context.Context, input OrderStatusInput) {
	if d == nil || d.svc == nil {
		return
	}
	if _, err := d.svc.NotifyOrderStatus(ctx, input); err != nil && d.logg != nil {
		d.logg.Warn(d.logg.WithOrderID(ctx, input.OrderID.String()), "order status notification failed: "+err.Error())
	}
}

// Notify records a generic notification, swallowing failures.
func (d *Dispatcher) Notify(ctx context.Context, input NotifyInput) {
	if d == nil || d.svc == nil {
		return
	}
	if _, err := d.svc.Notify(ctx, input); err != nil && d.logg != nil {
		d.logg.Warn(ctx, "notification failed: "+err.Error())
	}
}
