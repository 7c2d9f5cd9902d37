package orders

import (
	"testing"

	"github.com/velmora/storefront-backend/pkg/enums"
)

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name    string
		current enums.OrderStatus
		event   Event
		want    enums.OrderStatus
		allowed bool
	}{
		{name: "pending confirm", current: enums.OrderStatusPending, event: EventConfirm, want: enums.OrderStatusConfirmed, allowed: true},
		{name: "confirmed pack", current: enums.OrderStatusConfirmed, event: EventPack, want: enums.OrderStatusPacked, allowed: true},
		{name: "packed dispatch", current: enums.OrderStatusPacked, event: EventDispatch, want: enums.OrderStatusOutForDelivery, allowed: true},
		{name: "out for delivery ship", current: enums.OrderStatusOutForDelivery, event: EventShip, want: enums.OrderStatusShipped, allowed: true},
		{name: "shipped deliver", current: enums.OrderStatusShipped, event: EventDeliver, want: enums.OrderStatusDelivered, allowed: true},

		{name: "pending skip to pack", current: enums.OrderStatusPending, event: EventPack, allowed: false},
		{name: "delivered is terminal", current: enums.OrderStatusDelivered, event: EventCancel, allowed: false},
		{name: "cancelled is terminal", current: enums.OrderStatusCancelled, event: EventConfirm, allowed: false},

		{name: "request from pending", current: enums.OrderStatusPending, event: EventRequestCancellation, want: enums.OrderStatusPending, allowed: true},
		{name: "request from packed", current: enums.OrderStatusPacked, event: EventRequestCancellation, want: enums.OrderStatusPacked, allowed: true},
		{name: "no request once out for delivery", current: enums.OrderStatusOutForDelivery, event: EventRequestCancellation, allowed: false},
		{name: "no request once shipped", current: enums.OrderStatusShipped, event: EventRequestCancellation, allowed: false},

		{name: "cancel from shipped", current: enums.OrderStatusShipped, event: EventCancel, want: enums.OrderStatusCancelled, allowed: true},
		{name: "approve from confirmed", current: enums.OrderStatusConfirmed, event: EventApproveCancellation, want: enums.OrderStatusCancelled, allowed: true},
		{name: "reject restores confirmed", current: enums.OrderStatusPacked, event: EventRejectCancellation, want: enums.OrderStatusConfirmed, allowed: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			next, ok := NextStatus(tc.current, tc.event)
			if ok != tc.allowed {
				t.Fatalf("NextStatus(%s, %s) allowed=%v, want %v", tc.current, tc.event, ok, tc.allowed)
			}
			if tc.allowed && next != tc.want {
				t.Fatalf("NextStatus(%s, %s) = %s, want %s", tc.current, tc.event, next, tc.want)
			}
		})
	}
}

func TestTerminalStatusesHaveNoMoves(t *testing.T) {
	for _, status := range []enums.OrderStatus{enums.OrderStatusDelivered, enums.OrderStatusCancelled} {
		if len(transitions[status]) != 0 {
			t.Fatalf("%s must not allow any event", status)
		}
	}
}
