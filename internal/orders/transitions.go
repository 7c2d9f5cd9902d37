package orders

import "github.com/velmora/storefront-backend/pkg/enums"

// Event names a lifecycle action applied to an order.
type Event string

const (
	EventConfirm  Event = "confirm"
	EventPack     Event = "pack"
	EventDispatch Event = "dispatch"
	EventShip     Event = "ship"
	EventDeliver  Event = "deliver"

	EventRequestCancellation Event = "request_cancellation"
	EventApproveCancellation Event = "approve_cancellation"
	EventRejectCancellation  Event = "reject_cancellation"
	EventCancel              Event = "cancel"
)

// transitions is the single authority on status moves: current status x event
// -> next status. Every mutation consults this table; an absent entry means
// the event is not allowed in that state.
var transitions = map[enums.OrderStatus]map[Event]enums.OrderStatus{
	enums.OrderStatusPending: {
		EventConfirm:             enums.OrderStatusConfirmed,
		EventRequestCancellation: enums.OrderStatusPending,
		EventApproveCancellation: enums.OrderStatusCancelled,
		EventRejectCancellation:  enums.OrderStatusConfirmed,
		EventCancel:              enums.OrderStatusCancelled,
	},
	enums.OrderStatusConfirmed: {
		EventPack:                enums.OrderStatusPacked,
		EventRequestCancellation: enums.OrderStatusConfirmed,
		EventApproveCancellation: enums.OrderStatusCancelled,
		EventRejectCancellation:  enums.OrderStatusConfirmed,
		EventCancel:              enums.OrderStatusCancelled,
	},
	enums.OrderStatusPacked: {
		EventDispatch:            enums.OrderStatusOutForDelivery,
		EventRequestCancellation: enums.OrderStatusPacked,
		EventApproveCancellation: enums.OrderStatusCancelled,
		EventRejectCancellation:  enums.OrderStatusConfirmed,
		EventCancel:              enums.OrderStatusCancelled,
	},
	enums.OrderStatusOutForDelivery: {
		EventShip:                enums.OrderStatusShipped,
		EventDeliver:             enums.OrderStatusDelivered,
		EventApproveCancellation: enums.OrderStatusCancelled,
		EventRejectCancellation:  enums.OrderStatusConfirmed,
		EventCancel:              enums.OrderStatusCancelled,
	},
	enums.OrderStatusShipped: {
		EventDeliver:             enums.OrderStatusDelivered,
		EventApproveCancellation: enums.OrderStatusCancelled,
		EventRejectCancellation:  enums.OrderStatusConfirmed,
		EventCancel:              enums.OrderStatusCancelled,
	},
	enums.OrderStatusDelivered: {},
	enums.OrderStatusCancelled: {},
}

// NextStatus resolves the target status for an event, reporting whether the
// move is allowed from the current status.
func NextStatus(current enums.OrderStatus, event Event) (enums.OrderStatus, bool) {
	row, ok := transitions[current]
	if !ok {
		return "", false
	}
	next, ok := row[event]
	return next, ok
}

// CanApply reports whether the event is allowed from the current status.
func CanApply(current enums.OrderStatus, event Event) bool {
	_, ok := NextStatus(current, event)
	return ok
}

// fulfillmentEventFor maps a requested fulfillment status to its event.
func fulfillmentEventFor(target enums.OrderStatus) (Event, bool) {
	switch target {
	case enums.OrderStatusConfirmed:
		return EventConfirm, true
	case enums.OrderStatusPacked:
		return EventPack, true
	case enums.OrderStatusOutForDelivery:
		return EventDispatch, true
	case enums.OrderStatusShipped:
		return EventShip, true
	case enums.OrderStatusDelivered:
		return EventDeliver, true
	default:
		return "", false
	}
}
