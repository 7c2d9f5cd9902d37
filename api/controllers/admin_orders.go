package controllers

import (
	"net/http"

	"github.com/velmora/storefront-backend/api/responses"
	"github.com/velmora/storefront-backend/api/validators"
	"github.com/velmora/storefront-backend/internal/orders"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/logger"
)

type updateStatusBody struct {
	Status string `json:"status" validate:"required"`
}

type adminCancelBody struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

type rejectCancellationBody struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

// AdminUpdateOrderStatus advances fulfillment through the transition table.
func AdminUpdateOrderStatus(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateStatusBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		target, err := enums.ParseOrderStatus(body.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status"))
			return
		}

		order, err := svc.UpdateStatus(r.Context(), orders.UpdateStatusInput{
			OrderID: orderID,
			Target:  target,
			ActorID: adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

// AdminApproveCancellation resolves a pending cancellation request.
func AdminApproveCancellation(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ApproveCancellation(r.Context(), orders.ApproveCancellationInput{
			OrderID: orderID,
			AdminID: adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancellationView{
			Order:            newOrderView(result.Order),
			RefundCents:      result.RefundCents,
			RefundedToWallet: result.RefundedToWallet,
			StripeRefundID:   result.StripeRefundID,
			Warnings:         result.Warnings,
		})
	}
}

// AdminRejectCancellation declines a pending cancellation request.
func AdminRejectCancellation(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body rejectCancellationBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		order, err := svc.RejectCancellation(r.Context(), orders.RejectCancellationInput{
			OrderID: orderID,
			AdminID: adminID,
			Reason:  body.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderView(order))
	}
}

// AdminCancelOrder cancels directly without a pending request.
func AdminCancelOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		orderID, err := pathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body adminCancelBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Cancel(r.Context(), orders.CancelInput{
			OrderID: orderID,
			AdminID: adminID,
			Reason:  body.Reason,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, cancellationView{
			Order:            newOrderView(result.Order),
			RefundCents:      result.RefundCents,
			RefundedToWallet: result.RefundedToWallet,
			StripeRefundID:   result.StripeRefundID,
			Warnings:         result.Warnings,
		})
	}
}
