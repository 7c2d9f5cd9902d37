package controllers

import (
	"net/http"

	"github.com/velmora/storefront-backend/api/responses"
	"github.com/velmora/storefront-backend/api/validators"
	"github.com/velmora/storefront-backend/internal/giftcards"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/logger"
)

type purchaseGiftCardBody struct {
	FaceValueCents int64 `json:"face_value_cents" validate:"required,gt=0"`
}

type redeemGiftCardBody struct {
	Code string `json:"code" validate:"required,max=50"`
	PIN  string `json:"pin" validate:"required,max=20"`
}

// issuedGiftCardView carries the one-time plaintext credentials.
type issuedGiftCardView struct {
	Card giftCardView `json:"card"`
	Code string       `json:"code"`
	PIN  string       `json:"pin"`
}

// PurchaseGiftCard debits the wallet and issues a card. The code and PIN in
// the response are shown exactly once.
func PurchaseGiftCard(svc giftcards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift cards service unavailable"))
			return
		}
		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body purchaseGiftCardBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Purchase(r.Context(), giftcards.PurchaseInput{
			UserID:         userID,
			FaceValueCents: body.FaceValueCents,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, issuedGiftCardView{
			Card: newGiftCardView(result.Card),
			Code: result.Code,
			PIN:  result.PIN,
		})
	}
}

// RedeemGiftCard verifies code+PIN and credits the caller's wallet.
func RedeemGiftCard(svc giftcards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift cards service unavailable"))
			return
		}
		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body redeemGiftCardBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Redeem(r.Context(), giftcards.RedeemInput{
			UserID: userID,
			Code:   body.Code,
			PIN:    body.PIN,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"card":           newGiftCardView(result.Card),
			"credited_cents": result.CreditedCents,
		})
	}
}

// ListGiftCards lists the cards the caller purchased.
func ListGiftCards(svc giftcards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift cards service unavailable"))
			return
		}
		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		cards, next, err := svc.ListPurchased(r.Context(), userID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]giftCardView, 0, len(cards))
		for i := range cards {
			views = append(views, newGiftCardView(&cards[i]))
		}
		responses.WriteSuccess(w, newPage(views, next))
	}
}

// GetGiftCard returns one card; customers only see cards they purchased.
func GetGiftCard(svc giftcards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift cards service unavailable"))
			return
		}
		userID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cardID, err := pathUUID(r, "giftCardId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		card, err := svc.Get(r.Context(), userID, cardID, isAdmin(r))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newGiftCardView(card))
	}
}

// AdminVoidGiftCard disables an unredeemed card and refunds the purchaser.
func AdminVoidGiftCard(svc giftcards.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "gift cards service unavailable"))
			return
		}
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		cardID, err := pathUUID(r, "giftCardId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		card, err := svc.Void(r.Context(), adminID, cardID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newGiftCardView(card))
	}
}
