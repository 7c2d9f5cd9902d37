package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/velmora/storefront-backend/api/responses"
	"github.com/velmora/storefront-backend/api/validators"
	"github.com/velmora/storefront-backend/internal/wallet"
	"github.com/velmora/storefront-backend/pkg/db/models"
	"github.com/velmora/storefront-backend/pkg/enums"
	pkgerrors "github.com/velmora/storefront-backend/pkg/errors"
	"github.com/velmora/storefront-backend/pkg/logger"
)

type manualCreditBody struct {
	UserID      uuid.UUID `json:"user_id" validate:"required"`
	AmountCents int64     `json:"amount_cents" validate:"required,gt=0"`
	Description string    `json:"description" validate:"required,max=500"`
}

// AdminCreditWallet issues a manual credit with the acting admin recorded.
func AdminCreditWallet(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body manualCreditBody
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.Credit(r.Context(), wallet.CreditInput{
			UserID:      body.UserID,
			Type:        enums.WalletTxnCreditManual,
			AmountCents: body.AmountCents,
			Description: body.Description,
			ActorID:     &adminID,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newWalletTransactionView(txn))
	}
}

// AdminListWithdrawals lists withdrawal requests filtered by status.
func AdminListWithdrawals(svc wallet.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rawStatus := strings.TrimSpace(r.URL.Query().Get("status"))
		if rawStatus == "" {
			rawStatus = string(enums.WithdrawalStatusPending)
		}
		status, err := enums.ParseWithdrawalStatus(rawStatus)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid withdrawal status"))
			return
		}

		list, next, err := svc.ListWithdrawalsByStatus(r.Context(), status, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		views := make([]withdrawalView, 0, len(list))
		for i := range list {
			views = append(views, newWithdrawalView(&list[i]))
		}
		responses.WriteSuccess(w, newPage(views, next))
	}
}

type rejectWithdrawalBody struct {
	Note *string `json:"note" validate:"omitempty,max=500"`
}

// AdminResolveWithdrawal handles approve/reject/processing/complete actions.
func AdminResolveWithdrawal(svc wallet.Service, action string, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "wallet service unavailable"))
			return
		}
		adminID, err := actorID(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		requestID, err := pathUUID(r, "withdrawalId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req *models.WithdrawalRequest
		switch action {
		case "approve":
			req, err = svc.ApproveWithdrawal(r.Context(), adminID, requestID)
		case "reject":
			var body rejectWithdrawalBody
			if decodeErr := validators.DecodeJSONBody(r, &body); decodeErr != nil {
				responses.WriteError(r.Context(), logg, w, decodeErr)
				return
			}
			req, err = svc.RejectWithdrawal(r.Context(), adminID, requestID, body.Note)
		case "processing":
			req, err = svc.MarkWithdrawalProcessing(r.Context(), adminID, requestID)
		case "complete":
			req, err = svc.CompleteWithdrawal(r.Context(), adminID, requestID)
		default:
			err = pkgerrors.New(pkgerrors.CodeInternal, "unknown withdrawal action")
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newWithdrawalView(req))
	}
}
