package controllers

import (
	"net/http"

	"github.com/nafsiapp/nafsi-backend/api/middleware"
	"github.com/nafsiapp/nafsi-backend/api/responses"
	"github.com/nafsiapp/nafsi-backend/api/validators"
	"github.com/nafsiapp/nafsi-backend/internal/wallets"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
)

type reversePaymentBody struct {
	Note string `json:"note" validate:"required,max=500"`
}

func WalletFetch(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		wallet, err := svc.EnsureWallet(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, wallet)
	}
}

func WalletTransactions(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListTransactions(r.Context(), middleware.UserIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"transactions": page.Transactions,
			"next_cursor":  page.NextCursor,
		})
	}
}

func WalletTransactionDetail(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		txnID, err := pathUUID(r, "transactionId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.GetTransaction(r.Context(), middleware.UserIDFromContext(r.Context()), txnID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, txn)
	}
}

func AdminAppointmentTransactions(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txns, err := svc.ListByAppointment(r.Context(), appointmentID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"transactions": txns})
	}
}

// AdminReversePayment refunds an appointment payment outside the normal
// reject flow, for support escalations. Idempotent; an already reversed
// payment reports reversed without a new row.
func AdminReversePayment(svc wallets.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req reversePaymentBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		txn, err := svc.ReverseAppointmentPayment(r.Context(), appointmentID, req.Note)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"reversed":    true,
			"transaction": txn,
		})
	}
}
