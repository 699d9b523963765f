package controllers

import (
	"net/http"

	"github.com/nafsiapp/nafsi-backend/api/middleware"
	"github.com/nafsiapp/nafsi-backend/api/responses"
	"github.com/nafsiapp/nafsi-backend/api/validators"
	"github.com/nafsiapp/nafsi-backend/internal/charges"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
)

type chargeCreateBody struct {
	AmountCents int64   `json:"amount_cents" validate:"required,gt=0"`
	Note        string  `json:"note" validate:"max=2000"`
	ReceiptURL  *string `json:"receipt_url" validate:"omitempty,url"`
}

type chargeRejectBody struct {
	RejectionNote string `json:"rejection_note" validate:"required,max=2000"`
}

func ChargeCreate(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req chargeCreateBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Create(r.Context(), charges.CreateInput{
			UserID:      middleware.UserIDFromContext(r.Context()),
			AmountCents: req.AmountCents,
			Note:        req.Note,
			ReceiptURL:  req.ReceiptURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, request)
	}
}

func ChargeList(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListMine(r.Context(), middleware.UserIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"charge_requests": page.Requests,
			"next_cursor":     page.NextCursor,
		})
	}
}

func ChargeDetail(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := pathUUID(r, "chargeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Get(r.Context(), requestID,
			middleware.UserIDFromContext(r.Context()),
			middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func AdminChargePending(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListPending(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"charge_requests": page.Requests,
			"next_cursor":     page.NextCursor,
		})
	}
}

func AdminChargeApprove(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := pathUUID(r, "chargeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Approve(r.Context(), requestID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}

func AdminChargeReject(svc charges.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		requestID, err := pathUUID(r, "chargeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req chargeRejectBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		request, err := svc.Reject(r.Context(), requestID, req.RejectionNote)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, request)
	}
}
