package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nafsiapp/nafsi-backend/api/middleware"
	"github.com/nafsiapp/nafsi-backend/api/responses"
	"github.com/nafsiapp/nafsi-backend/api/validators"
	"github.com/nafsiapp/nafsi-backend/internal/appointments"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

type appointmentRequestBody struct {
	ProviderID string  `json:"provider_id" validate:"required,uuid"`
	PlanID     string  `json:"plan_id" validate:"required,uuid"`
	ChildID    *string `json:"child_id" validate:"omitempty,uuid"`
	Note       string  `json:"note" validate:"max=2000"`
}

type appointmentDecisionBody struct {
	Decision string `json:"decision" validate:"required,oneof=approve reject"`
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, key))
	if err != nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+key)
	}
	return id, nil
}

func pageParams(r *http.Request) (pagination.Params, error) {
	limit, err := validators.ParseQueryInt(r, "limit", 0, 1, pagination.MaxLimit)
	if err != nil {
		return pagination.Params{}, err
	}
	return pagination.Params{
		Limit:  limit,
		Cursor: r.URL.Query().Get("cursor"),
	}, nil
}

func AppointmentRequest(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req appointmentRequestBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		providerID, err := uuid.Parse(req.ProviderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid provider_id"))
			return
		}
		planID, err := uuid.Parse(req.PlanID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid plan_id"))
			return
		}

		input := appointments.RequestInput{
			RequesterID: middleware.UserIDFromContext(r.Context()),
			ProviderID:  providerID,
			PlanID:      planID,
			Note:        req.Note,
		}
		if req.ChildID != nil {
			childID, err := uuid.Parse(*req.ChildID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid child_id"))
				return
			}
			input.ChildID = &childID
		}

		appointment, err := svc.Request(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, appointment)
	}
}

func AppointmentConfirmPayment(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		appointment, err := svc.ConfirmPayment(r.Context(), appointmentID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, appointment)
	}
}

func AppointmentDecide(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req appointmentDecisionBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		appointment, err := svc.Decide(r.Context(), appointments.DecideInput{
			AppointmentID: appointmentID,
			ActorID:       middleware.UserIDFromContext(r.Context()),
			Decision:      appointments.Decision(req.Decision),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, appointment)
	}
}

func AppointmentCancel(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		appointment, err := svc.Cancel(r.Context(), appointmentID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, appointment)
	}
}

func AppointmentComplete(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		appointment, err := svc.Complete(r.Context(), appointmentID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, appointment)
	}
}

func AppointmentDetail(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), appointmentID,
			middleware.UserIDFromContext(r.Context()),
			middleware.RoleFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

func AppointmentList(svc appointments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var page *appointments.AppointmentPage
		if raw := r.URL.Query().Get("child_id"); raw != "" {
			childID, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid child_id"))
				return
			}
			page, err = svc.ListForChild(r.Context(), middleware.UserIDFromContext(r.Context()), childID, params)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		} else {
			page, err = svc.ListMine(r.Context(),
				middleware.UserIDFromContext(r.Context()),
				middleware.RoleFromContext(r.Context()),
				params)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		responses.WriteSuccess(w, page)
	}
}
