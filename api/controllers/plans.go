package controllers

import (
	"net/http"

	"github.com/nafsiapp/nafsi-backend/api/responses"
	"github.com/nafsiapp/nafsi-backend/api/validators"
	"github.com/nafsiapp/nafsi-backend/internal/plans"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
)

type planBody struct {
	Title           string `json:"title" validate:"required,max=200"`
	Description     string `json:"description" validate:"max=2000"`
	PriceCents      int64  `json:"price_cents" validate:"required,gt=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0"`
}

func PlanList(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		items, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"plans": items})
	}
}

func PlanDetail(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		planID, err := pathUUID(r, "planId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.Get(r.Context(), planID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}

func PlanCreate(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req planBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.Create(r.Context(), plans.CreatePlanInput{
			Title:           req.Title,
			Description:     req.Description,
			PriceCents:      req.PriceCents,
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, plan)
	}
}

func PlanUpdate(svc plans.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		planID, err := pathUUID(r, "planId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req planBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		plan, err := svc.Update(r.Context(), planID, plans.CreatePlanInput{
			Title:           req.Title,
			Description:     req.Description,
			PriceCents:      req.PriceCents,
			DurationMinutes: req.DurationMinutes,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, plan)
	}
}
