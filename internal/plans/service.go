package plans

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
)

// Service defines plan catalog operations. Plans carry both the price charged
// at approval and the chat window duration.
type Service interface {
	Create(ctx context.Context, input CreatePlanInput) (*models.AppointmentPlan, error)
	Update(ctx context.Context, id uuid.UUID, input CreatePlanInput) (*models.AppointmentPlan, error)
	Get(ctx context.Context, id uuid.UUID) (*models.AppointmentPlan, error)
	List(ctx context.Context) ([]models.AppointmentPlan, error)
}

type service struct {
	repo Repository
}

// CreatePlanInput carries the plan attributes set by admins.
type CreatePlanInput struct {
	Title           string `json:"title" validate:"required"`
	Description     string `json:"description"`
	PriceCents      int64  `json:"price_cents" validate:"required,gt=0"`
	DurationMinutes int    `json:"duration_minutes" validate:"required,gt=0"`
}

// NewService wires a plan service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("plans repository required")
	}
	return &service{repo: repo}, nil
}

func validatePlanInput(input CreatePlanInput) error {
	if strings.TrimSpace(input.Title) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan title required")
	}
	if input.PriceCents <= 0 {
		return pkgerrors.New(pkgerrors.CodeInvalidAmount, "plan price must be positive")
	}
	if input.DurationMinutes <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "plan duration must be positive")
	}
	return nil
}

func (s *service) Create(ctx context.Context, input CreatePlanInput) (*models.AppointmentPlan, error) {
	if err := validatePlanInput(input); err != nil {
		return nil, err
	}

	plan := &models.AppointmentPlan{
		Title:           strings.TrimSpace(input.Title),
		Description:     input.Description,
		PriceCents:      input.PriceCents,
		DurationMinutes: input.DurationMinutes,
	}
	if err := s.repo.Create(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create plan")
	}
	return plan, nil
}

func (s *service) Update(ctx context.Context, id uuid.UUID, input CreatePlanInput) (*models.AppointmentPlan, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id required")
	}
	if err := validatePlanInput(input); err != nil {
		return nil, err
	}

	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}

	plan.Title = strings.TrimSpace(input.Title)
	plan.Description = input.Description
	plan.PriceCents = input.PriceCents
	plan.DurationMinutes = input.DurationMinutes
	if err := s.repo.Update(ctx, plan); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update plan")
	}
	return plan, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.AppointmentPlan, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "plan id required")
	}
	plan, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "plan not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load plan")
	}
	return plan, nil
}

func (s *service) List(ctx context.Context) ([]models.AppointmentPlan, error) {
	plans, err := s.repo.List(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list plans")
	}
	return plans, nil
}
