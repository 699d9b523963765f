package plans

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
)

// Repository manages persistence for appointment plans.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, plan *models.AppointmentPlan) error
	Update(ctx context.Context, plan *models.AppointmentPlan) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.AppointmentPlan, error)
	List(ctx context.Context) ([]models.AppointmentPlan, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, plan *models.AppointmentPlan) error {
	return r.db.WithContext(ctx).Create(plan).Error
}

func (r *repository) Update(ctx context.Context, plan *models.AppointmentPlan) error {
	return r.db.WithContext(ctx).Save(plan).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.AppointmentPlan, error) {
	var plan models.AppointmentPlan
	if err := r.db.WithContext(ctx).First(&plan, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &plan, nil
}

func (r *repository) List(ctx context.Context) ([]models.AppointmentPlan, error) {
	var plans []models.AppointmentPlan
	if err := r.db.WithContext(ctx).Order("price_cents ASC").Find(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}
