package charges

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

// Repository persists wallet top-up requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, request *models.ChargeRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.ChargeRequest, error)
	ResolveGuarded(ctx context.Context, id uuid.UUID, to enums.ChargeRequestStatus, rejectionNote *string) (bool, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ChargeRequest, error)
	ListByStatus(ctx context.Context, status enums.ChargeRequestStatus, limit int, cursor *pagination.Cursor) ([]models.ChargeRequest, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds the gorm-backed charge request repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, request *models.ChargeRequest) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.ChargeRequest, error) {
	var request models.ChargeRequest
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// ResolveGuarded moves a request out of pending. The WHERE clause makes the
// resolution first-writer-wins under concurrent admin reviews.
func (r *repository) ResolveGuarded(ctx context.Context, id uuid.UUID, to enums.ChargeRequestStatus, rejectionNote *string) (bool, error) {
	updates := map[string]any{"status": to}
	if rejectionNote != nil {
		updates["rejection_note"] = rejectionNote
	}
	result := r.db.WithContext(ctx).
		Model(&models.ChargeRequest{}).
		Where("id = ? AND status = ?", id, enums.ChargeRequestStatusPending).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ChargeRequest, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("wallet_id = ?", walletID), limit, cursor)
}

func (r *repository) ListByStatus(ctx context.Context, status enums.ChargeRequestStatus, limit int, cursor *pagination.Cursor) ([]models.ChargeRequest, error) {
	return r.list(ctx, r.db.WithContext(ctx).Where("status = ?", status), limit, cursor)
}

func (r *repository) list(ctx context.Context, query *gorm.DB, limit int, cursor *pagination.Cursor) ([]models.ChargeRequest, error) {
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}
	var requests []models.ChargeRequest
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}
