package appointments

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

// Repository manages persistence for appointments and their invoices.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, appointment *models.Appointment) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error)
	UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.AppointmentStatus) (bool, error)
	ListByRequester(ctx context.Context, requesterID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Appointment, error)
	ListByProvider(ctx context.Context, providerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Appointment, error)
	ListByChild(ctx context.Context, requesterID, childID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Appointment, error)
	CreateInvoice(ctx context.Context, invoice *models.Invoice) error
	FindInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.Invoice, error)
	MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an appointment repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, appointment *models.Appointment) error {
	return r.db.WithContext(ctx).Create(appointment).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Appointment, error) {
	var appointment models.Appointment
	if err := r.db.WithContext(ctx).First(&appointment, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &appointment, nil
}

// UpdateStatusGuarded moves the appointment between two statuses with a
// conditional write. It reports false when the row was not in the expected
// status, which makes every transition settle exactly once under races.
func (r *repository) UpdateStatusGuarded(ctx context.Context, id uuid.UUID, from, to enums.AppointmentStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListByRequester(ctx context.Context, requesterID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Appointment, error) {
	return r.list(ctx, limit, cursor, "requester_id = ?", requesterID)
}

func (r *repository) ListByProvider(ctx context.Context, providerID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Appointment, error) {
	return r.list(ctx, limit, cursor, "provider_id = ?", providerID)
}

func (r *repository) ListByChild(ctx context.Context, requesterID, childID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.Appointment, error) {
	return r.list(ctx, limit, cursor, "requester_id = ? AND child_id = ?", requesterID, childID)
}

func (r *repository) list(ctx context.Context, limit int, cursor *pagination.Cursor, cond string, args ...any) ([]models.Appointment, error) {
	query := r.db.WithContext(ctx).
		Where(cond, args...).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var appointments []models.Appointment
	if err := query.Find(&appointments).Error; err != nil {
		return nil, err
	}
	return appointments, nil
}

func (r *repository) CreateInvoice(ctx context.Context, invoice *models.Invoice) error {
	return r.db.WithContext(ctx).Create(invoice).Error
}

func (r *repository) FindInvoiceByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at ASC").
		First(&invoice).Error
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// MarkInvoicePaid flips a pending invoice to paid. The status guard keeps a
// double confirmation from succeeding twice.
func (r *repository) MarkInvoicePaid(ctx context.Context, invoiceID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Invoice{}).
		Where("id = ? AND status = ?", invoiceID, enums.InvoiceStatusPending).
		Updates(map[string]any{
			"status":     enums.InvoiceStatusPaid,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
