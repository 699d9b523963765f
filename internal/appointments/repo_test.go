package appointments

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

func setupAppointmentsTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	appointments := `
CREATE TABLE IF NOT EXISTS appointments (
  id TEXT PRIMARY KEY,
  requester_id TEXT NOT NULL,
  provider_id TEXT NOT NULL,
  child_id TEXT,
  plan_id TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  note TEXT NOT NULL DEFAULT '',
  created_at DATETIME,
  updated_at DATETIME
);`
	invoices := `
CREATE TABLE IF NOT EXISTS invoices (
  id TEXT PRIMARY KEY,
  appointment_id TEXT NOT NULL,
  amount_cents INTEGER NOT NULL,
  status TEXT NOT NULL DEFAULT 'pending',
  created_at DATETIME,
  updated_at DATETIME
);`
	require.NoError(t, db.Exec(appointments).Error)
	require.NoError(t, db.Exec(invoices).Error)
	return db
}

func newTestAppointment(t *testing.T, db *gorm.DB, requester, provider uuid.UUID, status enums.AppointmentStatus, created time.Time) *models.Appointment {
	t.Helper()

	appointment := &models.Appointment{
		ID:          uuid.New(),
		RequesterID: requester,
		ProviderID:  provider,
		PlanID:      uuid.New(),
		Status:      status,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
	require.NoError(t, db.Create(appointment).Error)
	return appointment
}

func newTestInvoice(t *testing.T, db *gorm.DB, appointmentID uuid.UUID, amountCents int64) *models.Invoice {
	t.Helper()

	invoice := &models.Invoice{
		ID:            uuid.New(),
		AppointmentID: appointmentID,
		AmountCents:   amountCents,
		Status:        enums.InvoiceStatusPending,
	}
	require.NoError(t, db.Create(invoice).Error)
	return invoice
}

func TestRepositoryUpdateStatusGuarded(t *testing.T) {
	db := setupAppointmentsTestDB(t)
	repo := NewRepository(db)

	appointment := newTestAppointment(t, db, uuid.New(), uuid.New(), enums.AppointmentStatusPending, time.Now().UTC())

	ok, err := repo.UpdateStatusGuarded(context.Background(), appointment.ID, enums.AppointmentStatusPending, enums.AppointmentStatusPendingApproval)
	require.NoError(t, err)
	assert.True(t, ok)

	refreshed, err := repo.FindByID(context.Background(), appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.AppointmentStatusPendingApproval, refreshed.Status)

	// The row moved on, so a second writer expecting the old status loses.
	ok, err = repo.UpdateStatusGuarded(context.Background(), appointment.ID, enums.AppointmentStatusPending, enums.AppointmentStatusCancelled)
	require.NoError(t, err)
	assert.False(t, ok)

	refreshed, err = repo.FindByID(context.Background(), appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.AppointmentStatusPendingApproval, refreshed.Status)
}

func TestRepositoryMarkInvoicePaid_once(t *testing.T) {
	db := setupAppointmentsTestDB(t)
	repo := NewRepository(db)

	appointment := newTestAppointment(t, db, uuid.New(), uuid.New(), enums.AppointmentStatusPending, time.Now().UTC())
	invoice := newTestInvoice(t, db, appointment.ID, 4500)

	ok, err := repo.MarkInvoicePaid(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.MarkInvoicePaid(context.Background(), invoice.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	found, err := repo.FindInvoiceByAppointment(context.Background(), appointment.ID)
	require.NoError(t, err)
	assert.Equal(t, invoice.ID, found.ID)
	assert.Equal(t, enums.InvoiceStatusPaid, found.Status)
}

func TestRepositoryFindInvoiceByAppointment_missing(t *testing.T) {
	db := setupAppointmentsTestDB(t)
	repo := NewRepository(db)

	_, err := repo.FindInvoiceByAppointment(context.Background(), uuid.New())
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRepositoryListByRequester_pagination(t *testing.T) {
	db := setupAppointmentsTestDB(t)
	repo := NewRepository(db)

	requester := uuid.New()
	provider := uuid.New()

	now := time.Now().UTC().Truncate(time.Second)
	oldest := newTestAppointment(t, db, requester, provider, enums.AppointmentStatusCompleted, now.Add(-2*time.Hour))
	middle := newTestAppointment(t, db, requester, provider, enums.AppointmentStatusConfirmed, now.Add(-time.Hour))
	newest := newTestAppointment(t, db, requester, provider, enums.AppointmentStatusPending, now)
	newTestAppointment(t, db, uuid.New(), provider, enums.AppointmentStatusPending, now)

	page, err := repo.ListByRequester(context.Background(), requester, 2, nil)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, newest.ID, page[0].ID)
	assert.Equal(t, middle.ID, page[1].ID)

	cursor := &pagination.Cursor{CreatedAt: page[1].CreatedAt, ID: page[1].ID}
	rest, err := repo.ListByRequester(context.Background(), requester, 2, cursor)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, oldest.ID, rest[0].ID)
}

func TestRepositoryListByProvider(t *testing.T) {
	db := setupAppointmentsTestDB(t)
	repo := NewRepository(db)

	provider := uuid.New()
	now := time.Now().UTC()
	mine := newTestAppointment(t, db, uuid.New(), provider, enums.AppointmentStatusPending, now)
	newTestAppointment(t, db, uuid.New(), uuid.New(), enums.AppointmentStatusPending, now)

	page, err := repo.ListByProvider(context.Background(), provider, 10, nil)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, mine.ID, page[0].ID)
}
