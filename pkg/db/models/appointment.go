package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nafsiapp/nafsi-backend/pkg/enums"
)

// Appointment is a consultation request between a requester (parent or child)
// and a provider, optionally on behalf of a child profile.
type Appointment struct {
	ID          uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	RequesterID uuid.UUID               `gorm:"column:requester_id;type:uuid;not null"`
	ProviderID  uuid.UUID               `gorm:"column:provider_id;type:uuid;not null"`
	ChildID     *uuid.UUID              `gorm:"column:child_id;type:uuid"`
	PlanID      uuid.UUID               `gorm:"column:plan_id;type:uuid;not null"`
	Status      enums.AppointmentStatus `gorm:"column:status;type:appointment_status;not null;default:'pending'"`
	Note        string                  `gorm:"column:note;type:text;not null;default:''"`
	CreatedAt   time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}

// AppointmentPlan is a priced service offering with a fixed chat duration.
type AppointmentPlan struct {
	ID              uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Title           string    `gorm:"column:title;not null"`
	Description     string    `gorm:"column:description;type:text;not null;default:''"`
	PriceCents      int64     `gorm:"column:price_cents;not null"`
	DurationMinutes int       `gorm:"column:duration_minutes;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// Invoice snapshots the plan price owed for an appointment at request time.
// The amount is immutable once written.
type Invoice struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AppointmentID uuid.UUID           `gorm:"column:appointment_id;type:uuid;not null"`
	AmountCents   int64               `gorm:"column:amount_cents;not null"`
	Status        enums.InvoiceStatus `gorm:"column:status;type:invoice_status;not null;default:'pending'"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
