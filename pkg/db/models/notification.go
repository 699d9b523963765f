package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nafsiapp/nafsi-backend/pkg/enums"
)

// Notification stores in-app notification payloads scoped to users.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID        uuid.UUID              `gorm:"column:user_id;type:uuid;not null"`
	Type          enums.NotificationType `gorm:"column:type;type:notification_type;not null"`
	Title         string                 `gorm:"column:title;type:text;not null"`
	Body          string                 `gorm:"column:body;type:text;not null"`
	AppointmentID *uuid.UUID             `gorm:"column:appointment_id;type:uuid"`
	ChatGroupID   *uuid.UUID             `gorm:"column:chat_group_id;type:uuid"`
	ReadAt        *time.Time             `gorm:"column:read_at;type:timestamptz"`
	CreatedAt     time.Time              `gorm:"column:created_at;type:timestamptz;default:now()"`
}
