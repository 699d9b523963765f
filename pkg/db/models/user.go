package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nafsiapp/nafsi-backend/pkg/enums"
)

// User is a platform account: parent, child, provider, or admin.
type User struct {
	ID           uuid.UUID      `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	Username     string         `gorm:"column:username;not null;uniqueIndex"`
	Email        *string        `gorm:"column:email;uniqueIndex"`
	MobileNumber *string        `gorm:"column:mobile_number"`
	FullName     string         `gorm:"column:full_name;not null"`
	PasswordHash string         `gorm:"column:password_hash;not null" json:"-"`
	Role         enums.UserRole `gorm:"column:role;type:user_role;not null"`
	FCMToken     *string        `gorm:"column:fcm_token"`
	CreatedAt    time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
