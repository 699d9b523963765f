package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nafsiapp/nafsi-backend/pkg/enums"
)

// ChatGroup is a communication space: private groups are bound to exactly one
// appointment (unique index) while community rooms have no appointment.
// Archival is monotonic; an archived group never becomes active again.
type ChatGroup struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	AppointmentID *uuid.UUID       `gorm:"column:appointment_id;type:uuid;uniqueIndex"`
	ChildID       *uuid.UUID       `gorm:"column:child_id;type:uuid"`
	Type          enums.ChatType   `gorm:"column:type;type:chat_type;not null"`
	Status        enums.ChatStatus `gorm:"column:status;type:chat_status;not null;default:'active'"`
	ExpiresAt     *time.Time       `gorm:"column:expires_at"`
	CommunityName *string          `gorm:"column:community_name"`
	LastMessage   *string          `gorm:"column:last_message;type:text"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

// ChatGroupParticipant grants a user membership of a chat group, with an
// optional time-boxed mute.
type ChatGroupParticipant struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ChatGroupID uuid.UUID  `gorm:"column:chat_group_id;type:uuid;not null;uniqueIndex:idx_chat_participant"`
	UserID      uuid.UUID  `gorm:"column:user_id;type:uuid;not null;uniqueIndex:idx_chat_participant"`
	IsMuted     bool       `gorm:"column:is_muted;not null;default:false"`
	MuteUntil   *time.Time `gorm:"column:mute_until"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}

// ChatMessage is one message inside a chat group.
type ChatMessage struct {
	ID          uuid.UUID  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ChatGroupID uuid.UUID  `gorm:"column:chat_group_id;type:uuid;not null"`
	SenderID    uuid.UUID  `gorm:"column:sender_id;type:uuid;not null"`
	ReceiverID  *uuid.UUID `gorm:"column:receiver_id;type:uuid"`
	Body        string     `gorm:"column:body;type:text;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;autoCreateTime"`
}
