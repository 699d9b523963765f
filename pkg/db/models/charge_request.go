package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nafsiapp/nafsi-backend/pkg/enums"
)

// ChargeRequest is a user-submitted wallet top-up awaiting admin review.
// Approval credits the wallet through a charge-kind ledger transaction.
type ChargeRequest struct {
	ID            uuid.UUID                 `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	WalletID      uuid.UUID                 `gorm:"column:wallet_id;type:uuid;not null"`
	AmountCents   int64                     `gorm:"column:amount_cents;not null"`
	Note          string                    `gorm:"column:note;type:text;not null;default:''"`
	RejectionNote *string                   `gorm:"column:rejection_note;type:text"`
	ReceiptURL    *string                   `gorm:"column:receipt_url"`
	Status        enums.ChargeRequestStatus `gorm:"column:status;type:charge_request_status;not null;default:'pending'"`
	CreatedAt     time.Time                 `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                 `gorm:"column:updated_at;autoUpdateTime"`
}
