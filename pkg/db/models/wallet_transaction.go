package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/nafsiapp/nafsi-backend/pkg/enums"
)

// WalletTransaction is an immutable record of value moving between wallets.
// Rows are only ever inserted; a reversal is a new row with the endpoints
// swapped, never an edit of the original. FromWalletID is nil for charge-ins,
// which originate outside the ledger.
type WalletTransaction struct {
	ID            uuid.UUID             `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	FromWalletID  *uuid.UUID            `gorm:"column:from_wallet_id;type:uuid"`
	ToWalletID    uuid.UUID             `gorm:"column:to_wallet_id;type:uuid;not null"`
	AmountCents   int64                 `gorm:"column:amount_cents;not null"`
	Kind          enums.TransactionKind `gorm:"column:kind;type:transaction_kind;not null"`
	AppointmentID *uuid.UUID            `gorm:"column:appointment_id;type:uuid"`
	Note          *string               `gorm:"column:note;type:text"`
	CreatedAt     time.Time             `gorm:"column:created_at;autoCreateTime"`
}
