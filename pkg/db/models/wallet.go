package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet holds a user's spendable balance in minor currency units. One wallet
// per user, created lazily on first need and never deleted. The balance is
// only ever mutated through ledger transfers; Version guards debit writes
// against concurrent stale updates.
type Wallet struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	UserID       uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex"`
	BalanceCents int64     `gorm:"column:balance_cents;not null;default:0"`
	Version      int64     `gorm:"column:version;not null;default:0"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
