package wallets

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

// Repository manages persistence for wallets and their transaction ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error)
	FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Credit(ctx context.Context, walletID uuid.UUID, amountCents int64) error
	DebitGuarded(ctx context.Context, walletID uuid.UUID, amountCents int64, version int64) (bool, error)
	CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error)
	FindPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.WalletTransaction, error)
	HasReversalForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error)
	ListTransactionsByWallet(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.WalletTransaction, error)
	ListTransactionsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.WalletTransaction, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a wallet repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

func (r *repository) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	if err := r.db.WithContext(ctx).First(&wallet, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &wallet, nil
}

// EnsureWallet creates a zero-balance wallet for the user on first need.
// The unique index on user_id makes concurrent creation safe.
func (r *repository) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet := models.Wallet{UserID: userID}
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		FirstOrCreate(&wallet).Error
	if err != nil {
		return nil, err
	}
	return &wallet, nil
}

// Credit increments the balance in place. Credits never conflict, so no
// version guard is needed.
func (r *repository) Credit(ctx context.Context, walletID uuid.UUID, amountCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ?", walletID).
		Updates(map[string]any{
			"balance_cents": gorm.Expr("balance_cents + ?", amountCents),
			"updated_at":    time.Now().UTC(),
		}).Error
}

// DebitGuarded decrements the balance only when the caller's observed version
// still matches and the funds are still there. Returns false when the guard
// fails, meaning a concurrent write landed first or the balance dropped.
func (r *repository) DebitGuarded(ctx context.Context, walletID uuid.UUID, amountCents int64, version int64) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Wallet{}).
		Where("id = ? AND version = ? AND balance_cents >= ?", walletID, version, amountCents).
		Updates(map[string]any{
			"balance_cents": gorm.Expr("balance_cents - ?", amountCents),
			"version":       gorm.Expr("version + 1"),
			"updated_at":    time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

func (r *repository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	if err := r.db.WithContext(ctx).First(&txn, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) FindPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.WalletTransaction, error) {
	var txn models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("appointment_id = ? AND kind = ?", appointmentID, enums.TransactionKindPayment).
		Order("created_at ASC").
		First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *repository) HasReversalForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.WalletTransaction{}).
		Where("appointment_id = ? AND kind = ?", appointmentID, enums.TransactionKindReversal).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *repository) ListTransactionsByWallet(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.WalletTransaction, error) {
	query := r.db.WithContext(ctx).
		Where("from_wallet_id = ? OR to_wallet_id = ?", walletID, walletID).
		Order("created_at DESC, id DESC").
		Limit(limit)

	if cursor != nil {
		query = query.Where(
			"(created_at < ?) OR (created_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var txns []models.WalletTransaction
	if err := query.Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func (r *repository) ListTransactionsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.WalletTransaction, error) {
	var txns []models.WalletTransaction
	err := r.db.WithContext(ctx).
		Where("appointment_id = ?", appointmentID).
		Order("created_at ASC, id ASC").
		Find(&txns).Error
	if err != nil {
		return nil, err
	}
	return txns, nil
}
