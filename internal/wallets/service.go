package wallets

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

// debitAttempts caps the retry loop when the version guard loses a race.
const debitAttempts = 3

// Service defines the wallet ledger operations. All balance mutations happen
// through Transfer, Credit, and ReverseAppointmentPayment; nothing else
// touches balances.
type Service interface {
	WithTx(tx *gorm.DB) Service
	EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	Transfer(ctx context.Context, input TransferInput) (*models.WalletTransaction, error)
	Credit(ctx context.Context, input CreditInput) (*models.WalletTransaction, error)
	ReverseAppointmentPayment(ctx context.Context, appointmentID uuid.UUID, note string) (*models.WalletTransaction, error)
	ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error)
	ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.WalletTransaction, error)
	GetTransaction(ctx context.Context, userID, txnID uuid.UUID) (*models.WalletTransaction, error)
}

type service struct {
	repo Repository
}

// TransferInput moves value between two wallets atomically.
type TransferInput struct {
	FromWalletID  uuid.UUID
	ToWalletID    uuid.UUID
	AmountCents   int64
	Kind          enums.TransactionKind
	AppointmentID *uuid.UUID
	Note          *string
}

// CreditInput records value entering the ledger from outside (a charge-in).
type CreditInput struct {
	ToWalletID  uuid.UUID
	AmountCents int64
	Note        *string
}

// TransactionPage is one page of ledger history plus the cursor for the next.
type TransactionPage struct {
	Transactions []models.WalletTransaction
	NextCursor   *string
}

// NewService wires a wallet service with the provided repository.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("wallets repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{repo: s.repo.WithTx(tx)}
}

func (s *service) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := s.repo.EnsureWallet(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ensure wallet")
	}
	return wallet, nil
}

func (s *service) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}
	return wallet, nil
}

func (s *service) Transfer(ctx context.Context, input TransferInput) (*models.WalletTransaction, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "transfer amount must be positive")
	}
	if input.FromWalletID == uuid.Nil || input.ToWalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "both wallet ids required")
	}
	if input.FromWalletID == input.ToWalletID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot transfer to the same wallet")
	}
	if !input.Kind.IsValid() || input.Kind == enums.TransactionKindCharge {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid transfer kind")
	}

	if err := s.debitWithRetry(ctx, input.FromWalletID, input.AmountCents); err != nil {
		return nil, err
	}

	if err := s.repo.Credit(ctx, input.ToWalletID, input.AmountCents); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
	}

	from := input.FromWalletID
	txn := &models.WalletTransaction{
		FromWalletID:  &from,
		ToWalletID:    input.ToWalletID,
		AmountCents:   input.AmountCents,
		Kind:          input.Kind,
		AppointmentID: input.AppointmentID,
		Note:          input.Note,
	}
	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction")
	}
	return txn, nil
}

// debitWithRetry re-reads the wallet and retries when the version guard
// loses to a concurrent writer. The insufficient-funds check happens against
// the freshly read balance on every attempt.
func (s *service) debitWithRetry(ctx context.Context, walletID uuid.UUID, amountCents int64) error {
	for attempt := 0; attempt < debitAttempts; attempt++ {
		wallet, err := s.repo.FindByID(ctx, walletID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "source wallet not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load source wallet")
		}
		if wallet.BalanceCents < amountCents {
			return pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance")
		}

		ok, err := s.repo.DebitGuarded(ctx, walletID, amountCents, wallet.Version)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "debit wallet")
		}
		if ok {
			return nil
		}
	}
	return pkgerrors.New(pkgerrors.CodeConflict, "wallet contention, retry the operation")
}

func (s *service) Credit(ctx context.Context, input CreditInput) (*models.WalletTransaction, error) {
	if input.AmountCents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "credit amount must be positive")
	}
	if input.ToWalletID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "wallet id required")
	}

	if err := s.repo.Credit(ctx, input.ToWalletID, input.AmountCents); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "credit wallet")
	}

	txn := &models.WalletTransaction{
		ToWalletID:  input.ToWalletID,
		AmountCents: input.AmountCents,
		Kind:        enums.TransactionKindCharge,
		Note:        input.Note,
	}
	if err := s.repo.CreateTransaction(ctx, txn); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transaction")
	}
	return txn, nil
}

// ReverseAppointmentPayment refunds the payment recorded for the appointment
// by writing a reversal row with the endpoints swapped. Returns (nil, nil)
// when there is no payment to reverse or it was already reversed.
func (s *service) ReverseAppointmentPayment(ctx context.Context, appointmentID uuid.UUID, note string) (*models.WalletTransaction, error) {
	if appointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}

	payment, err := s.repo.FindPaymentByAppointment(ctx, appointmentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	if payment.FromWalletID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment missing source wallet")
	}

	reversed, err := s.repo.HasReversalForAppointment(ctx, appointmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check reversal")
	}
	if reversed {
		return nil, nil
	}

	appointment := appointmentID
	return s.Transfer(ctx, TransferInput{
		FromWalletID:  payment.ToWalletID,
		ToWalletID:    *payment.FromWalletID,
		AmountCents:   payment.AmountCents,
		Kind:          enums.TransactionKindReversal,
		AppointmentID: &appointment,
		Note:          &note,
	})
}

func (s *service) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*TransactionPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor").WithDetails(err.Error())
	}

	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return &TransactionPage{}, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	limit := pagination.NormalizeLimit(params.Limit)
	txns, err := s.repo.ListTransactionsByWallet(ctx, wallet.ID, limit+1, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}

	page := &TransactionPage{Transactions: txns}
	if len(txns) > limit {
		page.Transactions = txns[:limit]
		last := page.Transactions[limit-1]
		next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		page.NextCursor = &next
	}
	return page, nil
}

// ListByAppointment returns the full ledger trail for one appointment, the
// payment and any reversal, oldest first. Admin surface only.
func (s *service) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.WalletTransaction, error) {
	if appointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	txns, err := s.repo.ListTransactionsByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transactions")
	}
	return txns, nil
}

func (s *service) GetTransaction(ctx context.Context, userID, txnID uuid.UUID) (*models.WalletTransaction, error) {
	if userID == uuid.Nil || txnID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id and transaction id required")
	}

	txn, err := s.repo.FindTransactionByID(ctx, txnID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load transaction")
	}

	wallet, err := s.repo.FindByUserID(ctx, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transaction does not involve caller")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load wallet")
	}

	involved := txn.ToWalletID == wallet.ID ||
		(txn.FromWalletID != nil && *txn.FromWalletID == wallet.ID)
	if !involved {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "transaction does not involve caller")
	}
	return txn, nil
}
