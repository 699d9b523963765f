package wallets

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

type fakeRepo struct {
	wallets map[uuid.UUID]*models.Wallet
	txns    []models.WalletTransaction

	failDebits int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{wallets: map[uuid.UUID]*models.Wallet{}}
}

func (f *fakeRepo) addWallet(userID uuid.UUID, balance int64) *models.Wallet {
	wallet := &models.Wallet{ID: uuid.New(), UserID: userID, BalanceCents: balance}
	f.wallets[wallet.ID] = wallet
	return wallet
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	wallet, ok := f.wallets[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *wallet
	return &copied, nil
}

func (f *fakeRepo) FindByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	for _, wallet := range f.wallets {
		if wallet.UserID == userID {
			copied := *wallet
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if wallet, err := f.FindByUserID(ctx, userID); err == nil {
		return wallet, nil
	}
	copied := *f.addWallet(userID, 0)
	return &copied, nil
}

func (f *fakeRepo) Credit(ctx context.Context, walletID uuid.UUID, amountCents int64) error {
	wallet, ok := f.wallets[walletID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	wallet.BalanceCents += amountCents
	return nil
}

func (f *fakeRepo) DebitGuarded(ctx context.Context, walletID uuid.UUID, amountCents int64, version int64) (bool, error) {
	if f.failDebits > 0 {
		f.failDebits--
		f.wallets[walletID].Version++ // concurrent writer won
		return false, nil
	}
	wallet, ok := f.wallets[walletID]
	if !ok {
		return false, nil
	}
	if wallet.Version != version || wallet.BalanceCents < amountCents {
		return false, nil
	}
	wallet.BalanceCents -= amountCents
	wallet.Version++
	return true, nil
}

func (f *fakeRepo) CreateTransaction(ctx context.Context, txn *models.WalletTransaction) error {
	if txn.ID == uuid.Nil {
		txn.ID = uuid.New()
	}
	if txn.CreatedAt.IsZero() {
		txn.CreatedAt = time.Now().UTC()
	}
	f.txns = append(f.txns, *txn)
	return nil
}

func (f *fakeRepo) FindTransactionByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	for i := range f.txns {
		if f.txns[i].ID == id {
			copied := f.txns[i]
			return &copied, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) FindPaymentByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.WalletTransaction, error) {
	for i := range f.txns {
		txn := f.txns[i]
		if txn.Kind == enums.TransactionKindPayment && txn.AppointmentID != nil && *txn.AppointmentID == appointmentID {
			return &txn, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeRepo) HasReversalForAppointment(ctx context.Context, appointmentID uuid.UUID) (bool, error) {
	for _, txn := range f.txns {
		if txn.Kind == enums.TransactionKindReversal && txn.AppointmentID != nil && *txn.AppointmentID == appointmentID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeRepo) ListTransactionsByWallet(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	for i := len(f.txns) - 1; i >= 0; i-- {
		txn := f.txns[i]
		if txn.ToWalletID != walletID && (txn.FromWalletID == nil || *txn.FromWalletID != walletID) {
			continue
		}
		if cursor != nil && !txn.CreatedAt.Before(cursor.CreatedAt) {
			continue
		}
		out = append(out, txn)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) ListTransactionsByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	for _, txn := range f.txns {
		if txn.AppointmentID != nil && *txn.AppointmentID == appointmentID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (f *fakeRepo) totalBalance() int64 {
	var total int64
	for _, wallet := range f.wallets {
		total += wallet.BalanceCents
	}
	return total
}

func newTestService(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc
}

func TestTransferMovesBalanceAndRecordsRow(t *testing.T) {
	repo := newFakeRepo()
	payer := repo.addWallet(uuid.New(), 100)
	payee := repo.addWallet(uuid.New(), 0)
	svc := newTestService(t, repo)

	appointmentID := uuid.New()
	txn, err := svc.Transfer(context.Background(), TransferInput{
		FromWalletID:  payer.ID,
		ToWalletID:    payee.ID,
		AmountCents:   40,
		Kind:          enums.TransactionKindPayment,
		AppointmentID: &appointmentID,
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if repo.wallets[payer.ID].BalanceCents != 60 {
		t.Fatalf("expected payer balance 60, got %d", repo.wallets[payer.ID].BalanceCents)
	}
	if repo.wallets[payee.ID].BalanceCents != 40 {
		t.Fatalf("expected payee balance 40, got %d", repo.wallets[payee.ID].BalanceCents)
	}
	if repo.totalBalance() != 100 {
		t.Fatalf("transfer must conserve total balance, got %d", repo.totalBalance())
	}
	if len(repo.txns) != 1 {
		t.Fatalf("expected exactly one ledger row, got %d", len(repo.txns))
	}
	if txn.FromWalletID == nil || *txn.FromWalletID != payer.ID || txn.ToWalletID != payee.ID {
		t.Fatal("ledger row endpoints wrong")
	}
	if txn.Kind != enums.TransactionKindPayment {
		t.Fatalf("expected payment kind, got %s", txn.Kind)
	}
}

func TestTransferInsufficientFundsLeavesStateUntouched(t *testing.T) {
	repo := newFakeRepo()
	payer := repo.addWallet(uuid.New(), 30)
	payee := repo.addWallet(uuid.New(), 0)
	svc := newTestService(t, repo)

	_, err := svc.Transfer(context.Background(), TransferInput{
		FromWalletID: payer.ID,
		ToWalletID:   payee.ID,
		AmountCents:  40,
		Kind:         enums.TransactionKindPayment,
	})
	if !pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}

	if repo.wallets[payer.ID].BalanceCents != 30 || repo.wallets[payee.ID].BalanceCents != 0 {
		t.Fatal("balances must not change on a failed transfer")
	}
	if len(repo.txns) != 0 {
		t.Fatalf("no ledger row expected, got %d", len(repo.txns))
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	repo := newFakeRepo()
	payer := repo.addWallet(uuid.New(), 100)
	payee := repo.addWallet(uuid.New(), 0)
	svc := newTestService(t, repo)

	for _, amount := range []int64{0, -5} {
		_, err := svc.Transfer(context.Background(), TransferInput{
			FromWalletID: payer.ID,
			ToWalletID:   payee.ID,
			AmountCents:  amount,
			Kind:         enums.TransactionKindPayment,
		})
		if !pkgerrors.Is(err, pkgerrors.CodeInvalidAmount) {
			t.Fatalf("amount %d: expected invalid amount, got %v", amount, err)
		}
	}
}

func TestTransferRetriesOnVersionConflict(t *testing.T) {
	repo := newFakeRepo()
	payer := repo.addWallet(uuid.New(), 100)
	payee := repo.addWallet(uuid.New(), 0)
	repo.failDebits = 1
	svc := newTestService(t, repo)

	_, err := svc.Transfer(context.Background(), TransferInput{
		FromWalletID: payer.ID,
		ToWalletID:   payee.ID,
		AmountCents:  25,
		Kind:         enums.TransactionKindPayment,
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if repo.wallets[payer.ID].BalanceCents != 75 {
		t.Fatalf("expected payer balance 75, got %d", repo.wallets[payer.ID].BalanceCents)
	}
}

func TestTransferGivesUpAfterRepeatedConflicts(t *testing.T) {
	repo := newFakeRepo()
	payer := repo.addWallet(uuid.New(), 100)
	payee := repo.addWallet(uuid.New(), 0)
	repo.failDebits = debitAttempts
	svc := newTestService(t, repo)

	_, err := svc.Transfer(context.Background(), TransferInput{
		FromWalletID: payer.ID,
		ToWalletID:   payee.ID,
		AmountCents:  25,
		Kind:         enums.TransactionKindPayment,
	})
	if !pkgerrors.Is(err, pkgerrors.CodeConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
	if repo.wallets[payer.ID].BalanceCents != 100 {
		t.Fatal("balance must be untouched after giving up")
	}
}

func TestCreditRecordsChargeIn(t *testing.T) {
	repo := newFakeRepo()
	wallet := repo.addWallet(uuid.New(), 10)
	svc := newTestService(t, repo)

	txn, err := svc.Credit(context.Background(), CreditInput{
		ToWalletID:  wallet.ID,
		AmountCents: 500,
	})
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if txn.FromWalletID != nil {
		t.Fatal("charge-in must have no source wallet")
	}
	if txn.Kind != enums.TransactionKindCharge {
		t.Fatalf("expected charge kind, got %s", txn.Kind)
	}
	if repo.wallets[wallet.ID].BalanceCents != 510 {
		t.Fatalf("expected balance 510, got %d", repo.wallets[wallet.ID].BalanceCents)
	}
}

func TestReverseAppointmentPayment(t *testing.T) {
	repo := newFakeRepo()
	payer := repo.addWallet(uuid.New(), 0)
	payee := repo.addWallet(uuid.New(), 40)
	svc := newTestService(t, repo)

	appointmentID := uuid.New()
	from := payer.ID
	repo.txns = append(repo.txns, models.WalletTransaction{
		ID:            uuid.New(),
		FromWalletID:  &from,
		ToWalletID:    payee.ID,
		AmountCents:   40,
		Kind:          enums.TransactionKindPayment,
		AppointmentID: &appointmentID,
		CreatedAt:     time.Now().UTC(),
	})

	txn, err := svc.ReverseAppointmentPayment(context.Background(), appointmentID, "appointment rejected")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if txn == nil {
		t.Fatal("expected reversal row")
	}
	if txn.Kind != enums.TransactionKindReversal {
		t.Fatalf("expected reversal kind, got %s", txn.Kind)
	}
	if txn.FromWalletID == nil || *txn.FromWalletID != payee.ID || txn.ToWalletID != payer.ID {
		t.Fatal("reversal must swap the payment endpoints")
	}
	if repo.wallets[payer.ID].BalanceCents != 40 || repo.wallets[payee.ID].BalanceCents != 0 {
		t.Fatal("reversal must refund the payer")
	}

	// Already reversed: a second call is a no-op.
	again, err := svc.ReverseAppointmentPayment(context.Background(), appointmentID, "appointment rejected")
	if err != nil {
		t.Fatalf("second reverse: %v", err)
	}
	if again != nil {
		t.Fatal("second reversal must not create another row")
	}
	if repo.wallets[payer.ID].BalanceCents != 40 {
		t.Fatal("second reversal must not move funds")
	}
}

func TestReverseWithoutPaymentIsNoop(t *testing.T) {
	repo := newFakeRepo()
	svc := newTestService(t, repo)

	txn, err := svc.ReverseAppointmentPayment(context.Background(), uuid.New(), "appointment rejected")
	if err != nil {
		t.Fatalf("reverse: %v", err)
	}
	if txn != nil {
		t.Fatal("no payment means nothing to reverse")
	}
}

func TestListTransactionsPaginates(t *testing.T) {
	repo := newFakeRepo()
	userID := uuid.New()
	wallet := repo.addWallet(userID, 0)
	svc := newTestService(t, repo)

	base := time.Now().UTC().Add(-time.Hour)
	for i := 0; i < 3; i++ {
		repo.txns = append(repo.txns, models.WalletTransaction{
			ID:          uuid.New(),
			ToWalletID:  wallet.ID,
			AmountCents: int64(10 * (i + 1)),
			Kind:        enums.TransactionKindCharge,
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		})
	}

	page, err := svc.ListTransactions(context.Background(), userID, pagination.Params{Limit: 2})
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if len(page.Transactions) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(page.Transactions))
	}
	if page.NextCursor == nil {
		t.Fatal("expected next cursor")
	}

	rest, err := svc.ListTransactions(context.Background(), userID, pagination.Params{Limit: 2, Cursor: *page.NextCursor})
	if err != nil {
		t.Fatalf("list next page: %v", err)
	}
	if len(rest.Transactions) != 1 {
		t.Fatalf("expected 1 remaining row, got %d", len(rest.Transactions))
	}
	if rest.NextCursor != nil {
		t.Fatal("expected no further pages")
	}
}
