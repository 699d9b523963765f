package charges

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/internal/notifications"
	"github.com/nafsiapp/nafsi-backend/internal/wallets"
	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

type fakeRepo struct {
	requests map[uuid.UUID]*models.ChargeRequest
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{requests: make(map[uuid.UUID]*models.ChargeRequest)}
}

func (f *fakeRepo) WithTx(tx *gorm.DB) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, request *models.ChargeRequest) error {
	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	request.CreatedAt = time.Now()
	copied := *request
	f.requests[request.ID] = &copied
	return nil
}

func (f *fakeRepo) FindByID(ctx context.Context, id uuid.UUID) (*models.ChargeRequest, error) {
	request, ok := f.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *request
	return &copied, nil
}

func (f *fakeRepo) ResolveGuarded(ctx context.Context, id uuid.UUID, to enums.ChargeRequestStatus, rejectionNote *string) (bool, error) {
	request, ok := f.requests[id]
	if !ok || request.Status != enums.ChargeRequestStatusPending {
		return false, nil
	}
	request.Status = to
	if rejectionNote != nil {
		request.RejectionNote = rejectionNote
	}
	return true, nil
}

func (f *fakeRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ChargeRequest, error) {
	var out []models.ChargeRequest
	for _, request := range f.requests {
		if request.WalletID != walletID {
			continue
		}
		out = append(out, *request)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeRepo) ListByStatus(ctx context.Context, status enums.ChargeRequestStatus, limit int, cursor *pagination.Cursor) ([]models.ChargeRequest, error) {
	var out []models.ChargeRequest
	for _, request := range f.requests {
		if request.Status != status {
			continue
		}
		out = append(out, *request)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeWallets struct {
	wallets map[uuid.UUID]*models.Wallet
	credits []wallets.CreditInput
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{wallets: make(map[uuid.UUID]*models.Wallet)}
}

func (f *fakeWallets) WithTx(tx *gorm.DB) wallets.Service { return f }

func (f *fakeWallets) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	for _, wallet := range f.wallets {
		if wallet.UserID == userID {
			return wallet, nil
		}
	}
	wallet := &models.Wallet{ID: uuid.New(), UserID: userID}
	f.wallets[wallet.ID] = wallet
	return wallet, nil
}

func (f *fakeWallets) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	for _, wallet := range f.wallets {
		if wallet.UserID == userID {
			return wallet, nil
		}
	}
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
}

func (f *fakeWallets) Transfer(ctx context.Context, input wallets.TransferInput) (*models.WalletTransaction, error) {
	return nil, pkgerrors.New(pkgerrors.CodeDependency, "not implemented")
}

func (f *fakeWallets) Credit(ctx context.Context, input wallets.CreditInput) (*models.WalletTransaction, error) {
	wallet, ok := f.wallets[input.ToWalletID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	wallet.BalanceCents += input.AmountCents
	f.credits = append(f.credits, input)
	return &models.WalletTransaction{ID: uuid.New()}, nil
}

func (f *fakeWallets) ReverseAppointmentPayment(ctx context.Context, appointmentID uuid.UUID, note string) (*models.WalletTransaction, error) {
	return nil, nil
}

func (f *fakeWallets) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*wallets.TransactionPage, error) {
	return &wallets.TransactionPage{}, nil
}

func (f *fakeWallets) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.WalletTransaction, error) {
	return nil, nil
}

func (f *fakeWallets) GetTransaction(ctx context.Context, userID, txnID uuid.UUID) (*models.WalletTransaction, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
}

func (f *fakeWallets) FindByID(ctx context.Context, id uuid.UUID) (*models.Wallet, error) {
	wallet, ok := f.wallets[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return wallet, nil
}

type fakeTx struct{}

func (fakeTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type fakeNotifier struct {
	sent []notifications.NotifyInput
}

func (f *fakeNotifier) Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error) {
	f.sent = append(f.sent, input)
	return &models.Notification{ID: uuid.New()}, nil
}

type fixture struct {
	svc      Service
	repo     *fakeRepo
	wallets  *fakeWallets
	notifier *fakeNotifier
	userID   uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	repo := newFakeRepo()
	walletSvc := newFakeWallets()
	notifier := &fakeNotifier{}

	svc, err := NewService(repo, walletSvc, walletSvc, fakeTx{}, notifier, nil)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return &fixture{
		svc:      svc,
		repo:     repo,
		wallets:  walletSvc,
		notifier: notifier,
		userID:   uuid.New(),
	}
}

func (fx *fixture) submit(t *testing.T, amount int64) *models.ChargeRequest {
	t.Helper()
	request, err := fx.svc.Create(context.Background(), CreateInput{
		UserID:      fx.userID,
		AmountCents: amount,
		Note:        "bank transfer",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return request
}

func TestCreateChargeRequest(t *testing.T) {
	fx := newFixture(t)

	request := fx.submit(t, 10_000)
	if request.Status != enums.ChargeRequestStatusPending {
		t.Fatalf("status = %s, want pending", request.Status)
	}

	wallet, err := fx.wallets.GetByUserID(context.Background(), fx.userID)
	if err != nil {
		t.Fatalf("GetByUserID: %v", err)
	}
	if request.WalletID != wallet.ID {
		t.Fatalf("request wallet = %s, want %s", request.WalletID, wallet.ID)
	}
	if wallet.BalanceCents != 0 {
		t.Fatalf("balance credited before review: %d", wallet.BalanceCents)
	}
}

func TestCreateRejectsNonPositiveAmount(t *testing.T) {
	fx := newFixture(t)

	for _, amount := range []int64{0, -500} {
		_, err := fx.svc.Create(context.Background(), CreateInput{UserID: fx.userID, AmountCents: amount})
		if !pkgerrors.Is(err, pkgerrors.CodeInvalidAmount) {
			t.Fatalf("amount %d: err = %v, want invalid amount", amount, err)
		}
	}
}

func TestApproveCreditsWalletAndNotifies(t *testing.T) {
	fx := newFixture(t)
	request := fx.submit(t, 10_000)

	approved, err := fx.svc.Approve(context.Background(), request.ID)
	if err != nil {
		t.Fatalf("Approve: %v", err)
	}
	if approved.Status != enums.ChargeRequestStatusApproved {
		t.Fatalf("status = %s, want approved", approved.Status)
	}

	wallet, _ := fx.wallets.GetByUserID(context.Background(), fx.userID)
	if wallet.BalanceCents != 10_000 {
		t.Fatalf("balance = %d, want 10000", wallet.BalanceCents)
	}
	if len(fx.wallets.credits) != 1 {
		t.Fatalf("credits = %d, want 1", len(fx.wallets.credits))
	}
	if len(fx.notifier.sent) != 1 || fx.notifier.sent[0].Type != enums.NotificationTypeChargeApproved {
		t.Fatalf("notifications = %+v", fx.notifier.sent)
	}
	if fx.notifier.sent[0].UserID != fx.userID {
		t.Fatalf("notified %s, want %s", fx.notifier.sent[0].UserID, fx.userID)
	}
}

func TestApproveTwiceCreditsOnce(t *testing.T) {
	fx := newFixture(t)
	request := fx.submit(t, 10_000)

	if _, err := fx.svc.Approve(context.Background(), request.ID); err != nil {
		t.Fatalf("first Approve: %v", err)
	}
	_, err := fx.svc.Approve(context.Background(), request.ID)
	if !pkgerrors.Is(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("second Approve err = %v, want state conflict", err)
	}

	wallet, _ := fx.wallets.GetByUserID(context.Background(), fx.userID)
	if wallet.BalanceCents != 10_000 {
		t.Fatalf("balance = %d, want 10000 after double review", wallet.BalanceCents)
	}
}

func TestRejectRecordsNoteAndNotifies(t *testing.T) {
	fx := newFixture(t)
	request := fx.submit(t, 10_000)

	rejected, err := fx.svc.Reject(context.Background(), request.ID, "receipt unreadable")
	if err != nil {
		t.Fatalf("Reject: %v", err)
	}
	if rejected.Status != enums.ChargeRequestStatusRejected {
		t.Fatalf("status = %s, want rejected", rejected.Status)
	}
	if rejected.RejectionNote == nil || *rejected.RejectionNote != "receipt unreadable" {
		t.Fatalf("rejection note = %v", rejected.RejectionNote)
	}

	wallet, _ := fx.wallets.GetByUserID(context.Background(), fx.userID)
	if wallet.BalanceCents != 0 {
		t.Fatalf("balance credited on reject: %d", wallet.BalanceCents)
	}
	if len(fx.notifier.sent) != 1 || fx.notifier.sent[0].Type != enums.NotificationTypeChargeRejected {
		t.Fatalf("notifications = %+v", fx.notifier.sent)
	}
}

func TestRejectRequiresNote(t *testing.T) {
	fx := newFixture(t)
	request := fx.submit(t, 10_000)

	_, err := fx.svc.Reject(context.Background(), request.ID, "  ")
	if !pkgerrors.Is(err, pkgerrors.CodeValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestGetRestrictedToOwnerAndAdmins(t *testing.T) {
	fx := newFixture(t)
	request := fx.submit(t, 10_000)

	if _, err := fx.svc.Get(context.Background(), request.ID, fx.userID, enums.UserRoleParent); err != nil {
		t.Fatalf("owner Get: %v", err)
	}
	if _, err := fx.svc.Get(context.Background(), request.ID, uuid.New(), enums.UserRoleAdmin); err != nil {
		t.Fatalf("admin Get: %v", err)
	}
	_, err := fx.svc.Get(context.Background(), request.ID, uuid.New(), enums.UserRoleParent)
	if !pkgerrors.Is(err, pkgerrors.CodeForbidden) {
		t.Fatalf("stranger Get err = %v, want forbidden", err)
	}
}

func TestListMineEmptyWithoutWallet(t *testing.T) {
	fx := newFixture(t)

	page, err := fx.svc.ListMine(context.Background(), uuid.New(), pagination.Params{})
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}
	if len(page.Requests) != 0 || page.NextCursor != nil {
		t.Fatalf("page = %+v, want empty", page)
	}
}
