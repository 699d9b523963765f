package settlement

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/internal/chat"
	"github.com/nafsiapp/nafsi-backend/internal/wallets"
	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

type fakeWallets struct {
	byUser map[uuid.UUID]*models.Wallet
	txns   []models.WalletTransaction
}

func newFakeWallets() *fakeWallets {
	return &fakeWallets{byUser: map[uuid.UUID]*models.Wallet{}}
}

func (f *fakeWallets) fund(userID uuid.UUID, balance int64) *models.Wallet {
	wallet := &models.Wallet{ID: uuid.New(), UserID: userID, BalanceCents: balance}
	f.byUser[userID] = wallet
	return wallet
}

func (f *fakeWallets) byWalletID(id uuid.UUID) *models.Wallet {
	for _, wallet := range f.byUser {
		if wallet.ID == id {
			return wallet
		}
	}
	return nil
}

func (f *fakeWallets) WithTx(tx *gorm.DB) wallets.Service { return f }

func (f *fakeWallets) EnsureWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	if wallet, ok := f.byUser[userID]; ok {
		return wallet, nil
	}
	return f.fund(userID, 0), nil
}

func (f *fakeWallets) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	wallet, ok := f.byUser[userID]
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	return wallet, nil
}

func (f *fakeWallets) Transfer(ctx context.Context, input wallets.TransferInput) (*models.WalletTransaction, error) {
	from := f.byWalletID(input.FromWalletID)
	to := f.byWalletID(input.ToWalletID)
	if from == nil || to == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	if from.BalanceCents < input.AmountCents {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientFunds, "insufficient wallet balance")
	}
	from.BalanceCents -= input.AmountCents
	to.BalanceCents += input.AmountCents
	fromID := input.FromWalletID
	txn := models.WalletTransaction{
		ID:            uuid.New(),
		FromWalletID:  &fromID,
		ToWalletID:    input.ToWalletID,
		AmountCents:   input.AmountCents,
		Kind:          input.Kind,
		AppointmentID: input.AppointmentID,
		Note:          input.Note,
		CreatedAt:     time.Now().UTC(),
	}
	f.txns = append(f.txns, txn)
	return &txn, nil
}

func (f *fakeWallets) Credit(ctx context.Context, input wallets.CreditInput) (*models.WalletTransaction, error) {
	wallet := f.byWalletID(input.ToWalletID)
	if wallet == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "wallet not found")
	}
	wallet.BalanceCents += input.AmountCents
	txn := models.WalletTransaction{
		ID:          uuid.New(),
		ToWalletID:  input.ToWalletID,
		AmountCents: input.AmountCents,
		Kind:        enums.TransactionKindCharge,
		CreatedAt:   time.Now().UTC(),
	}
	f.txns = append(f.txns, txn)
	return &txn, nil
}

func (f *fakeWallets) ReverseAppointmentPayment(ctx context.Context, appointmentID uuid.UUID, note string) (*models.WalletTransaction, error) {
	var payment *models.WalletTransaction
	for i := range f.txns {
		txn := f.txns[i]
		if txn.Kind == enums.TransactionKindReversal && txn.AppointmentID != nil && *txn.AppointmentID == appointmentID {
			return nil, nil
		}
		if txn.Kind == enums.TransactionKindPayment && txn.AppointmentID != nil && *txn.AppointmentID == appointmentID {
			payment = &f.txns[i]
		}
	}
	if payment == nil {
		return nil, nil
	}
	return f.Transfer(ctx, wallets.TransferInput{
		FromWalletID:  payment.ToWalletID,
		ToWalletID:    *payment.FromWalletID,
		AmountCents:   payment.AmountCents,
		Kind:          enums.TransactionKindReversal,
		AppointmentID: payment.AppointmentID,
		Note:          &note,
	})
}

func (f *fakeWallets) ListByAppointment(ctx context.Context, appointmentID uuid.UUID) ([]models.WalletTransaction, error) {
	var out []models.WalletTransaction
	for _, txn := range f.txns {
		if txn.AppointmentID != nil && *txn.AppointmentID == appointmentID {
			out = append(out, txn)
		}
	}
	return out, nil
}

func (f *fakeWallets) ListTransactions(ctx context.Context, userID uuid.UUID, params pagination.Params) (*wallets.TransactionPage, error) {
	return &wallets.TransactionPage{}, nil
}

func (f *fakeWallets) GetTransaction(ctx context.Context, userID, txnID uuid.UUID) (*models.WalletTransaction, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "transaction not found")
}

type fakeChat struct {
	opened []chat.OpenForAppointmentInput
	groups map[uuid.UUID]*models.ChatGroup
}

func newFakeChat() *fakeChat {
	return &fakeChat{groups: map[uuid.UUID]*models.ChatGroup{}}
}

func (f *fakeChat) WithTx(tx *gorm.DB) chat.Service { return f }

func (f *fakeChat) OpenForAppointment(ctx context.Context, input chat.OpenForAppointmentInput) (*models.ChatGroup, error) {
	f.opened = append(f.opened, input)
	if group, ok := f.groups[input.AppointmentID]; ok {
		return group, nil
	}
	appointmentID := input.AppointmentID
	expiresAt := time.Now().UTC().Add(input.Window)
	group := &models.ChatGroup{
		ID:            uuid.New(),
		AppointmentID: &appointmentID,
		Type:          enums.ChatTypePrivate,
		Status:        enums.ChatStatusActive,
		ExpiresAt:     &expiresAt,
	}
	f.groups[input.AppointmentID] = group
	return group, nil
}

func (f *fakeChat) GroupForAppointment(ctx context.Context, appointmentID, userID uuid.UUID) (*models.ChatGroup, error) {
	if group, ok := f.groups[appointmentID]; ok {
		return group, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeChat) GroupIDsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	ids := make(map[uuid.UUID]uuid.UUID)
	for _, appointmentID := range appointmentIDs {
		if group, ok := f.groups[appointmentID]; ok {
			ids[appointmentID] = group.ID
		}
	}
	return ids, nil
}

func (f *fakeChat) CreateCommunityGroup(ctx context.Context, name string, memberIDs []uuid.UUID) (*models.ChatGroup, error) {
	return nil, nil
}

func (f *fakeChat) SendMessage(ctx context.Context, input chat.SendMessageInput) (*models.ChatMessage, error) {
	return nil, nil
}

func (f *fakeChat) ListMessages(ctx context.Context, groupID, userID uuid.UUID, params pagination.Params) (*chat.MessagePage, error) {
	return &chat.MessagePage{}, nil
}

func (f *fakeChat) ListMyGroups(ctx context.Context, userID uuid.UUID) ([]models.ChatGroup, error) {
	return nil, nil
}

func (f *fakeChat) GetGroup(ctx context.Context, groupID, userID uuid.UUID) (*models.ChatGroup, error) {
	return nil, nil
}

func (f *fakeChat) Participants(ctx context.Context, groupID, userID uuid.UUID) ([]models.ChatGroupParticipant, error) {
	return nil, nil
}

func (f *fakeChat) Archive(ctx context.Context, groupID uuid.UUID) error { return nil }

func (f *fakeChat) Mute(ctx context.Context, input chat.MuteInput) error { return nil }

func testAppointment() *models.Appointment {
	child := uuid.New()
	return &models.Appointment{
		ID:          uuid.New(),
		RequesterID: uuid.New(),
		ProviderID:  uuid.New(),
		ChildID:     &child,
		PlanID:      uuid.New(),
		Status:      enums.AppointmentStatusPendingApproval,
	}
}

func testPlan(price int64, minutes int) *models.AppointmentPlan {
	return &models.AppointmentPlan{
		ID:              uuid.New(),
		Title:           "Single session",
		PriceCents:      price,
		DurationMinutes: minutes,
	}
}

func TestApproveMovesFundsAndOpensChat(t *testing.T) {
	walletSvc := newFakeWallets()
	chatSvc := newFakeChat()
	svc, err := NewService(walletSvc, chatSvc)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	appointment := testAppointment()
	walletSvc.fund(appointment.RequesterID, 100)
	walletSvc.fund(appointment.ProviderID, 0)

	result, err := svc.Approve(context.Background(), nil, ApproveInput{
		Appointment: appointment,
		Plan:        testPlan(40, 30),
	})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}

	if walletSvc.byUser[appointment.RequesterID].BalanceCents != 60 {
		t.Fatalf("expected requester balance 60, got %d", walletSvc.byUser[appointment.RequesterID].BalanceCents)
	}
	if walletSvc.byUser[appointment.ProviderID].BalanceCents != 40 {
		t.Fatalf("expected provider balance 40, got %d", walletSvc.byUser[appointment.ProviderID].BalanceCents)
	}
	if result.Payment == nil || result.Payment.Kind != enums.TransactionKindPayment {
		t.Fatal("expected a payment transaction")
	}
	if result.ChatGroup == nil {
		t.Fatal("expected a chat group")
	}

	if len(chatSvc.opened) != 1 {
		t.Fatalf("expected one chat provisioning call, got %d", len(chatSvc.opened))
	}
	open := chatSvc.opened[0]
	if open.Window != 30*time.Minute {
		t.Fatalf("expected 30m window, got %s", open.Window)
	}
	// The channel is between the settling parties only; the child is carried
	// on the group, not as a participant.
	if len(open.ParticipantIDs) != 2 {
		t.Fatalf("expected requester and provider as the only participants, got %d", len(open.ParticipantIDs))
	}
	if open.ParticipantIDs[0] != appointment.RequesterID || open.ParticipantIDs[1] != appointment.ProviderID {
		t.Fatalf("participants = %v, want requester then provider", open.ParticipantIDs)
	}
	if open.ChildID == nil || *open.ChildID != *appointment.ChildID {
		t.Fatal("child id must still be copied onto the group")
	}
}

func TestApproveInsufficientFunds(t *testing.T) {
	walletSvc := newFakeWallets()
	chatSvc := newFakeChat()
	svc, err := NewService(walletSvc, chatSvc)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	appointment := testAppointment()
	walletSvc.fund(appointment.RequesterID, 10)

	_, err = svc.Approve(context.Background(), nil, ApproveInput{
		Appointment: appointment,
		Plan:        testPlan(40, 30),
	})
	if !pkgerrors.Is(err, pkgerrors.CodeInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if len(chatSvc.opened) != 0 {
		t.Fatal("chat must not be provisioned when payment fails")
	}
}

func TestApproveRejectsUnpricedPlan(t *testing.T) {
	svc, err := NewService(newFakeWallets(), newFakeChat())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	cases := []*models.AppointmentPlan{
		nil,
		testPlan(0, 30),
		testPlan(40, 0),
	}
	for _, plan := range cases {
		_, err := svc.Approve(context.Background(), nil, ApproveInput{
			Appointment: testAppointment(),
			Plan:        plan,
		})
		if !pkgerrors.Is(err, pkgerrors.CodeInvalidPlan) {
			t.Fatalf("expected invalid plan, got %v", err)
		}
	}
}

func TestRejectReversesPayment(t *testing.T) {
	walletSvc := newFakeWallets()
	svc, err := NewService(walletSvc, newFakeChat())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	appointment := testAppointment()
	payer := walletSvc.fund(appointment.RequesterID, 0)
	payee := walletSvc.fund(appointment.ProviderID, 40)

	appointmentID := appointment.ID
	fromID := payer.ID
	walletSvc.txns = append(walletSvc.txns, models.WalletTransaction{
		ID:            uuid.New(),
		FromWalletID:  &fromID,
		ToWalletID:    payee.ID,
		AmountCents:   40,
		Kind:          enums.TransactionKindPayment,
		AppointmentID: &appointmentID,
	})

	if err := svc.Reject(context.Background(), nil, appointment); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if payer.BalanceCents != 40 || payee.BalanceCents != 0 {
		t.Fatal("reject must refund the requester")
	}

	// Second reject settles as a no-op.
	if err := svc.Reject(context.Background(), nil, appointment); err != nil {
		t.Fatalf("second reject: %v", err)
	}
	if payer.BalanceCents != 40 {
		t.Fatal("second reject must not move funds")
	}
}

func TestRejectWithoutPaymentIsNoop(t *testing.T) {
	walletSvc := newFakeWallets()
	svc, err := NewService(walletSvc, newFakeChat())
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	if err := svc.Reject(context.Background(), nil, testAppointment()); err != nil {
		t.Fatalf("reject without payment: %v", err)
	}
	if len(walletSvc.txns) != 0 {
		t.Fatal("no ledger rows expected")
	}
}
