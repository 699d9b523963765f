package settlement

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/internal/chat"
	"github.com/nafsiapp/nafsi-backend/internal/wallets"
	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
)

const (
	paymentNote  = "appointment payment"
	reversalNote = "appointment rejected"
)

// Service settles the money and chat side effects of an appointment
// decision. Both operations run against the caller's transaction so the
// status commit and the settlement land or roll back together.
type Service interface {
	Approve(ctx context.Context, tx *gorm.DB, input ApproveInput) (*ApproveResult, error)
	Reject(ctx context.Context, tx *gorm.DB, appointment *models.Appointment) error
}

type service struct {
	wallets wallets.Service
	chat    chat.Service
}

// ApproveInput carries the appointment being approved and its priced plan.
type ApproveInput struct {
	Appointment *models.Appointment
	Plan        *models.AppointmentPlan
}

// ApproveResult reports what the settlement produced.
type ApproveResult struct {
	Payment   *models.WalletTransaction
	ChatGroup *models.ChatGroup
}

// NewService wires the settlement orchestrator.
func NewService(walletSvc wallets.Service, chatSvc chat.Service) (Service, error) {
	if walletSvc == nil {
		return nil, fmt.Errorf("wallet service required")
	}
	if chatSvc == nil {
		return nil, fmt.Errorf("chat service required")
	}
	return &service{wallets: walletSvc, chat: chatSvc}, nil
}

// Approve charges the requester, pays the provider, and provisions the
// private chat channel. Any failure rolls the whole transaction back, so a
// half-settled appointment cannot exist.
func (s *service) Approve(ctx context.Context, tx *gorm.DB, input ApproveInput) (*ApproveResult, error) {
	appointment := input.Appointment
	if appointment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment required")
	}
	plan := input.Plan
	if plan == nil || plan.PriceCents <= 0 || plan.DurationMinutes <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidPlan, "appointment plan missing or unpriced")
	}

	ledger := s.wallets.WithTx(tx)

	payerWallet, err := ledger.EnsureWallet(ctx, appointment.RequesterID)
	if err != nil {
		return nil, err
	}
	payeeWallet, err := ledger.EnsureWallet(ctx, appointment.ProviderID)
	if err != nil {
		return nil, err
	}

	appointmentID := appointment.ID
	note := paymentNote
	payment, err := ledger.Transfer(ctx, wallets.TransferInput{
		FromWalletID:  payerWallet.ID,
		ToWalletID:    payeeWallet.ID,
		AmountCents:   plan.PriceCents,
		Kind:          enums.TransactionKindPayment,
		AppointmentID: &appointmentID,
		Note:          &note,
	})
	if err != nil {
		return nil, err
	}

	window := time.Duration(plan.DurationMinutes) * time.Minute
	group, err := s.chat.WithTx(tx).OpenForAppointment(ctx, chat.OpenForAppointmentInput{
		AppointmentID:  appointment.ID,
		ChildID:        appointment.ChildID,
		ParticipantIDs: participantIDs(appointment),
		Window:         window,
	})
	if err != nil {
		return nil, err
	}

	return &ApproveResult{Payment: payment, ChatGroup: group}, nil
}

// Reject refunds the appointment payment when one was recorded. Rejections
// without a payment settle as a no-op on the ledger.
func (s *service) Reject(ctx context.Context, tx *gorm.DB, appointment *models.Appointment) error {
	if appointment == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "appointment required")
	}
	_, err := s.wallets.WithTx(tx).ReverseAppointmentPayment(ctx, appointment.ID, reversalNote)
	return err
}

// participantIDs limits the private channel to the two settling parties.
// The child rides on the group row, not on the participant list.
func participantIDs(appointment *models.Appointment) []uuid.UUID {
	return []uuid.UUID{appointment.RequesterID, appointment.ProviderID}
}
