package appointments

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/internal/notifications"
	"github.com/nafsiapp/nafsi-backend/internal/plans"
	"github.com/nafsiapp/nafsi-backend/internal/settlement"
	"github.com/nafsiapp/nafsi-backend/internal/users"
	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Notifier fans out appointment notifications; failures never fail the
// operation that triggered them.
type Notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error)
}

// ChannelDirectory resolves the chat groups settlement provisioned for a set
// of appointments. Optional; without it listings omit chat group ids.
type ChannelDirectory interface {
	GroupIDsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
}

// Service drives the appointment lifecycle from request to decision.
type Service interface {
	Request(ctx context.Context, input RequestInput) (*models.Appointment, error)
	ConfirmPayment(ctx context.Context, appointmentID, actorID uuid.UUID) (*models.Appointment, error)
	Decide(ctx context.Context, input DecideInput) (*AppointmentListItem, error)
	Cancel(ctx context.Context, appointmentID, actorID uuid.UUID) (*models.Appointment, error)
	Complete(ctx context.Context, appointmentID, actorID uuid.UUID) (*models.Appointment, error)
	Get(ctx context.Context, appointmentID, actorID uuid.UUID, actorRole enums.UserRole) (*AppointmentDetail, error)
	ListMine(ctx context.Context, userID uuid.UUID, role enums.UserRole, params pagination.Params) (*AppointmentPage, error)
	ListForChild(ctx context.Context, requesterID, childID uuid.UUID, params pagination.Params) (*AppointmentPage, error)
}

type service struct {
	repo       Repository
	users      users.Repository
	plans      plans.Service
	tx         txRunner
	settlement settlement.Service
	channels   ChannelDirectory
	notifier   Notifier
	logg       *logger.Logger
}

// RequestInput opens a new appointment against a provider and plan.
type RequestInput struct {
	RequesterID uuid.UUID
	ProviderID  uuid.UUID
	ChildID     *uuid.UUID
	PlanID      uuid.UUID
	Note        string
}

// Decision is the provider's verdict on a pending appointment.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// DecideInput carries the provider decision.
type DecideInput struct {
	AppointmentID uuid.UUID
	ActorID       uuid.UUID
	Decision      Decision
}

// AppointmentDetail bundles the appointment with its invoice, plan, and the
// chat group settlement opened for it, when one exists.
type AppointmentDetail struct {
	Appointment models.Appointment      `json:"appointment"`
	Invoice     *models.Invoice         `json:"invoice,omitempty"`
	Plan        *models.AppointmentPlan `json:"plan,omitempty"`
	ChatGroupID *uuid.UUID              `json:"chat_group_id,omitempty"`
}

// AppointmentListItem is one appointment in a listing, annotated with its
// chat group id when a channel has been provisioned.
type AppointmentListItem struct {
	models.Appointment
	ChatGroupID *uuid.UUID `json:"chat_group_id,omitempty"`
}

// AppointmentPage is one page of appointments plus the cursor for the next.
type AppointmentPage struct {
	Appointments []AppointmentListItem `json:"appointments"`
	NextCursor   *string               `json:"next_cursor,omitempty"`
}

// NewService wires the appointment service with its dependencies.
func NewService(
	repo Repository,
	userRepo users.Repository,
	planSvc plans.Service,
	tx txRunner,
	settlementSvc settlement.Service,
	channels ChannelDirectory,
	notifier Notifier,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("appointments repository required")
	}
	if userRepo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if planSvc == nil {
		return nil, fmt.Errorf("plans service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if settlementSvc == nil {
		return nil, fmt.Errorf("settlement service required")
	}
	return &service{
		repo:       repo,
		users:      userRepo,
		plans:      planSvc,
		tx:         tx,
		settlement: settlementSvc,
		channels:   channels,
		notifier:   notifier,
		logg:       logg,
	}, nil
}

func (s *service) Request(ctx context.Context, input RequestInput) (*models.Appointment, error) {
	if input.RequesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "user identity missing")
	}
	if input.ProviderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "provider id required")
	}
	if input.PlanID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidPlan, "plan id required")
	}
	if input.RequesterID == input.ProviderID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cannot request an appointment with yourself")
	}

	provider, err := s.users.FindByID(ctx, input.ProviderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "provider not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load provider")
	}
	if !provider.Role.IsProvider() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user is not a provider")
	}

	plan, err := s.plans.Get(ctx, input.PlanID)
	if err != nil {
		if pkgerrors.Is(err, pkgerrors.CodeNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeInvalidPlan, "plan not found")
		}
		return nil, err
	}

	appointment := &models.Appointment{
		RequesterID: input.RequesterID,
		ProviderID:  input.ProviderID,
		ChildID:     input.ChildID,
		PlanID:      plan.ID,
		Status:      enums.AppointmentStatusPending,
		Note:        input.Note,
	}

	// The invoice snapshots the plan price at request time; later plan edits
	// never change what this appointment costs.
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, appointment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create appointment")
		}
		invoice := &models.Invoice{
			AppointmentID: appointment.ID,
			AmountCents:   plan.PriceCents,
			Status:        enums.InvoiceStatusPending,
		}
		if err := repo.CreateInvoice(ctx, invoice); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return appointment, nil
}

func (s *service) ConfirmPayment(ctx context.Context, appointmentID, actorID uuid.UUID) (*models.Appointment, error) {
	appointment, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appointment.RequesterID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the requester can confirm payment")
	}
	if appointment.Status != enums.AppointmentStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "appointment is not awaiting payment")
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		invoice, err := repo.FindInvoiceByAppointment(ctx, appointmentID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
		}

		paid, err := repo.MarkInvoicePaid(ctx, invoice.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark invoice paid")
		}
		if !paid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice already paid")
		}

		moved, err := repo.UpdateStatusGuarded(ctx, appointmentID, enums.AppointmentStatusPending, enums.AppointmentStatusPendingApproval)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update appointment status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "appointment is not awaiting payment")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	appointment.Status = enums.AppointmentStatusPendingApproval
	s.notify(ctx, notifications.NotifyInput{
		UserID:        appointment.ProviderID,
		Type:          enums.NotificationTypeAppointmentRequest,
		Title:         "New appointment request",
		Body:          "A new appointment is awaiting your decision",
		AppointmentID: &appointment.ID,
	})
	return appointment, nil
}

// Decide commits the provider's verdict and settles it atomically. The
// status transition is a conditional write, so concurrent decisions on the
// same appointment resolve to exactly one winner; the loser gets a state
// conflict and no side effects.
func (s *service) Decide(ctx context.Context, input DecideInput) (*AppointmentListItem, error) {
	if input.Decision != DecisionApprove && input.Decision != DecisionReject {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "decision must be approve or reject")
	}

	appointment, err := s.load(ctx, input.AppointmentID)
	if err != nil {
		return nil, err
	}
	if appointment.ProviderID != input.ActorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the provider can decide this appointment")
	}
	if appointment.Status != enums.AppointmentStatusPendingApproval {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "appointment is not awaiting a decision")
	}

	target := enums.AppointmentStatusConfirmed
	if input.Decision == DecisionReject {
		target = enums.AppointmentStatusRejected
	}

	var chatGroupID *uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		moved, err := repo.UpdateStatusGuarded(ctx, appointment.ID, enums.AppointmentStatusPendingApproval, target)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update appointment status")
		}
		if !moved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "appointment already decided")
		}

		if input.Decision == DecisionApprove {
			plan, err := s.plans.Get(ctx, appointment.PlanID)
			if err != nil {
				return err
			}
			result, err := s.settlement.Approve(ctx, tx, settlement.ApproveInput{
				Appointment: appointment,
				Plan:        plan,
			})
			if err != nil {
				return err
			}
			if result.ChatGroup != nil {
				chatGroupID = &result.ChatGroup.ID
			}
			return nil
		}
		return s.settlement.Reject(ctx, tx, appointment)
	})
	if err != nil {
		return nil, err
	}

	appointment.Status = target
	s.notifyDecision(ctx, appointment, input.Decision, chatGroupID)
	return &AppointmentListItem{Appointment: *appointment, ChatGroupID: chatGroupID}, nil
}

func (s *service) notifyDecision(ctx context.Context, appointment *models.Appointment, decision Decision, chatGroupID *uuid.UUID) {
	input := notifications.NotifyInput{
		UserID:        appointment.RequesterID,
		AppointmentID: &appointment.ID,
		ChatGroupID:   chatGroupID,
	}
	if decision == DecisionApprove {
		input.Type = enums.NotificationTypeAppointmentApproved
		input.Title = "Appointment approved"
		input.Body = "Your appointment was approved and the chat is open"
	} else {
		input.Type = enums.NotificationTypeAppointmentRejected
		input.Title = "Appointment rejected"
		input.Body = "Your appointment was rejected and the payment refunded"
	}
	s.notify(ctx, input)
}

func (s *service) Cancel(ctx context.Context, appointmentID, actorID uuid.UUID) (*models.Appointment, error) {
	appointment, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appointment.RequesterID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the requester can cancel")
	}

	from := appointment.Status
	if from != enums.AppointmentStatusPending && from != enums.AppointmentStatusPendingApproval {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "appointment can no longer be cancelled")
	}

	moved, err := s.repo.UpdateStatusGuarded(ctx, appointmentID, from, enums.AppointmentStatusCancelled)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update appointment status")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "appointment can no longer be cancelled")
	}

	appointment.Status = enums.AppointmentStatusCancelled
	return appointment, nil
}

func (s *service) Complete(ctx context.Context, appointmentID, actorID uuid.UUID) (*models.Appointment, error) {
	appointment, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	if appointment.ProviderID != actorID {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the provider can complete")
	}
	if appointment.Status != enums.AppointmentStatusConfirmed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only confirmed appointments can be completed")
	}

	moved, err := s.repo.UpdateStatusGuarded(ctx, appointmentID, enums.AppointmentStatusConfirmed, enums.AppointmentStatusCompleted)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update appointment status")
	}
	if !moved {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "only confirmed appointments can be completed")
	}

	appointment.Status = enums.AppointmentStatusCompleted
	return appointment, nil
}

func (s *service) Get(ctx context.Context, appointmentID, actorID uuid.UUID, actorRole enums.UserRole) (*AppointmentDetail, error) {
	appointment, err := s.load(ctx, appointmentID)
	if err != nil {
		return nil, err
	}

	involved := appointment.RequesterID == actorID || appointment.ProviderID == actorID
	if !involved && !actorRole.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "appointment does not involve caller")
	}

	detail := &AppointmentDetail{Appointment: *appointment}

	invoice, err := s.repo.FindInvoiceByAppointment(ctx, appointmentID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	detail.Invoice = invoice

	plan, err := s.plans.Get(ctx, appointment.PlanID)
	if err == nil {
		detail.Plan = plan
	} else if !pkgerrors.Is(err, pkgerrors.CodeNotFound) {
		return nil, err
	}

	if s.channels != nil {
		ids, err := s.channels.GroupIDsByAppointments(ctx, []uuid.UUID{appointment.ID})
		if err != nil {
			return nil, err
		}
		if groupID, ok := ids[appointment.ID]; ok {
			detail.ChatGroupID = &groupID
		}
	}
	return detail, nil
}

func (s *service) ListMine(ctx context.Context, userID uuid.UUID, role enums.UserRole, params pagination.Params) (*AppointmentPage, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "user identity missing")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor").WithDetails(err.Error())
	}

	limit := pagination.NormalizeLimit(params.Limit)
	var appointments []models.Appointment
	if role.IsProvider() {
		appointments, err = s.repo.ListByProvider(ctx, userID, limit+1, cursor)
	} else {
		appointments, err = s.repo.ListByRequester(ctx, userID, limit+1, cursor)
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list appointments")
	}
	return s.buildPage(ctx, appointments, limit)
}

func (s *service) ListForChild(ctx context.Context, requesterID, childID uuid.UUID, params pagination.Params) (*AppointmentPage, error) {
	if requesterID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthenticated, "user identity missing")
	}
	if childID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "child id required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor").WithDetails(err.Error())
	}

	limit := pagination.NormalizeLimit(params.Limit)
	appointments, err := s.repo.ListByChild(ctx, requesterID, childID, limit+1, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list appointments")
	}
	return s.buildPage(ctx, appointments, limit)
}

// buildPage truncates to the page limit, computes the next cursor, and
// annotates each row with its chat group id when a channel exists.
func (s *service) buildPage(ctx context.Context, appointments []models.Appointment, limit int) (*AppointmentPage, error) {
	page := &AppointmentPage{}
	if len(appointments) > limit {
		appointments = appointments[:limit]
		last := appointments[limit-1]
		next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		page.NextCursor = &next
	}

	var groupIDs map[uuid.UUID]uuid.UUID
	if s.channels != nil && len(appointments) > 0 {
		ids := make([]uuid.UUID, 0, len(appointments))
		for _, appointment := range appointments {
			ids = append(ids, appointment.ID)
		}
		resolved, err := s.channels.GroupIDsByAppointments(ctx, ids)
		if err != nil {
			return nil, err
		}
		groupIDs = resolved
	}

	page.Appointments = make([]AppointmentListItem, 0, len(appointments))
	for _, appointment := range appointments {
		item := AppointmentListItem{Appointment: appointment}
		if groupID, ok := groupIDs[appointment.ID]; ok {
			id := groupID
			item.ChatGroupID = &id
		}
		page.Appointments = append(page.Appointments, item)
	}
	return page, nil
}

func (s *service) load(ctx context.Context, appointmentID uuid.UUID) (*models.Appointment, error) {
	if appointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	appointment, err := s.repo.FindByID(ctx, appointmentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "appointment not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load appointment")
	}
	return appointment, nil
}

func (s *service) notify(ctx context.Context, input notifications.NotifyInput) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, input); err != nil && s.logg != nil {
		s.logg.Error(ctx, "send appointment notification", err)
	}
}
