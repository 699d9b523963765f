package chat

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/internal/notifications"
	"github.com/nafsiapp/nafsi-backend/pkg/db"
	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

// lastMessagePreviewLen caps the preview stored on the group row.
const lastMessagePreviewLen = 120

// Notifier fans out chat notifications; failures must not block messaging.
type Notifier interface {
	Notify(ctx context.Context, input notifications.NotifyInput) (*models.Notification, error)
}

// Service provisions chat channels and moves messages through them.
// Private channels are bound to one appointment each and live for a fixed
// window; archival is lazy and strictly one-way.
type Service interface {
	WithTx(tx *gorm.DB) Service
	OpenForAppointment(ctx context.Context, input OpenForAppointmentInput) (*models.ChatGroup, error)
	GroupForAppointment(ctx context.Context, appointmentID, userID uuid.UUID) (*models.ChatGroup, error)
	GroupIDsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	CreateCommunityGroup(ctx context.Context, name string, memberIDs []uuid.UUID) (*models.ChatGroup, error)
	SendMessage(ctx context.Context, input SendMessageInput) (*models.ChatMessage, error)
	ListMessages(ctx context.Context, groupID, userID uuid.UUID, params pagination.Params) (*MessagePage, error)
	ListMyGroups(ctx context.Context, userID uuid.UUID) ([]models.ChatGroup, error)
	GetGroup(ctx context.Context, groupID, userID uuid.UUID) (*models.ChatGroup, error)
	Participants(ctx context.Context, groupID, userID uuid.UUID) ([]models.ChatGroupParticipant, error)
	Archive(ctx context.Context, groupID uuid.UUID) error
	Mute(ctx context.Context, input MuteInput) error
}

type service struct {
	repo     Repository
	notifier Notifier
	logg     *logger.Logger
	now      func() time.Time
}

// OpenForAppointmentInput provisions the private channel when an appointment
// is approved.
type OpenForAppointmentInput struct {
	AppointmentID  uuid.UUID
	ChildID        *uuid.UUID
	ParticipantIDs []uuid.UUID
	Window         time.Duration
}

// SendMessageInput posts one message into a group.
type SendMessageInput struct {
	GroupID    uuid.UUID
	SenderID   uuid.UUID
	ReceiverID *uuid.UUID
	Body       string
}

// MuteInput silences a participant, optionally until a deadline.
type MuteInput struct {
	GroupID   uuid.UUID
	UserID    uuid.UUID
	Muted     bool
	MuteUntil *time.Time
}

// MessagePage is one page of messages plus the cursor for the next.
type MessagePage struct {
	Messages   []models.ChatMessage
	NextCursor *string
}

// NewService wires a chat service. The notifier is optional.
func NewService(repo Repository, notifier Notifier, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("chat repository required")
	}
	return &service{
		repo:     repo,
		notifier: notifier,
		logg:     logg,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) WithTx(tx *gorm.DB) Service {
	if tx == nil {
		return s
	}
	return &service{
		repo:     s.repo.WithTx(tx),
		notifier: s.notifier,
		logg:     s.logg,
		now:      s.now,
	}
}

// OpenForAppointment is idempotent: re-running settlement for the same
// appointment reuses the existing group and only backfills missing
// participants.
func (s *service) OpenForAppointment(ctx context.Context, input OpenForAppointmentInput) (*models.ChatGroup, error) {
	if input.AppointmentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id required")
	}
	if len(input.ParticipantIDs) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one participant required")
	}
	if input.Window <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "chat window must be positive")
	}

	group, err := s.repo.FindGroupByAppointment(ctx, input.AppointmentID)
	if err != nil && err != gorm.ErrRecordNotFound {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load chat group")
	}

	if group == nil {
		appointmentID := input.AppointmentID
		expiresAt := s.now().Add(input.Window)
		group = &models.ChatGroup{
			AppointmentID: &appointmentID,
			ChildID:       input.ChildID,
			Type:          enums.ChatTypePrivate,
			Status:        enums.ChatStatusActive,
			ExpiresAt:     &expiresAt,
		}
		if err := s.repo.CreateGroup(ctx, group); err != nil {
			// A concurrent settlement created it first; reuse that row.
			if db.IsUniqueViolation(err, "") {
				group, err = s.repo.FindGroupByAppointment(ctx, input.AppointmentID)
			}
			if err != nil {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create chat group")
			}
		}
	}

	for _, userID := range input.ParticipantIDs {
		if err := s.ensureParticipant(ctx, group.ID, userID); err != nil {
			return nil, err
		}
	}
	return group, nil
}

func (s *service) ensureParticipant(ctx context.Context, groupID, userID uuid.UUID) error {
	if userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "participant id required")
	}
	err := s.repo.AddParticipant(ctx, &models.ChatGroupParticipant{
		ChatGroupID: groupID,
		UserID:      userID,
	})
	if err != nil && !db.IsUniqueViolation(err, "idx_chat_participant") {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add participant")
	}
	return nil
}

func (s *service) CreateCommunityGroup(ctx context.Context, name string, memberIDs []uuid.UUID) (*models.ChatGroup, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "community name required")
	}

	group := &models.ChatGroup{
		Type:          enums.ChatTypeCommunity,
		Status:        enums.ChatStatusActive,
		CommunityName: &trimmed,
	}
	if err := s.repo.CreateGroup(ctx, group); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create community group")
	}
	for _, userID := range memberIDs {
		if err := s.ensureParticipant(ctx, group.ID, userID); err != nil {
			return nil, err
		}
	}
	return group, nil
}

// GroupForAppointment returns the private channel provisioned for an
// appointment, with lazy expiry applied. The channel is created by settlement
// at approval time; callers only ever look it up.
func (s *service) GroupForAppointment(ctx context.Context, appointmentID, userID uuid.UUID) (*models.ChatGroup, error) {
	if appointmentID == uuid.Nil || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "appointment id and user id required")
	}

	group, err := s.repo.FindGroupByAppointment(ctx, appointmentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no chat group for this appointment")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load chat group")
	}
	if err := s.expireIfDue(ctx, group); err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, group.ID, userID); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *service) GroupIDsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	ids, err := s.repo.GroupIDsByAppointments(ctx, appointmentIDs)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "resolve chat groups")
	}
	return ids, nil
}

// currentGroup loads the group and applies lazy expiry: a private group past
// its window is archived on first touch, before any status check runs.
func (s *service) currentGroup(ctx context.Context, groupID uuid.UUID) (*models.ChatGroup, error) {
	group, err := s.repo.FindGroupByID(ctx, groupID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "chat group not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load chat group")
	}
	if err := s.expireIfDue(ctx, group); err != nil {
		return nil, err
	}
	return group, nil
}

// expireIfDue archives an active group whose window has passed. Archival is
// one-way; an already archived group is left alone.
func (s *service) expireIfDue(ctx context.Context, group *models.ChatGroup) error {
	if group.Status != enums.ChatStatusActive || group.ExpiresAt == nil || !s.now().After(*group.ExpiresAt) {
		return nil
	}
	if _, err := s.repo.ArchiveGroup(ctx, group.ID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive expired group")
	}
	group.Status = enums.ChatStatusArchived
	return nil
}

func (s *service) SendMessage(ctx context.Context, input SendMessageInput) (*models.ChatMessage, error) {
	if input.GroupID == uuid.Nil || input.SenderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id and sender id required")
	}
	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message body required")
	}

	group, err := s.currentGroup(ctx, input.GroupID)
	if err != nil {
		return nil, err
	}
	if group.Status == enums.ChatStatusArchived {
		return nil, pkgerrors.New(pkgerrors.CodeChatArchived, "chat group is archived")
	}

	participant, err := s.repo.FindParticipant(ctx, group.ID, input.SenderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotAParticipant, "sender is not a participant")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participant")
	}

	// A mute only holds while its deadline is in the future. A mute flag
	// without a deadline, or with one already passed, is stale and clears
	// on the way through.
	if participant.IsMuted {
		if participant.MuteUntil != nil && s.now().Before(*participant.MuteUntil) {
			return nil, pkgerrors.New(pkgerrors.CodeMuted, "sender is muted").
				WithDetails(map[string]any{"mute_until": participant.MuteUntil})
		}
		if _, err := s.repo.SetMute(ctx, group.ID, input.SenderID, false, nil); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "clear expired mute")
		}
	}

	message := &models.ChatMessage{
		ChatGroupID: group.ID,
		SenderID:    input.SenderID,
		ReceiverID:  input.ReceiverID,
		Body:        body,
	}
	if err := s.repo.CreateMessage(ctx, message); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create message")
	}

	preview := body
	if len(preview) > lastMessagePreviewLen {
		preview = preview[:lastMessagePreviewLen]
	}
	if err := s.repo.UpdateLastMessage(ctx, group.ID, preview); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update last message")
	}

	s.notifyParticipants(ctx, group, input.SenderID, preview)
	return message, nil
}

func (s *service) notifyParticipants(ctx context.Context, group *models.ChatGroup, senderID uuid.UUID, preview string) {
	if s.notifier == nil {
		return
	}
	participants, err := s.repo.ListParticipants(ctx, group.ID)
	if err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "list participants for notification", err)
		}
		return
	}
	groupID := group.ID
	for _, participant := range participants {
		if participant.UserID == senderID {
			continue
		}
		_, err := s.notifier.Notify(ctx, notifications.NotifyInput{
			UserID:      participant.UserID,
			Type:        enums.NotificationTypeChatMessage,
			Title:       "New message",
			Body:        preview,
			ChatGroupID: &groupID,
		})
		if err != nil && s.logg != nil {
			s.logg.Error(ctx, "notify chat participant", err)
		}
	}
}

func (s *service) ListMessages(ctx context.Context, groupID, userID uuid.UUID, params pagination.Params) (*MessagePage, error) {
	if groupID == uuid.Nil || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id and user id required")
	}

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cursor").WithDetails(err.Error())
	}

	group, err := s.currentGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, group.ID, userID); err != nil {
		return nil, err
	}

	limit := pagination.NormalizeLimit(params.Limit)
	messages, err := s.repo.ListMessages(ctx, group.ID, limit+1, cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages")
	}

	page := &MessagePage{Messages: messages}
	if len(messages) > limit {
		page.Messages = messages[:limit]
		last := page.Messages[limit-1]
		next := pagination.EncodeCursor(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
		page.NextCursor = &next
	}
	return page, nil
}

func (s *service) requireParticipant(ctx context.Context, groupID, userID uuid.UUID) error {
	_, err := s.repo.FindParticipant(ctx, groupID, userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return pkgerrors.New(pkgerrors.CodeNotAParticipant, "not a participant of this chat group")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load participant")
	}
	return nil
}

func (s *service) ListMyGroups(ctx context.Context, userID uuid.UUID) ([]models.ChatGroup, error) {
	if userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id required")
	}
	groups, err := s.repo.ListGroupsForUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list groups")
	}

	// Lazy expiry on the list read so clients never see a stale active flag.
	for i := range groups {
		if err := s.expireIfDue(ctx, &groups[i]); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

func (s *service) GetGroup(ctx context.Context, groupID, userID uuid.UUID) (*models.ChatGroup, error) {
	if groupID == uuid.Nil || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id and user id required")
	}
	group, err := s.currentGroup(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if err := s.requireParticipant(ctx, group.ID, userID); err != nil {
		return nil, err
	}
	return group, nil
}

func (s *service) Participants(ctx context.Context, groupID, userID uuid.UUID) ([]models.ChatGroupParticipant, error) {
	if groupID == uuid.Nil || userID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group id and user id required")
	}
	if err := s.requireParticipant(ctx, groupID, userID); err != nil {
		return nil, err
	}
	participants, err := s.repo.ListParticipants(ctx, groupID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list participants")
	}
	return participants, nil
}

func (s *service) Archive(ctx context.Context, groupID uuid.UUID) error {
	if groupID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "group id required")
	}
	if _, err := s.repo.ArchiveGroup(ctx, groupID); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "archive group")
	}
	return nil
}

func (s *service) Mute(ctx context.Context, input MuteInput) error {
	if input.GroupID == uuid.Nil || input.UserID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "group id and user id required")
	}
	if input.Muted && input.MuteUntil != nil && input.MuteUntil.Before(s.now()) {
		return pkgerrors.New(pkgerrors.CodeValidation, "mute deadline already passed")
	}

	until := input.MuteUntil
	if !input.Muted {
		until = nil
	}
	found, err := s.repo.SetMute(ctx, input.GroupID, input.UserID, input.Muted, until)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set mute")
	}
	if !found {
		return pkgerrors.New(pkgerrors.CodeNotFound, "participant not found")
	}
	return nil
}
