package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nafsiapp/nafsi-backend/pkg/db/models"
	"github.com/nafsiapp/nafsi-backend/pkg/enums"
	"github.com/nafsiapp/nafsi-backend/pkg/pagination"
)

// Repository manages persistence for chat groups, participants, and messages.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateGroup(ctx context.Context, group *models.ChatGroup) error
	FindGroupByID(ctx context.Context, id uuid.UUID) (*models.ChatGroup, error)
	FindGroupByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.ChatGroup, error)
	GroupIDsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error)
	ArchiveGroup(ctx context.Context, id uuid.UUID) (bool, error)
	ListGroupsForUser(ctx context.Context, userID uuid.UUID) ([]models.ChatGroup, error)
	AddParticipant(ctx context.Context, participant *models.ChatGroupParticipant) error
	FindParticipant(ctx context.Context, groupID, userID uuid.UUID) (*models.ChatGroupParticipant, error)
	ListParticipants(ctx context.Context, groupID uuid.UUID) ([]models.ChatGroupParticipant, error)
	SetMute(ctx context.Context, groupID, userID uuid.UUID, muted bool, until *time.Time) (bool, error)
	CreateMessage(ctx context.Context, message *models.ChatMessage) error
	ListMessages(ctx context.Context, groupID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ChatMessage, error)
	UpdateLastMessage(ctx context.Context, groupID uuid.UUID, preview string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a chat repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateGroup(ctx context.Context, group *models.ChatGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repository) FindGroupByID(ctx context.Context, id uuid.UUID) (*models.ChatGroup, error) {
	var group models.ChatGroup
	if err := r.db.WithContext(ctx).First(&group, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) FindGroupByAppointment(ctx context.Context, appointmentID uuid.UUID) (*models.ChatGroup, error) {
	var group models.ChatGroup
	if err := r.db.WithContext(ctx).First(&group, "appointment_id = ?", appointmentID).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func (r *repository) GroupIDsByAppointments(ctx context.Context, appointmentIDs []uuid.UUID) (map[uuid.UUID]uuid.UUID, error) {
	if len(appointmentIDs) == 0 {
		return map[uuid.UUID]uuid.UUID{}, nil
	}

	var rows []struct {
		ID            uuid.UUID
		AppointmentID uuid.UUID
	}
	err := r.db.WithContext(ctx).
		Model(&models.ChatGroup{}).
		Select("id", "appointment_id").
		Where("appointment_id IN ?", appointmentIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	ids := make(map[uuid.UUID]uuid.UUID, len(rows))
	for _, row := range rows {
		ids[row.AppointmentID] = row.ID
	}
	return ids, nil
}

// ArchiveGroup flips an active group to archived. The status guard keeps the
// transition monotonic: archiving an archived group is a no-op.
func (r *repository) ArchiveGroup(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ChatGroup{}).
		Where("id = ? AND status = ?", id, enums.ChatStatusActive).
		Updates(map[string]any{
			"status":     enums.ChatStatusArchived,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) ListGroupsForUser(ctx context.Context, userID uuid.UUID) ([]models.ChatGroup, error) {
	var groups []models.ChatGroup
	err := r.db.WithContext(ctx).
		Joins("JOIN chat_group_participants p ON p.chat_group_id = chat_groups.id").
		Where("p.user_id = ?", userID).
		Order("chat_groups.updated_at DESC").
		Find(&groups).Error
	if err != nil {
		return nil, err
	}
	return groups, nil
}

func (r *repository) AddParticipant(ctx context.Context, participant *models.ChatGroupParticipant) error {
	return r.db.WithContext(ctx).Create(participant).Error
}

func (r *repository) FindParticipant(ctx context.Context, groupID, userID uuid.UUID) (*models.ChatGroupParticipant, error) {
	var participant models.ChatGroupParticipant
	err := r.db.WithContext(ctx).
		First(&participant, "chat_group_id = ? AND user_id = ?", groupID, userID).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

func (r *repository) ListParticipants(ctx context.Context, groupID uuid.UUID) ([]models.ChatGroupParticipant, error) {
	var participants []models.ChatGroupParticipant
	err := r.db.WithContext(ctx).
		Where("chat_group_id = ?", groupID).
		Order("created_at ASC").
		Find(&participants).Error
	if err != nil {
		return nil, err
	}
	return participants, nil
}

func (r *repository) SetMute(ctx context.Context, groupID, userID uuid.UUID, muted bool, until *time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.ChatGroupParticipant{}).
		Where("chat_group_id = ? AND user_id = ?", groupID, userID).
		Updates(map[string]any{
			"is_muted":   muted,
			"mute_until": until,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) CreateMessage(ctx context.Context, message *models.ChatMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

func (r *repository) ListMessages(ctx context.Context, groupID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ChatMessage, error) {
	query := r.db.WithContext(ctx).
		Where("chat_group_id = ?", groupID).
		Order("created_at DESC, id DESC").
		Limit(limit)
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var messages []models.ChatMessage
	if err := query.Find(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *repository) UpdateLastMessage(ctx context.Context, groupID uuid.UUID, preview string) error {
	return r.db.WithContext(ctx).
		Model(&models.ChatGroup{}).
		Where("id = ?", groupID).
		Updates(map[string]any{
			"last_message": preview,
			"updated_at":   time.Now().UTC(),
		}).Error
}
