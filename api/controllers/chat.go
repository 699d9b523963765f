package controllers

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/nafsiapp/nafsi-backend/api/middleware"
	"github.com/nafsiapp/nafsi-backend/api/responses"
	"github.com/nafsiapp/nafsi-backend/api/validators"
	"github.com/nafsiapp/nafsi-backend/internal/chat"
	pkgerrors "github.com/nafsiapp/nafsi-backend/pkg/errors"
	"github.com/nafsiapp/nafsi-backend/pkg/logger"
)

type sendMessageBody struct {
	Body       string  `json:"body" validate:"required,max=4000"`
	ReceiverID *string `json:"receiver_id" validate:"omitempty,uuid"`
}

type communityGroupBody struct {
	Name      string   `json:"name" validate:"required,max=200"`
	MemberIDs []string `json:"member_ids" validate:"required,min=1,dive,uuid"`
}

type muteBody struct {
	UserID    string     `json:"user_id" validate:"required,uuid"`
	Muted     bool       `json:"muted"`
	MuteUntil *time.Time `json:"mute_until"`
}

func ChatGroups(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := svc.ListMyGroups(r.Context(), middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"groups": groups})
	}
}

func AppointmentChat(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		appointmentID, err := pathUUID(r, "appointmentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.GroupForAppointment(r.Context(), appointmentID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, group)
	}
}

func ChatGroupDetail(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := pathUUID(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		group, err := svc.GetGroup(r.Context(), groupID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, group)
	}
}

func ChatParticipants(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := pathUUID(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		participants, err := svc.Participants(r.Context(), groupID, middleware.UserIDFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"participants": participants})
	}
}

func ChatMessages(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := pathUUID(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		params, err := pageParams(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		page, err := svc.ListMessages(r.Context(), groupID, middleware.UserIDFromContext(r.Context()), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{
			"messages":    page.Messages,
			"next_cursor": page.NextCursor,
		})
	}
}

func ChatSendMessage(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := pathUUID(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req sendMessageBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := chat.SendMessageInput{
			GroupID:  groupID,
			SenderID: middleware.UserIDFromContext(r.Context()),
			Body:     req.Body,
		}
		if req.ReceiverID != nil {
			receiverID, err := uuid.Parse(*req.ReceiverID)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid receiver_id"))
				return
			}
			input.ReceiverID = &receiverID
		}

		message, err := svc.SendMessage(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, message)
	}
}

func ChatCreateCommunityGroup(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req communityGroupBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		memberIDs := make([]uuid.UUID, 0, len(req.MemberIDs))
		for _, raw := range req.MemberIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid member id"))
				return
			}
			memberIDs = append(memberIDs, id)
		}

		group, err := svc.CreateCommunityGroup(r.Context(), req.Name, memberIDs)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, group)
	}
}

func ChatArchiveGroup(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := pathUUID(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Archive(r.Context(), groupID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "archived"})
	}
}

func ChatMuteParticipant(svc chat.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID, err := pathUUID(r, "groupId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req muteBody
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		userID, err := uuid.Parse(req.UserID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid user_id"))
			return
		}

		if err := svc.Mute(r.Context(), chat.MuteInput{
			GroupID:   groupID,
			UserID:    userID,
			Muted:     req.Muted,
			MuteUntil: req.MuteUntil,
		}); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]string{"status": "updated"})
	}
}
