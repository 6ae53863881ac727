// Package httpapi is the request/response transport over the messaging
// core. Handlers only decode, authorize against the current user, call a
// service, and encode.
package httpapi

import (
	"bandmate/auth"
	"bandmate/domain"
	"bandmate/errors"
	"bandmate/runtime/workers"
	"bandmate/services"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// StatsProvider serves the debug endpoint's process snapshot.
type StatsProvider interface {
	Latest() workers.ProcessStats
}

type Handler struct {
	log           *slog.Logger
	authSvc       services.IAuthService
	conversations services.IConversationService
	messaging     services.IMessagingService
	receipts      *services.ReceiptService
	stats         StatsProvider
}

func NewHandler(log *slog.Logger, authSvc services.IAuthService,
	conversations services.IConversationService, messaging services.IMessagingService,
	receipts *services.ReceiptService, stats StatsProvider) *Handler {
	return &Handler{
		log:           log,
		authSvc:       authSvc,
		conversations: conversations,
		messaging:     messaging,
		receipts:      receipts,
		stats:         stats,
	}
}

type registerRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	token, err := h.authSvc.Register(req.Email, req.Password, domain.ParseRole(req.Role))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tokenResponse{Token: string(token)})
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	token, err := h.authSvc.Login(req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: string(token)})
}

type createConversationRequest struct {
	ParticipantIDs []string `json:"participant_ids" validate:"required,min=1"`
}

func (h *Handler) CreateConversation(w http.ResponseWriter, r *http.Request) {
	var req createConversationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	conv, err := h.conversations.CreateOrReuse(domain.CreateConversationCommand{
		CreatorID:      auth.CurrentUserID(r.Context()),
		ParticipantIDs: req.ParticipantIDs,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, conv)
}

func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := h.conversations.ListForUser(auth.CurrentUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if convs == nil {
		convs = []domain.Conversation{}
	}
	writeJSON(w, http.StatusOK, convs)
}

func (h *Handler) DeleteConversation(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.conversations.Delete(chi.URLParam(r, "conversationID"), auth.CurrentUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if !deleted {
		writeError(w, fmt.Errorf("%w: conversation not found or requester not a participant", errors.ErrForbidden))
		return
	}
	writeJSON(w, http.StatusNoContent, nil)
}

type participantRequest struct {
	UserID string `json:"user_id" validate:"required"`
}

func (h *Handler) AddParticipant(w http.ResponseWriter, r *http.Request) {
	var req participantRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	added, err := h.conversations.AddParticipant(chi.URLParam(r, "conversationID"), req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"added": added})
}

func (h *Handler) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	removed, err := h.conversations.RemoveParticipant(
		chi.URLParam(r, "conversationID"), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

type sendMessageRequest struct {
	ConversationID string  `json:"conversation_id" validate:"required"`
	ReceiverID     string  `json:"receiver_id,omitempty"`
	Content        string  `json:"content" validate:"required"`
	ParentID       *uint64 `json:"parent_message_id,omitempty"`
}

func (h *Handler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.messaging.Send(r.Context(), domain.SendMessageCommand{
		ConversationID: req.ConversationID,
		SenderID:       auth.CurrentUserID(r.Context()),
		ReceiverID:     req.ReceiverID,
		Content:        req.Content,
		ParentID:       req.ParentID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if err := h.requireParticipant(r, conversationID); err != nil {
		writeError(w, err)
		return
	}
	messages, err := h.messaging.History(conversationID)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) SearchMessages(w http.ResponseWriter, r *http.Request) {
	conversationID := chi.URLParam(r, "conversationID")
	if err := h.requireParticipant(r, conversationID); err != nil {
		writeError(w, err)
		return
	}
	terms := r.URL.Query().Get("q")
	if terms == "" {
		writeError(w, fmt.Errorf("%w: missing query parameter q", errors.ErrInvalidArgument))
		return
	}
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	messages, err := h.messaging.Search(r.Context(), conversationID, terms, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if messages == nil {
		messages = []domain.Message{}
	}
	writeJSON(w, http.StatusOK, messages)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	read, err := h.receipts.MarkRead(messageID, auth.CurrentUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"read": read})
}

type editMessageRequest struct {
	Content string `json:"content" validate:"required"`
}

func (h *Handler) EditMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req editMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, err)
		return
	}
	msg, err := h.messaging.Edit(messageID, auth.CurrentUserID(r.Context()), req.Content)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msg)
}

func (h *Handler) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	messageID, err := messageIDParam(r)
	if err != nil {
		writeError(w, err)
		return
	}
	deleted, err := h.messaging.Delete(messageID, auth.CurrentUserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deleted": deleted})
}

// Stats exposes the process snapshot to operators. Admin accounts only.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	if auth.CurrentRole(r.Context()) != string(domain.RoleAdmin) {
		writeError(w, fmt.Errorf("%w: admin access required", errors.ErrForbidden))
		return
	}
	writeJSON(w, http.StatusOK, h.stats.Latest())
}

func (h *Handler) requireParticipant(r *http.Request, conversationID string) error {
	conv, err := h.conversations.Get(conversationID)
	if err != nil {
		return err
	}
	if !conv.HasParticipant(auth.CurrentUserID(r.Context())) {
		return fmt.Errorf("%w: not a participant of conversation %s", errors.ErrForbidden, conversationID)
	}
	return nil
}

func messageIDParam(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "messageID"), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: malformed message id", errors.ErrInvalidArgument)
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body", errors.ErrInvalidArgument)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrInvalidArgument, err)
	}
	return nil
}
