package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/handoff/internal/models"
	"github.com/charlesng35/handoff/internal/relay"
	"github.com/charlesng35/handoff/internal/services"
	apperrors "github.com/charlesng35/handoff/pkg/errors"
	"github.com/charlesng35/handoff/pkg/response"
)

const defaultHistoryLimit = 50

// ConversationHandler serves conversation history and escalation.
type ConversationHandler struct {
	store  *services.ConversationStore
	access *services.AccessService
}

// NewConversationHandler constructs a conversation handler.
func NewConversationHandler(store *services.ConversationStore, access *services.AccessService) (*ConversationHandler, error) {
	if store == nil || access == nil {
		return nil, errors.New("conversation handler: store and access service are required")
	}
	return &ConversationHandler{store: store, access: access}, nil
}

type messageDTO struct {
	ID             int64  `json:"id"`
	ConversationID int64  `json:"conversation_id"`
	SenderID       int64  `json:"sender_id"`
	SenderRole     string `json:"sender_role"`
	Content        string `json:"content"`
	CreatedAt      string `json:"created_at"`
}

type ticketDTO struct {
	ID              int64  `json:"id"`
	ConversationID  int64  `json:"conversation_id"`
	Status          string `json:"status"`
	AssignedAgentID *int64 `json:"assigned_agent_id,omitempty"`
	CreatedAt       string `json:"created_at"`
}

func mapMessage(msg models.Message) messageDTO {
	return messageDTO{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		SenderRole:     msg.SenderRole,
		Content:        msg.Content,
		CreatedAt:      msg.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func mapTicket(ticket *models.Ticket) ticketDTO {
	return ticketDTO{
		ID:              ticket.ID,
		ConversationID:  ticket.ConversationID,
		Status:          ticket.Status,
		AssignedAgentID: ticket.AssignedAgentID,
		CreatedAt:       ticket.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ListMessages handles GET /api/conversations/:conversationID/messages?limit=&before_id=.
// Results are chronological; meta.next_before_id pages further back.
func (h *ConversationHandler) ListMessages(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	limit, ok := queryInt(c, "limit", defaultHistoryLimit, "min=1,max=200")
	if !ok {
		return
	}
	beforeID, ok := queryInt(c, "before_id", 0, "min=0")
	if !ok {
		return
	}

	identity, role, ok := participantFrom(c)
	if !ok {
		return
	}
	if !h.authorize(c, identity, role, conversationID, h.access.CanRead) {
		return
	}

	messages, err := h.store.ListMessages(requestContext(c), conversationID, limit, int64(beforeID))
	if err != nil {
		response.Error(c, err)
		return
	}

	items := make([]messageDTO, 0, len(messages))
	for _, msg := range messages {
		items = append(items, mapMessage(msg))
	}

	meta := &response.Meta{Limit: limit, Count: len(items)}
	if len(messages) == limit {
		oldest := messages[0].ID
		meta.NextBeforeID = &oldest
	}
	response.SuccessWithMeta(c, http.StatusOK, items, meta)
}

// Escalate handles POST /api/conversations/:conversationID/escalation. The first call opens
// the ticket (201); later calls return it unchanged (200).
func (h *ConversationHandler) Escalate(c *gin.Context) {
	conversationID, ok := conversationIDParam(c)
	if !ok {
		return
	}

	identity, role, ok := participantFrom(c)
	if !ok {
		return
	}
	if role == relay.RoleUser && !h.authorize(c, identity, role, conversationID, h.access.IsAuthorized) {
		return
	}

	ticket, created, err := h.store.Escalate(requestContext(c), conversationID)
	if err != nil {
		response.Error(c, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	response.Success(c, status, mapTicket(ticket))
}

type accessCheck func(ctx context.Context, identity int64, role relay.Role, conversationID int64) (bool, error)

// authorize reports a denied conversation as not found.
func (h *ConversationHandler) authorize(c *gin.Context, identity int64, role relay.Role, conversationID int64, check accessCheck) bool {
	allowed, err := check(requestContext(c), identity, role, conversationID)
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !allowed {
		response.Error(c, apperrors.ErrConversationNotFound)
		return false
	}
	return true
}
