package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/models"
	"github.com/charlesng35/handoff/internal/relay"
	appErrors "github.com/charlesng35/handoff/pkg/errors"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

var _ relay.Store = (*ConversationStore)(nil)

// ConversationStore persists relay traffic: content messages, ticket transfers and resolutions.
type ConversationStore struct {
	db      *gorm.DB
	timeNow func() time.Time
}

// NewConversationStore constructs a store once the database handle is supplied.
func NewConversationStore(db *gorm.DB) (*ConversationStore, error) {
	if db == nil {
		return nil, errors.New("conversation store: db is required")
	}
	return &ConversationStore{
		db:      db,
		timeNow: time.Now,
	}, nil
}

// PersistMessage stores a content event and returns its message ID. Messages for missing or
// closed conversations are refused.
func (s *ConversationStore) PersistMessage(ctx context.Context, conversationID, senderID int64, role relay.Role, content string) (int64, error) {
	ctx = ensureContext(ctx)
	if conversationID <= 0 || senderID <= 0 {
		return 0, errors.New("conversation store: conversation and sender ids are required")
	}
	if !validRole(role) {
		return 0, fmt.Errorf("conversation store: unknown role %q", role)
	}
	if strings.TrimSpace(content) == "" {
		return 0, errors.New("conversation store: message content is required")
	}

	now := s.timeNow()
	message := models.Message{
		ConversationID: conversationID,
		SenderID:       senderID,
		SenderRole:     string(role),
		Content:        content,
		CreatedAt:      now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOpenConversation(tx, conversationID); err != nil {
			return err
		}
		if err := tx.Create(&message).Error; err != nil {
			return fmt.Errorf("conversation store: insert message: %w", err)
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", conversationID).
			Update("last_message_at", now).Error
	})
	if err != nil {
		return 0, err
	}
	return message.ID, nil
}

// UpdateTicketStatus applies a transfer or resolution to the conversation's ticket and records
// a ticket event carrying the triggering envelope, in one transaction. Resolving the ticket
// also closes the conversation.
func (s *ConversationStore) UpdateTicketStatus(ctx context.Context, update relay.TicketUpdate) error {
	ctx = ensureContext(ctx)
	if update.ConversationID <= 0 {
		return errors.New("conversation store: conversation id is required")
	}
	if update.Status == "" && update.AssignedAgentID == nil {
		return errors.New("conversation store: ticket update is empty")
	}
	if update.Status != "" && update.Status != relay.TicketStatusResolved {
		return fmt.Errorf("conversation store: unsupported ticket status %q", update.Status)
	}

	now := s.timeNow()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := loadOpenConversation(tx, update.ConversationID); err != nil {
			return err
		}

		var ticket models.Ticket
		err := tx.Where("conversation_id = ?", update.ConversationID).Take(&ticket).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErrors.ErrTicketNotFound
		}
		if err != nil {
			return fmt.Errorf("conversation store: load ticket: %w", err)
		}
		if ticket.Status == models.TicketStatusResolved {
			return appErrors.ErrConversationClosed
		}

		changes := map[string]any{"updated_at": now}
		kind := models.TicketEventTransfer
		if update.AssignedAgentID != nil {
			changes["assigned_agent_id"] = *update.AssignedAgentID
		}
		if update.Status == relay.TicketStatusResolved {
			kind = models.TicketEventResolved
			changes["status"] = models.TicketStatusResolved
			changes["resolved_at"] = now
		}
		if err := tx.Model(&ticket).Updates(changes).Error; err != nil {
			return fmt.Errorf("conversation store: update ticket: %w", err)
		}

		event := models.TicketEvent{
			TicketID: ticket.ID,
			Kind:     kind,
			ActorID:  update.ActorID,
		}
		if len(update.Envelope) > 0 {
			event.Payload = datatypes.JSON(update.Envelope)
		}
		if err := tx.Create(&event).Error; err != nil {
			return fmt.Errorf("conversation store: record ticket event: %w", err)
		}

		if kind != models.TicketEventResolved {
			return nil
		}
		return tx.Model(&models.Conversation{}).
			Where("id = ?", update.ConversationID).
			Updates(map[string]any{
				"status":     models.ConversationStatusClosed,
				"closed_at":  now,
				"updated_at": now,
			}).Error
	})
}

// ListMessages returns up to limit persisted messages older than beforeID (when positive),
// in chronological order.
func (s *ConversationStore) ListMessages(ctx context.Context, conversationID int64, limit int, beforeID int64) ([]models.Message, error) {
	ctx = ensureContext(ctx)
	if conversationID <= 0 {
		return nil, errors.New("conversation store: conversation id is required")
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = defaultHistoryLimit
	}

	query := s.db.WithContext(ctx).
		Model(&models.Message{}).
		Where("conversation_id = ?", conversationID).
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}

	var rows []models.Message
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("conversation store: list messages: %w", err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Escalate opens the ticket for a conversation. It is idempotent: a second call returns the
// existing ticket and created=false.
func (s *ConversationStore) Escalate(ctx context.Context, conversationID int64) (ticket *models.Ticket, created bool, err error) {
	ctx = ensureContext(ctx)
	if _, err := loadOpenConversation(s.db.WithContext(ctx), conversationID); err != nil {
		return nil, false, err
	}

	ticket = &models.Ticket{
		ConversationID: conversationID,
		Status:         models.TicketStatusOpen,
	}
	err = s.db.WithContext(ctx).Create(ticket).Error
	if err == nil {
		return ticket, true, nil
	}
	if !isUniqueConstraintError(err) {
		return nil, false, fmt.Errorf("conversation store: create ticket: %w", err)
	}

	existing := &models.Ticket{}
	if err := s.db.WithContext(ctx).Where("conversation_id = ?", conversationID).Take(existing).Error; err != nil {
		return nil, false, fmt.Errorf("conversation store: load ticket: %w", err)
	}
	return existing, false, nil
}

func loadOpenConversation(tx *gorm.DB, conversationID int64) (*models.Conversation, error) {
	var conversation models.Conversation
	err := tx.Take(&conversation, "id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrConversationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("conversation store: load conversation: %w", err)
	}
	if conversation.IsClosed() {
		return nil, appErrors.ErrConversationClosed
	}
	return &conversation, nil
}
