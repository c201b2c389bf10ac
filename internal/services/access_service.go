package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/models"
	"github.com/charlesng35/handoff/internal/relay"
)

var _ relay.Authorizer = (*AccessService)(nil)

// AccessService answers whether a participant may join a conversation.
//
// Users may join only conversations they own. Agents may join any conversation that has been
// escalated to a ticket. Closed conversations admit nobody.
type AccessService struct {
	db *gorm.DB
}

// NewAccessService constructs the service once the database handle is supplied.
func NewAccessService(db *gorm.DB) (*AccessService, error) {
	if db == nil {
		return nil, errors.New("access service: db is required")
	}
	return &AccessService{db: db}, nil
}

// IsAuthorized implements relay.Authorizer. Unknown conversations are denied without error.
func (s *AccessService) IsAuthorized(ctx context.Context, identity int64, role relay.Role, conversationID int64) (bool, error) {
	return s.check(ctx, identity, role, conversationID, false)
}

// CanRead reports whether the participant may read the conversation history. Unlike
// IsAuthorized it also admits closed conversations.
func (s *AccessService) CanRead(ctx context.Context, identity int64, role relay.Role, conversationID int64) (bool, error) {
	return s.check(ctx, identity, role, conversationID, true)
}

func (s *AccessService) check(ctx context.Context, identity int64, role relay.Role, conversationID int64, allowClosed bool) (bool, error) {
	ctx = ensureContext(ctx)
	if identity <= 0 || conversationID <= 0 {
		return false, nil
	}

	var conversation models.Conversation
	err := s.db.WithContext(ctx).Take(&conversation, "id = ?", conversationID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("access service: load conversation: %w", err)
	}
	if conversation.IsClosed() && !allowClosed {
		return false, nil
	}

	switch role {
	case relay.RoleUser:
		return conversation.UserID == identity, nil
	case relay.RoleAgent:
		query := s.db.WithContext(ctx).
			Model(&models.Ticket{}).
			Where("conversation_id = ?", conversationID)
		if !allowClosed {
			query = query.Where("status = ?", models.TicketStatusOpen)
		}
		var count int64
		if err := query.Count(&count).Error; err != nil {
			return false, fmt.Errorf("access service: load ticket: %w", err)
		}
		return count > 0, nil
	default:
		return false, nil
	}
}
