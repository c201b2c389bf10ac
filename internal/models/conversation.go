package models

import "time"

// Conversation statuses.
const (
	ConversationStatusOpen   = "open"
	ConversationStatusClosed = "closed"
)

// Conversation is a support thread between one end user and any number of agents.
type Conversation struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        int64      `gorm:"not null;index" json:"user_id"`
	Status        string     `gorm:"type:varchar(16);not null;default:'open';index" json:"status"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	ClosedAt      *time.Time `json:"closed_at,omitempty"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`

	Ticket   *Ticket   `gorm:"foreignKey:ConversationID" json:"ticket,omitempty"`
	Messages []Message `gorm:"foreignKey:ConversationID" json:"messages,omitempty"`
}

// IsClosed reports whether the conversation no longer accepts participants.
func (c Conversation) IsClosed() bool {
	return c.Status == ConversationStatusClosed
}
