package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Ticket statuses.
const (
	TicketStatusOpen     = "open"
	TicketStatusResolved = "resolved"
)

// Ticket event kinds.
const (
	TicketEventTransfer = "transfer"
	TicketEventResolved = "resolved"
)

// Ticket tracks the escalation of a conversation to human agents.
type Ticket struct {
	ID              int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID  int64      `gorm:"not null;uniqueIndex" json:"conversation_id"`
	Status          string     `gorm:"type:varchar(16);not null;default:'open';index" json:"status"`
	AssignedAgentID *int64     `gorm:"index" json:"assigned_agent_id,omitempty"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`

	Events []TicketEvent `gorm:"foreignKey:TicketID" json:"events,omitempty"`
}

// TicketEvent is an append-only audit record of a ticket mutation. Payload holds the envelope
// that triggered it.
type TicketEvent struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`

	TicketID int64          `gorm:"not null;index" json:"ticket_id"`
	Kind     string         `gorm:"type:varchar(32);not null;index" json:"kind"`
	ActorID  int64          `gorm:"not null" json:"actor_id"`
	Payload  datatypes.JSON `gorm:"type:json" json:"payload,omitempty"`
}

// BeforeCreate assigns a random identifier so events can be written from several nodes.
func (e *TicketEvent) BeforeCreate(*gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	return nil
}
