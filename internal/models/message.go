package models

import "time"

// Message is a persisted content event. Its ID orders the conversation history.
type Message struct {
	ID             int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ConversationID int64     `gorm:"not null;index" json:"conversation_id"`
	SenderID       int64     `gorm:"not null;index" json:"sender_id"`
	SenderRole     string    `gorm:"type:varchar(16);not null" json:"sender_role"`
	Content        string    `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time `gorm:"index" json:"created_at"`
}
