package database

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/models"
)

// AutoMigrate creates or updates the relay schema.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	if err := db.AutoMigrate(
		&models.Conversation{},
		&models.Ticket{},
		&models.Message{},
		&models.TicketEvent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
