package services

import (
	"testing"

	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/database/testutil"
	"github.com/charlesng35/handoff/internal/models"
)

func openStoreDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

func createConversation(t *testing.T, db *gorm.DB, userID int64, escalated bool) models.Conversation {
	t.Helper()
	return testutil.SeedConversation(t, db, userID, escalated)
}
