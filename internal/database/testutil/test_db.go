package testutil

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/database"
	"github.com/charlesng35/handoff/internal/models"
)

// TestDBOption customises MustOpenTestDB.
type TestDBOption func(*testDBConfig)

type testDBConfig struct {
	autoMigrate bool
}

// WithAutoMigrate applies the relay schema after opening.
func WithAutoMigrate() TestDBOption {
	return func(cfg *testDBConfig) {
		cfg.autoMigrate = true
	}
}

// MustOpenTestDB opens a private in-memory SQLite database that is closed on cleanup. Each call
// gets a uniquely named database, so tests never share rows.
func MustOpenTestDB(t *testing.T, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	cfg := testDBConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := database.Open(database.Config{
		Driver: database.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=1",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })

	if cfg.autoMigrate {
		require.NoError(t, database.AutoMigrate(db))
	}
	return db
}

// SeedConversation inserts an open conversation owned by userID. When escalated is set an
// open ticket is created for it as well.
func SeedConversation(t *testing.T, db *gorm.DB, userID int64, escalated bool) models.Conversation {
	t.Helper()

	conversation := models.Conversation{UserID: userID, Status: models.ConversationStatusOpen}
	require.NoError(t, db.Create(&conversation).Error)
	if escalated {
		require.NoError(t, db.Create(&models.Ticket{
			ConversationID: conversation.ID,
			Status:         models.TicketStatusOpen,
		}).Error)
	}
	return conversation
}
