package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/handoff/internal/models"
	"github.com/charlesng35/handoff/internal/relay"
)

func TestAccessService_IsAuthorized(t *testing.T) {
	db := openStoreDB(t)
	svc, err := NewAccessService(db)
	require.NoError(t, err)

	escalated := createConversation(t, db, 3, true)
	botOnly := createConversation(t, db, 4, false)
	closed := createConversation(t, db, 5, true)
	require.NoError(t, db.Model(&closed).Update("status", models.ConversationStatusClosed).Error)

	cases := map[string]struct {
		identity       int64
		role           relay.Role
		conversationID int64
		want           bool
	}{
		"owner":                 {identity: 3, role: relay.RoleUser, conversationID: escalated.ID, want: true},
		"other user":            {identity: 4, role: relay.RoleUser, conversationID: escalated.ID, want: false},
		"agent on ticket":       {identity: 7, role: relay.RoleAgent, conversationID: escalated.ID, want: true},
		"agent without ticket":  {identity: 7, role: relay.RoleAgent, conversationID: botOnly.ID, want: false},
		"owner before escalate": {identity: 4, role: relay.RoleUser, conversationID: botOnly.ID, want: true},
		"closed for owner":      {identity: 5, role: relay.RoleUser, conversationID: closed.ID, want: false},
		"closed for agent":      {identity: 7, role: relay.RoleAgent, conversationID: closed.ID, want: false},
		"unknown conversation":  {identity: 3, role: relay.RoleUser, conversationID: 9999, want: false},
		"unknown role":          {identity: 3, role: relay.Role("bot"), conversationID: escalated.ID, want: false},
		"non positive identity": {identity: 0, role: relay.RoleUser, conversationID: escalated.ID, want: false},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got, err := svc.IsAuthorized(context.Background(), tc.identity, tc.role, tc.conversationID)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestAccessService_CanReadClosedHistory(t *testing.T) {
	db := openStoreDB(t)
	svc, err := NewAccessService(db)
	require.NoError(t, err)

	closed := createConversation(t, db, 5, true)
	require.NoError(t, db.Model(&closed).Update("status", models.ConversationStatusClosed).Error)
	botOnly := createConversation(t, db, 6, false)

	ok, err := svc.CanRead(context.Background(), 5, relay.RoleUser, closed.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanRead(context.Background(), 7, relay.RoleAgent, closed.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = svc.CanRead(context.Background(), 6, relay.RoleUser, closed.ID)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = svc.CanRead(context.Background(), 7, relay.RoleAgent, botOnly.ID)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewAccessServiceRequiresDB(t *testing.T) {
	_, err := NewAccessService(nil)
	require.Error(t, err)
}
