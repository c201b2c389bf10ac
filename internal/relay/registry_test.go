package relay

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testSession(role Role, identity, conversationID int64) *Session {
	return newSession(Key{Role: role, Identity: identity, ConversationID: conversationID}, newRecordingChannel(), time.Now())
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	registry := NewRegistry()
	agent := testSession(RoleAgent, 7, 42)

	displaced, err := registry.Register(agent)
	require.NoError(t, err)
	require.Empty(t, displaced)

	found, ok := registry.Lookup(agent.Key())
	require.True(t, ok)
	require.Same(t, agent, found)

	_, ok = registry.Lookup(Key{Role: RoleUser, Identity: 7, ConversationID: 42})
	require.False(t, ok)
}

func TestRegistry_UserRegistrationDisplacesExisting(t *testing.T) {
	registry := NewRegistry()
	first := testSession(RoleUser, 3, 42)
	second := testSession(RoleUser, 3, 42)

	_, err := registry.Register(first)
	require.NoError(t, err)
	displaced, err := registry.Register(second)
	require.NoError(t, err)

	require.Equal(t, []*Session{first}, displaced)
	require.False(t, first.Live())
	require.True(t, second.Live())

	members := registry.MembersOf(42)
	require.Same(t, second, members.User)
	require.Equal(t, 1, registry.Stats().Users)
}

func TestRegistry_AgentRegistrationIsAdditive(t *testing.T) {
	registry := NewRegistry()
	assigned := testSession(RoleAgent, 7, 42)
	supervisor := testSession(RoleAgent, 8, 42)

	_, err := registry.Register(assigned)
	require.NoError(t, err)
	displaced, err := registry.Register(supervisor)
	require.NoError(t, err)
	require.Empty(t, displaced)

	members := registry.MembersOf(42)
	require.Len(t, members.Agents, 2)
	require.True(t, assigned.Live())
}

func TestRegistry_DeregisterIgnoresSupersededInstance(t *testing.T) {
	registry := NewRegistry()
	first := testSession(RoleUser, 3, 42)
	second := testSession(RoleUser, 3, 42)

	_, _ = registry.Register(first)
	_, _ = registry.Register(second)

	require.False(t, registry.Deregister(first))
	found, ok := registry.Lookup(second.Key())
	require.True(t, ok)
	require.Same(t, second, found)
}

func TestRegistry_DeregisterIsIdempotent(t *testing.T) {
	registry := NewRegistry()
	agent := testSession(RoleAgent, 7, 42)
	_, _ = registry.Register(agent)

	require.True(t, registry.Deregister(agent))
	require.False(t, registry.Deregister(agent))
	require.Equal(t, Stats{}, registry.Stats())
	require.Empty(t, registry.SessionsFor(42))
}

func TestRegistry_MembersScopedToConversation(t *testing.T) {
	registry := NewRegistry()
	_, _ = registry.Register(testSession(RoleAgent, 7, 42))
	_, _ = registry.Register(testSession(RoleUser, 3, 42))
	_, _ = registry.Register(testSession(RoleUser, 4, 43))

	require.Len(t, registry.SessionsFor(42), 2)
	require.Len(t, registry.SessionsFor(43), 1)
	require.Empty(t, registry.SessionsFor(44))
	require.Equal(t, 2, registry.Stats().Conversations)
}

func TestRegistry_SnapshotIsolatedFromMutation(t *testing.T) {
	registry := NewRegistry()
	agent := testSession(RoleAgent, 7, 42)
	_, _ = registry.Register(agent)

	snapshot := registry.SessionsFor(42)
	registry.Deregister(agent)
	_, _ = registry.Register(testSession(RoleAgent, 9, 42))

	require.Len(t, snapshot, 1)
	require.Same(t, agent, snapshot[0])
}

func TestRegistry_NoGhostEntriesUnderConcurrentChurn(t *testing.T) {
	registry := NewRegistry()

	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				role := RoleAgent
				if i%2 == 0 {
					role = RoleUser
				}
				s := testSession(role, int64(worker+1), int64(i%5+1))
				_, _ = registry.Register(s)
				if i%3 != 0 {
					registry.Deregister(s)
				}
				_ = registry.MembersOf(int64(i%5 + 1))
			}
		}(worker)
	}
	wg.Wait()

	for conversationID := int64(1); conversationID <= 5; conversationID++ {
		members := registry.MembersOf(conversationID)
		if members.User != nil {
			require.True(t, members.User.Live(), "conversation %d", conversationID)
		}
		for _, s := range members.All() {
			found := false
			for _, candidate := range registry.Sessions() {
				if candidate == s {
					found = true
				}
			}
			require.True(t, found)
		}
	}
}
