package relay

import (
	"errors"
	"sort"
	"sync"
)

// Registry is the process-wide table of live sessions. All structural mutation happens under
// a single lock; readers receive snapshot copies.
type Registry struct {
	mu             sync.RWMutex
	entries        map[Key][]*Session
	byConversation map[int64]map[Key]struct{}
}

// Stats summarises the registry contents.
type Stats struct {
	Sessions      int `json:"sessions"`
	Agents        int `json:"agents"`
	Users         int `json:"users"`
	Conversations int `json:"conversations"`
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries:        make(map[Key][]*Session),
		byConversation: make(map[int64]map[Key]struct{}),
	}
}

// Register inserts the session. A user session displaces any user session already attached to
// the same conversation; displaced sessions are removed and marked not live before the lock is
// released, and returned so the caller can close their channels. Agent sessions are additive.
func (r *Registry) Register(s *Session) ([]*Session, error) {
	displaced, _, err := r.register(s)
	return displaced, err
}

// register is Register that also reports how many sessions already held the key after any
// displacement, so the caller knows whether the participant was already present.
func (r *Registry) register(s *Session) ([]*Session, int, error) {
	if s == nil {
		return nil, 0, errors.New("relay: session is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var displaced []*Session
	if s.key.Role == RoleUser {
		for key := range r.byConversation[s.key.ConversationID] {
			if key.Role != RoleUser {
				continue
			}
			for _, existing := range r.entries[key] {
				existing.live.Store(false)
				existing.displaced.Store(true)
				displaced = append(displaced, existing)
			}
			r.removeKeyLocked(key)
		}
	}

	siblings := len(r.entries[s.key])
	r.entries[s.key] = append(r.entries[s.key], s)
	members := r.byConversation[s.key.ConversationID]
	if members == nil {
		members = make(map[Key]struct{})
		r.byConversation[s.key.ConversationID] = members
	}
	members[s.key] = struct{}{}

	return displaced, siblings, nil
}

// Deregister removes exactly the supplied session instance. It reports false when the session
// was not registered, which makes repeated teardown harmless and prevents a superseded
// connection from removing its replacement.
func (r *Registry) Deregister(s *Session) bool {
	removed, _ := r.deregister(s)
	return removed
}

// deregister is Deregister that also reports how many sessions remain under the key.
func (r *Registry) deregister(s *Session) (bool, int) {
	if s == nil {
		return false, 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	sessions := r.entries[s.key]
	for i, existing := range sessions {
		if existing != s {
			continue
		}
		remaining := append(sessions[:i:i], sessions[i+1:]...)
		if len(remaining) == 0 {
			r.removeKeyLocked(s.key)
		} else {
			r.entries[s.key] = remaining
		}
		return true, len(remaining)
	}
	return false, len(sessions)
}

func (r *Registry) count(key Key) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries[key])
}

// Lookup returns the most recently registered session for the key.
func (r *Registry) Lookup(key Key) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sessions := r.entries[key]
	if len(sessions) == 0 {
		return nil, false
	}
	return sessions[len(sessions)-1], true
}

// SessionsFor returns a snapshot of every session attached to the conversation ordered by
// admission time, agents before the user.
func (r *Registry) SessionsFor(conversationID int64) []*Session {
	return r.MembersOf(conversationID).All()
}

// Sessions returns a snapshot of every registered session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()

	all := make([]*Session, 0, len(r.entries))
	for _, sessions := range r.entries {
		all = append(all, sessions...)
	}
	sortSessions(all)
	return all
}

// Stats returns counts for diagnostics.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Conversations: len(r.byConversation)}
	for key, sessions := range r.entries {
		stats.Sessions += len(sessions)
		switch key.Role {
		case RoleAgent:
			stats.Agents += len(sessions)
		case RoleUser:
			stats.Users += len(sessions)
		}
	}
	return stats
}

func (r *Registry) removeKeyLocked(key Key) {
	delete(r.entries, key)
	if members, ok := r.byConversation[key.ConversationID]; ok {
		delete(members, key)
		if len(members) == 0 {
			delete(r.byConversation, key.ConversationID)
		}
	}
}

func sortSessions(sessions []*Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		if !sessions[i].connectedAt.Equal(sessions[j].connectedAt) {
			return sessions[i].connectedAt.Before(sessions[j].connectedAt)
		}
		return sessions[i].id < sessions[j].id
	})
}
