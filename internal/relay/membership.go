package relay

import "github.com/samber/lo"

// Members is the derived room of one conversation at a single instant.
type Members struct {
	Agents []*Session
	User   *Session
}

// MembersOf recomputes the conversation room from the registry. Nothing is cached, so the
// result always reflects the registry at the moment of the call.
func (r *Registry) MembersOf(conversationID int64) Members {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var members Members
	for key := range r.byConversation[conversationID] {
		sessions := r.entries[key]
		switch key.Role {
		case RoleAgent:
			members.Agents = append(members.Agents, sessions...)
		case RoleUser:
			if len(sessions) > 0 {
				members.User = sessions[len(sessions)-1]
			}
		}
	}
	sortSessions(members.Agents)
	return members
}

// All returns every member, agents first.
func (m Members) All() []*Session {
	all := make([]*Session, 0, m.Len())
	all = append(all, m.Agents...)
	if m.User != nil {
		all = append(all, m.User)
	}
	return all
}

// Except returns every member other than the supplied session.
func (m Members) Except(skip *Session) []*Session {
	return lo.Filter(m.All(), func(s *Session, _ int) bool {
		return s != skip
	})
}

// ExceptKey returns every member not registered under key, which excludes all of a
// participant's connections at once.
func (m Members) ExceptKey(key Key) []*Session {
	return lo.Filter(m.All(), func(s *Session, _ int) bool {
		return s.key != key
	})
}

// Len returns the number of members.
func (m Members) Len() int {
	if m.User != nil {
		return len(m.Agents) + 1
	}
	return len(m.Agents)
}
