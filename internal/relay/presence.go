package relay

import (
	"sort"
	"sync"
	"time"
)

// Presence tracks which participants are currently flagged as typing.
type Presence struct {
	mu     sync.Mutex
	typing map[Key]time.Time
	now    func() time.Time
}

// NewPresence constructs an empty typing tracker.
func NewPresence() *Presence {
	return &Presence{
		typing: make(map[Key]time.Time),
		now:    time.Now,
	}
}

// SetTyping records the typing flag for the key.
func (p *Presence) SetTyping(key Key, typing bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if typing {
		p.typing[key] = p.now()
		return
	}
	delete(p.typing, key)
}

// Clear drops the typing flag and reports whether one was set.
func (p *Presence) Clear(key Key) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.typing[key]; !ok {
		return false
	}
	delete(p.typing, key)
	return true
}

// Typing lists participants flagged as typing in the conversation.
func (p *Presence) Typing(conversationID int64) []Key {
	p.mu.Lock()
	defer p.mu.Unlock()

	var keys []Key
	for key := range p.typing {
		if key.ConversationID == conversationID {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)
	return keys
}

// Expire drops flags older than ttl and returns their keys.
func (p *Presence) Expire(ttl time.Duration) []Key {
	if ttl <= 0 {
		return nil
	}
	threshold := p.now().Add(-ttl)

	p.mu.Lock()
	defer p.mu.Unlock()

	var expired []Key
	for key, since := range p.typing {
		if since.Before(threshold) {
			delete(p.typing, key)
			expired = append(expired, key)
		}
	}
	sortKeys(expired)
	return expired
}

func sortKeys(keys []Key) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].ConversationID != keys[j].ConversationID {
			return keys[i].ConversationID < keys[j].ConversationID
		}
		if keys[i].Role != keys[j].Role {
			return keys[i].Role < keys[j].Role
		}
		return keys[i].Identity < keys[j].Identity
	})
}
