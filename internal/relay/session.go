package relay

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Role identifies which side of a conversation a session represents.
type Role string

// Supported roles.
const (
	RoleAgent Role = "agent"
	RoleUser  Role = "user"
)

// Close codes sent on channels torn down by the relay.
const (
	CloseNormal             = 1000
	CloseGoingAway          = 1001
	CloseReplaced           = 4000
	CloseConversationClosed = 4001
	CloseAdmissionRejected  = 4400
	CloseUnauthorized       = 4403
)

// ParseRole normalises a role string.
func ParseRole(value string) (Role, bool) {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAgent:
		return RoleAgent, true
	case RoleUser:
		return RoleUser, true
	default:
		return "", false
	}
}

// Key is the composite registry key of a session.
type Key struct {
	Role           Role
	Identity       int64
	ConversationID int64
}

func (k Key) String() string {
	return fmt.Sprintf("%s:%d:%d", k.Role, k.Identity, k.ConversationID)
}

// Channel is the duplex transport owned by a session. Send must not block; a full
// queue is reported as ErrBackpressure.
type Channel interface {
	Send(payload []byte) error
	Close(code int, reason string) error
}

// Admission carries the raw connection parameters declared by the caller.
type Admission struct {
	Role           string
	Identity       string
	ConversationID string
}

// Parse validates the admission parameters and returns the session key.
func (a Admission) Parse() (Key, error) {
	rawRole := strings.TrimSpace(a.Role)
	if rawRole == "" {
		return Key{}, &AdmissionError{Field: "role", Reason: "is required"}
	}
	role, ok := ParseRole(rawRole)
	if !ok {
		return Key{}, &AdmissionError{Field: "role", Reason: fmt.Sprintf("%q is not supported", rawRole)}
	}

	identity, err := parsePositiveID("identity", a.Identity)
	if err != nil {
		return Key{}, err
	}
	conversationID, err := parsePositiveID("conversation_id", a.ConversationID)
	if err != nil {
		return Key{}, err
	}

	return Key{Role: role, Identity: identity, ConversationID: conversationID}, nil
}

func parsePositiveID(field, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, &AdmissionError{Field: field, Reason: "is required"}
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, &AdmissionError{Field: field, Reason: "must be a positive integer"}
	}
	return id, nil
}

// Session is the registry's record of one live connection.
type Session struct {
	id          string
	key         Key
	channel     Channel
	connectedAt time.Time

	live      atomic.Bool
	displaced atomic.Bool
	teardown  sync.Once
}

func newSession(key Key, channel Channel, connectedAt time.Time) *Session {
	s := &Session{
		id:          uuid.NewString(),
		key:         key,
		channel:     channel,
		connectedAt: connectedAt,
	}
	s.live.Store(true)
	return s
}

// ID returns the unique identifier of this connection.
func (s *Session) ID() string { return s.id }

// Key returns the composite registry key.
func (s *Session) Key() Key { return s.key }

// Role returns the session role.
func (s *Session) Role() Role { return s.key.Role }

// Identity returns the participant identity.
func (s *Session) Identity() int64 { return s.key.Identity }

// ConversationID returns the conversation the session is scoped to.
func (s *Session) ConversationID() int64 { return s.key.ConversationID }

// ConnectedAt returns the admission timestamp.
func (s *Session) ConnectedAt() time.Time { return s.connectedAt }

// Live reports whether the session may still be written to.
func (s *Session) Live() bool { return s.live.Load() }

func (s *Session) send(payload []byte) error {
	if !s.live.Load() {
		return ErrSessionNotLive
	}
	return s.channel.Send(payload)
}
