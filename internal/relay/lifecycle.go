package relay

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/handoff/pkg/logger"
	"github.com/charlesng35/handoff/pkg/metrics"
)

// Authorizer decides whether a participant may attach to a conversation. It is consulted
// during admission, before any session is created.
type Authorizer interface {
	IsAuthorized(ctx context.Context, identity int64, role Role, conversationID int64) (bool, error)
}

// ErrUnauthorized is returned when the authorizer denies admission.
var ErrUnauthorized = errors.New("relay: participant is not authorized for conversation")

const replacedReason = "replaced by a newer connection"

// Manager governs admission, takeover and teardown of sessions. It is the only writer of the
// registry.
type Manager struct {
	registry   *Registry
	presence   *Presence
	authorizer Authorizer
	log        *zap.Logger
	now        func() time.Time
}

// ManagerOption customises the lifecycle manager.
type ManagerOption func(*Manager)

// WithAuthorizer wires the authorization collaborator consulted during admission.
func WithAuthorizer(a Authorizer) ManagerOption {
	return func(m *Manager) {
		m.authorizer = a
	}
}

// WithManagerLogger overrides the logger.
func WithManagerLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// WithManagerClock overrides the clock used for admission timestamps (test helper).
func WithManagerClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) {
		if clock != nil {
			m.now = clock
		}
	}
}

// NewManager constructs a lifecycle manager over the supplied registry.
func NewManager(registry *Registry, presence *Presence, opts ...ManagerOption) *Manager {
	if registry == nil {
		registry = NewRegistry()
	}
	if presence == nil {
		presence = NewPresence()
	}
	m := &Manager{
		registry: registry,
		presence: presence,
		log:      logger.WithModule("relay"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Registry exposes the managed registry for read access.
func (m *Manager) Registry() *Registry { return m.registry }

// Presence exposes the typing tracker.
func (m *Manager) Presence() *Presence { return m.presence }

// Admit validates the declared parameters, consults the authorizer and registers a session
// for the channel. On failure the channel is closed with a distinguishable code and no session
// is created.
func (m *Manager) Admit(ctx context.Context, req Admission, ch Channel) (*Session, error) {
	if ch == nil {
		return nil, ErrNilChannel
	}

	key, err := req.Parse()
	if err != nil {
		metrics.RelayAdmissions.WithLabelValues("rejected").Inc()
		m.log.Info("admission rejected", zap.Error(err))
		_ = ch.Close(CloseAdmissionRejected, err.Error())
		return nil, err
	}

	if m.authorizer != nil {
		allowed, authErr := m.authorizer.IsAuthorized(ctx, key.Identity, key.Role, key.ConversationID)
		if authErr != nil || !allowed {
			metrics.RelayAdmissions.WithLabelValues("unauthorized").Inc()
			m.log.Info("admission unauthorized", zap.Stringer("key", key), zap.Error(authErr))
			_ = ch.Close(CloseUnauthorized, "not authorized for conversation")
			if authErr != nil {
				return nil, errors.Join(ErrUnauthorized, authErr)
			}
			return nil, ErrUnauthorized
		}
	}

	session := newSession(key, ch, m.now())
	displaced, siblings, err := m.registry.register(session)
	if err != nil {
		_ = ch.Close(CloseNormal, "registration failed")
		return nil, err
	}
	metrics.RelayAdmissions.WithLabelValues("accepted").Inc()
	metrics.RelayConnections.WithLabelValues(string(key.Role)).Inc()

	for _, old := range displaced {
		metrics.RelayTakeovers.Inc()
		m.log.Info("session replaced",
			zap.Stringer("key", old.key),
			zap.String("session_id", old.id),
			zap.String("replacement_id", session.id),
		)
		m.retire(old, CloseReplaced, replacedReason, true)
	}

	m.log.Info("session admitted", zap.Stringer("key", key), zap.String("session_id", session.id))

	if key.Role == RoleAgent && siblings == 0 {
		m.announce(session, TypeJoin)
	}
	return session, nil
}

// Disconnect tears the session down once. Repeated calls, or calls for a session that was
// already replaced, leave the registry untouched.
func (m *Manager) Disconnect(s *Session) {
	if s == nil {
		return
	}
	m.retire(s, CloseNormal, "", false)
}

// CloseConversation closes every channel attached to the conversation.
func (m *Manager) CloseConversation(conversationID int64, code int, reason string) int {
	members := m.registry.MembersOf(conversationID).All()
	for _, s := range members {
		s.live.Store(false)
	}
	for _, s := range members {
		m.retire(s, code, reason, false)
	}
	return len(members)
}

// Sweep tears down sessions whose channel was marked not live after a failed delivery.
func (m *Manager) Sweep() int {
	swept := 0
	for _, s := range m.registry.Sessions() {
		if s.Live() {
			continue
		}
		m.retire(s, CloseGoingAway, "channel unavailable", false)
		swept++
	}
	if swept > 0 {
		m.log.Info("swept stale sessions", zap.Int("count", swept))
	}
	return swept
}

// ExpireTyping clears typing flags older than ttl and tells the room they stopped.
func (m *Manager) ExpireTyping(ttl time.Duration) int {
	expired := m.presence.Expire(ttl)
	for _, key := range expired {
		m.broadcastPresence(typingStopped(key), key)
	}
	return len(expired)
}

// Shutdown closes every registered channel with a going-away status.
func (m *Manager) Shutdown() {
	sessions := m.registry.Sessions()
	for _, s := range sessions {
		s.live.Store(false)
	}
	for _, s := range sessions {
		m.retire(s, CloseGoingAway, "server shutting down", false)
	}
}

// retire performs the single teardown of a session. removed reports that the registry entry
// was already dropped by a takeover. A displaced session is always closed as replaced, whichever
// path reaches it first.
func (m *Manager) retire(s *Session, code int, reason string, removed bool) {
	s.teardown.Do(func() {
		s.live.Store(false)
		if s.displaced.Load() {
			code, reason, removed = CloseReplaced, replacedReason, true
		}
		if err := s.channel.Close(code, reason); err != nil && !errors.Is(err, ErrChannelClosed) {
			m.log.Debug("close channel", zap.String("session_id", s.id), zap.Error(err))
		}

		var remaining int
		if removed {
			remaining = m.registry.count(s.key)
		} else {
			var ok bool
			if ok, remaining = m.registry.deregister(s); !ok {
				return
			}
		}
		metrics.RelayConnections.WithLabelValues(string(s.key.Role)).Dec()
		m.log.Info("session closed", zap.Stringer("key", s.key), zap.String("session_id", s.id), zap.Int("code", code))

		// The participant is still connected through another session.
		if remaining > 0 {
			return
		}
		if m.presence.Clear(s.key) {
			m.broadcastPresence(typingStopped(s.key), s.key)
		}
		if s.key.Role == RoleAgent {
			m.announce(s, TypeLeave)
		}
	})
}

// announce broadcasts a join/leave for the subject to the room as it stands after the mutation.
func (m *Manager) announce(subject *Session, kind Type) {
	m.broadcastPresence(presenceEnvelope(kind, subject.key), subject.key)
}

// broadcastPresence sends a relay-generated envelope to every member except the sessions of
// the participant it describes.
func (m *Manager) broadcastPresence(env Envelope, about Key) {
	payload, err := env.Encode()
	if err != nil {
		m.log.Error("encode presence", zap.Error(err))
		return
	}
	recipients := m.registry.MembersOf(env.ConversationID).ExceptKey(about)
	deliver(m.log, recipients, payload)
}

// deliver pushes payload to each recipient without waiting on any of them. A recipient that
// fails is skipped and marked not live so the next sweep deregisters it.
func deliver(log *zap.Logger, recipients []*Session, payload []byte) int {
	delivered := 0
	for _, s := range recipients {
		if err := s.send(payload); err != nil {
			metrics.RelayDeliveryFailures.Inc()
			log.Debug("skipping recipient", zap.Error(&DeliveryError{SessionID: s.id, Key: s.key, Err: err}))
			s.live.Store(false)
			continue
		}
		delivered++
	}
	return delivered
}
