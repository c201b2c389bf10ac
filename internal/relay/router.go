package relay

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/handoff/pkg/logger"
	"github.com/charlesng35/handoff/pkg/metrics"
)

// TicketStatus is the ticket state written by relay events.
type TicketStatus string

// TicketStatusResolved marks a ticket closed by an agent.
const TicketStatusResolved TicketStatus = "resolved"

// TicketUpdate describes a ticket mutation triggered by a transfer or closed envelope.
// An empty Status leaves the status unchanged; a nil AssignedAgentID leaves the assignee unchanged.
type TicketUpdate struct {
	ConversationID  int64
	Status          TicketStatus
	AssignedAgentID *int64
	ActorID         int64
	Envelope        []byte
}

// Store is the persistence collaborator. Calls are synchronous and complete before broadcast.
type Store interface {
	PersistMessage(ctx context.Context, conversationID, senderID int64, role Role, content string) (int64, error)
	UpdateTicketStatus(ctx context.Context, update TicketUpdate) error
}

// Router validates inbound envelopes, persists durable ones and fans them out to the room.
type Router struct {
	lifecycle      *Manager
	store          Store
	log            *zap.Logger
	echo           bool
	closeOnResolve bool
	locks          *conversationLocks
}

// RouterOption customises the router.
type RouterOption func(*Router)

// WithEchoToSender controls whether content envelopes are delivered back to their sender.
func WithEchoToSender(echo bool) RouterOption {
	return func(r *Router) {
		r.echo = echo
	}
}

// WithCloseOnResolve controls whether a closed envelope also closes every channel of the conversation.
func WithCloseOnResolve(enabled bool) RouterOption {
	return func(r *Router) {
		r.closeOnResolve = enabled
	}
}

// WithRouterLogger overrides the logger.
func WithRouterLogger(log *zap.Logger) RouterOption {
	return func(r *Router) {
		if log != nil {
			r.log = log
		}
	}
}

// NewRouter constructs a router once the lifecycle manager and store are supplied.
func NewRouter(lifecycle *Manager, store Store, opts ...RouterOption) (*Router, error) {
	if lifecycle == nil {
		return nil, errors.New("relay router: lifecycle manager is required")
	}
	if store == nil {
		return nil, errors.New("relay router: store is required")
	}
	r := &Router{
		lifecycle:      lifecycle,
		store:          store,
		log:            logger.WithModule("relay"),
		echo:           true,
		closeOnResolve: true,
		locks:          newConversationLocks(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// HandleInbound processes one raw frame received from the session. Errors are reported to the
// originating session only and returned for logging; they never affect other participants.
func (r *Router) HandleInbound(ctx context.Context, s *Session, raw []byte) error {
	if s == nil {
		return errors.New("relay router: session is required")
	}
	// Frames still buffered on a retired connection are dropped.
	if !s.Live() {
		return ErrSessionNotLive
	}

	env, err := DecodeEnvelope(raw)
	if err == nil {
		env, err = bind(s, env)
	}
	if err != nil {
		r.reject(s, env.Type, err)
		return err
	}

	unlock := r.locks.lock(env.ConversationID)
	defer unlock()

	switch env.Type {
	case TypeContent:
		err = r.handleContent(ctx, s, env)
	case TypeTyping:
		err = r.handleTyping(s, env)
	case TypeTransfer:
		err = r.handleTransfer(ctx, s, env)
	case TypeClosed:
		err = r.handleClosed(ctx, s, env)
	default:
		err = &ProtocolError{Kind: ProtocolUnsupported, Detail: string(env.Type)}
	}
	if err != nil {
		r.reject(s, env.Type, err)
		return err
	}
	metrics.RelayEnvelopes.WithLabelValues(string(env.Type), "delivered").Inc()
	return nil
}

func (r *Router) handleContent(ctx context.Context, s *Session, env Envelope) error {
	start := time.Now()
	messageID, err := r.store.PersistMessage(ctx, env.ConversationID, s.key.Identity, s.key.Role, *env.Content)
	observePersist("message", start, err)
	if err != nil {
		return &PersistenceError{Op: "message", Err: err}
	}
	env.MessageID = &messageID

	members := r.lifecycle.registry.MembersOf(env.ConversationID)
	recipients := members.All()
	if !r.echo {
		recipients = members.Except(s)
	}
	return r.broadcast(env, recipients)
}

func (r *Router) handleTyping(s *Session, env Envelope) error {
	r.lifecycle.presence.SetTyping(s.key, *env.IsTyping)
	return r.broadcast(env, r.lifecycle.registry.MembersOf(env.ConversationID).Except(s))
}

func (r *Router) handleTransfer(ctx context.Context, s *Session, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}

	start := time.Now()
	err = r.store.UpdateTicketStatus(ctx, TicketUpdate{
		ConversationID:  env.ConversationID,
		AssignedAgentID: env.ToAgentID,
		ActorID:         s.key.Identity,
		Envelope:        payload,
	})
	observePersist("transfer", start, err)
	if err != nil {
		return &PersistenceError{Op: "transfer", Err: err}
	}

	deliver(r.log, r.lifecycle.registry.SessionsFor(env.ConversationID), payload)
	return nil
}

func (r *Router) handleClosed(ctx context.Context, s *Session, env Envelope) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}

	start := time.Now()
	err = r.store.UpdateTicketStatus(ctx, TicketUpdate{
		ConversationID: env.ConversationID,
		Status:         TicketStatusResolved,
		ActorID:        s.key.Identity,
		Envelope:       payload,
	})
	observePersist("closed", start, err)
	if err != nil {
		return &PersistenceError{Op: "closed", Err: err}
	}

	deliver(r.log, r.lifecycle.registry.SessionsFor(env.ConversationID), payload)

	if r.closeOnResolve {
		closed := r.lifecycle.CloseConversation(env.ConversationID, CloseConversationClosed, "conversation closed")
		r.log.Info("conversation closed",
			zap.Int64("conversation_id", env.ConversationID),
			zap.Int64("closed_by", s.key.Identity),
			zap.Int("channels", closed),
		)
	}
	return nil
}

func (r *Router) broadcast(env Envelope, recipients []*Session) error {
	payload, err := env.Encode()
	if err != nil {
		return err
	}
	deliver(r.log, recipients, payload)
	return nil
}

func (r *Router) reject(s *Session, ref Type, err error) {
	code := errorCode(err)
	result := "rejected"
	var persistErr *PersistenceError
	if errors.As(err, &persistErr) {
		result = "persist_failed"
		r.log.Warn("persistence failed; envelope not broadcast",
			zap.Stringer("key", s.key),
			zap.String("type", string(ref)),
			zap.Error(err),
		)
	} else {
		r.log.Info("envelope rejected", zap.Stringer("key", s.key), zap.Error(err))
	}
	metrics.RelayEnvelopes.WithLabelValues(metricType(ref), result).Inc()

	message := err.Error()
	if persistErr != nil {
		message = "message could not be saved"
	}
	if status := errorStatus(code, message, ref); status != nil {
		if sendErr := s.send(status); sendErr != nil {
			r.log.Debug("notify sender", zap.String("session_id", s.id), zap.Error(sendErr))
		}
	}
}

// bind ties an envelope to its sending session. Absent sender attributes are filled from the
// session before the envelope is first encoded; conflicting ones are rejected.
func bind(s *Session, env Envelope) (Envelope, error) {
	switch env.Type {
	case TypeJoin, TypeLeave:
		return env, &ProtocolError{Kind: ProtocolUnsupported, Detail: "presence events are generated by the relay"}
	case TypeTransfer, TypeClosed:
		if s.key.Role != RoleAgent {
			return env, &ProtocolError{Kind: ProtocolForbidden, Detail: string(env.Type) + " requires the agent role"}
		}
	}

	if env.ConversationID == 0 {
		env.ConversationID = s.key.ConversationID
	} else if env.ConversationID != s.key.ConversationID {
		return env, &ProtocolError{Kind: ProtocolMismatch, Detail: "conversationId does not match the session"}
	}

	if env.SenderID == nil {
		sender := s.key.Identity
		env.SenderID = &sender
	} else if *env.SenderID != s.key.Identity {
		return env, &ProtocolError{Kind: ProtocolMismatch, Detail: "senderId does not match the session"}
	}

	if env.Role == "" {
		env.Role = s.key.Role
	} else if env.Role != s.key.Role {
		return env, &ProtocolError{Kind: ProtocolMismatch, Detail: "role does not match the session"}
	}

	if env.Type == TypeTransfer && *env.ToAgentID == s.key.Identity {
		return env, &ProtocolError{Kind: ProtocolInvalid, Detail: "transfer target must be another agent"}
	}
	env.MessageID = nil
	return env, nil
}

func metricType(t Type) string {
	switch t {
	case TypeJoin, TypeLeave, TypeContent, TypeTyping, TypeTransfer, TypeClosed:
		return string(t)
	default:
		return "unknown"
	}
}

func observePersist(op string, start time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	metrics.PersistLatency.WithLabelValues(op, result).Observe(time.Since(start).Seconds())
}

// conversationLocks serialises persistence and broadcast per conversation so the broadcast
// order equals the order writes complete.
type conversationLocks struct {
	mu    sync.Mutex
	locks map[int64]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newConversationLocks() *conversationLocks {
	return &conversationLocks{locks: make(map[int64]*refLock)}
}

func (c *conversationLocks) lock(conversationID int64) func() {
	c.mu.Lock()
	l, ok := c.locks[conversationID]
	if !ok {
		l = &refLock{}
		c.locks[conversationID] = l
	}
	l.refs++
	c.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		c.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(c.locks, conversationID)
		}
		c.mu.Unlock()
	}
}
