package relay

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type closeCall struct {
	code   int
	reason string
}

type recordingChannel struct {
	mu      sync.Mutex
	frames  [][]byte
	closes  []closeCall
	closed  bool
	sendErr error
}

func newRecordingChannel() *recordingChannel {
	return &recordingChannel{}
}

func (c *recordingChannel) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrChannelClosed
	}
	if c.sendErr != nil {
		return c.sendErr
	}
	c.frames = append(c.frames, append([]byte(nil), payload...))
	return nil
}

func (c *recordingChannel) Close(code int, reason string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closes = append(c.closes, closeCall{code: code, reason: reason})
	if c.closed {
		return ErrChannelClosed
	}
	c.closed = true
	return nil
}

func (c *recordingChannel) Frames() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.frames))
	copy(out, c.frames)
	return out
}

func (c *recordingChannel) Envelopes(t *testing.T) []Envelope {
	t.Helper()
	var out []Envelope
	for _, frame := range c.Frames() {
		var env Envelope
		require.NoError(t, json.Unmarshal(frame, &env))
		out = append(out, env)
	}
	return out
}

func (c *recordingChannel) Statuses(t *testing.T) []Status {
	t.Helper()
	var out []Status
	for _, frame := range c.Frames() {
		var status Status
		require.NoError(t, json.Unmarshal(frame, &status))
		if status.Type == "error" {
			out = append(out, status)
		}
	}
	return out
}

func (c *recordingChannel) Closes() []closeCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]closeCall, len(c.closes))
	copy(out, c.closes)
	return out
}

func (c *recordingChannel) setSendErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sendErr = err
}

type persistCall struct {
	conversationID int64
	senderID       int64
	role           Role
	content        string
}

type fakeStore struct {
	mu          sync.Mutex
	messages    []persistCall
	updates     []TicketUpdate
	nextID      int64
	failPersist error
	failUpdate  error
}

func (s *fakeStore) PersistMessage(_ context.Context, conversationID, senderID int64, role Role, content string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failPersist != nil {
		return 0, s.failPersist
	}
	s.nextID++
	s.messages = append(s.messages, persistCall{conversationID, senderID, role, content})
	return s.nextID, nil
}

func (s *fakeStore) UpdateTicketStatus(_ context.Context, update TicketUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failUpdate != nil {
		return s.failUpdate
	}
	s.updates = append(s.updates, update)
	return nil
}

func (s *fakeStore) Messages() []persistCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]persistCall(nil), s.messages...)
}

func (s *fakeStore) Updates() []TicketUpdate {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]TicketUpdate(nil), s.updates...)
}

type staticAuthorizer struct {
	allowed bool
	err     error
}

func (a staticAuthorizer) IsAuthorized(context.Context, int64, Role, int64) (bool, error) {
	return a.allowed, a.err
}

var errStoreDown = errors.New("store unavailable")

type fixture struct {
	manager *Manager
	router  *Router
	store   *fakeStore
}

func newFixture(t *testing.T, opts ...RouterOption) *fixture {
	t.Helper()

	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	manager := NewManager(NewRegistry(), NewPresence(),
		WithManagerLogger(zap.NewNop()),
		WithManagerClock(func() time.Time {
			clock = clock.Add(time.Millisecond)
			return clock
		}),
	)
	store := &fakeStore{}
	router, err := NewRouter(manager, store, append([]RouterOption{WithRouterLogger(zap.NewNop())}, opts...)...)
	require.NoError(t, err)
	return &fixture{manager: manager, router: router, store: store}
}

func (f *fixture) connect(t *testing.T, role Role, identity, conversationID int64) (*Session, *recordingChannel) {
	t.Helper()
	ch := newRecordingChannel()
	session, err := f.manager.Admit(context.Background(), Admission{
		Role:           string(role),
		Identity:       strconv.FormatInt(identity, 10),
		ConversationID: strconv.FormatInt(conversationID, 10),
	}, ch)
	require.NoError(t, err)
	return session, ch
}
