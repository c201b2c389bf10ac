package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/api"
	"github.com/charlesng35/handoff/internal/app"
	iauth "github.com/charlesng35/handoff/internal/auth"
	sharedtestutil "github.com/charlesng35/handoff/internal/database/testutil"
	"github.com/charlesng35/handoff/internal/middleware"
	"github.com/charlesng35/handoff/internal/models"
	"github.com/charlesng35/handoff/internal/relay"
	"github.com/charlesng35/handoff/internal/services"
	"github.com/charlesng35/handoff/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	JWT     *iauth.JWTService
	Manager *relay.Manager
	Store   *services.ConversationStore
	Config  *app.Config

	server *httptest.Server
}

// Option adjusts the configuration before the router is built.
type Option func(*app.Config)

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T, opts ...Option) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithAutoMigrate())

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
		},
		Relay: app.RelayConfig{
			EchoToSender:   true,
			CloseOnResolve: true,
			SendBuffer:     32,
			WriteWait:      time.Second,
			PongWait:       10 * time.Second,
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
		},
	}
	for _, opt := range opts {
		opt(cfg)
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	require.NoError(t, err)

	store, err := services.NewConversationStore(db)
	require.NoError(t, err)
	access, err := services.NewAccessService(db)
	require.NoError(t, err)

	manager := relay.NewManager(relay.NewRegistry(), relay.NewPresence(),
		relay.WithAuthorizer(access),
		relay.WithManagerLogger(zap.NewNop()),
	)
	relayRouter, err := relay.NewRouter(manager, store, append(cfg.Relay.RouterOptions(), relay.WithRouterLogger(zap.NewNop()))...)
	require.NoError(t, err)

	router, err := api.NewRouter(api.Dependencies{
		DB:        db,
		JWT:       jwtSvc,
		Config:    cfg,
		Manager:   manager,
		Relay:     relayRouter,
		Store:     store,
		Access:    access,
		RateStore: middleware.NewMemoryRateStore(),
	})
	require.NoError(t, err)

	env := &Env{
		T:       t,
		DB:      db,
		Router:  router,
		JWT:     jwtSvc,
		Manager: manager,
		Store:   store,
		Config:  cfg,
	}
	t.Cleanup(env.close)
	return env
}

func (e *Env) close() {
	e.Manager.Shutdown()
	if e.server != nil {
		e.server.Close()
	}
}

// Token issues an access token for the participant.
func (e *Env) Token(role string, identity int64) string {
	e.T.Helper()

	token, err := e.JWT.Issue(iauth.TokenRequest{Identity: identity, Role: role})
	require.NoError(e.T, err)
	return token
}

// CreateConversation inserts an open conversation owned by userID, optionally with an open ticket.
func (e *Env) CreateConversation(userID int64, escalated bool) models.Conversation {
	e.T.Helper()

	return sharedtestutil.SeedConversation(e.T, e.DB, userID, escalated)
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var buf *bytes.Buffer
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	} else {
		buf = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}

// Dial opens a relay websocket against a live test server. The response is returned so callers
// can inspect handshake failures.
func (e *Env) Dial(token string, conversationID int64) (*websocket.Conn, *http.Response, error) {
	e.T.Helper()

	if e.server == nil {
		e.server = httptest.NewServer(e.Router)
	}

	url := strings.Replace(e.server.URL, "http", "ws", 1) +
		fmt.Sprintf("/ws/relay?conversation_id=%d&token=%s", conversationID, token)
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if conn != nil {
		e.T.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

// MustDial is Dial for connections expected to succeed.
func (e *Env) MustDial(role string, identity, conversationID int64) *websocket.Conn {
	e.T.Helper()

	conn, _, err := e.Dial(e.Token(role, identity), conversationID)
	require.NoError(e.T, err)
	return conn
}

// WaitForSessions blocks until the registry holds n sessions.
func (e *Env) WaitForSessions(n int) {
	e.T.Helper()

	require.Eventually(e.T, func() bool {
		return e.Manager.Registry().Stats().Sessions == n
	}, 2*time.Second, 5*time.Millisecond)
}

// ReadJSON reads the next frame into a generic map, failing after timeout.
func ReadJSON(t *testing.T, conn *websocket.Conn, timeout time.Duration) map[string]any {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	var frame map[string]any
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

// ExpectClose reads until the peer closes and returns the close code.
func ExpectClose(t *testing.T, conn *websocket.Conn, timeout time.Duration) (int, string) {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.ErrorAs(t, err, &closeErr)
		return closeErr.Code, closeErr.Text
	}
}
