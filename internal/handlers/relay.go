package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/charlesng35/handoff/internal/middleware"
	"github.com/charlesng35/handoff/internal/realtime"
	"github.com/charlesng35/handoff/internal/relay"
	apperrors "github.com/charlesng35/handoff/pkg/errors"
	"github.com/charlesng35/handoff/pkg/logger"
	"github.com/charlesng35/handoff/pkg/response"
)

// RelayHandler upgrades authenticated requests into relay sessions.
type RelayHandler struct {
	manager  *relay.Manager
	router   *relay.Router
	upgrader *websocket.Upgrader
	connOpts realtime.Options
	log      *zap.Logger
}

// NewRelayHandler wires the websocket entry point to the relay core.
func NewRelayHandler(manager *relay.Manager, router *relay.Router, upgrader *websocket.Upgrader, connOpts realtime.Options) (*RelayHandler, error) {
	if manager == nil || router == nil {
		return nil, errors.New("relay handler: manager and router are required")
	}
	if upgrader == nil {
		upgrader = realtime.NewUpgrader(nil)
	}
	return &RelayHandler{
		manager:  manager,
		router:   router,
		upgrader: upgrader,
		connOpts: connOpts,
		log:      logger.WithModule("relay.http"),
	}, nil
}

// Connect handles GET /ws/relay?conversation_id=N. Identity and role come from the token
// claims; admission failures are reported as websocket close codes after the upgrade.
func (h *RelayHandler) Connect(c *gin.Context) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return
	}

	socket, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}

	conn := realtime.NewConn(socket, h.connOpts)
	ctx := requestContext(c)

	session, err := h.manager.Admit(ctx, relay.Admission{
		Role:           claims.Role,
		Identity:       claims.UserID,
		ConversationID: c.Query("conversation_id"),
	}, conn)
	if err != nil {
		<-conn.Done()
		return
	}
	defer h.manager.Disconnect(session)

	err = conn.ReadLoop(ctx, func(ctx context.Context, raw []byte) {
		if err := h.router.HandleInbound(ctx, session, raw); err != nil {
			h.log.Debug("inbound envelope rejected",
				zap.Stringer("key", session.Key()),
				zap.Error(err),
			)
		}
	})
	if err != nil {
		h.log.Info("relay connection ended", zap.Stringer("key", session.Key()), zap.Error(err))
	}
}

// Stats handles GET /api/relay/stats.
func (h *RelayHandler) Stats(c *gin.Context) {
	response.Success(c, http.StatusOK, h.manager.Registry().Stats())
}
