package handlers

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/handoff/internal/middleware"
	"github.com/charlesng35/handoff/internal/relay"
	apperrors "github.com/charlesng35/handoff/pkg/errors"
	"github.com/charlesng35/handoff/pkg/response"
)

// requestContext returns the request context, or Background for bare test contexts.
func requestContext(c *gin.Context) context.Context {
	if c == nil || c.Request == nil {
		return context.Background()
	}
	return c.Request.Context()
}

// participantFrom resolves the authenticated identity and relay role. On failure the error
// response has been written.
func participantFrom(c *gin.Context) (int64, relay.Role, bool) {
	claims, ok := middleware.ClaimsFrom(c)
	if !ok {
		response.Error(c, apperrors.ErrUnauthorized)
		return 0, "", false
	}
	identity, err := claims.Identity()
	if err != nil {
		response.Error(c, apperrors.ErrTokenInvalid.WithInternal(err))
		return 0, "", false
	}
	role, ok := relay.ParseRole(claims.Role)
	if !ok {
		response.Error(c, apperrors.ErrForbidden)
		return 0, "", false
	}
	return identity, role, true
}

func conversationIDParam(c *gin.Context) (int64, bool) {
	raw := strings.TrimSpace(c.Param("conversationID"))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		response.Error(c, apperrors.NewBadRequest("conversation id must be a positive integer"))
		return 0, false
	}
	return id, true
}
