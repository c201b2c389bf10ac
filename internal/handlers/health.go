package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/database"
	"github.com/charlesng35/handoff/internal/relay"
	apperrors "github.com/charlesng35/handoff/pkg/errors"
	"github.com/charlesng35/handoff/pkg/response"
)

const healthCheckTimeout = 2 * time.Second

var errDatabaseUnavailable = apperrors.New("health.database_unavailable", "Database unreachable", http.StatusServiceUnavailable)

// Health reports readiness: the database must answer a ping. When a relay registry is supplied
// the live session count is included.
func Health(db *gorm.DB, registry *relay.Registry) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(requestContext(c), healthCheckTimeout)
		defer cancel()

		payload := gin.H{"status": "ok", "checked_at": time.Now().UTC()}
		if registry != nil {
			payload["sessions"] = registry.Stats().Sessions
		}

		if err := database.Ping(ctx, db); err != nil {
			payload["status"] = "unavailable"
			response.ErrorWithData(c, errDatabaseUnavailable.WithInternal(err), payload)
			return
		}
		response.Success(c, http.StatusOK, payload)
	}
}
