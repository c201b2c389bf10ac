package api

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/charlesng35/handoff/internal/handlers"
	"github.com/charlesng35/handoff/internal/relay"
)

func registerHealthRoutes(r *gin.Engine, db *gorm.DB, registry *relay.Registry) {
	health := handlers.Health(db, registry)
	r.GET("/health", health)
	r.GET("/api/health", health)
}
