package api

import (
	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/handoff/internal/auth"
	"github.com/charlesng35/handoff/internal/handlers"
	"github.com/charlesng35/handoff/internal/middleware"
)

func registerRelaySocket(r *gin.Engine, handler *handlers.RelayHandler, guards ...gin.HandlerFunc) {
	chain := append(append([]gin.HandlerFunc{}, guards...), handler.Connect)
	r.GET("/ws/relay", chain...)
}

func registerRelayRoutes(api *gin.RouterGroup, handler *handlers.RelayHandler) {
	if handler == nil {
		return
	}

	api.GET("/relay/stats", middleware.RequireRole(iauth.RoleAgent), handler.Stats)
}
