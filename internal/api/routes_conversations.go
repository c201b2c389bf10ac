package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/handoff/internal/handlers"
)

func registerConversationRoutes(api *gin.RouterGroup, handler *handlers.ConversationHandler) {
	if handler == nil {
		return
	}

	conversations := api.Group("/conversations")
	conversations.GET("/:conversationID/messages", handler.ListMessages)
	conversations.POST("/:conversationID/escalation", handler.Escalate)
}
