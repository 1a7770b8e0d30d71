package approuters

import (
	"github.com/anik12136/uiu-pathshala-server/internal/configuration"

	"github.com/gin-gonic/gin"
)

func ChatRouters(router *gin.Engine, container *configuration.Container) {
	chatRoute := router.Group("/chat/api")
	{
		chatRoute.POST("/create", container.ChatHandler.CreateConversation)
		chatRoute.GET("/conversations/:email", container.ChatHandler.GetConversations)
		chatRoute.POST("/message", container.ChatHandler.SendMessage)
		chatRoute.GET("/messages/:conversationId", container.ChatHandler.GetMessages)
		chatRoute.PATCH("/conversation/:conversationId/read", container.ChatHandler.MarkRead)
	}
}
