package approuters

import (
	"github.com/anik12136/uiu-pathshala-server/internal/configuration"

	"github.com/gin-gonic/gin"
)

func UserRouters(router *gin.Engine, container *configuration.Container) {
	userRoute := router.Group("/chat/api/users")
	{
		userRoute.GET("/search", container.UserHandler.SearchUsers)
	}
}
