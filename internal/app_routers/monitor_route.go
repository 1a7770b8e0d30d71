package approuters

import (
	"github.com/anik12136/uiu-pathshala-server/internal/configuration"

	"github.com/gin-gonic/gin"
)

// MonitorRouters sets up monitoring API routes
func MonitorRouters(router *gin.Engine, container *configuration.Container) {
	router.GET("/health", container.MonitorHandler.Health)

	monitorGroup := router.Group("/chat/api/monitor")
	{
		monitorGroup.GET("/stats", container.MonitorHandler.GetHubStats)
	}
}
