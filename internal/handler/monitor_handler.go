package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/cache"
	"github.com/anik12136/uiu-pathshala-server/internal/hub"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthTimeout = 2 * time.Second

// MonitorHandler handles monitoring API endpoints
type MonitorHandler interface {
	GetHubStats(c *gin.Context)
	Health(c *gin.Context)
}

type monitorHandler struct {
	monitorService *hub.MonitorService
	cache          cache.Cache
	logger         *zap.Logger
}

// NewMonitorHandler creates a new monitor handler. nameCache may be nil when no cache is configured.
func NewMonitorHandler(monitorService *hub.MonitorService, nameCache cache.Cache, logger *zap.Logger) MonitorHandler {
	return &monitorHandler{
		monitorService: monitorService,
		cache:          nameCache,
		logger:         logger,
	}
}

// GetHubStats returns current presence statistics
func (h *monitorHandler) GetHubStats(c *gin.Context) {
	stats := h.monitorService.GetStats()

	c.JSON(http.StatusOK, gin.H{
		"HttpStatusCode": http.StatusOK,
		"ResponseBody":   stats,
		"IsSuccess":      true,
		"Message":        "Hub statistics retrieved successfully",
	})
}

// Health stays 200 when the cache is down: name lookups fall back to the store.
func (h *monitorHandler) Health(c *gin.Context) {
	cacheStatus := "disabled"
	if h.cache != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
		defer cancel()

		cacheStatus = "ok"
		if err := h.cache.Ping(ctx); err != nil {
			h.logger.Warn("cache ping failed", zap.Error(err))
			cacheStatus = "degraded"
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"cache":  cacheStatus,
	})
}
