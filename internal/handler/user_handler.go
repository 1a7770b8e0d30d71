package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/anik12136/uiu-pathshala-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type UserHandler interface {
	SearchUsers(c *gin.Context)
}

type userHandler struct {
	service service.UserService
	logger  *zap.Logger
}

func NewUserHandler(service service.UserService, logger *zap.Logger) UserHandler {
	return &userHandler{
		service: service,
		logger:  logger,
	}
}

func (h *userHandler) SearchUsers(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			badRequest(c, "Invalid limit")
			return
		}
		limit = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	users, err := h.service.Search(ctx, c.Query("q"), limit, c.Query("exclude"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"users": users,
	})
}
