package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/anik12136/uiu-pathshala-server/internal/service"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const requestTimeout = 10 * time.Second

type ChatHandler interface {
	CreateConversation(c *gin.Context)
	GetConversations(c *gin.Context)
	SendMessage(c *gin.Context)
	GetMessages(c *gin.Context)
	MarkRead(c *gin.Context)
}

type chatHandler struct {
	service service.ConversationService
	logger  *zap.Logger
}

func NewChatHandler(service service.ConversationService, logger *zap.Logger) ChatHandler {
	return &chatHandler{
		service: service,
		logger:  logger,
	}
}

type createConversationRequest struct {
	Sender        string `json:"sender"`
	Recipient     string `json:"recipient"`
	SenderName    string `json:"senderName"`
	RecipientName string `json:"recipientName"`
}

type sendMessageRequest struct {
	Sender          string `json:"sender"`
	Recipient       string `json:"recipient"`
	Text            string `json:"text"`
	Content         string `json:"content"` // older clients
	ClientMessageID string `json:"clientMessageId"`
}

type markReadRequest struct {
	Participant string `json:"participant"`
	Receiver    string `json:"receiver"` // older clients
}

func (h *chatHandler) CreateConversation(c *gin.Context) {
	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	conversation, created, err := h.service.ResolveOrCreate(ctx, service.ResolveInput{
		IdentityA: req.Sender,
		NameA:     req.SenderName,
		IdentityB: req.Recipient,
		NameB:     req.RecipientName,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{
		"conversation": conversation,
		"created":      created,
	})
}

func (h *chatHandler) GetConversations(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	summaries, err := h.service.ListConversations(ctx, c.Param("email"))
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversations": summaries,
	})
}

func (h *chatHandler) SendMessage(c *gin.Context) {
	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.Text == "" {
		req.Text = req.Content
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	res, err := h.service.SendMessage(ctx, service.AppendInput{
		Sender:          req.Sender,
		Recipient:       req.Recipient,
		Text:            req.Text,
		ClientMessageID: req.ClientMessageID,
	})
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	c.JSON(status, res)
}

func (h *chatHandler) GetMessages(c *gin.Context) {
	conversationId := c.Param("conversationId")

	var page int64
	if raw := c.Query("page"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			badRequest(c, "Invalid page number")
			return
		}
		page = n
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	result, err := h.service.GetHistory(ctx, conversationId, page)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"messages":   result.Data,
		"total":      result.Total,
		"page":       result.Page,
		"totalPages": result.TotalPages,
	})
}

func (h *chatHandler) MarkRead(c *gin.Context) {
	var req markReadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	participant := req.Participant
	if participant == "" {
		participant = req.Receiver
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	conversation, err := h.service.MarkRead(ctx, c.Param("conversationId"), participant)
	if err != nil {
		writeError(c, h.logger, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"conversation": conversation,
	})
}
