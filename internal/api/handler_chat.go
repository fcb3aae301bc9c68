package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"taskagent/internal/chat"
)

// ChatService answers chat turns.
type ChatService interface {
	HandleMessage(ctx context.Context, userID int, message string) chat.Reply
	Confirm(ctx context.Context, userID int, confirmationID string, approve bool) chat.Reply
}

type ChatHandler struct {
	chat   ChatService
	logger *zap.Logger
}

func NewChatHandler(chat ChatService, logger *zap.Logger) *ChatHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ChatHandler{chat: chat, logger: logger}
}

// Chat handles POST /chat
func (h *ChatHandler) Chat(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		return
	}

	c.JSON(http.StatusOK, h.chat.HandleMessage(c.Request.Context(), userID, req.Message))
}

// Confirm handles POST /chat/confirm
func (h *ChatHandler) Confirm(c *gin.Context) {
	userID, ok := getUserID(c)
	if !ok {
		return
	}
	var req struct {
		ConfirmationID string `json:"confirmation_id" binding:"required"`
		Approve        *bool  `json:"approve" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "confirmation_id and approve are required"})
		return
	}

	c.JSON(http.StatusOK, h.chat.Confirm(c.Request.Context(), userID, req.ConfirmationID, *req.Approve))
}
