package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/agent-platform/internal/auth"
	"github.com/wuwenbin0122/agent-platform/internal/services"
)

type chatRequest struct {
	Message        string  `json:"message" binding:"required"`
	AgentID        string  `json:"agent_id" binding:"required"`
	ConversationID *string `json:"conversation_id"`
	Stream         bool    `json:"stream"`
}

func (h *Handler) handleChat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	input := services.ChatInput{
		UserID:  auth.UserID(c),
		AgentID: req.AgentID,
		Message: req.Message,
		Stream:  req.Stream,
	}
	if req.ConversationID != nil {
		input.ConversationID = *req.ConversationID
	}

	if !req.Stream {
		result, err := h.agents.ChatWithAgent(c.Request.Context(), input)
		if err != nil {
			h.respondError(c, "failed to chat with agent", err)
			return
		}
		h.notifyConversationUpdated(input.UserID, result)
		c.JSON(http.StatusOK, result)
		return
	}

	h.streamChat(c, input)
}

// streamChat answers with server-sent events: "token" per delta, then "done"
// with the full result. Failures before the first token are plain JSON errors.
func (h *Handler) streamChat(c *gin.Context, input services.ChatInput) {
	started := false
	start := func() {
		if started {
			return
		}
		started = true
		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Accel-Buffering", "no")
		c.Status(http.StatusOK)
	}

	input.OnToken = func(token string) {
		start()
		c.SSEvent("token", gin.H{"content": token})
		c.Writer.Flush()
	}

	result, err := h.agents.ChatWithAgent(c.Request.Context(), input)
	if err != nil {
		if !started {
			h.respondError(c, "failed to chat with agent", err)
			return
		}
		h.logger.Error("chat stream failed", zap.Error(err))
		c.SSEvent("error", gin.H{"error": "failed to chat with agent", "details": err.Error()})
		c.Writer.Flush()
		return
	}

	start()
	c.SSEvent("done", result)
	c.Writer.Flush()
	h.notifyConversationUpdated(input.UserID, result)
}
