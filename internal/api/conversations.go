package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wuwenbin0122/agent-platform/internal/auth"
	"github.com/wuwenbin0122/agent-platform/internal/models"
)

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	Timestamp *string        `json:"timestamp,omitempty"`
	Metadata  map[string]any `json:"metadata"`
}

func newChatMessages(messages []models.Message) []chatMessage {
	out := make([]chatMessage, 0, len(messages))
	for _, msg := range messages {
		item := chatMessage{Role: msg.Role, Content: msg.Content, Metadata: msg.Metadata}
		if item.Metadata == nil {
			item.Metadata = map[string]any{}
		}
		if !msg.CreatedAt.IsZero() {
			ts := msg.CreatedAt.UTC().Format(time.RFC3339)
			item.Timestamp = &ts
		}
		out = append(out, item)
	}
	return out
}

func (h *Handler) handleListConversations(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid pagination", err)
		return
	}

	convs, err := h.agents.ListConversations(c.Request.Context(), auth.UserID(c), page)
	if err != nil {
		h.respondError(c, "failed to list conversations", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"conversations": convs})
}

func (h *Handler) handleGetConversation(c *gin.Context) {
	detail, err := h.agents.GetConversation(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "failed to load conversation", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversation": detail.Conversation,
		"messages":     newChatMessages(detail.Messages),
	})
}

func (h *Handler) handleDeleteConversation(c *gin.Context) {
	if err := h.agents.DeleteConversation(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		h.respondError(c, "failed to delete conversation", err)
		return
	}
	h.notifyUser(auth.UserID(c), gin.H{"type": "conversation_deleted", "conversation_id": c.Param("id")})
	c.JSON(http.StatusOK, gin.H{"message": "Conversation deleted successfully"})
}
