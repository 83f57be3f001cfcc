package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wuwenbin0122/agent-platform/internal/auth"
	"github.com/wuwenbin0122/agent-platform/internal/services"
)

type agentCreateRequest struct {
	Name         string         `json:"name" binding:"required"`
	Description  string         `json:"description" binding:"required"`
	SystemPrompt string         `json:"system_prompt" binding:"required"`
	Model        string         `json:"model"`
	Tools        []string       `json:"tools"`
	Settings     map[string]any `json:"settings"`
}

type visibilityRequest struct {
	IsPublic *bool `json:"is_public" binding:"required"`
}

func (h *Handler) handleCreateAgent(c *gin.Context) {
	var req agentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	agent, err := h.agents.CreateAgent(c.Request.Context(), auth.UserID(c), services.CreateAgentInput{
		Name:         req.Name,
		Description:  req.Description,
		SystemPrompt: req.SystemPrompt,
		Model:        req.Model,
		Tools:        req.Tools,
		Settings:     req.Settings,
	})
	if err != nil {
		h.respondError(c, "failed to create agent", err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Agent created successfully", "agent": agent})
}

func (h *Handler) handleListAgents(c *gin.Context) {
	agents, err := h.agents.GetUserAgents(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.respondError(c, "failed to list agents", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

func (h *Handler) handleGetAgent(c *gin.Context) {
	agent, err := h.agents.GetAgent(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "failed to load agent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent})
}

func (h *Handler) handleDeleteAgent(c *gin.Context) {
	if err := h.agents.DeleteAgent(c.Request.Context(), auth.UserID(c), c.Param("id")); err != nil {
		h.respondError(c, "failed to delete agent", err)
		return
	}
	h.notifyUser(auth.UserID(c), gin.H{"type": "agent_deleted", "agent_id": c.Param("id")})
	c.JSON(http.StatusOK, gin.H{"message": "Agent deleted successfully"})
}

func (h *Handler) handleAgentVisibility(c *gin.Context) {
	var req visibilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	agent, err := h.agents.SetPublic(c.Request.Context(), auth.UserID(c), c.Param("id"), *req.IsPublic)
	if err != nil {
		h.respondError(c, "failed to update agent", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent})
}

func (h *Handler) handleListMarketplace(c *gin.Context) {
	page, err := pageFromQuery(c)
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid pagination", err)
		return
	}

	agents, err := h.agents.ListMarketplace(c.Request.Context(), page)
	if err != nil {
		h.respondError(c, "failed to list marketplace", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agents": agents})
}

func (h *Handler) handleCloneAgent(c *gin.Context) {
	agent, err := h.agents.CloneAgent(c.Request.Context(), auth.UserID(c), c.Param("id"))
	if err != nil {
		h.respondError(c, "failed to clone agent", err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Agent cloned successfully", "agent": agent})
}
