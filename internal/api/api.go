package api

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/agent-platform/internal/auth"
	"github.com/wuwenbin0122/agent-platform/internal/services"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
	"github.com/wuwenbin0122/agent-platform/internal/ws"
)

// Probe reports whether one dependency is reachable.
type Probe func(ctx context.Context) (bool, error)

type Probes struct {
	Database Probe
	VectorDB Probe
	LLM      Probe
	Cache    Probe
}

type Deps struct {
	Config      *utils.Config
	Logger      *zap.Logger
	Auth        *auth.Service
	Agents      *services.AgentService
	Sockets     *services.WebSocketService
	Connections *ws.Manager
	Probes      Probes
}

type Handler struct {
	cfg      *utils.Config
	logger   *zap.Logger
	auth     *auth.Service
	agents   *services.AgentService
	sockets  *services.WebSocketService
	conns    *ws.Manager
	probes   Probes
	upgrader websocket.Upgrader
}

func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	conns := deps.Connections
	if conns == nil {
		conns = ws.NewManager(logger)
	}

	h := &Handler{
		cfg:     deps.Config,
		logger:  logger,
		auth:    deps.Auth,
		agents:  deps.Agents,
		sockets: deps.Sockets,
		conns:   conns,
		probes:  deps.Probes,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/", h.handleRoot)
	router.GET("/health", h.handleHealth)
	router.GET("/docs", h.handleDocs(router))

	v1 := router.Group("/api/v1")
	requireUser := h.auth.RequireUser()

	authGroup := v1.Group("/auth")
	authGroup.POST("/register", h.handleRegister)
	authGroup.POST("/login", h.handleLogin)
	authGroup.GET("/me", requireUser, h.handleMe)
	authGroup.POST("/refresh", requireUser, h.handleRefresh)

	users := v1.Group("/users", requireUser)
	users.GET("/me", h.handleMe)
	users.PATCH("/me", h.handleUpdateMe)

	agents := v1.Group("/agents", requireUser)
	agents.POST("/create", h.handleCreateAgent)
	agents.GET("/", h.handleListAgents)
	agents.GET("/:id", h.handleGetAgent)
	agents.DELETE("/:id", h.handleDeleteAgent)
	agents.PATCH("/:id/visibility", h.handleAgentVisibility)

	conversations := v1.Group("/conversations", requireUser)
	conversations.GET("/", h.handleListConversations)
	conversations.GET("/:id", h.handleGetConversation)
	conversations.DELETE("/:id", h.handleDeleteConversation)

	chat := v1.Group("/chat", requireUser)
	chat.POST("/", h.handleChat)

	if h.cfg.Features.Marketplace {
		marketplace := v1.Group("/marketplace", requireUser)
		marketplace.GET("/", h.handleListMarketplace)
		marketplace.POST("/:id/clone", h.handleCloneAgent)
	}

	router.GET("/ws/chat/:agent_id", h.handleChatSocket)

	if dir := strings.TrimSpace(h.cfg.App.StaticDir); dir != "" {
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			router.Static("/static", dir)
		} else {
			h.logger.Warn("static directory not found, /static disabled", zap.String("dir", dir))
		}
	}
}

// ConnectionCount exposes the number of open chat sockets.
func (h *Handler) ConnectionCount() int {
	return h.conns.Count()
}

// Shutdown closes every open chat socket.
func (h *Handler) Shutdown() {
	h.conns.CloseAll()
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range h.cfg.CORS.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrUsernameRequired),
		errors.Is(err, auth.ErrPasswordTooWeak),
		errors.Is(err, services.ErrInvalidInput),
		errors.Is(err, services.ErrEmptyMessage),
		errors.Is(err, services.ErrUnsupportedModel),
		errors.Is(err, services.ErrToolDisabled):
		return http.StatusBadRequest
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, services.ErrForbidden),
		errors.Is(err, services.ErrAgentLimit),
		errors.Is(err, services.ErrConversationLimit):
		return http.StatusForbidden
	case errors.Is(err, services.ErrAgentNotFound),
		errors.Is(err, services.ErrConversationNotFound),
		errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrUserExists),
		errors.Is(err, auth.ErrEmailExists):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// respondError maps known errors to their status. Unknown errors become a
// 500 carrying the error string.
func (h *Handler) respondError(c *gin.Context, message string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(message, zap.String("path", c.Request.URL.Path), zap.Error(err))
		writeError(c, status, message, err)
		return
	}
	writeError(c, status, err.Error(), err)
}

func writeError(c *gin.Context, status int, message string, err error) {
	c.JSON(status, gin.H{
		"error":   message,
		"details": err.Error(),
	})
}

func pageFromQuery(c *gin.Context) (services.Page, error) {
	var page services.Page
	var err error
	if raw := c.Query("limit"); raw != "" {
		if page.Limit, err = strconv.Atoi(raw); err != nil {
			return page, errors.New("limit must be an integer")
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if page.Offset, err = strconv.Atoi(raw); err != nil {
			return page, errors.New("offset must be an integer")
		}
	}
	return page, nil
}
