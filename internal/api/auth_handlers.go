package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/wuwenbin0122/agent-platform/internal/auth"
)

type registerRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email"`
	Password string `json:"password" binding:"required"`
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Username   string `json:"username"`
	Password   string `json:"password" binding:"required"`
}

type updateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
}

func (h *Handler) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	result, err := h.auth.Register(c.Request.Context(), auth.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, "failed to register user", err)
		return
	}

	c.JSON(http.StatusCreated, newAuthResponse(result))
}

func (h *Handler) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}

	identifier := strings.TrimSpace(req.Identifier)
	if identifier == "" {
		identifier = strings.TrimSpace(req.Username)
	}
	if identifier == "" {
		writeError(c, http.StatusBadRequest, "identifier and password are required", auth.ErrInvalidCredentials)
		return
	}

	result, err := h.auth.Login(c.Request.Context(), auth.LoginInput{
		Identifier: identifier,
		Password:   req.Password,
	})
	if err != nil {
		h.respondError(c, "failed to login", err)
		return
	}

	c.JSON(http.StatusOK, newAuthResponse(result))
}

func (h *Handler) handleMe(c *gin.Context) {
	user, err := h.auth.GetUser(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.respondError(c, "failed to load user", err)
		return
	}
	c.JSON(http.StatusOK, user.Sanitize())
}

func (h *Handler) handleRefresh(c *gin.Context) {
	result, err := h.auth.IssueToken(c.Request.Context(), auth.UserID(c))
	if err != nil {
		h.respondError(c, "failed to refresh token", err)
		return
	}
	c.JSON(http.StatusOK, newAuthResponse(result))
}

func (h *Handler) handleUpdateMe(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid payload", err)
		return
	}
	if req.Username == nil && req.Email == nil && req.Password == nil {
		writeError(c, http.StatusBadRequest, "nothing to update", errors.New("provide username, email or password"))
		return
	}

	user, err := h.auth.UpdateUser(c.Request.Context(), auth.UserID(c), auth.UpdateInput{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.respondError(c, "failed to update user", err)
		return
	}
	c.JSON(http.StatusOK, user)
}

func newAuthResponse(result *auth.AuthResult) gin.H {
	return gin.H{
		"access_token": result.Token,
		"token_type":   "bearer",
		"expires_at":   result.ExpiresAt.Format(time.RFC3339),
		"user":         result.User,
	}
}
