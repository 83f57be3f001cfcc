package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/agent-platform/internal/auth"
	"github.com/wuwenbin0122/agent-platform/internal/services"
	"github.com/wuwenbin0122/agent-platform/internal/ws"
)

const (
	closeAuthFailed    = 4001
	closeInternalError = 4000
)

type socketMessage struct {
	Message        string `json:"message"`
	ConversationID string `json:"conversation_id"`
}

func (h *Handler) handleChatSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	agentID := c.Param("agent_id")
	userID, err := h.socketUser(c.Query("token"))
	if err != nil {
		h.logger.Warn("websocket authentication failed", zap.String("agent_id", agentID), zap.Error(err))
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeAuthFailed, "Authentication failed"),
			time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	client := h.conns.Connect(userID, conn)
	defer h.conns.Disconnect(client)
	defer conn.Close()

	interval := h.cfg.WebSocket.PingInterval
	deadline := interval + h.cfg.WebSocket.PingTimeout
	refresh := func() {
		if interval > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(deadline))
		}
	}
	refresh()
	conn.SetPongHandler(func(string) error {
		refresh()
		return nil
	})

	done := make(chan struct{})
	defer close(done)
	if interval > 0 {
		go h.pingLoop(client, interval, done)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
				h.logger.Info("websocket closed by client", zap.String("user_id", userID))
				return
			}
			var closeErr *websocket.CloseError
			if !errors.As(err, &closeErr) {
				h.logger.Warn("websocket read failed", zap.String("user_id", userID), zap.Error(err))
			}
			return
		}
		refresh()

		var msg socketMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.closeWithError(client, userID, err)
			return
		}
		if strings.TrimSpace(msg.Message) == "" {
			if err := client.SendJSON(gin.H{"type": "error", "error": "message is empty"}); err != nil {
				return
			}
			continue
		}

		// Pongs are only read between messages, so the deadline is lifted while
		// the reply is produced and the ping loop keeps writing.
		_ = conn.SetReadDeadline(time.Time{})
		reply, err := h.processSocketMessage(c.Request.Context(), agentID, userID, msg)
		if err != nil {
			h.closeWithError(client, userID, err)
			return
		}
		if err := client.SendJSON(reply); err != nil {
			h.logger.Warn("websocket write failed", zap.String("user_id", userID), zap.Error(err))
			return
		}
		refresh()
	}
}

func (h *Handler) socketUser(token string) (string, error) {
	if strings.TrimSpace(token) == "" {
		return "", auth.ErrInvalidToken
	}
	claims, err := h.auth.VerifyToken(token)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

func (h *Handler) processSocketMessage(ctx context.Context, agentID, userID string, msg socketMessage) (any, error) {
	if timeout := h.cfg.Timeouts.WebSocket; timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return h.sockets.ProcessMessage(ctx, agentID, userID, msg.Message, msg.ConversationID)
}

// notifyUser pushes an event to every open chat socket of the user.
func (h *Handler) notifyUser(userID string, event gin.H) {
	if h.conns.UserConnections(userID) == 0 {
		return
	}
	sent := h.conns.SendToUser(userID, event)
	h.logger.Debug("socket event delivered", zap.String("user_id", userID), zap.Any("type", event["type"]), zap.Int("sockets", sent))
}

func (h *Handler) notifyConversationUpdated(userID string, result *services.ChatResult) {
	h.notifyUser(userID, gin.H{
		"type":            "conversation_updated",
		"conversation_id": result.ConversationID,
		"agent_id":        result.AgentID,
		"message_id":      result.MessageID,
	})
}

func (h *Handler) closeWithError(client *ws.Client, userID string, err error) {
	h.logger.Error("websocket error", zap.String("user_id", userID), zap.Error(err))
	_ = client.CloseWith(closeInternalError, "Internal server error")
}

func (h *Handler) pingLoop(client *ws.Client, interval time.Duration, done <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := client.Ping(); err != nil {
				return
			}
		}
	}
}
