package services

import (
	"context"
	"time"
)

// WebSocketReply is the frame written back for every inbound chat message.
type WebSocketReply struct {
	Type           string    `json:"type"`
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	MessageID      string    `json:"message_id"`
	Response       string    `json:"response"`
	Model          string    `json:"model"`
	Timestamp      time.Time `json:"timestamp"`
}

type WebSocketService struct {
	agents *AgentService
}

func NewWebSocketService(agents *AgentService) *WebSocketService {
	return &WebSocketService{agents: agents}
}

func (s *WebSocketService) ProcessMessage(ctx context.Context, agentID, userID, message, conversationID string) (*WebSocketReply, error) {
	result, err := s.agents.ChatWithAgent(ctx, ChatInput{
		UserID:         userID,
		AgentID:        agentID,
		Message:        message,
		ConversationID: conversationID,
	})
	if err != nil {
		return nil, err
	}

	return &WebSocketReply{
		Type:           "message",
		ConversationID: result.ConversationID,
		AgentID:        result.AgentID,
		MessageID:      result.MessageID,
		Response:       result.Response,
		Model:          result.Model,
		Timestamp:      result.Timestamp,
	}, nil
}
