package services

import (
	"context"
	"time"

	"github.com/wuwenbin0122/agent-platform/internal/models"
)

type AgentStore interface {
	CreateAgent(ctx context.Context, agent *models.Agent) error
	GetAgent(ctx context.Context, id string) (*models.Agent, error)
	ListAgentsByUser(ctx context.Context, userID string) ([]models.Agent, error)
	CountAgentsByUser(ctx context.Context, userID string) (int, error)
	ListPublicAgents(ctx context.Context, limit, offset int) ([]models.Agent, error)
	SetAgentVisibility(ctx context.Context, id string, public bool) error
	DeleteAgent(ctx context.Context, id string) error
}

type ConversationStore interface {
	CreateConversation(ctx context.Context, conv *models.Conversation) error
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	ListConversationsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error)
	CountConversationsByUser(ctx context.Context, userID string) (int, error)
	ConversationIDsByAgent(ctx context.Context, agentID string) ([]string, error)
	TouchConversation(ctx context.Context, id string, at time.Time) error
	DeleteConversation(ctx context.Context, id string) error
}

// MessageStore is satisfied by both the SQL store and the Mongo store.
type MessageStore interface {
	AppendMessages(ctx context.Context, messages ...models.Message) error
	ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error)
	DeleteMessages(ctx context.Context, conversationID string) error
}

// Store is the primary database backing agents and conversations.
type Store interface {
	AgentStore
	ConversationStore
	Ping(ctx context.Context) error
}
