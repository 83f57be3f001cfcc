package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/wuwenbin0122/agent-platform/internal/models"
)

// Memory keeps every record in process memory. It backs DATABASE_URL=memory://
// and the package tests of the services built on top of it.
type Memory struct {
	mu            sync.RWMutex
	users         map[string]*models.User
	usersByName   map[string]string
	usersByEmail  map[string]string
	agents        map[string]*models.Agent
	conversations map[string]*models.Conversation
	messages      map[string][]models.Message
}

func NewMemory() *Memory {
	return &Memory{
		users:         make(map[string]*models.User),
		usersByName:   make(map[string]string),
		usersByEmail:  make(map[string]string),
		agents:        make(map[string]*models.Agent),
		conversations: make(map[string]*models.Conversation),
		messages:      make(map[string][]models.Message),
	}
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (m *Memory) CreateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	nameKey := strings.ToLower(user.Username)
	if _, exists := m.usersByName[nameKey]; exists {
		return models.ErrDuplicateUsername
	}

	emailKey := normalizeEmail(user.Email)
	if emailKey != "" {
		if _, exists := m.usersByEmail[emailKey]; exists {
			return models.ErrDuplicateEmail
		}
	}

	stored := *user
	m.users[user.ID] = &stored
	m.usersByName[nameKey] = user.ID
	if emailKey != "" {
		m.usersByEmail[emailKey] = user.ID
	}
	return nil
}

func (m *Memory) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	user, ok := m.users[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *Memory) GetUserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.usersByName[strings.ToLower(strings.TrimSpace(identifier))]
	if !ok {
		id, ok = m.usersByEmail[normalizeEmail(identifier)]
	}
	if !ok {
		return nil, models.ErrNotFound
	}

	copied := *m.users[id]
	return &copied, nil
}

func (m *Memory) UpdateUser(ctx context.Context, user *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.users[user.ID]
	if !ok {
		return models.ErrNotFound
	}

	nameKey := strings.ToLower(user.Username)
	if owner, exists := m.usersByName[nameKey]; exists && owner != user.ID {
		return models.ErrDuplicateUsername
	}
	emailKey := normalizeEmail(user.Email)
	if owner, exists := m.usersByEmail[emailKey]; emailKey != "" && exists && owner != user.ID {
		return models.ErrDuplicateEmail
	}

	delete(m.usersByName, strings.ToLower(current.Username))
	delete(m.usersByEmail, normalizeEmail(current.Email))

	stored := *user
	m.users[user.ID] = &stored
	m.usersByName[nameKey] = user.ID
	if emailKey != "" {
		m.usersByEmail[emailKey] = user.ID
	}
	return nil
}

func (m *Memory) CreateAgent(ctx context.Context, agent *models.Agent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.agents[agent.ID] = cloneAgent(agent)
	return nil
}

func (m *Memory) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	agent, ok := m.agents[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	return cloneAgent(agent), nil
}

func (m *Memory) ListAgentsByUser(ctx context.Context, userID string) ([]models.Agent, error) {
	return m.filterAgents(func(a *models.Agent) bool { return a.UserID == userID }, 0, 0), nil
}

func (m *Memory) CountAgentsByUser(ctx context.Context, userID string) (int, error) {
	return len(m.filterAgents(func(a *models.Agent) bool { return a.UserID == userID }, 0, 0)), nil
}

func (m *Memory) ListPublicAgents(ctx context.Context, limit, offset int) ([]models.Agent, error) {
	return m.filterAgents(func(a *models.Agent) bool { return a.IsPublic }, limit, offset), nil
}

func (m *Memory) SetAgentVisibility(ctx context.Context, id string, public bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	agent, ok := m.agents[id]
	if !ok {
		return models.ErrNotFound
	}
	agent.IsPublic = public
	agent.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) DeleteAgent(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.agents[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.agents, id)

	for convID, conv := range m.conversations {
		if conv.AgentID == id {
			delete(m.conversations, convID)
			delete(m.messages, convID)
		}
	}
	return nil
}

func (m *Memory) filterAgents(keep func(*models.Agent) bool, limit, offset int) []models.Agent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Agent, 0)
	for _, agent := range m.agents {
		if keep(agent) {
			result = append(result, *cloneAgent(agent))
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	return page(result, limit, offset)
}

func (m *Memory) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *conv
	m.conversations[conv.ID] = &stored
	return nil
}

func (m *Memory) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conv, ok := m.conversations[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	copied := *conv
	return &copied, nil
}

func (m *Memory) ListConversationsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]models.Conversation, 0)
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			result = append(result, *conv)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].UpdatedAt.After(result[j].UpdatedAt)
	})

	return page(result, limit, offset), nil
}

func (m *Memory) ConversationIDsByAgent(ctx context.Context, agentID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := make([]string, 0)
	for id, conv := range m.conversations {
		if conv.AgentID == agentID {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (m *Memory) CountConversationsByUser(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, conv := range m.conversations {
		if conv.UserID == userID {
			count++
		}
	}
	return count, nil
}

func (m *Memory) TouchConversation(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conv, ok := m.conversations[id]
	if !ok {
		return models.ErrNotFound
	}
	conv.UpdatedAt = at
	return nil
}

func (m *Memory) DeleteConversation(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.conversations[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.conversations, id)
	delete(m.messages, id)
	return nil
}

func (m *Memory) AppendMessages(ctx context.Context, messages ...models.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, msg := range messages {
		m.messages[msg.ConversationID] = append(m.messages[msg.ConversationID], msg)
	}
	return nil
}

func (m *Memory) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.messages[conversationID]
	start := 0
	if limit > 0 && len(stored) > limit {
		start = len(stored) - limit
	}

	return append([]models.Message(nil), stored[start:]...), nil
}

func (m *Memory) DeleteMessages(ctx context.Context, conversationID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.messages, conversationID)
	return nil
}

func cloneAgent(agent *models.Agent) *models.Agent {
	copied := *agent
	copied.Tools = append([]string(nil), agent.Tools...)
	if agent.Settings != nil {
		copied.Settings = make(map[string]any, len(agent.Settings))
		for k, v := range agent.Settings {
			copied.Settings[k] = v
		}
	}
	return &copied
}

func page[T any](items []T, limit, offset int) []T {
	if offset > 0 {
		if offset >= len(items) {
			return items[:0]
		}
		items = items[offset:]
	}
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(strings.ToLower(email))
}
