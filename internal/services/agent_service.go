package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/agent-platform/internal/llm"
	"github.com/wuwenbin0122/agent-platform/internal/models"
	"github.com/wuwenbin0122/agent-platform/internal/trace"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

type CreateAgentInput struct {
	Name         string
	Description  string
	SystemPrompt string
	Model        string
	Tools        []string
	Settings     map[string]any
}

type ChatInput struct {
	UserID         string
	AgentID        string
	Message        string
	ConversationID string
	Stream         bool
	// OnToken receives content deltas when Stream is set.
	OnToken func(string)
}

type ChatResult struct {
	ConversationID string    `json:"conversation_id"`
	AgentID        string    `json:"agent_id"`
	MessageID      string    `json:"message_id"`
	Response       string    `json:"response"`
	Model          string    `json:"model"`
	Usage          llm.Usage `json:"usage"`
	Timestamp      time.Time `json:"timestamp"`
}

type ConversationDetail struct {
	models.Conversation
	Messages []models.Message `json:"messages"`
}

type Page struct {
	Limit  int
	Offset int
}

func (p Page) normalize() Page {
	if p.Limit <= 0 {
		p.Limit = defaultPageSize
	}
	if p.Limit > maxPageSize {
		p.Limit = maxPageSize
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}

// AgentService owns agent lifecycle and chat orchestration.
type AgentService struct {
	store    Store
	messages MessageStore
	llm      llm.Client
	cfg      *utils.Config
	logger   *zap.Logger
	now      func() time.Time
}

func NewAgentService(store Store, messages MessageStore, client llm.Client, cfg *utils.Config, logger *zap.Logger) *AgentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentService{
		store:    store,
		messages: messages,
		llm:      client,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *AgentService) CreateAgent(ctx context.Context, userID string, input CreateAgentInput) (*models.Agent, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.Description) == "" {
		return nil, fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	if strings.TrimSpace(input.SystemPrompt) == "" {
		return nil, fmt.Errorf("%w: system_prompt is required", ErrInvalidInput)
	}

	model := strings.TrimSpace(input.Model)
	if model == "" {
		model = s.cfg.Agents.DefaultModel
	}
	if !s.cfg.Features.CustomModels && !s.llm.Supports(model) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedModel, model)
	}

	tools, err := s.validateTools(input.Tools)
	if err != nil {
		return nil, err
	}

	if _, err := decodeSettings(input.Settings); err != nil {
		return nil, err
	}

	if limit := s.cfg.Agents.MaxAgentsPerUser; limit > 0 {
		count, err := s.store.CountAgentsByUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("count agents: %w", err)
		}
		if count >= limit {
			return nil, fmt.Errorf("%w: at most %d agents per user", ErrAgentLimit, limit)
		}
	}

	settings := input.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	now := s.now()
	agent := &models.Agent{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		Description:  strings.TrimSpace(input.Description),
		SystemPrompt: input.SystemPrompt,
		Model:        model,
		Tools:        tools,
		Settings:     settings,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.CreateAgent(ctx, agent); err != nil {
		return nil, fmt.Errorf("create agent: %w", err)
	}

	s.logger.Info("agent created", zap.String("agent_id", agent.ID), zap.String("user_id", userID), zap.String("model", model))
	return agent, nil
}

func (s *AgentService) validateTools(tools []string) ([]string, error) {
	enabled := map[string]bool{
		"web_search":      s.cfg.Tools.EnableWebSearch,
		"code_execution":  s.cfg.Tools.EnableCodeExecution,
		"file_operations": s.cfg.Tools.EnableFileOperations,
		"browser":         s.cfg.Tools.PlaywrightEnabled,
	}

	seen := make(map[string]struct{}, len(tools))
	result := make([]string, 0, len(tools))
	for _, tool := range tools {
		tool = strings.ToLower(strings.TrimSpace(tool))
		if tool == "" {
			continue
		}
		if !enabled[tool] {
			return nil, fmt.Errorf("%w: %s", ErrToolDisabled, tool)
		}
		if _, dup := seen[tool]; dup {
			continue
		}
		seen[tool] = struct{}{}
		result = append(result, tool)
	}
	return result, nil
}

func (s *AgentService) GetUserAgents(ctx context.Context, userID string) ([]models.Agent, error) {
	agents, err := s.store.ListAgentsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	return agents, nil
}

// GetAgent returns an agent the user owns or one that is public.
func (s *AgentService) GetAgent(ctx context.Context, userID, agentID string) (*models.Agent, error) {
	agent, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if agent.UserID != userID && !agent.IsPublic {
		return nil, ErrAgentNotFound
	}
	return agent, nil
}

func (s *AgentService) ownedAgent(ctx context.Context, userID, agentID string) (*models.Agent, error) {
	agent, err := s.GetAgent(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	if agent.UserID != userID {
		return nil, ErrForbidden
	}
	return agent, nil
}

func (s *AgentService) DeleteAgent(ctx context.Context, userID, agentID string) error {
	if _, err := s.ownedAgent(ctx, userID, agentID); err != nil {
		return err
	}

	convIDs, err := s.store.ConversationIDsByAgent(ctx, agentID)
	if err != nil {
		return fmt.Errorf("list agent conversations: %w", err)
	}
	for _, convID := range convIDs {
		if err := s.messages.DeleteMessages(ctx, convID); err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
	}

	if err := s.store.DeleteAgent(ctx, agentID); err != nil {
		return fmt.Errorf("delete agent: %w", err)
	}
	s.logger.Info("agent deleted", zap.String("agent_id", agentID), zap.String("user_id", userID))
	return nil
}

func (s *AgentService) SetPublic(ctx context.Context, userID, agentID string, public bool) (*models.Agent, error) {
	agent, err := s.ownedAgent(ctx, userID, agentID)
	if err != nil {
		return nil, err
	}
	if err := s.store.SetAgentVisibility(ctx, agentID, public); err != nil {
		return nil, fmt.Errorf("set agent visibility: %w", err)
	}
	agent.IsPublic = public
	agent.UpdatedAt = s.now()
	return agent, nil
}

func (s *AgentService) ListMarketplace(ctx context.Context, page Page) ([]models.Agent, error) {
	page = page.normalize()
	agents, err := s.store.ListPublicAgents(ctx, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list public agents: %w", err)
	}
	return agents, nil
}

// CloneAgent copies a public agent into the caller's agents as a private agent.
func (s *AgentService) CloneAgent(ctx context.Context, userID, agentID string) (*models.Agent, error) {
	source, err := s.store.GetAgent(ctx, agentID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrAgentNotFound
		}
		return nil, fmt.Errorf("get agent: %w", err)
	}
	if !source.IsPublic {
		return nil, ErrAgentNotFound
	}

	return s.CreateAgent(ctx, userID, CreateAgentInput{
		Name:         source.Name,
		Description:  source.Description,
		SystemPrompt: source.SystemPrompt,
		Model:        source.Model,
		Tools:        source.Tools,
		Settings:     source.Settings,
	})
}

func (s *AgentService) ChatWithAgent(ctx context.Context, input ChatInput) (result *ChatResult, err error) {
	ctx, span := trace.Tracer("agent-service").Start(ctx, "ChatWithAgent")
	span.SetAttributes(
		attribute.String("agent.id", input.AgentID),
		attribute.Bool("chat.stream", input.Stream),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	message := strings.TrimSpace(input.Message)
	if message == "" {
		return nil, ErrEmptyMessage
	}
	if strings.TrimSpace(input.AgentID) == "" {
		return nil, fmt.Errorf("%w: agent_id is required", ErrInvalidInput)
	}

	agent, err := s.GetAgent(ctx, input.UserID, input.AgentID)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("llm.model", agent.Model))

	settings, err := decodeSettings(agent.Settings)
	if err != nil {
		s.logger.Warn("ignoring invalid agent settings", zap.String("agent_id", agent.ID), zap.Error(err))
		settings = AgentSettings{}
	}

	conv, isNew, err := s.resolveConversation(ctx, input.UserID, agent.ID, input.ConversationID, message)
	if err != nil {
		return nil, err
	}

	var history []models.Message
	if !isNew {
		history, err = s.messages.ListMessages(ctx, conv.ID, settings.historyLimit())
		if err != nil {
			return nil, fmt.Errorf("load history: %w", err)
		}
	}

	req := llm.Request{
		Model:    agent.Model,
		Messages: buildPrompt(agent, history, message, settings),
		Options:  settings.options(s.cfg.Model),
	}

	userAt := s.now()
	var resp *llm.Response
	if input.Stream {
		resp, err = s.llm.Stream(ctx, req, input.OnToken)
	} else {
		resp, err = s.llm.Complete(ctx, req)
	}
	if err != nil {
		return nil, err
	}

	// New conversations are stored only once the model has answered.
	if isNew {
		if err := s.store.CreateConversation(ctx, conv); err != nil {
			return nil, fmt.Errorf("create conversation: %w", err)
		}
	}

	replyAt := s.now()
	reply := models.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		Role:           models.RoleAssistant,
		Content:        resp.Content,
		Metadata: map[string]any{
			"model":         resp.Model,
			"provider":      resp.Provider,
			"finish_reason": resp.FinishReason,
			"total_tokens":  resp.Usage.TotalTokens,
		},
		CreatedAt: replyAt,
	}
	err = s.messages.AppendMessages(ctx,
		models.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			Role:           models.RoleUser,
			Content:        message,
			Metadata:       map[string]any{},
			CreatedAt:      userAt,
		},
		reply,
	)
	if err != nil {
		return nil, fmt.Errorf("save messages: %w", err)
	}
	if err := s.store.TouchConversation(ctx, conv.ID, replyAt); err != nil {
		s.logger.Warn("failed to touch conversation", zap.String("conversation_id", conv.ID), zap.Error(err))
	}

	return &ChatResult{
		ConversationID: conv.ID,
		AgentID:        agent.ID,
		MessageID:      reply.ID,
		Response:       resp.Content,
		Model:          resp.Model,
		Usage:          resp.Usage,
		Timestamp:      replyAt,
	}, nil
}

// resolveConversation loads the caller's conversation, or prepares an unsaved
// one when conversationID is empty.
func (s *AgentService) resolveConversation(ctx context.Context, userID, agentID, conversationID, message string) (*models.Conversation, bool, error) {
	if conversationID = strings.TrimSpace(conversationID); conversationID != "" {
		conv, err := s.ownedConversation(ctx, userID, conversationID)
		if err != nil {
			return nil, false, err
		}
		if conv.AgentID != agentID {
			return nil, false, fmt.Errorf("%w: conversation belongs to another agent", ErrInvalidInput)
		}
		return conv, false, nil
	}

	if limit := s.cfg.Agents.MaxConversationsPerUser; limit > 0 {
		count, err := s.store.CountConversationsByUser(ctx, userID)
		if err != nil {
			return nil, false, fmt.Errorf("count conversations: %w", err)
		}
		if count >= limit {
			return nil, false, fmt.Errorf("%w: at most %d conversations per user", ErrConversationLimit, limit)
		}
	}

	now := s.now()
	return &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		AgentID:   agentID,
		Title:     conversationTitle(message),
		CreatedAt: now,
		UpdatedAt: now,
	}, true, nil
}

func (s *AgentService) ownedConversation(ctx context.Context, userID, conversationID string) (*models.Conversation, error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	if conv.UserID != userID {
		return nil, ErrConversationNotFound
	}
	return conv, nil
}

func (s *AgentService) ListConversations(ctx context.Context, userID string, page Page) ([]models.Conversation, error) {
	page = page.normalize()
	convs, err := s.store.ListConversationsByUser(ctx, userID, page.Limit, page.Offset)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

func (s *AgentService) GetConversation(ctx context.Context, userID, conversationID string) (*ConversationDetail, error) {
	conv, err := s.ownedConversation(ctx, userID, conversationID)
	if err != nil {
		return nil, err
	}

	messages, err := s.messages.ListMessages(ctx, conv.ID, 0)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if messages == nil {
		messages = []models.Message{}
	}

	return &ConversationDetail{Conversation: *conv, Messages: messages}, nil
}

func (s *AgentService) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if _, err := s.ownedConversation(ctx, userID, conversationID); err != nil {
		return err
	}
	if err := s.messages.DeleteMessages(ctx, conversationID); err != nil {
		return fmt.Errorf("delete messages: %w", err)
	}
	if err := s.store.DeleteConversation(ctx, conversationID); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

// HealthCheck pings the primary store.
func (s *AgentService) HealthCheck(ctx context.Context) (bool, error) {
	if err := s.store.Ping(ctx); err != nil {
		return false, err
	}
	return true, nil
}
