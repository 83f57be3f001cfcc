package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wuwenbin0122/agent-platform/internal/models"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

type Postgres struct {
	Pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, cfg utils.DatabaseConfig) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns >= 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.HealthCheckPeriod > 0 {
		poolConfig.HealthCheckPeriod = cfg.HealthCheckPeriod
	}

	ctx, cancel := context.WithTimeout(ctx, timeoutOrDefault(cfg.ConnectTimeout))
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}

	return &Postgres{Pool: pool}, nil
}

func (p *Postgres) Close() {
	if p == nil || p.Pool == nil {
		return
	}
	p.Pool.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	if p == nil || p.Pool == nil {
		return fmt.Errorf("postgres: pool not initialised")
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return p.Pool.Ping(ctx)
}

func (p *Postgres) CreateUser(ctx context.Context, user *models.User) error {
	const query = `INSERT INTO users (id, username, email, password_hash, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := p.Pool.Exec(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		return translateUserError(err)
	}
	return nil
}

func (p *Postgres) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, username, email, password_hash, created_at, updated_at FROM users WHERE id = $1`
	return p.scanUser(p.Pool.QueryRow(ctx, query, id))
}

func (p *Postgres) GetUserByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	const query = `SELECT id, username, email, password_hash, created_at, updated_at FROM users
		WHERE lower(username) = lower($1) OR (email <> '' AND lower(email) = lower($1))
		LIMIT 1`
	return p.scanUser(p.Pool.QueryRow(ctx, query, identifier))
}

func (p *Postgres) UpdateUser(ctx context.Context, user *models.User) error {
	const query = `UPDATE users SET username = $2, email = $3, password_hash = $4, updated_at = $5 WHERE id = $1`

	tag, err := p.Pool.Exec(ctx, query, user.ID, user.Username, user.Email, user.PasswordHash, user.UpdatedAt)
	if err != nil {
		return translateUserError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *Postgres) scanUser(row pgx.Row) (*models.User, error) {
	var user models.User
	if err := row.Scan(&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("postgres query user: %w", err)
	}
	return &user, nil
}

const agentColumns = `id, user_id, name, description, system_prompt, model, tools, settings, is_public, created_at, updated_at`

func (p *Postgres) CreateAgent(ctx context.Context, agent *models.Agent) error {
	tools, settings, err := encodeAgentJSON(agent)
	if err != nil {
		return err
	}

	query := `INSERT INTO agents (` + agentColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err = p.Pool.Exec(ctx, query,
		agent.ID, agent.UserID, agent.Name, agent.Description, agent.SystemPrompt, agent.Model,
		tools, settings, agent.IsPublic, agent.CreatedAt, agent.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres insert agent: %w", err)
	}
	return nil
}

func (p *Postgres) GetAgent(ctx context.Context, id string) (*models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE id = $1`
	return scanAgent(p.Pool.QueryRow(ctx, query, id))
}

func (p *Postgres) ListAgentsByUser(ctx context.Context, userID string) ([]models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE user_id = $1 ORDER BY created_at DESC`
	return p.queryAgents(ctx, query, userID)
}

func (p *Postgres) CountAgentsByUser(ctx context.Context, userID string) (int, error) {
	var count int
	if err := p.Pool.QueryRow(ctx, `SELECT count(*) FROM agents WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres count agents: %w", err)
	}
	return count, nil
}

func (p *Postgres) ListPublicAgents(ctx context.Context, limit, offset int) ([]models.Agent, error) {
	query := `SELECT ` + agentColumns + ` FROM agents WHERE is_public ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	return p.queryAgents(ctx, query, limit, offset)
}

func (p *Postgres) SetAgentVisibility(ctx context.Context, id string, public bool) error {
	tag, err := p.Pool.Exec(ctx, `UPDATE agents SET is_public = $2, updated_at = NOW() WHERE id = $1`, id, public)
	if err != nil {
		return fmt.Errorf("postgres update agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteAgent(ctx context.Context, id string) error {
	tag, err := p.Pool.Exec(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres delete agent: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *Postgres) queryAgents(ctx context.Context, query string, args ...any) ([]models.Agent, error) {
	rows, err := p.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres query agents: %w", err)
	}
	defer rows.Close()

	agents := make([]models.Agent, 0)
	for rows.Next() {
		agent, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *agent)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres query agents: %w", err)
	}
	return agents, nil
}

func scanAgent(row pgx.Row) (*models.Agent, error) {
	var (
		agent    models.Agent
		tools    []byte
		settings []byte
	)
	err := row.Scan(
		&agent.ID, &agent.UserID, &agent.Name, &agent.Description, &agent.SystemPrompt, &agent.Model,
		&tools, &settings, &agent.IsPublic, &agent.CreatedAt, &agent.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("postgres scan agent: %w", err)
	}

	if len(tools) > 0 {
		if err := json.Unmarshal(tools, &agent.Tools); err != nil {
			return nil, fmt.Errorf("decode agent tools: %w", err)
		}
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &agent.Settings); err != nil {
			return nil, fmt.Errorf("decode agent settings: %w", err)
		}
	}
	if agent.Tools == nil {
		agent.Tools = []string{}
	}
	if agent.Settings == nil {
		agent.Settings = map[string]any{}
	}

	return &agent, nil
}

func encodeAgentJSON(agent *models.Agent) ([]byte, []byte, error) {
	tools := agent.Tools
	if tools == nil {
		tools = []string{}
	}
	settings := agent.Settings
	if settings == nil {
		settings = map[string]any{}
	}

	toolsJSON, err := json.Marshal(tools)
	if err != nil {
		return nil, nil, fmt.Errorf("encode agent tools: %w", err)
	}
	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, nil, fmt.Errorf("encode agent settings: %w", err)
	}
	return toolsJSON, settingsJSON, nil
}

const conversationColumns = `id, user_id, agent_id, title, created_at, updated_at`

func (p *Postgres) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	query := `INSERT INTO conversations (` + conversationColumns + `) VALUES ($1, $2, $3, $4, $5, $6)`
	if _, err := p.Pool.Exec(ctx, query, conv.ID, conv.UserID, conv.AgentID, conv.Title, conv.CreatedAt, conv.UpdatedAt); err != nil {
		return fmt.Errorf("postgres insert conversation: %w", err)
	}
	return nil
}

func (p *Postgres) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE id = $1`
	err := p.Pool.QueryRow(ctx, query, id).Scan(&conv.ID, &conv.UserID, &conv.AgentID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrNotFound
		}
		return nil, fmt.Errorf("postgres query conversation: %w", err)
	}
	return &conv, nil
}

func (p *Postgres) ListConversationsByUser(ctx context.Context, userID string, limit, offset int) ([]models.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE user_id = $1 ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
	rows, err := p.Pool.Query(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("postgres query conversations: %w", err)
	}
	defer rows.Close()

	result := make([]models.Conversation, 0)
	for rows.Next() {
		var conv models.Conversation
		if err := rows.Scan(&conv.ID, &conv.UserID, &conv.AgentID, &conv.Title, &conv.CreatedAt, &conv.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres scan conversation: %w", err)
		}
		result = append(result, conv)
	}
	return result, rows.Err()
}

// ConversationIDsByAgent lists every conversation held with an agent.
func (p *Postgres) ConversationIDsByAgent(ctx context.Context, agentID string) ([]string, error) {
	rows, err := p.Pool.Query(ctx, `SELECT id FROM conversations WHERE agent_id = $1`, agentID)
	if err != nil {
		return nil, fmt.Errorf("postgres query conversation ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres scan conversation ids: %w", err)
	}
	return ids, nil
}

func (p *Postgres) CountConversationsByUser(ctx context.Context, userID string) (int, error) {
	var count int
	if err := p.Pool.QueryRow(ctx, `SELECT count(*) FROM conversations WHERE user_id = $1`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres count conversations: %w", err)
	}
	return count, nil
}

func (p *Postgres) TouchConversation(ctx context.Context, id string, at time.Time) error {
	tag, err := p.Pool.Exec(ctx, `UPDATE conversations SET updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("postgres touch conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *Postgres) DeleteConversation(ctx context.Context, id string) error {
	tag, err := p.Pool.Exec(ctx, `DELETE FROM conversations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (p *Postgres) AppendMessages(ctx context.Context, messages ...models.Message) error {
	if len(messages) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, msg := range messages {
		metadata, err := json.Marshal(nonNilMap(msg.Metadata))
		if err != nil {
			return fmt.Errorf("encode message metadata: %w", err)
		}
		batch.Queue(
			`INSERT INTO messages (id, conversation_id, role, content, metadata, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			msg.ID, msg.ConversationID, msg.Role, msg.Content, metadata, msg.CreatedAt,
		)
	}

	if err := p.Pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("postgres insert messages: %w", err)
	}
	return nil
}

// ListMessages returns the newest limit messages in chronological order.
func (p *Postgres) ListMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	query := `SELECT id, conversation_id, role, content, metadata, created_at FROM (
			SELECT * FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`

	var limitArg any
	if limit > 0 {
		limitArg = limit
	}

	rows, err := p.Pool.Query(ctx, query, conversationID, limitArg)
	if err != nil {
		return nil, fmt.Errorf("postgres query messages: %w", err)
	}
	defer rows.Close()

	result := make([]models.Message, 0)
	for rows.Next() {
		var (
			msg      models.Message
			metadata []byte
		)
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &metadata, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("postgres scan message: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &msg.Metadata); err != nil {
				return nil, fmt.Errorf("decode message metadata: %w", err)
			}
		}
		result = append(result, msg)
	}
	return result, rows.Err()
}

func (p *Postgres) DeleteMessages(ctx context.Context, conversationID string) error {
	if _, err := p.Pool.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID); err != nil {
		return fmt.Errorf("postgres delete messages: %w", err)
	}
	return nil
}

func translateUserError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
		if pgErr.ConstraintName == "users_email_key" {
			return models.ErrDuplicateEmail
		}
		return models.ErrDuplicateUsername
	}
	return fmt.Errorf("postgres write user: %w", err)
}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func timeoutOrDefault(value time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return 10 * time.Second
}
