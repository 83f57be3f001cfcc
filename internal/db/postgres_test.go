package db_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/wuwenbin0122/agent-platform/internal/db"
	"github.com/wuwenbin0122/agent-platform/internal/models"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

func TestPostgresMigrateAndCRUD(t *testing.T) {
	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TEST_POSTGRES_DSN not set; skipping postgres integration test")
	}

	if err := db.Migrate(dsn); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	store, err := db.NewPostgres(context.Background(), utils.DatabaseConfig{
		URL:            dsn,
		ConnectTimeout: 5 * time.Second,
	})
	if err != nil {
		t.Fatalf("failed to connect to postgres: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Millisecond)

	user := &models.User{
		ID:           uuid.NewString(),
		Username:     "user_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		PasswordHash: "hash",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		t.Fatalf("failed to insert user: %v", err)
	}
	defer store.Pool.Exec(ctx, "DELETE FROM users WHERE id = $1", user.ID)

	dup := *user
	dup.ID = uuid.NewString()
	dup.Username = strings.ToUpper(user.Username)
	if err := store.CreateUser(ctx, &dup); !errors.Is(err, models.ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username error, got %v", err)
	}

	agent := &models.Agent{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Name:      "researcher",
		Model:     "gpt-4",
		Tools:     []string{"web_search"},
		Settings:  map[string]any{"temperature": 0.2},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateAgent(ctx, agent); err != nil {
		t.Fatalf("failed to insert agent: %v", err)
	}

	fetched, err := store.GetAgent(ctx, agent.ID)
	if err != nil {
		t.Fatalf("failed to fetch agent: %v", err)
	}
	if len(fetched.Tools) != 1 || fetched.Tools[0] != "web_search" {
		t.Fatalf("unexpected tools: %v", fetched.Tools)
	}
	if fetched.Settings["temperature"] != 0.2 {
		t.Fatalf("unexpected settings: %v", fetched.Settings)
	}

	conv := &models.Conversation{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		AgentID:   agent.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateConversation(ctx, conv); err != nil {
		t.Fatalf("failed to insert conversation: %v", err)
	}

	err = store.AppendMessages(ctx,
		models.Message{ID: uuid.NewString(), ConversationID: conv.ID, Role: models.RoleUser, Content: "hello", CreatedAt: now},
		models.Message{ID: uuid.NewString(), ConversationID: conv.ID, Role: models.RoleAssistant, Content: "hi", CreatedAt: now.Add(time.Second)},
	)
	if err != nil {
		t.Fatalf("failed to insert messages: %v", err)
	}

	messages, err := store.ListMessages(ctx, conv.ID, 1)
	if err != nil {
		t.Fatalf("failed to list messages: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hi" {
		t.Fatalf("expected newest message only, got %+v", messages)
	}
}
