package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/wuwenbin0122/agent-platform/internal/models"
)

func TestMemoryUsersAreCaseInsensitive(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	if err := store.CreateUser(ctx, &models.User{ID: "u1", Username: "Alice", Email: "Alice@Example.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if err := store.CreateUser(ctx, &models.User{ID: "u2", Username: "alice"}); !errors.Is(err, models.ErrDuplicateUsername) {
		t.Fatalf("expected duplicate username, got %v", err)
	}
	if err := store.CreateUser(ctx, &models.User{ID: "u3", Username: "bob", Email: "alice@example.com"}); !errors.Is(err, models.ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}

	user, err := store.GetUserByIdentifier(ctx, "ALICE@example.com")
	if err != nil || user.ID != "u1" {
		t.Fatalf("expected lookup by email to find u1, got %v (%v)", user, err)
	}
}

func TestMemoryMessagesReturnNewestInOrder(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	for i, content := range []string{"a", "b", "c"} {
		_ = store.AppendMessages(ctx, models.Message{
			ConversationID: "c1",
			Content:        content,
			CreatedAt:      time.Unix(int64(i), 0),
		})
	}

	messages, _ := store.ListMessages(ctx, "c1", 2)
	if len(messages) != 2 || messages[0].Content != "b" || messages[1].Content != "c" {
		t.Fatalf("unexpected messages: %+v", messages)
	}

	all, _ := store.ListMessages(ctx, "c1", 0)
	if len(all) != 3 {
		t.Fatalf("expected all 3 messages, got %d", len(all))
	}
}

func TestMemoryDeleteAgentCascades(t *testing.T) {
	store := NewMemory()
	ctx := context.Background()

	_ = store.CreateAgent(ctx, &models.Agent{ID: "a1", UserID: "u1"})
	_ = store.CreateConversation(ctx, &models.Conversation{ID: "c1", UserID: "u1", AgentID: "a1"})
	_ = store.AppendMessages(ctx, models.Message{ConversationID: "c1", Content: "x"})

	if err := store.DeleteAgent(ctx, "a1"); err != nil {
		t.Fatalf("delete agent: %v", err)
	}
	if _, err := store.GetConversation(ctx, "c1"); !errors.Is(err, models.ErrNotFound) {
		t.Fatalf("expected conversation removed, got %v", err)
	}
	if msgs, _ := store.ListMessages(ctx, "c1", 0); len(msgs) != 0 {
		t.Fatalf("expected messages removed, got %d", len(msgs))
	}
}

func TestPageBounds(t *testing.T) {
	items := []int{1, 2, 3, 4}
	if got := page(items, 2, 1); len(got) != 2 || got[0] != 2 {
		t.Fatalf("unexpected page: %v", got)
	}
	if got := page(items, 2, 10); len(got) != 0 {
		t.Fatalf("expected empty page, got %v", got)
	}
}
