package main

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/wuwenbin0122/agent-platform/internal/auth"
	"github.com/wuwenbin0122/agent-platform/internal/db"
	"github.com/wuwenbin0122/agent-platform/internal/models"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

const marketplaceUser = "marketplace"

type seedAgent struct {
	name         string
	description  string
	systemPrompt string
	model        string
	tools        []string
	settings     map[string]any
}

// Seeds public starter agents owned by a dedicated marketplace account.
func main() {
	_ = godotenv.Load()

	cfg, err := utils.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if cfg.Database.InMemory() {
		log.Fatalf("seeding needs a postgres DATABASE_URL")
	}

	ctx := context.Background()

	if err := db.Migrate(cfg.Database.URL); err != nil {
		log.Fatalf("migrate: %v", err)
	}

	store, err := db.NewPostgres(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer store.Close()

	owner, err := ensureOwner(ctx, store, cfg)
	if err != nil {
		log.Fatalf("marketplace user: %v", err)
	}

	agents := []seedAgent{
		{
			name:         "Research Assistant",
			description:  "Summarises sources and answers questions with citations.",
			systemPrompt: "You are a careful research assistant. Cite the sources you rely on and flag uncertainty.",
			model:        cfg.Agents.DefaultModel,
			tools:        []string{"web_search"},
			settings:     map[string]any{"temperature": 0.3},
		},
		{
			name:         "Code Reviewer",
			description:  "Reviews code for bugs, readability and test coverage.",
			systemPrompt: "You review code. Point out bugs first, then readability issues, then missing tests.",
			model:        cfg.Agents.DefaultModel,
			settings:     map[string]any{"temperature": 0.2, "max_tokens": 1500},
		},
		{
			name:         "Writing Coach",
			description:  "Helps tighten prose and structure documents.",
			systemPrompt: "You are a writing coach. Suggest concrete edits and explain each briefly.",
			model:        cfg.Agents.DefaultModel,
			settings:     map[string]any{"temperature": 0.7},
		},
		{
			name:         "Socratic Tutor",
			description:  "Teaches by asking guiding questions instead of giving answers.",
			systemPrompt: "You are a tutor who answers with two or three open questions before offering a short summary.",
			model:        cfg.Agents.DefaultModel,
			settings:     map[string]any{"temperature": 0.6},
		},
	}

	existing, err := store.ListAgentsByUser(ctx, owner.ID)
	if err != nil {
		log.Fatalf("list existing agents: %v", err)
	}
	seen := make(map[string]bool, len(existing))
	for _, a := range existing {
		seen[a.Name] = true
	}

	created := 0
	for _, a := range agents {
		if seen[a.name] {
			log.Printf("skip %s: already seeded", a.name)
			continue
		}

		now := time.Now().UTC()
		tools := a.tools
		if tools == nil {
			tools = []string{}
		}
		agent := &models.Agent{
			ID:           uuid.NewString(),
			UserID:       owner.ID,
			Name:         a.name,
			Description:  a.description,
			SystemPrompt: a.systemPrompt,
			Model:        a.model,
			Tools:        tools,
			Settings:     a.settings,
			IsPublic:     true,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := store.CreateAgent(ctx, agent); err != nil {
			log.Fatalf("insert agent %s: %v", a.name, err)
		}
		created++
	}

	log.Printf("seeded %d agents for %s", created, marketplaceUser)
}

func ensureOwner(ctx context.Context, store *db.Postgres, cfg *utils.Config) (*models.User, error) {
	user, err := store.GetUserByIdentifier(ctx, marketplaceUser)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return nil, err
	}

	authService, err := auth.NewService(store, auth.Options{
		Secret:            cfg.Security.SecretKey,
		Algorithm:         cfg.Security.Algorithm,
		BcryptCost:        cfg.Security.BcryptRounds,
		PasswordMinLength: cfg.Security.PasswordMinLength,
	})
	if err != nil {
		return nil, err
	}

	result, err := authService.Register(ctx, auth.RegisterInput{
		Username: marketplaceUser,
		Password: uuid.NewString(),
	})
	if err != nil {
		return nil, err
	}
	return &result.User, nil
}
