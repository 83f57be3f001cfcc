package models

import "time"

// Agent is a named prompt/model/tool configuration owned by a user.
type Agent struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	Name         string         `json:"name"`
	Description  string         `json:"description"`
	SystemPrompt string         `json:"system_prompt"`
	Model        string         `json:"model"`
	Tools        []string       `json:"tools"`
	Settings     map[string]any `json:"settings"`
	IsPublic     bool           `json:"is_public"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
