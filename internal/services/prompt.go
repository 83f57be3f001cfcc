package services

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/wuwenbin0122/agent-platform/internal/llm"
	"github.com/wuwenbin0122/agent-platform/internal/models"
)

const (
	maxSummaryRuneLength = 160
	maxTitleRuneLength   = 60
)

var toolDescriptions = map[string]string{
	"web_search":      "search the web for current information",
	"code_execution":  "run code snippets",
	"file_operations": "read and write files",
	"browser":         "browse web pages",
}

func buildSystemPrompt(agent *models.Agent) string {
	var builder strings.Builder

	base := strings.TrimSpace(agent.SystemPrompt)
	if base == "" {
		base = fmt.Sprintf("You are %s, a helpful assistant.", agent.Name)
	}
	builder.WriteString(base)

	if len(agent.Tools) > 0 {
		builder.WriteString("\n\nAvailable tools:")
		for _, tool := range agent.Tools {
			if desc, ok := toolDescriptions[tool]; ok {
				builder.WriteString(fmt.Sprintf("\n- %s: %s", tool, desc))
			} else {
				builder.WriteString("\n- " + tool)
			}
		}
	}

	return builder.String()
}

// buildPrompt assembles system prompt, summarised older turns, recent turns
// and the new user message in that order.
func buildPrompt(agent *models.Agent, history []models.Message, message string, settings AgentSettings) []llm.Message {
	summary, recent := splitHistory(history, settings.summaryThreshold(), settings.recentKeep(), agent.Name)

	prompt := make([]llm.Message, 0, len(recent)+3)
	prompt = append(prompt, llm.Message{Role: models.RoleSystem, Content: buildSystemPrompt(agent)})
	if summary != "" {
		prompt = append(prompt, llm.Message{Role: models.RoleSystem, Content: "Conversation summary:\n" + summary})
	}
	prompt = append(prompt, recent...)
	prompt = append(prompt, llm.Message{Role: models.RoleUser, Content: message})

	return prompt
}

func splitHistory(history []models.Message, threshold, recentKeep int, assistantName string) (string, []llm.Message) {
	cleaned := make([]llm.Message, 0, len(history))
	for _, msg := range history {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		role := strings.TrimSpace(msg.Role)
		if role == "" {
			role = models.RoleUser
		}
		cleaned = append(cleaned, llm.Message{Role: role, Content: content})
	}

	if threshold <= 0 || len(cleaned) <= threshold {
		return "", cleaned
	}

	if recentKeep <= 0 {
		recentKeep = defaultRecentKeep
	}
	if recentKeep > len(cleaned) {
		recentKeep = len(cleaned)
	}

	cutoff := len(cleaned) - recentKeep
	summary := summariseMessages(cleaned[:cutoff], assistantName)
	preserved := append([]llm.Message(nil), cleaned[cutoff:]...)

	return summary, preserved
}

func summariseMessages(messages []llm.Message, assistantName string) string {
	if len(messages) == 0 {
		return ""
	}

	var builder strings.Builder
	for i, msg := range messages {
		builder.WriteString(fmt.Sprintf("%d. %s: %s\n", i+1, labelForRole(msg.Role, assistantName), truncateRunes(msg.Content, maxSummaryRuneLength)))
	}

	return strings.TrimSpace(builder.String())
}

func labelForRole(role, assistantName string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case models.RoleAssistant:
		if strings.TrimSpace(assistantName) != "" {
			return assistantName
		}
		return "Assistant"
	case models.RoleSystem:
		return "System"
	case "tool":
		return "Tool"
	default:
		return "User"
	}
}

func truncateRunes(input string, max int) string {
	if max <= 0 || utf8.RuneCountInString(input) <= max {
		return input
	}

	var builder strings.Builder
	count := 0
	for _, r := range input {
		if count >= max {
			builder.WriteRune('…')
			break
		}
		builder.WriteRune(r)
		count++
	}
	return builder.String()
}

func conversationTitle(message string) string {
	title := strings.Join(strings.Fields(message), " ")
	return truncateRunes(title, maxTitleRuneLength)
}
