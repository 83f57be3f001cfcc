package services

import (
	"fmt"

	"github.com/mitchellh/mapstructure"

	"github.com/wuwenbin0122/agent-platform/internal/llm"
	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

const (
	defaultHistoryLimit     = 50
	defaultSummaryThreshold = 20
	defaultRecentKeep       = 8
)

// AgentSettings is the typed view of the free-form settings stored on an
// agent. Unknown keys are kept on the agent but ignored here.
type AgentSettings struct {
	Temperature      *float64 `json:"temperature"`
	MaxTokens        *int     `json:"max_tokens"`
	TopP             *float64 `json:"top_p"`
	FrequencyPenalty *float64 `json:"frequency_penalty"`
	PresencePenalty  *float64 `json:"presence_penalty"`
	HistoryLimit     int      `json:"history_limit"`
	SummaryThreshold int      `json:"summary_threshold"`
	RecentKeep       int      `json:"recent_keep"`
}

func decodeSettings(raw map[string]any) (AgentSettings, error) {
	var settings AgentSettings
	if len(raw) == 0 {
		return settings, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &settings,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return settings, err
	}
	if err := decoder.Decode(raw); err != nil {
		return settings, fmt.Errorf("%w: settings: %v", ErrInvalidInput, err)
	}

	return settings, settings.validate()
}

func (s AgentSettings) validate() error {
	check := func(name string, value *float64, min, max float64) error {
		if value != nil && (*value < min || *value > max) {
			return fmt.Errorf("%w: %s must be between %g and %g", ErrInvalidInput, name, min, max)
		}
		return nil
	}

	if err := check("temperature", s.Temperature, 0, 2); err != nil {
		return err
	}
	if err := check("top_p", s.TopP, 0, 1); err != nil {
		return err
	}
	if err := check("frequency_penalty", s.FrequencyPenalty, -2, 2); err != nil {
		return err
	}
	if err := check("presence_penalty", s.PresencePenalty, -2, 2); err != nil {
		return err
	}
	if s.MaxTokens != nil && *s.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidInput)
	}
	if s.HistoryLimit < 0 || s.SummaryThreshold < 0 || s.RecentKeep < 0 {
		return fmt.Errorf("%w: history settings must not be negative", ErrInvalidInput)
	}
	return nil
}

// options merges the agent overrides over the configured model defaults.
// A zero config default is left unset; an agent override is always sent.
func (s AgentSettings) options(defaults utils.ModelConfig) llm.Options {
	return llm.Options{
		Temperature:      pick(s.Temperature, defaults.Temperature),
		MaxTokens:        pick(s.MaxTokens, defaults.MaxTokens),
		TopP:             pick(s.TopP, defaults.TopP),
		FrequencyPenalty: pick(s.FrequencyPenalty, defaults.FrequencyPenalty),
		PresencePenalty:  pick(s.PresencePenalty, defaults.PresencePenalty),
	}
}

func pick[T float64 | int](override *T, fallback T) *T {
	if override != nil {
		v := *override
		return &v
	}
	if fallback == 0 {
		return nil
	}
	return &fallback
}

func (s AgentSettings) historyLimit() int {
	if s.HistoryLimit > 0 {
		return s.HistoryLimit
	}
	return defaultHistoryLimit
}

func (s AgentSettings) summaryThreshold() int {
	if s.SummaryThreshold > 0 {
		return s.SummaryThreshold
	}
	return defaultSummaryThreshold
}

func (s AgentSettings) recentKeep() int {
	if s.RecentKeep > 0 {
		return s.RecentKeep
	}
	return defaultRecentKeep
}
