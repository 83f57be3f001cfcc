package llm

import (
	"context"
	"errors"
)

var (
	ErrNoProvider    = errors.New("llm: no provider configured for model")
	ErrEmptyResponse = errors.New("llm: provider returned no choices")
)

type Message struct {
	Role    string
	Content string
}

// Options carries the sampling parameters sent with every request. Nil
// fields are omitted and the provider default applies; an explicit zero is sent.
type Options struct {
	Temperature      *float64
	MaxTokens        *int
	TopP             *float64
	FrequencyPenalty *float64
	PresencePenalty  *float64
}

type Request struct {
	Model    string
	Messages []Message
	Options  Options
}

type Usage struct {
	PromptTokens     int64 `json:"prompt_tokens"`
	CompletionTokens int64 `json:"completion_tokens"`
	TotalTokens      int64 `json:"total_tokens"`
}

type Response struct {
	Content      string
	Model        string
	Provider     string
	FinishReason string
	Usage        Usage
}

// Client is the surface the agent service depends on.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	Stream(ctx context.Context, req Request, onToken func(string)) (*Response, error)
	HealthCheck(ctx context.Context) (bool, error)
	Supports(model string) bool
}
