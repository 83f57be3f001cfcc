package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

// Router dispatches requests to a provider chosen by model name.
type Router struct {
	providers map[string]*Provider
	timeout   time.Duration
	logger    *zap.Logger
}

type RouterOptions struct {
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// NewRouter builds a provider for every vendor with an API key. OpenAI is
// always present since its key is required.
func NewRouter(cfg *utils.Config, opts RouterOptions) *Router {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	r := &Router{
		providers: make(map[string]*Provider),
		timeout:   opts.Timeout,
		logger:    logger,
	}

	add := func(name, apiKey, baseURL, org string) {
		if strings.TrimSpace(apiKey) == "" {
			return
		}
		r.providers[name] = NewProvider(ProviderConfig{
			Name:         name,
			APIKey:       apiKey,
			BaseURL:      baseURL,
			Organization: org,
			MaxRetries:   opts.MaxRetries,
			HTTPClient:   opts.HTTPClient,
		})
	}

	add(ProviderOpenAI, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.Organization)
	add(ProviderAnthropic, cfg.Anthropic.APIKey, cfg.Anthropic.BaseURL, "")
	add(ProviderGoogle, cfg.GoogleAI.APIKey, cfg.GoogleAI.BaseURL, "")

	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	logger.Info("llm providers configured", zap.Strings("providers", names))

	return r
}

// ProviderFor maps a model name to the vendor serving it.
func ProviderFor(model string) string {
	m := strings.ToLower(strings.TrimSpace(model))
	switch {
	case strings.HasPrefix(m, "claude"):
		return ProviderAnthropic
	case strings.HasPrefix(m, "gemini"):
		return ProviderGoogle
	default:
		return ProviderOpenAI
	}
}

func (r *Router) Supports(model string) bool {
	_, ok := r.providers[ProviderFor(model)]
	return ok
}

func (r *Router) provider(model string) (*Provider, error) {
	name := ProviderFor(model)
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrNoProvider, model, name)
	}
	return p, nil
}

func (r *Router) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, r.timeout)
}

func (r *Router) Complete(ctx context.Context, req Request) (*Response, error) {
	p, err := r.provider(req.Model)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	start := time.Now()
	resp, err := p.Complete(ctx, req)
	if err != nil {
		r.logger.Error("llm completion failed", zap.String("provider", p.Name()), zap.String("model", req.Model), zap.Error(err))
		return nil, fmt.Errorf("%s completion: %w", p.Name(), err)
	}

	r.logger.Debug("llm completion",
		zap.String("provider", p.Name()),
		zap.String("model", resp.Model),
		zap.Int64("total_tokens", resp.Usage.TotalTokens),
		zap.Duration("latency", time.Since(start)),
	)
	return resp, nil
}

func (r *Router) Stream(ctx context.Context, req Request, onToken func(string)) (*Response, error) {
	p, err := r.provider(req.Model)
	if err != nil {
		return nil, err
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	resp, err := p.Stream(ctx, req, onToken)
	if err != nil {
		r.logger.Error("llm stream failed", zap.String("provider", p.Name()), zap.String("model", req.Model), zap.Error(err))
		return nil, fmt.Errorf("%s stream: %w", p.Name(), err)
	}
	return resp, nil
}

// HealthCheck reports healthy only when every configured provider answers.
func (r *Router) HealthCheck(ctx context.Context) (bool, error) {
	if len(r.providers) == 0 {
		return false, ErrNoProvider
	}

	ctx, cancel := r.withTimeout(ctx)
	defer cancel()

	var errs []error
	for name, p := range r.providers {
		if err := p.Ping(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return false, errors.Join(errs...)
	}
	return true, nil
}
