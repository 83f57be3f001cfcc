package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

type fakeEndpoint struct {
	mu       sync.Mutex
	requests []map[string]any
}

func (f *fakeEndpoint) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/chat/completions", func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)

		var payload map[string]any
		require.NoError(t, json.Unmarshal(body, &payload))

		f.mu.Lock()
		f.requests = append(f.requests, payload)
		f.mu.Unlock()

		model, _ := payload["model"].(string)
		if stream, _ := payload["stream"].(bool); stream {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, token := range []string{"Hel", "lo"} {
				fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":%q,\"choices\":[{\"index\":0,\"delta\":{\"role\":\"assistant\",\"content\":%q},\"finish_reason\":null}]}\n\n", model, token)
			}
			fmt.Fprintf(w, "data: {\"id\":\"c1\",\"object\":\"chat.completion.chunk\",\"created\":1,\"model\":%q,\"choices\":[{\"index\":0,\"delta\":{},\"finish_reason\":\"stop\"}]}\n\n", model)
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"id":"c1","object":"chat.completion","created":1,"model":%q,"choices":[{"index":0,"message":{"role":"assistant","content":"hi there"},"finish_reason":"stop"}],"usage":{"prompt_tokens":3,"completion_tokens":2,"total_tokens":5}}`, model)
	})
	mux.HandleFunc("/models", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"object":"list","data":[{"id":"gpt-4","object":"model","created":1,"owned_by":"test"}]}`)
	})
	return mux
}

func newTestRouter(t *testing.T, openaiURL, anthropicURL string) *Router {
	cfg := &utils.Config{}
	cfg.OpenAI.APIKey = "sk-test"
	cfg.OpenAI.BaseURL = openaiURL
	if anthropicURL != "" {
		cfg.Anthropic.APIKey = "anthropic-test"
		cfg.Anthropic.BaseURL = anthropicURL
	}
	return NewRouter(cfg, RouterOptions{MaxRetries: 0})
}

func TestProviderFor(t *testing.T) {
	require.Equal(t, ProviderAnthropic, ProviderFor("claude-3-opus"))
	require.Equal(t, ProviderGoogle, ProviderFor("Gemini-1.5-pro"))
	require.Equal(t, ProviderOpenAI, ProviderFor("gpt-4"))
	require.Equal(t, ProviderOpenAI, ProviderFor(""))
}

func TestRouterCompleteSendsOptions(t *testing.T) {
	endpoint := &fakeEndpoint{}
	srv := httptest.NewServer(endpoint.handler(t))
	defer srv.Close()

	router := newTestRouter(t, srv.URL, "")

	resp, err := router.Complete(context.Background(), Request{
		Model: "gpt-4",
		Messages: []Message{
			{Role: "system", Content: "be brief"},
			{Role: "user", Content: "hello"},
		},
		Options: Options{Temperature: floatPtr(0.5), MaxTokens: intPtr(64)},
	})
	require.NoError(t, err)
	require.Equal(t, "hi there", resp.Content)
	require.Equal(t, ProviderOpenAI, resp.Provider)
	require.EqualValues(t, 5, resp.Usage.TotalTokens)

	require.Len(t, endpoint.requests, 1)
	sent := endpoint.requests[0]
	require.Equal(t, 0.5, sent["temperature"])
	require.EqualValues(t, 64, sent["max_tokens"])
	_, hasTopP := sent["top_p"]
	require.False(t, hasTopP)

	messages := sent["messages"].([]any)
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].(map[string]any)["role"])
}

func TestRouterSendsExplicitZeroOptions(t *testing.T) {
	endpoint := &fakeEndpoint{}
	srv := httptest.NewServer(endpoint.handler(t))
	defer srv.Close()

	router := newTestRouter(t, srv.URL, "")

	_, err := router.Complete(context.Background(), Request{
		Model:    "gpt-4",
		Messages: []Message{{Role: "user", Content: "hello"}},
		Options:  Options{Temperature: floatPtr(0), TopP: floatPtr(0), PresencePenalty: floatPtr(0)},
	})
	require.NoError(t, err)

	require.Len(t, endpoint.requests, 1)
	sent := endpoint.requests[0]
	for _, key := range []string{"temperature", "top_p", "presence_penalty"} {
		value, ok := sent[key]
		require.True(t, ok, "expected %s to be sent", key)
		require.EqualValues(t, 0, value)
	}
	_, hasMaxTokens := sent["max_tokens"]
	require.False(t, hasMaxTokens)
}

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int) *int { return &v }

func TestRouterStreamDeliversTokens(t *testing.T) {
	endpoint := &fakeEndpoint{}
	srv := httptest.NewServer(endpoint.handler(t))
	defer srv.Close()

	router := newTestRouter(t, srv.URL, "")

	var tokens []string
	resp, err := router.Stream(context.Background(), Request{
		Model:    "gpt-4",
		Messages: []Message{{Role: "user", Content: "hello"}},
	}, func(token string) {
		tokens = append(tokens, token)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Hel", "lo"}, tokens)
	require.Equal(t, "Hello", resp.Content)
	require.Equal(t, "stop", resp.FinishReason)
}

func TestRouterRoutesByModelPrefix(t *testing.T) {
	openaiEndpoint := &fakeEndpoint{}
	openaiSrv := httptest.NewServer(openaiEndpoint.handler(t))
	defer openaiSrv.Close()

	anthropicEndpoint := &fakeEndpoint{}
	anthropicSrv := httptest.NewServer(anthropicEndpoint.handler(t))
	defer anthropicSrv.Close()

	router := newTestRouter(t, openaiSrv.URL, anthropicSrv.URL)

	resp, err := router.Complete(context.Background(), Request{
		Model:    "claude-3-5-sonnet",
		Messages: []Message{{Role: "user", Content: "hello"}},
	})
	require.NoError(t, err)
	require.Equal(t, ProviderAnthropic, resp.Provider)
	require.Len(t, anthropicEndpoint.requests, 1)
	require.Empty(t, openaiEndpoint.requests)

	require.False(t, router.Supports("gemini-pro"))
	_, err = router.Complete(context.Background(), Request{Model: "gemini-pro"})
	require.True(t, errors.Is(err, ErrNoProvider))
}

func TestRouterHealthCheck(t *testing.T) {
	endpoint := &fakeEndpoint{}
	srv := httptest.NewServer(endpoint.handler(t))
	defer srv.Close()

	healthy, err := newTestRouter(t, srv.URL, "").HealthCheck(context.Background())
	require.NoError(t, err)
	require.True(t, healthy)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer down.Close()

	healthy, err = newTestRouter(t, down.URL, "").HealthCheck(context.Background())
	require.Error(t, err)
	require.False(t, healthy)
}
