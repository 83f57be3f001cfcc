package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/wuwenbin0122/agent-platform/internal/utils"
)

const defaultProbeTimeout = 10 * time.Second

const (
	BackendPinecone = "pinecone"
	BackendWeaviate = "weaviate"
	BackendChroma   = "chroma"
)

var ErrClosed = errors.New("vector: service closed")

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Service checks the readiness of the configured vector database.
type Service struct {
	backend string
	probe   probe
	client  httpDoer
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
}

type probe struct {
	url     string
	headers map[string]string
}

type Option func(*Service)

// WithHTTPClient overrides the client used for readiness probes.
func WithHTTPClient(client httpDoer) Option {
	return func(s *Service) {
		s.client = client
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService prefers Pinecone when it has an API key, then Weaviate when it
// has a URL, and falls back to Chroma.
func NewService(cfg *utils.Config, opts ...Option) *Service {
	timeout := cfg.Timeouts.HTTP
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}

	s := &Service{
		client: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: zap.NewNop(),
	}

	switch {
	case strings.TrimSpace(cfg.Pinecone.APIKey) != "":
		s.backend = BackendPinecone
		s.probe = probe{
			url:     "https://api.pinecone.io/indexes/" + url.PathEscape(cfg.Pinecone.IndexName),
			headers: map[string]string{"Api-Key": cfg.Pinecone.APIKey},
		}
	case strings.TrimSpace(cfg.Weaviate.URL) != "":
		s.backend = BackendWeaviate
		headers := map[string]string{}
		if cfg.Weaviate.APIKey != "" {
			headers["Authorization"] = "Bearer " + cfg.Weaviate.APIKey
		}
		s.probe = probe{
			url:     strings.TrimRight(cfg.Weaviate.URL, "/") + "/v1/.well-known/ready",
			headers: headers,
		}
	default:
		s.backend = BackendChroma
		s.probe = probe{
			url: "http://" + cfg.Chroma.Host + ":" + strconv.Itoa(cfg.Chroma.Port) + "/api/v2/heartbeat",
		}
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Service) Backend() string {
	return s.backend
}

// Initialize probes the backend once. A failed probe is logged, not fatal.
func (s *Service) Initialize(ctx context.Context) {
	if ok, err := s.HealthCheck(ctx); !ok {
		s.logger.Warn("vector database not reachable", zap.String("backend", s.backend), zap.Error(err))
		return
	}
	s.logger.Info("vector database ready", zap.String("backend", s.backend))
}

func (s *Service) HealthCheck(ctx context.Context) (bool, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false, ErrClosed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.probe.url, nil)
	if err != nil {
		return false, err
	}
	for key, value := range s.probe.headers {
		req.Header.Set(key, value)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("%s probe: %w", s.backend, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return false, buildProbeError(s.backend, resp.StatusCode, body)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return true, nil
}

func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
}

type probeErrorBody struct {
	Error   any    `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

func buildProbeError(backend string, statusCode int, body []byte) error {
	var decoded probeErrorBody
	if err := json.Unmarshal(body, &decoded); err == nil {
		if msg := strings.TrimSpace(decoded.Message); msg != "" {
			return fmt.Errorf("%s probe (%d): %s", backend, statusCode, msg)
		}
		if msg, ok := decoded.Error.(string); ok && strings.TrimSpace(msg) != "" {
			return fmt.Errorf("%s probe (%d): %s", backend, statusCode, strings.TrimSpace(msg))
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("%s probe (%d): %s", backend, statusCode, snippet)
}
