package utils

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/docker/go-units"
)

// MemoryDatabaseURL selects the in-process store instead of Postgres.
const MemoryDatabaseURL = "memory://"

type Config struct {
	App         AppConfig
	CORS        CORSConfig
	Database    DatabaseConfig
	Mongo       MongoConfig
	Redis       RedisConfig
	Security    SecurityConfig
	Session     SessionConfig
	OpenAI      OpenAIConfig
	Anthropic   AnthropicConfig
	GoogleAI    GoogleAIConfig
	Pinecone    PineconeConfig
	Weaviate    WeaviateConfig
	Chroma      ChromaConfig
	LangChain   LangChainConfig
	AWS         AWSConfig
	SMTP        SMTPConfig
	Celery      CeleryConfig
	RateLimit   RateLimitConfig
	Monitoring  MonitoringConfig
	Upload      UploadConfig
	Agents      AgentsConfig
	WebSocket   WebSocketConfig
	Logging     LoggingConfig
	Performance PerformanceConfig
	Tools       ToolsConfig
	Search      SearchConfig
	ExternalAPI ExternalAPIConfig
	Model       ModelConfig
	Embedding   EmbeddingConfig
	Dev         DevConfig
	Metrics     MetricsConfig
	Health      HealthConfig
	Backup      BackupConfig
	Features    FeatureFlags
	Timeouts    TimeoutConfig
	Queue       QueueConfig
	Cache       CacheConfig
}

type AppConfig struct {
	Name      string
	Version   string
	Debug     bool
	Host      string
	Port      int
	StaticDir string
}

// Addr returns the listen address for the HTTP server.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

type CORSConfig struct {
	AllowedOrigins   []string
	AllowCredentials bool
	AllowMethods     []string
	AllowHeaders     []string
}

type DatabaseConfig struct {
	URL               string
	Echo              bool
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
	ConnectTimeout    time.Duration
}

// InMemory reports whether the memory store was requested.
func (d DatabaseConfig) InMemory() bool {
	return strings.EqualFold(d.URL, MemoryDatabaseURL)
}

type MongoConfig struct {
	URI            string
	Database       string
	ConnectTimeout time.Duration
}

type RedisConfig struct {
	URL string
}

type SecurityConfig struct {
	SecretKey         string
	Algorithm         string
	AccessTokenExpire time.Duration
	BcryptRounds      int
	PasswordMinLength int
}

type SessionConfig struct {
	CookieName     string
	CookieHTTPOnly bool
	CookieSecure   bool
}

type OpenAIConfig struct {
	APIKey       string
	Organization string
	Model        string
	BaseURL      string
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

type GoogleAIConfig struct {
	APIKey  string
	BaseURL string
}

type PineconeConfig struct {
	APIKey      string
	Environment string
	IndexName   string
}

type WeaviateConfig struct {
	URL    string
	APIKey string
}

type ChromaConfig struct {
	Host string
	Port int
}

type LangChainConfig struct {
	TracingV2 bool
	Endpoint  string
	APIKey    string
	Project   string
}

type AWSConfig struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	S3Bucket        string
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

type CeleryConfig struct {
	BrokerURL     string
	ResultBackend string
}

type RateLimitConfig struct {
	Enabled   bool
	PerMinute int
}

type MonitoringConfig struct {
	SentryDSN string
}

type UploadConfig struct {
	MaxFileSize int64
	Dir         string
}

type AgentsConfig struct {
	DefaultModel            string
	MaxAgentsPerUser        int
	MaxConversationsPerUser int
}

type WebSocketConfig struct {
	PingInterval time.Duration
	PingTimeout  time.Duration
}

type LoggingConfig struct {
	Level        string
	Encoding     string
	Format       string
	Development  bool
	EnableCaller bool
	ServiceName  string
	Version      string
	File         string
}

type PerformanceConfig struct {
	WorkerProcesses int
	KeepAlive       time.Duration
}

type ToolsConfig struct {
	EnableWebSearch      bool
	EnableCodeExecution  bool
	EnableFileOperations bool
	PlaywrightEnabled    bool
}

type SearchConfig struct {
	SerperAPIKey  string
	SerpAPIAPIKey string
}

type ExternalAPIConfig struct {
	HuggingFaceAPIKey string
	CohereAPIKey      string
}

type ModelConfig struct {
	Temperature      float64
	MaxTokens        int
	TopP             float64
	FrequencyPenalty float64
	PresencePenalty  float64
}

type EmbeddingConfig struct {
	Model        string
	ChunkSize    int
	ChunkOverlap int
}

type DevConfig struct {
	ReloadOnChange bool
	AutoReload     bool
}

type MetricsConfig struct {
	Enabled bool
	Port    int
}

type HealthConfig struct {
	CheckInterval time.Duration
}

type BackupConfig struct {
	Enabled   bool
	Interval  time.Duration
	Retention int
}

type FeatureFlags struct {
	Marketplace       bool
	TeamCollaboration bool
	AdvancedAnalytics bool
	CustomModels      bool
}

type TimeoutConfig struct {
	HTTP      time.Duration
	LLM       time.Duration
	WebSocket time.Duration
}

type QueueConfig struct {
	MaxSize int
	Timeout time.Duration
}

type CacheConfig struct {
	TTL     time.Duration
	MaxSize int
}

var errMaxFileSize = errors.New("MAX_FILE_SIZE must be a byte count or a size such as 10MB")

func LoadConfig() (*Config, error) {
	debug := parseBool(os.Getenv("DEBUG"), false)
	appName := envOrDefault("APP_NAME", "AI Agent Platform")
	appVersion := envOrDefault("APP_VERSION", "1.0.0")

	maxFileSize, err := parseSize(envOrDefault("MAX_FILE_SIZE", "10485760"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		App: AppConfig{
			Name:      appName,
			Version:   appVersion,
			Debug:     debug,
			Host:      envOrDefault("HOST", "0.0.0.0"),
			Port:      parseInt(os.Getenv("PORT"), 8000),
			StaticDir: envOrDefault("STATIC_DIR", "static"),
		},
		CORS: CORSConfig{
			AllowedOrigins:   parseList(os.Getenv("ALLOWED_ORIGINS"), []string{"http://localhost:3000", "http://localhost:8000", "https://localhost:3000"}),
			AllowCredentials: parseBool(os.Getenv("CORS_ALLOW_CREDENTIALS"), true),
			AllowMethods:     parseList(os.Getenv("CORS_ALLOW_METHODS"), []string{"*"}),
			AllowHeaders:     parseList(os.Getenv("CORS_ALLOW_HEADERS"), []string{"*"}),
		},
		Database: DatabaseConfig{
			URL:               NormalizeDatabaseURL(os.Getenv("DATABASE_URL")),
			Echo:              parseBool(os.Getenv("DATABASE_ECHO"), false),
			MaxConns:          int32(parseInt(os.Getenv("DATABASE_MAX_CONNS"), 8)),
			MinConns:          int32(parseInt(os.Getenv("DATABASE_MIN_CONNS"), 1)),
			MaxConnLifetime:   parseDuration(os.Getenv("DATABASE_MAX_CONN_LIFETIME"), time.Hour),
			MaxConnIdleTime:   parseDuration(os.Getenv("DATABASE_MAX_CONN_IDLE"), 30*time.Minute),
			HealthCheckPeriod: parseDuration(os.Getenv("DATABASE_HEALTH_CHECK_PERIOD"), time.Minute),
			ConnectTimeout:    parseDuration(os.Getenv("DATABASE_CONNECT_TIMEOUT"), 5*time.Second),
		},
		Mongo: MongoConfig{
			URI:            strings.TrimSpace(os.Getenv("MONGO_URI")),
			Database:       envOrDefault("MONGO_DATABASE", "agent_platform"),
			ConnectTimeout: parseDuration(os.Getenv("MONGO_CONNECT_TIMEOUT"), 5*time.Second),
		},
		Redis: RedisConfig{
			URL: envOrDefault("REDIS_URL", "redis://localhost:6379"),
		},
		Security: SecurityConfig{
			SecretKey:         strings.TrimSpace(os.Getenv("SECRET_KEY")),
			Algorithm:         strings.ToUpper(envOrDefault("ALGORITHM", "HS256")),
			AccessTokenExpire: time.Duration(parseInt(os.Getenv("ACCESS_TOKEN_EXPIRE_MINUTES"), 30)) * time.Minute,
			BcryptRounds:      parseInt(os.Getenv("BCRYPT_ROUNDS"), 12),
			PasswordMinLength: parseInt(os.Getenv("PASSWORD_MIN_LENGTH"), 8),
		},
		Session: SessionConfig{
			CookieName:     envOrDefault("SESSION_COOKIE_NAME", "session"),
			CookieHTTPOnly: parseBool(os.Getenv("SESSION_COOKIE_HTTPONLY"), true),
			CookieSecure:   parseBool(os.Getenv("SESSION_COOKIE_SECURE"), true),
		},
		OpenAI: OpenAIConfig{
			APIKey:       strings.TrimSpace(os.Getenv("OPENAI_API_KEY")),
			Organization: strings.TrimSpace(os.Getenv("OPENAI_ORGANIZATION")),
			Model:        envOrDefault("OPENAI_MODEL", "gpt-4"),
			BaseURL:      strings.TrimSpace(os.Getenv("OPENAI_BASE_URL")),
		},
		Anthropic: AnthropicConfig{
			APIKey:  strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")),
			BaseURL: envOrDefault("ANTHROPIC_BASE_URL", "https://api.anthropic.com/v1/"),
		},
		GoogleAI: GoogleAIConfig{
			APIKey:  strings.TrimSpace(os.Getenv("GOOGLE_AI_API_KEY")),
			BaseURL: envOrDefault("GOOGLE_AI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta/openai/"),
		},
		Pinecone: PineconeConfig{
			APIKey:      strings.TrimSpace(os.Getenv("PINECONE_API_KEY")),
			Environment: strings.TrimSpace(os.Getenv("PINECONE_ENVIRONMENT")),
			IndexName:   envOrDefault("PINECONE_INDEX_NAME", "ai-agent-platform"),
		},
		Weaviate: WeaviateConfig{
			URL:    strings.TrimRight(strings.TrimSpace(os.Getenv("WEAVIATE_URL")), "/"),
			APIKey: strings.TrimSpace(os.Getenv("WEAVIATE_API_KEY")),
		},
		Chroma: ChromaConfig{
			Host: envOrDefault("CHROMA_HOST", "localhost"),
			Port: parseInt(os.Getenv("CHROMA_PORT"), 8000),
		},
		LangChain: LangChainConfig{
			TracingV2: parseBool(os.Getenv("LANGCHAIN_TRACING_V2"), false),
			Endpoint:  strings.TrimSpace(os.Getenv("LANGCHAIN_ENDPOINT")),
			APIKey:    strings.TrimSpace(os.Getenv("LANGCHAIN_API_KEY")),
			Project:   strings.TrimSpace(os.Getenv("LANGCHAIN_PROJECT")),
		},
		AWS: AWSConfig{
			AccessKeyID:     strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID")),
			SecretAccessKey: strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY")),
			Region:          envOrDefault("AWS_REGION", "us-east-1"),
			S3Bucket:        strings.TrimSpace(os.Getenv("AWS_S3_BUCKET")),
		},
		SMTP: SMTPConfig{
			Host:     strings.TrimSpace(os.Getenv("SMTP_HOST")),
			Port:     parseInt(os.Getenv("SMTP_PORT"), 587),
			User:     strings.TrimSpace(os.Getenv("SMTP_USER")),
			Password: os.Getenv("SMTP_PASSWORD"),
		},
		Celery: CeleryConfig{
			BrokerURL:     envOrDefault("CELERY_BROKER_URL", "redis://localhost:6379/0"),
			ResultBackend: envOrDefault("CELERY_RESULT_BACKEND", "redis://localhost:6379/0"),
		},
		RateLimit: RateLimitConfig{
			Enabled:   parseBool(os.Getenv("RATE_LIMIT_ENABLED"), true),
			PerMinute: parseInt(os.Getenv("RATE_LIMIT_PER_MINUTE"), 100),
		},
		Monitoring: MonitoringConfig{
			SentryDSN: strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		},
		Upload: UploadConfig{
			MaxFileSize: maxFileSize,
			Dir:         envOrDefault("UPLOAD_DIR", "uploads"),
		},
		Agents: AgentsConfig{
			DefaultModel:            envOrDefault("DEFAULT_AGENT_MODEL", "gpt-4"),
			MaxAgentsPerUser:        parseInt(os.Getenv("MAX_AGENTS_PER_USER"), 10),
			MaxConversationsPerUser: parseInt(os.Getenv("MAX_CONVERSATIONS_PER_USER"), 100),
		},
		WebSocket: WebSocketConfig{
			PingInterval: parseSeconds(os.Getenv("WEBSOCKET_PING_INTERVAL"), 30),
			PingTimeout:  parseSeconds(os.Getenv("WEBSOCKET_PING_TIMEOUT"), 10),
		},
		Logging: LoggingConfig{
			Level:        strings.ToLower(envOrDefault("LOG_LEVEL", "info")),
			Encoding:     strings.ToLower(envOrDefault("LOG_ENCODING", "json")),
			Format:       envOrDefault("LOG_FORMAT", "%(asctime)s - %(name)s - %(levelname)s - %(message)s"),
			Development:  debug,
			EnableCaller: parseBool(os.Getenv("LOG_CALLER"), debug),
			ServiceName:  envOrDefault("SERVICE_NAME", appName),
			Version:      appVersion,
			File:         strings.TrimSpace(os.Getenv("LOG_FILE")),
		},
		Performance: PerformanceConfig{
			WorkerProcesses: parseInt(os.Getenv("WORKER_PROCESSES"), 1),
			KeepAlive:       parseSeconds(os.Getenv("KEEP_ALIVE"), 2),
		},
		Tools: ToolsConfig{
			EnableWebSearch:      parseBool(os.Getenv("ENABLE_WEB_SEARCH"), true),
			EnableCodeExecution:  parseBool(os.Getenv("ENABLE_CODE_EXECUTION"), false),
			EnableFileOperations: parseBool(os.Getenv("ENABLE_FILE_OPERATIONS"), true),
			PlaywrightEnabled:    parseBool(os.Getenv("PLAYWRIGHT_ENABLED"), false),
		},
		Search: SearchConfig{
			SerperAPIKey:  strings.TrimSpace(os.Getenv("SERPER_API_KEY")),
			SerpAPIAPIKey: strings.TrimSpace(os.Getenv("SERPAPI_API_KEY")),
		},
		ExternalAPI: ExternalAPIConfig{
			HuggingFaceAPIKey: strings.TrimSpace(os.Getenv("HUGGING_FACE_API_KEY")),
			CohereAPIKey:      strings.TrimSpace(os.Getenv("COHERE_API_KEY")),
		},
		Model: ModelConfig{
			Temperature:      parseFloat(os.Getenv("MODEL_TEMPERATURE"), 0.7),
			MaxTokens:        parseInt(os.Getenv("MODEL_MAX_TOKENS"), 4000),
			TopP:             parseFloat(os.Getenv("MODEL_TOP_P"), 1.0),
			FrequencyPenalty: parseFloat(os.Getenv("MODEL_FREQUENCY_PENALTY"), 0),
			PresencePenalty:  parseFloat(os.Getenv("MODEL_PRESENCE_PENALTY"), 0),
		},
		Embedding: EmbeddingConfig{
			Model:        envOrDefault("EMBEDDING_MODEL", "text-embedding-ada-002"),
			ChunkSize:    parseInt(os.Getenv("EMBEDDING_CHUNK_SIZE"), 1000),
			ChunkOverlap: parseInt(os.Getenv("EMBEDDING_CHUNK_OVERLAP"), 200),
		},
		Dev: DevConfig{
			ReloadOnChange: parseBool(os.Getenv("RELOAD_ON_CHANGE"), false),
			AutoReload:     parseBool(os.Getenv("AUTO_RELOAD"), false),
		},
		Metrics: MetricsConfig{
			Enabled: parseBool(os.Getenv("ENABLE_METRICS"), true),
			Port:    parseInt(os.Getenv("METRICS_PORT"), 9090),
		},
		Health: HealthConfig{
			CheckInterval: parseSeconds(os.Getenv("HEALTH_CHECK_INTERVAL"), 60),
		},
		Backup: BackupConfig{
			Enabled:   parseBool(os.Getenv("BACKUP_ENABLED"), false),
			Interval:  parseSeconds(os.Getenv("BACKUP_INTERVAL"), 86400),
			Retention: parseInt(os.Getenv("BACKUP_RETENTION"), 7),
		},
		Features: FeatureFlags{
			Marketplace:       parseBool(os.Getenv("FEATURE_MARKETPLACE"), true),
			TeamCollaboration: parseBool(os.Getenv("FEATURE_TEAM_COLLABORATION"), true),
			AdvancedAnalytics: parseBool(os.Getenv("FEATURE_ADVANCED_ANALYTICS"), true),
			CustomModels:      parseBool(os.Getenv("FEATURE_CUSTOM_MODELS"), false),
		},
		Timeouts: TimeoutConfig{
			HTTP:      parseSeconds(os.Getenv("HTTP_TIMEOUT"), 30),
			LLM:       parseSeconds(os.Getenv("LLM_TIMEOUT"), 120),
			WebSocket: parseSeconds(os.Getenv("WEBSOCKET_TIMEOUT"), 300),
		},
		Queue: QueueConfig{
			MaxSize: parseInt(os.Getenv("QUEUE_MAX_SIZE"), 1000),
			Timeout: parseSeconds(os.Getenv("QUEUE_TIMEOUT"), 60),
		},
		Cache: CacheConfig{
			TTL:     parseSeconds(os.Getenv("CACHE_TTL"), 3600),
			MaxSize: parseInt(os.Getenv("CACHE_MAX_SIZE"), 1000),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	missing := make([]string, 0, 3)

	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if c.Security.SecretKey == "" {
		missing = append(missing, "SECRET_KEY")
	}

	if c.OpenAI.APIKey == "" {
		missing = append(missing, "OPENAI_API_KEY")
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	switch c.Security.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("unsupported ALGORITHM %q", c.Security.Algorithm)
	}

	return nil
}

// NormalizeDatabaseURL strips SQLAlchemy driver suffixes so that
// "postgresql+asyncpg://..." becomes a URL pgx understands.
func NormalizeDatabaseURL(raw string) string {
	raw = strings.TrimSpace(raw)
	scheme, rest, ok := strings.Cut(raw, "://")
	if !ok {
		return raw
	}

	if base, _, found := strings.Cut(scheme, "+"); found {
		scheme = base
	}
	if scheme == "postgresql" {
		scheme = "postgres"
	}

	return scheme + "://" + rest
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func parseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func parseSeconds(value string, fallback int) time.Duration {
	return time.Duration(parseInt(value, fallback)) * time.Second
}

func parseInt(value string, fallback int) int {
	i, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return i
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return v
}

func parseList(value string, fallback []string) []string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func parseSize(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return n, nil
	}

	size, err := units.FromHumanSize(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errMaxFileSize, err)
	}
	return size, nil
}
