// Package config loads nexus configuration from an optional YAML file and
// NEXUS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/custodia-labs/nexus/internal/chunking"
	"github.com/custodia-labs/nexus/internal/core/domain"
	"github.com/custodia-labs/nexus/internal/core/services"
)

// Config is the complete process configuration.
type Config struct {
	Server    ServerConfig         `koanf:"server"`
	Database  DatabaseConfig       `koanf:"database"`
	Redis     RedisConfig          `koanf:"redis"`
	Queue     QueueConfig          `koanf:"queue"`
	Vector    VectorConfig         `koanf:"vector"`
	Embedding EmbeddingConfig      `koanf:"embedding"`
	LLM       LLMConfig            `koanf:"llm"`
	Chunking  chunking.Config      `koanf:"chunking"`
	Retrieval RetrievalConfig      `koanf:"retrieval"`
	Composer  ComposerConfig       `koanf:"composer"`
	Retry     services.RetryPolicy `koanf:"retry"`
	Ingestion IngestionConfig      `koanf:"ingestion"`
	Slack     SlackConfig          `koanf:"slack"`
	Storage   StorageConfig        `koanf:"storage"`
	Worker    WorkerConfig         `koanf:"worker"`
	Auth      AuthConfig           `koanf:"auth"`
	Log       LogConfig            `koanf:"log"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	Port              int           `koanf:"port"`
	MaxBodyBytes      int64         `koanf:"max_body_bytes"`
	QueryTimeout      time.Duration `koanf:"query_timeout"`
	ReadTimeout       time.Duration `koanf:"read_timeout"`
	WriteTimeout      time.Duration `koanf:"write_timeout"`
	RateLimit         float64       `koanf:"rate_limit"`
	RateBurst         int           `koanf:"rate_burst"`
	TrustProxyHeaders bool          `koanf:"trust_proxy_headers"`
}

// DatabaseConfig configures the PostgreSQL catalog. An empty URL keeps
// documents and chunks in process memory.
type DatabaseConfig struct {
	URL             Secret        `koanf:"url"`
	MaxOpenConns    int           `koanf:"max_open_conns"`
	MaxIdleConns    int           `koanf:"max_idle_conns"`
	ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
}

// RedisConfig configures dedup, locking and the default task queue. An
// empty URL falls back to in-process equivalents.
type RedisConfig struct {
	URL       Secret `koanf:"url"`
	Namespace string `koanf:"namespace"`
}

// QueueConfig selects the task queue backend: redis, postgres or memory.
type QueueConfig struct {
	Backend string `koanf:"backend"`
}

// VectorConfig selects and configures the vector index: qdrant or chromem.
type VectorConfig struct {
	Backend         string `koanf:"backend"`
	Collection      string `koanf:"collection"`
	QdrantHost      string `koanf:"qdrant_host"`
	QdrantPort      int    `koanf:"qdrant_port"`
	QdrantAPIKey    Secret `koanf:"qdrant_api_key"`
	QdrantTLS       bool   `koanf:"qdrant_tls"`
	ChromemPath     string `koanf:"chromem_path"`
	ChromemCompress bool   `koanf:"chromem_compress"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	Provider          string  `koanf:"provider"`
	Model             string  `koanf:"model"`
	APIKey            Secret  `koanf:"api_key"`
	BaseURL           string  `koanf:"base_url"`
	Dimensions        int     `koanf:"dimensions"`
	MaxInputChars     int     `koanf:"max_input_chars"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// LLMConfig configures the answer model.
type LLMConfig struct {
	Provider          string  `koanf:"provider"`
	Model             string  `koanf:"model"`
	APIKey            Secret  `koanf:"api_key"`
	BaseURL           string  `koanf:"base_url"`
	RequestsPerSecond float64 `koanf:"requests_per_second"`
}

// RetrievalConfig bounds k and sets the relevance threshold.
type RetrievalConfig struct {
	DefaultK int     `koanf:"default_k"`
	MaxK     int     `koanf:"max_k"`
	MinScore float64 `koanf:"min_score"`
}

// ComposerConfig sets the prompt budget and generation parameters.
type ComposerConfig struct {
	ContextTokens int     `koanf:"context_tokens"`
	AnswerTokens  int     `koanf:"answer_tokens"`
	Temperature   float64 `koanf:"temperature"`
}

// IngestionConfig tunes the ingestion pipeline.
type IngestionConfig struct {
	Concurrency     int           `koanf:"concurrency"`
	UpsertBatchSize int           `koanf:"upsert_batch_size"`
	LockTTL         time.Duration `koanf:"lock_ttl"`
	// RescanInterval schedules a storage rescan; zero disables it
	RescanInterval time.Duration `koanf:"rescan_interval"`
}

// SlackConfig configures the webhook and outbound posting.
type SlackConfig struct {
	SigningSecret     Secret        `koanf:"signing_secret"`
	BotToken          Secret        `koanf:"bot_token"`
	Command           string        `koanf:"command"`
	ReplayWindow      time.Duration `koanf:"replay_window"`
	APIBaseURL        string        `koanf:"api_base_url"`
	ResponseURLHosts  []string      `koanf:"response_url_hosts"`
	RequestsPerSecond float64       `koanf:"requests_per_second"`
	PostRetryDelay    time.Duration `koanf:"post_retry_delay"`
}

// StorageConfig points at the document directory.
type StorageConfig struct {
	Root          string        `koanf:"root"`
	MaxObjectSize int64         `koanf:"max_object_size"`
	Watch         bool          `koanf:"watch"`
	SettleDelay   time.Duration `koanf:"settle_delay"`
	// LinkBaseURL turns citations into links: <base>/<document id>#page=<n>
	LinkBaseURL string `koanf:"link_base_url"`
}

// WorkerConfig tunes the task worker.
type WorkerConfig struct {
	Concurrency    int           `koanf:"concurrency"`
	DequeueTimeout int           `koanf:"dequeue_timeout"`
	IngestTimeout  time.Duration `koanf:"ingest_timeout"`
	SlackTimeout   time.Duration `koanf:"slack_timeout"`
	ScanTimeout    time.Duration `koanf:"scan_timeout"`
}

// AuthConfig configures API bearer tokens. An empty secret disables
// authentication on /documents and /query.
type AuthConfig struct {
	JWTSecret Secret        `koanf:"jwt_secret"`
	Issuer    string        `koanf:"issuer"`
	TokenTTL  time.Duration `koanf:"token_ttl"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Default returns a configuration that runs a single process with
// in-memory stores against a local Ollama.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			MaxBodyBytes: 1 << 20,
			QueryTimeout: 60 * time.Second,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 90 * time.Second,
			RateLimit:    5,
			RateBurst:    20,
		},
		Database: DatabaseConfig{
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Redis: RedisConfig{Namespace: "nexus"},
		Queue: QueueConfig{Backend: "memory"},
		Vector: VectorConfig{
			Backend:    "chromem",
			Collection: "nexus_chunks",
			QdrantPort: 6334,
		},
		Embedding: EmbeddingConfig{
			Provider:      string(domain.AIProviderOllama),
			Model:         "nomic-embed-text",
			BaseURL:       "http://localhost:11434",
			Dimensions:    768,
			MaxInputChars: 30000,
		},
		LLM: LLMConfig{
			Provider: string(domain.AIProviderOllama),
			Model:    "llama3.1",
			BaseURL:  "http://localhost:11434",
		},
		Chunking: chunking.DefaultConfig(),
		Retrieval: RetrievalConfig{
			DefaultK: services.DefaultTopK,
			MaxK:     services.MaxTopK,
			MinScore: services.DefaultMinScore,
		},
		Composer: ComposerConfig{
			ContextTokens: services.DefaultContextTokens,
			AnswerTokens:  services.DefaultAnswerTokens,
			Temperature:   services.DefaultTemperature,
		},
		Retry: services.DefaultRetryPolicy(),
		Ingestion: IngestionConfig{
			Concurrency:     4,
			UpsertBatchSize: 64,
			LockTTL:         10 * time.Minute,
		},
		Slack: SlackConfig{
			Command:           services.DefaultSlashCommand,
			ReplayWindow:      services.DefaultReplayWindow,
			APIBaseURL:        "https://slack.com/api",
			ResponseURLHosts:  []string{"hooks.slack.com"},
			RequestsPerSecond: 1,
			PostRetryDelay:    time.Second,
		},
		Storage: StorageConfig{
			Root:          "./data/inbox",
			MaxObjectSize: 100 << 20,
			SettleDelay:   2 * time.Second,
		},
		Worker: WorkerConfig{
			Concurrency:    2,
			DequeueTimeout: 5,
			IngestTimeout:  10 * time.Minute,
			SlackTimeout:   2 * time.Minute,
			ScanTimeout:    5 * time.Minute,
		},
		Auth: AuthConfig{
			Issuer:   "nexus",
			TokenTTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate checks ranges and cross-field requirements.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be positive"))
	}

	switch c.Queue.Backend {
	case "redis":
		if !c.Redis.URL.IsSet() {
			errs = append(errs, errors.New("queue.backend redis requires redis.url"))
		}
	case "postgres":
		if !c.Database.URL.IsSet() {
			errs = append(errs, errors.New("queue.backend postgres requires database.url"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("queue.backend must be redis, postgres or memory, got %q", c.Queue.Backend))
	}

	switch c.Vector.Backend {
	case "qdrant":
		if c.Vector.QdrantHost == "" {
			errs = append(errs, errors.New("vector.backend qdrant requires vector.qdrant_host"))
		}
	case "chromem":
	default:
		errs = append(errs, fmt.Errorf("vector.backend must be qdrant or chromem, got %q", c.Vector.Backend))
	}

	if err := validateProvider("embedding", c.EmbeddingSettings().Provider, c.EmbeddingSettings().IsConfigured()); err != nil {
		errs = append(errs, err)
	}
	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("embedding.model is required"))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, errors.New("embedding.dimensions must be positive"))
	}
	if err := validateProvider("llm", c.LLMSettings().Provider, c.LLMSettings().IsConfigured()); err != nil {
		errs = append(errs, err)
	}
	if c.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	if err := c.Chunking.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Retrieval.DefaultK < 1 || c.Retrieval.DefaultK > c.Retrieval.MaxK {
		errs = append(errs, fmt.Errorf("retrieval.default_k must be 1-%d, got %d", c.Retrieval.MaxK, c.Retrieval.DefaultK))
	}
	if c.Retrieval.MinScore < 0 || c.Retrieval.MinScore > 1 {
		errs = append(errs, fmt.Errorf("retrieval.min_score must be 0-1, got %v", c.Retrieval.MinScore))
	}
	if c.Composer.ContextTokens <= 0 || c.Composer.AnswerTokens <= 0 {
		errs = append(errs, errors.New("composer token budgets must be positive"))
	}
	if c.Retry.MaxAttempts < 1 {
		errs = append(errs, errors.New("retry.max_attempts must be at least 1"))
	}

	if c.Slack.ReplayWindow <= 0 {
		errs = append(errs, errors.New("slack.replay_window must be positive"))
	}
	if c.Worker.Concurrency < 1 {
		errs = append(errs, errors.New("worker.concurrency must be at least 1"))
	}
	if c.Auth.JWTSecret.IsSet() && len(c.Auth.JWTSecret.Value()) < 32 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 32 bytes"))
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

func validateProvider(section string, p domain.AIProvider, configured bool) error {
	if !p.IsValid() {
		return fmt.Errorf("%s.provider must be openai, openai_compatible or ollama, got %q", section, p)
	}
	if !configured {
		return fmt.Errorf("%s.api_key is required for provider %s", section, p)
	}
	return nil
}

// EmbeddingSettings converts the section to provider settings.
func (c *Config) EmbeddingSettings() *domain.EmbeddingSettings {
	return &domain.EmbeddingSettings{
		Provider:          domain.AIProvider(c.Embedding.Provider),
		Model:             c.Embedding.Model,
		APIKey:            c.Embedding.APIKey.Value(),
		BaseURL:           c.Embedding.BaseURL,
		Dimensions:        c.Embedding.Dimensions,
		MaxInputChars:     c.Embedding.MaxInputChars,
		RequestsPerSecond: c.Embedding.RequestsPerSecond,
	}
}

// LLMSettings converts the section to provider settings.
func (c *Config) LLMSettings() *domain.LLMSettings {
	return &domain.LLMSettings{
		Provider:          domain.AIProvider(c.LLM.Provider),
		Model:             c.LLM.Model,
		APIKey:            c.LLM.APIKey.Value(),
		BaseURL:           c.LLM.BaseURL,
		RequestsPerSecond: c.LLM.RequestsPerSecond,
	}
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("log.level must be debug, info, warn or error, got %q", level)
}
