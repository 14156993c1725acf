package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     string
	LogLevel string
	NodeID   int64

	DB       DBConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Retry    RetryConfig
	Webhook  WebhookConfig
	GitHub   GitHubConfig
	Analyzer AnalyzerConfig
	LLM      LLMConfig
	Tracking TrackingConfig
	PR       PRConfig
	OTel     OTelConfig
}

type DBConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver       string
	DSN          string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	URL      string
	Stream   string
	Group    string
	Consumer string
}

type QueueConfig struct {
	// Backend is "memory" or "redis".
	Backend           string
	MaxSize           int
	Workers           int
	PollTimeout       time.Duration
	ReconcileInterval time.Duration
	ReconcileBatch    int
}

type RetryConfig struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Multiplier float64
}

type WebhookConfig struct {
	Secret      string
	MaxBodySize int64
}

type GitHubConfig struct {
	Token   string
	Owner   string
	Repo    string
	BaseURL string
}

type AnalyzerConfig struct {
	SecurityRulesPath string
	CheckAuthor       bool
	MinAccountAge     time.Duration
	MinContributions  int
	FlagDefaultAvatar bool
}

type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type TrackingConfig struct {
	StatePath string
}

type PRConfig struct {
	AutoMergeEnabled bool
	AutoMergeLabel   string
	MergeMethod      string
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	SampleRatio    float64
}

// Load reads configuration from the environment. In development a .env file
// in the working directory is loaded first; values already set in the
// environment win.
func Load() (Config, error) {
	if getEnv("SKILLFLOW_ENV", "development") == "development" {
		_ = godotenv.Load(".env")
	}

	cfg := Config{
		Env:      getEnv("SKILLFLOW_ENV", "development"),
		Port:     getEnv("PORT", "8080"),
		LogLevel: getEnv("LOG_LEVEL", ""),
		NodeID:   int64(getEnvInt("NODE_ID", 1)),
		DB: DBConfig{
			Driver:       getEnv("DATABASE_DRIVER", "sqlite"),
			DSN:          getEnv("DATABASE_URL", "file:skillflow.db"),
			MaxOpenConns: getEnvInt("DB_MAX_OPEN_CONNS", 10),
			MaxIdleConns: getEnvInt("DB_MAX_IDLE_CONNS", 2),
			AutoMigrate:  getEnvBool("DB_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379/0"),
			Stream:   getEnv("REDIS_STREAM", "skillflow_events"),
			Group:    getEnv("REDIS_CONSUMER_GROUP", "skillflow_workers"),
			Consumer: getEnv("REDIS_CONSUMER_NAME", hostname()),
		},
		Queue: QueueConfig{
			Backend:           getEnv("QUEUE_BACKEND", "memory"),
			MaxSize:           getEnvInt("QUEUE_MAX_SIZE", 1000),
			Workers:           getEnvInt("QUEUE_WORKERS", 2),
			PollTimeout:       getEnvDuration("QUEUE_POLL_TIMEOUT", time.Second),
			ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", time.Minute),
			ReconcileBatch:    getEnvInt("RECONCILE_BATCH", 500),
		},
		Retry: RetryConfig{
			MaxRetries: getEnvInt("RETRY_MAX_RETRIES", 3),
			BaseDelay:  getEnvDuration("RETRY_BASE_DELAY", time.Second),
			MaxDelay:   getEnvDuration("RETRY_MAX_DELAY", 60*time.Second),
			Multiplier: getEnvFloat("RETRY_MULTIPLIER", 2),
		},
		Webhook: WebhookConfig{
			Secret:      getEnv("GITHUB_WEBHOOK_SECRET", ""),
			MaxBodySize: int64(getEnvInt("WEBHOOK_MAX_BODY_BYTES", 25<<20)),
		},
		GitHub: GitHubConfig{
			Token:   getEnv("GITHUB_TOKEN", ""),
			Owner:   getEnv("GITHUB_OWNER", ""),
			Repo:    getEnv("GITHUB_REPO", ""),
			BaseURL: getEnv("GITHUB_API_URL", ""),
		},
		Analyzer: AnalyzerConfig{
			SecurityRulesPath: getEnv("SECURITY_RULES_PATH", ""),
			CheckAuthor:       getEnvBool("AUTHOR_CHECK_ENABLED", false),
			MinAccountAge:     getEnvDuration("AUTHOR_MIN_ACCOUNT_AGE", 7*24*time.Hour),
			MinContributions:  getEnvInt("AUTHOR_MIN_CONTRIBUTIONS", 1),
			FlagDefaultAvatar: getEnvBool("AUTHOR_FLAG_DEFAULT_AVATAR", true),
		},
		LLM: LLMConfig{
			APIKey:  getEnv("OPENAI_API_KEY", ""),
			BaseURL: getEnv("OPENAI_BASE_URL", ""),
			Model:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		},
		Tracking: TrackingConfig{
			StatePath: getEnv("TRACKING_STATE_PATH", "config/tracking.yaml"),
		},
		PR: PRConfig{
			AutoMergeEnabled: getEnvBool("PR_AUTO_MERGE_ENABLED", false),
			AutoMergeLabel:   getEnv("PR_AUTO_MERGE_LABEL", "auto-merge"),
			MergeMethod:      getEnv("PR_MERGE_METHOD", "squash"),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "skillflow"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLE_RATIO", 1),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	var errs []error

	switch c.DB.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER must be postgres or sqlite, got %q", c.DB.Driver))
	}
	switch c.Queue.Backend {
	case "memory", "redis":
	default:
		errs = append(errs, fmt.Errorf("QUEUE_BACKEND must be memory or redis, got %q", c.Queue.Backend))
	}
	if c.Queue.MaxSize < 1 {
		errs = append(errs, errors.New("QUEUE_MAX_SIZE must be positive"))
	}
	if c.Queue.Workers < 1 {
		errs = append(errs, errors.New("QUEUE_WORKERS must be positive"))
	}
	if c.Retry.MaxRetries < 0 {
		errs = append(errs, errors.New("RETRY_MAX_RETRIES must not be negative"))
	}
	if c.Retry.Multiplier < 1 {
		errs = append(errs, errors.New("RETRY_MULTIPLIER must be at least 1"))
	}
	if c.IsProduction() && c.Webhook.Secret == "" {
		errs = append(errs, errors.New("GITHUB_WEBHOOK_SECRET is required in production"))
	}
	if c.GitHub.Enabled() && (c.GitHub.Owner == "" || c.GitHub.Repo == "") {
		errs = append(errs, errors.New("GITHUB_OWNER and GITHUB_REPO are required when GITHUB_TOKEN is set"))
	}

	return errors.Join(errs...)
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func (c GitHubConfig) Enabled() bool {
	return c.Token != ""
}

func (c LLMConfig) Enabled() bool {
	return c.APIKey != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "skillflow"
	}
	return h
}
