// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN holding companies (and the shared enquiry options cache when ENQUIRY_CACHE_BACKEND=postgres).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// Env is the application environment (e.g. "development", "production"). Used with CaptchaBypassEnabled to refuse the bypass in production.
	Env string `mapstructure:"APP_ENV"`
	// MasterKey is an optional signing key accepted by the invalidation webhook for every company.
	MasterKey string `mapstructure:"MASTER_KEY"`

	// TCAPIRoot is the CRM API root (e.g. https://secure.tutorcruncher.com/api).
	TCAPIRoot string `mapstructure:"TC_API_ROOT"`
	// TCEnquiryEndpoint is appended to TCAPIRoot for both the options fetch and the enquiry post.
	TCEnquiryEndpoint string `mapstructure:"TC_ENQUIRY_ENDPOINT"`
	// GrecaptchaURL is the reCAPTCHA siteverify URL.
	GrecaptchaURL string `mapstructure:"GRECAPTCHA_URL"`
	// GrecaptchaSecret is the reCAPTCHA secret sent with every verification.
	GrecaptchaSecret string `mapstructure:"GRECAPTCHA_SECRET"`
	// CaptchaBypassEnabled accepts "mock-grecaptcha:<private_key>" tokens without calling reCAPTCHA. Must not be true when Env is production.
	CaptchaBypassEnabled bool `mapstructure:"CAPTCHA_BYPASS_ENABLED"`
	// UpstreamTimeout bounds every upstream call (e.g. "10s").
	UpstreamTimeout string `mapstructure:"UPSTREAM_TIMEOUT"`

	// EnquiryCacheTTL is how long fetched enquiry options are trusted (e.g. "30m").
	EnquiryCacheTTL string `mapstructure:"ENQUIRY_CACHE_TTL"`
	// EnquiryCacheBackend is "memory" (per process) or "postgres" (shared between server and worker).
	EnquiryCacheBackend string `mapstructure:"ENQUIRY_CACHE_BACKEND"`
	// CompanyCacheTTL is how long company lookups by public key are cached (e.g. "1m").
	CompanyCacheTTL string `mapstructure:"COMPANY_CACHE_TTL"`

	// PipelineWorkers is the number of worker lanes draining the in-memory queue.
	PipelineWorkers int `mapstructure:"PIPELINE_WORKERS"`
	// PipelineQueueSize is the buffer size of each in-memory lane.
	PipelineQueueSize int `mapstructure:"PIPELINE_QUEUE_SIZE"`
	// PipelinePostRetries is how many times a 5xx or failed enquiry post is retried (0 disables retries).
	PipelinePostRetries int `mapstructure:"PIPELINE_POST_RETRIES"`
	// QueueBackend is "memory" (server runs the workers) or "kafka" (cmd/worker consumes the topic; needs the postgres cache backend).
	QueueBackend string `mapstructure:"QUEUE_BACKEND"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses (e.g. "localhost:9092").
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EnquiryKafkaTopic is the Kafka topic carrying submission jobs.
	EnquiryKafkaTopic string `mapstructure:"ENQUIRY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the enquiry worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	// LokiURL is where activity events are pushed (e.g. http://localhost:3100). Empty disables shipping.
	LokiURL string `mapstructure:"LOKI_URL"`
	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty uses no-op providers.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("MASTER_KEY", "")
	v.SetDefault("TC_API_ROOT", "https://secure.tutorcruncher.com/api")
	v.SetDefault("TC_ENQUIRY_ENDPOINT", "/enquiry/")
	v.SetDefault("GRECAPTCHA_URL", "https://www.google.com/recaptcha/api/siteverify")
	v.SetDefault("GRECAPTCHA_SECRET", "")
	v.SetDefault("CAPTCHA_BYPASS_ENABLED", false)
	v.SetDefault("UPSTREAM_TIMEOUT", "10s")
	v.SetDefault("ENQUIRY_CACHE_TTL", "30m")
	v.SetDefault("ENQUIRY_CACHE_BACKEND", "memory")
	v.SetDefault("COMPANY_CACHE_TTL", "1m")
	v.SetDefault("PIPELINE_WORKERS", 4)
	v.SetDefault("PIPELINE_QUEUE_SIZE", 256)
	v.SetDefault("PIPELINE_POST_RETRIES", 2)
	v.SetDefault("QUEUE_BACKEND", "memory")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("ENQUIRY_KAFKA_TOPIC", "enquiry-submissions")
	v.SetDefault("KAFKA_GROUP_ID", "enquiry-worker")
	v.SetDefault("LOKI_URL", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "enquiry-socket")
	v.SetDefault("LOG_LEVEL", "info")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.TCAPIRoot == "" {
		return nil, errors.New("config: TC_API_ROOT must be set")
	}

	if cfg.CaptchaBypassEnabled && cfg.Env == "production" {
		return nil, errors.New("config: CAPTCHA_BYPASS_ENABLED must not be true when APP_ENV=production")
	}

	switch cfg.EnquiryCacheBackend {
	case "memory":
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, errors.New("config: ENQUIRY_CACHE_BACKEND=postgres requires DATABASE_URL")
		}
	default:
		return nil, errors.New("config: ENQUIRY_CACHE_BACKEND must be memory or postgres")
	}

	switch cfg.QueueBackend {
	case "memory":
	case "kafka":
		if len(cfg.KafkaBrokersList()) == 0 {
			return nil, errors.New("config: QUEUE_BACKEND=kafka requires KAFKA_BROKERS")
		}
		if cfg.EnquiryCacheBackend != "postgres" {
			return nil, errors.New("config: QUEUE_BACKEND=kafka requires ENQUIRY_CACHE_BACKEND=postgres")
		}
	default:
		return nil, errors.New("config: QUEUE_BACKEND must be memory or kafka")
	}

	if cfg.PipelineWorkers <= 0 {
		cfg.PipelineWorkers = 4
	}
	if cfg.PipelineQueueSize <= 0 {
		cfg.PipelineQueueSize = 256
	}
	if cfg.PipelinePostRetries < 0 {
		return nil, errors.New("config: PIPELINE_POST_RETRIES must not be negative")
	}

	return &cfg, nil
}

// EnquiryTTL parses EnquiryCacheTTL as a time.Duration. Returns 30m if unset or invalid.
func (c *Config) EnquiryTTL() time.Duration {
	return parseDuration(c.EnquiryCacheTTL, 30*time.Minute)
}

// CompanyTTL parses CompanyCacheTTL as a time.Duration. Returns 1m if unset or invalid.
func (c *Config) CompanyTTL() time.Duration {
	return parseDuration(c.CompanyCacheTTL, time.Minute)
}

// UpstreamCallTimeout parses UpstreamTimeout as a time.Duration. Returns 10s if unset or invalid.
func (c *Config) UpstreamCallTimeout() time.Duration {
	return parseDuration(c.UpstreamTimeout, 10*time.Second)
}

// EnquiryURL joins TCAPIRoot and TCEnquiryEndpoint.
func (c *Config) EnquiryURL() string {
	return strings.TrimSuffix(c.TCAPIRoot, "/") + "/" + strings.TrimPrefix(c.TCEnquiryEndpoint, "/")
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
