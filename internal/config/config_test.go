package config

import (
	"os"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	os.Clearenv()

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load returned nil config")
	}
	if cfg.HTTPAddr != ":8000" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":8000")
	}
	if cfg.TCAPIRoot != "https://secure.tutorcruncher.com/api" {
		t.Errorf("TCAPIRoot = %q, want default", cfg.TCAPIRoot)
	}
	if cfg.GrecaptchaURL != "https://www.google.com/recaptcha/api/siteverify" {
		t.Errorf("GrecaptchaURL = %q, want default", cfg.GrecaptchaURL)
	}
	if cfg.CaptchaBypassEnabled {
		t.Error("CaptchaBypassEnabled should default to false")
	}
	if cfg.EnquiryCacheBackend != "memory" {
		t.Errorf("EnquiryCacheBackend = %q, want memory", cfg.EnquiryCacheBackend)
	}
	if cfg.QueueBackend != "memory" {
		t.Errorf("QueueBackend = %q, want memory", cfg.QueueBackend)
	}
	if cfg.PipelineWorkers != 4 {
		t.Errorf("PipelineWorkers = %d, want 4", cfg.PipelineWorkers)
	}
	if cfg.PipelinePostRetries != 2 {
		t.Errorf("PipelinePostRetries = %d, want 2", cfg.PipelinePostRetries)
	}
	if cfg.EnquiryKafkaTopic != "enquiry-submissions" {
		t.Errorf("EnquiryKafkaTopic = %q, want enquiry-submissions", cfg.EnquiryKafkaTopic)
	}
	if got := cfg.EnquiryTTL(); got != 30*time.Minute {
		t.Errorf("EnquiryTTL() = %v, want 30m", got)
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	os.Clearenv()
	os.Setenv("HTTP_ADDR", ":9090")
	os.Setenv("PIPELINE_WORKERS", "8")
	os.Setenv("CAPTCHA_BYPASS_ENABLED", "true")
	os.Setenv("ENQUIRY_CACHE_TTL", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":9090" {
		t.Errorf("HTTPAddr = %q, want %q", cfg.HTTPAddr, ":9090")
	}
	if cfg.PipelineWorkers != 8 {
		t.Errorf("PipelineWorkers = %d, want 8", cfg.PipelineWorkers)
	}
	if !cfg.CaptchaBypassEnabled {
		t.Error("CaptchaBypassEnabled should be true")
	}
	if got := cfg.EnquiryTTL(); got != 5*time.Minute {
		t.Errorf("EnquiryTTL() = %v, want 5m", got)
	}
}

func TestLoad_CaptchaBypassProduction(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "production")
	os.Setenv("CAPTCHA_BYPASS_ENABLED", "true")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error when captcha bypass is enabled in production")
	}
}

func TestLoad_CaptchaBypassDevelopment(t *testing.T) {
	os.Clearenv()
	os.Setenv("APP_ENV", "development")
	os.Setenv("CAPTCHA_BYPASS_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.CaptchaBypassEnabled {
		t.Error("CaptchaBypassEnabled should be true in development")
	}
}

func TestLoad_Backends(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr bool
	}{
		{"postgres cache without dsn", map[string]string{"ENQUIRY_CACHE_BACKEND": "postgres"}, true},
		{"postgres cache with dsn", map[string]string{"ENQUIRY_CACHE_BACKEND": "postgres", "DATABASE_URL": "postgres://localhost/enquiry"}, false},
		{"unknown cache backend", map[string]string{"ENQUIRY_CACHE_BACKEND": "redis"}, true},
		{"kafka without brokers", map[string]string{"QUEUE_BACKEND": "kafka"}, true},
		{"kafka with memory cache", map[string]string{"QUEUE_BACKEND": "kafka", "KAFKA_BROKERS": "localhost:9092"}, true},
		{"kafka with postgres cache", map[string]string{
			"QUEUE_BACKEND":         "kafka",
			"KAFKA_BROKERS":         "localhost:9092",
			"ENQUIRY_CACHE_BACKEND": "postgres",
			"DATABASE_URL":          "postgres://localhost/enquiry",
		}, false},
		{"unknown queue backend", map[string]string{"QUEUE_BACKEND": "sqs"}, true},
		{"negative retries", map[string]string{"PIPELINE_POST_RETRIES": "-1"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			os.Clearenv()
			for k, v := range tt.env {
				os.Setenv(k, v)
			}
			_, err := Load()
			if (err != nil) != tt.wantErr {
				t.Errorf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_NonPositiveWorkersFallBack(t *testing.T) {
	os.Clearenv()
	os.Setenv("PIPELINE_WORKERS", "0")
	os.Setenv("PIPELINE_QUEUE_SIZE", "-5")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PipelineWorkers != 4 {
		t.Errorf("PipelineWorkers = %d, want 4", cfg.PipelineWorkers)
	}
	if cfg.PipelineQueueSize != 256 {
		t.Errorf("PipelineQueueSize = %d, want 256", cfg.PipelineQueueSize)
	}
}

func TestDurations_InvalidFallBack(t *testing.T) {
	cfg := &Config{EnquiryCacheTTL: "soon", CompanyCacheTTL: "-1m", UpstreamTimeout: "0s"}
	if got := cfg.EnquiryTTL(); got != 30*time.Minute {
		t.Errorf("EnquiryTTL() = %v, want 30m", got)
	}
	if got := cfg.CompanyTTL(); got != time.Minute {
		t.Errorf("CompanyTTL() = %v, want 1m", got)
	}
	if got := cfg.UpstreamCallTimeout(); got != 10*time.Second {
		t.Errorf("UpstreamCallTimeout() = %v, want 10s", got)
	}
}

func TestEnquiryURL(t *testing.T) {
	tests := []struct {
		root, endpoint, want string
	}{
		{"https://secure.tutorcruncher.com/api", "/enquiry/", "https://secure.tutorcruncher.com/api/enquiry/"},
		{"http://localhost:8080/api/", "/enquiry/", "http://localhost:8080/api/enquiry/"},
		{"http://localhost:8080", "enquiry/", "http://localhost:8080/enquiry/"},
	}
	for _, tt := range tests {
		cfg := &Config{TCAPIRoot: tt.root, TCEnquiryEndpoint: tt.endpoint}
		if got := cfg.EnquiryURL(); got != tt.want {
			t.Errorf("EnquiryURL(%q, %q) = %q, want %q", tt.root, tt.endpoint, got, tt.want)
		}
	}
}

func TestKafkaBrokersList(t *testing.T) {
	cfg := &Config{KafkaBrokers: " a:9092, ,b:9092 "}
	got := cfg.KafkaBrokersList()
	if len(got) != 2 || got[0] != "a:9092" || got[1] != "b:9092" {
		t.Errorf("KafkaBrokersList() = %v, want [a:9092 b:9092]", got)
	}
	var nilCfg *Config
	if nilCfg.KafkaBrokersList() != nil {
		t.Error("nil config should return nil brokers")
	}
}
