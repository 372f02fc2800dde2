package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Delivery transports for notification push
const (
	DeliveryRedis = "redis"
	DeliveryNATS  = "nats"
)

// Config holds application configuration
type Config struct {
	DatabaseURL       string
	ServerPort        string
	MetricsAddr       string
	AdminToken        string
	CORSOrigins       []string
	RunNowRateLimit   string
	OpenAIKey         string
	AIProvider        string
	AIModel           string
	AIBaseURL         string
	RedisURL          string
	RabbitMQURL       string
	RabbitMQPrefetch  int
	DeliveryTransport string
	NATSURL           string
	WorkerDebugMode   bool
	ServerDebugMode   bool
	OTELEnabled       bool
	OTELEndpoint      string
	Overview          OverviewConfig
}

// OverviewConfig holds the overview worker defaults. Each field may be set in the YAML
// file named by SMART_CRM_CONFIG; environment variables win over the file.
type OverviewConfig struct {
	DefaultCooldownSeconds int           `yaml:"default_cooldown_seconds"`
	PollInterval           time.Duration `yaml:"poll_interval"`
	UniqueWindow           time.Duration `yaml:"unique_window"`
	LLMTimeout             time.Duration `yaml:"llm_timeout"`
	LLMTemperature         float64       `yaml:"llm_temperature"`
	SweepInterval          time.Duration `yaml:"sweep_interval"`
	SweepGrace             time.Duration `yaml:"sweep_grace"`
	DLQRetention           time.Duration `yaml:"dlq_retention"`
	DLQGCInterval          time.Duration `yaml:"dlq_gc_interval"`
}

func defaultOverview() OverviewConfig {
	return OverviewConfig{
		DefaultCooldownSeconds: 900,
		PollInterval:           5 * time.Minute,
		UniqueWindow:           60 * time.Second,
		LLMTimeout:             45 * time.Second,
		LLMTemperature:         0.3,
		SweepInterval:          10 * time.Minute,
		SweepGrace:             10 * time.Minute,
		DLQRetention:           7 * 24 * time.Hour,
		DLQGCInterval:          time.Hour,
	}
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	overview := defaultOverview()
	if path := os.Getenv("SMART_CRM_CONFIG"); path != "" {
		if err := loadOverviewFile(path, &overview); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		ServerPort:        getEnv("SERVER_PORT", "8080"),
		MetricsAddr:       getEnv("METRICS_ADDR", ":9090"),
		AdminToken:        getEnv("ADMIN_TOKEN", ""),
		CORSOrigins:       getEnvList("CORS_ALLOWED_ORIGINS", nil),
		RunNowRateLimit:   getEnv("RUN_NOW_RATE_LIMIT", "10-M"),
		OpenAIKey:         getEnv("OPENAI_API_KEY", ""),
		AIProvider:        getEnv("AI_PROVIDER", "openai"),
		AIModel:           getEnv("AI_MODEL", ""),
		AIBaseURL:         getEnv("AI_BASE_URL", ""),
		RedisURL:          getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:       getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:  getEnvInt("RABBITMQ_PREFETCH", 1),
		DeliveryTransport: getEnv("DELIVERY_TRANSPORT", DeliveryRedis),
		NATSURL:           getEnv("NATS_URL", ""),
		WorkerDebugMode:   getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:   getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:       getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:      getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		Overview: OverviewConfig{
			DefaultCooldownSeconds: getEnvInt("OVERVIEW_DEFAULT_COOLDOWN", overview.DefaultCooldownSeconds),
			PollInterval:           getEnvDuration("OVERVIEW_POLL_INTERVAL", overview.PollInterval),
			UniqueWindow:           getEnvDuration("OVERVIEW_UNIQUE_WINDOW", overview.UniqueWindow),
			LLMTimeout:             getEnvDuration("OVERVIEW_LLM_TIMEOUT", overview.LLMTimeout),
			LLMTemperature:         getEnvFloat("OVERVIEW_LLM_TEMPERATURE", overview.LLMTemperature),
			SweepInterval:          getEnvDuration("OVERVIEW_SWEEP_INTERVAL", overview.SweepInterval),
			SweepGrace:             getEnvDuration("OVERVIEW_SWEEP_GRACE", overview.SweepGrace),
			DLQRetention:           getEnvDuration("OVERVIEW_DLQ_RETENTION", overview.DLQRetention),
			DLQGCInterval:          getEnvDuration("OVERVIEW_DLQ_GC_INTERVAL", overview.DLQGCInterval),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.RabbitMQURL == "" {
		return nil, fmt.Errorf("RABBITMQ_URL is required for job queueing (overview cycles require RabbitMQ)")
	}

	switch cfg.DeliveryTransport {
	case DeliveryRedis:
	case DeliveryNATS:
		if cfg.NATSURL == "" {
			return nil, fmt.Errorf("NATS_URL is required when DELIVERY_TRANSPORT is nats")
		}
	default:
		return nil, fmt.Errorf("unknown DELIVERY_TRANSPORT %q (want redis or nats)", cfg.DeliveryTransport)
	}

	if cfg.Overview.DefaultCooldownSeconds < 60 {
		return nil, fmt.Errorf("OVERVIEW_DEFAULT_COOLDOWN must be at least 60 seconds, got %d", cfg.Overview.DefaultCooldownSeconds)
	}

	return cfg, nil
}

func loadOverviewFile(path string, into *OverviewConfig) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	var file struct {
		Overview OverviewConfig `yaml:"overview"`
	}
	file.Overview = *into
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	*into = file.Overview
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go duration strings ("90s") or a bare number of seconds
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for item := range strings.SplitSeq(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
