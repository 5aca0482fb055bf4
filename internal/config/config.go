// Package config loads the fusion proxy configuration from an optional YAML
// file followed by environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/searchforge/fusion_proxy/fuse"
	"github.com/searchforge/fusion_proxy/policy"
)

// Config holds all configuration for the proxy.
type Config struct {
	Debug    bool                `yaml:"debug"`
	Server   ServerConfig        `yaml:"server"`
	Qdrant   QdrantConfig        `yaml:"qdrant"`
	Search   SearchConfig        `yaml:"search"`
	Fusion   fuse.Config         `yaml:"fusion"`
	Policy   policy.EngineConfig `yaml:"policy"`
	Tracing  TracingConfig       `yaml:"tracing"`
	Langfuse LangfuseConfig      `yaml:"langfuse"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// QdrantConfig points the proxy at the vector engine.
type QdrantConfig struct {
	URL      string        `yaml:"url"`
	Timeout  time.Duration `yaml:"timeout"`
	RetryMax int           `yaml:"retry_max"`
}

// SearchConfig holds request defaults and bounds.
type SearchConfig struct {
	DefaultTopK     int           `yaml:"default_topk"`
	TopNMax         int           `yaml:"topn_max"`
	BudgetMS        int           `yaml:"budget_ms"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	PolicyVersion   string        `yaml:"policy_version"`
	FallbackOnError bool          `yaml:"fallback_on_error"`
}

// TracingConfig controls the otel tracer provider.
type TracingConfig struct {
	ServiceName string  `yaml:"service_name"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LangfuseConfig builds trace links returned with search responses.
type LangfuseConfig struct {
	Host    string `yaml:"host"`
	Project string `yaml:"project"`
}

// Load reads path (skipped when empty), applies defaults and then
// environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	if _, err := fuse.New(cfg.Fusion); err != nil {
		return nil, fmt.Errorf("invalid fusion config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides cfg from environment variables. Unset or malformed
// values leave the current setting in place.
func ApplyEnv(cfg *Config) {
	cfg.Debug = getEnvBool("DEBUG", cfg.Debug)

	cfg.Server.Port = getEnvInt("PORT", cfg.Server.Port)

	cfg.Qdrant.URL = getEnvStr("QDRANT_URL", cfg.Qdrant.URL)
	cfg.Qdrant.Timeout = getEnvMS("QDRANT_TIMEOUT_MS", cfg.Qdrant.Timeout)
	cfg.Qdrant.RetryMax = getEnvInt("QDRANT_RETRY_MAX", cfg.Qdrant.RetryMax)

	cfg.Search.DefaultTopK = getEnvInt("DEFAULT_TOPK", cfg.Search.DefaultTopK)
	cfg.Search.TopNMax = getEnvInt("TOPN_MAX", cfg.Search.TopNMax)
	cfg.Search.BudgetMS = getEnvInt("BUDGET_MS", cfg.Search.BudgetMS)
	cfg.Search.CacheTTL = getEnvMS("CACHE_TTL_MS", cfg.Search.CacheTTL)
	cfg.Search.PolicyVersion = getEnvStr("POLICY_VERSION", cfg.Search.PolicyVersion)
	cfg.Search.FallbackOnError = getEnvBool("FALLBACK_ON_ERROR", cfg.Search.FallbackOnError)

	cfg.Fusion.Strategy = getEnvStr("FUSION_STRATEGY", cfg.Fusion.Strategy)
	cfg.Fusion.TopN = getEnvInt("FUSION_TOPN", cfg.Fusion.TopN)
	if k := getEnvInt("RRF_K", 0); k > 0 {
		cfg.Fusion.RankConstant = fuse.RankConstant(int32(k))
	}
	cfg.Fusion.Metric = getEnvStr("FUSION_METRIC", cfg.Fusion.Metric)

	cfg.Policy.Timeout = getEnvMS("ENGINE_TIMEOUT_MS", cfg.Policy.Timeout)
	cfg.Policy.Rate.Capacity = getEnvInt("ENGINE_RATE_CAPACITY", cfg.Policy.Rate.Capacity)
	cfg.Policy.Rate.RefillTokens = getEnvInt("ENGINE_RATE_REFILL", cfg.Policy.Rate.RefillTokens)
	cfg.Policy.Rate.RefillEvery = getEnvMS("ENGINE_RATE_INTERVAL_MS", cfg.Policy.Rate.RefillEvery)
	cfg.Policy.Circuit.Window = getEnvMS("CIRCUIT_WINDOW_MS", cfg.Policy.Circuit.Window)
	cfg.Policy.Circuit.FailureRateThreshold = getEnvFloat("CIRCUIT_THRESHOLD", cfg.Policy.Circuit.FailureRateThreshold)
	cfg.Policy.Circuit.MinSamples = getEnvInt("CIRCUIT_MIN_SAMPLES", cfg.Policy.Circuit.MinSamples)
	cfg.Policy.Circuit.Cooldown = getEnvMS("CIRCUIT_COOLDOWN_MS", cfg.Policy.Circuit.Cooldown)
	cfg.Policy.Circuit.HalfOpenMaxCalls = getEnvInt("CIRCUIT_HALF_OPEN_MAX", cfg.Policy.Circuit.HalfOpenMaxCalls)

	cfg.Tracing.SampleRatio = getEnvFloat("TRACE_SAMPLE_RATIO", cfg.Tracing.SampleRatio)

	cfg.Langfuse.Host = getEnvStr("LANGFUSE_HOST", cfg.Langfuse.Host)
	cfg.Langfuse.Project = getEnvStr("LANGFUSE_PROJECT_ID", cfg.Langfuse.Project)
}

func getEnvStr(key string, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvMS(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Millisecond
		}
	}
	return fallback
}
