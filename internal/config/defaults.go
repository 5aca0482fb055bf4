package config

import (
	"time"

	"github.com/searchforge/fusion_proxy/fuse"
)

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 7070
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	if cfg.Qdrant.URL == "" {
		cfg.Qdrant.URL = "http://qdrant:6333"
	}
	if cfg.Qdrant.Timeout == 0 {
		cfg.Qdrant.Timeout = 800 * time.Millisecond
	}
	if cfg.Qdrant.RetryMax == 0 {
		cfg.Qdrant.RetryMax = 2
	}

	if cfg.Search.TopNMax == 0 {
		cfg.Search.TopNMax = 64
	}
	if cfg.Search.BudgetMS == 0 {
		cfg.Search.BudgetMS = 600
	}
	if cfg.Search.CacheTTL == 0 {
		cfg.Search.CacheTTL = 30 * time.Second
	}
	if cfg.Search.PolicyVersion == "" {
		cfg.Search.PolicyVersion = "v1"
	}

	cfg.Fusion = fuse.DefaultConfig().Merge(cfg.Fusion)

	if cfg.Policy.Timeout == 0 {
		cfg.Policy.Timeout = 500 * time.Millisecond
	}
	if cfg.Policy.Rate.Capacity == 0 {
		cfg.Policy.Rate.Capacity = 50
	}
	if cfg.Policy.Rate.RefillTokens == 0 {
		cfg.Policy.Rate.RefillTokens = 10
	}
	if cfg.Policy.Rate.RefillEvery == 0 {
		cfg.Policy.Rate.RefillEvery = time.Second
	}
	if cfg.Policy.Circuit.Window == 0 {
		cfg.Policy.Circuit.Window = 30 * time.Second
	}
	if cfg.Policy.Circuit.FailureRateThreshold == 0 {
		cfg.Policy.Circuit.FailureRateThreshold = 0.5
	}
	if cfg.Policy.Circuit.MinSamples == 0 {
		cfg.Policy.Circuit.MinSamples = 5
	}
	if cfg.Policy.Circuit.Cooldown == 0 {
		cfg.Policy.Circuit.Cooldown = 5 * time.Second
	}
	if cfg.Policy.Circuit.HalfOpenMaxCalls == 0 {
		cfg.Policy.Circuit.HalfOpenMaxCalls = 1
	}

	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "fusion-proxy"
	}
	if cfg.Tracing.SampleRatio == 0 {
		cfg.Tracing.SampleRatio = 0.1
	}

	if cfg.Langfuse.Host == "" {
		cfg.Langfuse.Host = "us.cloud.langfuse.com"
	}
}
