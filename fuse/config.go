package fuse

import (
	"fmt"
	"strings"
)

// Strategy names accepted by New.
const (
	StrategyRRF      = "rrf"
	StrategyWeighted = "weighted"
)

// Config describes a fuser. It is resolved once into an immutable Fuser.
// RankConstant is a pointer so that an explicit 0 is kept apart from unset.
type Config struct {
	Strategy     string             `yaml:"strategy" json:"strategy,omitempty"`
	TopN         int                `yaml:"topn" json:"topn,omitempty"`
	RankConstant *int32             `yaml:"rank_constant" json:"rank_constant,omitempty"`
	Metric       string             `yaml:"metric" json:"metric,omitempty"`
	Weights      map[string]float64 `yaml:"weights" json:"weights,omitempty"`
}

// DefaultConfig returns RRF with the standard rank constant.
func DefaultConfig() Config {
	return Config{
		Strategy:     StrategyRRF,
		TopN:         10,
		RankConstant: RankConstant(DefaultRankConstant),
	}
}

// RankConstant returns k for use in Config.
func RankConstant(k int32) *int32 {
	return &k
}

// Merge overlays the non-zero fields of override onto c.
func (c Config) Merge(override Config) Config {
	if override.Strategy != "" {
		c.Strategy = override.Strategy
	}
	if override.TopN > 0 {
		c.TopN = override.TopN
	}
	if override.RankConstant != nil {
		c.RankConstant = RankConstant(*override.RankConstant)
	}
	if override.Metric != "" {
		c.Metric = override.Metric
	}
	if len(override.Weights) > 0 {
		c.Weights = override.Weights
	}
	return c
}

// New builds the fuser described by cfg. TopN must be chosen by the caller.
func New(cfg Config) (Fuser, error) {
	if cfg.TopN <= 0 {
		return nil, fmt.Errorf("topn must be positive")
	}

	switch strings.ToLower(cfg.Strategy) {
	case "", StrategyRRF:
		r := NewRRF(cfg.TopN)
		if cfg.RankConstant != nil {
			r = r.WithRankConstant(*cfg.RankConstant)
		}
		return r, nil
	case StrategyWeighted:
		metric, err := ParseMetric(cfg.Metric)
		if err != nil {
			return nil, err
		}
		return NewWeighted(cfg.TopN, metric).WithWeights(cfg.Weights), nil
	default:
		return nil, fmt.Errorf("unknown fusion strategy %q", cfg.Strategy)
	}
}
