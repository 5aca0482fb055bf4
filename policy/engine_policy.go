package policy

import (
	"context"
	"errors"
	"time"
)

// RateLimitConfig configures the token bucket limiter.
type RateLimitConfig struct {
	Capacity     int           `yaml:"capacity"`
	RefillTokens int           `yaml:"refill_tokens"`
	RefillEvery  time.Duration `yaml:"refill_every"`
}

// EngineConfig configures the guards around one class of engine call.
type EngineConfig struct {
	Op      string               `yaml:"-"`
	Timeout time.Duration        `yaml:"timeout"`
	Rate    RateLimitConfig      `yaml:"rate"`
	Circuit CircuitBreakerConfig `yaml:"circuit"`
}

// EnginePolicy applies timeout, rate limiting and circuit breaking to calls
// of one engine operation.
type EnginePolicy struct {
	op      string
	timeout time.Duration
	rate    *TokenBucket
	circuit *CircuitBreaker
	metrics *Metrics
}

// NewEnginePolicy constructs an EnginePolicy with the provided configuration.
func NewEnginePolicy(cfg EngineConfig, metrics *Metrics) (*EnginePolicy, error) {
	if cfg.Op == "" {
		return nil, errors.New("engine op required")
	}
	if cfg.Timeout <= 0 {
		return nil, errors.New("engine timeout must be positive")
	}

	return &EnginePolicy{
		op:      cfg.Op,
		timeout: cfg.Timeout,
		rate:    NewTokenBucket(cfg.Rate.Capacity, cfg.Rate.RefillTokens, cfg.Rate.RefillEvery),
		circuit: NewCircuitBreaker(cfg.Op, normalizeCircuitConfig(cfg.Circuit), metrics),
		metrics: metrics,
	}, nil
}

// Execute runs fn under the policy. Rejected calls never reach fn.
func (p *EnginePolicy) Execute(parent context.Context, fn func(context.Context) error) error {
	if parent == nil {
		parent = context.Background()
	}

	now := time.Now()

	if !p.circuit.Allow(now) {
		p.metrics.ObserveEngine(p.op, 0, ErrCircuitOpen)
		return ErrCircuitOpen
	}

	if !p.rate.Allow(now) {
		p.circuit.Release()
		return ErrRateLimited
	}

	ctx, cancel := context.WithTimeout(parent, p.timeout)
	defer cancel()

	start := time.Now()
	err := fn(ctx)
	p.metrics.ObserveEngine(p.op, time.Since(start), err)

	p.circuit.Record(time.Now(), countsAsSuccess(err))
	return err
}

// Op returns the guarded operation name.
func (p *EnginePolicy) Op() string {
	return p.op
}

// State returns the circuit state.
func (p *EnginePolicy) State() CircuitState {
	return p.circuit.State()
}

// countsAsSuccess keeps caller cancellations from tripping the breaker.
func countsAsSuccess(err error) bool {
	return err == nil || errors.Is(err, context.Canceled)
}

func normalizeCircuitConfig(cfg CircuitBreakerConfig) CircuitBreakerConfig {
	if cfg.Window <= 0 {
		cfg.Window = 10 * time.Second
	}
	if cfg.FailureRateThreshold <= 0 {
		cfg.FailureRateThreshold = 0.5
	}
	if cfg.MinSamples <= 0 {
		cfg.MinSamples = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 5 * time.Second
	}
	if cfg.HalfOpenMaxCalls <= 0 {
		cfg.HalfOpenMaxCalls = 1
	}
	return cfg
}
