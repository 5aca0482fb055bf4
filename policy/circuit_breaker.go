package policy

import (
	"sync"
	"time"
)

// CircuitState is the breaker position.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitHalfOpen
	CircuitOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitHalfOpen:
		return "half-open"
	case CircuitOpen:
		return "open"
	default:
		return "closed"
	}
}

// CircuitBreakerConfig configures the circuit breaker behaviour.
type CircuitBreakerConfig struct {
	Window               time.Duration `yaml:"window"`
	FailureRateThreshold float64       `yaml:"failure_rate_threshold"`
	MinSamples           int           `yaml:"min_samples"`
	Cooldown             time.Duration `yaml:"cooldown"`
	HalfOpenMaxCalls     int           `yaml:"half_open_max_calls"`
}

type outcome struct {
	at     time.Time
	failed bool
}

// CircuitBreaker trips on the failure rate of one engine operation over a
// rolling window. After Cooldown it lets HalfOpenMaxCalls probes through;
// all of them must succeed to close again, any failure reopens.
type CircuitBreaker struct {
	cfg     CircuitBreakerConfig
	op      string
	metrics *Metrics

	mu       sync.Mutex
	state    CircuitState
	openedAt time.Time
	window   []outcome
	failures int
	admitted int
	passed   int
}

// NewCircuitBreaker returns a closed breaker for op.
func NewCircuitBreaker(op string, cfg CircuitBreakerConfig, metrics *Metrics) *CircuitBreaker {
	cb := &CircuitBreaker{cfg: cfg, op: op, metrics: metrics}
	metrics.SetCircuitState(op, CircuitClosed)
	return cb
}

// Allow reports whether a call may start at now. In half-open state each
// allowed call consumes a probe slot.
func (c *CircuitBreaker) Allow(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == CircuitOpen && now.Sub(c.openedAt) >= c.cfg.Cooldown {
		c.setState(CircuitHalfOpen, now)
	}

	switch c.state {
	case CircuitOpen:
		return false
	case CircuitHalfOpen:
		if c.admitted >= c.cfg.HalfOpenMaxCalls {
			return false
		}
		c.admitted++
	}
	return true
}

// Release returns a probe slot taken by Allow for a call that never ran.
func (c *CircuitBreaker) Release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CircuitHalfOpen && c.admitted > 0 {
		c.admitted--
	}
}

// Record feeds the outcome of a call finished at now.
func (c *CircuitBreaker) Record(now time.Time, success bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.state {
	case CircuitOpen:
		// late result of a call admitted before the trip
		return
	case CircuitHalfOpen:
		if !success {
			c.setState(CircuitOpen, now)
			return
		}
		c.passed++
		if c.passed >= c.cfg.HalfOpenMaxCalls {
			c.setState(CircuitClosed, now)
		}
		return
	}

	c.window = append(c.window, outcome{at: now, failed: !success})
	if !success {
		c.failures++
	}
	c.expire(now)

	total := len(c.window)
	if total == 0 || total < c.cfg.MinSamples {
		return
	}
	if float64(c.failures)/float64(total) >= c.cfg.FailureRateThreshold {
		c.setState(CircuitOpen, now)
	}
}

// expire drops outcomes older than the window.
func (c *CircuitBreaker) expire(now time.Time) {
	cutoff := now.Add(-c.cfg.Window)
	n := 0
	for n < len(c.window) && c.window[n].at.Before(cutoff) {
		if c.window[n].failed {
			c.failures--
		}
		n++
	}
	c.window = c.window[n:]
}

func (c *CircuitBreaker) setState(state CircuitState, now time.Time) {
	if c.state == state {
		return
	}
	c.state = state
	c.admitted, c.passed = 0, 0
	switch state {
	case CircuitOpen:
		c.openedAt = now
	case CircuitClosed:
		c.window = c.window[:0]
		c.failures = 0
	}
	c.metrics.SetCircuitState(c.op, state)
}

// State returns the current state. An open breaker whose cooldown elapsed
// still reports open until the next Allow.
func (c *CircuitBreaker) State() CircuitState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
