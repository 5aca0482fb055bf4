//go:build !nometrics

package policy

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics wraps the Prometheus collectors for engine calls and fusion.
type Metrics struct {
	engineLatency *prometheus.HistogramVec
	engineErrRate *prometheus.GaugeVec
	totalLatency  prometheus.Histogram
	circuitState  *prometheus.GaugeVec
	budgetHit     prometheus.Counter
	fusions       *prometheus.CounterVec
	fusedItems    *prometheus.HistogramVec
	fusionInputs  *prometheus.HistogramVec

	requestsMu sync.Mutex
	requests   map[string]*opRequestStats
}

type opRequestStats struct {
	success int
	fail    int
}

// MetricsOption allows customizing the metrics registry.
type MetricsOption func(*metricsConfig)

type metricsConfig struct {
	registerer prometheus.Registerer
	buckets    []float64
}

// WithRegisterer overrides the default Prometheus registerer. A nil
// registerer leaves collectors unregistered.
func WithRegisterer(r prometheus.Registerer) MetricsOption {
	return func(cfg *metricsConfig) {
		cfg.registerer = r
	}
}

// WithLatencyBuckets overrides the default latency histogram buckets (in ms).
func WithLatencyBuckets(buckets []float64) MetricsOption {
	return func(cfg *metricsConfig) {
		cfg.buckets = buckets
	}
}

// NewMetrics constructs Metrics and registers Prometheus collectors. When a
// collector is already registered the existing one is reused.
func NewMetrics(opts ...MetricsOption) *Metrics {
	cfg := metricsConfig{
		registerer: prometheus.DefaultRegisterer,
		buckets: []float64{
			5, 10, 20, 50, 100, 200, 500, 1000, 2000,
		},
	}

	for _, opt := range opts {
		opt(&cfg)
	}

	reg := cfg.registerer
	return &Metrics{
		engineLatency: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fusion_proxy_engine_latency_ms",
			Help:    "Latency in milliseconds of engine calls per operation.",
			Buckets: cfg.buckets,
		}, []string{"op"})),
		engineErrRate: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fusion_proxy_engine_error_rate",
			Help: "Error rate of engine calls per operation.",
		}, []string{"op"})),
		totalLatency: register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "fusion_proxy_search_latency_ms",
			Help:    "Total latency in milliseconds of a search request.",
			Buckets: cfg.buckets,
		})),
		circuitState: register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fusion_proxy_circuit_state",
			Help: "Circuit breaker state per engine operation. 0=closed, 1=half-open, 2=open.",
		}, []string{"op"})),
		budgetHit: register(reg, prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fusion_proxy_budget_hit_total",
			Help: "Total number of searches that hit the configured budget.",
		})),
		fusions: register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fusion_proxy_fusions_total",
			Help: "Fusion invocations per strategy.",
		}, []string{"strategy"})),
		fusedItems: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fusion_proxy_fused_items",
			Help:    "Number of items returned by a fusion.",
			Buckets: prometheus.LinearBuckets(0, 8, 9),
		}, []string{"strategy"})),
		fusionInputs: register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fusion_proxy_fusion_input_lists",
			Help:    "Number of ranked lists fed into a fusion.",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 16},
		}, []string{"strategy"})),
		requests: make(map[string]*opRequestStats),
	}
}

// ObserveEngine records the latency and error status of an engine call.
func (m *Metrics) ObserveEngine(op string, latency time.Duration, err error) {
	if m == nil {
		return
	}

	m.engineLatency.WithLabelValues(op).Observe(nonNegativeMS(latency))

	m.requestsMu.Lock()
	stats, ok := m.requests[op]
	if !ok {
		stats = &opRequestStats{}
		m.requests[op] = stats
	}
	if err != nil {
		stats.fail++
	} else {
		stats.success++
	}
	rate := float64(stats.fail) / float64(stats.fail+stats.success)
	m.requestsMu.Unlock()

	m.engineErrRate.WithLabelValues(op).Set(rate)
}

// ObserveTotal records the total latency of a search request.
func (m *Metrics) ObserveTotal(latency time.Duration) {
	if m == nil {
		return
	}
	m.totalLatency.Observe(nonNegativeMS(latency))
}

// ObserveFusion records one fusion call.
func (m *Metrics) ObserveFusion(strategy string, lists, items int) {
	if m == nil {
		return
	}
	m.fusions.WithLabelValues(strategy).Inc()
	m.fusionInputs.WithLabelValues(strategy).Observe(float64(lists))
	m.fusedItems.WithLabelValues(strategy).Observe(float64(items))
}

// IncBudgetHit increments the budget hit counter.
func (m *Metrics) IncBudgetHit() {
	if m == nil {
		return
	}
	m.budgetHit.Inc()
}

// SetCircuitState records the circuit breaker state for an operation.
func (m *Metrics) SetCircuitState(op string, state CircuitState) {
	if m == nil {
		return
	}
	m.circuitState.WithLabelValues(op).Set(float64(state))
}

func nonNegativeMS(d time.Duration) float64 {
	ms := float64(d.Milliseconds())
	if ms < 0 {
		return 0
	}
	return ms
}

func register[C prometheus.Collector](registerer prometheus.Registerer, collector C) C {
	if registerer == nil {
		return collector
	}
	if err := registerer.Register(collector); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
			return collector
		}
		panic(err)
	}
	return collector
}
