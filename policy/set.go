package policy

import "fmt"

// Engine operations guarded by a Set.
const (
	OpQuery  = "query"
	OpInsert = "insert"
	OpAdmin  = "admin"
)

// Set holds one EnginePolicy per engine operation so that a failing write
// path does not open the breaker for searches.
type Set struct {
	policies map[string]*EnginePolicy
	metrics  *Metrics
}

// NewSet builds a policy for each op from the shared base configuration.
func NewSet(base EngineConfig, metrics *Metrics, ops ...string) (*Set, error) {
	if len(ops) == 0 {
		ops = []string{OpQuery, OpInsert, OpAdmin}
	}

	policies := make(map[string]*EnginePolicy, len(ops))
	for _, op := range ops {
		cfg := base
		cfg.Op = op
		p, err := NewEnginePolicy(cfg, metrics)
		if err != nil {
			return nil, fmt.Errorf("policy %q: %w", op, err)
		}
		policies[op] = p
	}

	return &Set{policies: policies, metrics: metrics}, nil
}

// For returns the policy guarding op.
func (s *Set) For(op string) (*EnginePolicy, bool) {
	p, ok := s.policies[op]
	return p, ok
}

// Metrics returns the metrics collector shared by the set.
func (s *Set) Metrics() *Metrics {
	return s.metrics
}
