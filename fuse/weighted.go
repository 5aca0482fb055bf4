package fuse

// DefaultWeight applies to lists without an explicit weight.
const DefaultWeight = 1.0

// Weighted fuses lists by summing metric-normalized scores scaled by a
// per-list weight. Weights are copied on every builder call so a configured
// fuser never shares a mutable map with its caller.
type Weighted struct {
	topn    int
	metric  MetricKind
	weights map[string]float64
}

// NewWeighted returns a weighted fuser keeping at most topn items, with raw
// scores interpreted under metric.
func NewWeighted(topn int, metric MetricKind) Weighted {
	return Weighted{
		topn:    topn,
		metric:  metric,
		weights: map[string]float64{},
	}
}

// WithWeight returns a copy with the weight for name set. Zero silences the
// list, negative values invert its influence.
func (w Weighted) WithWeight(name string, weight float64) Weighted {
	weights := make(map[string]float64, len(w.weights)+1)
	for k, v := range w.weights {
		weights[k] = v
	}
	weights[name] = weight
	w.weights = weights
	return w
}

// WithWeights returns a copy whose weights are replaced by the given map.
func (w Weighted) WithWeights(weights map[string]float64) Weighted {
	cp := make(map[string]float64, len(weights))
	for k, v := range weights {
		cp[k] = v
	}
	w.weights = cp
	return w
}

// TopN returns the output size cap.
func (w Weighted) TopN() int {
	return w.topn
}

// Metric returns the metric used for normalization.
func (w Weighted) Metric() MetricKind {
	return w.metric
}

// Weight returns the effective weight for a list name.
func (w Weighted) Weight(name string) float64 {
	if weight, ok := w.weights[name]; ok {
		return weight
	}
	return DefaultWeight
}

// Fuse sums Normalize(score)*weight per item across every list.
func (w Weighted) Fuse(results NamedResultSet) FusedResult {
	acc := make(map[string]float64)
	for _, name := range sortedNames(results) {
		weight := w.Weight(name)
		for _, it := range results[name] {
			acc[it.ID] += Normalize(it.Score, w.metric) * weight
		}
	}
	return selectTopN(acc, w.topn)
}
