package fuse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name   string
		score  float32
		metric MetricKind
		want   float64
	}{
		{"l2 zero distance", 0, MetricL2, 1},
		{"l2 unit distance", 1, MetricL2, 0.5},
		{"ip zero", 0, MetricIP, 0.5},
		{"ip unit", 1, MetricIP, 0.75},
		{"cosine identical", 0, MetricCosine, 1},
		{"cosine opposite", 2, MetricCosine, 0},
		{"cosine half", 0.5, MetricCosine, 0.75},
		{"undefined passes through", 3.5, MetricUndefined, 3.5},
		{"mipsl2 passes through", -1.25, MetricMIPSL2, -1.25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, Normalize(tt.score, tt.metric), 1e-9)
		})
	}
}

func TestNormalizeSaturates(t *testing.T) {
	assert.InDelta(t, -1, Normalize(float32(math.Inf(1)), MetricL2), 1e-9)
	assert.InDelta(t, 1, Normalize(float32(math.Inf(1)), MetricIP), 1e-9)
	assert.InDelta(t, 0, Normalize(float32(math.Inf(-1)), MetricIP), 1e-9)
}

func TestNormalizePropagatesNaN(t *testing.T) {
	nan := float32(math.NaN())
	for _, m := range []MetricKind{MetricL2, MetricIP, MetricCosine, MetricUndefined} {
		assert.True(t, math.IsNaN(Normalize(nan, m)), m.String())
	}
}

func TestParseMetric(t *testing.T) {
	for name, want := range map[string]MetricKind{
		"":        MetricUndefined,
		"L2":      MetricL2,
		"Euclid":  MetricL2,
		"ip":      MetricIP,
		"Dot":     MetricIP,
		" cosine": MetricCosine,
		"mipsl2":  MetricMIPSL2,
	} {
		got, err := ParseMetric(name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := ParseMetric("hamming")
	assert.Error(t, err)
}
