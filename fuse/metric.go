package fuse

import (
	"fmt"
	"math"
	"strings"
)

// MetricKind identifies the distance or similarity function that produced a
// list's raw scores.
type MetricKind int

const (
	// MetricUndefined leaves scores untouched during normalization.
	MetricUndefined MetricKind = iota
	// MetricL2 is squared Euclidean distance; smaller is closer.
	MetricL2
	// MetricIP is inner product; larger is closer.
	MetricIP
	// MetricCosine is cosine distance in [0,2]; smaller is closer.
	MetricCosine
	// MetricMIPSL2 is the engine's MIPS-to-L2 transform. Its scores pass through.
	MetricMIPSL2
)

// String returns the canonical lowercase name.
func (m MetricKind) String() string {
	switch m {
	case MetricL2:
		return "l2"
	case MetricIP:
		return "ip"
	case MetricCosine:
		return "cosine"
	case MetricMIPSL2:
		return "mipsl2"
	default:
		return "undefined"
	}
}

// ParseMetric accepts the canonical names plus the Qdrant distance spellings.
func ParseMetric(name string) (MetricKind, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "undefined":
		return MetricUndefined, nil
	case "l2", "euclid", "euclidean":
		return MetricL2, nil
	case "ip", "dot", "inner_product":
		return MetricIP, nil
	case "cosine":
		return MetricCosine, nil
	case "mipsl2", "mips_l2":
		return MetricMIPSL2, nil
	default:
		return MetricUndefined, fmt.Errorf("unknown metric %q", name)
	}
}

// Normalize maps a raw score into a comparable scale where larger means more
// similar. Non-finite input propagates.
func Normalize(score float32, metric MetricKind) float64 {
	s := float64(score)
	switch metric {
	case MetricL2:
		return 1 - 2*math.Atan(s)/math.Pi
	case MetricIP:
		return 0.5 + math.Atan(s)/math.Pi
	case MetricCosine:
		return 1 - s/2
	default:
		return s
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m MetricKind) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *MetricKind) UnmarshalText(text []byte) error {
	parsed, err := ParseMetric(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
