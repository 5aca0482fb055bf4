package fuse

// DefaultRankConstant is the smoothing constant used when none is set.
const DefaultRankConstant int32 = 60

// RRF fuses lists with Reciprocal Rank Fusion. Only positions matter; raw
// scores are ignored. The zero value is not useful, build one with NewRRF.
type RRF struct {
	topn         int
	rankConstant int32
}

// NewRRF returns an RRF fuser keeping at most topn items.
func NewRRF(topn int) RRF {
	return RRF{
		topn:         topn,
		rankConstant: DefaultRankConstant,
	}
}

// WithRankConstant returns a copy using k as the rank constant. Negative
// values are accepted as-is.
func (r RRF) WithRankConstant(k int32) RRF {
	r.rankConstant = k
	return r
}

// TopN returns the output size cap.
func (r RRF) TopN() int {
	return r.topn
}

// RankConstant returns the configured rank constant.
func (r RRF) RankConstant() int32 {
	return r.rankConstant
}

func (r RRF) contribution(rank int) float64 {
	return 1.0 / (float64(r.rankConstant) + float64(rank) + 1.0)
}

// Fuse sums 1/(k+rank+1) per item across every list, rank being zero-based.
func (r RRF) Fuse(results NamedResultSet) FusedResult {
	acc := make(map[string]float64)
	for _, name := range sortedNames(results) {
		for rank, it := range results[name] {
			acc[it.ID] += r.contribution(rank)
		}
	}
	return selectTopN(acc, r.topn)
}
