package fuse

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func list(ids ...string) RankedList {
	out := make(RankedList, len(ids))
	for i, id := range ids {
		out[i] = Item{ID: id, Score: float32(len(ids) - i)}
	}
	return out
}

func TestRRFSingleListKeepsOrder(t *testing.T) {
	in := NamedResultSet{"v1": list("a", "b", "c", "d", "e")}

	got := NewRRF(3).Fuse(in)

	assert.Equal(t, []string{"a", "b", "c"}, got.IDs())
	assert.InDelta(t, 1.0/61.0, got[0].Score, 1e-7)
}

func TestRRFTieBreaksByID(t *testing.T) {
	in := NamedResultSet{
		"v1": list("b", "a"),
		"v2": list("a", "b"),
	}

	got := NewRRF(2).Fuse(in)

	require.Len(t, got, 2)
	assert.Equal(t, []string{"a", "b"}, got.IDs())
	want := float32(1.0/61.0 + 1.0/62.0)
	assert.InDelta(t, want, got[0].Score, 1e-7)
	assert.Equal(t, got[0].Score, got[1].Score)
}

func TestRRFMonotonicInRank(t *testing.T) {
	in := NamedResultSet{"v1": list("x", "p1", "p2", "p3", "p4", "y")}

	got := NewRRF(10).Fuse(in)

	scores := map[string]float32{}
	for _, it := range got {
		scores[it.ID] = it.Score
	}
	assert.Greater(t, scores["x"], scores["y"])
}

func TestRRFIgnoresScores(t *testing.T) {
	a := NamedResultSet{"v1": {{ID: "a", Score: 0.001}, {ID: "b", Score: 999}}}
	b := NamedResultSet{"v1": {{ID: "a", Score: -5}, {ID: "b", Score: float32(math.Inf(1))}}}

	assert.Equal(t, NewRRF(5).Fuse(a), NewRRF(5).Fuse(b))
}

func TestRRFRankConstant(t *testing.T) {
	r := NewRRF(1).WithRankConstant(0)
	assert.Equal(t, int32(0), r.RankConstant())
	assert.Equal(t, int32(DefaultRankConstant), NewRRF(1).RankConstant())

	got := r.Fuse(NamedResultSet{"v1": list("a")})
	require.Len(t, got, 1)
	assert.InDelta(t, 1.0, got[0].Score, 1e-7)
}

func TestRRFEmptyInputs(t *testing.T) {
	assert.Empty(t, NewRRF(10).Fuse(nil))
	assert.Empty(t, NewRRF(10).Fuse(NamedResultSet{"v1": {}, "v2": nil}))
	assert.Empty(t, NewRRF(0).Fuse(NamedResultSet{"v1": list("a")}))
	assert.Empty(t, NewRRF(-3).Fuse(NamedResultSet{"v1": list("a")}))
}

func TestWeightedCosineScenario(t *testing.T) {
	w := NewWeighted(1, MetricCosine).WithWeight("v1", 2.0)

	got := w.Fuse(NamedResultSet{"v1": {{ID: "x", Score: 0.2}}})

	require.Len(t, got, 1)
	assert.Equal(t, "x", got[0].ID)
	assert.InDelta(t, 1.8, got[0].Score, 1e-6)
}

func TestWeightedDisjointLists(t *testing.T) {
	w := NewWeighted(5, MetricCosine)

	got := w.Fuse(NamedResultSet{
		"v1": {{ID: "x", Score: 0.1}},
		"v2": {{ID: "y", Score: 0.1}},
	})

	require.Len(t, got, 2)
	assert.ElementsMatch(t, []string{"x", "y"}, got.IDs())
	for _, it := range got {
		assert.InDelta(t, 0.95, it.Score, 1e-6)
	}
}

func TestWeightedZeroWeightExcludesList(t *testing.T) {
	a := RankedList{{ID: "x", Score: 0.1}, {ID: "y", Score: 0.4}}
	b := RankedList{{ID: "y", Score: 0.2}, {ID: "x", Score: 0.9}}

	w := NewWeighted(10, MetricL2).WithWeight("B", 0)

	assert.Equal(t,
		w.Fuse(NamedResultSet{"A": a}),
		w.Fuse(NamedResultSet{"A": a, "B": b}),
	)
}

func TestWeightedSumsAcrossLists(t *testing.T) {
	w := NewWeighted(10, MetricIP).WithWeights(map[string]float64{"a": 0.5, "b": 0.25})

	got := w.Fuse(NamedResultSet{
		"a": {{ID: "x", Score: 0}},
		"b": {{ID: "x", Score: 0}},
	})

	require.Len(t, got, 1)
	assert.InDelta(t, 0.5*0.5+0.5*0.25, got[0].Score, 1e-7)
}

func TestWeightedNegativeWeightInverts(t *testing.T) {
	w := NewWeighted(10, MetricUndefined).WithWeight("v1", -1)

	got := w.Fuse(NamedResultSet{"v1": {{ID: "hi", Score: 3}, {ID: "lo", Score: 1}}})

	assert.Equal(t, []string{"lo", "hi"}, got.IDs())
}

func TestWeightedBuildersDoNotAlias(t *testing.T) {
	src := map[string]float64{"v1": 2}
	base := NewWeighted(1, MetricUndefined).WithWeights(src)
	src["v1"] = 100

	tuned := base.WithWeight("v1", 3)

	assert.Equal(t, 2.0, base.Weight("v1"))
	assert.Equal(t, 3.0, tuned.Weight("v1"))
	assert.Equal(t, DefaultWeight, base.Weight("missing"))
}

func TestFusionIsOrderInvariant(t *testing.T) {
	listA := RankedList{{ID: "a", Score: 0.3}, {ID: "b", Score: 0.1}, {ID: "c", Score: 1.7}}
	listB := RankedList{{ID: "c", Score: 0.05}, {ID: "d", Score: 0.9}, {ID: "a", Score: 0.2}}

	ab := NamedResultSet{}
	ab["A"] = listA
	ab["B"] = listB
	ba := NamedResultSet{}
	ba["B"] = listB
	ba["A"] = listA

	fusers := []Fuser{
		NewRRF(10),
		NewWeighted(10, MetricL2).WithWeight("A", 0.7),
	}
	for _, f := range fusers {
		for i := 0; i < 20; i++ {
			assert.Equal(t, f.Fuse(ab), f.Fuse(ba))
		}
	}
}

func TestTruncationBound(t *testing.T) {
	in := NamedResultSet{
		"v1": list("a", "b", "c"),
		"v2": list("c", "d"),
		"v3": list("a", "a", "e"),
	}
	distinct := in.Distinct()
	require.Equal(t, 5, distinct)

	for topn := 0; topn <= 7; topn++ {
		want := topn
		if want > distinct {
			want = distinct
		}
		assert.Len(t, NewRRF(topn).Fuse(in), want)
		assert.Len(t, NewWeighted(topn, MetricCosine).Fuse(in), want)
	}
}

func TestDuplicateIDsAccumulate(t *testing.T) {
	got := NewRRF(5).Fuse(NamedResultSet{"v1": list("a", "a")})

	require.Len(t, got, 1)
	assert.InDelta(t, 1.0/61.0+1.0/62.0, got[0].Score, 1e-7)
}

func TestNaNSortsLast(t *testing.T) {
	nan := float32(math.NaN())
	w := NewWeighted(10, MetricUndefined)

	got := w.Fuse(NamedResultSet{"v1": {
		{ID: "n", Score: nan},
		{ID: "low", Score: -10},
		{ID: "high", Score: 10},
	}})

	require.Len(t, got, 3)
	assert.Equal(t, []string{"high", "low", "n"}, got.IDs())
	assert.True(t, math.IsNaN(float64(got[2].Score)))
}

type fieldName string

func TestFuseNamedAcceptsStringKinds(t *testing.T) {
	in := map[fieldName]RankedList{"dense": list("a", "b")}

	got := FuseNamed(NewRRF(1), in)

	assert.Equal(t, []string{"a"}, got.IDs())
}
