// Package fuse combines independently ranked result lists into a single ranking.
package fuse

import (
	"math"
	"sort"
)

// Item is a single (identifier, score) pair from a ranked list.
type Item struct {
	ID    string  `json:"id"`
	Score float32 `json:"score"`
}

// RankedList is ordered by descending relevance; position encodes rank.
type RankedList []Item

// NamedResultSet maps a list name (typically a vector field) to its ranked list.
type NamedResultSet map[string]RankedList

// FusedResult is the fused ranking, ordered by descending fused score.
type FusedResult []Item

// Fuser merges a set of named ranked lists.
type Fuser interface {
	Fuse(results NamedResultSet) FusedResult
}

// FuseNamed runs f over results keyed by any string-kinded name type.
func FuseNamed[K ~string](f Fuser, results map[K]RankedList) FusedResult {
	named := make(NamedResultSet, len(results))
	for name, list := range results {
		named[string(name)] = list
	}
	return f.Fuse(named)
}

// IDs returns the item identifiers in order.
func (r FusedResult) IDs() []string {
	ids := make([]string, len(r))
	for i, it := range r {
		ids[i] = it.ID
	}
	return ids
}

// Distinct counts the distinct identifiers across all lists.
func (s NamedResultSet) Distinct() int {
	seen := make(map[string]struct{})
	for _, list := range s {
		for _, it := range list {
			seen[it.ID] = struct{}{}
		}
	}
	return len(seen)
}

// sortedNames returns the list names in lexical order. Accumulating in a
// fixed order keeps float sums bit-identical regardless of map iteration.
func sortedNames(results NamedResultSet) []string {
	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

type scored struct {
	id    string
	score float64
}

// selectTopN orders the accumulator by descending score and keeps the first
// topn entries. Equal scores fall back to ascending ID; NaN sorts last.
func selectTopN(acc map[string]float64, topn int) FusedResult {
	if topn <= 0 || len(acc) == 0 {
		return FusedResult{}
	}

	items := make([]scored, 0, len(acc))
	for id, score := range acc {
		items = append(items, scored{id: id, score: score})
	}

	sort.Slice(items, func(i, j int) bool {
		return ranksBefore(items[i], items[j])
	})

	if topn > len(items) {
		topn = len(items)
	}

	out := make(FusedResult, topn)
	for i := 0; i < topn; i++ {
		out[i] = Item{ID: items[i].id, Score: float32(items[i].score)}
	}
	return out
}

func ranksBefore(a, b scored) bool {
	aNaN, bNaN := math.IsNaN(a.score), math.IsNaN(b.score)
	switch {
	case aNaN && bNaN:
		return a.id < b.id
	case aNaN:
		return false
	case bNaN:
		return true
	}
	if a.score != b.score {
		return a.score > b.score
	}
	return a.id < b.id
}
