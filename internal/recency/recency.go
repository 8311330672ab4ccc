// Package recency compares combinations against the most recent draws.
package recency

import (
	"fmt"
	"maps"
	"slices"

	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/types"
)

// Windows counts draw hits per number over the nested recent-draw windows.
// Window d (1-based) covers the d most recent draws. It is read-only once built.
type Windows struct {
	hits []map[int]int
}

// NewWindows builds windows 1..depth from draws ordered most recent first.
// When fewer draws exist the deeper windows repeat the whole history.
func NewWindows(draws []types.Draw, depth int) (*Windows, error) {
	if depth < 1 {
		return nil, fmt.Errorf("dup depth must be >= 1, got %d", depth)
	}
	w := &Windows{hits: make([]map[int]int, depth)}
	acc := map[int]int{}
	for d := 1; d <= depth; d++ {
		if d <= len(draws) {
			for _, n := range draws[d-1].Numbers {
				acc[n]++
			}
		}
		w.hits[d-1] = maps.Clone(acc)
	}
	return w, nil
}

func (w *Windows) Depth() int {
	return len(w.hits)
}

// Hits returns how many of the last d draws contained v.
func (w *Windows) Hits(d, v int) int {
	if d < 1 || d > len(w.hits) {
		return 0
	}
	return w.hits[d-1][v]
}

// RankTable maps a number to how often it was drawn in the rank window, capped at MaxRankBucket.
type RankTable map[int]int

// BuildRankTable counts occurrences in the first window draws (most recent first).
func BuildRankTable(draws []types.Draw, window int) RankTable {
	rt := RankTable{}
	if window > len(draws) {
		window = len(draws)
	}
	for _, d := range draws[:max(window, 0)] {
		for _, n := range d.Numbers {
			rt[n]++
		}
	}
	return rt
}

// Rank returns the rank bucket of v; unseen numbers are rank 0.
func (rt RankTable) Rank(v int) int {
	return min(rt[v], constant.MaxRankBucket)
}

type Match struct {
	// Dup[d-1] sums, over the elements, the draws in window d that contain them.
	Dup  []int
	Rank []int
}

// Compute is pure and safe to call concurrently on shared windows and rank tables.
func Compute(c types.Combination, w *Windows, ranks RankTable) Match {
	m := Match{
		Dup:  make([]int, w.Depth()),
		Rank: make([]int, constant.RankBuckets),
	}
	for d := 1; d <= w.Depth(); d++ {
		for _, v := range c {
			m.Dup[d-1] += w.Hits(d, v)
		}
	}
	for _, v := range c {
		m.Rank[ranks.Rank(v)]++
	}
	return m
}

// Apply refreshes the recency fields of rec in place and reports whether anything changed.
func Apply(rec *types.CombinationRecord, w *Windows, ranks RankTable) bool {
	m := Compute(rec.Numbers, w, ranks)
	changed := !slices.Equal(rec.Dup, m.Dup) || !slices.Equal(rec.Rank, m.Rank)
	rec.Dup = m.Dup
	rec.Rank = m.Rank
	return changed
}
