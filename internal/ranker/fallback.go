package ranker

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/fystack/lotto-indexer/internal/recency"
	"github.com/fystack/lotto-indexer/internal/stats"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/retry"
)

// fallbackSource loads the draw history once per SelectCover call.
type fallbackSource struct {
	ranker *Ranker

	once    sync.Once
	err     error
	freq    [][]int // per position, numbers by descending frequency
	windows *recency.Windows
	ranks   recency.RankTable
}

func (fb *fallbackSource) load(ctx context.Context) error {
	fb.once.Do(func() {
		r := fb.ranker
		draws, err := retry.Value(ctx, func() ([]types.Draw, error) {
			return r.deps.Draws.LoadAll(ctx, r.game.Code)
		}, r.deps.Retry)
		if err != nil {
			fb.err = unavailable("load draws", err)
			return
		}
		fb.freq = rankByFrequency(stats.PositionFrequency(draws, r.game.PickSize))
		fb.windows, fb.err = recency.NewWindows(draws, r.game.DupDepth)
		fb.ranks = recency.BuildRankTable(draws, r.game.RankWindow)
	})
	return fb.err
}

func rankByFrequency(freq []map[int]int) [][]int {
	out := make([][]int, len(freq))
	for p, counts := range freq {
		nums := make([]int, 0, len(counts))
		for v := range counts {
			nums = append(nums, v)
		}
		slices.SortFunc(nums, func(a, b int) int {
			if c := cmp.Compare(counts[b], counts[a]); c != 0 {
				return c
			}
			return cmp.Compare(a, b)
		})
		out[p] = nums
	}
	return out
}

// fromTables lists, per position, the numbers of the weighted tables worth considering.
func fromTables(tables []types.ColumnTable) ([][]int, bool) {
	out := make([][]int, len(tables))
	found := false
	for p, t := range tables {
		for _, s := range t.Scores {
			if s.PercentWA >= minFallbackScore {
				out[p] = append(out[p], s.Number)
			}
		}
		found = found || len(out[p]) > 0
	}
	return out, found
}

// Assemble picks, per position, the first candidate that keeps the
// combination strictly increasing and leaves room for the remaining
// positions. Positions without a usable candidate take the next free value.
func Assemble(candidates [][]int, n, k int) types.Combination {
	c := make(types.Combination, k)
	prev := 0
	for p := range k {
		ceiling := n - (k - 1 - p)
		pick := prev + 1
		if p < len(candidates) {
			for _, v := range candidates[p] {
				if v > prev && v <= ceiling {
					pick = v
					break
				}
			}
		}
		c[p] = pick
		prev = pick
	}
	return c
}

func (r *Ranker) synthesize(ctx context.Context, sig types.Signature, fb *fallbackSource) (types.CombinationRecord, error) {
	tables, err := retry.Value(ctx, func() ([]types.ColumnTable, error) {
		return r.deps.Columns.LoadSignatureTables(r.game.Code, sig, r.game.PickSize)
	}, r.deps.Retry)
	if err != nil {
		return types.CombinationRecord{}, unavailable("load column tables", err)
	}

	if err := fb.load(ctx); err != nil {
		return types.CombinationRecord{}, err
	}
	candidates, ok := fromTables(tables)
	if !ok {
		candidates = fb.freq
		if !hasAny(candidates) {
			return types.CombinationRecord{}, types.ErrEmptyFallbackSource
		}
	}

	c := Assemble(candidates, r.game.MaxNumber, r.game.PickSize)
	f, err := r.extractor.Extract(c)
	if err != nil {
		return types.CombinationRecord{}, fmt.Errorf("synthesized %s: %w", c.Key(), err)
	}
	rec := types.CombinationRecord{
		Numbers:      c,
		Sum:          f.Sum,
		Even:         f.Even,
		Odd:          f.Odd,
		DigitRange:   f.DigitRange,
		PairSums:     f.PairSums,
		PairSumTotal: f.PairSumTotal,
		Y1Sum:        stats.Y1Sum(c, tables),
		LastUpdated:  r.deps.Now(),
	}
	recency.Apply(&rec, fb.windows, fb.ranks)
	return rec, nil
}

func hasAny(candidates [][]int) bool {
	for _, c := range candidates {
		if len(c) > 0 {
			return true
		}
	}
	return false
}
