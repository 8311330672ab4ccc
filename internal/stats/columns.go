package stats

import (
	"cmp"
	"slices"

	"github.com/fystack/lotto-indexer/internal/features"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/shopspring/decimal"
)

// scorePlaces is the precision percent_wa and y1_sum are stored with.
const scorePlaces = 3

func round(v float64, places int32) float64 {
	f, _ := decimal.NewFromFloat(v).Round(places).Float64()
	return f
}

// windowSize resolves a configured window; 0 means the whole history.
func windowSize(w, total int) int {
	if w <= 0 || w > total {
		return total
	}
	return w
}

// BuildColumnTables scores, for every signature seen in draws (most recent
// first) and every sorted position, how often each number appeared there.
// For window w, count_w is the number of signature draws among the last w
// draws holding the number at that position and size_w the number of
// signature draws in the window. percent_wa = Σ count_w/size_w*100 / len(windows).
func BuildColumnTables(draws []types.Draw, windows []int) []types.ColumnTable {
	if len(draws) == 0 || len(windows) == 0 {
		return nil
	}
	sorted := make([]types.Combination, len(draws))
	sigs := make([]types.Signature, len(draws))
	for i, d := range draws {
		sorted[i] = d.Sorted()
		sigs[i] = Signature(sorted[i])
	}

	type cell struct {
		sig types.Signature
		pos int
	}
	// counts[cell][number][window index]
	counts := map[cell]map[int][]int{}
	// sizes[sig][window index]
	sizes := map[types.Signature][]int{}

	for wi, w := range windows {
		size := windowSize(w, len(draws))
		for i := 0; i < size; i++ {
			sig := sigs[i]
			if sizes[sig] == nil {
				sizes[sig] = make([]int, len(windows))
			}
			sizes[sig][wi]++
			for p, v := range sorted[i] {
				key := cell{sig: sig, pos: p + 1}
				if counts[key] == nil {
					counts[key] = map[int][]int{}
				}
				if counts[key][v] == nil {
					counts[key][v] = make([]int, len(windows))
				}
				counts[key][v][wi]++
			}
		}
	}

	weight := decimal.NewFromInt(1).Div(decimal.NewFromInt(int64(len(windows))))
	hundred := decimal.NewFromInt(100)
	tables := make([]types.ColumnTable, 0, len(counts))
	for key, numbers := range counts {
		t := types.ColumnTable{Signature: key.sig, Position: key.pos}
		for number, perWindow := range numbers {
			score := decimal.Zero
			for wi, c := range perWindow {
				size := sizes[key.sig][wi]
				if size == 0 || c == 0 {
					continue
				}
				score = score.Add(decimal.NewFromInt(int64(c)).Div(decimal.NewFromInt(int64(size))).Mul(hundred).Mul(weight))
			}
			pct, _ := score.Round(scorePlaces).Float64()
			t.Scores = append(t.Scores, types.ColumnScore{Number: number, Counts: perWindow, PercentWA: pct})
		}
		sortScores(t.Scores)
		tables = append(tables, t)
	}
	slices.SortFunc(tables, func(a, b types.ColumnTable) int {
		if c := cmp.Compare(a.Signature.Key(), b.Signature.Key()); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return tables
}

// sortScores orders by PercentWA descending, smaller number first on ties.
func sortScores(scores []types.ColumnScore) {
	slices.SortFunc(scores, func(a, b types.ColumnScore) int {
		if c := cmp.Compare(b.PercentWA, a.PercentWA); c != 0 {
			return c
		}
		return cmp.Compare(a.Number, b.Number)
	})
}

// Signature of a sorted combination.
func Signature(c types.Combination) types.Signature {
	s := types.Signature{}
	for _, v := range c {
		s.Sum += v
		if features.IsEven(v) {
			s.Even++
		} else {
			s.Odd++
		}
	}
	return s
}

// Y1Sum adds, per position, the weighted column score of the element found there.
// tables is indexed by position-1; missing tables contribute 0.
func Y1Sum(c types.Combination, tables []types.ColumnTable) float64 {
	total := decimal.Zero
	for i, v := range c {
		if i >= len(tables) {
			break
		}
		total = total.Add(decimal.NewFromFloat(tables[i].Score(v)))
	}
	f, _ := total.Round(scorePlaces).Float64()
	return f
}

// PositionFrequency counts, per sorted position, how often each number was drawn there.
func PositionFrequency(draws []types.Draw, k int) []map[int]int {
	freq := make([]map[int]int, k)
	for i := range freq {
		freq[i] = map[int]int{}
	}
	for _, d := range draws {
		for p, v := range d.Sorted() {
			if p < k {
				freq[p][v]++
			}
		}
	}
	return freq
}

// SignatureCounts counts signature occurrences among the last window draws (0 = all).
func SignatureCounts(draws []types.Draw, window int) map[types.Signature]int {
	out := map[types.Signature]int{}
	for _, d := range draws[:windowSize(window, len(draws))] {
		out[Signature(d.Sorted())]++
	}
	return out
}
