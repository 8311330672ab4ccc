// Package features derives per-combination statistics: sum, parity split,
// digit-range bucket counts and pairwise sums.
package features

import (
	"fmt"

	"github.com/fystack/lotto-indexer/internal/combo"
	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/types"
)

type Features struct {
	Sum          int
	Even         int
	Odd          int
	DigitRange   []int
	PairSums     []types.PairSum
	PairSumTotal int
}

func (f Features) Signature() types.Signature {
	return types.Signature{Sum: f.Sum, Even: f.Even, Odd: f.Odd}
}

// Extractor is immutable after construction and safe for concurrent use.
type Extractor struct {
	n, k       int
	boundaries []int
	pairs      [][2]int
}

func NewExtractor(n, k, buckets int) (*Extractor, error) {
	if n < 1 || k < 1 || k > n {
		return nil, fmt.Errorf("%w: n=%d k=%d", types.ErrInvalidCombination, n, k)
	}
	if buckets < constant.MinDigitRanges || buckets > constant.MaxDigitRanges {
		return nil, fmt.Errorf("digit range buckets must be in %d..%d, got %d",
			constant.MinDigitRanges, constant.MaxDigitRanges, buckets)
	}
	return &Extractor{
		n:          n,
		k:          k,
		boundaries: Boundaries(n, buckets),
		pairs:      pairPositions(k),
	}, nil
}

// Boundaries returns floor((n/b)*i) for i in 1..b-1, with the division done in floating point.
func Boundaries(n, b int) []int {
	out := make([]int, b-1)
	width := float64(n) / float64(b)
	for i := 1; i < b; i++ {
		out[i-1] = int(width * float64(i))
	}
	return out
}

// Bucket returns the 1-based digit-range bucket of v. The scan runs from the
// highest boundary down so every value lands in exactly one bucket.
func Bucket(v int, boundaries []int) int {
	for i := len(boundaries) - 1; i >= 0; i-- {
		if v > boundaries[i] {
			return i + 2
		}
	}
	return 1
}

// IsEven treats 0 as even.
func IsEven(v int) bool {
	return v%2 == 0
}

func pairPositions(k int) [][2]int {
	pairs := make([][2]int, 0, k*(k-1)/2)
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			pairs = append(pairs, [2]int{i, j})
		}
	}
	return pairs
}

func (e *Extractor) N() int { return e.n }

func (e *Extractor) K() int { return e.k }

func (e *Extractor) Boundaries() []int {
	return append([]int(nil), e.boundaries...)
}

func (e *Extractor) Extract(c types.Combination) (Features, error) {
	if err := combo.Validate(c, e.n, e.k); err != nil {
		return Features{}, err
	}

	f := Features{DigitRange: make([]int, len(e.boundaries)+1)}
	for _, v := range c {
		f.Sum += v
		if IsEven(v) {
			f.Even++
		} else {
			f.Odd++
		}
		f.DigitRange[Bucket(v, e.boundaries)-1]++
	}

	f.PairSums = make([]types.PairSum, len(e.pairs))
	for idx, p := range e.pairs {
		s := c[p[0]] + c[p[1]]
		f.PairSums[idx] = types.PairSum{Index: idx + 1, Left: p[0] + 1, Right: p[1] + 1, Sum: s}
		f.PairSumTotal += s
	}
	return f, nil
}
