// Package combo enumerates k-combinations of [1..n] in lexicographic order.
package combo

import (
	"context"
	"fmt"
	"iter"
	"math/bits"

	"github.com/fystack/lotto-indexer/pkg/common/types"
)

// Cursor walks combinations lazily. It is not safe for concurrent use.
type Cursor struct {
	n, k    int
	cur     types.Combination
	pending bool
	done    bool
}

func validate(n, k int) error {
	if n < 1 || k < 1 || k > n {
		return fmt.Errorf("%w: n=%d k=%d", types.ErrInvalidCombination, n, k)
	}
	return nil
}

// Enumerate starts at (1, 2, ..., k).
func Enumerate(n, k int) (*Cursor, error) {
	if err := validate(n, k); err != nil {
		return nil, err
	}
	first := make(types.Combination, k)
	for i := range first {
		first[i] = i + 1
	}
	return &Cursor{n: n, k: k, cur: first, pending: true}, nil
}

// Resume starts at start, which is yielded first.
func Resume(n, k int, start types.Combination) (*Cursor, error) {
	if err := validate(n, k); err != nil {
		return nil, err
	}
	if err := Validate(start, n, k); err != nil {
		return nil, err
	}
	return &Cursor{n: n, k: k, cur: start.Clone(), pending: true}, nil
}

// ResumeAfter starts at the successor of last, so last itself is not repeated.
func ResumeAfter(n, k int, last types.Combination) (*Cursor, error) {
	c, err := Resume(n, k, last)
	if err != nil {
		return nil, err
	}
	c.pending = false
	return c, nil
}

// Validate reports whether c is a strictly increasing k-tuple over [1..n].
func Validate(c types.Combination, n, k int) error {
	if len(c) != k {
		return fmt.Errorf("%w: want %d elements, got %d", types.ErrInvalidCombination, k, len(c))
	}
	for i, v := range c {
		if v < 1 || v > n {
			return fmt.Errorf("%w: %d outside 1..%d", types.ErrInvalidCombination, v, n)
		}
		if i > 0 && v <= c[i-1] {
			return fmt.Errorf("%w: %s is not strictly increasing", types.ErrInvalidCombination, c.Key())
		}
	}
	return nil
}

// Next returns a copy of the next combination, or false once exhausted.
func (c *Cursor) Next() (types.Combination, bool) {
	if c.done {
		return nil, false
	}
	if c.pending {
		c.pending = false
		return c.cur.Clone(), true
	}
	if !c.advance() {
		c.done = true
		return nil, false
	}
	return c.cur.Clone(), true
}

// advance increments the last position and carries left on overflow.
// Position i (0-based) may hold at most n-(k-1-i).
func (c *Cursor) advance() bool {
	i := c.k - 1
	for i >= 0 && c.cur[i] == c.n-(c.k-1-i) {
		i--
	}
	if i < 0 {
		return false
	}
	c.cur[i]++
	for j := i + 1; j < c.k; j++ {
		c.cur[j] = c.cur[j-1] + 1
	}
	return true
}

// Seq adapts the cursor to range-over-func. Iteration stops when ctx is done.
func (c *Cursor) Seq(ctx context.Context) iter.Seq[types.Combination] {
	return func(yield func(types.Combination) bool) {
		for {
			if ctx.Err() != nil {
				return
			}
			comb, ok := c.Next()
			if !ok || !yield(comb) {
				return
			}
		}
	}
}

// Count returns C(n, k), or 0 when the arguments are invalid or the result overflows uint64.
func Count(n, k int) uint64 {
	if validate(n, k) != nil {
		return 0
	}
	if k > n-k {
		k = n - k
	}
	var result uint64 = 1
	for i := 1; i <= k; i++ {
		// result * (n-k+i) / i stays integral at every step
		hi, lo := bits.Mul64(result, uint64(n-k+i))
		if hi >= uint64(i) {
			return 0
		}
		result, _ = bits.Div64(hi, lo, uint64(i))
	}
	return result
}

// Rank returns the 1-based position of c in the lexicographic enumeration of
// len(c)-combinations of [1..n], or 0 when c is not a valid combination.
func Rank(n int, c types.Combination) uint64 {
	k := len(c)
	if k == 0 || Validate(c, n, k) != nil {
		return 0
	}
	var rank uint64 = 1
	prev := 0
	for i, v := range c {
		// every combination that agrees on c[:i] and holds a smaller value at i comes first
		for u := prev + 1; u < v; u++ {
			rank += binomial(n-u, k-1-i)
		}
		prev = v
	}
	return rank
}

func binomial(n, r int) uint64 {
	if r == 0 {
		return 1
	}
	return Count(n, r)
}
