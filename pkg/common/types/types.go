package types

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Combination is an ascending sequence of distinct numbers drawn from [1..N].
type Combination []int

// Key returns the canonical storage key. Numbers are zero padded so that
// lexicographic key order matches combination order.
func (c Combination) Key() string {
	var b strings.Builder
	for i, v := range c {
		if i > 0 {
			b.WriteByte('-')
		}
		if v < 10 {
			b.WriteByte('0')
		}
		b.WriteString(strconv.Itoa(v))
	}
	return b.String()
}

func (c Combination) String() string {
	return c.Key()
}

func (c Combination) Clone() Combination {
	return slices.Clone(c)
}

func (c Combination) Sum() int {
	total := 0
	for _, v := range c {
		total += v
	}
	return total
}

// ParseCombination parses a key produced by Combination.Key.
func ParseCombination(key string) (Combination, error) {
	if key == "" {
		return nil, fmt.Errorf("%w: empty key", ErrInvalidCombination)
	}
	parts := strings.Split(key, "-")
	c := make(Combination, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCombination, key)
		}
		c[i] = v
	}
	return c, nil
}

// Signature groups combinations by sum and parity split.
type Signature struct {
	Sum  int `json:"sum"`
	Even int `json:"even"`
	Odd  int `json:"odd"`
}

func (s Signature) Key() string {
	return fmt.Sprintf("%d-%d-%d", s.Sum, s.Even, s.Odd)
}

func (s Signature) String() string {
	return s.Key()
}

func ParseSignature(key string) (Signature, error) {
	var s Signature
	n, err := fmt.Sscanf(key, "%d-%d-%d", &s.Sum, &s.Even, &s.Odd)
	if err != nil || n != 3 {
		return Signature{}, fmt.Errorf("invalid signature %q", key)
	}
	return s, nil
}

// Draw is one historical result. Numbers keep the drawn order.
type Draw struct {
	Date    time.Time `json:"date"`
	Numbers []int     `json:"numbers"`
}

// Sorted returns the draw numbers as a Combination.
func (d Draw) Sorted() Combination {
	c := Combination(slices.Clone(d.Numbers))
	slices.Sort(c)
	return c
}

func (d Draw) MarshalBinary() ([]byte, error) {
	return json.Marshal(d)
}

func (d *Draw) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, d)
}

// PairSum is the sum of two elements at 1-based positions Left < Right.
// Index follows column order: 1-2, 1-3, ..., (k-1)-k.
type PairSum struct {
	Index int `json:"index"`
	Left  int `json:"left"`
	Right int `json:"right"`
	Sum   int `json:"sum"`
}

// CombinationRecord holds the derived features of one combination.
type CombinationRecord struct {
	Numbers      Combination `json:"numbers"`
	Sum          int         `json:"sum"`
	Even         int         `json:"even"`
	Odd          int         `json:"odd"`
	DigitRange   []int       `json:"digit_range"`
	PairSums     []PairSum   `json:"pair_sums"`
	PairSumTotal int         `json:"pair_sum_total"`
	// Dup[d-1] counts draw hits of the elements within the last d draws.
	Dup         []int     `json:"dup"`
	Rank        []int     `json:"rank"`
	Y1Sum       float64   `json:"y1_sum"`
	Seq         uint64    `json:"seq"`
	LastUpdated time.Time `json:"last_updated"`
}

func (r CombinationRecord) Key() string {
	return r.Numbers.Key()
}

func (r CombinationRecord) Signature() Signature {
	return Signature{Sum: r.Sum, Even: r.Even, Odd: r.Odd}
}

// SameFeatures reports whether two records carry identical derived data,
// ignoring bookkeeping fields (Seq, LastUpdated).
func (r CombinationRecord) SameFeatures(o CombinationRecord) bool {
	return slices.Equal(r.Numbers, o.Numbers) &&
		r.Sum == o.Sum && r.Even == o.Even && r.Odd == o.Odd &&
		slices.Equal(r.DigitRange, o.DigitRange) &&
		slices.Equal(r.PairSums, o.PairSums) &&
		r.PairSumTotal == o.PairSumTotal &&
		slices.Equal(r.Dup, o.Dup) &&
		slices.Equal(r.Rank, o.Rank) &&
		r.Y1Sum == o.Y1Sum
}

// SignatureBucket carries how many top records of a signature survive into the cover set.
type SignatureBucket struct {
	Signature   Signature `json:"signature"`
	KCount      int       `json:"k_count"`
	Records     int       `json:"records"`
	LastUpdated time.Time `json:"last_updated"`
}

// ColumnScore is the observed frequency of a number at one position for one signature.
type ColumnScore struct {
	Number    int     `json:"num"`
	Counts    []int   `json:"counts"`
	PercentWA float64 `json:"percent_wa"`
}

// ColumnTable lists scores for a (signature, position), highest PercentWA first.
type ColumnTable struct {
	Signature Signature     `json:"signature"`
	Position  int           `json:"position"`
	Scores    []ColumnScore `json:"scores"`
}

// Score returns the weighted score of number, 0 when absent.
func (t ColumnTable) Score(number int) float64 {
	for _, s := range t.Scores {
		if s.Number == number {
			return s.PercentWA
		}
	}
	return 0
}

// CoverSet is the externally reported top-K selection for a signature.
type CoverSet struct {
	Game        string              `json:"game"`
	Signature   Signature           `json:"signature"`
	Records     []CombinationRecord `json:"records"`
	Synthesized bool                `json:"synthesized"`
	GeneratedAt time.Time           `json:"generated_at"`
}

func (c CoverSet) MarshalBinary() ([]byte, error) {
	return json.Marshal(c)
}

func (c *CoverSet) UnmarshalBinary(data []byte) error {
	return json.Unmarshal(data, c)
}
