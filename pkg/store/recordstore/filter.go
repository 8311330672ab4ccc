package recordstore

import "github.com/fystack/lotto-indexer/pkg/common/types"

// Filter selects records. Zero value matches everything.
type Filter struct {
	// Signature narrows the scan to one bucket through the signature index.
	Signature *types.Signature
	// MaxDup[d-1] is the inclusive ceiling for Dup[d-1].
	MaxDup []int
	// MaxRank[r] is the inclusive ceiling for Rank[r].
	MaxRank []int
	// Limit stops after this many matches when > 0.
	Limit int
}

func ForSignature(sig types.Signature) Filter {
	return Filter{Signature: &sig}
}

func (f Filter) Match(rec types.CombinationRecord) bool {
	if f.Signature != nil && rec.Signature() != *f.Signature {
		return false
	}
	for i, ceiling := range f.MaxDup {
		if i < len(rec.Dup) && rec.Dup[i] > ceiling {
			return false
		}
	}
	for i, ceiling := range f.MaxRank {
		if i < len(rec.Rank) && rec.Rank[i] > ceiling {
			return false
		}
	}
	return true
}
