package constant

import "time"

const (
	EnvProduction  = "prod"
	EnvDevelopment = "dev"

	// MaxRankBucket collapses every number seen this often or more into the last rank bucket.
	MaxRankBucket = 7
	RankBuckets   = MaxRankBucket + 1

	MinDigitRanges = 2
	MaxDigitRanges = 7

	DefaultRankWindow      = 30
	DefaultCheckpointEvery = 5000
	DefaultDrawInterval    = 48 * time.Hour

	// KV key prefixes
	KVPrefixCombo  = "combo"
	KVPrefixDraws  = "draws"
	KVPrefixRecord = "rec"
	KVPrefixSig    = "sig"
	KVPrefixBucket = "bucket"
	KVPrefixColumn = "column"
	KVPrefixCover  = "cover"
	KVPrefixCursor = "cursor"
	KVPrefixSeq    = "seq"

	CoverSubject = "cover"
)

// DefaultWeightWindows are the recency windows (in draws) the weighted average is computed over;
// 0 means the whole history.
var DefaultWeightWindows = []int{10, 30, 100, 365, 500, 1000, 0}
