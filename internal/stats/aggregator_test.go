package stats

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fystack/lotto-indexer/internal/features"
	"github.com/fystack/lotto-indexer/internal/recency"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/fystack/lotto-indexer/pkg/kvstore"
	"github.com/fystack/lotto-indexer/pkg/retry"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
	"github.com/stretchr/testify/suite"
)

const testGame = "fantasy5"

type AggregatorTestSuite struct {
	suite.Suite
	ctx       context.Context
	kv        infra.KVStore
	store     recordstore.Store
	extractor *features.Extractor
	agg       *Aggregator
	now       time.Time
}

func (s *AggregatorTestSuite) SetupTest() {
	s.ctx = context.Background()
	kv, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	s.Require().NoError(err)
	s.kv = kv
	s.store = recordstore.NewRecordStore(kv)
	s.extractor, err = features.NewExtractor(10, 3, 3)
	s.Require().NoError(err)
	s.now = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s.agg = s.newAggregator(nil)
}

func (s *AggregatorTestSuite) TearDownTest() {
	s.NoError(s.kv.Close())
}

func (s *AggregatorTestSuite) newAggregator(kCounts map[types.Signature]int) *Aggregator {
	agg, err := NewAggregator(s.ctx, testGame, s.store, Options{
		MaxNumber:      10,
		DefaultKCount:  1,
		InitialKCounts: kCounts,
		Retry:          retry.ExponentialConfig{InitialInterval: time.Millisecond, MaxElapsedTime: 10 * time.Millisecond},
		Now:            func() time.Time { return s.now },
	})
	s.Require().NoError(err)
	return agg
}

func (s *AggregatorTestSuite) upsert(c types.Combination, m recency.Match) UpsertResult {
	f, err := s.extractor.Extract(c)
	s.Require().NoError(err)
	res, err := s.agg.Upsert(s.ctx, c, f, m)
	s.Require().NoError(err)
	return res
}

func match(dup ...int) recency.Match {
	return recency.Match{Dup: dup, Rank: []int{3, 0, 0, 0, 0, 0, 0, 0}}
}

func (s *AggregatorTestSuite) TestUpsertIsIdempotent() {
	c := types.Combination{1, 2, 3}
	s.Equal(Created, s.upsert(c, match(1, 2)))

	s.now = s.now.Add(time.Hour)
	s.Equal(Unchanged, s.upsert(c, match(1, 2)))

	rec, found, err := s.store.GetRecord(testGame, c)
	s.Require().NoError(err)
	s.True(found)
	s.EqualValues(1, rec.Seq)
	s.True(rec.LastUpdated.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)))

	bucket, found, err := s.store.GetBucket(testGame, rec.Signature())
	s.Require().NoError(err)
	s.True(found)
	s.Equal(1, bucket.Records)
	s.Equal(1, bucket.KCount)
}

func (s *AggregatorTestSuite) TestUpsertUpdateKeepsSeq() {
	c := types.Combination{2, 5, 9}
	s.Equal(Created, s.upsert(c, match(0, 1)))
	s.Equal(Created, s.upsert(types.Combination{1, 2, 3}, match(0, 0)))

	s.Equal(Updated, s.upsert(c, match(1, 1)))
	rec, _, err := s.store.GetRecord(testGame, c)
	s.Require().NoError(err)
	s.EqualValues(53, rec.Seq)
	s.Equal([]int{1, 1}, rec.Dup)

	bucket, _, err := s.store.GetBucket(testGame, rec.Signature())
	s.Require().NoError(err)
	s.Equal(1, bucket.Records)
}

func (s *AggregatorTestSuite) TestUpsertScores() {
	c := types.Combination{2, 5, 9}
	s.Equal(Created, s.upsert(c, match(0, 1)))

	scored := s.newAggregator(nil)
	scored.opts.Score = func(c types.Combination, sig types.Signature) float64 {
		return float64(c.Sum() + sig.Even)
	}
	f, err := s.extractor.Extract(c)
	s.Require().NoError(err)

	res, err := scored.Upsert(s.ctx, c, f, match(0, 1))
	s.Require().NoError(err)
	s.Equal(Updated, res)
	res, err = scored.Upsert(s.ctx, c, f, match(0, 1))
	s.Require().NoError(err)
	s.Equal(Unchanged, res)

	// without a scorer the stored score survives
	s.Equal(Unchanged, s.upsert(c, match(0, 1)))
	rec, _, err := s.store.GetRecord(testGame, c)
	s.Require().NoError(err)
	s.Equal(17.0, rec.Y1Sum)
	s.EqualValues(53, rec.Seq)
}

func (s *AggregatorTestSuite) TestBucketBySignatureUsesInitialKCount() {
	sig := types.Signature{Sum: 6, Even: 1, Odd: 2}
	agg := s.newAggregator(map[types.Signature]int{sig: 4})

	b, err := agg.BucketBySignature(s.ctx, sig)
	s.Require().NoError(err)
	s.Equal(4, b.KCount)
	s.Equal(0, b.Records)

	other, err := agg.BucketBySignature(s.ctx, types.Signature{Sum: 7, Even: 1, Odd: 2})
	s.Require().NoError(err)
	s.Equal(1, other.KCount)
}

func (s *AggregatorTestSuite) TestRetarget() {
	sig := types.Signature{Sum: 6, Even: 1, Odd: 2}
	_, err := s.agg.Retarget(s.ctx, sig, 3)
	s.ErrorIs(err, types.ErrUnknownSignature)

	s.upsert(types.Combination{1, 2, 3}, match(0, 0))
	b, err := s.agg.Retarget(s.ctx, sig, 3)
	s.Require().NoError(err)
	s.Equal(3, b.KCount)

	stored, _, err := s.store.GetBucket(testGame, sig)
	s.Require().NoError(err)
	s.Equal(3, stored.KCount)
	s.Equal(1, stored.Records)

	_, err = s.agg.Retarget(s.ctx, sig, -1)
	s.Error(err)
}

func (s *AggregatorTestSuite) TestCheckpointSeedsSequence() {
	s.upsert(types.Combination{1, 2, 3}, match(0, 0))
	s.upsert(types.Combination{1, 2, 4}, match(0, 0))
	s.Require().NoError(s.agg.Checkpoint(s.ctx, types.Combination{1, 2, 4}))

	resumed := s.newAggregator(nil)
	s.EqualValues(2, resumed.Seq())

	cursor, found, err := s.store.GetCursor(testGame)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(types.Combination{1, 2, 4}, cursor)
}

func (s *AggregatorTestSuite) TestSeqFollowsLexicographicOrder() {
	all := []types.Combination{}
	for a := 1; a <= 10; a++ {
		for b := a + 1; b <= 10; b++ {
			for c := b + 1; c <= 10; c++ {
				all = append(all, types.Combination{a, b, c})
			}
		}
	}

	// upsert in reverse from several goroutines so arrival order differs from enumeration order
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := len(all) - 1 - w; i >= 0; i -= 4 {
				f, err := s.extractor.Extract(all[i])
				s.NoError(err)
				_, err = s.agg.Upsert(s.ctx, all[i], f, match(0, 0))
				s.NoError(err)
			}
		}(w)
	}
	wg.Wait()

	for i, c := range all {
		rec, found, err := s.store.GetRecord(testGame, c)
		s.Require().NoError(err)
		s.Require().True(found)
		s.EqualValues(i+1, rec.Seq, c.Key())
	}
}

func (s *AggregatorTestSuite) TestUpsertRejectsOutOfRange() {
	c := types.Combination{2, 5, 11}
	f, err := s.extractor.Extract(types.Combination{2, 5, 9})
	s.Require().NoError(err)
	_, err = s.agg.Upsert(s.ctx, c, f, match(0, 0))
	s.ErrorIs(err, types.ErrInvalidCombination)

	_, found, err := s.store.GetRecord(testGame, c)
	s.Require().NoError(err)
	s.False(found)
	s.ErrorIs(s.agg.Checkpoint(s.ctx, c), types.ErrInvalidCombination)
}

func TestAggregatorTestSuite(t *testing.T) {
	suite.Run(t, new(AggregatorTestSuite))
}
