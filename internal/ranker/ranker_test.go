package ranker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/events"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/fystack/lotto-indexer/pkg/kvstore"
	"github.com/fystack/lotto-indexer/pkg/retry"
	"github.com/fystack/lotto-indexer/pkg/store/columnstore"
	"github.com/fystack/lotto-indexer/pkg/store/coverstore"
	"github.com/fystack/lotto-indexer/pkg/store/drawstore"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

type fakeEmitter struct {
	mu     sync.Mutex
	covers []string
	errs   int
}

func (f *fakeEmitter) EmitCoverSet(runID string, set types.CoverSet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.covers = append(f.covers, events.IdempotencyKey(set.Game, set.Signature, runID))
	return nil
}

func (f *fakeEmitter) EmitError(string, error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs++
	return nil
}

func (f *fakeEmitter) Emit(events.IndexerEvent) error { return nil }
func (f *fakeEmitter) Close()                         {}

type RankerTestSuite struct {
	suite.Suite
	ctx     context.Context
	kv      infra.KVStore
	records recordstore.Store
	columns columnstore.Store
	covers  coverstore.Store
	emitter *fakeEmitter
	ranker  *Ranker
}

var testGame = config.GameConfig{
	Code:        "test",
	MaxNumber:   10,
	PickSize:    3,
	DigitRanges: 3,
	DupDepth:    2,
	RankWindow:  5,
}

func (s *RankerTestSuite) SetupTest() {
	s.ctx = context.Background()
	kv, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	s.Require().NoError(err)
	s.kv = kv
	s.records = recordstore.NewRecordStore(kv)
	s.columns = columnstore.NewColumnStore(kv)
	s.covers = coverstore.NewCoverStore(kv)
	s.emitter = &fakeEmitter{}

	s.ranker, err = New(testGame, Deps{
		Records: s.records,
		Columns: s.columns,
		Covers:  s.covers,
		Draws:   drawstore.NewDrawStore(kv),
		Emitter: s.emitter,
		Retry:   retry.ExponentialConfig{InitialInterval: time.Millisecond, MaxElapsedTime: 10 * time.Millisecond},
		Now:     func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) },
	})
	s.Require().NoError(err)
}

func (s *RankerTestSuite) TearDownTest() {
	s.NoError(s.kv.Close())
}

func (s *RankerTestSuite) put(nums []int, y1 float64, seq uint64, dup []int, bucket *types.SignatureBucket) {
	c := types.Combination(nums)
	even := 0
	for _, v := range nums {
		if v%2 == 0 {
			even++
		}
	}
	rec := types.CombinationRecord{
		Numbers: c,
		Sum:     c.Sum(),
		Even:    even,
		Odd:     len(nums) - even,
		Dup:     dup,
		Rank:    []int{3, 0, 0, 0, 0, 0, 0, 0},
		Y1Sum:   y1,
		Seq:     seq,
	}
	s.Require().NoError(s.records.PersistRecord(testGame.Code, rec, bucket))
}

// seedBucket stores four records of signature 12-1-2. 1-3-8 scores highest but has two depth-1 duplicates.
func (s *RankerTestSuite) seedBucket(kCount int) types.Signature {
	sig := types.Signature{Sum: 12, Even: 1, Odd: 2}
	bucket := types.SignatureBucket{Signature: sig, KCount: kCount, Records: 4}
	s.put([]int{1, 2, 9}, 10, 1, []int{0, 1}, &bucket)
	s.put([]int{1, 4, 7}, 30, 2, []int{0, 1}, nil)
	s.put([]int{3, 4, 5}, 30, 3, []int{0, 1}, nil)
	s.put([]int{1, 3, 8}, 50, 4, []int{2, 2}, nil)
	return sig
}

func (s *RankerTestSuite) TestSelectCoverOrdersAndBoundsByKCount() {
	sig := s.seedBucket(2)

	sets, err := s.ranker.SelectCover(s.ctx, []types.Signature{sig}, config.Constraints{MaxDup: []int{1, 2}})
	s.Require().NoError(err)
	s.Require().Len(sets, 1)
	set := sets[0]
	s.False(set.Synthesized)
	s.Require().Len(set.Records, 2)
	s.Equal(types.Combination{1, 4, 7}, set.Records[0].Numbers)
	s.Equal(types.Combination{3, 4, 5}, set.Records[1].Numbers)
}

func (s *RankerTestSuite) TestSelectCoverWithoutConstraints() {
	sig := s.seedBucket(10)

	sets, err := s.ranker.SelectCover(s.ctx, nil, config.Constraints{})
	s.Require().NoError(err)
	s.Require().Len(sets, 1)
	s.Require().Len(sets[0].Records, 4)
	s.Equal(sig, sets[0].Signature)
	s.Equal(types.Combination{1, 3, 8}, sets[0].Records[0].Numbers)
	s.Equal(types.Combination{1, 2, 9}, sets[0].Records[3].Numbers)
}

func (s *RankerTestSuite) TestSelectCoverZeroKCount() {
	sig := s.seedBucket(0)
	sets, err := s.ranker.SelectCover(s.ctx, []types.Signature{sig}, config.Constraints{})
	s.Require().NoError(err)
	s.Require().Len(sets, 1)
	s.Empty(sets[0].Records)
	s.False(sets[0].Synthesized)
}

func (s *RankerTestSuite) TestUnknownSignatureIsReportedAndSkipped() {
	sig := s.seedBucket(1)
	unknown := types.Signature{Sum: 99, Even: 0, Odd: 3}

	sets, err := s.ranker.SelectCover(s.ctx, []types.Signature{unknown, sig}, config.Constraints{})
	s.ErrorIs(err, types.ErrUnknownSignature)
	var me *types.MultiError
	s.Require().True(errors.As(err, &me))
	s.Equal(1, me.Len())
	s.Require().Len(sets, 1)
	s.Equal(sig, sets[0].Signature)
}

func (s *RankerTestSuite) TestFallbackFromDrawHistory() {
	sig := types.Signature{Sum: 20, Even: 1, Odd: 2}
	s.Require().NoError(s.records.SaveBucket(testGame.Code, types.SignatureBucket{Signature: sig, KCount: 3}))

	draws := []types.Draw{
		{Date: time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC), Numbers: []int{3, 2, 1}},
		{Date: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), Numbers: []int{1, 5, 7}},
		{Date: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Numbers: []int{2, 5, 9}},
	}
	_, err := drawstore.NewDrawStore(s.kv).SaveDraws(s.ctx, testGame.Code, draws)
	s.Require().NoError(err)

	sets, err := s.ranker.SelectCover(s.ctx, []types.Signature{sig}, config.Constraints{})
	s.Require().NoError(err)
	s.Require().Len(sets, 1)
	s.True(sets[0].Synthesized)
	s.Require().Len(sets[0].Records, 1)
	rec := sets[0].Records[0]
	s.Equal(types.Combination{1, 5, 7}, rec.Numbers)
	s.Equal(13, rec.Sum)
	// 1 is hit by both recent draws
	s.Equal([]int{1, 4}, rec.Dup)
}

func (s *RankerTestSuite) TestFallbackFromColumnTables() {
	sig := types.Signature{Sum: 18, Even: 3, Odd: 0}
	s.Require().NoError(s.records.SaveBucket(testGame.Code, types.SignatureBucket{Signature: sig, KCount: 1}))
	tables := []types.ColumnTable{
		{Signature: sig, Position: 1, Scores: []types.ColumnScore{{Number: 4, PercentWA: 50}}},
		{Signature: sig, Position: 2, Scores: []types.ColumnScore{{Number: 6, PercentWA: 30}, {Number: 2, PercentWA: 0.05}}},
		{Signature: sig, Position: 3, Scores: []types.ColumnScore{{Number: 6, PercentWA: 20}, {Number: 8, PercentWA: 10}}},
	}
	for _, t := range tables {
		s.Require().NoError(s.columns.SaveWeightedColumnTable(testGame.Code, t))
	}

	sets, err := s.ranker.SelectCover(s.ctx, []types.Signature{sig}, config.Constraints{})
	s.Require().NoError(err)
	rec := sets[0].Records[0]
	s.Equal(types.Combination{4, 6, 8}, rec.Numbers)
	s.Equal(90.0, rec.Y1Sum)
	s.Equal([]int{0, 0}, rec.Dup)
}

func (s *RankerTestSuite) TestEmptyFallbackSource() {
	sig := types.Signature{Sum: 20, Even: 1, Odd: 2}
	s.Require().NoError(s.records.SaveBucket(testGame.Code, types.SignatureBucket{Signature: sig, KCount: 3}))

	sets, err := s.ranker.SelectCover(s.ctx, []types.Signature{sig}, config.Constraints{})
	s.ErrorIs(err, types.ErrEmptyFallbackSource)
	s.Empty(sets)
}

func (s *RankerTestSuite) TestRunPersistsAndEmits() {
	sig := s.seedBucket(1)

	sets, err := s.ranker.Run(s.ctx, "run-1", nil, config.Constraints{})
	s.Require().NoError(err)
	s.Require().Len(sets, 1)

	stored, found, err := s.covers.GetCoverSet(testGame.Code, sig)
	s.Require().NoError(err)
	s.True(found)
	s.Equal("test", stored.Game)
	s.Require().Len(stored.Records, 1)
	s.Equal(types.Combination{1, 3, 8}, stored.Records[0].Numbers)
	s.Equal([]string{"test:12-1-2:run-1"}, s.emitter.covers)
	s.Zero(s.emitter.errs)
}

func (s *RankerTestSuite) TestRunReportsSelectionErrors() {
	_, err := s.ranker.Run(s.ctx, "run-2", []types.Signature{{Sum: 6, Even: 1, Odd: 2}}, config.Constraints{})
	s.ErrorIs(err, types.ErrUnknownSignature)
	s.Equal(1, s.emitter.errs)
}

func TestRankerTestSuite(t *testing.T) {
	suite.Run(t, new(RankerTestSuite))
}

func TestAssemble(t *testing.T) {
	assert.Equal(t, types.Combination{1, 9, 10}, Assemble([][]int{{9}, {9}, {9}}, 10, 3))
	assert.Equal(t, types.Combination{1, 2, 3}, Assemble(nil, 10, 3))
	assert.Equal(t, types.Combination{5, 7, 8}, Assemble([][]int{{9, 5}, {7}, {3}}, 8, 3))
}

func TestOrderIsStableOnSeq(t *testing.T) {
	recs := []types.CombinationRecord{
		{Numbers: types.Combination{3}, Y1Sum: 1, Seq: 3},
		{Numbers: types.Combination{2}, Y1Sum: 2, Seq: 2},
		{Numbers: types.Combination{1}, Y1Sum: 1, Seq: 1},
	}
	Order(recs)
	assert.Equal(t, []uint64{2, 1, 3}, []uint64{recs[0].Seq, recs[1].Seq, recs[2].Seq})
}
