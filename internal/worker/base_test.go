package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fystack/lotto-indexer/internal/combo"
	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/events"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/fystack/lotto-indexer/pkg/kvstore"
	"github.com/fystack/lotto-indexer/pkg/store/columnstore"
	"github.com/fystack/lotto-indexer/pkg/store/coverstore"
	"github.com/fystack/lotto-indexer/pkg/store/drawstore"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

// mockEmitter records emitted cover sets and errors.
type mockEmitter struct {
	mu     sync.Mutex
	covers []types.CoverSet
	errs   []error
}

func (m *mockEmitter) EmitCoverSet(_ string, set types.CoverSet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.covers = append(m.covers, set)
	return nil
}

func (m *mockEmitter) EmitError(_ string, err error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs = append(m.errs, err)
	return nil
}

func (m *mockEmitter) Emit(events.IndexerEvent) error { return nil }
func (m *mockEmitter) Close()                         {}

type WorkerTestSuite struct {
	suite.Suite
	ctx     context.Context
	kv      infra.KVStore
	deps    Deps
	emitter *mockEmitter
}

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func (s *WorkerTestSuite) SetupTest() {
	s.ctx = context.Background()
	kv, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	s.Require().NoError(err)
	s.kv = kv
	s.emitter = &mockEmitter{}
	s.deps = s.newDeps(kv)
	s.saveDraws(types.Draw{Date: day(1), Numbers: []int{3, 1, 2}})
}

func (s *WorkerTestSuite) newDeps(kv infra.KVStore) Deps {
	return Deps{
		Game: config.GameConfig{
			Code:            "mini",
			MaxNumber:       8,
			PickSize:        3,
			DigitRanges:     2,
			DupDepth:        2,
			RankWindow:      5,
			WeightWindows:   []int{0},
			DefaultKCount:   1,
			KCountWindow:    10,
			CheckpointEvery: 10,
		},
		Worker: config.WorkerConfig{
			Concurrency: 3,
			BufferSize:  4,
			Retry:       config.RetryConfig{InitialInterval: time.Millisecond, MaxElapsed: 20 * time.Millisecond},
		},
		Records: recordstore.NewRecordStore(kv),
		Columns: columnstore.NewColumnStore(kv),
		Covers:  coverstore.NewCoverStore(kv),
		Draws:   drawstore.NewDrawStore(kv),
		Emitter: s.emitter,
	}
}

func (s *WorkerTestSuite) TearDownTest() {
	s.NoError(s.kv.Close())
}

func (s *WorkerTestSuite) saveDraws(draws ...types.Draw) {
	_, err := s.deps.Draws.SaveDraws(s.ctx, s.deps.Game.Code, draws)
	s.Require().NoError(err)
}

func (s *WorkerTestSuite) build(fresh bool) BuildResult {
	w := NewBuildWorker(s.ctx, s.deps, fresh)
	defer w.Stop()
	res, err := w.Run(s.ctx)
	s.Require().NoError(err)
	return res
}

func (s *WorkerTestSuite) readRecords(deps Deps) []types.CombinationRecord {
	recs, err := deps.Records.ReadRecords(deps.Game.Code, recordstore.Filter{})
	s.Require().NoError(err)
	for i := range recs {
		recs[i].LastUpdated = time.Time{}
	}
	return recs
}

func (s *WorkerTestSuite) countRecords() int {
	recs, err := s.deps.Records.ReadRecords(s.deps.Game.Code, recordstore.Filter{})
	s.Require().NoError(err)
	return len(recs)
}

func (s *WorkerTestSuite) TestBuildEnumeratesEveryCombination() {
	res := s.build(false)

	total := combo.Count(8, 3)
	s.EqualValues(56, total)
	s.True(res.Complete)
	s.Equal(total, res.Processed)
	s.Equal(total, res.Created)
	s.Equal(types.Combination{6, 7, 8}, res.Cursor)
	s.Equal(56, s.countRecords())

	buckets, err := s.deps.Records.ListBuckets(s.deps.Game.Code)
	s.Require().NoError(err)
	sum := 0
	for _, b := range buckets {
		sum += b.Records
	}
	s.Equal(56, sum)

	seq, err := s.deps.Records.GetSeq(s.deps.Game.Code)
	s.Require().NoError(err)
	s.EqualValues(56, seq)

	rec, found, err := s.deps.Records.GetRecord(s.deps.Game.Code, types.Combination{1, 2, 3})
	s.Require().NoError(err)
	s.True(found)
	s.Equal([]int{3, 3}, rec.Dup)
	s.Equal(300.0, rec.Y1Sum)
}

func (s *WorkerTestSuite) TestBuildResumesAfterCheckpoint() {
	s.Require().NoError(s.deps.Records.SaveCheckpoint(s.deps.Game.Code, types.Combination{1, 2, 8}, 6))

	res := s.build(false)
	s.True(res.Complete)
	s.EqualValues(50, res.Processed)
	s.EqualValues(50, res.Created)
	s.Equal(50, s.countRecords())

	_, found, err := s.deps.Records.GetRecord(s.deps.Game.Code, types.Combination{1, 2, 8})
	s.Require().NoError(err)
	s.False(found)
	rec, found, err := s.deps.Records.GetRecord(s.deps.Game.Code, types.Combination{1, 3, 4})
	s.Require().NoError(err)
	s.True(found)
	s.EqualValues(7, rec.Seq)
}

func (s *WorkerTestSuite) TestResumeKeepsSeqUnique() {
	s.Require().NoError(s.deps.Records.SaveCheckpoint(s.deps.Game.Code, types.Combination{1, 2, 8}, 6))
	// a record persisted after the checkpoint, as left behind by a crash mid-batch
	s.Require().NoError(s.deps.Records.PersistRecord(s.deps.Game.Code, types.CombinationRecord{
		Numbers: types.Combination{1, 3, 4},
		Seq:     7,
	}, nil))

	res := s.build(false)
	s.True(res.Complete)
	s.EqualValues(49, res.Created)
	s.EqualValues(1, res.Updated)

	seen := map[uint64]string{}
	for _, rec := range s.readRecords(s.deps) {
		s.Equal(combo.Rank(8, rec.Numbers), rec.Seq, rec.Key())
		prev, dup := seen[rec.Seq]
		s.False(dup, "seq %d shared by %s and %s", rec.Seq, prev, rec.Key())
		seen[rec.Seq] = rec.Key()
	}
	s.Len(seen, 50)
}

// cancelOnCheckpoint cancels the build once the first checkpoint is stored.
type cancelOnCheckpoint struct {
	recordstore.Store
	cancel context.CancelFunc
	saved  atomic.Int32
}

func (c *cancelOnCheckpoint) SaveCheckpoint(game string, cursor types.Combination, seq uint64) error {
	if err := c.Store.SaveCheckpoint(game, cursor, seq); err != nil {
		return err
	}
	if c.saved.Add(1) == 1 {
		c.cancel()
	}
	return nil
}

func (s *WorkerTestSuite) TestInterruptedBuildMatchesUninterrupted() {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	interrupted := s.deps
	interrupted.Records = &cancelOnCheckpoint{Store: s.deps.Records, cancel: cancel}

	w := NewBuildWorker(ctx, interrupted, false)
	partial, err := w.Run(ctx)
	w.Stop()
	s.ErrorIs(err, context.Canceled)
	s.False(partial.Complete)
	s.EqualValues(10, partial.Processed)

	cursor, found, err := s.deps.Records.GetCursor(s.deps.Game.Code)
	s.Require().NoError(err)
	s.True(found)
	s.Equal(partial.Cursor, cursor)

	resumed := s.build(false)
	s.True(resumed.Complete)
	s.EqualValues(46, resumed.Processed)

	kv, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	s.Require().NoError(err)
	defer kv.Close()
	reference := s.newDeps(kv)
	_, err = reference.Draws.SaveDraws(s.ctx, reference.Game.Code, []types.Draw{{Date: day(1), Numbers: []int{3, 1, 2}}})
	s.Require().NoError(err)
	w = NewBuildWorker(s.ctx, reference, false)
	full, err := w.Run(s.ctx)
	w.Stop()
	s.Require().NoError(err)
	s.True(full.Complete)

	want := s.readRecords(reference)
	s.Require().Len(want, 56)
	s.Equal(want, s.readRecords(s.deps))
}

func (s *WorkerTestSuite) TestBuildIsIdempotent() {
	s.build(false)

	again := s.build(false)
	s.True(again.Complete)
	s.Zero(again.Processed)

	fresh := s.build(true)
	s.EqualValues(56, fresh.Created)
	s.Equal(56, s.countRecords())
}

func (s *WorkerTestSuite) TestBuildStopsOnCancel() {
	ctx, cancel := context.WithCancel(s.ctx)
	cancel()
	w := NewBuildWorker(ctx, s.deps, false)
	defer w.Stop()
	_, err := w.Run(ctx)
	s.ErrorIs(err, context.Canceled)

	_, found, err := s.deps.Records.GetCursor(s.deps.Game.Code)
	s.Require().NoError(err)
	s.False(found)
}

func (s *WorkerTestSuite) TestRefreshFollowsNewDraws() {
	s.build(false)
	s.saveDraws(types.Draw{Date: day(3), Numbers: []int{6, 4, 5}})

	w := NewRefreshWorker(s.ctx, s.deps)
	defer w.Stop()
	res, err := w.Run(s.ctx)
	s.Require().NoError(err)
	s.EqualValues(56, res.Records)
	s.Positive(res.Updated)
	s.Equal(6, res.Tables)

	rec, _, err := s.deps.Records.GetRecord(s.deps.Game.Code, types.Combination{4, 5, 6})
	s.Require().NoError(err)
	s.Equal([]int{3, 3}, rec.Dup)

	again, err := w.Run(s.ctx)
	s.Require().NoError(err)
	s.Zero(again.Updated)
}

func (s *WorkerTestSuite) TestCoverSelectsEveryBucket() {
	s.build(false)

	w, err := NewCoverWorker(s.ctx, s.deps)
	s.Require().NoError(err)
	defer w.Stop()
	sets, err := w.Run(s.ctx)
	s.Require().NoError(err)

	buckets, err := s.deps.Records.ListBuckets(s.deps.Game.Code)
	s.Require().NoError(err)
	s.Len(sets, len(buckets))
	for _, set := range sets {
		s.Len(set.Records, 1)
		s.False(set.Synthesized)
	}
	s.Len(s.emitter.covers, len(sets))
}

func (s *WorkerTestSuite) TestPipelineRunsEveryStep() {
	w, err := NewPipelineWorker(s.ctx, s.deps)
	s.Require().NoError(err)
	defer w.Stop()
	s.Require().NoError(w.runPipeline(s.ctx))

	s.Equal(56, s.countRecords())
	stored, err := s.deps.Covers.ListCoverSets(s.deps.Game.Code)
	s.Require().NoError(err)
	s.NotEmpty(stored)
}

func (s *WorkerTestSuite) TestPipelineRejectsBadSchedule() {
	deps := s.deps
	deps.Worker.Schedule = "every so often"
	_, err := NewPipelineWorker(s.ctx, deps)
	s.Error(err)
}

func TestWorkerTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerTestSuite))
}

type stubWorker struct {
	started, stopped bool
}

func (w *stubWorker) Start() { w.started = true }
func (w *stubWorker) Stop()  { w.stopped = true }

func TestManagerStartStop(t *testing.T) {
	kv, err := kvstore.NewInMemoryBadgerStore("", infra.JSON)
	if err != nil {
		t.Fatal(err)
	}
	m := NewManager(context.Background(), &Stack{KV: kv}, time.Second)
	a, b := &stubWorker{}, &stubWorker{}
	m.AddWorkers(a, b)
	m.Start()
	m.Stop()

	assert.Equal(t, 2, m.Workers())
	assert.True(t, a.started && a.stopped)
	assert.True(t, b.started && b.stopped)
}

func TestBuildWorkersRejectsUnknownMode(t *testing.T) {
	_, err := BuildWorkers(context.Background(), "rescan", Deps{})
	assert.Error(t, err)
}
