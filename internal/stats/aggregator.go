// Package stats materializes combination records, signature buckets,
// weighted column tables and the dashboard summary.
package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fystack/lotto-indexer/internal/combo"
	"github.com/fystack/lotto-indexer/internal/features"
	"github.com/fystack/lotto-indexer/internal/recency"
	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/retry"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
)

type UpsertResult int

const (
	Unchanged UpsertResult = iota
	Created
	Updated
)

func (r UpsertResult) String() string {
	switch r {
	case Created:
		return "created"
	case Updated:
		return "updated"
	default:
		return "unchanged"
	}
}

// ScoreFunc returns the weighted score (y1_sum) of c within its signature.
type ScoreFunc func(c types.Combination, sig types.Signature) float64

type Options struct {
	// MaxNumber is the largest ball number; new records take their lexicographic rank over [1..MaxNumber] as Seq.
	MaxNumber      int
	// DefaultKCount applies to buckets without an entry in InitialKCounts.
	DefaultKCount  int
	// InitialKCounts seeds new buckets, usually from SignatureCounts over recent history.
	InitialKCounts map[types.Signature]int
	// Score sets Y1Sum on every upsert. When nil the stored Y1Sum is kept.
	Score          ScoreFunc
	Retry          retry.ExponentialConfig
	Now            func() time.Time
}

// Aggregator serializes read-modify-write per signature bucket; different buckets proceed concurrently.
type Aggregator struct {
	game  string
	store recordstore.Store
	opts  Options

	seq   atomic.Uint64 // rank of the last checkpointed combination
	locks sync.Map // types.Signature -> *sync.Mutex

	logger *slog.Logger
}

func NewAggregator(ctx context.Context, game string, store recordstore.Store, opts Options) (*Aggregator, error) {
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.Retry.InitialInterval <= 0 {
		opts.Retry = retry.DefaultExponential()
	}
	a := &Aggregator{
		game:   game,
		store:  store,
		opts:   opts,
		logger: logger.With("component", "aggregator", "game", game),
	}
	seq, err := retry.Value(ctx, func() (uint64, error) { return store.GetSeq(game) }, opts.Retry)
	if err != nil {
		return nil, unavailable("load sequence", err)
	}
	a.seq.Store(seq)
	return a, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, types.ErrRepositoryUnavailable, err)
}

func (a *Aggregator) lock(sig types.Signature) func() {
	m, _ := a.locks.LoadOrStore(sig, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// Seq is the number of combinations enumerated up to the last checkpoint.
func (a *Aggregator) Seq() uint64 {
	return a.seq.Load()
}

func (a *Aggregator) getRecord(ctx context.Context, c types.Combination) (types.CombinationRecord, bool, error) {
	var (
		rec   types.CombinationRecord
		found bool
	)
	err := retry.Exponential(ctx, func() error {
		var err error
		rec, found, err = a.store.GetRecord(a.game, c)
		return err
	}, a.opts.Retry)
	if err != nil {
		return rec, false, unavailable("get record "+c.Key(), err)
	}
	return rec, found, nil
}

func (a *Aggregator) persist(ctx context.Context, rec types.CombinationRecord, bucket *types.SignatureBucket) error {
	err := retry.Exponential(ctx, func() error {
		return a.store.PersistRecord(a.game, rec, bucket)
	}, a.opts.Retry)
	if err != nil {
		return unavailable("persist record "+rec.Key(), err)
	}
	return nil
}

func (a *Aggregator) getBucket(ctx context.Context, sig types.Signature) (types.SignatureBucket, bool, error) {
	var (
		b     types.SignatureBucket
		found bool
	)
	err := retry.Exponential(ctx, func() error {
		var err error
		b, found, err = a.store.GetBucket(a.game, sig)
		return err
	}, a.opts.Retry)
	if err != nil {
		return b, false, unavailable("get bucket "+sig.Key(), err)
	}
	return b, found, nil
}

func (a *Aggregator) saveBucket(ctx context.Context, b types.SignatureBucket) error {
	err := retry.Exponential(ctx, func() error {
		return a.store.SaveBucket(a.game, b)
	}, a.opts.Retry)
	if err != nil {
		return unavailable("save bucket "+b.Signature.Key(), err)
	}
	return nil
}

func (a *Aggregator) newBucket(sig types.Signature) types.SignatureBucket {
	k, ok := a.opts.InitialKCounts[sig]
	if !ok {
		k = a.opts.DefaultKCount
	}
	return types.SignatureBucket{Signature: sig, KCount: k, LastUpdated: a.opts.Now()}
}

// Upsert creates or updates the record of c. Identical inputs leave the stored
// record untouched, including Seq and LastUpdated.
func (a *Aggregator) Upsert(ctx context.Context, c types.Combination, f features.Features, m recency.Match) (UpsertResult, error) {
	seq := combo.Rank(a.opts.MaxNumber, c)
	if seq == 0 {
		return Unchanged, fmt.Errorf("upsert %s over 1..%d: %w", c.Key(), a.opts.MaxNumber, types.ErrInvalidCombination)
	}
	sig := f.Signature()
	unlock := a.lock(sig)
	defer unlock()

	existing, found, err := a.getRecord(ctx, c)
	if err != nil {
		return Unchanged, err
	}

	rec := types.CombinationRecord{
		Numbers:      c.Clone(),
		Sum:          f.Sum,
		Even:         f.Even,
		Odd:          f.Odd,
		DigitRange:   f.DigitRange,
		PairSums:     f.PairSums,
		PairSumTotal: f.PairSumTotal,
		Dup:          m.Dup,
		Rank:         m.Rank,
	}

	switch {
	case a.opts.Score != nil:
		rec.Y1Sum = a.opts.Score(rec.Numbers, sig)
	case found:
		rec.Y1Sum = existing.Y1Sum
	}

	if found {
		if existing.SameFeatures(rec) {
			return Unchanged, nil
		}
		rec.Seq = existing.Seq
		rec.LastUpdated = a.opts.Now()
		return Updated, a.persist(ctx, rec, nil)
	}

	bucket, ok, err := a.getBucket(ctx, sig)
	if err != nil {
		return Unchanged, err
	}
	if !ok {
		bucket = a.newBucket(sig)
	}
	bucket.Records++
	bucket.LastUpdated = a.opts.Now()

	rec.Seq = seq
	rec.LastUpdated = bucket.LastUpdated
	if err := a.persist(ctx, rec, &bucket); err != nil {
		return Unchanged, err
	}
	return Created, nil
}

// BucketBySignature returns the bucket for sig, creating it when absent.
func (a *Aggregator) BucketBySignature(ctx context.Context, sig types.Signature) (types.SignatureBucket, error) {
	unlock := a.lock(sig)
	defer unlock()

	b, found, err := a.getBucket(ctx, sig)
	if err != nil {
		return b, err
	}
	if found {
		return b, nil
	}
	b = a.newBucket(sig)
	if err := a.saveBucket(ctx, b); err != nil {
		return b, err
	}
	a.logger.Debug("Created signature bucket", "signature", sig.Key(), "k_count", b.KCount)
	return b, nil
}

// Retarget sets how many top records of sig survive into the cover set.
func (a *Aggregator) Retarget(ctx context.Context, sig types.Signature, kCount int) (types.SignatureBucket, error) {
	if kCount < 0 {
		return types.SignatureBucket{}, fmt.Errorf("k_count must be >= 0, got %d", kCount)
	}
	unlock := a.lock(sig)
	defer unlock()

	b, found, err := a.getBucket(ctx, sig)
	if err != nil {
		return b, err
	}
	if !found {
		return b, fmt.Errorf("retarget %s: %w", sig.Key(), types.ErrUnknownSignature)
	}
	if b.KCount == kCount {
		return b, nil
	}
	b.KCount = kCount
	b.LastUpdated = a.opts.Now()
	return b, a.saveBucket(ctx, b)
}

// Checkpoint records the enumeration position together with its rank.
func (a *Aggregator) Checkpoint(ctx context.Context, cursor types.Combination) error {
	seq := combo.Rank(a.opts.MaxNumber, cursor)
	if seq == 0 {
		return fmt.Errorf("checkpoint %s: %w", cursor.Key(), types.ErrInvalidCombination)
	}
	err := retry.Exponential(ctx, func() error {
		return a.store.SaveCheckpoint(a.game, cursor, seq)
	}, a.opts.Retry)
	if err != nil {
		return unavailable("checkpoint", err)
	}
	a.seq.Store(seq)
	return nil
}
