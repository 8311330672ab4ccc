// Package ranker selects the per-signature cover sets.
package ranker

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/fystack/lotto-indexer/internal/features"
	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/drawlog"
	"github.com/fystack/lotto-indexer/pkg/events"
	"github.com/fystack/lotto-indexer/pkg/retry"
	"github.com/fystack/lotto-indexer/pkg/store/columnstore"
	"github.com/fystack/lotto-indexer/pkg/store/coverstore"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
	"golang.org/x/sync/errgroup"
)

// minFallbackScore drops near-zero column scores from fallback synthesis.
const minFallbackScore = 0.1

const parallelSignatures = 4

type Deps struct {
	Records recordstore.Store
	Columns columnstore.Store
	Covers  coverstore.Store
	Draws   drawlog.Source
	// Emitter is optional.
	Emitter events.Emitter
	Retry   retry.ExponentialConfig
	Now     func() time.Time
}

type Ranker struct {
	game      config.GameConfig
	extractor *features.Extractor
	deps      Deps
	logger    *slog.Logger
}

func New(game config.GameConfig, deps Deps) (*Ranker, error) {
	ex, err := features.NewExtractor(game.MaxNumber, game.PickSize, game.DigitRanges)
	if err != nil {
		return nil, err
	}
	if deps.Records == nil || deps.Columns == nil || deps.Draws == nil {
		return nil, errors.New("ranker requires record, column and draw stores")
	}
	if deps.Retry.InitialInterval <= 0 {
		deps.Retry = retry.DefaultExponential()
	}
	if deps.Now == nil {
		deps.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Ranker{
		game:      game,
		extractor: ex,
		deps:      deps,
		logger:    logger.With("component", "ranker", "game", game.Code),
	}, nil
}

func unavailable(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, types.ErrRepositoryUnavailable, err)
}

// Filter turns constraints into a record filter for sig.
func Filter(sig types.Signature, c config.Constraints) recordstore.Filter {
	f := recordstore.ForSignature(sig)
	f.MaxDup = c.MaxDup
	f.MaxRank = c.MaxRank
	return f
}

// Order sorts by Y1Sum descending; ties keep insertion order.
func Order(recs []types.CombinationRecord) {
	slices.SortStableFunc(recs, func(a, b types.CombinationRecord) int {
		if c := cmp.Compare(b.Y1Sum, a.Y1Sum); c != 0 {
			return c
		}
		return cmp.Compare(a.Seq, b.Seq)
	})
}

// SelectCover returns one cover set per signature, in input order. An empty
// sigs selects every known bucket. Failing signatures are skipped and
// reported through the returned *types.MultiError.
func (r *Ranker) SelectCover(ctx context.Context, sigs []types.Signature, constraints config.Constraints) ([]types.CoverSet, error) {
	if len(sigs) == 0 {
		buckets, err := retry.Value(ctx, func() ([]types.SignatureBucket, error) {
			return r.deps.Records.ListBuckets(r.game.Code)
		}, r.deps.Retry)
		if err != nil {
			return nil, unavailable("list buckets", err)
		}
		for _, b := range buckets {
			sigs = append(sigs, b.Signature)
		}
	}

	results := make([]*types.CoverSet, len(sigs))
	errs := &types.MultiError{}
	fb := &fallbackSource{ranker: r}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelSignatures)
	for i, sig := range sigs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			set, err := r.selectOne(gctx, sig, constraints, fb)
			if err != nil {
				r.logger.Warn("Cover selection failed", "signature", sig.Key(), "error", err)
				errs.Add(fmt.Errorf("signature %s: %w", sig.Key(), err))
				return nil
			}
			results[i] = &set
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]types.CoverSet, 0, len(sigs))
	for _, s := range results {
		if s != nil {
			out = append(out, *s)
		}
	}
	return out, errs.ErrOrNil()
}

func (r *Ranker) selectOne(ctx context.Context, sig types.Signature, constraints config.Constraints, fb *fallbackSource) (types.CoverSet, error) {
	set := types.CoverSet{Game: r.game.Code, Signature: sig, GeneratedAt: r.deps.Now()}

	var (
		bucket types.SignatureBucket
		found  bool
	)
	err := retry.Exponential(ctx, func() error {
		var err error
		bucket, found, err = r.deps.Records.GetBucket(r.game.Code, sig)
		return err
	}, r.deps.Retry)
	if err != nil {
		return set, unavailable("get bucket", err)
	}
	if !found {
		return set, types.ErrUnknownSignature
	}
	if bucket.KCount == 0 {
		set.Records = []types.CombinationRecord{}
		return set, nil
	}

	recs, err := retry.Value(ctx, func() ([]types.CombinationRecord, error) {
		return r.deps.Records.ReadRecords(r.game.Code, Filter(sig, constraints))
	}, r.deps.Retry)
	if err != nil {
		return set, unavailable("read records", err)
	}
	if len(recs) > 0 {
		Order(recs)
		set.Records = recs[:min(len(recs), bucket.KCount)]
		return set, nil
	}

	rec, err := r.synthesize(ctx, sig, fb)
	if err != nil {
		return set, err
	}
	set.Records = []types.CombinationRecord{rec}
	set.Synthesized = true
	r.logger.Debug("Synthesized fallback candidate", "signature", sig.Key(), "numbers", rec.Numbers.Key())
	return set, nil
}

// Publish persists each set and, when an emitter is configured, announces it under runID.
func (r *Ranker) Publish(ctx context.Context, runID string, sets []types.CoverSet) error {
	errs := &types.MultiError{}
	for _, set := range sets {
		if err := ctx.Err(); err != nil {
			return err
		}
		if r.deps.Covers != nil {
			err := retry.Exponential(ctx, func() error {
				return r.deps.Covers.PersistCoverSet(r.game.Code, set)
			}, r.deps.Retry)
			if err != nil {
				errs.Add(unavailable("persist cover "+set.Signature.Key(), err))
				continue
			}
		}
		if r.deps.Emitter != nil {
			if err := r.deps.Emitter.EmitCoverSet(runID, set); err != nil {
				errs.Add(fmt.Errorf("emit cover %s: %w", set.Signature.Key(), err))
			}
		}
	}
	return errs.ErrOrNil()
}

// Run selects and publishes cover sets. Per-signature failures are reported
// on the configured emitter and returned together.
func (r *Ranker) Run(ctx context.Context, runID string, sigs []types.Signature, constraints config.Constraints) ([]types.CoverSet, error) {
	sets, selErr := r.SelectCover(ctx, sigs, constraints)
	if sets == nil && selErr != nil {
		var me *types.MultiError
		if !errors.As(selErr, &me) {
			return nil, selErr
		}
	}
	pubErr := r.Publish(ctx, runID, sets)
	if selErr != nil && r.deps.Emitter != nil {
		if err := r.deps.Emitter.EmitError(r.game.Code, selErr); err != nil {
			r.logger.Error("Failed to emit selection error", "error", err)
		}
	}
	r.logger.Info("Cover run finished", "run_id", runID, "sets", len(sets))
	return sets, errors.Join(selErr, pubErr)
}
