package worker

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fystack/lotto-indexer/internal/combo"
	"github.com/fystack/lotto-indexer/internal/features"
	"github.com/fystack/lotto-indexer/internal/recency"
	"github.com/fystack/lotto-indexer/internal/stats"
	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/retry"
	"golang.org/x/sync/errgroup"
)

// BuildWorker enumerates every combination of the game and upserts its record.
// Progress is checkpointed so an interrupted build resumes after the last
// fully processed batch.
type BuildWorker struct {
	*BaseWorker
	fresh bool
}

// NewBuildWorker creates a build worker. fresh drops the game's records and cursor first.
func NewBuildWorker(ctx context.Context, deps Deps, fresh bool) *BuildWorker {
	return &BuildWorker{
		BaseWorker: newWorkerWithMode(ctx, deps, enum.ModeBuild),
		fresh:      fresh,
	}
}

func (bw *BuildWorker) Start() {
	bw.logger.Info("Starting build worker", "fresh", bw.fresh)
	go func() {
		_ = bw.runJob(func(ctx context.Context) error {
			_, err := bw.Run(ctx)
			return err
		})
	}()
}

func (bw *BuildWorker) cursor(ctx context.Context) (*combo.Cursor, error) {
	game := bw.deps.Game
	if bw.fresh {
		if err := retry.Exponential(ctx, func() error {
			return bw.deps.Records.Purge(game.Code)
		}, bw.retry); err != nil {
			return nil, fmt.Errorf("purge records: %w: %w", types.ErrRepositoryUnavailable, err)
		}
		return combo.Enumerate(game.MaxNumber, game.PickSize)
	}

	var (
		last  types.Combination
		found bool
	)
	err := retry.Exponential(ctx, func() error {
		var err error
		last, found, err = bw.deps.Records.GetCursor(game.Code)
		return err
	}, bw.retry)
	if err != nil {
		return nil, fmt.Errorf("load cursor: %w: %w", types.ErrRepositoryUnavailable, err)
	}
	if !found {
		return combo.Enumerate(game.MaxNumber, game.PickSize)
	}
	bw.logger.Info("Resuming enumeration", "after", last.Key())
	return combo.ResumeAfter(game.MaxNumber, game.PickSize, last)
}

// Run performs the build synchronously.
func (bw *BuildWorker) Run(ctx context.Context) (BuildResult, error) {
	var result BuildResult
	game := bw.deps.Game

	extractor, err := features.NewExtractor(game.MaxNumber, game.PickSize, game.DigitRanges)
	if err != nil {
		return result, err
	}
	cur, err := bw.cursor(ctx)
	if err != nil {
		return result, err
	}
	snap, err := bw.loadSnapshot(ctx)
	if err != nil {
		return result, err
	}
	if err := retry.Exponential(ctx, func() error {
		return bw.deps.Columns.ReplaceAll(game.Code, snap.flat)
	}, bw.retry); err != nil {
		return result, fmt.Errorf("save column tables: %w: %w", types.ErrRepositoryUnavailable, err)
	}
	agg, err := bw.newAggregator(ctx, snap)
	if err != nil {
		return result, err
	}

	total := combo.Count(game.MaxNumber, game.PickSize)
	every := max(game.CheckpointEvery, 1)
	bw.logger.Info("Building combination records",
		"n", game.MaxNumber,
		"k", game.PickSize,
		"total", total,
		"checkpoint_every", every,
	)

	var created, updated, unchanged atomic.Uint64
	process := func(ctx context.Context, c types.Combination) error {
		f, err := extractor.Extract(c)
		if err != nil {
			return err
		}
		res, err := agg.Upsert(ctx, c, f, recency.Compute(c, snap.windows, snap.ranks))
		if err != nil {
			return err
		}
		switch res {
		case stats.Created:
			created.Add(1)
		case stats.Updated:
			updated.Add(1)
		default:
			unchanged.Add(1)
		}
		return nil
	}

	combos := make(chan types.Combination, bw.deps.bufferSize())
	producerCtx, stopProducer := context.WithCancel(ctx)
	defer stopProducer()
	go func() {
		defer close(combos)
		for c := range cur.Seq(producerCtx) {
			select {
			case combos <- c:
			case <-producerCtx.Done():
				return
			}
		}
	}()

	batch := make([]types.Combination, 0, every)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(bw.deps.concurrency())
		for _, c := range batch {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				return process(gctx, c)
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		last := batch[len(batch)-1]
		if err := agg.Checkpoint(ctx, last); err != nil {
			return err
		}
		result.Processed += uint64(len(batch))
		result.Cursor = last
		bw.logger.Info("Checkpoint saved",
			"cursor", last.Key(),
			"processed", result.Processed,
			"seq", agg.Seq(),
		)
		batch = batch[:0]
		return nil
	}

	for c := range combos {
		batch = append(batch, c)
		if len(batch) >= every {
			if err := flush(); err != nil {
				return bw.finish(result, &created, &updated, &unchanged), err
			}
		}
	}
	if err := ctx.Err(); err != nil {
		return bw.finish(result, &created, &updated, &unchanged), err
	}
	if err := flush(); err != nil {
		return bw.finish(result, &created, &updated, &unchanged), err
	}
	result.Complete = true
	result = bw.finish(result, &created, &updated, &unchanged)
	bw.logger.Info("Build complete",
		"processed", result.Processed,
		"created", result.Created,
		"updated", result.Updated,
		"unchanged", result.Unchanged,
	)
	return result, nil
}

func (bw *BuildWorker) finish(r BuildResult, created, updated, unchanged *atomic.Uint64) BuildResult {
	r.Created = created.Load()
	r.Updated = updated.Load()
	r.Unchanged = unchanged.Load()
	return r
}
