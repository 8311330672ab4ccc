package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/fystack/lotto-indexer/internal/features"
	"github.com/fystack/lotto-indexer/internal/recency"
	"github.com/fystack/lotto-indexer/internal/stats"
	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/retry"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
	"github.com/fystack/lotto-indexer/pkg/store/summarycache"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// RefreshWorker recomputes dup, rank and y1_sum of every stored record after
// the draw history moved, and rebuilds the weighted column tables.
type RefreshWorker struct {
	*BaseWorker
}

func NewRefreshWorker(ctx context.Context, deps Deps) *RefreshWorker {
	return &RefreshWorker{BaseWorker: newWorkerWithMode(ctx, deps, enum.ModeRefresh)}
}

func (rw *RefreshWorker) Start() {
	rw.logger.Info("Starting refresh worker")
	go func() {
		_ = rw.runJob(func(ctx context.Context) error {
			_, err := rw.Run(ctx)
			return err
		})
	}()
}

// Run refreshes synchronously. With a cache configured only one replica
// refreshes a game at a time; others get summarycache.ErrLocked.
func (rw *RefreshWorker) Run(ctx context.Context) (RefreshResult, error) {
	var result RefreshResult
	game := rw.deps.Game

	if rw.deps.Cache != nil {
		token := uuid.NewString()
		if err := rw.deps.Cache.AcquireRefreshLock(ctx, game.Code, token); err != nil {
			return result, err
		}
		defer func() {
			if err := rw.deps.Cache.ReleaseRefreshLock(context.WithoutCancel(ctx), game.Code, token); err != nil {
				rw.logger.Warn("Failed to release refresh lock", "err", err)
			}
		}()
	}

	extractor, err := features.NewExtractor(game.MaxNumber, game.PickSize, game.DigitRanges)
	if err != nil {
		return result, err
	}
	snap, err := rw.loadSnapshot(ctx)
	if err != nil {
		return result, err
	}
	if err := retry.Exponential(ctx, func() error {
		return rw.deps.Columns.ReplaceAll(game.Code, snap.flat)
	}, rw.retry); err != nil {
		return result, fmt.Errorf("save column tables: %w: %w", types.ErrRepositoryUnavailable, err)
	}
	result.Tables = len(snap.flat)

	agg, err := rw.newAggregator(ctx, snap)
	if err != nil {
		return result, err
	}

	var records, updated, unchanged atomic.Uint64
	recs := make(chan types.Combination, rw.deps.bufferSize())
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(recs)
		return rw.deps.Records.ScanRecords(game.Code, recordstore.Filter{}, func(rec types.CombinationRecord) error {
			select {
			case recs <- rec.Numbers:
				return nil
			case <-gctx.Done():
				return gctx.Err()
			}
		})
	})
	for range rw.deps.concurrency() {
		g.Go(func() error {
			for c := range recs {
				f, err := extractor.Extract(c)
				if err != nil {
					return err
				}
				res, err := agg.Upsert(gctx, c, f, recency.Compute(c, snap.windows, snap.ranks))
				if err != nil {
					return err
				}
				records.Add(1)
				if res == stats.Updated {
					updated.Add(1)
				} else {
					unchanged.Add(1)
				}
			}
			return nil
		})
	}
	err = g.Wait()
	result.Records = records.Load()
	result.Updated = updated.Load()
	result.Unchanged = unchanged.Load()
	if err != nil {
		return result, err
	}

	if rw.deps.Cache != nil {
		if err := rw.deps.Cache.Invalidate(ctx, game.Code); err != nil {
			rw.logger.Warn("Failed to invalidate dashboard cache", "err", err)
		}
	}
	rw.logger.Info("Refresh complete",
		"records", result.Records,
		"updated", result.Updated,
		"tables", result.Tables,
	)
	return result, nil
}

// IsLocked reports whether err means another replica is refreshing.
func IsLocked(err error) bool {
	return errors.Is(err, summarycache.ErrLocked)
}
