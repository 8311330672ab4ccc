package worker

import (
	"context"
	"errors"

	"github.com/fystack/lotto-indexer/internal/ranker"
	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/google/uuid"
)

// CoverWorker selects and publishes the cover sets of a game.
type CoverWorker struct {
	*BaseWorker
	ranker *ranker.Ranker
}

func NewCoverWorker(ctx context.Context, deps Deps) (*CoverWorker, error) {
	bw := newWorkerWithMode(ctx, deps, enum.ModeCover)
	r, err := bw.newRanker()
	if err != nil {
		bw.cancel()
		return nil, err
	}
	return &CoverWorker{BaseWorker: bw, ranker: r}, nil
}

func (bw *BaseWorker) newRanker() (*ranker.Ranker, error) {
	return ranker.New(bw.deps.Game, ranker.Deps{
		Records: bw.deps.Records,
		Columns: bw.deps.Columns,
		Covers:  bw.deps.Covers,
		Draws:   bw.deps.Draws,
		Emitter: bw.deps.Emitter,
		Retry:   bw.retry,
	})
}

func (cw *CoverWorker) Start() {
	cw.logger.Info("Starting cover worker")
	go func() {
		_ = cw.runJob(func(ctx context.Context) error {
			_, err := cw.Run(ctx)
			return err
		})
	}()
}

// Run selects cover sets for the configured signatures, or every bucket when
// none are configured. Sets for healthy signatures are returned even when
// others failed.
func (cw *CoverWorker) Run(ctx context.Context) ([]types.CoverSet, error) {
	sigs, err := cw.deps.Game.SignatureFilter()
	if err != nil {
		return nil, err
	}
	runID := uuid.NewString()
	cw.logger.Info("Selecting cover sets", "run_id", runID, "signatures", len(sigs))
	sets, err := cw.ranker.Run(ctx, runID, sigs, cw.deps.Game.Constraints)
	var me *types.MultiError
	if errors.As(err, &me) {
		cw.logger.Warn("Some signatures failed", "failed", me.Len(), "selected", len(sets))
	}
	return sets, err
}
