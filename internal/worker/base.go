package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/fystack/lotto-indexer/internal/recency"
	"github.com/fystack/lotto-indexer/internal/stats"
	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/drawlog"
	"github.com/fystack/lotto-indexer/pkg/events"
	"github.com/fystack/lotto-indexer/pkg/retry"
	"github.com/fystack/lotto-indexer/pkg/store/columnstore"
	"github.com/fystack/lotto-indexer/pkg/store/coverstore"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
	"github.com/fystack/lotto-indexer/pkg/store/summarycache"
)

const (
	defaultConcurrency = 4
	defaultBufferSize  = 1024
)

// Deps groups the stores and sinks shared by the pipeline workers of one game.
type Deps struct {
	Game    config.GameConfig
	Worker  config.WorkerConfig
	Records recordstore.Store
	Columns columnstore.Store
	Covers  coverstore.Store
	Draws   drawlog.Source
	// Emitter and Cache are optional.
	Emitter events.Emitter
	Cache   summarycache.Cache
}

func (d Deps) concurrency() int {
	if d.Worker.Concurrency > 0 {
		return d.Worker.Concurrency
	}
	return defaultConcurrency
}

func (d Deps) bufferSize() int {
	if d.Worker.BufferSize > 0 {
		return d.Worker.BufferSize
	}
	return defaultBufferSize
}

func (d Deps) retryConfig(log *slog.Logger) retry.ExponentialConfig {
	cfg := retry.DefaultExponential()
	if d.Worker.Retry.InitialInterval > 0 {
		cfg.InitialInterval = d.Worker.Retry.InitialInterval
	}
	if d.Worker.Retry.MaxElapsed > 0 {
		cfg.MaxElapsedTime = d.Worker.Retry.MaxElapsed
	}
	cfg.OnRetry = func(err error, next time.Duration) {
		log.Debug("Retrying repository call", "err", err, "next_retry_in", next)
	}
	return cfg
}

// snapshot is the read-only view of the draw history a run works against.
type snapshot struct {
	draws   []types.Draw
	windows *recency.Windows
	ranks   recency.RankTable
	tables  map[types.Signature][]types.ColumnTable
	flat    []types.ColumnTable
	kCounts map[types.Signature]int
}

func (bw *BaseWorker) loadSnapshot(ctx context.Context) (*snapshot, error) {
	game := bw.deps.Game
	draws, err := retry.Value(ctx, func() ([]types.Draw, error) {
		return bw.deps.Draws.LoadAll(ctx, game.Code)
	}, bw.retry)
	if err != nil {
		return nil, fmt.Errorf("load draws: %w: %w", types.ErrRepositoryUnavailable, err)
	}
	windows, err := recency.NewWindows(draws, game.DupDepth)
	if err != nil {
		return nil, err
	}
	s := &snapshot{
		draws:   draws,
		windows: windows,
		ranks:   recency.BuildRankTable(draws, game.RankWindow),
		flat:    stats.BuildColumnTables(draws, game.WeightWindows),
		tables:  map[types.Signature][]types.ColumnTable{},
		kCounts: stats.SignatureCounts(draws, game.KCountWindow),
	}
	for _, t := range s.flat {
		if s.tables[t.Signature] == nil {
			s.tables[t.Signature] = make([]types.ColumnTable, game.PickSize)
		}
		if t.Position >= 1 && t.Position <= game.PickSize {
			s.tables[t.Signature][t.Position-1] = t
		}
	}
	bw.logger.Info("Loaded draw history",
		"draws", len(draws),
		"signatures", len(s.tables),
	)
	return s, nil
}

func (s *snapshot) score(c types.Combination, sig types.Signature) float64 {
	return stats.Y1Sum(c, s.tables[sig])
}

func (bw *BaseWorker) newAggregator(ctx context.Context, snap *snapshot) (*stats.Aggregator, error) {
	return stats.NewAggregator(ctx, bw.deps.Game.Code, bw.deps.Records, stats.Options{
		MaxNumber:      bw.deps.Game.MaxNumber,
		DefaultKCount:  bw.deps.Game.DefaultKCount,
		InitialKCounts: snap.kCounts,
		Score:          snap.score,
		Retry:          bw.retry,
	})
}

// BaseWorker holds the common state and logic shared by all worker types.
type BaseWorker struct {
	ctx    context.Context
	cancel context.CancelFunc
	mode   enum.PipelineMode
	logger *slog.Logger
	retry  retry.ExponentialConfig

	deps Deps
}

// Stop stops the worker and cleans up internal resources.
func (bw *BaseWorker) Stop() {
	bw.cancel()
	bw.logger.Info("Worker stopped")
}

// newWorkerWithMode constructs a BaseWorker with the given mode and logger.
func newWorkerWithMode(ctx context.Context, deps Deps, mode enum.PipelineMode) *BaseWorker {
	ctx, cancel := context.WithCancel(ctx)
	log := logger.Game(deps.Game.Code, strings.ToUpper(string(mode)))

	return &BaseWorker{
		ctx:    ctx,
		cancel: cancel,
		mode:   mode,
		logger: log,
		retry:  deps.retryConfig(log),
		deps:   deps,
	}
}

// runJob executes job once, reporting a failure on the emitter.
func (bw *BaseWorker) runJob(job func(context.Context) error) error {
	start := time.Now()
	err := job(bw.ctx)
	switch {
	case err == nil:
		bw.logger.Info("Job finished", "elapsed", time.Since(start))
	case errors.Is(err, context.Canceled):
		bw.logger.Info("Job cancelled", "elapsed", time.Since(start))
	default:
		bw.logger.Error("Job error", "err", err)
		if bw.deps.Emitter != nil {
			_ = bw.deps.Emitter.EmitError(bw.deps.Game.Code, err)
		}
	}
	return err
}
