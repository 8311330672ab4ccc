package worker

import (
	"context"
	"fmt"

	"github.com/fystack/lotto-indexer/internal/ranker"
	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/robfig/cron/v3"
)

// PipelineWorker runs build, refresh and cover for one game, once at start
// and then on the configured cron schedule. A tick that fires while the
// previous run is still busy is skipped.
type PipelineWorker struct {
	*BaseWorker
	schedule cron.Schedule
	spec     string
	cron     *cron.Cron
	ranker   *ranker.Ranker
}

func NewPipelineWorker(ctx context.Context, deps Deps) (*PipelineWorker, error) {
	bw := newWorkerWithMode(ctx, deps, enum.ModeAll)
	r, err := bw.newRanker()
	if err != nil {
		bw.cancel()
		return nil, err
	}
	pw := &PipelineWorker{BaseWorker: bw, ranker: r, spec: deps.Worker.Schedule}
	if pw.spec != "" {
		pw.schedule, err = cron.ParseStandard(pw.spec)
		if err != nil {
			pw.cancel()
			return nil, fmt.Errorf("invalid schedule %q: %w", pw.spec, err)
		}
	}
	return pw, nil
}

func (pw *PipelineWorker) Start() {
	pw.logger.Info("Starting pipeline worker", "schedule", pw.spec)
	job := func() { _ = pw.runJob(pw.runPipeline) }
	if pw.schedule == nil {
		go job()
		return
	}
	pw.cron = cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	id := pw.cron.Schedule(pw.schedule, cron.FuncJob(job))
	pw.cron.Start()
	// first run without waiting for the schedule; the chain keeps it exclusive
	go pw.cron.Entry(id).WrappedJob.Run()
}

func (pw *PipelineWorker) Stop() {
	pw.BaseWorker.Stop()
	if pw.cron != nil {
		<-pw.cron.Stop().Done()
	}
}

func (pw *PipelineWorker) runPipeline(ctx context.Context) error {
	for _, mode := range pipelineModes {
		if err := ctx.Err(); err != nil {
			return err
		}
		log := pw.logger.With("step", string(mode))
		switch mode {
		case enum.ModeBuild:
			res, err := (&BuildWorker{BaseWorker: pw.BaseWorker}).Run(ctx)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}
			log.Info("Step done", "processed", res.Processed, "complete", res.Complete)
		case enum.ModeRefresh:
			res, err := (&RefreshWorker{BaseWorker: pw.BaseWorker}).Run(ctx)
			if IsLocked(err) {
				log.Info("Refresh running elsewhere, skipping")
				continue
			}
			if err != nil {
				return fmt.Errorf("refresh: %w", err)
			}
			log.Info("Step done", "updated", res.Updated, "records", res.Records)
		case enum.ModeCover:
			sets, err := (&CoverWorker{BaseWorker: pw.BaseWorker, ranker: pw.ranker}).Run(ctx)
			if err != nil {
				return fmt.Errorf("cover: %w", err)
			}
			log.Info("Step done", "sets", len(sets))
		}
	}
	return nil
}
