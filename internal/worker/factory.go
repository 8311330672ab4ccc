package worker

import (
	"context"
	"fmt"

	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/fystack/lotto-indexer/pkg/drawlog"
	"github.com/fystack/lotto-indexer/pkg/events"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/fystack/lotto-indexer/pkg/kvstore"
	"github.com/fystack/lotto-indexer/pkg/store/columnstore"
	"github.com/fystack/lotto-indexer/pkg/store/coverstore"
	"github.com/fystack/lotto-indexer/pkg/store/drawstore"
	"github.com/fystack/lotto-indexer/pkg/store/recordstore"
	"github.com/fystack/lotto-indexer/pkg/store/summarycache"
	"github.com/nats-io/nats.go"
	"gorm.io/gorm"
)

// Stack bundles the infrastructure shared by every game of one process.
type Stack struct {
	KV      infra.KVStore
	DB      *gorm.DB
	NATS    *nats.Conn
	Draws   drawlog.Source
	Emitter events.Emitter
	Redis   infra.RedisClient
	Cache   summarycache.Cache

	Records recordstore.Store
	Columns columnstore.Store
	Covers  coverstore.Store
}

// StackOptions turns optional services off for commands that do not need them.
type StackOptions struct {
	WithEmitter bool
	WithCache   bool
}

// NewStack connects the configured services. Optional services (NATS, redis)
// are skipped when absent from the config.
func NewStack(ctx context.Context, cfg *config.Config, opts StackOptions) (*Stack, error) {
	env := string(cfg.Environment)
	s := &Stack{}

	kv, err := kvstore.NewFromConfig(cfg.Services.KVS)
	if err != nil {
		return nil, fmt.Errorf("open kv store: %w", err)
	}
	s.KV = kv
	s.Records = recordstore.NewRecordStore(kv)
	s.Columns = columnstore.NewColumnStore(kv)
	s.Covers = coverstore.NewCoverStore(kv)

	switch cfg.Services.Draws.Source {
	case enum.DrawSourceSQL:
		db, err := infra.NewDBConnection(cfg.Services.Database, env)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		s.DB = db
		if s.Draws, err = drawlog.NewSQLSource(db, cfg.Services.Draws.Table); err != nil {
			s.Close()
			return nil, err
		}
	default:
		s.Draws = drawstore.NewDrawStore(kv)
	}

	if opts.WithEmitter && cfg.Services.Nats != nil {
		nc, err := infra.GetNATSConnection(*cfg.Services.Nats, env)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("connect nats: %w", err)
		}
		s.NATS = nc
		mqm, err := infra.NewNATsMessageQueueManager(ctx, cfg.Services.Nats.SubjectPrefix, nc)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Emitter = events.NewEmitter(mqm.NewPublisher(), cfg.Services.Nats.SubjectPrefix)
	}

	if opts.WithCache && cfg.Services.Redis != nil {
		rc, err := infra.NewRedisClient(*cfg.Services.Redis, env)
		if err != nil {
			// the dashboard works without the cache
			logger.Warn("Redis unavailable, continuing without cache", "err", err)
		} else {
			s.Redis = rc
			s.Cache = summarycache.NewCache(rc, cfg.Services.Redis.CacheTTL)
		}
	}
	return s, nil
}

// Deps returns the worker dependencies of game.
func (s *Stack) Deps(game config.GameConfig, wc config.WorkerConfig) Deps {
	return Deps{
		Game:    game,
		Worker:  wc,
		Records: s.Records,
		Columns: s.Columns,
		Covers:  s.Covers,
		Draws:   s.Draws,
		Emitter: s.Emitter,
		Cache:   s.Cache,
	}
}

// Close releases every connection. It is safe on a partially built stack.
func (s *Stack) Close() {
	if s.Emitter != nil {
		s.Emitter.Close()
	}
	if s.NATS != nil {
		s.NATS.Close()
	}
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			logger.Error("Failed to close redis", "err", err)
		}
	}
	if s.DB != nil {
		if sqlDB, err := s.DB.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	if s.KV != nil {
		if err := s.KV.Close(); err != nil {
			logger.Error("Failed to close KV store", "err", err)
		}
	}
}

// BuildWorkers constructs the worker for a mode.
func BuildWorkers(ctx context.Context, mode enum.PipelineMode, deps Deps) ([]Worker, error) {
	switch mode {
	case enum.ModeBuild:
		return []Worker{NewBuildWorker(ctx, deps, false)}, nil
	case enum.ModeRefresh:
		return []Worker{NewRefreshWorker(ctx, deps)}, nil
	case enum.ModeCover:
		w, err := NewCoverWorker(ctx, deps)
		if err != nil {
			return nil, err
		}
		return []Worker{w}, nil
	case enum.ModeAll:
		w, err := NewPipelineWorker(ctx, deps)
		if err != nil {
			return nil, err
		}
		return []Worker{w}, nil
	default:
		return nil, fmt.Errorf("unsupported mode: %s", mode)
	}
}
