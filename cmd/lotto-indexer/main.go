package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/fystack/lotto-indexer/internal/stats"
	"github.com/fystack/lotto-indexer/internal/worker"
	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/drawlog"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/nats-io/nats.go"
)

const version = "1.0.0"

// --- CLI definitions --- //

type Globals struct {
	ConfigPath string `help:"Path to config file." default:"configs/config.yaml" name:"config"`
	Debug      bool   `help:"Enable debug logs." name:"debug"`
}

type CLI struct {
	Globals

	Build       BuildCmd       `cmd:"" help:"Enumerate combinations and upsert their records."`
	Refresh     RefreshCmd     `cmd:"" help:"Recompute recency features and column tables after new draws."`
	Cover       CoverCmd       `cmd:"" help:"Select and publish cover sets."`
	Retarget    RetargetCmd    `cmd:"" help:"Set the k_count of a signature bucket."`
	ImportDraws ImportDrawsCmd `cmd:"" name:"import-draws" help:"Import historical draws from CSV."`
	Serve       ServeCmd       `cmd:"" help:"Run scheduled pipelines and the HTTP API."`
	Dump        DumpCmd        `cmd:"" help:"Print stored keys and values."`
	Watch       WatchCmd       `cmd:"" help:"Print indexer events from NATS."`
	Migrate     MigrateCmd     `cmd:"" help:"Copy stored keys into another kvstore."`
}

type BuildCmd struct {
	Game  string `help:"Game to build." required:"" name:"game"`
	Fresh bool   `help:"Drop existing records and start over." name:"fresh"`
}

type RefreshCmd struct {
	Game string `help:"Game to refresh." required:"" name:"game"`
}

type CoverCmd struct {
	Game string `help:"Game to rank." required:"" name:"game"`
}

type RetargetCmd struct {
	Game      string `help:"Game of the bucket." required:"" name:"game"`
	Signature string `help:"Signature as sum-even-odd." required:"" name:"signature"`
	KCount    int    `help:"Records to keep in the cover set." required:"" name:"k-count"`
}

type ImportDrawsCmd struct {
	Game string `help:"Game the draws belong to." required:"" name:"game"`
	File string `help:"CSV file of date,b1..bk rows." required:"" name:"file" type:"existingfile"`
}

type ServeCmd struct {
	Games []string `help:"Games to schedule; all configured games when empty." name:"games"`
	Port  int      `help:"Override the configured HTTP port." name:"port"`
}

type DumpCmd struct {
	Prefix string `help:"Key prefix to print, e.g. combo/mini/." required:"" name:"prefix"`
	Keys   bool   `help:"Print keys only." name:"keys"`
}

type WatchCmd struct {
	Subject string `help:"Subject to subscribe to; <prefix>.> when empty." name:"subject"`
	Durable bool   `help:"Consume cover events through the durable JetStream consumer and ack them." name:"durable"`
}

// --- entrypoint --- //

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("lotto-indexer"),
		kong.Description("Lottery combination statistics indexer & cover set ranker."),
		kong.UsageOnError(),
	)
	err := ctx.Run(&cli.Globals)
	ctx.FatalIfErrorf(err)
}

func setup(g *Globals) (*config.Config, error) {
	level := slog.LevelInfo
	if g.Debug {
		level = slog.LevelDebug
	}
	logger.Init(&logger.Options{
		Level:      level,
		TimeFormat: time.RFC3339,
	})

	cfg, err := config.Load(g.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.Info("Config loaded", "env", cfg.Environment, "games", cfg.Games.Codes())
	return cfg, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// withGame loads config and infrastructure, then runs fn for one game.
func withGame(g *Globals, code string, opts worker.StackOptions, fn func(ctx context.Context, stack *worker.Stack, deps worker.Deps) error) error {
	cfg, err := setup(g)
	if err != nil {
		return err
	}
	game, err := cfg.Games.Get(code)
	if err != nil {
		return err
	}
	ctx, stop := signalContext()
	defer stop()

	stack, err := worker.NewStack(ctx, cfg, opts)
	if err != nil {
		return err
	}
	defer stack.Close()
	return fn(ctx, stack, stack.Deps(game, cfg.Services.Worker))
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *BuildCmd) Run(g *Globals) error {
	return withGame(g, c.Game, worker.StackOptions{}, func(ctx context.Context, _ *worker.Stack, deps worker.Deps) error {
		w := worker.NewBuildWorker(ctx, deps, c.Fresh)
		defer w.Stop()
		res, err := w.Run(ctx)
		if errors.Is(err, context.Canceled) {
			logger.Info("Build interrupted; rerun to resume", "cursor", res.Cursor.Key())
			return nil
		}
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func (c *RefreshCmd) Run(g *Globals) error {
	return withGame(g, c.Game, worker.StackOptions{WithCache: true}, func(ctx context.Context, _ *worker.Stack, deps worker.Deps) error {
		w := worker.NewRefreshWorker(ctx, deps)
		defer w.Stop()
		res, err := w.Run(ctx)
		if err != nil {
			return err
		}
		return printJSON(res)
	})
}

func (c *CoverCmd) Run(g *Globals) error {
	return withGame(g, c.Game, worker.StackOptions{WithEmitter: true}, func(ctx context.Context, _ *worker.Stack, deps worker.Deps) error {
		w, err := worker.NewCoverWorker(ctx, deps)
		if err != nil {
			return err
		}
		defer w.Stop()
		sets, err := w.Run(ctx)
		if len(sets) > 0 {
			if perr := printJSON(sets); perr != nil {
				return perr
			}
		}
		return err
	})
}

func (c *RetargetCmd) Run(g *Globals) error {
	sig, err := types.ParseSignature(c.Signature)
	if err != nil {
		return err
	}
	return withGame(g, c.Game, worker.StackOptions{}, func(ctx context.Context, stack *worker.Stack, deps worker.Deps) error {
		agg, err := stats.NewAggregator(ctx, deps.Game.Code, stack.Records, stats.Options{
			MaxNumber:     deps.Game.MaxNumber,
			DefaultKCount: deps.Game.DefaultKCount,
		})
		if err != nil {
			return err
		}
		bucket, err := agg.Retarget(ctx, sig, c.KCount)
		if err != nil {
			return err
		}
		return printJSON(bucket)
	})
}

func (c *ImportDrawsCmd) Run(g *Globals) error {
	return withGame(g, c.Game, worker.StackOptions{WithCache: true}, func(ctx context.Context, stack *worker.Stack, deps worker.Deps) error {
		f, err := os.Open(c.File)
		if err != nil {
			return err
		}
		defer f.Close()

		draws, err := drawlog.ParseCSV(f, deps.Game.MaxNumber, deps.Game.PickSize)
		if err != nil {
			return fmt.Errorf("parse %s: %w", c.File, err)
		}
		added, err := stack.Draws.SaveDraws(ctx, deps.Game.Code, draws)
		if err != nil {
			return err
		}
		if stack.Cache != nil && added > 0 {
			if err := stack.Cache.Invalidate(ctx, deps.Game.Code); err != nil {
				logger.Warn("Failed to invalidate dashboard cache", "err", err)
			}
		}
		logger.Info("Draws imported", "game", deps.Game.Code, "rows", len(draws), "added", added)
		return nil
	})
}

func (c *ServeCmd) Run(g *Globals) error {
	cfg, err := setup(g)
	if err != nil {
		return err
	}
	codes := c.Games
	if len(codes) == 0 {
		codes = cfg.Games.Codes()
	}
	port := cfg.Services.Port
	if c.Port > 0 {
		port = c.Port
	}

	ctx, stop := signalContext()
	defer stop()

	stack, err := worker.NewStack(ctx, cfg, worker.StackOptions{WithEmitter: true, WithCache: true})
	if err != nil {
		return err
	}
	manager := worker.NewManager(ctx, stack, cfg.Services.Worker.StopTimeout)
	for _, code := range codes {
		game, err := cfg.Games.Get(code)
		if err != nil {
			stack.Close()
			return err
		}
		workers, err := worker.BuildWorkers(ctx, enum.ModeAll, stack.Deps(game, cfg.Services.Worker))
		if err != nil {
			stack.Close()
			return err
		}
		manager.AddWorkers(workers...)
	}

	handler := NewLottoHTTPHandler(version, cfg.Games, stack.Draws, stack.Records, stack.Covers, stack.Cache)
	server := startHTTPServer(port, handler)
	manager.Start()

	logger.Info("Indexer is running... Press Ctrl+C to stop", "games", codes)
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown failed", "err", err)
	}
	manager.Stop()
	logger.Info("Indexer stopped")
	return nil
}

func (c *DumpCmd) Run(g *Globals) error {
	cfg, err := setup(g)
	if err != nil {
		return err
	}
	stack, err := worker.NewStack(context.Background(), cfg, worker.StackOptions{})
	if err != nil {
		return err
	}
	defer stack.Close()
	return dump(os.Stdout, stack.KV, c.Prefix, c.Keys)
}

// dump prints every key under prefix, with its value unless keysOnly.
func dump(w io.Writer, kv infra.KVStore, prefix string, keysOnly bool) error {
	count := 0
	err := kv.Scan(prefix, func(key string, value []byte) error {
		count++
		if keysOnly {
			_, err := fmt.Fprintln(w, key)
			return err
		}
		_, err := fmt.Fprintf(w, "%s = %s\n", key, strings.TrimSpace(string(value)))
		return err
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%d keys\n", count)
	return err
}

func (c *WatchCmd) Run(g *Globals) error {
	cfg, err := setup(g)
	if err != nil {
		return err
	}
	if cfg.Services.Nats == nil {
		return errors.New("nats is not configured")
	}
	prefix := cfg.Services.Nats.SubjectPrefix
	subject := c.Subject
	if subject == "" {
		subject = prefix + ".>"
	}

	nc, err := infra.GetNATSConnection(*cfg.Services.Nats, string(cfg.Environment))
	if err != nil {
		return err
	}
	defer nc.Close()

	ctx, stop := signalContext()
	defer stop()

	if c.Durable {
		manager, err := infra.NewNATsMessageQueueManager(ctx, prefix, nc)
		if err != nil {
			return err
		}
		queue, err := manager.NewMessageQueue(ctx, constant.CoverSubject)
		if err != nil {
			return err
		}
		defer queue.Close()
		subject = prefix + "." + constant.CoverSubject + ".*"
		err = queue.Dequeue(subject, func(message []byte) error {
			fmt.Printf("[%s] %s\n", subject, string(message))
			return nil
		})
		if err != nil {
			return err
		}
	} else {
		sub, err := nc.Subscribe(subject, func(msg *nats.Msg) {
			fmt.Printf("[%s] %s\n", msg.Subject, string(msg.Data))
		})
		if err != nil {
			return fmt.Errorf("subscribe %s: %w", subject, err)
		}
		defer func() { _ = sub.Unsubscribe() }()
	}
	logger.Info("Subscribed to", "subject", subject, "durable", c.Durable)

	<-ctx.Done()
	return nil
}
