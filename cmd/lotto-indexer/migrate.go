package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/fystack/lotto-indexer/pkg/kvstore"
	"github.com/goccy/go-yaml"
)

const migrateBatch = 64

var defaultPrefixes = []string{
	constant.KVPrefixCombo + "/",
	constant.KVPrefixDraws + "/",
}

// MigrateCmd copies game keys from the configured store into another one,
// e.g. from a local badger directory into a shared consul folder.
type MigrateCmd struct {
	To       string   `help:"YAML file holding the destination kvstore section." required:"" name:"to" type:"existingfile"`
	Prefixes []string `help:"Key prefixes to copy; every indexer prefix when empty." name:"prefix"`
	Verify   bool     `help:"Read every key back after writing it." name:"verify"`
	DryRun   bool     `help:"List what would be copied without writing." name:"dry-run"`
}

func loadKVSConfig(path string) (config.KVSConfig, error) {
	var cfg config.KVSConfig
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %q: %w", path, err)
	}
	return cfg, nil
}

func (c *MigrateCmd) Run(g *Globals) error {
	cfg, err := setup(g)
	if err != nil {
		return err
	}
	dstCfg, err := loadKVSConfig(c.To)
	if err != nil {
		return err
	}
	prefixes := c.Prefixes
	if len(prefixes) == 0 {
		prefixes = defaultPrefixes
	}

	src, err := kvstore.NewFromConfig(cfg.Services.KVS)
	if err != nil {
		return fmt.Errorf("open source store: %w", err)
	}
	defer src.Close()
	dst, err := kvstore.NewFromConfig(dstCfg)
	if err != nil {
		return fmt.Errorf("open destination store: %w", err)
	}
	defer dst.Close()

	start := time.Now()
	copied, err := migrate(src, dst, prefixes, c.Verify, c.DryRun)
	if err != nil {
		return err
	}
	logger.Info("Migration finished",
		"from", src.GetName(),
		"to", dst.GetName(),
		"keys", copied,
		"dry_run", c.DryRun,
		"took", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

// migrate copies every key under prefixes in batches and returns how many
// keys were seen.
func migrate(src, dst infra.KVStore, prefixes []string, verify, dryRun bool) (int, error) {
	total := 0
	for _, prefix := range prefixes {
		pairs, err := src.List(prefix)
		if err != nil {
			return total, fmt.Errorf("listing keys with prefix %q: %w", prefix, err)
		}
		logger.Info("Scanned prefix", "prefix", prefix, "keys", len(pairs))
		total += len(pairs)
		if dryRun {
			for _, kv := range pairs {
				logger.Debug("Would copy", "key", kv.Key)
			}
			continue
		}

		for i := 0; i < len(pairs); i += migrateBatch {
			batch := pairs[i:min(i+migrateBatch, len(pairs))]
			ops := make([]infra.KVOp, len(batch))
			for j, kv := range batch {
				ops[j] = infra.KVOp{Key: kv.Key, Value: kv.Value}
			}
			if err := dst.Apply(ops); err != nil {
				return total, fmt.Errorf("writing batch at %q: %w", batch[0].Key, err)
			}
		}

		if !verify {
			continue
		}
		for _, kv := range pairs {
			got, err := dst.Get(kv.Key)
			if err != nil {
				return total, fmt.Errorf("verifying key %q: %w", kv.Key, err)
			}
			if got != string(kv.Value) {
				return total, fmt.Errorf("verification failed for key %q", kv.Key)
			}
		}
	}
	return total, nil
}
