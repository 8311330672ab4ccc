package drawstore

import (
	"context"
	"fmt"
	"slices"

	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/drawlog"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/samber/lo"
)

const dateKeyLayout = "20060102150405"

func drawPrefix(game string) string {
	return fmt.Sprintf("%s/%s/", constant.KVPrefixDraws, game)
}

func drawKey(game string, d types.Draw) string {
	return drawPrefix(game) + d.Date.UTC().Format(dateKeyLayout)
}

// drawStore keeps imported draws in the KV store, keyed by date so key order is chronological.
type drawStore struct {
	store infra.KVStore
}

func NewDrawStore(store infra.KVStore) drawlog.Source {
	return &drawStore{store: store}
}

func (ds *drawStore) LoadAll(ctx context.Context, game string) ([]types.Draw, error) {
	codec := ds.store.Codec()
	var draws []types.Draw
	err := ds.store.Scan(drawPrefix(game), func(key string, value []byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		var d types.Draw
		if err := codec.Unmarshal(value, &d); err != nil {
			return fmt.Errorf("decode draw %s: %w", key, err)
		}
		draws = append(draws, d)
		return nil
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(draws)
	return draws, nil
}

func (ds *drawStore) LoadRecentDraws(ctx context.Context, game string, depth int) ([]types.Draw, error) {
	if depth <= 0 {
		return nil, nil
	}
	all, err := ds.LoadAll(ctx, game)
	if err != nil {
		return nil, err
	}
	return all[:min(depth, len(all))], nil
}

func (ds *drawStore) Count(ctx context.Context, game string) (int64, error) {
	var n int64
	err := ds.store.Scan(drawPrefix(game), func(string, []byte) error {
		n++
		return nil
	})
	return n, err
}

func (ds *drawStore) SaveDraws(ctx context.Context, game string, draws []types.Draw) (int, error) {
	codec := ds.store.Codec()
	ops := make([]infra.KVOp, 0, len(draws))
	for _, d := range draws {
		key := drawKey(game, d)
		if _, err := ds.store.Get(key); err == nil {
			continue
		}
		data, err := codec.Marshal(d)
		if err != nil {
			return 0, err
		}
		ops = append(ops, infra.KVOp{Key: key, Value: data})
	}
	ops = lo.UniqBy(ops, func(op infra.KVOp) string { return op.Key })
	for _, chunk := range lo.Chunk(ops, 256) {
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := ds.store.Apply(chunk); err != nil {
			return 0, err
		}
	}
	return len(ops), nil
}
