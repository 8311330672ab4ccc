package columnstore

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/samber/lo"
)

func columnPrefix(game string) string {
	return fmt.Sprintf("%s/%s/%s/", constant.KVPrefixCombo, game, constant.KVPrefixColumn)
}

func columnKey(game string, sig types.Signature, pos int) string {
	return fmt.Sprintf("%s%s/%d", columnPrefix(game), sig.Key(), pos)
}

// Store persists weighted column frequency tables per (signature, position).
type Store interface {
	LoadWeightedColumnTable(game string, sig types.Signature, pos int) (types.ColumnTable, bool, error)
	SaveWeightedColumnTable(game string, table types.ColumnTable) error
	// LoadSignatureTables returns the tables of every position for sig, indexed by position-1.
	LoadSignatureTables(game string, sig types.Signature, k int) ([]types.ColumnTable, error)
	// ReplaceAll swaps the game's tables for tables in one pass.
	ReplaceAll(game string, tables []types.ColumnTable) error
	ListSignatures(game string) ([]types.Signature, error)
}

type columnStore struct {
	store infra.KVStore
}

func NewColumnStore(store infra.KVStore) Store {
	return &columnStore{store: store}
}

func (cs *columnStore) LoadWeightedColumnTable(game string, sig types.Signature, pos int) (types.ColumnTable, bool, error) {
	var t types.ColumnTable
	found, err := cs.store.GetAny(columnKey(game, sig, pos), &t)
	return t, found, err
}

func (cs *columnStore) SaveWeightedColumnTable(game string, table types.ColumnTable) error {
	if table.Position < 1 {
		return fmt.Errorf("invalid column position %d", table.Position)
	}
	return cs.store.SetAny(columnKey(game, table.Signature, table.Position), table)
}

func (cs *columnStore) LoadSignatureTables(game string, sig types.Signature, k int) ([]types.ColumnTable, error) {
	tables := make([]types.ColumnTable, k)
	for pos := 1; pos <= k; pos++ {
		t, found, err := cs.LoadWeightedColumnTable(game, sig, pos)
		if err != nil {
			return nil, err
		}
		if !found {
			t = types.ColumnTable{Signature: sig, Position: pos}
		}
		tables[pos-1] = t
	}
	return tables, nil
}

func (cs *columnStore) ReplaceAll(game string, tables []types.ColumnTable) error {
	var stale []string
	if err := cs.store.Scan(columnPrefix(game), func(key string, _ []byte) error {
		stale = append(stale, key)
		return nil
	}); err != nil {
		return err
	}

	fresh := make(map[string]struct{}, len(tables))
	ops := make([]infra.KVOp, 0, len(tables))
	for _, t := range tables {
		data, err := cs.store.Codec().Marshal(t)
		if err != nil {
			return err
		}
		key := columnKey(game, t.Signature, t.Position)
		fresh[key] = struct{}{}
		ops = append(ops, infra.KVOp{Key: key, Value: data})
	}
	for _, key := range stale {
		if _, ok := fresh[key]; !ok {
			ops = append(ops, infra.KVOp{Key: key, Delete: true})
		}
	}
	for _, chunk := range lo.Chunk(ops, 256) {
		if err := cs.store.Apply(chunk); err != nil {
			return err
		}
	}
	return nil
}

func (cs *columnStore) ListSignatures(game string) ([]types.Signature, error) {
	prefix := columnPrefix(game)
	var sigs []types.Signature
	err := cs.store.Scan(prefix, func(key string, _ []byte) error {
		rest := strings.TrimPrefix(key, prefix)
		sigPart, posPart, ok := strings.Cut(rest, "/")
		if !ok {
			return nil
		}
		if pos, err := strconv.Atoi(posPart); err != nil || pos != 1 {
			return nil
		}
		sig, err := types.ParseSignature(sigPart)
		if err != nil {
			return err
		}
		sigs = append(sigs, sig)
		return nil
	})
	return sigs, err
}
