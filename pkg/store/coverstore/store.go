package coverstore

import (
	"fmt"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/infra"
)

func coverPrefix(game string) string {
	return fmt.Sprintf("%s/%s/%s/", constant.KVPrefixCombo, game, constant.KVPrefixCover)
}

func coverKey(game string, sig types.Signature) string {
	return coverPrefix(game) + sig.Key()
}

type Store interface {
	PersistCoverSet(game string, set types.CoverSet) error
	GetCoverSet(game string, sig types.Signature) (types.CoverSet, bool, error)
	ListCoverSets(game string) ([]types.CoverSet, error)
}

type coverStore struct {
	store infra.KVStore
}

func NewCoverStore(store infra.KVStore) Store {
	return &coverStore{store: store}
}

// PersistCoverSet overwrites the previous selection for the set's signature.
func (cs *coverStore) PersistCoverSet(game string, set types.CoverSet) error {
	if set.GeneratedAt.IsZero() {
		set.GeneratedAt = time.Now().UTC()
	}
	set.Game = game
	return cs.store.SetAny(coverKey(game, set.Signature), set)
}

func (cs *coverStore) GetCoverSet(game string, sig types.Signature) (types.CoverSet, bool, error) {
	var set types.CoverSet
	found, err := cs.store.GetAny(coverKey(game, sig), &set)
	return set, found, err
}

func (cs *coverStore) ListCoverSets(game string) ([]types.CoverSet, error) {
	codec := cs.store.Codec()
	var out []types.CoverSet
	err := cs.store.Scan(coverPrefix(game), func(key string, value []byte) error {
		var set types.CoverSet
		if err := codec.Unmarshal(value, &set); err != nil {
			return fmt.Errorf("decode cover set %s: %w", key, err)
		}
		out = append(out, set)
		return nil
	})
	return out, err
}
