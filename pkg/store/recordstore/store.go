package recordstore

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/fystack/lotto-indexer/pkg/kvstore"
	"github.com/fystack/lotto-indexer/pkg/retry"
	"github.com/samber/lo"
)

// deleteChunk bounds the number of keys removed per transaction.
const deleteChunk = 512

var errStop = errors.New("stop scan")

type Store interface {
	GetRecord(game string, c types.Combination) (types.CombinationRecord, bool, error)
	// PersistRecord writes the record, its signature index entry and the bucket in one transaction.
	PersistRecord(game string, rec types.CombinationRecord, bucket *types.SignatureBucket) error
	ScanRecords(game string, filter Filter, fn func(types.CombinationRecord) error) error
	ReadRecords(game string, filter Filter) ([]types.CombinationRecord, error)
	DeleteRecords(game string, filter Filter) (int, error)

	GetBucket(game string, sig types.Signature) (types.SignatureBucket, bool, error)
	SaveBucket(game string, bucket types.SignatureBucket) error
	ListBuckets(game string) ([]types.SignatureBucket, error)

	GetCursor(game string) (types.Combination, bool, error)
	// SaveCheckpoint persists the enumeration cursor and its rank together.
	SaveCheckpoint(game string, cursor types.Combination, seq uint64) error
	GetSeq(game string) (uint64, error)

	// Purge removes every key of the game.
	Purge(game string) error
}

type recordStore struct {
	store infra.KVStore
}

func NewRecordStore(store infra.KVStore) Store {
	return &recordStore{store: store}
}

func (rs *recordStore) GetRecord(game string, c types.Combination) (types.CombinationRecord, bool, error) {
	var rec types.CombinationRecord
	found, err := rs.store.GetAny(recordKey(game, c), &rec)
	return rec, found, err
}

func (rs *recordStore) PersistRecord(game string, rec types.CombinationRecord, bucket *types.SignatureBucket) error {
	if game == "" {
		return errors.New("game is required")
	}
	if len(rec.Numbers) == 0 {
		return retry.Permanent(types.ErrInvalidCombination)
	}
	codec := rs.store.Codec()
	data, err := codec.Marshal(rec)
	if err != nil {
		return err
	}
	ops := []infra.KVOp{
		{Key: recordKey(game, rec.Numbers), Value: data},
		{Key: sigIndexKey(game, rec.Signature(), rec.Numbers), Value: []byte(rec.Key())},
	}
	if bucket != nil {
		b, err := codec.Marshal(bucket)
		if err != nil {
			return err
		}
		ops = append(ops, infra.KVOp{Key: bucketKey(game, bucket.Signature), Value: b})
	}
	return rs.store.Apply(ops)
}

func (rs *recordStore) ScanRecords(game string, filter Filter, fn func(types.CombinationRecord) error) error {
	codec := rs.store.Codec()
	matched := 0
	visit := func(rec types.CombinationRecord) error {
		if !filter.Match(rec) {
			return nil
		}
		if err := fn(rec); err != nil {
			return err
		}
		matched++
		if filter.Limit > 0 && matched >= filter.Limit {
			return errStop
		}
		return nil
	}

	var err error
	if filter.Signature != nil {
		err = rs.store.Scan(sigPrefix(game, *filter.Signature), func(_ string, value []byte) error {
			c, err := types.ParseCombination(string(value))
			if err != nil {
				return retry.Permanent(fmt.Errorf("parse index entry %q: %w", value, err))
			}
			rec, found, err := rs.GetRecord(game, c)
			if err != nil {
				return err
			}
			if !found {
				// index entry without record; skip
				return nil
			}
			return visit(rec)
		})
	} else {
		err = rs.store.Scan(recordPrefix(game), func(key string, value []byte) error {
			var rec types.CombinationRecord
			if err := codec.Unmarshal(value, &rec); err != nil {
				return retry.Permanent(fmt.Errorf("decode record %s: %w", key, err))
			}
			return visit(rec)
		})
	}
	if errors.Is(err, errStop) {
		return nil
	}
	return err
}

func (rs *recordStore) ReadRecords(game string, filter Filter) ([]types.CombinationRecord, error) {
	var out []types.CombinationRecord
	err := rs.ScanRecords(game, filter, func(rec types.CombinationRecord) error {
		out = append(out, rec)
		return nil
	})
	return out, err
}

// DeleteRecords removes matching records and their index entries.
// Bucket record counters are decremented accordingly.
func (rs *recordStore) DeleteRecords(game string, filter Filter) (int, error) {
	recs, err := rs.ReadRecords(game, filter)
	if err != nil {
		return 0, err
	}
	if len(recs) == 0 {
		return 0, nil
	}

	removed := map[types.Signature]int{}
	ops := make([]infra.KVOp, 0, len(recs)*2)
	for _, rec := range recs {
		ops = append(ops,
			infra.KVOp{Key: recordKey(game, rec.Numbers), Delete: true},
			infra.KVOp{Key: sigIndexKey(game, rec.Signature(), rec.Numbers), Delete: true},
		)
		removed[rec.Signature()]++
	}
	for _, chunk := range lo.Chunk(ops, deleteChunk) {
		if err := rs.store.Apply(chunk); err != nil {
			return 0, err
		}
	}

	for sig, n := range removed {
		bucket, found, err := rs.GetBucket(game, sig)
		if err != nil {
			return len(recs), err
		}
		if !found {
			continue
		}
		bucket.Records = max(bucket.Records-n, 0)
		if err := rs.SaveBucket(game, bucket); err != nil {
			return len(recs), err
		}
	}
	return len(recs), nil
}

func (rs *recordStore) GetBucket(game string, sig types.Signature) (types.SignatureBucket, bool, error) {
	var b types.SignatureBucket
	found, err := rs.store.GetAny(bucketKey(game, sig), &b)
	return b, found, err
}

func (rs *recordStore) SaveBucket(game string, bucket types.SignatureBucket) error {
	if game == "" {
		return errors.New("game is required")
	}
	return rs.store.SetAny(bucketKey(game, bucket.Signature), bucket)
}

func (rs *recordStore) ListBuckets(game string) ([]types.SignatureBucket, error) {
	codec := rs.store.Codec()
	var out []types.SignatureBucket
	err := rs.store.Scan(bucketPrefix(game), func(key string, value []byte) error {
		var b types.SignatureBucket
		if err := codec.Unmarshal(value, &b); err != nil {
			return retry.Permanent(fmt.Errorf("decode bucket %s: %w", key, err))
		}
		out = append(out, b)
		return nil
	})
	return out, err
}

func (rs *recordStore) GetCursor(game string) (types.Combination, bool, error) {
	v, err := rs.store.Get(cursorKey(game))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return nil, false, nil
		}
		return nil, false, err
	}
	if v == "" {
		return nil, false, nil
	}
	c, err := types.ParseCombination(v)
	if err != nil {
		return nil, false, retry.Permanent(fmt.Errorf("parse cursor %q: %w", v, err))
	}
	return c, true, nil
}

func (rs *recordStore) SaveCheckpoint(game string, cursor types.Combination, seq uint64) error {
	return rs.store.Apply([]infra.KVOp{
		{Key: cursorKey(game), Value: []byte(cursor.Key())},
		{Key: seqKey(game), Value: []byte(strconv.FormatUint(seq, 10))},
	})
}

func (rs *recordStore) GetSeq(game string) (uint64, error) {
	v, err := rs.store.Get(seqKey(game))
	if err != nil {
		if errors.Is(err, kvstore.ErrKeyNotFound) {
			return 0, nil
		}
		return 0, err
	}
	seq, err := strconv.ParseUint(strings.TrimSpace(v), 10, 64)
	if err != nil {
		return 0, retry.Permanent(fmt.Errorf("parse seq %q: %w", v, err))
	}
	return seq, nil
}

func (rs *recordStore) Purge(game string) error {
	var keys []string
	err := rs.store.Scan(gamePrefix(game), func(key string, _ []byte) error {
		keys = append(keys, key)
		return nil
	})
	if err != nil {
		return err
	}
	for _, chunk := range lo.Chunk(keys, deleteChunk) {
		ops := lo.Map(chunk, func(k string, _ int) infra.KVOp {
			return infra.KVOp{Key: k, Delete: true}
		})
		if err := rs.store.Apply(ops); err != nil {
			return err
		}
	}
	return nil
}
