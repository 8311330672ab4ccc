package kvstore

import (
	"errors"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/fystack/lotto-indexer/pkg/infra"
)

type BadgerStore struct {
	db     *badger.DB
	prefix string
	codec  infra.Codec
}

func NewBadgerStore(path string, prefix string, codec infra.Codec) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions(path).WithLogger(nil), prefix, codec)
}

// NewInMemoryBadgerStore keeps everything in RAM; nothing survives Close.
func NewInMemoryBadgerStore(prefix string, codec infra.Codec) (*BadgerStore, error) {
	return openBadger(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil), prefix, codec)
}

func openBadger(opts badger.Options, prefix string, codec infra.Codec) (*BadgerStore, error) {
	if codec == nil {
		codec = infra.JSON
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &BadgerStore{
		db:     db,
		prefix: prefix,
		codec:  codec,
	}, nil
}

func (b *BadgerStore) fullKey(k string) (string, error) {
	if k == "" {
		return "", ErrKeyEmpty
	}
	if b.prefix != "" {
		return b.prefix + "/" + k, nil
	}
	return k, nil
}

func (b *BadgerStore) relKey(k []byte) string {
	if b.prefix == "" {
		return string(k)
	}
	return strings.TrimPrefix(string(k), b.prefix+"/")
}

func (b *BadgerStore) GetName() string {
	return string(enum.KVStoreTypeBadger)
}

func (b *BadgerStore) Codec() infra.Codec {
	return b.codec
}

func (b *BadgerStore) get(key string) ([]byte, error) {
	k, err := b.fullKey(key)
	if err != nil {
		return nil, err
	}

	var valCopy []byte
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(k))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		valCopy, err = item.ValueCopy(nil)
		return err
	})
	return valCopy, err
}

func (b *BadgerStore) Get(key string) (string, error) {
	v, err := b.get(key)
	return string(v), err
}

func (b *BadgerStore) Set(key string, value string) error {
	k, err := b.fullKey(key)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(k), []byte(value))
	})
}

func (b *BadgerStore) SetAny(key string, value any) error {
	if err := checkKeyAndValue(key, value); err != nil {
		return err
	}
	data, err := b.codec.Marshal(value)
	if err != nil {
		return err
	}
	return b.Apply([]infra.KVOp{{Key: key, Value: data}})
}

func (b *BadgerStore) GetAny(key string, value any) (bool, error) {
	if err := checkKeyAndValue(key, value); err != nil {
		return false, err
	}
	data, err := b.get(key)
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, b.codec.Unmarshal(data, value)
}

func (b *BadgerStore) Apply(ops []infra.KVOp) error {
	if len(ops) == 0 {
		return nil
	}
	return b.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			k, err := b.fullKey(op.Key)
			if err != nil {
				return err
			}
			if op.Delete {
				err = txn.Delete([]byte(k))
			} else {
				err = txn.Set([]byte(k), op.Value)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) Scan(prefix string, fn func(key string, value []byte) error) error {
	if prefix == "" {
		return ErrPrefixEmpty
	}
	searchPrefix, _ := b.fullKey(prefix)

	return b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(searchPrefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			v, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := fn(b.relKey(item.Key()), v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) List(prefix string) ([]*infra.KVPair, error) {
	result := make([]*infra.KVPair, 0)
	err := b.Scan(prefix, func(key string, value []byte) error {
		result = append(result, &infra.KVPair{Key: key, Value: value})
		return nil
	})
	return result, err
}

func (b *BadgerStore) Delete(key string) error {
	return b.Apply([]infra.KVOp{{Key: key, Delete: true}})
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}
