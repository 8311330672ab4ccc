package kvstore

// Adapted from https://github.com/philippgille/gokv/consul
// With extended functionalities:
// Get, Set k,v as string
// GetAny, SetAny, k: string, v: any
// Apply for transactional batches, Scan/List by prefix

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/enum"
	"github.com/fystack/lotto-indexer/pkg/common/types"
	"github.com/fystack/lotto-indexer/pkg/infra"
	"github.com/hashicorp/consul/api"
)

// consulTxnLimit is the maximum number of operations Consul accepts per transaction.
const consulTxnLimit = 64

// ConsulClient implement infra.KVStore
type ConsulClient struct {
	c      *api.KV
	folder string
	codec  infra.Codec
}

func (c ConsulClient) fullKey(k string) string {
	if c.folder != "" {
		return c.folder + "/" + k
	}
	return k
}

func (c ConsulClient) relKey(k string) string {
	if c.folder != "" {
		return strings.TrimPrefix(k, c.folder+"/")
	}
	return k
}

func (c ConsulClient) GetName() string {
	return string(enum.KVStoreTypeConsul)
}

func (c ConsulClient) Codec() infra.Codec {
	return c.codec
}

func (c ConsulClient) Set(k string, v string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	_, err := c.c.Put(&api.KVPair{Key: c.fullKey(k), Value: []byte(v)}, nil)
	return err
}

// Get retrieves the stored value for the given key.
func (c ConsulClient) Get(k string) (string, error) {
	if k == "" {
		return "", ErrKeyEmpty
	}
	kvPair, _, err := c.c.Get(c.fullKey(k), nil)
	if err != nil {
		return "", err
	}
	if kvPair == nil {
		return "", ErrKeyNotFound
	}
	return string(kvPair.Value), nil
}

// SetAny stores v encoded with the configured codec.
// The key must not be "" and the value must not be nil.
func (c ConsulClient) SetAny(k string, v any) error {
	if err := checkKeyAndValue(k, v); err != nil {
		return err
	}
	data, err := c.codec.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.c.Put(&api.KVPair{Key: c.fullKey(k), Value: data}, nil)
	return err
}

// GetAny decodes the stored value into v, which must be a pointer.
// If no value is found it returns (false, nil).
func (c ConsulClient) GetAny(k string, v any) (bool, error) {
	if err := checkKeyAndValue(k, v); err != nil {
		return false, err
	}
	kvPair, _, err := c.c.Get(c.fullKey(k), nil)
	if err != nil {
		return false, err
	}
	if kvPair == nil {
		return false, nil
	}
	return true, c.codec.Unmarshal(kvPair.Value, v)
}

// Apply runs ops as Consul transactions of at most 64 operations.
// Batches larger than that are only atomic per chunk.
func (c ConsulClient) Apply(ops []infra.KVOp) error {
	for start := 0; start < len(ops); start += consulTxnLimit {
		end := min(start+consulTxnLimit, len(ops))
		txn := make(api.KVTxnOps, 0, end-start)
		for _, op := range ops[start:end] {
			if op.Key == "" {
				return ErrKeyEmpty
			}
			verb := api.KVSet
			if op.Delete {
				verb = api.KVDelete
			}
			txn = append(txn, &api.KVTxnOp{Verb: verb, Key: c.fullKey(op.Key), Value: op.Value})
		}
		ok, resp, _, err := c.c.Txn(txn, nil)
		if err != nil {
			return err
		}
		if !ok {
			msgs := make([]string, 0, len(resp.Errors))
			for _, e := range resp.Errors {
				msgs = append(msgs, e.What)
			}
			return fmt.Errorf("consul txn rolled back: %s", strings.Join(msgs, "; "))
		}
	}
	return nil
}

func (c ConsulClient) Scan(prefix string, fn func(key string, value []byte) error) error {
	if prefix == "" {
		return ErrPrefixEmpty
	}
	kvPairs, _, err := c.c.List(c.fullKey(prefix), nil)
	if err != nil {
		return err
	}
	for _, kvPair := range kvPairs {
		if err := fn(c.relKey(kvPair.Key), kvPair.Value); err != nil {
			return err
		}
	}
	return nil
}

func (c ConsulClient) List(prefix string) ([]*infra.KVPair, error) {
	result := make([]*infra.KVPair, 0)
	err := c.Scan(prefix, func(key string, value []byte) error {
		result = append(result, &infra.KVPair{Key: key, Value: value})
		return nil
	})
	return result, err
}

// Delete deletes the stored value for the given key.
// Deleting a non-existing key-value pair does NOT lead to an error.
func (c ConsulClient) Delete(k string) error {
	if k == "" {
		return ErrKeyEmpty
	}
	_, err := c.c.Delete(c.fullKey(k), nil)
	return err
}

// Close has no effect for Consul.
func (c ConsulClient) Close() error {
	return nil
}

// Options are the options for the Consul client.
type Options struct {
	// URI scheme for the Consul server ("http" by default).
	Scheme string
	// Address of the Consul server, including port number ("127.0.0.1:8500" by default).
	Address string
	// Directory under which to store the key-value pairs.
	Folder string
	// Encoding format (JSON by default).
	Codec infra.Codec

	Token    string
	HttpAuth *api.HttpBasicAuth
}

var DefaultConsulOptions = Options{
	Scheme:  "http",
	Address: "127.0.0.1:8500",
	Codec:   infra.JSON,
}

func NewConsulClient(options Options) (infra.KVStore, error) {
	if options.Scheme == "" {
		options.Scheme = DefaultConsulOptions.Scheme
	}
	if options.Address == "" {
		options.Address = DefaultConsulOptions.Address
	}
	if options.Codec == nil {
		options.Codec = DefaultConsulOptions.Codec
	}

	config := api.DefaultConfig()
	config.Scheme = options.Scheme
	config.Address = options.Address
	config.WaitTime = 10 * time.Second
	if options.Token != "" {
		config.Token = options.Token
	}
	if options.HttpAuth != nil && options.HttpAuth.Username != "" {
		config.HttpAuth = options.HttpAuth
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, err
	}

	if _, err := client.Status().Leader(); err != nil {
		return nil, fmt.Errorf("failed to connect to Consul: %w", errors.Join(types.ErrRepositoryUnavailable, err))
	}

	return ConsulClient{
		c:      client.KV(),
		folder: options.Folder,
		codec:  options.Codec,
	}, nil
}
