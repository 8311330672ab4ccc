package infra

import (
	"encoding/json"
)

// KVStore is an interface for key-value stores.
// Implementations: BadgerDB (embedded) and Consul (shared).

type KVPair struct {
	Key   string
	Value []byte
}

// KVOp is one write inside an atomic batch. Delete ignores Value.
type KVOp struct {
	Key    string
	Value  []byte
	Delete bool
}

type KVStore interface {
	GetName() string
	Set(k string, v string) error
	Get(k string) (v string, err error)
	// This method if you want to set v as struct or map
	SetAny(k string, v any) error
	GetAny(k string, v any) (found bool, err error)
	// Apply commits all ops in a single transaction.
	Apply(ops []KVOp) error

	// List and Scan return keys relative to the store prefix, in key order.
	List(prefix string) ([]*KVPair, error)
	Scan(prefix string, fn func(key string, value []byte) error) error
	Delete(k string) error
	Codec() Codec
	Close() error
}

// Codec encodes/decodes Go values to/from slices of bytes.
type Codec interface {
	// Marshal encodes a Go value to a slice of bytes.
	Marshal(v any) ([]byte, error)
	// Unmarshal decodes a slice of bytes into a Go value.
	Unmarshal(data []byte, v any) error
}

// Convenience variables
var (
	// JSON is a JSONcodec that encodes/decodes Go values to/from JSON.
	JSON = JSONcodec{}
)

// JSONcodec encodes/decodes Go values to/from JSON.
type JSONcodec struct{}

func (c JSONcodec) Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

func (c JSONcodec) Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}
