package config

import (
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/enum"
)

type Services struct {
	Port     int              `yaml:"port"     validate:"required,min=1,max=65535"`
	Worker   WorkerConfig     `yaml:"worker"`
	Nats     *NatsConfig      `yaml:"nats,omitempty"`
	Database DatabaseConfig   `yaml:"database"`
	KVS      KVSConfig        `yaml:"kvstore"  validate:"required"`
	Redis    *RedisConfig     `yaml:"redis,omitempty"`
	Draws    DrawSourceConfig `yaml:"draws"`
}

type WorkerConfig struct {
	Concurrency int           `yaml:"concurrency"  validate:"min=0"`
	BufferSize  int           `yaml:"buffer_size"  validate:"min=0"`
	Schedule    string        `yaml:"schedule"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
	Retry       RetryConfig   `yaml:"retry"`
}

type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxElapsed      time.Duration `yaml:"max_elapsed"`
}

type NatsConfig struct {
	URL           string    `yaml:"url"            validate:"required"`
	SubjectPrefix string    `yaml:"subject_prefix" validate:"required"`
	Username      string    `yaml:"username"`
	Password      string    `yaml:"password"`
	TLS           TLSConfig `yaml:"tls"`
}

// TLSConfig holds client certificate paths; a leading ~ is expanded.
type TLSConfig struct {
	ClientCert string `yaml:"client_cert"`
	ClientKey  string `yaml:"client_key"`
	CACert     string `yaml:"ca_cert"`
}

type DatabaseConfig struct {
	Type enum.DBType `yaml:"type" validate:"omitempty,oneof=postgres mysql sqlite"`
	URL  string      `yaml:"url"`
}

type DrawSourceConfig struct {
	Source enum.DrawSourceType `yaml:"source" validate:"omitempty,oneof=sql kv"`
	Table  string              `yaml:"table"`
}

type RedisConfig struct {
	// URL is host:port or redis://[user:pass@]host:port/db.
	URL      string        `yaml:"url"       validate:"required"`
	Password string        `yaml:"password"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
	TLS      TLSConfig     `yaml:"tls"`
}

type KVSConfig struct {
	Type   enum.KVStoreType `yaml:"type"   validate:"required,oneof=badger consul"`
	Consul ConsulConfig     `yaml:"consul"`
	Badger BadgerConfig     `yaml:"badger"`
}

type ConsulConfig struct {
	Scheme   string         `yaml:"scheme"`
	Address  string         `yaml:"address"`
	Folder   string         `yaml:"folder"`
	Token    string         `yaml:"token"`
	HttpAuth HttpAuthConfig `yaml:"http_auth"`
}

type HttpAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type BadgerConfig struct {
	Directory string `yaml:"directory"`
	Prefix    string `yaml:"prefix"`
	InMemory  bool   `yaml:"in_memory"`
}
