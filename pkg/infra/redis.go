package infra

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/fystack/lotto-indexer/pkg/common/config"
	"github.com/fystack/lotto-indexer/pkg/common/constant"
	"github.com/fystack/lotto-indexer/pkg/common/logger"
	"github.com/fystack/lotto-indexer/pkg/common/stringutils"
	"github.com/redis/go-redis/v9"
)

// ErrCacheMiss is returned by Get when the key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// RedisClient is a custom interface that abstracts the Redis client methods.
type RedisClient interface {
	GetClient() *redis.Client
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	Close() error
}

type RedisWrapper struct {
	client *redis.Client
}

func getTlsConfig(tlsCfg config.TLSConfig) (*tls.Config, error) {
	caCert, err := os.ReadFile(stringutils.ExpandTildePath(tlsCfg.CACert))
	if err != nil {
		return nil, fmt.Errorf("failed to read CA cert: %w", err)
	}

	caCertPool := x509.NewCertPool()
	if !caCertPool.AppendCertsFromPEM(caCert) {
		return nil, fmt.Errorf("failed to append CA cert to pool")
	}

	cert, err := tls.LoadX509KeyPair(
		stringutils.ExpandTildePath(tlsCfg.ClientCert),
		stringutils.ExpandTildePath(tlsCfg.ClientKey),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      caCertPool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// redisOptions accepts either host:port or a redis:// / rediss:// URL.
func redisOptions(cfg config.RedisConfig) (*redis.Options, error) {
	opts := &redis.Options{Addr: cfg.URL}
	if strings.Contains(cfg.URL, "://") {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opts = parsed
	}
	if cfg.Password != "" {
		opts.Password = cfg.Password
	}

	cpus := runtime.GOMAXPROCS(0)
	opts.PoolSize = cpus * 10
	opts.MinIdleConns = cpus * 2
	opts.ConnMaxLifetime = 30 * time.Minute
	opts.ConnMaxIdleTime = 5 * time.Minute
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.MaxRetries = 3
	opts.MinRetryBackoff = 100 * time.Millisecond
	opts.MaxRetryBackoff = 500 * time.Millisecond
	return opts, nil
}

// NewRedisClient connects and pings. Client certificates are required in production.
func NewRedisClient(cfg config.RedisConfig, environment string) (RedisClient, error) {
	opts, err := redisOptions(cfg)
	if err != nil {
		return nil, err
	}

	if environment == constant.EnvProduction || cfg.TLS.CACert != "" {
		tlsCfg := cfg.TLS
		if tlsCfg.CACert == "" {
			tlsCfg.CACert = "~/.local/share/mkcert/rootCA.pem"
		}
		if tlsCfg.ClientCert == "" {
			tlsCfg.ClientCert = "./certs/redis/redis-client.crt"
		}
		if tlsCfg.ClientKey == "" {
			tlsCfg.ClientKey = "./certs/redis/redis-client.key"
		}
		if opts.TLSConfig, err = getTlsConfig(tlsCfg); err != nil {
			return nil, fmt.Errorf("failed to create TLS config for redis client: %w", err)
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Info("Connected to Redis", "addr", opts.Addr, "db", opts.DB, "tls", opts.TLSConfig != nil)

	return &RedisWrapper{client: client}, nil
}

func (rw *RedisWrapper) GetClient() *redis.Client {
	return rw.client
}

func (rw *RedisWrapper) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	return rw.client.Set(ctx, key, value, expiration).Err()
}

func (rw *RedisWrapper) Get(ctx context.Context, key string) (string, error) {
	val, err := rw.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrCacheMiss
	}
	return val, err
}

func (rw *RedisWrapper) Del(ctx context.Context, keys ...string) error {
	return rw.client.Del(ctx, keys...).Err()
}

func (rw *RedisWrapper) Close() error {
	return rw.client.Close()
}
