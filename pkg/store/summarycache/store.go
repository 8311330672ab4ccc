package summarycache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fystack/lotto-indexer/pkg/infra"
)

const (
	summaryKeyPrefix = "lotto:summary"
	lockKeyPrefix    = "lotto:refreshing"

	DefaultTTL     = 10 * time.Minute
	defaultTimeout = 5 * time.Second
	lockTimeout    = 30 * time.Minute
)

// releaseLockScript deletes the lock only when it still holds our token.
const releaseLockScript = `
	if redis.call('GET', KEYS[1]) == ARGV[1] then
		return redis.call('DEL', KEYS[1])
	end
	return 0
`

var ErrLocked = errors.New("refresh already running")

// Cache stores rendered dashboard payloads in redis and guards refresh runs
// across replicas with a token lock.
type Cache interface {
	Get(ctx context.Context, game string, out any) (bool, error)
	Set(ctx context.Context, game string, v any) error
	Invalidate(ctx context.Context, game string) error
	AcquireRefreshLock(ctx context.Context, game, token string) error
	ReleaseRefreshLock(ctx context.Context, game, token string) error
}

type redisCache struct {
	client infra.RedisClient
	ttl    time.Duration
}

func NewCache(client infra.RedisClient, ttl time.Duration) Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &redisCache{client: client, ttl: ttl}
}

func summaryKey(game string) string {
	return fmt.Sprintf("%s:%s", summaryKeyPrefix, game)
}

func lockKey(game string) string {
	return fmt.Sprintf("%s:%s", lockKeyPrefix, game)
}

func (c *redisCache) Get(ctx context.Context, game string, out any) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	raw, err := c.client.Get(ctx, summaryKey(game))
	if err != nil {
		if errors.Is(err, infra.ErrCacheMiss) {
			return false, nil
		}
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("decode cached summary: %w", err)
	}
	return true, nil
}

func (c *redisCache) Set(ctx context.Context, game string, v any) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, summaryKey(game), data, c.ttl)
}

func (c *redisCache) Invalidate(ctx context.Context, game string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.client.Del(ctx, summaryKey(game))
}

func (c *redisCache) AcquireRefreshLock(ctx context.Context, game, token string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	ok, err := c.client.GetClient().SetNX(ctx, lockKey(game), token, lockTimeout).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

func (c *redisCache) ReleaseRefreshLock(ctx context.Context, game, token string) error {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	return c.client.GetClient().Eval(ctx, releaseLockScript, []string{lockKey(game)}, token).Err()
}
