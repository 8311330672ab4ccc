package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultInitialInterval = 200 * time.Millisecond
	DefaultMaxElapsedTime  = 30 * time.Second
)

type Operation func() error

type ExponentialConfig struct {
	InitialInterval time.Duration
	MaxElapsedTime  time.Duration
	OnRetry         func(error, time.Duration)
}

// DefaultExponential is used for repository calls when nothing is configured.
func DefaultExponential() ExponentialConfig {
	return ExponentialConfig{
		InitialInterval: DefaultInitialInterval,
		MaxElapsedTime:  DefaultMaxElapsedTime,
	}
}

// Permanent marks err as not worth retrying; Exponential returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// Exponential retries fn until it succeeds, returns a permanent error,
// MaxElapsedTime runs out, or ctx is done.
func Exponential(ctx context.Context, fn Operation, cfg ExponentialConfig) error {
	if cfg.InitialInterval <= 0 {
		return errors.New("initial interval must be > 0")
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = cfg.InitialInterval
	if cfg.MaxElapsedTime > 0 {
		bo.MaxElapsedTime = cfg.MaxElapsedTime
	}

	return backoff.RetryNotify(backoff.Operation(fn), backoff.WithContext(bo, ctx), func(err error, next time.Duration) {
		if cfg.OnRetry != nil {
			cfg.OnRetry(err, next)
		}
	})
}

// Value is Exponential for operations that produce a result.
func Value[T any](ctx context.Context, fn func() (T, error), cfg ExponentialConfig) (T, error) {
	var out T
	err := Exponential(ctx, func() error {
		v, err := fn()
		if err != nil {
			return err
		}
		out = v
		return nil
	}, cfg)
	return out, err
}
