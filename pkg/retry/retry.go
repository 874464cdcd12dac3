// Package retry wraps exponential-backoff retries for idempotent gateway
// calls. Status lookups inside a poll loop must NOT go through this package:
// a failed lookup aborts its poll chain instead of retrying.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration
}

// DefaultConfig returns the default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
	}
}

// NotifyFunc observes each retry attempt.
type NotifyFunc func(attempt uint, err error)

// Do executes fn with exponential backoff.
func Do(ctx context.Context, cfg Config, fn func() error, notify NotifyFunc) error {
	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	}
	if notify != nil {
		opts = append(opts, retry.OnRetry(func(n uint, err error) { notify(n, err) }))
	}
	return retry.Do(fn, opts...)
}

// DoWithResult executes fn with exponential backoff and returns its result.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error), notify NotifyFunc) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	}, notify)
	return result, err
}
