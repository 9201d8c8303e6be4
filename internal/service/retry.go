package service

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5"

	"github.com/spec-kit/support-desk/internal/config"
	util "github.com/spec-kit/support-desk/pkg/util"
)

// retryPolicy retries transient store failures with exponential backoff.
// Business-rule failures are permanent and returned on the first attempt.
type retryPolicy struct {
	maxAttempts    int
	initialBackoff time.Duration
	maxElapsed     time.Duration
}

func newRetryPolicy(cfg config.RetryConfig) retryPolicy {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 3
	}
	return retryPolicy{
		maxAttempts:    attempts,
		initialBackoff: cfg.InitialBackoff(),
		maxElapsed:     cfg.MaxElapsed(),
	}
}

func (p retryPolicy) run(ctx context.Context, fn func() error) error {
	op := func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if util.IsRetryable(err) {
			return err
		}
		return backoff.Permanent(err)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.initialBackoff
	bo.MaxElapsedTime = p.maxElapsed

	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, uint64(p.maxAttempts-1)), ctx))
}

// mapStoreError classifies repository failures: a missing row is a
// terminal NOT_FOUND, anything else is transient infrastructure trouble.
func mapStoreError(err error, resource string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return util.NewNotFound(resource, nil)
	}
	return util.NewUnavailable(err)
}
