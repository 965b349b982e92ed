package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zjj-vcs/zjj/internal/zjjerr"
)

// RetryBusy retries fn while it returns zjjerr.ErrStoreBusy, using a capped
// exponential backoff (base 25ms, per spec §4.1) up to maxAttempts. Any
// other error (or success) returns immediately.
func RetryBusy(ctx context.Context, maxAttempts int, fn func() error) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 25 * time.Millisecond
	b.MaxInterval = 2 * time.Second
	b.MaxElapsedTime = 0 // bounded by maxAttempts, not wall-clock

	bctx := backoff.WithContext(backoff.WithMaxRetries(b, uint64(maxAttempts)), ctx)

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		if errors.Is(err, zjjerr.ErrStoreBusy) {
			return err // retryable
		}
		return backoff.Permanent(err)
	}, bctx)
}
