// Package retry provides the shared retry-with-backoff and receipt-polling
// glue consumed by the contract caller, the connection manager, and the
// transaction executor (spec component G).
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"
)

// Defaults mirror the spec's call-with-retry envelope: an initial interval
// of one second bounded by a sixty-second ceiling. DefaultMaxRetries is the
// cap for idempotent read calls (contractcaller); DefaultReceiptMaxRetries
// is the larger cap used while polling for a transaction receipt, which can
// legitimately take much longer than a single read call.
const (
	DefaultMaxRetries        = 5
	DefaultReceiptMaxRetries = 20
	DefaultMinInterval       = time.Second
	MaxInterval              = 60 * time.Second
	backoffMultiplier        = 1.5
	backoffRandomization     = 0.25
)

// OnError is invoked between attempts with the 1-based attempt number and
// the error that just occurred. A panic inside OnError is recovered and
// logged, never propagated to the caller.
type OnError func(attempt int, err error)

// CallWithRetry retries fn up to maxRetries times with exponential backoff
// bounded to [minInterval, MaxInterval]. It returns the first successful
// value, the last error once attempts are exhausted, or ctx's error if ctx
// is done first.
func CallWithRetry[T any](ctx context.Context, maxRetries int, minInterval time.Duration, onError OnError, fn func(context.Context) (T, error)) (T, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = minInterval
	eb.MaxInterval = MaxInterval
	eb.Multiplier = backoffMultiplier
	eb.RandomizationFactor = backoffRandomization
	eb.MaxElapsedTime = 0 // bounded by maxRetries, not wall time

	var (
		result  T
		attempt int
	)
	operation := func() error {
		attempt++
		val, err := fn(ctx)
		if err == nil {
			result = val
			return nil
		}
		if maxRetries > 0 && attempt >= maxRetries {
			return backoff.Permanent(err)
		}
		if onError != nil {
			safeOnError(onError, attempt, err)
		}
		return err
	}

	err := backoff.Retry(operation, backoff.WithContext(eb, ctx))
	if err == nil {
		return result, nil
	}
	var perm *backoff.PermanentError
	if errAs(err, &perm) {
		return result, perm.Err
	}
	return result, err
}

func errAs(err error, target **backoff.PermanentError) bool {
	pe, ok := err.(*backoff.PermanentError)
	if !ok {
		return false
	}
	*target = pe
	return true
}

func safeOnError(onError OnError, attempt int, err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn("retry: onError handler panicked", "attempt", attempt, "recovered", r)
		}
	}()
	onError(attempt, err)
}
