// Package contractcaller is the facade for idempotent read calls: it wraps
// a contract view call in a retrying envelope and dispatches every attempt
// through a throttled queue so retries respect the same rate limit as
// everything else hitting the endpoint (spec component B).
package contractcaller

import (
	"context"
	"sync/atomic"

	"github.com/dudendy/df-network/queue"
	"github.com/dudendy/df-network/retry"
	"github.com/ethereum/go-ethereum/log"
)

// Diagnostics is delivered twice per attempt, just before and just after
// the call itself, so a caller can observe both the running total of calls made and
// the current queue depth.
type Diagnostics struct {
	TotalCalls   int64
	CallsInQueue int64
}

// Caller dispatches read calls onto q, retrying each logical call up to
// maxRetries times.
type Caller struct {
	q             *queue.Queue
	maxRetries    int
	onDiagnostics func(Diagnostics)
	logger        log.Logger

	totalCalls int64
}

// New constructs a Caller. onDiagnostics may be nil.
func New(q *queue.Queue, maxRetries int, onDiagnostics func(Diagnostics)) *Caller {
	if maxRetries <= 0 {
		maxRetries = retry.DefaultMaxRetries
	}
	return &Caller{
		q:             q,
		maxRetries:    maxRetries,
		onDiagnostics: onDiagnostics,
		logger:        log.New("component", "contractcaller"),
	}
}

// MakeCall retries viewFn up to c.maxRetries times; each attempt is a fresh
// enqueue onto the underlying throttled queue. It returns the first
// successful value or the last error once attempts are exhausted.
func MakeCall[T any](ctx context.Context, c *Caller, viewFn func(context.Context) (T, error)) (T, error) {
	return retry.CallWithRetry(ctx, c.maxRetries, retry.DefaultMinInterval, nil, func(ctx context.Context) (T, error) {
		fut := queue.Add[T](ctx, c.q, func(ctx context.Context) (T, error) {
			atomic.AddInt64(&c.totalCalls, 1)
			c.reportDiagnostics()
			val, err := viewFn(ctx)
			c.reportDiagnostics()
			return val, err
		})
		return fut.Wait(ctx)
	})
}

func (c *Caller) reportDiagnostics() {
	d := Diagnostics{
		TotalCalls:   atomic.LoadInt64(&c.totalCalls),
		CallsInQueue: int64(c.q.Size()),
	}
	c.logger.Debug("call diagnostics", "totalCalls", d.TotalCalls, "callsInQueue", d.CallsInQueue)
	if c.onDiagnostics == nil {
		return
	}
	c.onDiagnostics(d)
}
