package contractcaller

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dudendy/df-network/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) *queue.Queue {
	t.Helper()
	q, err := queue.New(queue.Config{MaxInvocationsPerInterval: 20, InvocationInterval: 100 * time.Millisecond, MaxConcurrency: 20})
	require.NoError(t, err)
	return q
}

func TestMakeCallReturnsFirstSuccess(t *testing.T) {
	q := newQueue(t)
	c := New(q, 3, nil)

	v, err := MakeCall(context.Background(), c, func(ctx context.Context) (int, error) {
		return 99, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 99, v)
}

func TestMakeCallRetriesTransientFailures(t *testing.T) {
	q := newQueue(t)
	c := New(q, 5, nil)

	var attempts int32
	v, err := MakeCall(context.Background(), c, func(ctx context.Context) (int, error) {
		n := atomic.AddInt32(&attempts, 1)
		if n < 3 {
			return 0, errors.New("transient")
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, int32(3), attempts)
}

func TestMakeCallFailsAfterExhaustingRetries(t *testing.T) {
	q := newQueue(t)
	c := New(q, 2, nil)

	boom := errors.New("boom")
	var attempts int32
	_, err := MakeCall(context.Background(), c, func(ctx context.Context) (int, error) {
		atomic.AddInt32(&attempts, 1)
		return 0, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), attempts)
}

func TestMakeCallReportsDiagnostics(t *testing.T) {
	q := newQueue(t)
	var seen []Diagnostics
	c := New(q, 3, func(d Diagnostics) { seen = append(seen, d) })

	_, err := MakeCall(context.Background(), c, func(ctx context.Context) (int, error) {
		return 1, nil
	})
	require.NoError(t, err)
	require.Len(t, seen, 2) // before and after the call
	assert.Equal(t, int64(1), seen[0].TotalCalls)
	assert.Equal(t, int64(1), seen[1].TotalCalls)
}
