package queue

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{MaxInvocationsPerInterval: 0, InvocationInterval: time.Second, MaxConcurrency: 1},
		{MaxInvocationsPerInterval: 1, InvocationInterval: 0, MaxConcurrency: 1},
		{MaxInvocationsPerInterval: 1, InvocationInterval: time.Second, MaxConcurrency: -1},
	}
	for _, cfg := range cases {
		_, err := New(cfg)
		require.ErrorIs(t, err, ErrInvalidConfig)
	}
}

func TestSizeReflectsQueuedNotRunning(t *testing.T) {
	q, err := New(Config{MaxInvocationsPerInterval: 1, InvocationInterval: time.Hour, MaxConcurrency: 1})
	require.NoError(t, err)

	release := make(chan struct{})
	started := make(chan struct{})
	Add[int](context.Background(), q, func(ctx context.Context) (int, error) {
		close(started)
		<-release
		return 1, nil
	})
	<-started
	// The running task is not counted; a second enqueue should show size 1.
	Add[int](context.Background(), q, func(ctx context.Context) (int, error) { return 2, nil })
	require.Eventually(t, func() bool { return q.Size() == 1 }, time.Second, time.Millisecond)
	close(release)
}

// S1 from the spec, with the window scaled down from 1000ms to 200ms:
// queue (2, 200ms, unbounded); 5 tasks; starts batch at t=0, t>=200ms,
// t>=400ms (asserted with a small timer tolerance).
func TestRateBoundScenarioS1(t *testing.T) {
	q, err := New(Config{MaxInvocationsPerInterval: 2, InvocationInterval: 200 * time.Millisecond, MaxConcurrency: Unbounded})
	require.NoError(t, err)

	var mu sync.Mutex
	starts := make([]time.Duration, 0, 5)
	begin := time.Now()
	var wg sync.WaitGroup
	wg.Add(5)
	for i := 0; i < 5; i++ {
		Add[int](context.Background(), q, func(ctx context.Context) (int, error) {
			mu.Lock()
			starts = append(starts, time.Since(begin))
			mu.Unlock()
			time.Sleep(5 * time.Millisecond)
			wg.Done()
			return 0, nil
		})
	}
	wg.Wait()

	require.Len(t, starts, 5)
	// First two should start almost immediately.
	assert.Less(t, starts[0], 100*time.Millisecond)
	assert.Less(t, starts[1], 100*time.Millisecond)
	// Third must wait for the window to free up.
	assert.GreaterOrEqual(t, starts[2], 180*time.Millisecond)
	// Fifth waits for two full windows.
	assert.GreaterOrEqual(t, starts[4], 380*time.Millisecond)
}

// S2 from the spec: queue (unbounded, 1ms, 1); 3 tasks of 50ms each never
// overlap, and the wall time is at least 150ms.
func TestConcurrencyBoundScenarioS2(t *testing.T) {
	q, err := New(Config{MaxInvocationsPerInterval: 1000, InvocationInterval: time.Millisecond, MaxConcurrency: 1})
	require.NoError(t, err)

	var inFlight int32
	var maxSeen int32
	begin := time.Now()
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		Add[int](context.Background(), q, func(ctx context.Context) (int, error) {
			n := atomic.AddInt32(&inFlight, 1)
			for {
				old := atomic.LoadInt32(&maxSeen)
				if n <= old || atomic.CompareAndSwapInt32(&maxSeen, old, n) {
					break
				}
			}
			time.Sleep(50 * time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
			wg.Done()
			return 0, nil
		})
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&maxSeen), int32(1))
	assert.GreaterOrEqual(t, time.Since(begin), 150*time.Millisecond)
}

// Property 3: given sequential Add(t1), Add(t2) with no intervening
// completions, t1 starts no later than t2 (FIFO).
func TestFIFOOrderOfStarts(t *testing.T) {
	q, err := New(Config{MaxInvocationsPerInterval: 1, InvocationInterval: time.Millisecond, MaxConcurrency: 1})
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	wg.Add(3)
	for i := 0; i < 3; i++ {
		i := i
		Add[int](context.Background(), q, func(ctx context.Context) (int, error) {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			wg.Done()
			return i, nil
		})
	}
	wg.Wait()
	assert.Equal(t, []int{0, 1, 2}, order)
}

func TestFailureIsolatedToItsOwnFuture(t *testing.T) {
	q, err := New(Config{MaxInvocationsPerInterval: 10, InvocationInterval: time.Millisecond, MaxConcurrency: 10})
	require.NoError(t, err)

	failing := Add[int](context.Background(), q, func(ctx context.Context) (int, error) {
		return 0, assertErr
	})
	ok := Add[int](context.Background(), q, func(ctx context.Context) (int, error) {
		return 42, nil
	})

	_, err1 := failing.Wait(context.Background())
	v, err2 := ok.Wait(context.Background())
	require.ErrorIs(t, err1, assertErr)
	require.NoError(t, err2)
	require.Equal(t, 42, v)
}

var assertErr = assertError("boom")

type assertError string

func (e assertError) Error() string { return string(e) }
