// Package queue implements a bounded-rate, bounded-concurrency task
// scheduler: the throttled concurrent queue described by the data plane
// that sits under the contract caller and the transaction executor.
package queue

import (
	"container/list"
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
)

// ErrInvalidConfig is returned by New when a Config field violates its
// documented constraint.
var ErrInvalidConfig = errors.New("queue: invalid configuration")

// Unbounded, used as Config.MaxConcurrency, removes the concurrency cap.
const Unbounded = 0

// Config holds the three throttle/concurrency parameters from the spec:
// at most MaxInvocationsPerInterval task starts per InvocationInterval, and
// at most MaxConcurrency tasks running at once.
type Config struct {
	MaxInvocationsPerInterval int
	InvocationInterval        time.Duration
	MaxConcurrency            int // Unbounded (0) means no concurrency cap.
}

func (c Config) validate() error {
	if c.MaxInvocationsPerInterval <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("MaxInvocationsPerInterval must be > 0"))
	}
	if c.InvocationInterval <= 0 {
		return errors.Join(ErrInvalidConfig, errors.New("InvocationInterval must be > 0"))
	}
	if c.MaxConcurrency < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("MaxConcurrency must be >= 0"))
	}
	return nil
}

type rawTask struct {
	run func()
}

// Queue is a FIFO task scheduler bounded by both a sliding-window rate limit
// and a concurrency cap. The zero value is not usable; construct with New.
type Queue struct {
	cfg    Config
	logger log.Logger

	mu         sync.Mutex
	pending    *list.List // of rawTask
	timestamps []time.Time
	inFlight   int
	wakeTimer  *time.Timer
}

// New constructs a Queue. All Config fields must satisfy their documented
// constraints, or New returns ErrInvalidConfig.
func New(cfg Config) (*Queue, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Queue{
		cfg:        cfg,
		logger:     log.New("component", "queue"),
		pending:    list.New(),
		timestamps: make([]time.Time, 0, cfg.MaxInvocationsPerInterval),
	}, nil
}

// Size returns the number of queued, not-yet-started tasks. Running tasks
// are not counted.
func (q *Queue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Add enqueues start and returns a Future that settles with its result.
// Enqueueing never completes inline with Add: scheduling is always deferred
// to the next tick so callers can rely on Size() reflecting the enqueue
// before any task has had a chance to start.
func Add[T any](ctx context.Context, q *Queue, start func(context.Context) (T, error)) *Future[T] {
	fut := NewFuture[T]()
	task := rawTask{run: func() {
		val, err := start(ctx)
		if err != nil {
			fut.Reject(err)
			return
		}
		fut.Resolve(val)
	}}
	q.mu.Lock()
	q.pending.PushBack(task)
	q.mu.Unlock()
	go q.tick()
	return fut
}

func (q *Queue) maxConcurrency() int {
	if q.cfg.MaxConcurrency == Unbounded {
		return math.MaxInt
	}
	return q.cfg.MaxConcurrency
}

// tick runs one pass of the scheduling algorithm: prune stale timestamps,
// compute how many tasks can start right now, start them, and arm a single
// wake timer for whenever throttle quota next frees up.
func (q *Queue) tick() {
	q.mu.Lock()
	now := time.Now()
	pruned := q.pruneLocked(now)

	throttleRemaining := q.cfg.MaxInvocationsPerInterval - len(q.timestamps)
	concurrencyRemaining := q.maxConcurrency() - q.inFlight
	batch := min3(throttleRemaining, concurrencyRemaining, q.pending.Len())

	q.logger.Debug("tick", "pruned", pruned, "queued", q.pending.Len(), "inFlight", q.inFlight, "throttleRemaining", throttleRemaining, "batch", batch)

	started := make([]rawTask, 0, batch)
	for i := 0; i < batch; i++ {
		front := q.pending.Front()
		task := q.pending.Remove(front).(rawTask)
		q.timestamps = append(q.timestamps, now)
		q.inFlight++
		started = append(started, task)
	}

	if q.pending.Len() > 0 && concurrencyRemaining-batch > 0 && len(q.timestamps) > 0 {
		oldest := q.timestamps[0]
		wait := time.Until(oldest.Add(q.cfg.InvocationInterval))
		if wait < 0 {
			wait = 0
		}
		if q.wakeTimer != nil {
			q.wakeTimer.Stop()
		}
		q.logger.Debug("arming wake timer", "wait", wait)
		q.wakeTimer = time.AfterFunc(wait, q.tick)
	}
	q.mu.Unlock()

	for _, task := range started {
		go q.run(task)
	}
}

func (q *Queue) run(task rawTask) {
	task.run()
	q.mu.Lock()
	q.inFlight--
	q.mu.Unlock()
	q.tick()
}

// pruneLocked drops ring entries older than now - InvocationInterval and
// returns how many were dropped. Must be called with q.mu held.
func (q *Queue) pruneLocked(now time.Time) int {
	cutoff := now.Add(-q.cfg.InvocationInterval)
	i := 0
	for i < len(q.timestamps) && q.timestamps[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		q.timestamps = append(q.timestamps[:0], q.timestamps[i:]...)
	}
	return i
}

func min3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	if m < 0 {
		return 0
	}
	return m
}
