// Package eventbus implements a single-topic publish/subscribe primitive
// with optional replay-last-value semantics, used as the transport for the
// connection manager's block-number, gas-price, balance, and RPC-URL
// streams.
package eventbus

import (
	"sync"

	"github.com/ethereum/go-ethereum/log"
)

// Bus fans a published value out to every current subscriber, in
// subscribe-order, synchronously with respect to Publish. A Bus constructed
// with replay enabled delivers the most recently published value (if any)
// to a new subscriber synchronously, before Subscribe returns and before
// any later Publish can be observed.
type Bus[T any] struct {
	logger log.Logger

	mu      sync.Mutex
	subs    map[int]func(T)
	nextID  int
	replay  bool
	hasLast bool
	last    T
}

// New constructs a Bus for the named topic (used only to label its log
// output, e.g. "blockNumber", "gasPrices"). When replayLast is true,
// Subscribe delivers the last published value (if any) to the new
// subscriber immediately.
func New[T any](topic string, replayLast bool) *Bus[T] {
	return &Bus[T]{
		logger: log.New("component", "eventbus", "topic", topic),
		subs:   make(map[int]func(T)),
		replay: replayLast,
	}
}

// Subscribe registers handler and returns a function that removes it.
// Handlers run without the Bus's lock held, so a handler may itself
// subscribe to or unsubscribe from the same Bus.
func (b *Bus[T]) Subscribe(handler func(T)) (unsubscribe func()) {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = handler
	doReplay := b.replay && b.hasLast
	last := b.last
	b.mu.Unlock()

	b.logger.Debug("subscribe", "id", id, "replay", doReplay)
	if doReplay {
		handler(last)
	}

	return func() {
		b.mu.Lock()
		delete(b.subs, id)
		b.mu.Unlock()
		b.logger.Debug("unsubscribe", "id", id)
	}
}

// Publish delivers v to every subscriber currently registered, in the order
// they subscribed, and records it as the last value for future replay.
func (b *Bus[T]) Publish(v T) {
	b.mu.Lock()
	b.last = v
	b.hasLast = true
	handlers := make([]func(T), 0, len(b.subs))
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	sortInts(ids)
	for _, id := range ids {
		handlers = append(handlers, b.subs[id])
	}
	b.mu.Unlock()

	b.logger.Debug("publish", "subscribers", len(handlers))
	for _, h := range handlers {
		h(v)
	}
}

// sortInts is a tiny insertion sort: subscriber counts are small and this
// avoids pulling in sort for what is, in practice, a handful of ids.
func sortInts(a []int) {
	for i := 1; i < len(a); i++ {
		for j := i; j > 0 && a[j-1] > a[j]; j-- {
			a[j-1], a[j] = a[j], a[j-1]
		}
	}
}
