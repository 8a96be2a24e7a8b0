package connection

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

func bigFromUint64(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// EventHandler receives a decoded contract event's arguments, keyed by ABI
// field name, and the raw log it was parsed from.
type EventHandler func(args map[string]interface{}, log types.Log)

// EventFilter narrows a contract subscription to specific log topics, the
// same shape ethereum.FilterQuery accepts: Topics[0] matches the event
// signature, Topics[1:] match indexed arguments. A nil or zero-value
// EventFilter matches every log the contract emits.
type EventFilter struct {
	Topics [][]common.Hash
}

// SubscribeToContractEvents watches every log emitted by the contract
// registered at address from the current block forward that also matches
// filter, decodes each one through the contract's ABI, and invokes
// handlers[name] if present; event names with no entry in handlers are
// silently ignored. It piggybacks on the same debounced block-number
// stream the rest of the Manager uses: each new head triggers one
// FilterLogs call covering everything since the last one seen.
//
// The returned function stops the watch. A log this package's ABI cannot
// match against any known event (errNoTopics, or EventByID failing) is
// skipped rather than treated as fatal.
func (m *Manager) SubscribeToContractEvents(ctx context.Context, address common.Address, handlers map[string]EventHandler, filter EventFilter) (func(), error) {
	handle, err := m.GetContract(address)
	if err != nil {
		return nil, err
	}

	client := m.Client()
	fromBlock, err := client.BlockNumber(ctx)
	if err != nil {
		return nil, err
	}

	watchCtx, cancel := context.WithCancel(ctx)
	var lastSeen uint64 = fromBlock

	unsubscribe := m.SubscribeBlockNumber(func(head uint64) {
		if watchCtx.Err() != nil {
			return
		}
		if head <= lastSeen {
			return
		}
		start := lastSeen + 1
		lastSeen = head

		logs, err := client.FilterLogs(watchCtx, ethereum.FilterQuery{
			FromBlock: bigFromUint64(start),
			ToBlock:   bigFromUint64(head),
			Addresses: []common.Address{address},
			Topics:    filter.Topics,
		})
		if err != nil {
			m.logger.Warn("filter contract logs failed", "contract", address, "err", err)
			return
		}
		for _, lg := range logs {
			name, args, err := handle.ParseLog(lg)
			if err != nil {
				continue
			}
			handler, ok := handlers[name]
			if !ok {
				continue
			}
			handler(args, lg)
		}
	})

	return func() {
		cancel()
		unsubscribe()
	}, nil
}
