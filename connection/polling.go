package connection

import (
	"math"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
)

// startGasPricePolling refreshes gas prices from the gas oracle on
// cfg.GasPricesInterval, publishing every result (GetAutoGasPrices never
// errors; it falls back to defaults on its own).
func (m *Manager) startGasPricePolling() {
	go func() {
		ticker := time.NewTicker(m.cfg.GasPricesInterval)
		defer ticker.Stop()

		m.refreshGasPrices()
		for {
			select {
			case <-m.pollCtx.Done():
				return
			case <-ticker.C:
				m.refreshGasPrices()
			}
		}
	}()
}

func (m *Manager) refreshGasPrices() {
	prices := m.oracle.GetAutoGasPrices(m.pollCtx)
	m.mu.Lock()
	m.gasPrices = prices
	m.mu.Unlock()
	m.gasPricesBus.Publish(prices)
}

// startBalancePolling refreshes the signer's balance on the fixed
// BalancePollInterval. It is a no-op poll (skips the RPC call) until a
// signer is configured via SetAccount.
func (m *Manager) startBalancePolling() {
	go func() {
		ticker := time.NewTicker(BalancePollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-m.pollCtx.Done():
				return
			case <-ticker.C:
				m.pollBalanceOnce()
			}
		}
	}()
}

func (m *Manager) pollBalanceOnce() {
	addr, err := m.Address()
	if err != nil {
		return
	}
	bal, err := m.LoadBalance(m.pollCtx, addr)
	if err != nil {
		m.logger.Warn("balance poll failed", "err", err)
		return
	}
	m.balanceBus.Publish(bal)
}

// startBlockListener begins tracking the chain head: a websocket provider
// subscribes to new heads directly, while any other provider is polled on
// HTTPPollInterval. Either path publishes through the same debouncer so
// subscribers see at most one notification per BlockDebounceInterval.
func (m *Manager) startBlockListener() {
	debounced := newDebouncer(BlockDebounceInterval, func() {
		num, err := m.Client().BlockNumber(m.pollCtx)
		if err != nil {
			m.logger.Warn("fetch block number failed", "err", err)
			return
		}
		m.blockNumberBus.Publish(num)
	})

	m.mu.RLock()
	ws := m.isWebsocket
	m.mu.RUnlock()

	if ws {
		go m.subscribeNewHeads(debounced)
		return
	}
	go m.pollBlockNumber(debounced)
}

func (m *Manager) subscribeNewHeads(debounced *debouncer) {
	client := m.Client()
	headers := make(chan *types.Header)
	sub, err := client.SubscribeNewHead(m.pollCtx, headers)
	if err != nil {
		m.logger.Warn("subscribe new heads failed, falling back to polling", "err", err)
		m.pollBlockNumber(debounced)
		return
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-m.pollCtx.Done():
			return
		case err := <-sub.Err():
			m.logger.Warn("block subscription error, falling back to polling", "err", err)
			m.pollBlockNumber(debounced)
			return
		case <-headers:
			debounced.Trigger()
		}
	}
}

func (m *Manager) pollBlockNumber(debounced *debouncer) {
	ticker := time.NewTicker(HTTPPollInterval)
	defer ticker.Stop()

	debounced.Trigger()
	for {
		select {
		case <-m.pollCtx.Done():
			return
		case <-ticker.C:
			debounced.Trigger()
		}
	}
}

// parseFiniteFloat parses s as a finite float64 gas price override.
func parseFiniteFloat(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if f != f || f > maxFinite || f < -maxFinite {
		return 0, false
	}
	return f, true
}

const maxFinite = math.MaxFloat64
