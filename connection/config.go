package connection

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrConfig is wrapped by every config-error (spec §7) raised synchronously
// from New.
var ErrConfig = errors.New("connection: invalid configuration")

// Tunables named directly by the spec, with sane defaults.
const (
	// DefaultGasPricesInterval is GAS_PRICES_INTERVAL_MS.
	DefaultGasPricesInterval = 15 * time.Second
	// BalancePollInterval is fixed by the spec at 10,000 ms.
	BalancePollInterval = 10 * time.Second
	// BlockDebounceInterval is the leading+trailing debounce window for
	// the block watcher.
	BlockDebounceInterval = time.Second
	// HTTPPollInterval is the polling cadence for a non-websocket
	// provider, matching the spec's "static JSON-RPC provider with
	// polling interval 8,000 ms".
	HTTPPollInterval = 8 * time.Second
	// DefaultNonceStaleAfter is NONCE_STALE_AFTER_MS. The spec names the
	// constant but leaves its value to the implementation; five minutes
	// is long enough to absorb normal UI think-time between submissions
	// without masking a genuinely abandoned session.
	DefaultNonceStaleAfter = 5 * time.Minute
	// DefaultMaxAutoGasPriceGwei is MAX_AUTO_GAS_PRICE_GWEI.
	DefaultMaxAutoGasPriceGwei = 500.0
)

// Config configures a Manager.
type Config struct {
	RPCURL              string
	GasOracleURL        string
	MaxAutoGasPriceGwei float64       // 0 uses DefaultMaxAutoGasPriceGwei.
	GasPricesInterval   time.Duration // 0 uses DefaultGasPricesInterval.
	NonceStaleAfter     time.Duration // 0 uses DefaultNonceStaleAfter.
}

func (c *Config) applyDefaults() {
	if c.MaxAutoGasPriceGwei == 0 {
		c.MaxAutoGasPriceGwei = DefaultMaxAutoGasPriceGwei
	}
	if c.GasPricesInterval == 0 {
		c.GasPricesInterval = DefaultGasPricesInterval
	}
	if c.NonceStaleAfter == 0 {
		c.NonceStaleAfter = DefaultNonceStaleAfter
	}
}

func (c Config) validate() error {
	if strings.TrimSpace(c.RPCURL) == "" {
		return fmt.Errorf("%w: RPCURL must not be empty", ErrConfig)
	}
	switch {
	case strings.HasPrefix(c.RPCURL, "wss://"),
		strings.HasPrefix(c.RPCURL, "ws://"),
		strings.HasPrefix(c.RPCURL, "https://"),
		strings.HasPrefix(c.RPCURL, "http://"):
	default:
		return fmt.Errorf("%w: RPCURL %q has an unsupported scheme", ErrConfig, c.RPCURL)
	}
	return nil
}

// isWebsocketURL matches the spec literally: only wss:// selects the
// websocket provider path (block subscription instead of polling); a plain
// ws:// URL is accepted by validate but still polled, same as any other
// non-wss scheme.
func isWebsocketURL(url string) bool {
	return strings.HasPrefix(url, "wss://")
}
