// Package connection owns the RPC provider, the optional signing key, the
// contract registry, the block-number watcher, and the periodic gas-price
// poll (spec component D). It is the hub that the contract caller and the
// transaction executor both depend on.
package connection

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/dudendy/df-network/eventbus"
	"github.com/dudendy/df-network/gasoracle"
	"github.com/dudendy/df-network/retry"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// Manager owns a single RPC endpoint's client handle plus everything that
// hangs off it. The zero value is not usable; construct with New.
type Manager struct {
	cfg    Config
	logger log.Logger
	oracle *gasoracle.Client

	mu          sync.RWMutex
	rpcClient   *rpc.Client
	client      *ethclient.Client
	currentURL  string
	isWebsocket bool
	chainID     *big.Int

	signer       *ecdsa.PrivateKey
	transactOpts *bind.TransactOpts
	address      common.Address
	hasSigner    bool

	balance   *big.Int
	gasPrices gasoracle.Prices

	contractsMu sync.RWMutex
	contracts   map[string]*ContractHandle
	loaders     map[string]Loader

	blockNumberBus *eventbus.Bus[uint64]
	gasPricesBus   *eventbus.Bus[gasoracle.Prices]
	balanceBus     *eventbus.Bus[*big.Int]
	rpcURLBus      *eventbus.Bus[string]

	pollCtx     context.Context
	stopPolling context.CancelFunc
	destroyOnce sync.Once
}

// New dials cfg.RPCURL, starts the gas-price and balance polling loops, and
// returns a ready Manager. Construction fails synchronously for an invalid
// Config (a config-error, spec §7, wrapping ErrConfig) or for a dial
// failure (returned as the dial error, not wrapping ErrConfig).
func New(ctx context.Context, cfg Config) (*Manager, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	rpcClient, err := rpc.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connection: dial %q: %w", cfg.RPCURL, err)
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:            cfg,
		logger:         log.New("component", "connection", "rpc_endpoint", cfg.RPCURL),
		oracle:         gasoracle.New(cfg.GasOracleURL, cfg.MaxAutoGasPriceGwei),
		rpcClient:      rpcClient,
		client:         ethclient.NewClient(rpcClient),
		currentURL:     cfg.RPCURL,
		isWebsocket:    isWebsocketURL(cfg.RPCURL),
		contracts:      make(map[string]*ContractHandle),
		loaders:        make(map[string]Loader),
		blockNumberBus: eventbus.New[uint64]("blockNumber", true),
		gasPricesBus:   eventbus.New[gasoracle.Prices]("gasPrices", true),
		balanceBus:     eventbus.New[*big.Int]("balance", true),
		rpcURLBus:      eventbus.New[string]("rpcURL", true),
		pollCtx:        pollCtx,
		stopPolling:    cancel,
	}
	m.rpcURLBus.Publish(cfg.RPCURL)

	m.startGasPricePolling()
	m.startBalancePolling()
	m.startBlockListener()

	return m, nil
}

// Client returns the current ethclient handle. Callers should not cache
// this across a SetRPCURL call; always re-fetch from the Manager.
func (m *Manager) Client() *ethclient.Client {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.client
}

// RPCURL returns the currently active endpoint URL.
func (m *Manager) RPCURL() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentURL
}

// GasPrices returns the most recently polled gas price tiers.
func (m *Manager) GasPrices() gasoracle.Prices {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.gasPrices
}

// Balance returns the most recently polled balance of the signer's
// address, or nil if no signer is configured or no poll has completed yet.
func (m *Manager) Balance() *big.Int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.balance
}

// SubscribeBlockNumber, SubscribeGasPrices, SubscribeBalance, and
// SubscribeRPCURL expose the four event streams from the spec's data
// model. Each replays the most recent value, if any, synchronously on
// subscribe.
func (m *Manager) SubscribeBlockNumber(handler func(uint64)) func()          { return m.blockNumberBus.Subscribe(handler) }
func (m *Manager) SubscribeGasPrices(handler func(gasoracle.Prices)) func()  { return m.gasPricesBus.Subscribe(handler) }
func (m *Manager) SubscribeBalance(handler func(*big.Int)) func()           { return m.balanceBus.Subscribe(handler) }
func (m *Manager) SubscribeRPCURL(handler func(string)) func()              { return m.rpcURLBus.Subscribe(handler) }

// SetRPCURL dials a new provider, reloads every registered contract
// against it, and only then swaps the provider reference new callers will
// observe. In-flight work against the old provider is left to complete
// against it.
func (m *Manager) SetRPCURL(ctx context.Context, url string) error {
	cfg := m.cfg
	cfg.RPCURL = url
	if err := cfg.validate(); err != nil {
		return err
	}

	newRPCClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return fmt.Errorf("connection: dial %q: %w", url, err)
	}
	newClient := ethclient.NewClient(newRPCClient)

	if err := m.reloadContractsAgainst(ctx, newClient); err != nil {
		newRPCClient.Close()
		return fmt.Errorf("connection: reload contracts against new provider: %w", err)
	}

	m.mu.Lock()
	old := m.rpcClient
	m.rpcClient = newRPCClient
	m.client = newClient
	m.currentURL = url
	m.isWebsocket = isWebsocketURL(url)
	m.mu.Unlock()

	m.rpcURLBus.Publish(url)
	if old != nil {
		old.Close()
	}
	return nil
}

// SetAccount parses privateKeyHex, builds a signer bound to the current
// provider, refreshes the balance, and reloads every contract so its
// handle now carries the signer. Any prior signer is dropped.
func (m *Manager) SetAccount(ctx context.Context, privateKeyHex string) error {
	pk, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return fmt.Errorf("connection: parse private key: %w", err)
	}

	client := m.Client()
	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("connection: fetch chain id: %w", err)
	}
	opts, err := bind.NewKeyedTransactorWithChainID(pk, chainID)
	if err != nil {
		return fmt.Errorf("connection: build signer: %w", err)
	}
	addr := crypto.PubkeyToAddress(pk.PublicKey)

	m.mu.Lock()
	m.signer = pk
	m.transactOpts = opts
	m.address = addr
	m.hasSigner = true
	m.chainID = chainID
	m.mu.Unlock()

	if err := m.ReloadContracts(ctx); err != nil {
		return err
	}
	if bal, err := m.LoadBalance(ctx, addr); err != nil {
		m.logger.Warn("initial balance refresh after SetAccount failed", "err", err)
	} else {
		m.balanceBus.Publish(bal)
	}
	return nil
}

// Address returns the signer's address, or ErrNoSigner if none is set.
func (m *Manager) Address() (common.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasSigner {
		return common.Address{}, ErrNoSigner
	}
	return m.address, nil
}

// PrivateKey returns the configured signing key, or ErrNoSigner if none is
// set.
func (m *Manager) PrivateKey() (*ecdsa.PrivateKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasSigner {
		return nil, ErrNoSigner
	}
	return m.signer, nil
}

// TransactOpts returns a fresh copy of the signer's TransactOpts bound to
// ctx, suitable for overlaying per-call gas/nonce overrides onto. Returns
// ErrNoSigner if no signer is set.
func (m *Manager) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasSigner {
		return nil, ErrNoSigner
	}
	cp := *m.transactOpts
	cp.Context = ctx
	return &cp, nil
}

// SignMessage signs msg with the personal-message prefix, as a wallet
// would for an EIP-191 signature request. Returns ErrNoSigner if no signer
// is set.
func (m *Manager) SignMessage(msg []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.hasSigner {
		return nil, ErrNoSigner
	}
	hash := accounts.TextHash(msg)
	return crypto.Sign(hash, m.signer)
}

// GetNonce returns the signer's next usable nonce, retry-wrapped against
// transient RPC failures, or 0 if no signer is configured.
func (m *Manager) GetNonce(ctx context.Context) (uint64, error) {
	m.mu.RLock()
	client := m.client
	hasSigner := m.hasSigner
	addr := m.address
	m.mu.RUnlock()
	if !hasSigner {
		return 0, nil
	}
	return retry.CallWithRetry(ctx, retry.DefaultMaxRetries, retry.DefaultMinInterval, nil, func(ctx context.Context) (uint64, error) {
		return client.PendingNonceAt(ctx, addr)
	})
}

// LoadBalance fetches addr's balance, retry-wrapped, and records it as the
// Manager's tracked balance.
func (m *Manager) LoadBalance(ctx context.Context, addr common.Address) (*big.Int, error) {
	client := m.Client()
	bal, err := retry.CallWithRetry(ctx, retry.DefaultMaxRetries, retry.DefaultMinInterval, nil, func(ctx context.Context) (*big.Int, error) {
		return client.BalanceAt(ctx, addr, nil)
	})
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.balance = bal
	m.mu.Unlock()
	return bal, nil
}

// SendTransaction signs and broadcasts tx. Returns ErrNoSigner if no
// signer is configured.
func (m *Manager) SendTransaction(ctx context.Context, tx *types.Transaction) (*types.Transaction, error) {
	m.mu.RLock()
	client := m.client
	signerKey := m.signer
	hasSigner := m.hasSigner
	chainID := m.chainID
	m.mu.RUnlock()
	if !hasSigner {
		return nil, ErrNoSigner
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), signerKey)
	if err != nil {
		return nil, fmt.Errorf("connection: sign transaction: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return signed, nil
}

// WaitForTransaction polls for hash's receipt, retry-wrapped per §4.G.
func (m *Manager) WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	client := m.Client()
	return retry.WaitForTransaction(ctx, func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
		return client.TransactionReceipt(ctx, h)
	}, hash)
}

// GetAutoGasPriceGwei selects a gwei value from prices according to
// setting: "Slow"/"Average"/"Fast" pick the matching tier; any other value
// is parsed as a numeric gwei override, falling back to the average tier
// if it doesn't parse as a finite number.
func GetAutoGasPriceGwei(prices gasoracle.Prices, setting string) float64 {
	switch setting {
	case "Slow":
		return prices.Slow
	case "Average":
		return prices.Average
	case "Fast":
		return prices.Fast
	}
	if f, ok := parseFiniteFloat(setting); ok {
		return f
	}
	return prices.Average
}

// Destroy cancels the gas-price and balance polling loops. It is safe to
// call more than once. It does not attempt to cancel in-flight work or
// any active contract-event subscription.
func (m *Manager) Destroy() {
	m.destroyOnce.Do(func() {
		m.stopPolling()
	})
}
