// Package txexecutor serializes state-changing transaction submissions
// against a single nonce, applies gas-price policy, and exposes a
// two-phase submitted/confirmed completion contract (spec component E).
package txexecutor

import (
	"context"
	"math/big"

	"github.com/dudendy/df-network/gasoracle"
	"github.com/dudendy/df-network/queue"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Overrides carries the optional per-call gas settings a caller can
// supply; both fields are overlaid onto the executor's defaults.
type Overrides struct {
	GasPrice *big.Int // wei; nil means "let the executor fill this in"
	GasLimit uint64   // 0 means "use the default"
}

// defaultOverrides mirrors the source's {gasLimit: 2_000_000} default.
// Copy by value before overlaying per-call overrides; never alias this.
var defaultOverrides = Overrides{GasLimit: 2_000_000}

// ContractTransactor is the subset of *bind.BoundContract the executor
// needs: the ability to dispatch a state-changing call by method name.
// connection.ContractHandle satisfies this directly through its embedded
// *bind.BoundContract.
type ContractTransactor interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
}

// ConnectionProvider is the subset of *connection.Manager the executor
// depends on, narrowed to an interface so tests can supply a fake.
type ConnectionProvider interface {
	GetNonce(ctx context.Context) (uint64, error)
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
	GasPrices() gasoracle.Prices
	WaitForTransaction(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	RPCURL() string
	Address() (common.Address, error)
}

// GasSettingProvider returns the caller's current auto-gas setting
// ("Slow"/"Average"/"Fast", or a numeric gwei override) at the moment a
// transaction is queued.
type GasSettingProvider func() string

// QueuedTxRequest describes one state-changing call: the contract to
// invoke, the method and arguments, optional gas overrides, and the four
// callbacks the spec's data model names. Each callback fires at most
// once; exactly one of the two error callbacks fires on failure.
type QueuedTxRequest struct {
	ActionID   string
	Contract   ContractTransactor
	MethodName string
	Args       []interface{}
	Overrides  Overrides

	OnSubmissionError     func(error)
	OnReceiptError        func(error)
	OnTransactionResponse func(*types.Transaction)
	OnTransactionReceipt  func(*types.Receipt)

	// BeforeTransaction, if set, runs before composing the request; an
	// error aborts the task and is routed to OnSubmissionError.
	BeforeTransaction func(context.Context) error
}

// PendingTransaction is the caller-visible handle returned by
// QueueTransaction: two independent futures. If Submitted fails,
// Confirmed is abandoned — it neither resolves nor fails.
type PendingTransaction struct {
	Submitted *queue.Future[*types.Transaction]
	Confirmed *queue.Future[*types.Receipt]
}
