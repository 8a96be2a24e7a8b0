package txexecutor

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/dudendy/df-network/connection"
	"github.com/dudendy/df-network/queue"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
)

// Tunables named directly by the spec.
const (
	submitTimeout        = 30 * time.Second
	defaultNonceStaleAfter = 5 * time.Minute

	internalQueueRate         = 3
	internalQueueInterval     = 100 * time.Millisecond
	internalQueueConcurrency  = 1
)

// Executor serializes QueueTransaction calls against a single monotonic
// nonce. The zero value is not usable; construct with New.
type Executor struct {
	conn       ConnectionProvider
	gasSetting GasSettingProvider
	q          *queue.Queue
	logger     log.Logger

	afterTransaction func(InstrumentationEvent)
	nonceStaleAfter  time.Duration
	submitTimeout    time.Duration // overridable for tests

	mu              sync.Mutex
	nonce           *uint64
	haveNonce       bool
	lastTransaction time.Time
}

// Option configures an Executor at construction time.
type Option func(*Executor)

// WithAfterTransaction installs the instrumentation sink.
func WithAfterTransaction(fn func(InstrumentationEvent)) Option {
	return func(e *Executor) { e.afterTransaction = fn }
}

// WithNonceStaleAfter overrides the default nonce staleness window.
func WithNonceStaleAfter(d time.Duration) Option {
	return func(e *Executor) { e.nonceStaleAfter = d }
}

// withSubmitTimeout overrides TX_SUBMIT_TIMEOUT; unexported, test-only.
func withSubmitTimeout(d time.Duration) Option {
	return func(e *Executor) { e.submitTimeout = d }
}

// New constructs an Executor backed by its own internal throttled queue,
// configured (3, 100ms, 1) per the spec: at most three submissions start
// per 100ms and exactly one is ever in flight, producing a total order.
func New(conn ConnectionProvider, gasSetting GasSettingProvider, opts ...Option) (*Executor, error) {
	q, err := queue.New(queue.Config{
		MaxInvocationsPerInterval: internalQueueRate,
		InvocationInterval:        internalQueueInterval,
		MaxConcurrency:            internalQueueConcurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("txexecutor: %w", err)
	}
	e := &Executor{
		conn:            conn,
		gasSetting:      gasSetting,
		q:               q,
		logger:          log.New("component", "txexecutor"),
		nonceStaleAfter: defaultNonceStaleAfter,
		submitTimeout:   submitTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// QueueTransaction resolves the gas price if unset, allocates the two
// completion futures, enqueues the serialized submission, and returns
// immediately.
func (e *Executor) QueueTransaction(ctx context.Context, req QueuedTxRequest) *PendingTransaction {
	if req.Overrides.GasPrice == nil {
		prices := e.conn.GasPrices()
		gwei := connection.GetAutoGasPriceGwei(prices, e.gasSetting())
		req.Overrides.GasPrice = gweiToWei(gwei)
	}

	submitted := queue.NewFuture[*types.Transaction]()
	confirmed := queue.NewFuture[*types.Receipt]()

	queue.Add[struct{}](ctx, e.q, func(ctx context.Context) (struct{}, error) {
		e.execute(ctx, req, submitted, confirmed)
		return struct{}{}, nil
	})

	return &PendingTransaction{Submitted: submitted, Confirmed: confirmed}
}

// execute runs inside the internal queue, so it is fully serialized
// against every other call's execute. It implements the spec's eight
// numbered steps.
func (e *Executor) execute(ctx context.Context, req QueuedTxRequest, submitted *queue.Future[*types.Transaction], confirmed *queue.Future[*types.Receipt]) {
	execCalled := time.Now()

	// 1. Nonce refresh.
	e.refreshNonceIfStale(ctx)

	// 2. Pre-hook.
	if req.BeforeTransaction != nil {
		if err := safeBeforeTransaction(req.BeforeTransaction, ctx); err != nil {
			e.failSubmission(req, submitted, err, execCalled)
			return
		}
	}

	// 3. Compose request.
	overrides := defaultOverrides
	if req.Overrides.GasPrice != nil {
		overrides.GasPrice = req.Overrides.GasPrice
	}
	if req.Overrides.GasLimit != 0 {
		overrides.GasLimit = req.Overrides.GasLimit
	}

	opts, err := e.conn.TransactOpts(ctx)
	if err != nil {
		e.failSubmission(req, submitted, err, execCalled)
		return
	}
	opts.GasPrice = overrides.GasPrice
	opts.GasLimit = overrides.GasLimit

	var usedNonce *uint64
	e.mu.Lock()
	if e.haveNonce {
		n := *e.nonce
		usedNonce = &n
		opts.Nonce = new(big.Int).SetUint64(n)
	}
	e.mu.Unlock()

	// 4. Submit with timeout.
	tx, err := e.invokeMethod(ctx, req, opts)
	if err != nil {
		e.failSubmission(req, submitted, err, execCalled)
		return
	}

	// 5. Post-submission accounting.
	now := time.Now()
	e.mu.Lock()
	if usedNonce != nil {
		next := *usedNonce + 1
		e.nonce = &next
		e.haveNonce = true
	}
	e.lastTransaction = now
	e.mu.Unlock()

	submitted.Resolve(tx)
	safeResponseCallback(req.OnTransactionResponse, tx)

	waitSubmit := now.Sub(execCalled)

	// 6. Confirmation, detached; 7. the queue slot already released by the
	// time execute returns, since everything above ran synchronously.
	go e.awaitConfirmation(req, confirmed, tx, execCalled, waitSubmit)
}

func (e *Executor) refreshNonceIfStale(ctx context.Context) {
	e.mu.Lock()
	stale := !e.haveNonce || time.Since(e.lastTransaction) > e.nonceStaleAfter
	e.mu.Unlock()
	if !stale {
		return
	}

	n, err := e.conn.GetNonce(ctx)
	if err != nil {
		e.logger.Warn("nonce refresh failed, keeping prior nonce", "err", err)
		return
	}
	e.mu.Lock()
	e.nonce = &n
	e.haveNonce = true
	e.mu.Unlock()
}

func (e *Executor) invokeMethod(ctx context.Context, req QueuedTxRequest, opts *bind.TransactOpts) (*types.Transaction, error) {
	timeoutCtx, cancel := context.WithTimeout(ctx, e.submitTimeout)
	defer cancel()
	opts.Context = timeoutCtx

	type result struct {
		tx  *types.Transaction
		err error
	}
	done := make(chan result, 1)
	go func() {
		tx, err := req.Contract.Transact(opts, req.MethodName, req.Args...)
		done <- result{tx, err}
	}()

	select {
	case r := <-done:
		return r.tx, r.err
	case <-timeoutCtx.Done():
		return nil, fmt.Errorf("txexecutor: action %s: %w", req.ActionID, ErrSubmitTimeout)
	}
}

func (e *Executor) failSubmission(req QueuedTxRequest, submitted *queue.Future[*types.Transaction], err error, execCalled time.Time) {
	submitted.Reject(err)
	safeErrorCallback(req.OnSubmissionError, err)
	e.emitInstrumentation(req, InstrumentationEvent{
		TxType:         req.MethodName,
		TimeExecCalled: execCalled,
		WaitSubmit:     time.Since(execCalled),
		Error:          err,
		ParsedError:    parseErrorBody(err),
		RPCEndpoint:    e.conn.RPCURL(),
	})
}

func (e *Executor) awaitConfirmation(req QueuedTxRequest, confirmed *queue.Future[*types.Receipt], tx *types.Transaction, execCalled time.Time, waitSubmit time.Duration) {
	waitStart := time.Now()
	receipt, err := e.conn.WaitForTransaction(context.Background(), tx.Hash())
	waitConfirm := time.Since(waitStart)

	addr, _ := e.conn.Address()

	if err != nil {
		confirmed.Reject(err)
		safeErrorCallback(req.OnReceiptError, err)
		e.emitInstrumentation(req, InstrumentationEvent{
			TxTo:           txTo(tx),
			TxType:         req.MethodName,
			TxHash:         tx.Hash(),
			TimeExecCalled: execCalled,
			WaitSubmit:     waitSubmit,
			WaitConfirm:    waitConfirm,
			WaitError:      err,
			RPCEndpoint:    e.conn.RPCURL(),
			UserAddress:    addr,
		})
		return
	}

	confirmed.Resolve(receipt)
	safeReceiptCallback(req.OnTransactionReceipt, receipt)

	event := InstrumentationEvent{
		TxTo:           txTo(tx),
		TxType:         req.MethodName,
		TxHash:         tx.Hash(),
		TimeExecCalled: execCalled,
		WaitSubmit:     waitSubmit,
		WaitConfirm:    waitConfirm,
		RPCEndpoint:    e.conn.RPCURL(),
		UserAddress:    addr,
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		event.Error = ErrTransactionReverted
		event.ParsedError = ErrTransactionReverted.Error()
	}
	e.emitInstrumentation(req, event)
}

func (e *Executor) emitInstrumentation(req QueuedTxRequest, event InstrumentationEvent) {
	if e.afterTransaction == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("afterTransaction handler panicked", "action", req.ActionID, "recovered", r)
		}
	}()
	e.afterTransaction(event)
}

// txTo returns tx's destination address, or the zero address for a
// contract-creation transaction (tx.To() == nil).
func txTo(tx *types.Transaction) common.Address {
	if to := tx.To(); to != nil {
		return *to
	}
	return common.Address{}
}

// gweiToWei converts a gwei float into a wei *big.Int; 1 gwei = 1e9 wei.
func gweiToWei(gwei float64) *big.Int {
	f := new(big.Float).Mul(big.NewFloat(gwei), big.NewFloat(1e9))
	wei, _ := f.Int(nil)
	return wei
}

func safeBeforeTransaction(fn func(context.Context) error, ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("txexecutor: beforeTransaction panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func safeErrorCallback(fn func(error), err error) {
	if fn == nil {
		return
	}
	defer func() { recover() }()
	fn(err)
}

func safeResponseCallback(fn func(*types.Transaction), tx *types.Transaction) {
	if fn == nil {
		return
	}
	defer func() { recover() }()
	fn(tx)
}

func safeReceiptCallback(fn func(*types.Receipt), receipt *types.Receipt) {
	if fn == nil {
		return
	}
	defer func() { recover() }()
	fn(receipt)
}
