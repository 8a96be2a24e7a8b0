package retry

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// errReceiptNotYetAvailable is returned internally by the per-attempt probe
// while a transaction has not yet been mined; CallWithRetry treats it like
// any other retryable error.
var errReceiptNotYetAvailable = errors.New("retry: receipt not yet available")

// GetReceiptFunc fetches a transaction receipt, returning (nil, nil) if the
// transaction has not yet been mined (the idiomatic Go rendition of the
// underlying RPC library's "not found" case).
type GetReceiptFunc func(ctx context.Context, hash common.Hash) (*types.Receipt, error)

// perAttemptTimeout bounds a single getReceipt call, independent of the
// overall retry budget.
const perAttemptTimeout = 30 * time.Second

// WaitForTransaction polls getReceipt until a receipt is available, using
// exponential backoff bounded to [2s, MaxInterval] with up to
// DefaultReceiptMaxRetries attempts, each capped at perAttemptTimeout.
func WaitForTransaction(ctx context.Context, getReceipt GetReceiptFunc, hash common.Hash) (*types.Receipt, error) {
	return CallWithRetry(ctx, DefaultReceiptMaxRetries, 2*time.Second, nil, func(ctx context.Context) (*types.Receipt, error) {
		attemptCtx, cancel := context.WithTimeout(ctx, perAttemptTimeout)
		defer cancel()
		receipt, err := getReceipt(attemptCtx, hash)
		if err != nil {
			return nil, err
		}
		if receipt == nil {
			return nil, errReceiptNotYetAvailable
		}
		return receipt, nil
	})
}
