package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestCallWithRetrySucceedsOnFirstAttempt(t *testing.T) {
	calls := 0
	v, err := CallWithRetry(context.Background(), 3, time.Millisecond, nil, func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, 1, calls)
}

func TestCallWithRetryExhaustsAttemptsAndReturnsLastError(t *testing.T) {
	calls := 0
	_, err := CallWithRetry(context.Background(), 3, time.Millisecond, nil, func(ctx context.Context) (int, error) {
		calls++
		return 0, errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
}

func TestCallWithRetrySucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	v, err := CallWithRetry(context.Background(), 5, time.Millisecond, nil, func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errBoom
		}
		return 7, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, 3, calls)
}

func TestCallWithRetryOnErrorHandlerPanicIsContained(t *testing.T) {
	v, err := CallWithRetry(context.Background(), 2, time.Millisecond, func(attempt int, err error) {
		panic("onError blew up")
	}, func(ctx context.Context) (int, error) {
		return 0, errBoom
	})
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 0, v)
}

func TestWaitForTransactionRetriesUntilReceiptAppears(t *testing.T) {
	hash := common.HexToHash("0x1")
	calls := 0
	receipt, err := WaitForTransaction(context.Background(), func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
		calls++
		if calls < 2 {
			return nil, nil
		}
		return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
	}, hash)
	require.NoError(t, err)
	require.NotNil(t, receipt)
	assert.Equal(t, uint64(1), receipt.Status)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestWaitForTransactionPropagatesHardError(t *testing.T) {
	hash := common.HexToHash("0x2")
	_, err := WaitForTransaction(context.Background(), func(ctx context.Context, h common.Hash) (*types.Receipt, error) {
		return nil, errBoom
	}, hash)
	require.ErrorIs(t, err, errBoom)
}
