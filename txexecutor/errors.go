package txexecutor

import "errors"

var (
	// ErrSubmitTimeout is returned when a transaction's submission did not
	// complete within TX_SUBMIT_TIMEOUT.
	ErrSubmitTimeout = errors.New("txexecutor: submission timed out")
	// ErrTransactionReverted marks a receipt whose status is 0. It is
	// recorded in instrumentation only; onTransactionReceipt has already
	// fired by the time this is produced.
	ErrTransactionReverted = errors.New("txexecutor: transaction reverted")
)
