package txexecutor

import (
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// InstrumentationEvent is the per-transaction telemetry record built once
// a transaction reaches a terminal state (submission failure, receipt, or
// receipt-wait failure) and delivered to the WithAfterTransaction sink if
// one is configured.
type InstrumentationEvent struct {
	TxTo             common.Address
	TxType           string // the method name invoked
	TxHash           common.Hash
	TimeExecCalled   time.Time
	WaitSubmit       time.Duration
	WaitConfirm      time.Duration
	WaitError        error
	Error            error
	ParsedError      string
	RPCEndpoint      string
	UserAddress      common.Address
}

// parseErrorBody best-effort decodes an RPC error's data payload into a
// readable string. go-ethereum's rpc errors commonly implement
// rpc.DataError, exposing structured revert data alongside the message.
func parseErrorBody(err error) string {
	if err == nil {
		return ""
	}
	var de dataError
	if errors.As(err, &de) {
		if data := de.ErrorData(); data != nil {
			switch v := data.(type) {
			case string:
				return v
			case []byte:
				return string(v)
			default:
				return errAsString(v)
			}
		}
	}
	return err.Error()
}

// dataError mirrors github.com/ethereum/go-ethereum/rpc.DataError without
// importing it directly, since only the method set is needed.
type dataError interface {
	error
	ErrorData() interface{}
}

func errAsString(v interface{}) string {
	if s, ok := v.(interface{ String() string }); ok {
		return s.String()
	}
	return ""
}
