package connection

import "errors"

var (
	// ErrNoSigner is returned by every operation that requires a signing
	// key (getPrivateKey, signMessage, sendTransaction, ...) when none has
	// been set via SetAccount.
	ErrNoSigner = errors.New("connection: no signer configured")
	// ErrContractNotLoaded is returned by GetContract for an address that
	// was never passed to LoadContract.
	ErrContractNotLoaded = errors.New("connection: contract never loaded")

	errNoTopics = errors.New("connection: log has no topics to match an event")
)
