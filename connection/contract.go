package connection

import (
	"context"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ContractHandle is the live handle the spec's contract loader contract
// produces: an address plus everything needed to call and decode a
// contract by method/event name at runtime. It embeds *bind.BoundContract,
// which already supplies "callable methods keyed by methodName" via
// Call/Transact.
type ContractHandle struct {
	*bind.BoundContract
	Addr common.Address
	ABI  abi.ABI
}

// ParseLog decodes log using the contract's ABI, returning the matched
// event's name and its arguments as a name->value map. This is the Go
// rendition of the spec's ".interface.parseLog(log) -> {name, args}".
func (h *ContractHandle) ParseLog(log types.Log) (name string, args map[string]interface{}, err error) {
	if len(log.Topics) == 0 {
		return "", nil, errNoTopics
	}
	event, err := h.ABI.EventByID(log.Topics[0])
	if err != nil {
		return "", nil, err
	}
	args = make(map[string]interface{})
	if err := h.UnpackLogIntoMap(args, event.Name, log); err != nil {
		return "", nil, err
	}
	return event.Name, args, nil
}

// Loader mirrors the spec's loader contract: (address, provider, signer?)
// -> handle. opts is nil when no signer is configured.
type Loader func(ctx context.Context, address common.Address, client *ethclient.Client, opts *bind.TransactOpts) (*ContractHandle, error)

// NewABIBoundLoader builds a Loader for a plain ABI-described contract,
// with no generated bindings: the common case for this package's own
// registry, and the shape every per-contract generated binding's loader
// ultimately reduces to.
func NewABIBoundLoader(contractABI abi.ABI) Loader {
	return func(ctx context.Context, address common.Address, client *ethclient.Client, opts *bind.TransactOpts) (*ContractHandle, error) {
		bound := bind.NewBoundContract(address, contractABI, client, client, client)
		return &ContractHandle{BoundContract: bound, Addr: address, ABI: contractABI}, nil
	}
}
