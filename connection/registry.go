package connection

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// LoadContract registers a contract at address using loader, binding it
// against the current provider and signer (if any), and stores the result
// under address for later GetContract/ReloadContracts calls.
func (m *Manager) LoadContract(ctx context.Context, address common.Address, loader Loader) (*ContractHandle, error) {
	client := m.Client()
	opts, err := m.TransactOpts(ctx)
	if err != nil && err != ErrNoSigner {
		return nil, err
	}

	handle, err := loader(ctx, address, client, opts)
	if err != nil {
		return nil, fmt.Errorf("connection: load contract %s: %w", address, err)
	}

	m.contractsMu.Lock()
	m.contracts[address.Hex()] = handle
	m.loaders[address.Hex()] = loader
	m.contractsMu.Unlock()
	return handle, nil
}

// GetContract returns the handle registered for address, or
// ErrContractNotLoaded if LoadContract was never called for it.
func (m *Manager) GetContract(address common.Address) (*ContractHandle, error) {
	m.contractsMu.RLock()
	defer m.contractsMu.RUnlock()
	handle, ok := m.contracts[address.Hex()]
	if !ok {
		return nil, ErrContractNotLoaded
	}
	return handle, nil
}

// ReloadContracts re-runs every registered contract's loader against the
// Manager's current provider and signer, replacing each stored handle in
// place. Used after SetAccount so existing handles pick up the new
// TransactOpts.
func (m *Manager) ReloadContracts(ctx context.Context) error {
	return m.reloadContractsAgainst(ctx, m.Client())
}

func (m *Manager) reloadContractsAgainst(ctx context.Context, client *ethclient.Client) error {
	opts, err := m.TransactOpts(ctx)
	if err != nil && err != ErrNoSigner {
		return err
	}

	m.contractsMu.RLock()
	loaders := make(map[string]Loader, len(m.loaders))
	for addr, loader := range m.loaders {
		loaders[addr] = loader
	}
	m.contractsMu.RUnlock()

	reloaded := make(map[string]*ContractHandle, len(loaders))
	for addrHex, loader := range loaders {
		handle, err := loader(ctx, common.HexToAddress(addrHex), client, opts)
		if err != nil {
			return fmt.Errorf("connection: reload contract %s: %w", addrHex, err)
		}
		reloaded[addrHex] = handle
	}

	m.contractsMu.Lock()
	for addrHex, handle := range reloaded {
		m.contracts[addrHex] = handle
	}
	m.contractsMu.Unlock()
	return nil
}
