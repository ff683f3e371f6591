package web3

import (
	"context"
	"math/big"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Backend is the JSON-RPC surface a provider exposes. *ethclient.Client and
// the simulated backend client both satisfy it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	gethcore.ChainIDReader
	gethcore.BlockNumberReader
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Provider is a signing-capable connection to one network endpoint.
type Provider interface {
	// Backend returns the RPC transport.
	Backend() Backend
	// Accounts lists the addresses the provider can sign for. A provider
	// built without a mnemonic returns none.
	Accounts() []common.Address
	// TransactOpts returns signing options for from, bound to the
	// backend's chain ID.
	TransactOpts(ctx context.Context, from common.Address) (*bind.TransactOpts, error)
	// Endpoint is the RPC URL the provider was built for.
	Endpoint() string
	Close()
}

// ChainSnapshot summarises network state for reporting.
type ChainSnapshot struct {
	Network     string `json:"network"`
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
}

// DeploymentResult captures a submitted contract creation.
type DeploymentResult struct {
	ContractAddress common.Address
	Transaction     *types.Transaction
}
