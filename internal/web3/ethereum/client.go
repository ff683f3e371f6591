package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/web3"
)

const anyNetwork = "*"

// Option configures transaction defaults on a Client.
type Option func(*Client)

// WithGasLimit sets the gas limit applied when a request leaves it unset.
func WithGasLimit(gas uint64) Option {
	return func(c *Client) { c.gasLimit = gas }
}

// WithGasPrice sets the gas price applied when a request leaves it unset.
func WithGasPrice(price *big.Int) Option {
	return func(c *Client) {
		if price != nil {
			c.gasPrice = new(big.Int).Set(price)
		}
	}
}

// Client runs chain operations for one network over a provider.
type Client struct {
	name     string
	provider web3.Provider
	gasLimit uint64
	gasPrice *big.Int
}

// NewClient wraps provider. It performs no I/O.
func NewClient(name string, provider web3.Provider, opts ...Option) *Client {
	c := &Client{name: name, provider: provider}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Name returns the network name the client was opened for.
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Provider returns the underlying provider.
func (c *Client) Provider() web3.Provider {
	if c == nil {
		return nil
	}
	return c.provider
}

// Close releases the provider's connection.
func (c *Client) Close() {
	if c == nil || c.provider == nil {
		return
	}
	c.provider.Close()
}

func (c *Client) backend() (web3.Backend, error) {
	if c == nil || c.provider == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "ethereum client is not initialised")
	}
	backend := c.provider.Backend()
	if backend == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "provider has no backend")
	}
	return backend, nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (web3.ChainSnapshot, error) {
	backend, err := c.backend()
	if err != nil {
		return web3.ChainSnapshot{}, err
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("fetch chain id: %w", err)
	}
	blockNumber, err := backend.BlockNumber(ctx)
	if err != nil {
		return web3.ChainSnapshot{}, fmt.Errorf("fetch block number: %w", err)
	}
	return web3.ChainSnapshot{
		Network:     c.name,
		ChainID:     chainID.String(),
		BlockNumber: fmt.Sprintf("%d", blockNumber),
	}, nil
}

// VerifyNetwork checks the connected chain ID against networkID. The
// wildcard "*" accepts any chain.
func (c *Client) VerifyNetwork(ctx context.Context, networkID string) error {
	networkID = strings.TrimSpace(networkID)
	if networkID == anyNetwork {
		return nil
	}
	backend, err := c.backend()
	if err != nil {
		return err
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain id: %w", err)
	}
	if chainID.String() != networkID {
		return xerrors.New(xerrors.CodeNetworkMismatch,
			fmt.Sprintf("network %s expects id %s but chain reports %s", c.name, networkID, chainID),
			xerrors.WithMetadata("network", c.name),
			xerrors.WithMetadata("chain_id", chainID.String()))
	}
	return nil
}

// DeployRequest describes a contract creation.
type DeployRequest struct {
	ABI      string
	Bytecode []byte
	Args     []any
	// From selects the signing account; zero uses the provider's first.
	From     common.Address
	GasLimit uint64
	GasPrice *big.Int
}

// DeployContract signs and sends the contract creation transaction. It does
// not wait for the transaction to be mined.
func (c *Client) DeployContract(ctx context.Context, req DeployRequest) (web3.DeploymentResult, error) {
	backend, err := c.backend()
	if err != nil {
		return web3.DeploymentResult{}, err
	}
	if len(req.Bytecode) == 0 {
		return web3.DeploymentResult{}, xerrors.New(xerrors.CodeInvalidArgument, "contract bytecode is empty")
	}

	abiJSON := strings.TrimSpace(req.ABI)
	if abiJSON == "" {
		abiJSON = "[]"
	}
	parsedABI, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return web3.DeploymentResult{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse contract abi")
	}

	auth, err := c.provider.TransactOpts(ctx, req.From)
	if err != nil {
		return web3.DeploymentResult{}, err
	}
	auth.GasLimit = firstNonZero(req.GasLimit, c.gasLimit)
	switch {
	case req.GasPrice != nil:
		auth.GasPrice = new(big.Int).Set(req.GasPrice)
	case c.gasPrice != nil:
		auth.GasPrice = new(big.Int).Set(c.gasPrice)
	}

	address, tx, _, err := bind.DeployContract(auth, parsedABI, req.Bytecode, backend, req.Args...)
	if err != nil {
		return web3.DeploymentResult{}, xerrors.Wrap(xerrors.CodeProviderFailure, err,
			fmt.Sprintf("deploy contract on %s", c.name),
			xerrors.WithMetadata("network", c.name))
	}
	return web3.DeploymentResult{ContractAddress: address, Transaction: tx}, nil
}

// WaitDeployed blocks until the creation transaction is mined and code is
// present at the contract address.
func (c *Client) WaitDeployed(ctx context.Context, result web3.DeploymentResult) (common.Address, error) {
	backend, err := c.backend()
	if err != nil {
		return common.Address{}, err
	}
	if result.Transaction == nil {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "deployment has no transaction")
	}
	address, err := bind.WaitDeployed(ctx, backend, result.Transaction)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return common.Address{}, xerrors.Wrap(xerrors.CodeTimeout, err, "wait for deployment")
		}
		return common.Address{}, fmt.Errorf("wait for deployment: %w", err)
	}
	return address, nil
}

// Balance returns the latest balance of address in wei.
func (c *Client) Balance(ctx context.Context, address common.Address) (*big.Int, error) {
	backend, err := c.backend()
	if err != nil {
		return nil, err
	}
	balance, err := backend.BalanceAt(ctx, address, nil)
	if err != nil {
		return nil, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

func firstNonZero(values ...uint64) uint64 {
	for _, v := range values {
		if v != 0 {
			return v
		}
	}
	return 0
}
