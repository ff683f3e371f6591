// Package hdprovider builds signing providers from a BIP-39 mnemonic and an
// RPC endpoint. Key derivation is delegated to go-ethereum-hdwallet and the
// transport to go-ethereum's ethclient.
package hdprovider

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	hdwallet "github.com/ethereum-optimism/go-ethereum-hdwallet"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/web3"
)

// Options control which accounts are derived from the mnemonic.
type Options struct {
	// AddressIndex is the first account index under BasePath.
	AddressIndex uint32
	// NumAccounts is how many consecutive accounts to derive.
	NumAccounts int
	// BasePath is the derivation path of account zero.
	BasePath accounts.DerivationPath
	// NodeAccounts makes Dial fall back to the endpoint's own accounts when
	// the mnemonic is empty.
	NodeAccounts bool
	// NodeSigner signs when the mnemonic is empty.
	NodeSigner NodeSigner
}

// Option mutates Options.
type Option func(*Options)

// WithAddressIndex sets the first derived account index.
func WithAddressIndex(index uint32) Option {
	return func(o *Options) { o.AddressIndex = index }
}

// WithNumAccounts sets the number of derived accounts.
func WithNumAccounts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.NumAccounts = n
		}
	}
}

// WithNodeAccounts signs through the dialled node's unlocked accounts when
// no mnemonic is given.
func WithNodeAccounts() Option {
	return func(o *Options) { o.NodeAccounts = true }
}

// WithNodeSigner signs through s when no mnemonic is given.
func WithNodeSigner(s NodeSigner) Option {
	return func(o *Options) { o.NodeSigner = s }
}

func defaultOptions() Options {
	return Options{
		NumAccounts: 1,
		BasePath:    accounts.DefaultBaseDerivationPath,
	}
}

// Provider signs with keys derived from a mnemonic and sends through a Backend.
type Provider struct {
	endpoint string
	backend  web3.Backend
	closer   func()
	wallet   *hdwallet.Wallet
	accounts []accounts.Account
	node     NodeSigner

	mu           sync.Mutex
	chainID      *big.Int
	nodeAccounts []common.Address
}

// Dial connects to rpcURL and derives accounts from mnemonic. The chain ID is
// fetched before returning, so a bad endpoint or API key fails here.
func Dial(ctx context.Context, mnemonic, rpcURL string, opts ...Option) (*Provider, error) {
	rpcURL = strings.TrimSpace(rpcURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "rpc url is empty")
	}
	rpcClient, err := rpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProviderFailure, err, fmt.Sprintf("dial %s", redact(rpcURL)))
	}
	client := ethclient.NewClient(rpcClient)

	var options Options
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	if options.NodeAccounts && options.NodeSigner == nil {
		opts = append(opts, WithNodeSigner(NewRPCSigner(rpcClient)))
	}

	p, err := New(mnemonic, client, opts...)
	if err != nil {
		client.Close()
		return nil, err
	}
	p.endpoint = rpcURL
	p.closer = client.Close

	if _, err := p.ChainID(ctx); err != nil {
		client.Close()
		return nil, xerrors.Wrap(xerrors.CodeProviderFailure, err, fmt.Sprintf("query chain id from %s", redact(rpcURL)))
	}
	if p.node != nil {
		// Nodes without eth_accounts stay read-only; TransactOpts reports it.
		_, _ = p.loadNodeAccounts(ctx)
	}
	return p, nil
}

// New derives accounts from mnemonic over an existing backend. An empty
// mnemonic produces a read-only provider unless a NodeSigner is set.
func New(mnemonic string, backend web3.Backend, opts ...Option) (*Provider, error) {
	if backend == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "backend is nil")
	}
	options := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	p := &Provider{backend: backend}

	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		p.node = options.NodeSigner
		return p, nil
	}

	wallet, err := hdwallet.NewFromMnemonic(mnemonic)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "invalid mnemonic")
	}
	p.wallet = wallet

	for i := 0; i < options.NumAccounts; i++ {
		path := make(accounts.DerivationPath, len(options.BasePath))
		copy(path, options.BasePath)
		path[len(path)-1] += options.AddressIndex + uint32(i)

		account, err := wallet.Derive(path, true)
		if err != nil {
			return nil, fmt.Errorf("derive %s: %w", path.String(), err)
		}
		p.accounts = append(p.accounts, account)
	}
	return p, nil
}

// Backend implements web3.Provider.
func (p *Provider) Backend() web3.Backend {
	return p.backend
}

// Endpoint implements web3.Provider.
func (p *Provider) Endpoint() string {
	return p.endpoint
}

// Accounts implements web3.Provider. Node-managed accounts appear once they
// have been loaded.
func (p *Provider) Accounts() []common.Address {
	if p.node != nil {
		p.mu.Lock()
		defer p.mu.Unlock()
		return append([]common.Address(nil), p.nodeAccounts...)
	}
	out := make([]common.Address, 0, len(p.accounts))
	for _, account := range p.accounts {
		out = append(out, account.Address)
	}
	return out
}

func (p *Provider) loadNodeAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.nodeAccounts) > 0 {
		return p.nodeAccounts, nil
	}
	list, err := p.node.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	p.nodeAccounts = list
	return list, nil
}

func (p *Provider) nodeTransactOpts(ctx context.Context, from common.Address) (*bind.TransactOpts, error) {
	list, err := p.loadNodeAccounts(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeNoSigner, err, "list node accounts")
	}
	if len(list) == 0 {
		return nil, xerrors.New(xerrors.CodeNoSigner, "no mnemonic and the node exposes no accounts")
	}

	account := list[0]
	if from != (common.Address{}) {
		found := false
		for _, candidate := range list {
			if candidate == from {
				account, found = candidate, true
				break
			}
		}
		if !found {
			return nil, xerrors.New(xerrors.CodeNoSigner, fmt.Sprintf("account %s is not managed by the node", from.Hex()))
		}
	}

	node := p.node
	return &bind.TransactOpts{
		From:    account,
		Context: ctx,
		Signer: func(addr common.Address, tx *types.Transaction) (*types.Transaction, error) {
			if addr != account {
				return nil, bind.ErrNotAuthorized
			}
			return node.SignTransaction(ctx, addr, tx)
		},
	}, nil
}

// ChainID returns the backend chain ID, cached after the first call.
func (p *Provider) ChainID(ctx context.Context) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.chainID != nil {
		return new(big.Int).Set(p.chainID), nil
	}
	id, err := p.backend.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	p.chainID = new(big.Int).Set(id)
	return id, nil
}

// TransactOpts implements web3.Provider. A zero from selects the first
// derived account, or the node's first account without a mnemonic.
func (p *Provider) TransactOpts(ctx context.Context, from common.Address) (*bind.TransactOpts, error) {
	if p.wallet == nil && p.node != nil {
		return p.nodeTransactOpts(ctx, from)
	}
	if len(p.accounts) == 0 {
		return nil, xerrors.New(xerrors.CodeNoSigner, "provider was built without a mnemonic")
	}

	account := p.accounts[0]
	if from != (common.Address{}) {
		found := false
		for _, candidate := range p.accounts {
			if candidate.Address == from {
				account, found = candidate, true
				break
			}
		}
		if !found {
			return nil, xerrors.New(xerrors.CodeNoSigner, fmt.Sprintf("account %s is not managed by this provider", from.Hex()))
		}
	}

	key, err := p.wallet.PrivateKey(account)
	if err != nil {
		return nil, fmt.Errorf("load key for %s: %w", account.Address.Hex(), err)
	}
	chainID, err := p.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeProviderFailure, err, "query chain id")
	}
	opts, err := bind.NewKeyedTransactorWithChainID(key, chainID)
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Close releases the RPC connection when the provider dialled it.
func (p *Provider) Close() {
	if p == nil || p.closer == nil {
		return
	}
	p.closer()
	p.closer = nil
}

// redact hides the trailing path segment of Infura-style URLs, which is the
// API key.
func redact(rpcURL string) string {
	idx := strings.LastIndex(rpcURL, "/v3/")
	if idx < 0 {
		return rpcURL
	}
	return rpcURL[:idx+len("/v3/")] + "***"
}

var _ web3.Provider = (*Provider)(nil)
