package provider

import (
	"context"
	"math/big"
	"sync/atomic"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/networks"
	"ChainDeploy/internal/web3"
	"ChainDeploy/internal/web3/hdprovider"
)

const testMnemonic = "test test test test test test test test test test test junk"

type countingConstructor struct {
	backend *simulated.Backend
	calls   atomic.Int32
	urls    []string
	closes  atomic.Int32
}

type closeCounting struct {
	*hdprovider.Provider
	closes *atomic.Int32
}

func (c closeCounting) Close() { c.closes.Add(1) }

func (c *countingConstructor) construct(_ context.Context, mnemonic, rpcURL string) (web3.Provider, error) {
	c.calls.Add(1)
	c.urls = append(c.urls, rpcURL)
	p, err := hdprovider.New(mnemonic, c.backend.Client())
	if err != nil {
		return nil, err
	}
	return closeCounting{Provider: p, closes: &c.closes}, nil
}

func newTestRegistry(t *testing.T) (*Registry, *countingConstructor) {
	t.Helper()
	backend := simulated.NewBackend(types.GenesisAlloc{
		common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"): {Balance: big.NewInt(1_000_000_000_000_000_000)},
	})
	t.Cleanup(func() { _ = backend.Close() })

	ctor := &countingConstructor{backend: backend}
	resolver, err := networks.NewResolver(
		networks.FromMap(map[string]string{"MNEMONIC": testMnemonic, "INFURA_API_KEY": "key"}),
		networks.WithProviderConstructor(ctor.construct),
	)
	require.NoError(t, err)

	registry, err := NewRegistry(resolver)
	require.NoError(t, err)
	return registry, ctor
}

func TestNewRegistryDoesNotConstruct(t *testing.T) {
	registry, ctor := newTestRegistry(t)

	assert.Equal(t, []string{"development", "mainnet", "ropsten"}, registry.Chains())
	assert.Zero(t, ctor.calls.Load())
}

func TestOpenInvokesFactoryPerCall(t *testing.T) {
	registry, ctor := newTestRegistry(t)
	ctx := context.Background()

	first, err := registry.Open(ctx, "ropsten")
	require.NoError(t, err)
	second, err := registry.Open(ctx, "ropsten")
	require.NoError(t, err)

	assert.Equal(t, int32(2), ctor.calls.Load())
	assert.NotSame(t, first.Client, second.Client)
	assert.Equal(t, []string{"https://ropsten.infura.io/v3/key", "https://ropsten.infura.io/v3/key"}, ctor.urls)
	assert.Equal(t, uint64(4500000), first.Descriptor.Gas)
	assert.Equal(t, 2, registry.Active())
}

func TestOpenLocalNetworkUsesEndpoint(t *testing.T) {
	registry, ctor := newTestRegistry(t)

	session, err := registry.Open(context.Background(), "development")
	require.NoError(t, err)
	assert.Equal(t, []string{"http://localhost:7545"}, ctor.urls)

	snapshot, err := session.Client.FetchChainSnapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "development", snapshot.Network)
}

func TestOpenUnknownNetwork(t *testing.T) {
	registry, ctor := newTestRegistry(t)

	_, err := registry.Open(context.Background(), "kovan")
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeUnknownNetwork))
	assert.Zero(t, ctor.calls.Load())
}

func TestCloseReleasesSessions(t *testing.T) {
	registry, ctor := newTestRegistry(t)
	ctx := context.Background()

	session, err := registry.Open(ctx, "mainnet")
	require.NoError(t, err)
	_, err = registry.Open(ctx, "development")
	require.NoError(t, err)

	session.Close()
	session.Close()
	assert.Equal(t, 1, registry.Active())
	assert.Equal(t, int32(1), ctor.closes.Load())

	registry.Close()
	assert.Zero(t, registry.Active())
	assert.Equal(t, int32(2), ctor.closes.Load())

	_, err = registry.Open(ctx, "mainnet")
	assert.True(t, xerrors.HasCode(err, xerrors.CodeInitializationFailure))
}
