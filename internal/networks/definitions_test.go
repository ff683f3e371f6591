package networks

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ChainDeploy/internal/errors"
)

const sampleDefinitions = `
networks:
  goerli:
    type: infura
    network_id: "5"
    gas: 6000000
    gas_price: 2000000000
  ganache:
    type: local
    host: 127.0.0.1
    port: 8545
  sepolia-node:
    type: rpc
    rpc_url: https://rpc.example.org
    network_id: "11155111"
  mainnet:
    type: infura
    network_id: "1"
    gas: 8000000
`

func TestLoadDefinitionsMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "networks.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefinitions), 0o600))

	defs, err := LoadDefinitions(path)
	require.NoError(t, err)
	require.Len(t, defs.Networks, 4)

	rec := &recorder{}
	r := newTestResolver(t, map[string]string{"INFURA_API_KEY": "k"}, rec, WithDefinitions(defs))
	cfg := r.Configuration()
	assert.Empty(t, rec.calls)

	assert.Equal(t, []string{"development", "ganache", "goerli", "mainnet", "ropsten", "sepolia-node"}, cfg.Names())

	goerli := cfg.Networks["goerli"]
	assert.Equal(t, KindRemote, goerli.Kind)
	assert.Equal(t, uint64(6000000), goerli.Gas)
	assert.Equal(t, big.NewInt(2000000000), goerli.GasPrice)

	ganache := cfg.Networks["ganache"]
	assert.Equal(t, "http://127.0.0.1:8545", ganache.Endpoint())
	assert.Equal(t, AnyNetwork, ganache.NetworkID)

	assert.Equal(t, uint64(8000000), cfg.Networks["mainnet"].Gas)

	_, err = goerli.Provider(context.Background())
	require.NoError(t, err)
	_, err = cfg.Networks["sepolia-node"].Provider(context.Background())
	require.NoError(t, err)
	require.Len(t, rec.calls, 2)
	assert.Equal(t, "https://goerli.infura.io/v3/k", rec.calls[0].url)
	assert.Equal(t, "https://rpc.example.org", rec.calls[1].url)
}

func TestDefinitionsRejectInvalidEntries(t *testing.T) {
	cases := map[string]string{
		"unknown type":    "networks:\n  x:\n    type: ipc\n    network_id: \"1\"\n",
		"missing id":      "networks:\n  x:\n    type: infura\n",
		"rpc without url": "networks:\n  x:\n    type: rpc\n    network_id: \"1\"\n",
		"local no port":   "networks:\n  x:\n    type: local\n",
		"infura endpoint": "networks:\n  x:\n    type: infura\n    network_id: \"1\"\n    port: 8545\n",
		"rpc endpoint":    "networks:\n  x:\n    type: rpc\n    rpc_url: http://n\n    network_id: \"1\"\n    host: n\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			defs, err := ParseDefinitions([]byte(doc))
			require.NoError(t, err)

			_, err = NewResolver(FromMap(nil), WithDefinitions(defs))
			require.Error(t, err)
			assert.True(t, xerrors.HasCode(err, xerrors.CodeConfiguration))
		})
	}
}

func TestUntypedDefinitionWithEndpointIsLocal(t *testing.T) {
	defs, err := ParseDefinitions([]byte("networks:\n  development:\n    host: 127.0.0.1\n    port: 8545\n"))
	require.NoError(t, err)

	r, err := NewResolver(FromMap(nil), WithDefinitions(defs))
	require.NoError(t, err)

	dev := r.Configuration().Networks["development"]
	assert.Equal(t, KindLocal, dev.Kind)
	assert.Equal(t, "http://127.0.0.1:8545", dev.Endpoint())
	assert.Equal(t, AnyNetwork, dev.NetworkID)
	assert.Nil(t, dev.Provider)
}

func TestLoadDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadDefinitions("")
	require.NoError(t, err)
	assert.Empty(t, defs.Networks)
}

func TestParseDefinitionsRejectsMalformedYAML(t *testing.T) {
	_, err := ParseDefinitions([]byte("networks: [unterminated"))
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeConfiguration))
}
