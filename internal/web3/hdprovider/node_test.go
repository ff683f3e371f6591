package hdprovider

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	xerrors "ChainDeploy/internal/errors"
)

// devNode answers eth_accounts and eth_signTransaction like a development
// node with one unlocked account.
type devNode struct {
	key     *ecdsa.PrivateKey
	chainID *big.Int
	empty   bool
}

type devSignArgs struct {
	To                   *common.Address `json:"to"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Input                hexutil.Bytes   `json:"input"`
}

func (n *devNode) Accounts() []common.Address {
	if n.empty {
		return []common.Address{}
	}
	return []common.Address{crypto.PubkeyToAddress(n.key.PublicKey)}
}

func (n *devNode) SignTransaction(args devSignArgs) (hexutil.Bytes, error) {
	var inner types.TxData
	if args.MaxFeePerGas != nil {
		inner = &types.DynamicFeeTx{
			ChainID:   n.chainID,
			Nonce:     uint64(args.Nonce),
			GasTipCap: args.MaxPriorityFeePerGas.ToInt(),
			GasFeeCap: args.MaxFeePerGas.ToInt(),
			Gas:       uint64(args.Gas),
			To:        args.To,
			Value:     args.Value.ToInt(),
			Data:      args.Input,
		}
	} else {
		inner = &types.LegacyTx{
			Nonce:    uint64(args.Nonce),
			GasPrice: args.GasPrice.ToInt(),
			Gas:      uint64(args.Gas),
			To:       args.To,
			Value:    args.Value.ToInt(),
			Data:     args.Input,
		}
	}
	tx, err := types.SignNewTx(n.key, types.LatestSignerForChainID(n.chainID), inner)
	if err != nil {
		return nil, err
	}
	return tx.MarshalBinary()
}

func newDevNodeSigner(t *testing.T, node *devNode) *RPCSigner {
	t.Helper()
	server := rpc.NewServer()
	require.NoError(t, server.RegisterName("eth", node))
	client := rpc.DialInProc(server)
	t.Cleanup(func() {
		client.Close()
		server.Stop()
	})
	return NewRPCSigner(client)
}

func TestNodeSignerSignsWithoutMnemonic(t *testing.T) {
	backend := newBackend(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	nodeAccount := crypto.PubkeyToAddress(key.PublicKey)
	chainID := big.NewInt(1337)

	p, err := New("", backend.Client(), WithNodeSigner(newDevNodeSigner(t, &devNode{key: key, chainID: chainID})))
	require.NoError(t, err)

	opts, err := p.TransactOpts(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, nodeAccount, opts.From)
	assert.Equal(t, []common.Address{nodeAccount}, p.Accounts())

	to := common.HexToAddress("0x01")
	unsigned := types.NewTx(&types.DynamicFeeTx{
		ChainID: chainID, Nonce: 3, GasTipCap: big.NewInt(1), GasFeeCap: big.NewInt(2),
		Gas: 21000, To: &to, Value: big.NewInt(5),
	})
	signed, err := opts.Signer(opts.From, unsigned)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, nodeAccount, sender)
	assert.Equal(t, uint64(3), signed.Nonce())

	_, err = opts.Signer(anvil1, unsigned)
	assert.Error(t, err)

	_, err = p.TransactOpts(context.Background(), anvil1)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeNoSigner))
}

func TestNodeWithoutAccountsHasNoSigner(t *testing.T) {
	backend := newBackend(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	p, err := New("", backend.Client(), WithNodeSigner(newDevNodeSigner(t, &devNode{key: key, chainID: big.NewInt(1337), empty: true})))
	require.NoError(t, err)

	_, err = p.TransactOpts(context.Background(), common.Address{})
	require.Error(t, err)
	assert.True(t, xerrors.HasCode(err, xerrors.CodeNoSigner))
}

func TestMnemonicTakesPrecedenceOverNodeSigner(t *testing.T) {
	backend := newBackend(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	p, err := New(testMnemonic, backend.Client(), WithNodeSigner(newDevNodeSigner(t, &devNode{key: key, chainID: big.NewInt(1337)})))
	require.NoError(t, err)

	opts, err := p.TransactOpts(context.Background(), common.Address{})
	require.NoError(t, err)
	assert.Equal(t, anvil0, opts.From)
}

func TestDecodeSignedRawShapes(t *testing.T) {
	raw, err := decodeSignedRaw([]byte(`"0x0102"`))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, raw)

	raw, err = decodeSignedRaw([]byte(`{"raw":"0x0304","tx":{}}`))
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 4}, raw)

	_, err = decodeSignedRaw([]byte(`{"tx":{}}`))
	assert.Error(t, err)
}
