package hdprovider

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
)

// NodeSigner signs with accounts the node itself manages, as development
// nodes such as Ganache and geth --dev do.
type NodeSigner interface {
	Accounts(ctx context.Context) ([]common.Address, error)
	SignTransaction(ctx context.Context, from common.Address, tx *types.Transaction) (*types.Transaction, error)
}

// RPCSigner implements NodeSigner with eth_accounts and eth_signTransaction.
type RPCSigner struct {
	client *rpc.Client
}

// NewRPCSigner wraps an RPC client.
func NewRPCSigner(client *rpc.Client) *RPCSigner {
	return &RPCSigner{client: client}
}

// Accounts returns the node's unlocked accounts.
func (s *RPCSigner) Accounts(ctx context.Context) ([]common.Address, error) {
	var out []common.Address
	if err := s.client.CallContext(ctx, &out, "eth_accounts"); err != nil {
		return nil, err
	}
	return out, nil
}

// SignTransaction asks the node to sign tx for from and decodes the raw
// result. Both the bare hex and the {raw, tx} answer shapes are accepted.
func (s *RPCSigner) SignTransaction(ctx context.Context, from common.Address, tx *types.Transaction) (*types.Transaction, error) {
	args := map[string]any{
		"from":  from,
		"gas":   hexutil.Uint64(tx.Gas()),
		"nonce": hexutil.Uint64(tx.Nonce()),
		"value": (*hexutil.Big)(tx.Value()),
		"input": hexutil.Bytes(tx.Data()),
		"data":  hexutil.Bytes(tx.Data()),
	}
	if to := tx.To(); to != nil {
		args["to"] = to
	}
	if tx.Type() == types.LegacyTxType {
		args["gasPrice"] = (*hexutil.Big)(tx.GasPrice())
	} else {
		args["maxFeePerGas"] = (*hexutil.Big)(tx.GasFeeCap())
		args["maxPriorityFeePerGas"] = (*hexutil.Big)(tx.GasTipCap())
		args["chainId"] = (*hexutil.Big)(tx.ChainId())
	}

	var result json.RawMessage
	if err := s.client.CallContext(ctx, &result, "eth_signTransaction", args); err != nil {
		return nil, err
	}
	raw, err := decodeSignedRaw(result)
	if err != nil {
		return nil, err
	}
	signed := new(types.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode signed transaction: %w", err)
	}
	return signed, nil
}

func decodeSignedRaw(result json.RawMessage) ([]byte, error) {
	var raw hexutil.Bytes
	if err := json.Unmarshal(result, &raw); err == nil {
		return raw, nil
	}
	var wrapped struct {
		Raw hexutil.Bytes `json:"raw"`
	}
	if err := json.Unmarshal(result, &wrapped); err != nil {
		return nil, fmt.Errorf("decode eth_signTransaction result: %w", err)
	}
	if len(wrapped.Raw) == 0 {
		return nil, fmt.Errorf("eth_signTransaction returned no raw transaction")
	}
	return wrapped.Raw, nil
}
