package ethereum

import (
	"fmt"
	"math/big"
	"reflect"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	xerrors "ChainDeploy/internal/errors"
)

// ParseConstructorArgs converts textual constructor arguments into the Go
// values abi.Pack expects for the constructor inputs of abiJSON. Supported
// input types are address, bool, string, bytes, bytesN and (u)intN.
func ParseConstructorArgs(abiJSON string, args []string) ([]any, error) {
	abiJSON = strings.TrimSpace(abiJSON)
	if abiJSON == "" {
		abiJSON = "[]"
	}
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse contract abi")
	}

	inputs := parsed.Constructor.Inputs
	if len(inputs) != len(args) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("constructor expects %d arguments, got %d", len(inputs), len(args)))
	}

	values := make([]any, 0, len(args))
	for i, input := range inputs {
		v, err := convertArg(input.Type, strings.TrimSpace(args[i]))
		if err != nil {
			name := input.Name
			if name == "" {
				name = strconv.Itoa(i)
			}
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("constructor argument %s", name))
		}
		values = append(values, v)
	}
	return values, nil
}

func convertArg(t abi.Type, raw string) (any, error) {
	switch t.T {
	case abi.AddressTy:
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("invalid address %q", raw)
		}
		return common.HexToAddress(raw), nil
	case abi.BoolTy:
		return strconv.ParseBool(raw)
	case abi.StringTy:
		return raw, nil
	case abi.BytesTy:
		return hexutil.Decode(raw)
	case abi.FixedBytesTy:
		b, err := hexutil.Decode(raw)
		if err != nil {
			return nil, err
		}
		if len(b) != t.Size {
			return nil, fmt.Errorf("expected %d bytes, got %d", t.Size, len(b))
		}
		arr := reflect.New(t.GetType()).Elem()
		reflect.Copy(arr, reflect.ValueOf(b))
		return arr.Interface(), nil
	case abi.IntTy, abi.UintTy:
		n, ok := new(big.Int).SetString(raw, 0)
		if !ok {
			return nil, fmt.Errorf("invalid integer %q", raw)
		}
		if t.T == abi.UintTy && n.Sign() < 0 {
			return nil, fmt.Errorf("negative value %s for %s", n, t.String())
		}
		if t.Size > 64 {
			return n, nil
		}
		v := reflect.New(t.GetType()).Elem()
		if t.T == abi.UintTy {
			if !n.IsUint64() || v.OverflowUint(n.Uint64()) {
				return nil, fmt.Errorf("value %s overflows %s", n, t.String())
			}
			v.SetUint(n.Uint64())
		} else {
			if !n.IsInt64() || v.OverflowInt(n.Int64()) {
				return nil, fmt.Errorf("value %s overflows %s", n, t.String())
			}
			v.SetInt(n.Int64())
		}
		return v.Interface(), nil
	default:
		return nil, fmt.Errorf("unsupported type %s", t.String())
	}
}
