package ethereum

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient/simulated"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/web3/hdprovider"
)

const (
	testMnemonic      = "test test test test test test test test test test test junk"
	simpleContractABI = "[]"
	simpleContractBin = "0x6027600c60003960276000f37f0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f2060006000a100"
)

var funded = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

func newSimulatedClient(t *testing.T, mnemonic string, opts ...Option) (*Client, *simulated.Backend) {
	t.Helper()
	backend := simulated.NewBackend(types.GenesisAlloc{
		funded: {Balance: new(big.Int).Mul(big.NewInt(100), big.NewInt(1_000_000_000_000_000_000))},
	})
	t.Cleanup(func() { _ = backend.Close() })

	p, err := hdprovider.New(mnemonic, backend.Client())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return NewClient("simulated", p, opts...), backend
}

func TestClientDeployAndWait(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, backend := newSimulatedClient(t, testMnemonic,
		WithGasLimit(1_000_000), WithGasPrice(big.NewInt(5_000_000_000)))

	result, err := client.DeployContract(ctx, DeployRequest{
		ABI:      simpleContractABI,
		Bytecode: common.FromHex(simpleContractBin),
	})
	if err != nil {
		t.Fatalf("deploy contract: %v", err)
	}
	if result.ContractAddress == (common.Address{}) {
		t.Fatal("expected contract address to be non-zero")
	}
	if result.Transaction.Gas() != 1_000_000 {
		t.Fatalf("unexpected gas limit %d", result.Transaction.Gas())
	}
	if result.Transaction.GasPrice().Cmp(big.NewInt(5_000_000_000)) != 0 {
		t.Fatalf("unexpected gas price %s", result.Transaction.GasPrice())
	}
	backend.Commit()

	address, err := client.WaitDeployed(ctx, result)
	if err != nil {
		t.Fatalf("wait deployed: %v", err)
	}
	if address != result.ContractAddress {
		t.Fatalf("address mismatch %s != %s", address, result.ContractAddress)
	}

	snapshot, err := client.FetchChainSnapshot(ctx)
	if err != nil {
		t.Fatalf("fetch snapshot: %v", err)
	}
	if snapshot.ChainID != "1337" {
		t.Fatalf("unexpected chain id %s", snapshot.ChainID)
	}
	if snapshot.BlockNumber == "0" {
		t.Fatal("expected block number to advance after deployment")
	}
	if snapshot.Network != "simulated" {
		t.Fatalf("unexpected network %s", snapshot.Network)
	}
}

func TestRequestOverridesClientDefaults(t *testing.T) {
	ctx := context.Background()
	client, _ := newSimulatedClient(t, testMnemonic, WithGasLimit(900_000))

	result, err := client.DeployContract(ctx, DeployRequest{
		Bytecode: common.FromHex(simpleContractBin),
		GasLimit: 700_000,
		GasPrice: big.NewInt(7_000_000_000),
	})
	if err != nil {
		t.Fatalf("deploy contract: %v", err)
	}
	if result.Transaction.Gas() != 700_000 {
		t.Fatalf("unexpected gas limit %d", result.Transaction.Gas())
	}
	if result.Transaction.GasPrice().Cmp(big.NewInt(7_000_000_000)) != 0 {
		t.Fatalf("unexpected gas price %s", result.Transaction.GasPrice())
	}
}

func TestDeployWithoutSignerFails(t *testing.T) {
	client, _ := newSimulatedClient(t, "")

	_, err := client.DeployContract(context.Background(), DeployRequest{Bytecode: common.FromHex(simpleContractBin)})
	if !xerrors.HasCode(err, xerrors.CodeNoSigner) {
		t.Fatalf("expected NO_SIGNER, got %v", err)
	}
}

func TestDeployRejectsBadInput(t *testing.T) {
	client, _ := newSimulatedClient(t, testMnemonic)

	_, err := client.DeployContract(context.Background(), DeployRequest{})
	if !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT for empty bytecode, got %v", err)
	}
	_, err = client.DeployContract(context.Background(), DeployRequest{ABI: "{", Bytecode: []byte{0x00}})
	if !xerrors.HasCode(err, xerrors.CodeInvalidArgument) {
		t.Fatalf("expected INVALID_ARGUMENT for bad abi, got %v", err)
	}
}

func TestVerifyNetwork(t *testing.T) {
	ctx := context.Background()
	client, _ := newSimulatedClient(t, "")

	if err := client.VerifyNetwork(ctx, "*"); err != nil {
		t.Fatalf("wildcard should match: %v", err)
	}
	if err := client.VerifyNetwork(ctx, "1337"); err != nil {
		t.Fatalf("matching id should pass: %v", err)
	}
	err := client.VerifyNetwork(ctx, "1")
	if !xerrors.HasCode(err, xerrors.CodeNetworkMismatch) {
		t.Fatalf("expected NETWORK_MISMATCH, got %v", err)
	}
}

func TestBalance(t *testing.T) {
	client, _ := newSimulatedClient(t, "")

	balance, err := client.Balance(context.Background(), funded)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Sign() <= 0 {
		t.Fatalf("expected funded balance, got %s", balance)
	}
}

func TestNilClient(t *testing.T) {
	var client *Client
	if _, err := client.FetchChainSnapshot(context.Background()); !xerrors.HasCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialisation failure, got %v", err)
	}
	client.Close()
}
