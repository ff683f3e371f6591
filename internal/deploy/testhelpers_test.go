package deploy

import (
	"testing"

	"ChainDeploy/internal/networks"
)

const (
	simpleContractABI = "[]"
	simpleContractBin = "0x6027600c60003960276000f37f0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f2060006000a100"
	testMnemonic      = "test test test test test test test test test test test junk"
)

func defaultNetworks(t *testing.T) networks.Configuration {
	t.Helper()
	resolver, err := networks.NewResolver(networks.FromMap(nil))
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return resolver.Configuration()
}
