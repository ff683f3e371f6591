package networks

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net"
	"sort"
	"strconv"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/web3"
)

// AnyNetwork is the wildcard network ID accepted by local descriptors.
const AnyNetwork = "*"

// Kind tags the descriptor variant.
type Kind string

const (
	KindLocal  Kind = "local"
	KindRemote Kind = "remote"
)

// ProviderFactory builds a provider on demand. Each call constructs a new
// provider, which usually means a new network connection.
type ProviderFactory func(ctx context.Context) (web3.Provider, error)

// ProviderConstructor is the signing provider constructor the resolver wires
// into factories.
type ProviderConstructor func(ctx context.Context, mnemonic, rpcURL string) (web3.Provider, error)

// Descriptor describes how to reach one network. Local descriptors set Host
// and Port; remote descriptors set Provider and optionally Gas and GasPrice.
type Descriptor struct {
	Name      string
	Kind      Kind
	Host      string
	Port      int
	NetworkID string
	Provider  ProviderFactory
	Gas       uint64
	GasPrice  *big.Int
}

// IsLocal reports whether d is the host/port variant.
func (d Descriptor) IsLocal() bool {
	return d.Kind == KindLocal
}

// Endpoint returns the HTTP RPC URL of a local descriptor.
func (d Descriptor) Endpoint() string {
	if !d.IsLocal() {
		return ""
	}
	return "http://" + net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
}

// MatchesNetworkID reports whether id satisfies the descriptor's network ID.
func (d Descriptor) MatchesNetworkID(id string) bool {
	return d.NetworkID == AnyNetwork || d.NetworkID == id
}

// MarshalJSON renders the descriptor in the shape deployment toolchains
// expect. The factory is rendered as "deferred" and never invoked.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	out := map[string]any{"network_id": d.NetworkID}
	if d.IsLocal() {
		out["host"] = d.Host
		out["port"] = d.Port
	} else {
		out["provider"] = "deferred"
	}
	if d.Gas > 0 {
		out["gas"] = d.Gas
	}
	if d.GasPrice != nil {
		out["gasPrice"] = d.GasPrice
	}
	return json.Marshal(out)
}

// OptimizerConfig mirrors solc's optimizer settings.
type OptimizerConfig struct {
	Enabled bool `json:"enabled"`
	Runs    int  `json:"runs"`
}

// SolcConfig carries compiler options passed through to the toolchain.
type SolcConfig struct {
	Optimizer OptimizerConfig `json:"optimizer"`
}

// Configuration is the resolved network table plus compiler options.
type Configuration struct {
	Networks map[string]Descriptor `json:"networks"`
	Solc     SolcConfig            `json:"solc"`
}

// Lookup returns the descriptor for name.
func (c Configuration) Lookup(name string) (Descriptor, error) {
	d, ok := c.Networks[name]
	if !ok {
		return Descriptor{}, xerrors.New(xerrors.CodeUnknownNetwork,
			fmt.Sprintf("unknown network %q", name),
			xerrors.WithMetadata("network", name))
	}
	return d, nil
}

// Names returns the network names in sorted order.
func (c Configuration) Names() []string {
	names := make([]string, 0, len(c.Networks))
	for name := range c.Networks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (c Configuration) clone() Configuration {
	networks := make(map[string]Descriptor, len(c.Networks))
	for name, d := range c.Networks {
		if d.GasPrice != nil {
			d.GasPrice = new(big.Int).Set(d.GasPrice)
		}
		networks[name] = d
	}
	return Configuration{Networks: networks, Solc: c.Solc}
}
