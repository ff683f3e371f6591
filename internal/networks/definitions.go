package networks

import (
	"fmt"
	"math/big"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "ChainDeploy/internal/errors"
)

// Definition types accepted in a networks file.
const (
	DefinitionInfura = "infura"
	DefinitionRPC    = "rpc"
	DefinitionLocal  = "local"
)

// Definitions models a networks YAML file.
type Definitions struct {
	Networks map[string]Definition `yaml:"networks"`
}

// Definition describes one network entry.
type Definition struct {
	// Type is infura, rpc or local. Empty means local when host or port is
	// set and infura otherwise.
	Type string `yaml:"type"`
	// InfuraNetwork is the Infura subdomain; it defaults to the entry name.
	InfuraNetwork string `yaml:"infura_network"`
	RPCURL        string `yaml:"rpc_url"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	NetworkID     string `yaml:"network_id"`
	Gas           uint64 `yaml:"gas"`
	GasPrice      uint64 `yaml:"gas_price"`
	Description   string `yaml:"description"`
}

// LoadDefinitions parses a networks file. An empty path yields no definitions.
func LoadDefinitions(path string) (Definitions, error) {
	if strings.TrimSpace(path) == "" {
		return Definitions{Networks: map[string]Definition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Definitions{}, xerrors.Wrap(xerrors.CodeConfiguration, err, "read networks file")
	}
	return ParseDefinitions(content)
}

// ParseDefinitions decodes YAML network definitions.
func ParseDefinitions(content []byte) (Definitions, error) {
	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return Definitions{}, xerrors.Wrap(xerrors.CodeConfiguration, err, "parse networks file")
	}
	if defs.Networks == nil {
		defs.Networks = map[string]Definition{}
	}
	return defs, nil
}

// descriptor converts a definition into a descriptor, wiring remote entries
// to deferred factories from r.
func (def Definition) descriptor(name string, r *Resolver) (Descriptor, error) {
	kind := strings.ToLower(strings.TrimSpace(def.Type))
	hasEndpoint := strings.TrimSpace(def.Host) != "" || def.Port != 0
	if kind == "" {
		kind = DefinitionInfura
		if hasEndpoint {
			kind = DefinitionLocal
		}
	}
	if hasEndpoint && kind != DefinitionLocal {
		return Descriptor{}, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("network %s: host and port are only valid for local networks", name))
	}

	d := Descriptor{Name: name, NetworkID: strings.TrimSpace(def.NetworkID), Gas: def.Gas}
	if def.GasPrice > 0 {
		d.GasPrice = new(big.Int).SetUint64(def.GasPrice)
	}

	switch kind {
	case DefinitionLocal:
		d.Kind = KindLocal
		d.Host = strings.TrimSpace(def.Host)
		if d.Host == "" {
			d.Host = "localhost"
		}
		d.Port = def.Port
		if d.Port <= 0 {
			return Descriptor{}, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("network %s: local networks need a port", name))
		}
		if d.NetworkID == "" {
			d.NetworkID = AnyNetwork
		}
	case DefinitionInfura:
		d.Kind = KindRemote
		subdomain := strings.TrimSpace(def.InfuraNetwork)
		if subdomain == "" {
			subdomain = name
		}
		d.Provider = r.BuildProviderFactory(subdomain)
	case DefinitionRPC:
		d.Kind = KindRemote
		rpcURL := strings.TrimSpace(def.RPCURL)
		if rpcURL == "" {
			return Descriptor{}, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("network %s: rpc networks need rpc_url", name))
		}
		d.Provider = r.EndpointFactory(name, rpcURL)
	default:
		return Descriptor{}, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("network %s: unsupported type %q", name, def.Type))
	}

	if d.NetworkID == "" {
		return Descriptor{}, xerrors.New(xerrors.CodeConfiguration, fmt.Sprintf("network %s: network_id is required", name))
	}
	return d, nil
}
