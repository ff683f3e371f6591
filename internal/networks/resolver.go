package networks

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/observability/metrics"
	"ChainDeploy/internal/web3"
	"ChainDeploy/internal/web3/hdprovider"
	"ChainDeploy/pkg/logger"
)

const (
	localHost = "localhost"
	localPort = 7545

	ropstenGas      = 4500000
	ropstenGasPrice = 5000000000

	optimizerRuns = 200
)

// InfuraURL formats the Infura v3 endpoint for network.
func InfuraURL(network, apiKey string) string {
	return fmt.Sprintf("https://%s.infura.io/v3/%s", network, apiKey)
}

// DialHDWallet is the default ProviderConstructor.
func DialHDWallet(ctx context.Context, mnemonic, rpcURL string) (web3.Provider, error) {
	p, err := hdprovider.Dial(ctx, mnemonic, rpcURL)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// DialLocal is the default ProviderConstructor for local networks. Without a
// mnemonic it signs through the node's unlocked accounts.
func DialLocal(ctx context.Context, mnemonic, rpcURL string) (web3.Provider, error) {
	p, err := hdprovider.Dial(ctx, mnemonic, rpcURL, hdprovider.WithNodeAccounts())
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Resolver builds the network configuration from an Environment.
type Resolver struct {
	env            Environment
	construct      ProviderConstructor
	constructLocal ProviderConstructor
	localSet       bool
	logger         *slog.Logger
	definitions    Definitions
	config         Configuration
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithProviderConstructor replaces DialHDWallet, and DialLocal unless
// WithLocalProviderConstructor is also given.
func WithProviderConstructor(c ProviderConstructor) Option {
	return func(r *Resolver) {
		if c != nil {
			r.construct = c
			if !r.localSet {
				r.constructLocal = c
			}
		}
	}
}

// WithLocalProviderConstructor replaces DialLocal for host/port networks.
func WithLocalProviderConstructor(c ProviderConstructor) Option {
	return func(r *Resolver) {
		if c != nil {
			r.constructLocal = c
			r.localSet = true
		}
	}
}

// WithLogger sets the resolver logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithDefinitions merges extra network definitions over the defaults.
func WithDefinitions(defs Definitions) Option {
	return func(r *Resolver) {
		r.definitions = defs
	}
}

// NewResolver builds the configuration once. No provider is constructed and
// no I/O happens here.
func NewResolver(env Environment, opts ...Option) (*Resolver, error) {
	r := &Resolver{env: env, construct: DialHDWallet, constructLocal: DialLocal}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.logger == nil {
		r.logger = logger.Named("networks")
	}

	cfg := Configuration{
		Networks: map[string]Descriptor{
			"development": {
				Name:      "development",
				Kind:      KindLocal,
				Host:      localHost,
				Port:      localPort,
				NetworkID: AnyNetwork,
			},
			"ropsten": {
				Name:      "ropsten",
				Kind:      KindRemote,
				Provider:  r.BuildProviderFactory("ropsten"),
				NetworkID: "2",
				Gas:       ropstenGas,
				GasPrice:  big.NewInt(ropstenGasPrice),
			},
			"mainnet": {
				Name:      "mainnet",
				Kind:      KindRemote,
				Provider:  r.BuildProviderFactory("mainnet"),
				NetworkID: "1",
			},
		},
		Solc: SolcConfig{Optimizer: OptimizerConfig{Enabled: true, Runs: optimizerRuns}},
	}

	for name, def := range r.definitions.Networks {
		d, err := def.descriptor(name, r)
		if err != nil {
			return nil, err
		}
		cfg.Networks[name] = d
	}

	r.config = cfg
	return r, nil
}

// Configuration returns a copy of the resolved configuration.
func (r *Resolver) Configuration() Configuration {
	return r.config.clone()
}

// BuildProviderFactory returns a factory for an Infura network. MNEMONIC and
// INFURA_API_KEY are read when the factory runs, and an unset MNEMONIC is
// passed through as "".
func (r *Resolver) BuildProviderFactory(network string) ProviderFactory {
	return func(ctx context.Context) (web3.Provider, error) {
		settings, err := r.env.Settings()
		if err != nil {
			return nil, err
		}
		return r.newProvider(ctx, r.construct, false, network, settings.Mnemonic, InfuraURL(network, settings.InfuraAPIKey))
	}
}

// EndpointFactory returns a factory for a fixed RPC URL, signing with
// MNEMONIC when it is set.
func (r *Resolver) EndpointFactory(network, rpcURL string) ProviderFactory {
	return func(ctx context.Context) (web3.Provider, error) {
		settings, err := r.env.Settings()
		if err != nil {
			return nil, err
		}
		return r.newProvider(ctx, r.construct, false, network, settings.Mnemonic, rpcURL)
	}
}

// LocalFactory returns a factory for a host/port network. Without MNEMONIC
// the node's unlocked accounts sign, as a development node expects.
func (r *Resolver) LocalFactory(network, rpcURL string) ProviderFactory {
	return func(ctx context.Context) (web3.Provider, error) {
		settings, err := r.env.Settings()
		if err != nil {
			return nil, err
		}
		if settings.Mnemonic == "" {
			r.logger.Info("MNEMONIC is empty, signing with node accounts",
				slog.String("network", network))
		}
		return r.newProvider(ctx, r.constructLocal, true, network, settings.Mnemonic, rpcURL)
	}
}

// Factory returns the provider factory for a named network. Local networks,
// which carry no factory, get one over their host and port.
func (r *Resolver) Factory(name string) (ProviderFactory, error) {
	d, err := r.config.Lookup(name)
	if err != nil {
		return nil, err
	}
	if d.Provider != nil {
		return d.Provider, nil
	}
	return r.LocalFactory(name, d.Endpoint()), nil
}

func (r *Resolver) newProvider(ctx context.Context, construct ProviderConstructor, local bool, network, mnemonic, rpcURL string) (web3.Provider, error) {
	if mnemonic == "" && !local {
		r.logger.Warn("MNEMONIC is empty, provider will not be able to sign",
			slog.String("network", network))
	}
	r.logger.Debug("constructing provider", slog.String("network", network))

	p, err := construct(ctx, mnemonic, rpcURL)
	metrics.ObserveProviderConstruction(network, err)
	if err != nil {
		if _, ok := xerrors.From(err); ok {
			return nil, fmt.Errorf("network %s: %w", network, err)
		}
		return nil, xerrors.Wrap(xerrors.CodeProviderFailure, err,
			fmt.Sprintf("construct provider for %s", network),
			xerrors.WithMetadata("network", network))
	}
	return p, nil
}
