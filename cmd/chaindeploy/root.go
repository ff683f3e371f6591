package main

import (
	"encoding/json"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"ChainDeploy/internal/config"
	"ChainDeploy/internal/networks"
	"ChainDeploy/pkg/logger"
)

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configFile   string
	envFiles     []string
	networksFile string
	jsonOut      bool
}

// runtime is what a command needs after flags and files are read.
type runtime struct {
	cfg      *config.Config
	resolver *networks.Resolver
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "chaindeploy",
		Short: "Resolve deployment networks and deploy contracts",
		Long: `chaindeploy resolves the deployment network table (development, ropsten,
mainnet plus any networks from a definitions file) and deploys compiled
contracts through it.

MNEMONIC and INFURA_API_KEY are read from the process environment and the
configured .env files. Without MNEMONIC, local networks such as development
sign with the accounts the node manages. Providers are only constructed when
a command needs to reach a network.`,
		SilenceUsage: true,
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "config file (default ./chaindeploy.yaml or ./config/chaindeploy.yaml)")
	flags.StringSliceVar(&opts.envFiles, "env-file", nil, "dotenv files to read (default from config, usually .env)")
	flags.StringVar(&opts.networksFile, "networks", "", "YAML network definitions file")
	flags.BoolVar(&opts.jsonOut, "json", false, "output in JSON format")

	cmd.AddCommand(
		newNetworksCmd(opts),
		newConfigCmd(opts),
		newDeployCmd(opts),
		newServeCmd(opts),
		newRemoteCmd(opts),
		newVersionCmd(opts),
	)
	return cmd
}

// load reads the config file, initialises logging and builds the resolver.
func (o *rootOptions) load() (*runtime, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return nil, err
	}
	if err := logger.Init(cfg.Logging); err != nil {
		return nil, err
	}

	envFiles := cfg.Networks.EnvFiles
	if len(o.envFiles) > 0 {
		envFiles = o.envFiles
	}
	env, err := networks.LoadDotEnv(envFiles...)
	if err != nil {
		return nil, err
	}

	definitionsFile := cfg.Networks.File
	if o.networksFile != "" {
		definitionsFile = o.networksFile
	}
	defs, err := networks.LoadDefinitions(definitionsFile)
	if err != nil {
		return nil, err
	}

	resolver, err := networks.NewResolver(env,
		networks.WithDefinitions(defs),
		networks.WithLogger(logger.Named("networks").With(slog.String("definitions", definitionsFile))),
	)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, resolver: resolver}, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
