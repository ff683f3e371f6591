package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"ChainDeploy/internal/networks"
)

func newNetworksCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "networks",
		Short: "List the resolved deployment networks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			cfg := rt.resolver.Configuration()
			if opts.jsonOut {
				return writeJSON(cmd.OutOrStdout(), cfg.Networks)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tKIND\tNETWORK ID\tENDPOINT\tGAS\tGAS PRICE")
			for _, name := range cfg.Names() {
				d := cfg.Networks[name]
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", name, d.Kind, d.NetworkID, endpointColumn(d), gasColumn(d), gasPriceColumn(d))
			}
			return w.Flush()
		},
	}
}

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration root (networks and solc)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := opts.load()
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), rt.resolver.Configuration())
		},
	}
}

// endpointColumn never prints provider URLs, which embed the API key.
func endpointColumn(d networks.Descriptor) string {
	if d.IsLocal() {
		return d.Endpoint()
	}
	return "deferred"
}

func gasColumn(d networks.Descriptor) string {
	if d.Gas == 0 {
		return "-"
	}
	return fmt.Sprintf("%d", d.Gas)
}

func gasPriceColumn(d networks.Descriptor) string {
	if d.GasPrice == nil {
		return "-"
	}
	return d.GasPrice.String()
}
