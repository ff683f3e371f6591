package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"ChainDeploy/internal/deploy"
	"ChainDeploy/sdk/go/chaindeploy"
)

type remoteOptions struct {
	server string
	token  string
}

func (o *remoteOptions) client() (*chaindeploy.Client, error) {
	client, err := chaindeploy.NewClient(o.server, nil)
	if err != nil {
		return nil, err
	}
	client.SetAccessToken(o.token)
	return client, nil
}

func newRemoteCmd(root *rootOptions) *cobra.Command {
	opts := &remoteOptions{}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Talk to a running chaindeploy server",
	}
	server := os.Getenv("CHAINDEPLOY_SERVER")
	if server == "" {
		server = "http://localhost:8080"
	}
	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.server, "server", server, "server base URL (env CHAINDEPLOY_SERVER)")
	flags.StringVar(&opts.token, "token", os.Getenv("CHAINDEPLOY_TOKEN"), "bearer token (env CHAINDEPLOY_TOKEN)")

	cmd.AddCommand(
		newRemoteSubmitCmd(root, opts),
		newRemoteStatusCmd(root, opts),
		newRemoteListCmd(root, opts),
	)
	return cmd
}

func newRemoteSubmitCmd(root *rootOptions, remote *remoteOptions) *cobra.Command {
	var (
		network  string
		artifact string
		args     []string
		from     string
		wait     bool
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Queue a deployment on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := remote.client()
			if err != nil {
				return err
			}
			art, err := deploy.LoadArtifact(artifact)
			if err != nil {
				return err
			}
			req := deploy.RequestFromArtifact(network, art, args)
			dep, err := client.SubmitDeployment(cmd.Context(), chaindeploy.DeploymentRequest{
				Network:  req.Network,
				Contract: req.Contract,
				ABI:      req.ABI,
				Bytecode: req.Bytecode,
				Args:     req.Args,
				From:     from,
			})
			if err != nil {
				return err
			}
			if wait {
				ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
				defer cancel()
				if dep, err = client.WaitForDeployment(ctx, dep.ID, time.Second); err != nil {
					return err
				}
			}
			return printDeployment(cmd, root, dep)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&network, "network", "", "network name")
	flags.StringVar(&artifact, "artifact", "", "contract artifact JSON (contractName, abi, bytecode)")
	flags.StringArrayVar(&args, "arg", nil, "constructor argument, repeat in order")
	flags.StringVar(&from, "from", "", "signing account (default: first derived account)")
	flags.BoolVar(&wait, "wait", false, "poll until the deployment finishes")
	flags.DurationVar(&timeout, "timeout", 5*time.Minute, "how long to poll with --wait")
	_ = cmd.MarkFlagRequired("network")
	_ = cmd.MarkFlagRequired("artifact")
	return cmd
}

func newRemoteStatusCmd(root *rootOptions, remote *remoteOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status <id>",
		Short: "Show one deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := remote.client()
			if err != nil {
				return err
			}
			dep, err := client.GetDeployment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printDeployment(cmd, root, dep)
		},
	}
}

func newRemoteListCmd(root *rootOptions, remote *remoteOptions) *cobra.Command {
	var query chaindeploy.ListQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := remote.client()
			if err != nil {
				return err
			}
			deps, err := client.ListDeployments(cmd.Context(), query)
			if err != nil {
				return err
			}
			if root.jsonOut {
				return writeJSON(cmd.OutOrStdout(), deps)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNETWORK\tCONTRACT\tSTATUS\tATTEMPTS\tADDRESS")
			for _, dep := range deps {
				address := ""
				if dep.Result != nil {
					address = dep.Result.Address
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\t%s\n", dep.ID, dep.Network, dep.Contract, dep.Status, dep.Attempts, dep.MaxRetries, address)
			}
			return w.Flush()
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&query.Network, "network", "", "only this network")
	flags.StringSliceVar(&query.Statuses, "status", nil, "only these statuses")
	flags.IntVar(&query.Limit, "limit", 20, "page size")
	flags.IntVar(&query.Offset, "offset", 0, "page offset")
	flags.StringVar(&query.Order, "order", "", "asc or desc by update time")
	return cmd
}

func printDeployment(cmd *cobra.Command, root *rootOptions, dep chaindeploy.Deployment) error {
	if root.jsonOut {
		return writeJSON(cmd.OutOrStdout(), dep)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %s on %s (attempt %d/%d)\n", dep.ID, strings.ToUpper(dep.Status), dep.Network, dep.Attempts, dep.MaxRetries)
	if dep.Result != nil {
		fmt.Fprintf(out, "address: %s\ntx: %s\n", dep.Result.Address, dep.Result.TxHash)
	}
	if dep.LastError != "" {
		fmt.Fprintf(out, "error: %s %s\n", dep.ErrorCode, dep.LastError)
	}
	return nil
}
