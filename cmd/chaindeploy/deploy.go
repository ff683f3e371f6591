package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"ChainDeploy/internal/deploy"
	"ChainDeploy/internal/observability/metrics"
	"ChainDeploy/internal/web3/provider"
	"ChainDeploy/pkg/logger"
)

type deployOptions struct {
	network  string
	artifact string
	args     []string
	from     string
	wait     bool
	timeout  time.Duration
	strict   bool
}

func newDeployCmd(root *rootOptions) *cobra.Command {
	opts := &deployOptions{}
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a compiled contract artifact to a network",
		Example: `  chaindeploy deploy --network development --artifact build/contracts/Token.json
  chaindeploy deploy --network ropsten --artifact Token.json --arg 1000000 --arg 0xf39F...2266`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := root.load()
			if err != nil {
				return err
			}

			artifact, err := deploy.LoadArtifact(opts.artifact)
			if err != nil {
				return err
			}
			req := deploy.RequestFromArtifact(opts.network, artifact, opts.args)
			req.From = opts.from
			if err := req.Validate(rt.resolver.Configuration()); err != nil {
				return err
			}

			registry, err := provider.NewRegistry(rt.resolver)
			if err != nil {
				return err
			}
			defer registry.Close()

			timeout := opts.timeout
			if timeout <= 0 {
				timeout = rt.cfg.Deploy.WaitTimeout
			}
			executor := deploy.NewChainExecutor(registry,
				deploy.WithWait(opts.wait),
				deploy.WithWaitTimeout(timeout),
				deploy.WithStrictNetworkCheck(opts.strict || rt.cfg.Deploy.StrictNetworkCheck),
			)

			job := &deploy.Job{
				ID:         uuid.NewString(),
				Network:    req.Network,
				Contract:   req.Contract,
				ABI:        req.ABI,
				Bytecode:   req.Bytecode,
				Args:       req.Args,
				From:       req.From,
				Status:     deploy.StatusRunning,
				Attempts:   1,
				MaxRetries: 1,
			}

			started := time.Now()
			result, err := executor.Execute(cmd.Context(), job)
			if err != nil {
				metrics.ObserveDeployment(job.Network, string(deploy.StatusFailed), time.Since(started))
				if result != nil && result.TxHash != "" {
					fmt.Fprintf(cmd.ErrOrStderr(), "transaction %s was sent but not confirmed\n", result.TxHash)
				}
				return err
			}
			metrics.ObserveDeployment(job.Network, string(deploy.StatusSucceeded), time.Since(started))
			logger.Audit().Info("deployment succeeded",
				slog.String("job_id", job.ID),
				slog.String("network", job.Network),
				slog.String("contract", job.Contract),
				slog.String("address", result.Address),
				slog.String("tx_hash", result.TxHash),
			)

			if root.jsonOut {
				return writeJSON(cmd.OutOrStdout(), result)
			}
			name := job.Contract
			if name == "" {
				name = "contract"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s deployed on %s at %s\ntx: %s\n", name, job.Network, result.Address, result.TxHash)
			if result.BlockNumber != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "chain %s, block %s\n", result.ChainID, result.BlockNumber)
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.network, "network", "", "network name")
	flags.StringVar(&opts.artifact, "artifact", "", "contract artifact JSON (contractName, abi, bytecode)")
	flags.StringArrayVar(&opts.args, "arg", nil, "constructor argument, repeat in order")
	flags.StringVar(&opts.from, "from", "", "signing account (default: first derived account)")
	flags.BoolVar(&opts.wait, "wait", true, "wait until the contract is mined")
	flags.DurationVar(&opts.timeout, "timeout", 0, "how long to wait for mining (default from config)")
	flags.BoolVar(&opts.strict, "strict-network-check", false, "fail when the chain ID does not match the network id")
	_ = cmd.MarkFlagRequired("network")
	_ = cmd.MarkFlagRequired("artifact")
	return cmd
}
