package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/web3/ethereum"
	"ChainDeploy/internal/web3/provider"
	"ChainDeploy/pkg/logger"
)

// Executor performs one deployment attempt.
type Executor interface {
	Execute(ctx context.Context, job *Job) (*Result, error)
}

// SessionOpener opens a network by name. *provider.Registry implements it.
type SessionOpener interface {
	Open(ctx context.Context, name string) (*provider.Session, error)
}

// ExecutorOption configures a ChainExecutor.
type ExecutorOption func(*ChainExecutor)

// WithWait controls whether Execute waits for the contract to be mined.
func WithWait(wait bool) ExecutorOption {
	return func(e *ChainExecutor) { e.wait = wait }
}

// WithWaitTimeout bounds the wait for a mined contract.
func WithWaitTimeout(timeout time.Duration) ExecutorOption {
	return func(e *ChainExecutor) {
		if timeout > 0 {
			e.waitTimeout = timeout
		}
	}
}

// WithStrictNetworkCheck turns a network ID mismatch into a failure instead
// of a warning.
func WithStrictNetworkCheck(strict bool) ExecutorOption {
	return func(e *ChainExecutor) { e.strict = strict }
}

// ChainExecutor deploys jobs through sessions opened on demand, so the
// network's provider is constructed only when a job targets it.
type ChainExecutor struct {
	opener      SessionOpener
	wait        bool
	waitTimeout time.Duration
	strict      bool
	logger      *slog.Logger
}

// NewChainExecutor builds a ChainExecutor that waits for mining by default.
func NewChainExecutor(opener SessionOpener, opts ...ExecutorOption) *ChainExecutor {
	e := &ChainExecutor{
		opener:      opener,
		wait:        true,
		waitTimeout: 2 * time.Minute,
		logger:      logger.Named("executor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Execute implements Executor.
func (e *ChainExecutor) Execute(ctx context.Context, job *Job) (*Result, error) {
	if e == nil || e.opener == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "executor is not initialised")
	}
	if job == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "job is nil")
	}

	session, err := e.opener.Open(ctx, job.Network)
	if err != nil {
		return nil, err
	}
	defer session.Close()
	client := session.Client

	if err := client.VerifyNetwork(ctx, session.Descriptor.NetworkID); err != nil {
		if e.strict || !xerrors.HasCode(err, xerrors.CodeNetworkMismatch) {
			return nil, err
		}
		e.logger.Warn("network id mismatch", slog.String("network", job.Network), slog.Any("error", err))
	}

	args, err := ethereum.ParseConstructorArgs(job.ABI, job.Args)
	if err != nil {
		return nil, err
	}
	var from common.Address
	if job.From != "" {
		from = common.HexToAddress(job.From)
	}

	deployment, err := client.DeployContract(ctx, ethereum.DeployRequest{
		ABI:      job.ABI,
		Bytecode: common.FromHex(job.Bytecode),
		Args:     args,
		From:     from,
	})
	if err != nil {
		return nil, err
	}
	result := &Result{
		Address: deployment.ContractAddress.Hex(),
		TxHash:  deployment.Transaction.Hash().Hex(),
	}
	e.logger.Info("contract creation sent",
		slog.String("job_id", job.ID),
		slog.String("network", job.Network),
		slog.String("tx_hash", result.TxHash))

	if e.wait {
		waitCtx, cancel := context.WithTimeout(ctx, e.waitTimeout)
		defer cancel()
		if _, err := client.WaitDeployed(waitCtx, deployment); err != nil {
			// The transaction is already out; a retry would deploy a second copy.
			return result, xerrors.Wrap(CodeJobProcessing, err,
				fmt.Sprintf("contract creation %s not confirmed", result.TxHash),
				xerrors.WithRetryable(false),
				xerrors.WithMetadata("tx_hash", result.TxHash))
		}
	}

	if snapshot, err := client.FetchChainSnapshot(ctx); err == nil {
		result.ChainID = snapshot.ChainID
		result.BlockNumber = snapshot.BlockNumber
	} else {
		e.logger.Warn("chain snapshot unavailable", slog.String("network", job.Network), slog.Any("error", err))
	}
	return result, nil
}

var _ Executor = (*ChainExecutor)(nil)
