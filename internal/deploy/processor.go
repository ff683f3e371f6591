package deploy

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"time"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/observability/metrics"
	"ChainDeploy/pkg/logger"
)

// Processor consumes job IDs and runs them through an Executor.
type Processor struct {
	executor    Executor
	store       Store
	consumer    Consumer
	producer    Producer
	workerCount int
	logger      *slog.Logger
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithProcessorLogger sets the processor logger.
func WithProcessorLogger(logger *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithWorkerCount sets the number of consuming goroutines.
func WithWorkerCount(workers int) ProcessorOption {
	return func(p *Processor) {
		if workers > 0 {
			p.workerCount = workers
		}
	}
}

// NewProcessor builds a Processor. producer is used to requeue retryable
// failures.
func NewProcessor(executor Executor, store Store, consumer Consumer, producer Producer, opts ...ProcessorOption) *Processor {
	p := &Processor{
		executor:    executor,
		store:       store,
		consumer:    consumer,
		producer:    producer,
		workerCount: 1,
		logger:      logger.Named("processor"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p
}

// Start consumes until ctx is cancelled.
func (p *Processor) Start(ctx context.Context) error {
	if p.consumer == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "processor has no consumer")
	}
	return p.consumer.Consume(ctx, p.workerCount, p.Process)
}

// Process claims and runs one job.
func (p *Processor) Process(ctx context.Context, jobID string) error {
	if p.store == nil || p.executor == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "processor is not initialised")
	}
	job, err := p.store.Claim(ctx, jobID)
	if err != nil {
		if stdErrors.Is(err, ErrJobNotFound) || stdErrors.Is(err, ErrJobCompleted) ||
			stdErrors.Is(err, ErrJobExhausted) || stdErrors.Is(err, ErrJobConflict) {
			p.logger.Debug("skipping job", slog.String("job_id", jobID), slog.String("reason", err.Error()))
			return nil
		}
		p.logger.Error("failed to claim job", slog.Any("error", err), slog.String("job_id", jobID))
		return err
	}

	started := time.Now()
	result, execErr := p.executor.Execute(ctx, job)
	if execErr != nil {
		metrics.ObserveDeployment(job.Network, string(StatusFailed), time.Since(started))
		if result != nil && result.TxHash != "" {
			if err := p.store.RecordTransaction(ctx, job.ID, *result); err != nil {
				p.logger.Error("failed to record sent transaction", slog.Any("error", err),
					slog.String("job_id", job.ID), slog.String("tx_hash", result.TxHash))
			}
		}
		return p.handleExecutionFailure(ctx, job, execErr)
	}
	if result == nil {
		result = &Result{}
	}
	metrics.ObserveDeployment(job.Network, string(StatusSucceeded), time.Since(started))

	if err := p.store.MarkSucceeded(ctx, job.ID, *result); err != nil {
		p.logger.Error("failed to record deployment", slog.Any("error", err), slog.String("job_id", job.ID))
		// The contract exists; rerunning the job would deploy it again.
		if storeErr := p.store.MarkFailed(ctx, job.ID, xerrors.CodeOf(err), err.Error(), true); storeErr != nil {
			return storeErr
		}
		return err
	}
	logger.Audit().Info("deployment succeeded",
		slog.String("job_id", job.ID),
		slog.String("network", job.Network),
		slog.String("contract", job.Contract),
		slog.String("address", result.Address),
		slog.String("tx_hash", result.TxHash),
		slog.String("chain_id", result.ChainID),
	)
	return nil
}

func (p *Processor) handleExecutionFailure(ctx context.Context, job *Job, execErr error) error {
	code := xerrors.CodeOf(execErr)
	retryable := xerrors.RetryableError(execErr)
	if code == xerrors.CodeUnknown {
		code = CodeJobProcessing
		retryable = true
	}
	terminal := job.Attempts >= job.MaxRetries || !retryable

	if storeErr := p.store.MarkFailed(ctx, job.ID, code, execErr.Error(), terminal); storeErr != nil {
		p.logger.Error("failed to record job failure", slog.Any("error", storeErr), slog.String("job_id", job.ID))
		return storeErr
	}
	logger.Audit().Warn("deployment failed",
		slog.String("job_id", job.ID),
		slog.String("network", job.Network),
		slog.Bool("terminal", terminal),
		slog.String("error", execErr.Error()),
		slog.String("error_code", string(code)),
		slog.Int("attempts", job.Attempts),
		slog.Int("max_retries", job.MaxRetries),
	)

	if terminal || p.producer == nil {
		return nil
	}
	if pubErr := p.producer.Publish(ctx, job.ID); pubErr != nil {
		return xerrors.Wrap(CodeJobPublish, pubErr, fmt.Sprintf("requeue job %s", job.ID))
	}
	p.logger.Debug("job requeued", slog.String("job_id", job.ID), slog.Int("attempts", job.Attempts))
	return nil
}
