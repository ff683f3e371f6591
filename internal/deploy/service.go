package deploy

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	xerrors "ChainDeploy/internal/errors"
	"ChainDeploy/internal/networks"
	"ChainDeploy/internal/web3/ethereum"
	"ChainDeploy/pkg/logger"
)

// NetworkLookup resolves network names. *provider.Registry and
// networks.Configuration implement it.
type NetworkLookup interface {
	Lookup(name string) (networks.Descriptor, error)
}

// Request asks for one contract deployment.
type Request struct {
	// ID makes submission idempotent; empty assigns a UUID.
	ID       string   `json:"id,omitempty"`
	Network  string   `json:"network"`
	Contract string   `json:"contract"`
	ABI      string   `json:"abi"`
	Bytecode string   `json:"bytecode"`
	Args     []string `json:"args,omitempty"`
	From     string   `json:"from,omitempty"`
}

// RequestFromArtifact fills a Request from a build artifact.
func RequestFromArtifact(network string, artifact Artifact, args []string) Request {
	return Request{
		Network:  network,
		Contract: artifact.ContractName,
		ABI:      string(artifact.ABI),
		Bytecode: artifact.Bytecode,
		Args:     args,
	}
}

// Validate checks the request against the known networks.
func (r Request) Validate(lookup NetworkLookup) error {
	if strings.TrimSpace(r.Network) == "" {
		return xerrors.New(CodeJobValidation, "network is required")
	}
	if lookup != nil {
		if _, err := lookup.Lookup(r.Network); err != nil {
			return err
		}
	}
	if err := validateBytecode(r.Bytecode); err != nil {
		return err
	}
	abiJSON := strings.TrimSpace(r.ABI)
	if abiJSON != "" && !json.Valid([]byte(abiJSON)) {
		return xerrors.New(CodeJobValidation, "abi is not valid JSON")
	}
	if _, err := ethereum.ParseConstructorArgs(abiJSON, r.Args); err != nil {
		return err
	}
	if r.From != "" && !common.IsHexAddress(r.From) {
		return xerrors.New(CodeJobValidation, fmt.Sprintf("from %q is not an address", r.From))
	}
	return nil
}

// Service creates and queries deployment jobs.
type Service struct {
	store      Store
	producer   Producer
	lookup     NetworkLookup
	maxRetries int
}

// NewService builds a Service. maxRetries below one defaults to three.
func NewService(store Store, producer Producer, lookup NetworkLookup, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Service{store: store, producer: producer, lookup: lookup, maxRetries: maxRetries}
}

// Submit validates req, stores a pending job and publishes it. Resubmitting
// an existing ID returns the stored job.
func (s *Service) Submit(ctx context.Context, req Request) (*Job, error) {
	if s.store == nil || s.producer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "deployment service is not initialised")
	}

	jobID := strings.TrimSpace(req.ID)
	if jobID != "" {
		job, err := s.store.Get(ctx, jobID)
		if err == nil {
			return job, nil
		}
		if !stdErrors.Is(err, ErrJobNotFound) {
			return nil, err
		}
	} else {
		jobID = uuid.NewString()
	}

	if err := req.Validate(s.lookup); err != nil {
		return nil, err
	}

	job := &Job{
		ID:         jobID,
		Network:    req.Network,
		Contract:   req.Contract,
		ABI:        strings.TrimSpace(req.ABI),
		Bytecode:   strings.TrimSpace(req.Bytecode),
		Args:       append([]string(nil), req.Args...),
		From:       req.From,
		Status:     StatusPending,
		MaxRetries: s.maxRetries,
	}
	if err := s.store.Create(ctx, job); err != nil {
		if stdErrors.Is(err, ErrJobConflict) {
			if existing, getErr := s.store.Get(ctx, jobID); getErr == nil {
				return existing, nil
			}
		}
		return nil, err
	}

	if err := s.producer.Publish(ctx, jobID); err != nil {
		logger.L().Error("failed to enqueue job", slog.Any("error", err), slog.String("job_id", jobID))
		wrapped := xerrors.Wrap(CodeJobPublish, err, "publish job")
		_ = s.store.MarkFailed(ctx, jobID, CodeJobPublish, wrapped.Error(), true)
		return nil, wrapped
	}
	logger.Audit().Info("deployment queued",
		slog.String("job_id", jobID),
		slog.String("network", job.Network),
		slog.String("contract", job.Contract),
		slog.Int("max_retries", job.MaxRetries),
	)
	return job, nil
}

// Get returns a job by ID.
func (s *Service) Get(ctx context.Context, id string) (*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "job store is not initialised")
	}
	return s.store.Get(ctx, id)
}

// List returns jobs matching opts.
func (s *Service) List(ctx context.Context, opts ...ListOption) ([]*Job, error) {
	if s.store == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "job store is not initialised")
	}
	return s.store.List(ctx, BuildListOptions(opts...))
}

// Stats aggregates jobs matching opts.
func (s *Service) Stats(ctx context.Context, opts ...ListOption) (Stats, error) {
	if s.store == nil {
		return Stats{}, xerrors.New(xerrors.CodeInitializationFailure, "job store is not initialised")
	}
	return s.store.Stats(ctx, BuildListOptions(opts...))
}

// WaitUntilCompleted polls until the job reaches a final state or ctx
// ends.
func (s *Service) WaitUntilCompleted(ctx context.Context, id string, interval time.Duration) (*Job, error) {
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}
		if job.Status == StatusSucceeded || (job.Status == StatusFailed && job.Attempts >= job.MaxRetries) {
			return job, nil
		}
		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close releases the store and the producer.
func (s *Service) Close() error {
	var errs []error
	if s.store != nil {
		errs = append(errs, s.store.Close())
	}
	if s.producer != nil {
		errs = append(errs, s.producer.Close())
	}
	return stdErrors.Join(errs...)
}
