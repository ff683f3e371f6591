package deploy

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	xerrors "ChainDeploy/internal/errors"
)

type fakeExecutor struct {
	processed atomic.Int32
	latency   time.Duration

	mu       sync.Mutex
	failures map[string][]error
}

func (f *fakeExecutor) Execute(ctx context.Context, job *Job) (*Result, error) {
	if f.latency > 0 {
		select {
		case <-time.After(f.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	if queued := f.failures[job.ID]; len(queued) > 0 {
		err := queued[0]
		f.failures[job.ID] = queued[1:]
		f.mu.Unlock()
		return nil, err
	}
	f.mu.Unlock()
	f.processed.Add(1)
	return &Result{Address: "0xcontract", TxHash: "0x" + job.ID}, nil
}

func startProcessor(t *testing.T, processor *Processor) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := processor.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("processor exited: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestProcessorHandlesConcurrentJobs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(1024)
	executor := &fakeExecutor{latency: 5 * time.Millisecond}

	service := NewService(store, queue, defaultNetworks(t), 3)
	startProcessor(t, NewProcessor(executor, store, queue, queue, WithWorkerCount(8)))

	const total = 100
	for i := 0; i < total; i++ {
		if _, err := service.Submit(ctx, Request{Network: "development", Bytecode: simpleContractBin}); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	waitFor(t, 5*time.Second, func() bool { return int(executor.processed.Load()) >= total })
	waitFor(t, time.Second, func() bool {
		stats, _ := service.Stats(ctx)
		return stats.Succeeded == total
	})
}

func TestProcessorRetriesRetryableFailures(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{failures: map[string][]error{
		"flaky": {xerrors.New(xerrors.CodeProviderFailure, "dial timeout"), errors.New("connection reset")},
	}}

	service := NewService(store, queue, defaultNetworks(t), 3)
	startProcessor(t, NewProcessor(executor, store, queue, queue))

	if _, err := service.Submit(ctx, Request{ID: "flaky", Network: "ropsten", Bytecode: simpleContractBin}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	job, err := service.WaitUntilCompleted(waitCtx, "flaky", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if job.Status != StatusSucceeded || job.Attempts != 3 {
		t.Fatalf("expected success on third attempt, got %+v", job)
	}
	if job.Result == nil || job.Result.TxHash != "0xflaky" {
		t.Fatalf("unexpected result %+v", job.Result)
	}
}

func TestProcessorStopsOnNonRetryableFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	executor := &fakeExecutor{failures: map[string][]error{
		"nosigner": {xerrors.New(xerrors.CodeNoSigner, "provider was built without a mnemonic")},
	}}

	service := NewService(store, queue, defaultNetworks(t), 3)
	startProcessor(t, NewProcessor(executor, store, queue, queue))

	if _, err := service.Submit(ctx, Request{ID: "nosigner", Network: "mainnet", Bytecode: simpleContractBin}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	job, err := service.WaitUntilCompleted(waitCtx, "nosigner", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if job.Status != StatusFailed || job.Attempts != 1 || job.ErrorCode != string(xerrors.CodeNoSigner) {
		t.Fatalf("expected one terminal attempt, got %+v", job)
	}
}

func TestProcessorGivesUpAfterMaxRetries(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(16)
	failure := xerrors.New(xerrors.CodeProviderFailure, "infura unavailable")
	executor := &fakeExecutor{failures: map[string][]error{"down": {failure, failure, failure}}}

	service := NewService(store, queue, defaultNetworks(t), 2)
	startProcessor(t, NewProcessor(executor, store, queue, queue))

	if _, err := service.Submit(ctx, Request{ID: "down", Network: "ropsten", Bytecode: simpleContractBin}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	job, err := service.WaitUntilCompleted(waitCtx, "down", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if job.Status != StatusFailed || job.Attempts != 2 {
		t.Fatalf("expected two failed attempts, got %+v", job)
	}
	if executor.processed.Load() != 0 {
		t.Fatal("executor should never have succeeded")
	}
}

// unconfirmedExecutor sends the transaction but fails before the receipt.
type unconfirmedExecutor struct{}

func (unconfirmedExecutor) Execute(_ context.Context, job *Job) (*Result, error) {
	return &Result{TxHash: "0xsent-" + job.ID, ChainID: "3"},
		xerrors.New(CodeJobProcessing, "wait for receipt", xerrors.WithRetryable(false))
}

func TestProcessorKeepsTxHashOfUnconfirmedDeployment(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)

	service := NewService(store, queue, defaultNetworks(t), 3)
	startProcessor(t, NewProcessor(unconfirmedExecutor{}, store, queue, queue))

	if _, err := service.Submit(ctx, Request{ID: "slow", Network: "ropsten", Bytecode: simpleContractBin}); err != nil {
		t.Fatalf("submit: %v", err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	job, err := service.WaitUntilCompleted(waitCtx, "slow", 20*time.Millisecond)
	if err != nil {
		t.Fatalf("wait: %v", err)
	}
	if job.Status != StatusFailed || job.Attempts != 1 {
		t.Fatalf("expected one terminal attempt, got %+v", job)
	}
	if job.Result == nil || job.Result.TxHash != "0xsent-slow" || job.Result.Address != "" {
		t.Fatalf("expected the sent transaction on the failed job, got %+v", job.Result)
	}
}

func TestProcessorSkipsJobAlreadyRunning(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Create(ctx, &Job{ID: "busy", Status: StatusPending, MaxRetries: 3}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := store.Claim(ctx, "busy"); err != nil {
		t.Fatalf("claim: %v", err)
	}

	executor := &fakeExecutor{}
	processor := NewProcessor(executor, store, nil, nil)
	if err := processor.Process(ctx, "busy"); err != nil {
		t.Fatalf("duplicate delivery should be dropped, got %v", err)
	}
	if executor.processed.Load() != 0 {
		t.Fatal("a running job must not execute twice")
	}
	job, err := store.Get(ctx, "busy")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusRunning || job.Attempts != 1 {
		t.Fatalf("running job was modified: %+v", job)
	}
}
