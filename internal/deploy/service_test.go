package deploy

import (
	"context"
	"errors"
	"testing"

	xerrors "ChainDeploy/internal/errors"
)

type failingProducer struct{}

func (failingProducer) Publish(context.Context, string) error { return errors.New("broker down") }
func (failingProducer) Close() error                          { return nil }

func TestServiceSubmitQueuesJob(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	queue := NewMemoryQueue(4)
	service := NewService(store, queue, defaultNetworks(t), 0)

	job, err := service.Submit(ctx, Request{Network: "development", Contract: "Emitter", ABI: simpleContractABI, Bytecode: simpleContractBin})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if job.ID == "" || job.Status != StatusPending || job.MaxRetries != 3 {
		t.Fatalf("unexpected job %+v", job)
	}
	if queue.Len() != 1 {
		t.Fatalf("expected one queued id, got %d", queue.Len())
	}

	again, err := service.Submit(ctx, Request{ID: job.ID, Network: "mainnet"})
	if err != nil {
		t.Fatalf("idempotent submit: %v", err)
	}
	if again.Network != "development" || queue.Len() != 1 {
		t.Fatalf("resubmission should return the stored job, got %+v", again)
	}

	listed, err := service.List(ctx, WithNetwork("development"))
	if err != nil || len(listed) != 1 {
		t.Fatalf("list: %v %+v", err, listed)
	}
}

func TestServiceSubmitRejectsUnknownNetwork(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(1), defaultNetworks(t), 1)

	_, err := service.Submit(context.Background(), Request{Network: "kovan", Bytecode: simpleContractBin})
	if !xerrors.HasCode(err, xerrors.CodeUnknownNetwork) {
		t.Fatalf("expected UNKNOWN_NETWORK, got %v", err)
	}
}

func TestServiceSubmitValidatesRequest(t *testing.T) {
	service := NewService(NewMemoryStore(), NewMemoryQueue(1), defaultNetworks(t), 1)
	ctx := context.Background()

	cases := map[string]Request{
		"no network":    {Bytecode: simpleContractBin},
		"no bytecode":   {Network: "development"},
		"bad abi":       {Network: "development", Bytecode: simpleContractBin, ABI: "{"},
		"bad from":      {Network: "development", Bytecode: simpleContractBin, From: "me"},
		"too many args": {Network: "development", Bytecode: simpleContractBin, Args: []string{"1"}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := service.Submit(ctx, req)
			if err == nil {
				t.Fatal("expected validation error")
			}
			code := xerrors.CodeOf(err)
			if code != CodeJobValidation && code != xerrors.CodeInvalidArgument {
				t.Fatalf("unexpected code %s: %v", code, err)
			}
		})
	}
}

func TestServiceSubmitPublishFailureMarksJobFailed(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	service := NewService(store, failingProducer{}, defaultNetworks(t), 3)

	_, err := service.Submit(ctx, Request{ID: "fixed", Network: "development", Bytecode: simpleContractBin})
	if !xerrors.HasCode(err, CodeJobPublish) {
		t.Fatalf("expected publish failure, got %v", err)
	}

	job, err := store.Get(ctx, "fixed")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if job.Status != StatusFailed || job.ErrorCode != string(CodeJobPublish) {
		t.Fatalf("unexpected job %+v", job)
	}
	if _, err := store.Claim(ctx, "fixed"); !IsJobError(err, CodeJobExhausted) {
		t.Fatalf("publish failures should be terminal, got %v", err)
	}
}

func TestServiceNotInitialised(t *testing.T) {
	_, err := (&Service{}).Submit(context.Background(), Request{})
	if !xerrors.HasCode(err, xerrors.CodeInitializationFailure) {
		t.Fatalf("expected initialisation failure, got %v", err)
	}
}
