package errors

import (
	stdErrors "errors"
	"fmt"
	"testing"
)

func TestWrapPreservesCodeThroughChain(t *testing.T) {
	cause := stdErrors.New("dial tcp: connection refused")
	err := fmt.Errorf("open ropsten: %w", Wrap(CodeProviderFailure, cause, "construct provider"))

	if got := CodeOf(err); got != CodeProviderFailure {
		t.Fatalf("unexpected code %s", got)
	}
	if !RetryableError(err) {
		t.Fatal("provider failures should be retryable")
	}
	if !stdErrors.Is(err, cause) {
		t.Fatal("expected cause to be reachable")
	}
	if !stdErrors.Is(err, New(CodeProviderFailure, "")) {
		t.Fatal("expected errors.Is to match by code")
	}
}

func TestOptionsOverrideDefaults(t *testing.T) {
	err := New(CodeUnknownNetwork, "", WithRetryable(true), WithSeverity(SeverityCritical), WithMetadata("network", "kovan"))

	if err.Message() != "unknown network" {
		t.Fatalf("expected default message, got %q", err.Message())
	}
	if !err.Retryable() {
		t.Fatal("expected retryable override")
	}
	if err.Severity() != SeverityCritical {
		t.Fatalf("unexpected severity %s", err.Severity())
	}
	if err.Metadata()["network"] != "kovan" {
		t.Fatalf("unexpected metadata %+v", err.Metadata())
	}
}

func TestUnregisteredCodeFallsBackToUnknown(t *testing.T) {
	err := New(Code("NOPE"), "")
	if err.Severity() != SeverityCritical {
		t.Fatalf("expected fallback severity, got %s", err.Severity())
	}
	if CodeOf(stdErrors.New("plain")) != CodeUnknown {
		t.Fatal("plain errors should map to UNKNOWN")
	}
}
