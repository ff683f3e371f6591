package deploy

import (
	"context"

	xerrors "ChainDeploy/internal/errors"
)

// Store persists deployment jobs.
type Store interface {
	Create(ctx context.Context, job *Job) error
	Get(ctx context.Context, id string) (*Job, error)
	// Claim moves a pending or failed job to running and counts the attempt.
	Claim(ctx context.Context, id string) (*Job, error)
	MarkSucceeded(ctx context.Context, id string, result Result) error
	// MarkFailed records a failure. A terminal failure also exhausts the
	// job's remaining attempts so it is never claimed again.
	MarkFailed(ctx context.Context, id string, code xerrors.Code, lastError string, terminal bool) error
	// RecordTransaction keeps what is known about a sent transaction on a
	// job whose deployment did not complete.
	RecordTransaction(ctx context.Context, id string, result Result) error
	List(ctx context.Context, opts ListOptions) ([]*Job, error)
	Stats(ctx context.Context, opts ListOptions) (Stats, error)
	Close() error
}

// Stats aggregates job counts for dashboards and health checks.
type Stats struct {
	Total           int   `json:"total"`
	Pending         int   `json:"pending"`
	Running         int   `json:"running"`
	Succeeded       int   `json:"succeeded"`
	Failed          int   `json:"failed"`
	OldestUpdatedAt int64 `json:"oldest_updated_at,omitempty"`
	NewestUpdatedAt int64 `json:"newest_updated_at,omitempty"`
}
