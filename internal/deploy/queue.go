package deploy

import "context"

// Handler processes a job ID taken from a queue.
type Handler func(ctx context.Context, jobID string) error

// Producer publishes job IDs.
type Producer interface {
	Publish(ctx context.Context, jobID string) error
	Close() error
}

// Consumer delivers job IDs to a handler from workerCount goroutines until
// ctx is cancelled.
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue is both a producer and a consumer.
type Queue interface {
	Producer
	Consumer
}
