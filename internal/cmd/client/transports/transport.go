// Package transports provides pluggable transport implementations for the CLI.
package transports

import (
	"context"

	apiv1 "github.com/rzbill/shardq/api/v1"
)

// QueueTransport abstracts how the CLI reaches a shardq node.
type QueueTransport interface {
	Health(ctx context.Context) error
	CreateQueue(ctx context.Context, req apiv1.CreateQueueRequest) (apiv1.QueueInfo, error)
	QueueInfo(ctx context.Context, queue string) (apiv1.QueueInfo, error)
	Enqueue(ctx context.Context, req apiv1.EnqueueRequest) (apiv1.EnqueueResponse, error)
	Read(ctx context.Context, req apiv1.ReadRequest) ([]apiv1.Message, error)
	Peek(ctx context.Context, queue string, limit int) ([]apiv1.Message, error)
	Ack(ctx context.Context, req apiv1.AckRequest) error
	Poison(ctx context.Context, req apiv1.AckRequest) error
	ListPoison(ctx context.Context, queue string, limit int) ([]apiv1.Message, error)
	Delete(ctx context.Context, queue, id string) error
}
