// Package queue implements the queue-publish node executor, pushing a
// payload onto a Redis stream for downstream consumers.
package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/flowlet-io/flowlet/pkg/models"
	"github.com/flowlet-io/flowlet/pkg/protocol"
	"github.com/flowlet-io/flowlet/pkg/template"
)

const publishTimeout = 10 * time.Second

// Executor publishes the rendered payload to a Redis stream.
type Executor struct {
	Stream  string
	Payload string

	client redis.UniversalClient
}

func NewExecutor(config map[string]any, client redis.UniversalClient) *Executor {
	stream, _ := config["stream"].(string)
	payload, _ := config["payload"].(string)

	return &Executor{
		Stream:  stream,
		Payload: payload,
		client:  client,
	}
}

func (e *Executor) Execute(ctx context.Context, executionCtx *models.ExecutionContext, logger *slog.Logger) (any, error) {
	logger = logger.With("executor", "queue", "stream", e.Stream)

	if e.Stream == "" {
		return nil, protocol.NewValidationError("stream")
	}

	payload := e.Payload
	if payload == "" {
		encoded, err := json.Marshal(executionCtx.NodeOutputs)
		if err != nil {
			return nil, protocol.NewUpstreamError("failed to encode payload", err)
		}

		payload = string(encoded)
	} else {
		rendered, err := template.RenderString(payload, executionCtx)
		if err == nil {
			payload = rendered
		}
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	logger.Info("Publishing to queue")

	id, err := e.client.XAdd(pubCtx, &redis.XAddArgs{
		Stream: e.Stream,
		Values: map[string]any{
			"workflow_id": executionCtx.WorkflowID,
			"run_id":      executionCtx.RunID,
			"payload":     payload,
		},
	}).Result()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, protocol.NewTimeoutError("queue publish timed out")
		}

		return nil, protocol.NewUpstreamError("queue publish failed", err)
	}

	logger.Info("Published to queue", "message_id", id)

	return map[string]any{
		"stream":     e.Stream,
		"message_id": id,
	}, nil
}
