package cluster

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

// EngineSubmitter is the local engine's work-item intake: accepting a
// work item index into the load queue, or, on the shutdown sentinel,
// starting this node's drain sequence.
type EngineSubmitter interface {
	Submit(ctx context.Context, workItemIndex int) error
}

// Handler adapts an EngineSubmitter into an asynq.Handler for the
// TypeWorkItem task type.
type Handler struct {
	Engine EngineSubmitter
}

// ProcessTask implements asynq.Handler.
func (h *Handler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var p TaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("cluster: unmarshal task payload: %w", err)
	}
	return h.Engine.Submit(ctx, p.WorkItemIndex)
}

// NewServer builds the asynq.Server a node runs to pull work items
// from queueName at up to concurrency tasks at a time.
func NewServer(redisAddr, queueName string, concurrency int) *asynq.Server {
	return asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{queueName: 1},
		},
	)
}

// Mux registers h against TypeWorkItem on a fresh ServeMux, ready to
// hand to an *asynq.Server's Run method.
func Mux(h *Handler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeWorkItem, h.ProcessTask)
	return mux
}
