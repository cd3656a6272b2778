// Package cluster implements work-stealing dispatch across engine
// nodes: a master enqueues one task per work item plus
// a shutdown sentinel per node once the dataset is exhausted, and each
// node's asynq server pulls tasks at its own pace. Grounded on
// ethpandaops-cbt's pkg/tasks (asynq.Client/asynq.Server over
// redis/go-redis).
package cluster

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/e7canasta/videobatch/internal/model"
)

// TypeWorkItem is the asynq task type every dispatched work item uses.
const TypeWorkItem = "videobatch:work_item"

// TaskPayload is the body of one dispatched task. WorkItemIndex ==
// model.SentinelWorkItemIndex is the shutdown signal: the receiving
// node's engine should stop pulling and drain.
type TaskPayload struct {
	WorkItemIndex int `json:"work_item_index"`
}

// Dispatcher is the master side: it enqueues work items into asynq's
// Redis-backed queue. It does no pacing of its own; the caller consults
// a BacklogGate before each Dispatch.
type Dispatcher struct {
	client *asynq.Client
	inspector *asynq.Inspector
	queueName string
}

// NewDispatcher connects to redisAddr and dispatches into queueName.
func NewDispatcher(redisAddr, queueName string) *Dispatcher {
	opt := asynq.RedisClientOpt{Addr: redisAddr}
	return &Dispatcher{
		client: asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queueName: queueName,
	}
}

// Dispatch enqueues one work item for pickup by any node's workers.
func (d *Dispatcher) Dispatch(workItemIndex int) error {
	data, err := json.Marshal(TaskPayload{WorkItemIndex: workItemIndex})
	if err != nil {
		return fmt.Errorf("cluster: marshal task payload: %w", err)
	}
	task := asynq.NewTask(TypeWorkItem, data)
	_, err = d.client.Enqueue(task,
		asynq.Queue(d.queueName),
		asynq.MaxRetry(3),
		asynq.Timeout(10*time.Minute),
	)
	return err
}

// DispatchShutdown enqueues the sentinel task that tells one node's
// local pull loop to stop.
func (d *Dispatcher) DispatchShutdown() error {
	return d.Dispatch(model.SentinelWorkItemIndex)
}

// QueueDepth reports how many tasks are pending or currently running in
// this dispatcher's queue. BacklogGate does not use it; the gate works
// from accepted/retired counts alone.
func (d *Dispatcher) QueueDepth() (int, error) {
	info, err := d.inspector.GetQueueInfo(d.queueName)
	if err != nil {
		return 0, fmt.Errorf("cluster: queue info: %w", err)
	}
	return info.Pending + info.Active, nil
}

// Close releases the dispatcher's Redis connections.
func (d *Dispatcher) Close() error {
	d.inspector.Close()
	return d.client.Close()
}

// BacklogGate is the admission check a master consults before
// dispatching another work item: it refuses once the
// cluster's in-flight item count reaches its configured capacity, so a
// slow or stalled node can't be handed unbounded work.
type BacklogGate struct {
	PUsPerNode int
	TasksInQueuePerPU int
}

// Admits reports whether another item may be dispatched, given how
// many items the cluster has accepted vs. how many it has retired.
func (g BacklogGate) Admits(accepted, retired int64) bool {
	capacity := int64(g.PUsPerNode * g.TasksInQueuePerPU)
	return accepted-retired < capacity
}
