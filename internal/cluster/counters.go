package cluster

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// Counters tracks the cluster-wide accepted/retired totals the
// BacklogGate needs: per-node counters alone would undercount a
// backlog that spans multiple nodes.
type Counters struct {
	client *redis.Client
	prefix string
}

// NewCounters builds a Counters backed by client, namespacing its keys
// under jobID so multiple jobs can share one Redis instance.
func NewCounters(client *redis.Client, jobID string) *Counters {
	return &Counters{client: client, prefix: fmt.Sprintf("videobatch:%s:", jobID)}
}

func (c *Counters) key(name string) string { return c.prefix + name }

// IncrAccepted records that the cluster accepted one more work item.
func (c *Counters) IncrAccepted(ctx context.Context) error {
	return c.client.Incr(ctx, c.key("accepted")).Err()
}

// IncrRetired records that the cluster fully persisted one more work item.
func (c *Counters) IncrRetired(ctx context.Context) error {
	return c.client.Incr(ctx, c.key("retired")).Err()
}

// AddAccepted folds n additional accepted items into the cluster total
// in one round trip, for a node reconciling its local counter on an
// interval rather than incrementing per item.
func (c *Counters) AddAccepted(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	return c.client.IncrBy(ctx, c.key("accepted"), n).Err()
}

// AddRetired is AddAccepted's counterpart for the retired total.
func (c *Counters) AddRetired(ctx context.Context, n int64) error {
	if n <= 0 {
		return nil
	}
	return c.client.IncrBy(ctx, c.key("retired"), n).Err()
}

// Snapshot reads the current accepted/retired totals.
func (c *Counters) Snapshot(ctx context.Context) (accepted, retired int64, err error) {
	accepted, err = c.client.Get(ctx, c.key("accepted")).Int64()
	if err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("cluster: reading accepted counter: %w", err)
	}
	retired, err = c.client.Get(ctx, c.key("retired")).Int64()
	if err != nil && err != redis.Nil {
		return accepted, 0, fmt.Errorf("cluster: reading retired counter: %w", err)
	}
	return accepted, retired, nil
}
