package cluster

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestCounters(t *testing.T) *Counters {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	return NewCounters(client, "job1")
}

func TestCountersSnapshotStartsAtZero(t *testing.T) {
	c := newTestCounters(t)
	accepted, retired, err := c.Snapshot(context.Background())
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if accepted != 0 || retired != 0 {
		t.Fatalf("expected (0,0), got (%d,%d)", accepted, retired)
	}
}

func TestCountersIncrAndSnapshot(t *testing.T) {
	c := newTestCounters(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if err := c.IncrAccepted(ctx); err != nil {
			t.Fatalf("IncrAccepted: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		if err := c.IncrRetired(ctx); err != nil {
			t.Fatalf("IncrRetired: %v", err)
		}
	}

	accepted, retired, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if accepted != 5 || retired != 2 {
		t.Fatalf("expected (5,2), got (%d,%d)", accepted, retired)
	}

	gate := BacklogGate{PUsPerNode: 2, TasksInQueuePerPU: 2}
	if !gate.Admits(accepted, retired) {
		t.Fatal("expected gate to admit with 3 in flight against capacity 4")
	}
}

func TestCountersAddAcceptedAndAddRetired(t *testing.T) {
	c := newTestCounters(t)
	ctx := context.Background()

	if err := c.AddAccepted(ctx, 7); err != nil {
		t.Fatalf("AddAccepted: %v", err)
	}
	if err := c.AddRetired(ctx, 4); err != nil {
		t.Fatalf("AddRetired: %v", err)
	}
	if err := c.AddAccepted(ctx, 0); err != nil {
		t.Fatalf("AddAccepted(0): %v", err)
	}

	accepted, retired, err := c.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if accepted != 7 || retired != 4 {
		t.Fatalf("expected (7,4), got (%d,%d)", accepted, retired)
	}
}

func TestCountersNamespacedByJob(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	ctx := context.Background()

	a := NewCounters(client, "job-a")
	b := NewCounters(client, "job-b")

	if err := a.IncrAccepted(ctx); err != nil {
		t.Fatalf("IncrAccepted: %v", err)
	}

	accepted, _, err := b.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
	if accepted != 0 {
		t.Fatalf("expected job-b's counters to be unaffected by job-a, got accepted=%d", accepted)
	}
}
