package shutdown

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"
)

func TestDrainRunsStagesInOrder(t *testing.T) {
	var order []string

	mkStage := func(name string) Stage {
		return Stage{
			Name:          name,
			PushSentinels: func() { order = append(order, "signal:"+name) },
			Join: func(ctx context.Context) error {
				order = append(order, "join:"+name)
				return nil
			},
		}
	}

	o := &Orchestrator{
		Stages: []Stage{mkStage("load"), mkStage("evaluate"), mkStage("save")},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if err := o.Drain(context.Background()); err != nil {
		t.Fatalf("Drain: %v", err)
	}

	want := []string{"signal:load", "join:load", "signal:evaluate", "join:evaluate", "signal:save", "join:save"}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestDrainStopsAtFirstFailingStage(t *testing.T) {
	var reached []string

	failing := Stage{
		Name:          "load",
		PushSentinels: func() {},
		Join: func(ctx context.Context) error {
			return context.DeadlineExceeded
		},
	}
	never := Stage{
		Name:          "evaluate",
		PushSentinels: func() { reached = append(reached, "evaluate") },
		Join:          func(ctx context.Context) error { return nil },
	}

	o := &Orchestrator{
		Stages: []Stage{failing, never},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	if err := o.Drain(context.Background()); err == nil {
		t.Fatal("expected Drain to return the failing stage's error")
	}
	if len(reached) != 0 {
		t.Fatal("expected the second stage never to be signaled after the first stage failed to join")
	}
}

func TestDrainRespectsJoinTimeout(t *testing.T) {
	slow := Stage{
		Name:          "save",
		PushSentinels: func() {},
		Join: func(ctx context.Context) error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	}

	o := &Orchestrator{Stages: []Stage{slow}, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := o.Drain(ctx); err == nil {
		t.Fatal("expected Drain to surface the join timeout")
	}
}
