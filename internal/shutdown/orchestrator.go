// Package shutdown drives the engine's strict-ordering drain sequence:
// each pipeline stage is told to stop, and fully joins, before the
// next stage downstream is told to stop. This guarantees no stage is
// asked to drain while its upstream might still feed it.
package shutdown

import (
	"context"
	"log/slog"
)

// Stage is one joinable group of worker goroutines. PushSentinels must
// push exactly one shutdown sentinel per worker onto this stage's input
// queue — the closure lets the caller capture the queue's concrete
// element type (load.Job, model.EvalEntry,...) without this package
// needing to know it. Join blocks until every worker in the stage has
// returned.
type Stage struct {
	Name string
	PushSentinels func()
	Join func(ctx context.Context) error
}

// Orchestrator runs Stages in order, signaling and joining each before
// moving to the next.
type Orchestrator struct {
	Stages []Stage
	Logger *slog.Logger
}

// Drain executes the shutdown sequence. It stops at the first stage
// whose Join returns an error, since a stage that didn't join cleanly
// leaves its downstream queue in an unknown state.
func (o *Orchestrator) Drain(ctx context.Context) error {
	for _, s := range o.Stages {
		o.Logger.Info("shutdown: draining stage", "stage", s.Name)
		s.PushSentinels()

		if err := s.Join(ctx); err != nil {
			o.Logger.Error("shutdown: stage failed to join", "stage", s.Name, "error", err)
			return err
		}
		o.Logger.Info("shutdown: stage drained", "stage", s.Name)
	}
	return nil
}
