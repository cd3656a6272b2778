package cluster

import "testing"

func TestBacklogGateAdmitsUnderCapacity(t *testing.T) {
	gate := BacklogGate{PUsPerNode: 4, TasksInQueuePerPU: 2}
	if !gate.Admits(5, 2) { // 3 in flight, capacity 8
		t.Fatal("expected gate to admit when in-flight count is under capacity")
	}
}

func TestBacklogGateRefusesAtCapacity(t *testing.T) {
	gate := BacklogGate{PUsPerNode: 4, TasksInQueuePerPU: 2}
	if gate.Admits(10, 2) { // 8 in flight, capacity 8
		t.Fatal("expected gate to refuse once in-flight count reaches capacity")
	}
}

func TestBacklogGateAdmitsWhenFullyDrained(t *testing.T) {
	gate := BacklogGate{PUsPerNode: 1, TasksInQueuePerPU: 1}
	if !gate.Admits(100, 100) {
		t.Fatal("expected gate to admit when accepted equals retired")
	}
}

// TestDispatcherRoundTrip stands in for a round trip through the real
// asynq client/inspector against Redis. It always skips: it has no
// assertions and does not check whether a Redis instance is reachable.
func TestDispatcherRoundTrip(t *testing.T) {
	t.Skip("requires a running Redis instance; asynq's Lua-script-based queue operations are not exercised in this offline test run")
}
