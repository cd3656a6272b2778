package planner

import (
	"testing"

	"github.com/e7canasta/videobatch/internal/model"
)

func TestPlanAllS1(t *testing.T) {
	videos := []VideoSpec{{VideoIndex: 0, Frames: 100}}
	plan, err := NewPlan(model.SamplingAll, videos, 30, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Items) != 4 {
		t.Fatalf("expected 4 work items, got %d", len(plan.Items))
	}
	want := []model.Interval{{Start: 0, End: 30}, {Start: 30, End: 60}, {Start: 60, End: 90}, {Start: 90, End: 100}}
	for i, iv := range want {
		if plan.Entries[i].Interval != iv {
			t.Errorf("item %d: expected interval %v, got %v", i, iv, plan.Entries[i].Interval)
		}
	}
	total := 0
	for _, e := range plan.Entries {
		total += OutputRows(e)
	}
	if total != 100 {
		t.Fatalf("expected 100 total output rows, got %d", total)
	}
	// No mid-video resets expected: every item shares the same stream.
	for i := 1; i < len(plan.Items); i++ {
		if plan.Items[i-1].NextItemID != plan.Items[i].ItemID {
			t.Errorf("item %d should continue item %d's stream without reset", i, i-1)
		}
	}
}

func TestPlanStridedS2(t *testing.T) {
	videos := []VideoSpec{{VideoIndex: 0, Frames: 100, Stride: 5}}
	plan, err := NewPlan(model.SamplingStrided, videos, 10, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Items) != 2 {
		t.Fatalf("expected 2 work items, got %d", len(plan.Items))
	}
	if plan.Entries[0].Interval != (model.Interval{Start: 0, End: 50}) {
		t.Errorf("item 0: expected interval [0,50), got %v", plan.Entries[0].Interval)
	}
	if OutputRows(plan.Entries[0]) != 10 {
		t.Errorf("item 0: expected 10 output rows, got %d", OutputRows(plan.Entries[0]))
	}
	if plan.Items[1].RowsFromStart != 10 {
		t.Errorf("item 1: expected rows_from_start=10, got %d", plan.Items[1].RowsFromStart)
	}
}

func TestPlanGatherS3(t *testing.T) {
	videos := []VideoSpec{{VideoIndex: 0, Points: []int{2, 7, 45, 47, 90}}}
	plan, err := NewPlan(model.SamplingGather, videos, 2, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Items) != 3 {
		t.Fatalf("expected 3 work items, got %d", len(plan.Items))
	}
	wantChunks := [][]int{{2, 7}, {45, 47}, {90}}
	for i, chunk := range wantChunks {
		got := plan.Entries[i].Points
		if len(got) != len(chunk) {
			t.Fatalf("item %d: expected %v, got %v", i, chunk, got)
		}
		for j := range chunk {
			if got[j] != chunk[j] {
				t.Fatalf("item %d: expected %v, got %v", i, chunk, got)
			}
		}
	}
}

func TestPlanSequenceGatherS4(t *testing.T) {
	videos := []VideoSpec{{
		VideoIndex: 0,
		Intervals:  []model.Interval{{Start: 0, End: 10}, {Start: 50, End: 60}},
	}}
	plan, err := NewPlan(model.SamplingSequenceGather, videos, 20, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(plan.Items) != 2 {
		t.Fatalf("expected 2 work items, got %d", len(plan.Items))
	}
	if plan.Items[0].NextItemID != model.SentinelNextItemID {
		t.Errorf("first item must force a reset at the next item, got NextItemID=%d", plan.Items[0].NextItemID)
	}
}

func TestPlanPartitionSoundness(t *testing.T) {
	// Property 1: union of output rows across all items equals frames, in order.
	videos := []VideoSpec{{VideoIndex: 0, Frames: 257}}
	plan, err := NewPlan(model.SamplingAll, videos, 64, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cursor := 0
	for _, e := range plan.Entries {
		if e.Interval.Start != cursor {
			t.Fatalf("expected contiguous coverage starting at %d, got %v", cursor, e.Interval)
		}
		cursor = e.Interval.End
	}
	if cursor != 257 {
		t.Fatalf("expected full coverage up to 257, got %d", cursor)
	}
}

func TestPlanRejectsZeroWorkItemSize(t *testing.T) {
	_, err := NewPlan(model.SamplingAll, []VideoSpec{{VideoIndex: 0, Frames: 10}}, 0, nil)
	if err == nil {
		t.Fatal("expected error for W=0")
	}
}
