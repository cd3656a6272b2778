// Package planner turns a (dataset, sampling) description into the
// ordered work-item/load-entry pair lists the rest of the engine runs
// over.
package planner

import (
	"github.com/google/uuid"

	"github.com/e7canasta/videobatch/internal/enginerr"
	"github.com/e7canasta/videobatch/internal/evaluator"
	"github.com/e7canasta/videobatch/internal/model"
)

// VideoSpec is one video's entry in the dataset descriptor: its index
// (stable identity used by WorkItem.VideoIndex) and the sampling-mode
// parameters that apply to it.
type VideoSpec struct {
	VideoIndex int
	Frames int

	// Gather/SequenceGather only.
	Points []int
	Intervals []model.Interval

	// Strided only.
	Stride int
}

// Plan is the planner's output: parallel WorkItem/LoadEntry vectors plus
// the warmup size computed across the evaluator chain.
//
// RunID is a fresh random UUID for each NewPlan call. Nothing in the
// engine attaches it to log lines or metrics, and every node that builds
// its own plan gets a different one.
type Plan struct {
	RunID string
	Items []model.WorkItem
	Entries []model.LoadEntry
	WarmupSize int
}

// streamCounter hands out distinct stream IDs so SequenceGather
// boundaries (and, defensively, every video) get their own identity.
type streamCounter struct{ next int64 }

func (c *streamCounter) next_() int64 {
	c.next++
	return c.next
}

// NewPlan builds the full work-item/load-entry sequence for a dataset
// under one sampling mode, plus the chain's warmup size.
func NewPlan(mode model.SamplingMode, videos []VideoSpec, w int, factories []evaluator.Factory) (Plan, error) {
	if w <= 0 {
		return Plan{}, enginerr.CorruptMetadataf("planner: work-item size W must be > 0, got %d", w)
	}

	plan := Plan{RunID: uuid.NewString()}
	sc := &streamCounter{}

	for _, v := range videos {
		switch mode {
		case model.SamplingAll:
			planAll(&plan, v, w, sc)
		case model.SamplingStrided:
			if v.Stride < 1 {
				return Plan{}, enginerr.CorruptMetadataf("planner: strided sampling requires stride >= 1, got %d", v.Stride)
			}
			planStrided(&plan, v, w, sc)
		case model.SamplingGather:
			planGather(&plan, v, w, sc)
		case model.SamplingSequenceGather:
			planSequenceGather(&plan, v, w, sc)
		default:
			return Plan{}, enginerr.CorruptMetadataf("planner: unknown sampling mode %v", mode)
		}
	}

	plan.WarmupSize = maxWarmupSize(factories)
	return plan, nil
}

func maxWarmupSize(factories []evaluator.Factory) int {
	max := 0
	for _, f := range factories {
		if ws := f.Capabilities().WarmupSize; ws > max {
			max = ws
		}
	}
	return max
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}

// planAll: one item per ceil(frames/W) chunk, rows_from_start = k*W.
func planAll(plan *Plan, v VideoSpec, w int, sc *streamCounter) {
	stream := sc.next_()
	n := ceilDiv(v.Frames, w)
	for k := 0; k < n; k++ {
		start := k * w
		end := start + w
		if end > v.Frames {
			end = v.Frames
		}
		plan.Items = append(plan.Items, model.WorkItem{
				Index: len(plan.Items),
				VideoIndex: v.VideoIndex,
				ItemID: stream,
				NextItemID: stream,
				RowsFromStart: start,
		})
		plan.Entries = append(plan.Entries, model.LoadEntry{
				Mode: model.SamplingAll,
				Interval: model.Interval{Start: start, End: end},
		})
	}
}

// planStrided: chunk granularity is W*stride input frames -> W output
// frames; the final chunk may be shorter.
func planStrided(plan *Plan, v VideoSpec, w int, sc *streamCounter) {
	stream := sc.next_()
	chunkInput := w * v.Stride
	outputsSoFar := 0
	for start := 0; start < v.Frames; start += chunkInput {
		end := start + chunkInput
		if end > v.Frames {
			end = v.Frames
		}
		plan.Items = append(plan.Items, model.WorkItem{
				Index: len(plan.Items),
				VideoIndex: v.VideoIndex,
				ItemID: stream,
				NextItemID: stream,
				RowsFromStart: outputsSoFar,
		})
		plan.Entries = append(plan.Entries, model.LoadEntry{
				Mode: model.SamplingStrided,
				Interval: model.Interval{Start: start, End: end},
				Stride: v.Stride,
		})
		outputsSoFar += (end - start) / v.Stride
	}
}

// planGather: chunk the points list into runs of <= W points.
func planGather(plan *Plan, v VideoSpec, w int, sc *streamCounter) {
	stream := sc.next_()
	rowsSoFar := 0
	for i := 0; i < len(v.Points); i += w {
		end := i + w
		if end > len(v.Points) {
			end = len(v.Points)
		}
		chunk := append([]int(nil), v.Points[i:end]...)
		plan.Items = append(plan.Items, model.WorkItem{
				Index: len(plan.Items),
				VideoIndex: v.VideoIndex,
				ItemID: stream,
				NextItemID: stream,
				RowsFromStart: rowsSoFar,
		})
		plan.Entries = append(plan.Entries, model.LoadEntry{
				Mode: model.SamplingGather,
				Points: chunk,
		})
		rowsSoFar += len(chunk)
	}
}

// planSequenceGather: chunk each interval independently; the last item
// emitted for a given source interval forces a reset at the next item.
func planSequenceGather(plan *Plan, v VideoSpec, w int, sc *streamCounter) {
	for _, iv := range v.Intervals {
		stream := sc.next_()
		rowsSoFar := 0
		n := ceilDiv(iv.Len(), w)
		for k := 0; k < n; k++ {
			start := iv.Start + k*w
			end := start + w
			if end > iv.End {
				end = iv.End
			}

			nextID := stream
			if k == n-1 {
				// Last chunk of this source interval: force a reset at
				// whatever work item comes next, even within the same video.
				nextID = model.SentinelNextItemID
			}

			plan.Items = append(plan.Items, model.WorkItem{
					Index: len(plan.Items),
					VideoIndex: v.VideoIndex,
					ItemID: stream,
					NextItemID: nextID,
					RowsFromStart: rowsSoFar,
			})
			plan.Entries = append(plan.Entries, model.LoadEntry{
					Mode: model.SamplingSequenceGather,
					Intervals: []model.Interval{{Start: start, End: end}},
			})
			rowsSoFar += end - start
		}
	}
}

// OutputRows returns how many output rows a LoadEntry specifies,
// independent of warmup trimming.
func OutputRows(e model.LoadEntry) int {
	switch e.Mode {
	case model.SamplingAll:
		return e.Interval.Len()
	case model.SamplingStrided:
		if e.Stride <= 0 {
			return 0
		}
		return e.Interval.Len() / e.Stride
	case model.SamplingGather:
		return len(e.Points)
	case model.SamplingSequenceGather:
		total := 0
		for _, iv := range e.Intervals {
			total += iv.Len()
		}
		return total
	default:
		return 0
	}
}
