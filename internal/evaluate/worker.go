// Package evaluate implements the Evaluate stage: per-group evaluator
// chains driven by configure/reset bookkeeping, device-aware
// micro-batching, and terminal-group warmup trimming.
package evaluate

import (
	"context"
	"log/slog"

	"github.com/e7canasta/videobatch/internal/enginerr"
	"github.com/e7canasta/videobatch/internal/evaluator"
	"github.com/e7canasta/videobatch/internal/group"
	"github.com/e7canasta/videobatch/internal/metrics"
	"github.com/e7canasta/videobatch/internal/model"
	"github.com/e7canasta/videobatch/internal/queue"
)

// VideoResolver maps a video's stable index to the metadata its
// evaluators need to Configure against.
type VideoResolver interface {
	Metadata(ctx context.Context, videoIndex int) (model.VideoMetadata, error)
}

type evalUnit struct {
	factory evaluator.Factory
	eval evaluator.Evaluator
}

// Worker runs one thread-group's slice of the evaluator chain: its own
// live Evaluator instances, its own configure/reset state machine, and
// — only when isTerminal is true — the warmup-discard bookkeeping.
type Worker struct {
	id int
	units []evalUnit
	isTerminal bool
	resolver VideoResolver
	alloc evaluator.Allocator
	batchSize int
	warmupSize int
	logger *slog.Logger
	metrics *metrics.Registry

	// stream state, valid across successive incoming entries
	configuredVideo int
	haveConfigured bool
	prevForcesReset bool

	// terminal-only warmup bookkeeping, reset on every Reset()
	currentInput int
}

// NewWorker instantiates one Evaluator per factory in grp and returns a
// Worker ready to run. cfgs must be parallel to grp.Factories.
// isTerminal marks the group holding the last evaluator in the overall
// chain, the only group that performs warmup discard.
func NewWorker(id int, grp group.Group, cfgs []evaluator.Config, isTerminal bool, resolver VideoResolver, alloc evaluator.Allocator, batchSize, warmupSize int, logger *slog.Logger, m *metrics.Registry) (*Worker, error) {
	if len(cfgs) != len(grp.Factories) {
		return nil, enginerr.CorruptMetadataf("evaluate: %d configs for %d factories", len(cfgs), len(grp.Factories))
	}
	units := make([]evalUnit, len(grp.Factories))
	for i, f := range grp.Factories {
		e, err := f.New(cfgs[i])
		if err != nil {
			return nil, enginerr.EvaluatorContractViolationf("evaluate: constructing evaluator %d: %v", grp.StartIndex+i, err)
		}
		units[i] = evalUnit{factory: f, eval: e}
	}
	return &Worker{
		id: id,
		units: units,
		isTerminal: isTerminal,
		resolver: resolver,
		alloc: alloc,
		batchSize: batchSize,
		warmupSize: warmupSize,
		logger: logger,
		metrics: m,
	}, nil
}

// Run pops entries from in until a sentinel arrives, forwarding
// transformed entries to out. Returns nil on clean shutdown, or the
// fatal error (evaluator contract violation, device OOM) that ended it.
//
// Run does not forward a sentinel to out itself: adjacent stages can
// have different worker counts, so fan-out at each boundary is the
// shutdown orchestrator's job, not something workers infer from each
// other.
func (w *Worker) Run(ctx context.Context, in *queue.Queue[model.EvalEntry], out *queue.Queue[model.EvalEntry]) error {
	for {
		entry := in.Pop()
		if entry.IsSentinel() {
			return nil
		}

		result, err := w.processEntry(ctx, entry)
		if err != nil {
			w.logger.Error("evaluate worker: fatal error", "worker", w.id, "work_item", entry.WorkItemIndex, "error", err)
			if w.metrics != nil {
				if e, ok := asEnginerr(err); ok {
					w.metrics.ErrorsByKind.WithLabelValues(e.Kind.String()).Inc()
				}
			}
			return err
		}
		out.Push(result)
	}
}

func asEnginerr(err error) (*enginerr.Error, bool) {
	e, ok := err.(*enginerr.Error)
	return e, ok
}

func (w *Worker) processEntry(ctx context.Context, entry model.EvalEntry) (model.EvalEntry, error) {
	needsConfigure := !w.haveConfigured || w.configuredVideo != entry.WorkItem.VideoIndex
	needsReset := needsConfigure || w.prevForcesReset

	if needsConfigure {
		meta, err := w.resolver.Metadata(ctx, entry.WorkItem.VideoIndex)
		if err != nil {
			return model.EvalEntry{}, enginerr.CorruptMetadataf("evaluate: metadata for video %d: %v", entry.WorkItem.VideoIndex, err)
		}
		for i, u := range w.units {
			if err := u.eval.Configure(meta); err != nil {
				return model.EvalEntry{}, enginerr.EvaluatorContractViolationf("evaluate: Configure evaluator %d: %v", i, err)
			}
		}
		w.configuredVideo = entry.WorkItem.VideoIndex
		w.haveConfigured = true
	}

	if needsReset {
		for i, u := range w.units {
			if err := u.eval.Reset(); err != nil {
				return model.EvalEntry{}, enginerr.EvaluatorContractViolationf("evaluate: Reset evaluator %d: %v", i, err)
			}
		}
		w.currentInput = 0
	}
	w.prevForcesReset = entry.WorkItem.ForcesReset()

	cols, err := w.runFirstEvaluatorIfDecoder(entry)
	if err != nil {
		return model.EvalEntry{}, err
	}

	remainingUnits := w.units
	if entry.VideoDecodeItem && len(w.units) > 0 {
		remainingUnits = w.units[1:]
	}

	outNames := entry.ColumnNames
	if len(w.units) > 0 {
		outNames = w.units[len(w.units)-1].eval.OutputNames()
	}

	var kept [][]model.Buffer
	total := colLen(cols)
	for start := 0; start < total; start += w.batchSize {
		end := start + w.batchSize
		if end > total {
			end = total
		}
		batch := sliceCols(cols, start, end)

		batch, err = runChain(remainingUnits, w.alloc, batch)
		if err != nil {
			return model.EvalEntry{}, err
		}

		if w.isTerminal {
			batch = w.discardWarmup(batch, entry.WorkItem.RowsFromStart)
		}
		kept = appendCols(kept, batch)
	}

	return model.EvalEntry{
		WorkItemIndex: entry.WorkItemIndex,
		ColumnNames: outNames,
		Buffers: kept,
		WorkItem: entry.WorkItem,
	}, nil
}

// runFirstEvaluatorIfDecoder runs evaluator 0 once, without
// micro-batching, when this group holds it and the entry is the
// initial load handoff — the decoder is allowed to turn a small number
// of encoded-byte rows into a large, variable number of output rows.
func (w *Worker) runFirstEvaluatorIfDecoder(entry model.EvalEntry) ([][]model.Buffer, error) {
	if !entry.VideoDecodeItem || len(w.units) == 0 {
		return entry.Buffers, nil
	}
	outputs, err := w.units[0].eval.Evaluate(entry.Buffers)
	if err != nil {
		return nil, enginerr.EvaluatorContractViolationf("evaluate: evaluator 0 (decoder): %v", err)
	}
	return outputs, nil
}

// runChain folds batch through units in order, migrating buffers to
// each evaluator's declared device before calling Evaluate.
func runChain(units []evalUnit, alloc evaluator.Allocator, batch [][]model.Buffer) ([][]model.Buffer, error) {
	cur := batch
	for i, u := range units {
		caps := u.factory.Capabilities()
		migrated, err := migrateCols(alloc, cur, caps.DeviceType, caps.DeviceID)
		if err != nil {
			return nil, err
		}
		out, err := u.eval.Evaluate(migrated)
		if err != nil {
			return nil, enginerr.EvaluatorContractViolationf("evaluate: evaluator %d: %v", i, err)
		}
		if !caps.ProducesVariableOutputCount {
			b := colLen(out)
			in := colLen(migrated)
			if b != in {
				return nil, enginerr.EvaluatorContractViolationf(
				"evaluate: evaluator %d changed batch size from %d to %d without ProducesVariableOutputCount", i, in, b)
			}
		}
		cur = out
	}
	return cur, nil
}

func migrateCols(alloc evaluator.Allocator, cols [][]model.Buffer, device model.Device, deviceID int) ([][]model.Buffer, error) {
	out := make([][]model.Buffer, len(cols))
	for c, col := range cols {
		newCol := make([]model.Buffer, len(col))
		for r, buf := range col {
			if buf.SameDevice(device, deviceID) {
				newCol[r] = buf
				continue
			}
			dst, err := alloc.Alloc(device, deviceID, buf.Size)
			if err != nil {
				return nil, enginerr.DeviceOOMf("evaluate: alloc %d bytes on %s:%d: %v", buf.Size, device, deviceID, err)
			}
			if err := alloc.Copy(&dst, buf); err != nil {
				return nil, enginerr.DeviceOOMf("evaluate: migrate copy: %v", err)
			}
			buf.Free()
			newCol[r] = dst
		}
		out[c] = newCol
	}
	return out, nil
}

// discardWarmup drops rows from the front of batch until it has
// accounted for min(warmupSize, rowsFromStart) rows since the last
// reset, tallied across this stream's micro-batches. Capping by
// rowsFromStart (the work item's offset from its own reset boundary)
// means a work item that starts at or near a reset boundary discards
// fewer warmup rows than warmupSize calls for — at rowsFromStart == 0
// it discards none, since there is nothing before it in this stream to
// warm up from.
func (w *Worker) discardWarmup(batch [][]model.Buffer, rowsFromStart int) [][]model.Buffer {
	n := colLen(batch)
	if n == 0 {
		return batch
	}
	totalWarmup := w.warmupSize
	if rowsFromStart < totalWarmup {
		totalWarmup = rowsFromStart
	}
	toDiscard := totalWarmup - w.currentInput
	if toDiscard < 0 {
		toDiscard = 0
	}
	if toDiscard > n {
		toDiscard = n
	}
	w.currentInput += n

	if toDiscard == 0 {
		return batch
	}
	if w.metrics != nil {
		w.metrics.WarmupRowsDiscarded.Add(float64(toDiscard))
	}
	for _, col := range batch {
		for i := 0; i < toDiscard; i++ {
			col[i].Free()
		}
	}
	return sliceCols(batch, toDiscard, n)
}

func colLen(cols [][]model.Buffer) int {
	if len(cols) == 0 {
		return 0
	}
	return len(cols[0])
}

func sliceCols(cols [][]model.Buffer, start, end int) [][]model.Buffer {
	out := make([][]model.Buffer, len(cols))
	for i, col := range cols {
		out[i] = col[start:end]
	}
	return out
}

func appendCols(dst, src [][]model.Buffer) [][]model.Buffer {
	if dst == nil {
		dst = make([][]model.Buffer, len(src))
	}
	for i, col := range src {
		dst[i] = append(dst[i], col...)
	}
	return dst
}
