// Package load implements the Load stage: keyframe-aligned byte-range
// reads packaged as decode arguments, handed to the evaluate stage.
package load

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/e7canasta/videobatch/internal/enginerr"
	"github.com/e7canasta/videobatch/internal/keyframe"
	"github.com/e7canasta/videobatch/internal/model"
	"github.com/e7canasta/videobatch/internal/queue"
	"github.com/e7canasta/videobatch/internal/storage"
)

// MetadataSource resolves a video path to its decode metadata. The
// metadata-ingest path that backs it is out of scope.
type MetadataSource interface {
	Load(ctx context.Context, videoPath string) (model.VideoMetadata, error)
}

// Job pairs a WorkItem with its sampling recipe and source video path.
// It is what the work planner feeds into the load queue.
type Job struct {
	WorkItem model.WorkItem
	Entry model.LoadEntry
	VideoPath string
}

// SentinelJob marks a queue entry as a shutdown sentinel.
func SentinelJob() Job {
	return Job{WorkItem: model.WorkItem{Index: model.SentinelWorkItemIndex}}
}

// IsSentinel reports whether j is a shutdown sentinel.
func (j Job) IsSentinel() bool {
	return j.WorkItem.Index == model.SentinelWorkItemIndex
}

// Worker is one load-stage thread: a storage backend handle and a
// cached open file for the most-recently-read video path.
type Worker struct {
	id int
	backend storage.Backend
	metaSource MetadataSource
	backoff storage.BackoffConfig
	warmupSize int
	logger *slog.Logger

	openPath string
	openHandle storage.ReadHandle
	openMeta model.VideoMetadata
}

// NewWorker constructs a load worker. warmupSize is the planner's
// job-wide warmup_size, stamped into every DecodeArgs this worker emits.
func NewWorker(id int, backend storage.Backend, metaSource MetadataSource, warmupSize int, logger *slog.Logger) *Worker {
	return &Worker{
		id: id,
		backend: backend,
		metaSource: metaSource,
		backoff: storage.DefaultBackoff(),
		warmupSize: warmupSize,
		logger: logger,
	}
}

// Run pops jobs from in until a sentinel arrives, emitting one EvalEntry
// per job to out. Returns nil on clean sentinel-triggered shutdown, or a
// fatal error (open failure, corrupt metadata, retries exhausted) that
// the caller should treat as a process-ending condition.
func (w *Worker) Run(ctx context.Context, in *queue.Queue[Job], out *queue.Queue[model.EvalEntry]) error {
	defer w.closeOpenFile()

	for {
		job := in.Pop()
		if job.IsSentinel() {
			return nil
		}

		entry, err := w.processJob(ctx, job)
		if err != nil {
			w.logger.Error("load worker: fatal error", "worker", w.id, "work_item", job.WorkItem.Index, "error", err)
			return err
		}
		out.Push(entry)
	}
}

func (w *Worker) closeOpenFile() {
	if w.openHandle != nil {
		w.openHandle.Close()
		w.openHandle = nil
		w.openPath = ""
	}
}

func (w *Worker) processJob(ctx context.Context, job Job) (model.EvalEntry, error) {
	if job.VideoPath != w.openPath {
		w.closeOpenFile()

		handle, err := w.backend.OpenRead(ctx, job.VideoPath)
		if err != nil {
			// Open failures are fatal, not retried.
			return model.EvalEntry{}, fmt.Errorf("load: open %s: %w", job.VideoPath, err)
		}

		meta, err := w.metaSource.Load(ctx, job.VideoPath)
		if err != nil {
			handle.Close()
			return model.EvalEntry{}, enginerr.CorruptMetadataf("load: metadata for %s: %v", job.VideoPath, err)
		}
		meta.EnsureSentinels()

		w.openHandle = handle
		w.openPath = job.VideoPath
		w.openMeta = meta
	}

	pairs, err := expandPairs(job.Entry)
	if err != nil {
		return model.EvalEntry{}, err
	}

	encoded := make([]model.Buffer, len(pairs))
	argsCol := make([]model.Buffer, len(pairs))
	decodeArgs := make([]model.DecodeArgs, len(pairs))

	for i, p := range pairs {
		startIdx, endIdx, err := keyframe.Locate(p.Start, p.End, w.openMeta.KeyframePositions)
		if err != nil {
			return model.EvalEntry{}, err
		}
		byteStart, byteEnd, err := keyframe.ByteRange(startIdx, endIdx, w.openMeta.KeyframeByteOffsets)
		if err != nil {
			return model.EvalEntry{}, err
		}

		buf := make([]byte, byteEnd-byteStart)
		readErr := storage.Retry(ctx, w.backoff, func() error {
				_, err := w.openHandle.ReadAt(buf, byteStart)
				return err
		})
		if readErr != nil {
			return model.EvalEntry{}, enginerr.TransientStoragef("load: read %s [%d,%d): %v", job.VideoPath, byteStart, byteEnd, readErr)
		}

		encoded[i] = model.NewCPUBuffer(buf)
		argsCol[i] = model.NewCPUBuffer(nil)
		decodeArgs[i] = model.DecodeArgs{
			Mode: job.Entry.Mode,
			Interval: p.Interval,
			Stride: job.Entry.Stride,
			Points: p.points,
			WarmupCount: w.warmupSize,
			StartKeyframe: startIdx,
			EndKeyframe: endIdx,
		}
	}

	return model.EvalEntry{
		WorkItemIndex: job.WorkItem.Index,
		ColumnNames: []string{"encoded", "decode_args"},
		Buffers: [][]model.Buffer{encoded, argsCol},
		DecodeArgs: decodeArgs,
		VideoDecodeItem: true,
		WorkItem: job.WorkItem,
	}, nil
}

// pair is one (interval, optional single point) unit the LoadEntry
// expands into: exactly one for All/Strided, one per point for
// Gather, one per sub-interval for SequenceGather.
type pair struct {
	model.Interval
	points []int // set (len 1) only when this pair originated from a Gather point
}

func expandPairs(entry model.LoadEntry) ([]pair, error) {
	switch entry.Mode {
	case model.SamplingAll, model.SamplingStrided:
		return []pair{{Interval: entry.Interval}}, nil
	case model.SamplingGather:
		pairs := make([]pair, len(entry.Points))
		for i, p := range entry.Points {
			pairs[i] = pair{Interval: model.Interval{Start: p, End: p + 1}, points: []int{p}}
		}
		return pairs, nil
	case model.SamplingSequenceGather:
		pairs := make([]pair, len(entry.Intervals))
		for i, iv := range entry.Intervals {
			pairs[i] = pair{Interval: iv}
		}
		return pairs, nil
	default:
		return nil, enginerr.CorruptMetadataf("load: unknown sampling mode %v", entry.Mode)
	}
}
