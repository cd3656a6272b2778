// Package save implements the Save stage: one blob per (video, column,
// work item), each blob holding all of its rows' 8-byte length prefixes
// followed by all of their payloads, so a reader can load the size
// block before touching any frame data.
package save

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/e7canasta/videobatch/internal/enginerr"
	"github.com/e7canasta/videobatch/internal/metrics"
	"github.com/e7canasta/videobatch/internal/model"
	"github.com/e7canasta/videobatch/internal/queue"
	"github.com/e7canasta/videobatch/internal/storage"
)

// Worker is one save-stage thread: a storage backend handle and the
// job's shared retired-item counter.
type Worker struct {
	id int
	backend storage.Backend
	jobID string
	backoff storage.BackoffConfig
	retired *int64
	logger *slog.Logger
	metrics *metrics.Registry
}

// NewWorker constructs a save worker. retired is a shared counter the
// caller also hands to every other save worker and reads for its own
// stats.
func NewWorker(id int, backend storage.Backend, jobID string, retired *int64, logger *slog.Logger, m *metrics.Registry) *Worker {
	return &Worker{
		id: id,
		backend: backend,
		jobID: jobID,
		backoff: storage.DefaultBackoff(),
		retired: retired,
		logger: logger,
		metrics: m,
	}
}

// Run pops entries from in until a sentinel arrives. Returns nil on
// clean shutdown, or the fatal error (retries exhausted) that ended it.
func (w *Worker) Run(ctx context.Context, in *queue.Queue[model.EvalEntry]) error {
	for {
		entry := in.Pop()
		if entry.IsSentinel() {
			return nil
		}

		if err := w.saveEntry(ctx, entry); err != nil {
			w.logger.Error("save worker: fatal error", "worker", w.id, "work_item", entry.WorkItemIndex, "error", err)
			return err
		}

		atomic.AddInt64(w.retired, 1)
		if w.metrics != nil {
			w.metrics.ItemsRetired.Inc()
		}
	}
}

func (w *Worker) saveEntry(ctx context.Context, entry model.EvalEntry) error {
	for c, col := range entry.Buffers {
		name := "column"
		if c < len(entry.ColumnNames) {
			name = entry.ColumnNames[c]
		}
		path := blobPath(w.jobID, entry.WorkItem.VideoIndex, name, entry.WorkItemIndex)

		var handle storage.WriteHandle
		err := storage.Retry(ctx, w.backoff, func() error {
				h, err := w.backend.OpenWrite(ctx, path)
				if err != nil {
					return err
				}
				handle = h
				return nil
		})
		if err != nil {
			return enginerr.TransientStoragef("save: open %s: %v", path, err)
		}

		if err := writeColumn(handle, col); err != nil {
			handle.Close()
			return enginerr.TransientStoragef("save: write %s: %v", path, err)
		}

		if err := handle.Save(); err != nil {
			handle.Close()
			return enginerr.TransientStoragef("save: finalize %s: %v", path, err)
		}
		handle.Close()
	}
	return nil
}

// writeColumn writes all of col's 8-byte little-endian length prefixes
// first, then all of its payloads, so a reader can load the whole size
// block before touching any frame data. Rows are freed once their
// payload has been written (ownership transfers from the evaluate
// stage to here).
func writeColumn(handle storage.WriteHandle, col []model.Buffer) error {
	var lenBuf [8]byte
	for i := range col {
		binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(col[i].Data)))
		if _, err := handle.Write(lenBuf[:]); err != nil {
			return err
		}
	}
	for i := range col {
		buf := &col[i]
		if _, err := handle.Write(buf.Data); err != nil {
			return err
		}
		buf.Free()
	}
	return nil
}

func blobPath(jobID string, videoIndex int, column string, workItemIndex int) string {
	return fmt.Sprintf("%s/%d/%s/%d", jobID, videoIndex, column, workItemIndex)
}
