package save

import (
	"context"
	"encoding/binary"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e7canasta/videobatch/internal/model"
	"github.com/e7canasta/videobatch/internal/queue"
	"github.com/e7canasta/videobatch/internal/storage"
)

func TestSaveWorkerWritesLengthPrefixedFramesAndRetires(t *testing.T) {
	dir := t.TempDir()
	backend := storage.NewLocalBackend(dir)

	var retired int64
	w := NewWorker(0, backend, "job1", &retired, slog.Default(), nil)

	in := queue.New[model.EvalEntry]()
	in.Push(model.EvalEntry{
		WorkItemIndex: 3,
		ColumnNames:   []string{"histogram"},
		Buffers: [][]model.Buffer{
			{model.NewCPUBuffer([]byte("aaa")), model.NewCPUBuffer([]byte("bb"))},
		},
		WorkItem: model.WorkItem{Index: 3, VideoIndex: 2},
	})
	in.Push(model.SentinelEvalEntry())

	done := make(chan error, 1)
	go func() { done <- w.Run(context.Background(), in) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("save worker did not shut down after sentinel")
	}

	if atomic.LoadInt64(&retired) != 1 {
		t.Fatalf("expected 1 retired item, got %d", retired)
	}

	data, err := os.ReadFile(filepath.Join(dir, "job1/2/histogram/3"))
	if err != nil {
		t.Fatalf("reading blob: %v", err)
	}
	if len(data) != 8+8+3+2 {
		t.Fatalf("unexpected blob length %d", len(data))
	}
	firstLen := binary.LittleEndian.Uint64(data[0:8])
	secondLen := binary.LittleEndian.Uint64(data[8:16])
	if firstLen != 3 {
		t.Fatalf("expected first frame length 3, got %d", firstLen)
	}
	if secondLen != 2 {
		t.Fatalf("expected second frame length 2, got %d", secondLen)
	}
	if string(data[16:19]) != "aaa" {
		t.Fatalf("unexpected first frame payload %q", data[16:19])
	}
	if string(data[19:21]) != "bb" {
		t.Fatalf("unexpected second frame payload %q", data[19:21])
	}
}
