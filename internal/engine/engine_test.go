package engine

import (
	"context"
	"encoding/binary"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/e7canasta/videobatch/internal/config"
	"github.com/e7canasta/videobatch/internal/evaluator"
	"github.com/e7canasta/videobatch/internal/model"
	"github.com/e7canasta/videobatch/internal/planner"
)

// fakeDecoder stands in for the out-of-scope video codec: it treats each byte of its encoded column as one already-decoded
// frame, so tests can exercise the pipeline without a real decoder.
type fakeDecoder struct{}

func (fakeDecoder) Configure(model.VideoMetadata) error { return nil }
func (fakeDecoder) Reset() error { return nil }

func (fakeDecoder) Evaluate(inputs [][]model.Buffer) ([][]model.Buffer, error) {
	encoded := inputs[0][0].Data
	frames := make([]model.Buffer, len(encoded))
	for i, b := range encoded {
		frames[i] = model.NewCPUBuffer([]byte{b})
	}
	return [][]model.Buffer{frames}, nil
}

func (fakeDecoder) OutputNames() []string { return []string{"frame"} }

type fakeDecoderFactory struct{}

func (fakeDecoderFactory) Capabilities() model.EvaluatorCapabilities {
	return model.EvaluatorCapabilities{
		DeviceType: model.CPU,
		CanOverlap: true,
		ProducesVariableOutputCount: true,
	}
}

func (fakeDecoderFactory) New(evaluator.Config) (evaluator.Evaluator, error) {
	return fakeDecoder{}, nil
}

type fakeFetcher struct{ meta model.VideoMetadata }

func (f fakeFetcher) Fetch(context.Context, string) (model.VideoMetadata, error) {
	return f.meta, nil
}

func writeFakeVideo(t *testing.T, root, relPath string, data []byte) {
	t.Helper()
	full := filepath.Join(root, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		t.Fatalf("write fake video: %v", err)
	}
}

func TestEngineRunEndToEndAllMode(t *testing.T) {
	root := t.TempDir()
	video := []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15}
	writeFakeVideo(t, root, "videos/v0.bin", video)

	cfg := &config.Config{
		JobID: "job1",
		ShutdownTimeoutS: 5,
		WorkItemSize: 8,
		Evaluators: []config.EvaluatorConfig{{Name: "decoder"}},
		Workers: config.WorkersConfig{LoadWorkers: 1, EvalWorkers: 1, SaveWorkers: 1, EvalBatchSize: 8},
		Storage: config.StorageConfig{Backend: "local", LocalRoot: root},
	}

	registry := map[string]evaluator.Factory{"decoder": fakeDecoderFactory{}}
	fetcher := fakeFetcher{meta: model.VideoMetadata{
			Frames: 16,
			KeyframePositions: []int{0, 8, 16},
			KeyframeByteOffsets: []int64{0, 8, 16},
			FileSize: 16,
	}}
	sources := []VideoSource{{Path: "videos/v0.bin", Spec: planner.VideoSpec{VideoIndex: 0, Frames: 16}}}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	e, err := New(ctx, cfg, logger, registry, fetcher, sources, model.SamplingAll, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := e.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}

	stats := e.Stats()
	if stats.Retired != 2 {
		t.Fatalf("expected 2 retired work items, got %d", stats.Retired)
	}
	if stats.Accepted != 2 {
		t.Fatalf("expected 2 accepted work items, got %d", stats.Accepted)
	}
	if stats.LoadQueueDepth != 0 || stats.SaveQueueDepth != 0 {
		t.Fatalf("expected drained queues, got %+v", stats)
	}

	assertBlob(t, root, "job1/0/frame/0", video[0:8])
	assertBlob(t, root, "job1/0/frame/1", video[8:16])
}

func assertBlob(t *testing.T, root, relPath string, wantFrames []byte) {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, relPath))
	if err != nil {
		t.Fatalf("reading blob %s: %v", relPath, err)
	}

	// writeColumn writes all 8-byte little-endian length prefixes first,
	// then all payloads, so the frame count isn't known up front here.
	var lens []uint64
	off := 0
	for {
		if off+8 > len(data) {
			t.Fatalf("blob %s: truncated length prefix at offset %d", relPath, off)
		}
		lens = append(lens, binary.LittleEndian.Uint64(data[off:off+8]))
		off += 8

		sum := uint64(0)
		for _, l := range lens {
			sum += l
		}
		if uint64(off)+sum == uint64(len(data)) {
			break
		}
	}

	var got []byte
	for _, l := range lens {
		if off+int(l) > len(data) {
			t.Fatalf("blob %s: truncated payload at offset %d", relPath, off)
		}
		got = append(got, data[off:off+int(l)]...)
		off += int(l)
	}

	if len(got) != len(wantFrames) {
		t.Fatalf("blob %s: expected %d frame bytes, got %d (%v)", relPath, len(wantFrames), len(got), got)
	}
	for i := range wantFrames {
		if got[i] != wantFrames[i] {
			t.Fatalf("blob %s: frame %d: expected %d, got %d", relPath, i, wantFrames[i], got[i])
		}
	}
}
