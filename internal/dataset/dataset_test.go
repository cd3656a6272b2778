package dataset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadParsesEntries(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "videos.json")
	body := `[
		{"video_index": 0, "path": "videos/a.mp4", "frames": 100},
		{"video_index": 1, "path": "videos/b.mp4", "frames": 50, "stride": 2}
	]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing dataset: %v", err)
	}

	sources, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sources) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(sources))
	}
	if sources[0].Path != "videos/a.mp4" || sources[0].Spec.VideoIndex != 0 || sources[0].Spec.Frames != 100 {
		t.Fatalf("unexpected first source: %+v", sources[0])
	}
	if sources[1].Spec.Stride != 2 {
		t.Fatalf("expected stride 2 on second source, got %d", sources[1].Spec.Stride)
	}
}

func TestFileMetadataFetcherReadsAndCaches(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "metadata.json")
	body := `{
		"videos/a.mp4": {
			"frames": 100, "width": 1920, "height": 1080,
			"keyframe_positions": [0, 50, 100],
			"keyframe_byte_offsets": [0, 500000, 1000000],
			"file_size": 1000000
		}
	}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing metadata index: %v", err)
	}

	f := NewFileMetadataFetcher(path)
	meta, err := f.Fetch(context.Background(), "videos/a.mp4")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if meta.Frames != 100 || meta.FileSize != 1000000 {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	if _, err := f.Fetch(context.Background(), "videos/missing.mp4"); err == nil {
		t.Fatal("expected error for unknown video path")
	}
}
