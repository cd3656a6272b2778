// Package dataset provides the minimal JSON-backed dataset and
// metadata readers cmd/batchengine uses to drive the engine. Real
// deployments plug in whatever indexing system already tracks their
// video archive;
// this is just enough of one to run the engine end to end.
package dataset

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/e7canasta/videobatch/internal/engine"
	"github.com/e7canasta/videobatch/internal/model"
	"github.com/e7canasta/videobatch/internal/planner"
)

// entry is one line of the dataset descriptor named by
// config.DatasetConfig.VideoListPath.
type entry struct {
	VideoIndex int `json:"video_index"`
	Path string `json:"path"`
	Frames int `json:"frames"`
	Points []int `json:"points,omitempty"`
	Intervals []intervalDTO `json:"intervals,omitempty"`
	Stride int `json:"stride,omitempty"`
}

type intervalDTO struct {
	Start int `json:"start"`
	End int `json:"end"`
}

// Load reads a dataset descriptor into the engine's VideoSource list.
func Load(path string) ([]engine.VideoSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("dataset: reading %s: %w", path, err)
	}

	var entries []entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("dataset: parsing %s: %w", path, err)
	}

	sources := make([]engine.VideoSource, len(entries))
	for i, e := range entries {
		intervals := make([]model.Interval, len(e.Intervals))
		for j, iv := range e.Intervals {
			intervals[j] = model.Interval{Start: iv.Start, End: iv.End}
		}
		sources[i] = engine.VideoSource{
			Path: e.Path,
			Spec: planner.VideoSpec{
				VideoIndex: e.VideoIndex,
				Frames: e.Frames,
				Points: e.Points,
				Intervals: intervals,
				Stride: e.Stride,
			},
		}
	}
	return sources, nil
}

// metadataDTO mirrors model.VideoMetadata for JSON decoding.
type metadataDTO struct {
	Frames int `json:"frames"`
	Width int `json:"width"`
	Height int `json:"height"`
	KeyframePositions []int `json:"keyframe_positions"`
	KeyframeByteOffsets []int64 `json:"keyframe_byte_offsets"`
	FileSize int64 `json:"file_size"`
}

// FileMetadataFetcher implements engine.MetadataFetcher against a
// single JSON file mapping video path to its decode metadata, loaded
// once and cached in memory.
type FileMetadataFetcher struct {
	once sync.Once
	err error
	byPath map[string]model.VideoMetadata
	path string
}

// NewFileMetadataFetcher builds a fetcher that lazily loads path on its
// first Fetch call.
func NewFileMetadataFetcher(path string) *FileMetadataFetcher {
	return &FileMetadataFetcher{path: path}
}

func (f *FileMetadataFetcher) load() {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.err = fmt.Errorf("dataset: reading metadata index %s: %w", f.path, err)
		return
	}
	var raw map[string]metadataDTO
	if err := json.Unmarshal(data, &raw); err != nil {
		f.err = fmt.Errorf("dataset: parsing metadata index %s: %w", f.path, err)
		return
	}
	f.byPath = make(map[string]model.VideoMetadata, len(raw))
	for path, m := range raw {
		f.byPath[path] = model.VideoMetadata{
			Path: path,
			Frames: m.Frames,
			Width: m.Width,
			Height: m.Height,
			KeyframePositions: m.KeyframePositions,
			KeyframeByteOffsets: m.KeyframeByteOffsets,
			FileSize: m.FileSize,
		}
	}
}

// Fetch implements engine.MetadataFetcher.
func (f *FileMetadataFetcher) Fetch(_ context.Context, videoPath string) (model.VideoMetadata, error) {
	f.once.Do(f.load)
	if f.err != nil {
		return model.VideoMetadata{}, f.err
	}
	m, ok := f.byPath[videoPath]
	if !ok {
		return model.VideoMetadata{}, fmt.Errorf("dataset: no metadata entry for %s", videoPath)
	}
	return m, nil
}
