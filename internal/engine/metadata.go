package engine

import (
	"context"
	"sync"

	"github.com/e7canasta/videobatch/internal/enginerr"
	"github.com/e7canasta/videobatch/internal/model"
)

// MetadataFetcher resolves a video path to its decode metadata. The
// dataset/metadata-ingest path that backs it is out of scope; callers plug in their own prober (a sidecar index file, a probe
// of the container, whatever the deployment already has).
type MetadataFetcher interface {
	Fetch(ctx context.Context, videoPath string) (model.VideoMetadata, error)
}

// metadataFetchCache wraps a MetadataFetcher with per-path caching and
// an index->path lookup, so it can back both load.MetadataSource and
// evaluate.VideoResolver from one shared cache: a video's metadata is
// fetched from the underlying prober at most once per job, no matter
// how many load/evaluate workers touch it.
type metadataFetchCache struct {
	fetcher MetadataFetcher
	pathByIndex map[int]string

	mu sync.Mutex
	byPath map[string]model.VideoMetadata
}

func newMetadataFetchCache(fetcher MetadataFetcher, pathByIndex map[int]string) *metadataFetchCache {
	return &metadataFetchCache{
		fetcher: fetcher,
		pathByIndex: pathByIndex,
		byPath: make(map[string]model.VideoMetadata),
	}
}

// Load implements load.MetadataSource.
func (c *metadataFetchCache) Load(ctx context.Context, videoPath string) (model.VideoMetadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if m, ok := c.byPath[videoPath]; ok {
		return m, nil
	}

	m, err := c.fetcher.Fetch(ctx, videoPath)
	if err != nil {
		return model.VideoMetadata{}, err
	}
	m.EnsureSentinels()

	c.byPath[videoPath] = m
	return m, nil
}

// Metadata implements evaluate.VideoResolver.
func (c *metadataFetchCache) Metadata(ctx context.Context, videoIndex int) (model.VideoMetadata, error) {
	path, err := c.pathForIndex(videoIndex)
	if err != nil {
		return model.VideoMetadata{}, err
	}
	return c.Load(ctx, path)
}

func (c *metadataFetchCache) pathForIndex(videoIndex int) (string, error) {
	path, ok := c.pathByIndex[videoIndex]
	if !ok {
		return "", enginerr.CorruptMetadataf("engine: no source path for video index %d", videoIndex)
	}
	return path, nil
}
