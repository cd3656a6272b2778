package storage

import (
	"context"
	"os"
	"path/filepath"
)

// LocalBackend is a filesystem-backed Backend: paths are joined under
// Root, directories are created on demand for writes.
type LocalBackend struct {
	Root string
}

func NewLocalBackend(root string) *LocalBackend {
	return &LocalBackend{Root: root}
}

func (b *LocalBackend) resolve(path string) string {
	return filepath.Join(b.Root, path)
}

func (b *LocalBackend) OpenRead(_ context.Context, path string) (ReadHandle, error) {
	f, err := os.Open(b.resolve(path))
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &localReadHandle{f: f, size: info.Size()}, nil
}

func (b *LocalBackend) OpenWrite(_ context.Context, path string) (WriteHandle, error) {
	full := b.resolve(path)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(full)
	if err != nil {
		return nil, err
	}
	return &localWriteHandle{f: f}, nil
}

type localReadHandle struct {
	f    *os.File
	size int64
}

func (h *localReadHandle) ReadAt(buf []byte, pos int64) (int, error) {
	return h.f.ReadAt(buf, pos)
}

func (h *localReadHandle) Size() int64 { return h.size }

func (h *localReadHandle) Close() error { return h.f.Close() }

type localWriteHandle struct {
	f *os.File
}

func (h *localWriteHandle) Write(p []byte) (int, error) { return h.f.Write(p) }

func (h *localWriteHandle) Save() error { return h.f.Sync() }

func (h *localWriteHandle) Close() error { return h.f.Close() }
