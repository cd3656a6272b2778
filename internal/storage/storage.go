// Package storage is the consumed object-store backend: make_random_read_file/read and make_write_file/write/save,
// translated to Go interfaces plus a local-filesystem and an S3-backed
// implementation. The object-store backend proper is out of scope; what
// lives here is the adapter the Load/Save workers are written against.
package storage

import "context"

// ReadHandle supports random-access reads of a fixed object, matching
// the reference contract's "handle.read(buf, size, &pos)".
type ReadHandle interface {
	ReadAt(buf []byte, pos int64) (n int, err error)
	Size() int64
	Close() error
}

// WriteHandle supports sequential writes to a new object, matching the
// reference contract's "handle.write(...)" / "handle.save()".
type WriteHandle interface {
	Write(p []byte) (n int, err error)
	// Save flushes and finalizes the object (the reference contract's
	// handle.save()).
	Save() error
	Close() error
}

// Backend opens objects for random read or sequential write, by path.
// Implementations do not retry; the Load and Save workers wrap their
// range reads and write opens in Retry (exponential backoff, at most
// BackoffConfig.MaxRetries retries). Open failures on the Load path are
// fatal and not retried.
type Backend interface {
	OpenRead(ctx context.Context, path string) (ReadHandle, error)
	OpenWrite(ctx context.Context, path string) (WriteHandle, error)
}
