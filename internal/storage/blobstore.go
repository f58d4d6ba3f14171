package storage

import "context"

// BlobStore is the object-storage capability the pipeline depends on: read
// caller-supplied source paths, write job deliverables. Put returns the
// stored object's URL (or canonical key for stores without public URLs) and
// must overwrite existing objects, since retried jobs reuse their paths.
type BlobStore interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) (string, error)
}
