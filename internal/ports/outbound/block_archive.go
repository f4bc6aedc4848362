package outbound

import (
	"context"
	"io"
	"time"
)

// BlockArchive stores raw block replies in an object store.
type BlockArchive interface {
	// WriteFile writes content to the specified key in the bucket.
	// The content will be gzip compressed if compressGzip is true.
	WriteFile(ctx context.Context, bucket, key string, content io.Reader, compressGzip bool) error

	// FileExists checks if a file already exists at the given key.
	FileExists(ctx context.Context, bucket, key string) (bool, error)
}

// ArchivedObject describes an object in the block archive.
type ArchivedObject struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// BlockArchiveReader reads archived block replies back.
type BlockArchiveReader interface {
	// ListFiles lists all objects in the bucket with the given prefix.
	ListFiles(ctx context.Context, bucket, prefix string) ([]ArchivedObject, error)

	// StreamFile returns the decompressed object content.
	// The caller is responsible for closing the reader.
	StreamFile(ctx context.Context, bucket, key string) (io.ReadCloser, error)
}
