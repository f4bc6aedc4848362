package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/archon-research/vbk-watch/internal/ports/outbound"
)

var (
	_ outbound.BlockArchive       = (*BlockArchive)(nil)
	_ outbound.BlockArchiveReader = (*BlockArchive)(nil)
)

// BlockArchive is an in-memory object store. Objects are kept uncompressed;
// Compressed reports whether they were written with gzip requested.
type BlockArchive struct {
	mu         sync.RWMutex
	objects    map[string][]byte
	compressed map[string]bool
	modified   map[string]time.Time
}

// NewBlockArchive creates an empty in-memory archive.
func NewBlockArchive() *BlockArchive {
	return &BlockArchive{
		objects:    make(map[string][]byte),
		compressed: make(map[string]bool),
		modified:   make(map[string]time.Time),
	}
}

func objectKey(bucket, key string) string {
	return bucket + "/" + key
}

// WriteFile stores content at bucket/key.
func (a *BlockArchive) WriteFile(ctx context.Context, bucket, key string, content io.Reader, compressGzip bool) error {
	data, err := io.ReadAll(content)
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[objectKey(bucket, key)] = data
	a.compressed[objectKey(bucket, key)] = compressGzip
	a.modified[objectKey(bucket, key)] = time.Now()
	return nil
}

// FileExists reports whether bucket/key has been written.
func (a *BlockArchive) FileExists(ctx context.Context, bucket, key string) (bool, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.objects[objectKey(bucket, key)]
	return ok, nil
}

// Object returns the stored bytes and whether the object exists.
func (a *BlockArchive) Object(bucket, key string) ([]byte, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	data, ok := a.objects[objectKey(bucket, key)]
	return data, ok
}

// Compressed reports whether bucket/key was written with gzip requested.
func (a *BlockArchive) Compressed(bucket, key string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.compressed[objectKey(bucket, key)]
}

// Len returns the number of stored objects.
func (a *BlockArchive) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.objects)
}

// ListFiles lists objects in bucket whose key starts with prefix, sorted by key.
func (a *BlockArchive) ListFiles(ctx context.Context, bucket, prefix string) ([]outbound.ArchivedObject, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	var files []outbound.ArchivedObject
	for k, data := range a.objects {
		key, ok := strings.CutPrefix(k, bucket+"/")
		if !ok || !strings.HasPrefix(key, prefix) {
			continue
		}
		files = append(files, outbound.ArchivedObject{
			Key:          key,
			Size:         int64(len(data)),
			LastModified: a.modified[k],
		})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Key < files[j].Key })
	return files, nil
}

// StreamFile returns the stored content of bucket/key.
func (a *BlockArchive) StreamFile(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
	data, ok := a.Object(bucket, key)
	if !ok {
		return nil, fmt.Errorf("object %s/%s not found", bucket, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}
