package blob

import (
	"context"
	"fmt"
	"sync"
	"time"

	"visual-search-be/pkg/apperrors"
)

// MemoryStore keeps objects in a map. Used by tests and local development.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]Object
	puts    int
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: make(map[string]Object)}
}

func (m *MemoryStore) Bucket() string {
	return m.bucket
}

func path(bucket, key string) string {
	return bucket + "/" + key
}

func (m *MemoryStore) Put(ctx context.Context, bucket, key string, data []byte, contentType string, metadata map[string]string) error {
	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[path(bucket, key)] = Object{
		Key:         key,
		Data:        append([]byte(nil), data...),
		ContentType: contentType,
		Metadata:    meta,
	}
	m.puts++
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, bucket, key string) (*Object, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, apperrors.ErrNotFound)
	}
	obj.Data = append([]byte(nil), obj.Data...)
	return &obj, nil
}

func (m *MemoryStore) Stat(ctx context.Context, bucket, key string) (*ObjectInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[path(bucket, key)]
	if !ok {
		return nil, fmt.Errorf("object %s: %w", key, apperrors.ErrNotFound)
	}
	return &ObjectInfo{Key: key, Size: int64(len(obj.Data)), ContentType: obj.ContentType, Metadata: obj.Metadata}, nil
}

func (m *MemoryStore) Delete(ctx context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, path(bucket, key))
	return nil
}

func (m *MemoryStore) PresignGet(ctx context.Context, bucket, key string, expiry time.Duration) (string, error) {
	return fmt.Sprintf("memory://%s/%s", bucket, key), nil
}

// Puts counts writes, letting tests assert a re-delivery did no new work.
func (m *MemoryStore) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.puts
}
