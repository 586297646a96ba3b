package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// MemoryStore keeps objects in process memory. Safe for concurrent use.
type MemoryStore struct {
	mu         sync.RWMutex
	objects    map[string]Object
	publicBase string
}

func NewMemoryStore(publicBase string) *MemoryStore {
	if publicBase == "" {
		publicBase = "memory://local"
	}
	return &MemoryStore{
		objects:    make(map[string]Object),
		publicBase: strings.TrimRight(publicBase, "/"),
	}
}

func (m *MemoryStore) Put(_ context.Context, bucket, key string, r io.Reader, _ int64, contentType string, meta map[string]string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("put object %q: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[bucket+"/"+key] = Object{
		Key:         key,
		ContentType: contentType,
		Metadata:    lowerKeys(meta),
		Body:        data,
	}
	return nil
}

func (m *MemoryStore) Stat(_ context.Context, bucket, key string) (map[string]string, error) {
	obj, ok := m.Object(bucket, key)
	if !ok {
		return nil, fmt.Errorf("stat object %q: %w", key, ErrNotFound)
	}
	return obj.Metadata, nil
}

func (m *MemoryStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	obj, ok := m.Object(bucket, key)
	if !ok {
		return nil, fmt.Errorf("get object %q: %w", key, ErrNotFound)
	}
	return obj.Body, nil
}

// Delete is a no-op for missing keys, like S3.
func (m *MemoryStore) Delete(_ context.Context, bucket, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, bucket+"/"+key)
	return nil
}

func (m *MemoryStore) PublicURL(_, bucket, key string) string {
	return m.publicBase + "/" + bucket + "/" + key
}

// Object returns a copy of the stored object.
func (m *MemoryStore) Object(bucket, key string) (Object, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	obj, ok := m.objects[bucket+"/"+key]
	if !ok {
		return Object{}, false
	}
	meta := make(map[string]string, len(obj.Metadata))
	for k, v := range obj.Metadata {
		meta[k] = v
	}
	obj.Metadata = meta
	obj.Body = append([]byte(nil), obj.Body...)
	return obj, true
}
