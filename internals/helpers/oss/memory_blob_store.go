package helper

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"vulcan_backend/internals/helpers/dbtime"
)

// MemoryBlobStore keeps objects in process. Used by tests and local runs without OSS.
type MemoryBlobStore struct {
	mu      sync.Mutex
	objects map[string]memoryObject
	purged  []string
	clock   dbtime.Clock
}

type memoryObject struct {
	ref  BlobRef
	data []byte
}

func NewMemoryBlobStore(clock dbtime.Clock) *MemoryBlobStore {
	return &MemoryBlobStore{objects: map[string]memoryObject{}, clock: clock.OrDefault()}
}

func (m *MemoryBlobStore) Put(ctx context.Context, dir, filename, contentType string, r io.Reader) (BlobRef, error) {
	if err := ctx.Err(); err != nil {
		return BlobRef{}, err
	}
	if r == nil {
		return BlobRef{}, errors.New("nil reader")
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return BlobRef{}, err
	}
	now := m.clock()
	ref := BlobRef{
		Key:         BuildObjectKey(dir, filename, now),
		Filename:    filename,
		ContentType: contentType,
		Size:        int64(len(data)),
		CreatedAt:   now,
	}
	m.mu.Lock()
	m.objects[ref.Key] = memoryObject{ref: ref, data: data}
	m.mu.Unlock()
	return ref, nil
}

func (m *MemoryBlobStore) Stat(_ context.Context, key string) (BlobRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	obj, ok := m.objects[key]
	if !ok {
		return BlobRef{}, ErrBlobNotFound
	}
	return obj.ref, nil
}

func (m *MemoryBlobStore) Purge(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.purged = append(m.purged, key)
	return nil
}

// Seed stores data under an exact key, bypassing key generation.
func (m *MemoryBlobStore) Seed(key, filename, contentType string, data []byte, createdAt time.Time) BlobRef {
	ref := BlobRef{Key: key, Filename: filename, ContentType: contentType, Size: int64(len(data)), CreatedAt: createdAt}
	m.mu.Lock()
	m.objects[key] = memoryObject{ref: ref, data: bytes.Clone(data)}
	m.mu.Unlock()
	return ref
}

func (m *MemoryBlobStore) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

func (m *MemoryBlobStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.objects)
}

func (m *MemoryBlobStore) Purged() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.purged...)
}

// MockBlobStore lets tests script individual calls.
type MockBlobStore struct {
	PutFn   func(ctx context.Context, dir, filename, contentType string, r io.Reader) (BlobRef, error)
	StatFn  func(ctx context.Context, key string) (BlobRef, error)
	PurgeFn func(ctx context.Context, key string) error
}

func (m *MockBlobStore) Put(ctx context.Context, dir, filename, contentType string, r io.Reader) (BlobRef, error) {
	if m.PutFn == nil {
		return BlobRef{}, errors.New("not implemented")
	}
	return m.PutFn(ctx, dir, filename, contentType, r)
}

func (m *MockBlobStore) Stat(ctx context.Context, key string) (BlobRef, error) {
	if m.StatFn == nil {
		return BlobRef{}, errors.New("not implemented")
	}
	return m.StatFn(ctx, key)
}

func (m *MockBlobStore) Purge(ctx context.Context, key string) error {
	if m.PurgeFn == nil {
		return errors.New("not implemented")
	}
	return m.PurgeFn(ctx, key)
}
