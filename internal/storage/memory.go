package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dilsidhu13/secdrop/internal/models"
)

// MemoryStore is an in-process blob store, used in tests and single-node
// deployments without object storage.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryStore returns an empty in-memory blob store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (ms *MemoryStore) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read chunk: %w", err)
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.blobs[key] = data
	return nil
}

func (ms *MemoryStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	ms.mu.RLock()
	data, ok := ms.blobs[key]
	ms.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("object %q not found", key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Corrupt flips one bit of a stored blob. Test hook for exercising
// authentication failures on download.
func (ms *MemoryStore) Corrupt(key string, offset int) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	data, ok := ms.blobs[key]
	if !ok {
		return fmt.Errorf("object %q not found", key)
	}
	data[offset%len(data)] ^= 0x01
	return nil
}

// MemoryRegistry is the default transfer registry backend, a mutex-guarded
// map owned by the process.
type MemoryRegistry struct {
	mu        sync.RWMutex
	transfers map[string]*models.Transfer
}

// NewMemoryRegistry returns an empty in-memory registry.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{transfers: make(map[string]*models.Transfer)}
}

func (mr *MemoryRegistry) Create(ctx context.Context, t *models.Transfer) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if _, exists := mr.transfers[t.ID]; exists {
		return fmt.Errorf("transfer %s already exists", t.ID)
	}
	mr.transfers[t.ID] = t.Clone()
	return nil
}

func (mr *MemoryRegistry) Get(ctx context.Context, id string) (*models.Transfer, error) {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	t, ok := mr.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	return t.Clone(), nil
}

func (mr *MemoryRegistry) Update(ctx context.Context, t *models.Transfer) error {
	mr.mu.Lock()
	defer mr.mu.Unlock()
	if _, ok := mr.transfers[t.ID]; !ok {
		return ErrTransferNotFound
	}
	mr.transfers[t.ID] = t.Clone()
	return nil
}
