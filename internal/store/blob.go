package store

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
)

// BlobStore is the payload persistence collaborator. The engine stores all
// object and staged-part bytes through this interface, keyed by opaque
// slash-separated ids, so its correctness does not depend on a specific
// medium. Implementations must be safe for concurrent use.
type BlobStore interface {
	// Put stores data under id, replacing any previous payload.
	Put(id string, data []byte) error

	// Get retrieves the payload stored under id. A missing id is reported
	// with an error satisfying os.IsNotExist / errors.Is(err, os.ErrNotExist).
	Get(id string) ([]byte, error)

	// Delete removes the payload stored under id. Deleting a missing id is
	// not an error.
	Delete(id string) error

	// List returns the ids currently stored that start with prefix, in
	// lexicographic order.
	List(prefix string) ([]string, error)
}

// MemoryBlobStore is an in-memory BlobStore used by tests and by callers
// that do not need durability.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) Put(id string, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[id] = buf
	return nil
}

func (s *MemoryBlobStore) Get(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.blobs[id]
	if !ok {
		return nil, fmt.Errorf("blob %q: %w", id, os.ErrNotExist)
	}

	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (s *MemoryBlobStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, id)
	return nil
}

func (s *MemoryBlobStore) List(prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0)
	for id := range s.blobs {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
