package partition

import (
	"errors"
	"sync"
)

// ErrKeyNotFound is returned when a key doesn't exist in the store.
var ErrKeyNotFound = errors.New("key not found")

// StoreStats describes the contents of a store and the operations
// served against it since the partition instance launched.
type StoreStats struct {
	Keys    int `json:"keys"`    // Number of keys
	Bytes   int `json:"bytes"`   // Total size of all values in bytes
	Gets    int `json:"gets"`    // Get operations served
	Puts    int `json:"puts"`    // Put operations served
	Deletes int `json:"deletes"` // Delete operations served
}

// MemoryStore is the in-memory key/value backend for the built-in
// KVServer. One store holds one partition's rows; partitions never
// share memory, so cross-partition coordination is not a concern here.
// Thread-safe for the concurrent request handlers of a single server.
type MemoryStore struct {
	mu      sync.RWMutex
	data    map[string][]byte
	gets    int
	puts    int
	deletes int
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string][]byte),
	}
}

// Get retrieves a value by key. Returns a copy so callers cannot
// mutate stored data.
func (m *MemoryStore) Get(key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gets++
	value, exists := m.data[key]
	if !exists {
		return nil, ErrKeyNotFound
	}

	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Put stores a value under key, overwriting any existing value. The
// value is copied on the way in.
func (m *MemoryStore) Put(key string, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
}

// Delete removes a key. Deleting an absent key is a no-op.
func (m *MemoryStore) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes++
	delete(m.data, key)
}

// List returns all keys, in no particular order.
func (m *MemoryStore) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.data))
	for key := range m.data {
		keys = append(keys, key)
	}
	return keys
}

// Stats returns a snapshot of store contents and operation counts.
func (m *MemoryStore) Stats() StoreStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	totalBytes := 0
	for _, value := range m.data {
		totalBytes += len(value)
	}

	return StoreStats{
		Keys:    len(m.data),
		Bytes:   totalBytes,
		Gets:    m.gets,
		Puts:    m.puts,
		Deletes: m.deletes,
	}
}
