package stage

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStage is an in-memory Stage for tests and local development.
type MemoryStage struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryStage creates an empty in-memory stage.
func NewMemoryStage() *MemoryStage {
	return &MemoryStage{objects: make(map[string][]byte)}
}

func (m *MemoryStage) Put(ctx context.Context, key string, body []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(body))
	copy(buf, body)
	m.objects[key] = buf
	return nil
}

func (m *MemoryStage) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	body, ok := m.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	buf := make([]byte, len(body))
	copy(buf, body)
	return buf, nil
}

func (m *MemoryStage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.objects, key)
	return nil
}

// Len reports the number of staged objects. Test helper.
func (m *MemoryStage) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
