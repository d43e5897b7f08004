package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps objects in a map. FailDelete makes Delete fail for the
// listed paths while still removing the others.
type MemoryStore struct {
	mu         sync.Mutex
	objects    map[string]File
	FailDelete map[string]bool
	Now        func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: map[string]File{}, FailDelete: map[string]bool{}}
}

func (m *MemoryStore) Put(_ context.Context, folder string, f File) (string, error) {
	if err := validFolder(folder); err != nil {
		return "", err
	}
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	p := NewObjectPath(folder, f.Filename, now())
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string]File{}
	}
	m.objects[p] = f
	return p, nil
}

func (m *MemoryStore) PublicURL(objectPath string) string {
	return "memory://" + objectPath
}

func (m *MemoryStore) Delete(_ context.Context, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var failed []string
	for _, p := range paths {
		if m.FailDelete[p] {
			failed = append(failed, p)
			continue
		}
		delete(m.objects, p)
	}
	if len(failed) > 0 {
		return fmt.Errorf("delete failed for %v", failed)
	}
	return nil
}

// Has reports whether objectPath is stored.
func (m *MemoryStore) Has(objectPath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[objectPath]
	return ok
}

// Paths lists stored object paths in sorted order.
func (m *MemoryStore) Paths() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.objects))
	for p := range m.objects {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}
