// Package blob implements api.BlobClient against S3 (the production
// backend) and an in-memory store (tests and the local provider).
package blob

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/loadforge/loadforge/pkg/api"
)

// Memory is an in-memory api.BlobClient, safe for concurrent use. It backs
// unit tests and the `local` container provider: every external-system
// capability interface pairs with a deterministic fake.
type Memory struct {
	mu    sync.RWMutex
	store map[string][]byte // key: namespace + "\x00" + name
}

var _ api.BlobClient = (*Memory)(nil)

// NewMemory returns an empty in-memory blob client.
func NewMemory() *Memory {
	return &Memory{store: make(map[string][]byte)}
}

func key(namespace, name string) string {
	return namespace + "\x00" + name
}

func (m *Memory) Put(_ context.Context, namespace, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.store[key(namespace, name)] = cp
	return nil
}

func (m *Memory) Get(_ context.Context, namespace, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.store[key(namespace, name)]
	if !ok {
		return nil, api.NewError(api.ErrBlobNotFound, "object not found: "+namespace+"/"+name, nil)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (m *Memory) List(_ context.Context, namespace, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	nsPrefix := namespace + "\x00" + prefix
	var names []string
	for k := range m.store {
		if strings.HasPrefix(k, namespace+"\x00") && strings.HasPrefix(k, nsPrefix) {
			names = append(names, strings.TrimPrefix(k, namespace+"\x00"))
		}
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Exists(_ context.Context, namespace, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.store[key(namespace, name)]
	return ok, nil
}
