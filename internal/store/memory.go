package store

import (
	"context"
	"sync"
)

// Memory is an in-process Adapter. It is the default backend for tests
// and for callers that don't need durability.
type Memory struct {
	mu         sync.RWMutex
	partitions map[string]map[string]*Entry
	crystals   []*Crystal
}

// NewMemory creates an empty in-memory adapter.
func NewMemory() *Memory {
	return &Memory{partitions: make(map[string]map[string]*Entry)}
}

func (m *Memory) Put(_ context.Context, partitionID string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket := m.partitions[partitionID]
	if bucket == nil {
		bucket = make(map[string]*Entry)
		m.partitions[partitionID] = bucket
	}
	cp := *entry
	bucket[entry.Fingerprint] = &cp
	return nil
}

func (m *Memory) Get(_ context.Context, partitionID, fp string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.partitions[partitionID][fp]
	if !ok {
		return nil, nil
	}
	cp := *entry
	return &cp, nil
}

func (m *Memory) Delete(_ context.Context, partitionID, fp string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.partitions[partitionID], fp)
	return nil
}

func (m *Memory) List(_ context.Context, partitionID string) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bucket := m.partitions[partitionID]
	out := make([]*Entry, 0, len(bucket))
	for _, entry := range bucket {
		cp := *entry
		out = append(out, &cp)
	}
	return out, nil
}

// SaveCrystal implements CrystalPersister.
func (m *Memory) SaveCrystal(_ context.Context, c *Crystal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *c
	m.crystals = append(m.crystals, &cp)
	return nil
}

// ListCrystals implements CrystalPersister.
func (m *Memory) ListCrystals(_ context.Context) ([]*Crystal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Crystal, len(m.crystals))
	for i, c := range m.crystals {
		cp := *c
		out[i] = &cp
	}
	return out, nil
}
