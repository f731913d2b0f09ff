package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"neuroswarm/internal/errs"
)

type memRecord struct {
	value   []byte
	version int64
}

// MemoryStore is the in-process Store implementation. It is the system of
// record for single-process deployments and for tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*memRecord
	sets    map[string]map[string]struct{}
	lists   map[string][][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*memRecord),
		sets:    make(map[string]map[string]struct{}),
		lists:   make(map[string][][]byte),
	}
}

func (m *MemoryStore) Get(_ context.Context, key string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key]
	if !ok {
		return Record{}, errs.NotFound("key %q", key)
	}
	value := make([]byte, len(rec.value))
	copy(value, rec.value)
	return Record{Value: value, Version: rec.version}, nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)

	rec, ok := m.records[key]
	if !ok {
		m.records[key] = &memRecord{value: stored, version: 1}
		return 1, nil
	}
	rec.value = stored
	rec.version++
	return rec.version, nil
}

func (m *MemoryStore) CompareAndSwap(_ context.Context, key string, value []byte, expect int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[key]
	if !ok {
		return 0, errs.NotFound("key %q", key)
	}
	if rec.version != expect {
		return 0, errs.Conflict("key %q at version %d, expected %d", key, rec.version, expect)
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	rec.value = stored
	rec.version++
	return rec.version, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.records, key)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key := range m.records {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) SetAdd(_ context.Context, set, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	members, ok := m.sets[set]
	if !ok {
		members = make(map[string]struct{})
		m.sets[set] = members
	}
	members[member] = struct{}{}
	return nil
}

func (m *MemoryStore) SetRemove(_ context.Context, set, member string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if members, ok := m.sets[set]; ok {
		delete(members, member)
	}
	return nil
}

func (m *MemoryStore) SetMembers(_ context.Context, set string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	members := make([]string, 0, len(m.sets[set]))
	for member := range m.sets[set] {
		members = append(members, member)
	}
	sort.Strings(members)
	return members, nil
}

func (m *MemoryStore) ListAppend(_ context.Context, list string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	m.lists[list] = append(m.lists[list], stored)
	return nil
}

func (m *MemoryStore) ListRange(_ context.Context, list string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entries := m.lists[list]
	out := make([][]byte, len(entries))
	for i, entry := range entries {
		out[i] = make([]byte, len(entry))
		copy(out[i], entry)
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
