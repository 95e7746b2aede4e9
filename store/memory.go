package store

import (
	"bytes"
	"errors"
	"slices"
	"sort"
	"sync"
)

var _ KVStoreI = &MemoryKV{}

var errClosed = errors.New("database closed")

// MemoryKV is a map backed KVStoreI, nothing survives the process
type MemoryKV struct {
	mu      sync.RWMutex
	records map[string][]memRecord // [string(key)] -> records sorted by version descending
	closed  bool
}

type memRecord struct {
	version uint64
	value   []byte
}

// NewMemoryKV() creates an empty in-memory engine
func NewMemoryKV() *MemoryKV { return &MemoryKV{records: make(map[string][]memRecord)} }

// GetAt() returns the newest value of the key written at or before the version
func (m *MemoryKV) GetAt(key []byte, version uint64) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, errClosed
	}
	for _, r := range m.records[string(key)] {
		if r.version <= version {
			return bytes.Clone(r.value), nil
		}
	}
	return nil, nil
}

// WriteAt() writes every entry at the version under a single lock
func (m *MemoryKV) WriteAt(version uint64, entries []KV) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return errClosed
	}
	for _, e := range entries {
		k := string(e.Key)
		recs := m.records[k]
		// position so the slice stays sorted by version descending
		i := sort.Search(len(recs), func(i int) bool { return recs[i].version <= version })
		if i < len(recs) && recs[i].version == version {
			recs[i].value = bytes.Clone(e.Value)
			continue
		}
		m.records[k] = slices.Insert(recs, i, memRecord{version: version, value: bytes.Clone(e.Value)})
	}
	return nil
}

// Scan() visits the newest value of every key with the prefix in key order
func (m *MemoryKV) Scan(prefix []byte, cb func(key, value []byte) error) error {
	m.mu.RLock()
	if m.closed {
		m.mu.RUnlock()
		return errClosed
	}
	var keys []string
	for k := range m.records {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = m.records[k][0].value
	}
	m.mu.RUnlock()
	for i, k := range keys {
		if err := cb([]byte(k), bytes.Clone(values[i])); err != nil {
			return err
		}
	}
	return nil
}

// Close() drops every record
func (m *MemoryKV) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed, m.records = true, nil
	return nil
}
