// Package store provides the small string key-value persistence used for
// preferences. Values are opaque strings; structured values are JSON
// encoded by the caller.
package store

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ErrClosed is returned by operations on a closed store.
var ErrClosed = errors.New("store is closed")

// Store is a synchronous key-value store. SetBatch applies all writes and
// deletes or none of them.
type Store interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	SetBatch(b Batch) error
	Close() error
}

// Batch is a group of writes applied atomically by SetBatch.
type Batch struct {
	Set    map[string]string
	Delete []string
}

// NewBatch returns an empty batch.
func NewBatch() Batch {
	return Batch{Set: map[string]string{}}
}

// Put records a write.
func (b *Batch) Put(key, value string) {
	if b.Set == nil {
		b.Set = map[string]string{}
	}
	b.Set[key] = value
}

// Remove records a delete.
func (b *Batch) Remove(key string) {
	b.Delete = append(b.Delete, key)
}

// Keys lists the written keys in sorted order.
func (b Batch) Keys() []string {
	keys := make([]string, 0, len(b.Set))
	for k := range b.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Open selects an implementation by driver name ("file", "sqlite",
// "memory").
func Open(driver, path string) (Store, error) {
	switch strings.ToLower(driver) {
	case "", "file", "json":
		s, err := NewFileStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		s, err := NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "memory":
		return NewMemStore(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", driver)
	}
}

// MemStore keeps everything in memory. FailWrites makes every write fail,
// which is how tests simulate a full or read-only disk.
type MemStore struct {
	mu         sync.Mutex
	data       map[string]string
	FailWrites bool
}

func NewMemStore() *MemStore {
	return &MemStore{data: map[string]string{}}
}

func (m *MemStore) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemStore) Set(key, value string) error {
	b := NewBatch()
	b.Put(key, value)
	return m.SetBatch(b)
}

func (m *MemStore) Delete(key string) error {
	return m.SetBatch(Batch{Delete: []string{key}})
}

func (m *MemStore) SetBatch(b Batch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWrites {
		return errors.New("memstore: writes disabled")
	}
	for k, v := range b.Set {
		m.data[k] = v
	}
	for _, k := range b.Delete {
		delete(m.data, k)
	}
	return nil
}

func (m *MemStore) Close() error { return nil }
