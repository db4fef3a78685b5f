package store

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

const (
	// DefaultFreeListSize is the size we hold for free nodes in btree.
	DefaultFreeListSize = btree.DefaultFreeListSize

	// degree is the branching factor of the in-memory btree.
	degree = 2
)

// MemStore is a btree backed KVStore implementation. Writes and reads are
// safe for concurrent use, ordering over keys follows bytes.Compare. There
// is no persistence, intended for tests and as a cache layer.
type MemStore struct {
	mu sync.RWMutex
	bt *btree.BTree
}

var _ KVStore = (*MemStore)(nil)

// NewMemStore returns an empty in-memory store.
func NewMemStore() *MemStore {
	return &MemStore{
		bt: btree.NewWithFreeList(degree, btree.NewFreeList(DefaultFreeListSize)),
	}
}

// item is a btree node payload holding one key/value pair.
type item struct {
	key   []byte
	value []byte
}

func (i item) Less(than btree.Item) bool {
	return bytes.Compare(i.key, than.(item).key) < 0
}

// Get returns nil iff key doesn't exist. Panics on nil key.
func (m *MemStore) Get(key []byte) ([]byte, error) {
	assertValidKey(key)
	m.mu.RLock()
	defer m.mu.RUnlock()

	res := m.bt.Get(item{key: key})
	if res == nil {
		return nil, nil
	}
	return res.(item).value, nil
}

// Has checks if a key exists. Panics on nil key.
func (m *MemStore) Has(key []byte) (bool, error) {
	assertValidKey(key)
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.bt.Has(item{key: key}), nil
}

// Set sets the key. Panics on nil key.
func (m *MemStore) Set(key, value []byte) error {
	assertValidKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bt.ReplaceOrInsert(item{key: key, value: value})
	return nil
}

// Delete deletes the key. Panics on nil key.
func (m *MemStore) Delete(key []byte) error {
	assertValidKey(key)
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bt.Delete(item{key: key})
	return nil
}

// Iterator over a domain of keys in ascending order. The iterator operates
// on a snapshot taken at creation time, concurrent writes do not affect an
// open iterator.
func (m *MemStore) Iterator(start, end []byte) (Iterator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var items []item
	collect := func(i btree.Item) bool {
		items = append(items, i.(item))
		return true
	}
	switch {
	case start == nil && end == nil:
		m.bt.Ascend(collect)
	case start == nil:
		m.bt.AscendLessThan(item{key: end}, collect)
	case end == nil:
		m.bt.AscendGreaterOrEqual(item{key: start}, collect)
	default:
		m.bt.AscendRange(item{key: start}, item{key: end}, collect)
	}
	return &sliceIterator{items: items}, nil
}

func assertValidKey(key []byte) {
	if key == nil {
		panic("key is nil")
	}
}

// sliceIterator wraps an in-memory snapshot of a key range.
type sliceIterator struct {
	items    []item
	released bool
}

var _ Iterator = (*sliceIterator)(nil)

func (i *sliceIterator) Next() ([]byte, []byte, error) {
	if i.released || len(i.items) == 0 {
		return nil, nil, ErrIteratorDone
	}
	next := i.items[0]
	i.items = i.items[1:]
	return next.key, next.value, nil
}

func (i *sliceIterator) Release() {
	i.released = true
	i.items = nil
}
