package iavl

import (
	"sync"

	"github.com/tendermint/iavl"
	dbm "github.com/tendermint/tendermint/libs/db"

	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/store"
)

// cacheSize is the number of inner nodes the tree keeps in memory.
const cacheSize = 10000

// CommitStore manages an iavl committed state. It satisfies store.KVStore
// so engine state can be kept in a versioned merkle tree and persisted to
// disk, with every Commit producing a provable root hash. All operations
// are serialized, the underlying tree is not safe for concurrent use.
type CommitStore struct {
	mu   sync.Mutex
	tree *iavl.MutableTree
}

var _ store.CommitKVStore = (*CommitStore)(nil)

// NewCommitStore creates a new store with disk backing under the given
// directory. The name determines the database file name.
func NewCommitStore(dir, name string) *CommitStore {
	db := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
	return &CommitStore{tree: iavl.NewMutableTree(db, cacheSize)}
}

// NewMemCommitStore creates a store without disk backing, useful in tests.
func NewMemCommitStore() *CommitStore {
	return &CommitStore{tree: iavl.NewMutableTree(dbm.NewMemDB(), cacheSize)}
}

// Get returns the value stored under the key in the working tree, nil if
// the key doesn't exist.
func (s *CommitStore) Get(key []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, value := s.tree.Get(key)
	return value, nil
}

// Has checks if a key exists.
func (s *CommitStore) Has(key []byte) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.tree.Has(key), nil
}

// Set sets the key in the working tree. Call Commit to persist.
func (s *CommitStore) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.Set(key, value)
	return nil
}

// Delete removes the key from the working tree.
func (s *CommitStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tree.Remove(key)
	return nil
}

// Iterator over a domain of keys in ascending order. The range is copied
// out under the store lock, an open iterator does not block writers.
func (s *CommitStore) Iterator(start, end []byte) (store.Iterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pairs []keyValue
	s.tree.IterateRange(start, end, true, func(key, value []byte) bool {
		pairs = append(pairs, keyValue{key: key, value: value})
		return false
	})
	return &rangeIterator{pairs: pairs}, nil
}

// Commit persists the working tree to disk as the next version and returns
// info about it.
func (s *CommitStore) Commit() (store.CommitID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash, version, err := s.tree.SaveVersion()
	if err != nil {
		return store.CommitID{}, errors.Wrap(err, "save version")
	}
	return store.CommitID{
		Version: version,
		Hash:    hash,
	}, nil
}

// LoadLatestVersion loads the latest persisted version. If there was a
// crash during the last commit, it is guaranteed to return a stable state,
// even if older.
func (s *CommitStore) LoadLatestVersion() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.tree.Load(); err != nil {
		return errors.Wrap(err, "load latest")
	}
	return nil
}

// LatestVersion returns info on the latest version saved to disk.
func (s *CommitStore) LatestVersion() store.CommitID {
	s.mu.Lock()
	defer s.mu.Unlock()

	return store.CommitID{
		Version: s.tree.Version(),
		Hash:    s.tree.Hash(),
	}
}

type keyValue struct {
	key   []byte
	value []byte
}

type rangeIterator struct {
	pairs []keyValue
}

var _ store.Iterator = (*rangeIterator)(nil)

func (i *rangeIterator) Next() ([]byte, []byte, error) {
	if len(i.pairs) == 0 {
		return nil, nil, store.ErrIteratorDone
	}
	next := i.pairs[0]
	i.pairs = i.pairs[1:]
	return next.key, next.value, nil
}

func (i *rangeIterator) Release() {
	i.pairs = nil
}
