package store

import (
	"github.com/quartzvault/quartz/errors"
)

// ErrIteratorDone is returned by an Iterator Next call when all entries in
// the requested range were consumed.
var ErrIteratorDone = errors.Register(20, "iterator done")

// ReadOnlyKVStore is a simple interface to get data out of a KVStore.
type ReadOnlyKVStore interface {
	// Get returns nil iff key doesn't exist. Panics on nil key.
	Get(key []byte) ([]byte, error)

	// Has checks if a key exists.
	Has(key []byte) (bool, error)

	// Iterator over a domain of keys in ascending order.
	// Start must be less than end, or the Iterator is invalid.
	// Start is inclusive and end is exclusive. A nil start iterates
	// from the first key, a nil end iterates to the last.
	Iterator(start, end []byte) (Iterator, error)
}

// KVStore is the basic interface to abstract the backing database.
type KVStore interface {
	ReadOnlyKVStore

	// Set sets the key. Panics on nil key.
	Set(key, value []byte) error

	// Delete deletes the key. Panics on nil key.
	Delete(key []byte) error
}

// Iterator allows iteration over a range of keys in deterministic order.
type Iterator interface {
	// Next moves the iterator to the next sequential key in the
	// database. It returns ErrIteratorDone when the range is consumed.
	Next() (key, value []byte, err error)

	// Release frees all resources held by the iterator. Any following
	// Next call fails.
	Release()
}

// CommitKVStore is a KVStore that can be persisted as versioned snapshots.
type CommitKVStore interface {
	KVStore

	// Commit persists the current state as the next version and
	// returns information about it.
	Commit() (CommitID, error)

	// LoadLatestVersion loads the latest persisted version. If there
	// was a crash during the last commit, it is guaranteed to return a
	// stable state, even if older.
	LoadLatestVersion() error

	// LatestVersion returns info on the latest version saved to disk.
	LatestVersion() CommitID
}

// CommitID contains the tree version number and its merkle root.
type CommitID struct {
	Version int64
	Hash    []byte
}
