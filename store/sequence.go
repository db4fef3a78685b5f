package store

import (
	"encoding/binary"
	"sync"

	"github.com/quartzvault/quartz/errors"
)

// Sequence maintains a counter, and generates a series of keys. Each key is
// greater than the last, both NextInt() as well as bytes.Compare() on
// NextVal(). The counter state lives in the backing store so it survives
// restarts, increments are serialized so concurrent callers never observe
// the same value.
type Sequence struct {
	mu sync.Mutex
	id []byte
}

// NewSequence returns a sequence counter. Sequence is using following
// pattern to construct a key:
//    _s.<bucket>:<name>
func NewSequence(bucket, name string) *Sequence {
	id := "_s." + bucket + ":" + name
	return &Sequence{
		id: []byte(id),
	}
}

// NextVal increments the sequence and returns its state as 8 bytes.
func (s *Sequence) NextVal(db KVStore) ([]byte, error) {
	_, bz, err := s.increment(db, 1)
	return bz, err
}

// NextInt increments the sequence and returns its state as int.
func (s *Sequence) NextInt(db KVStore) (int64, error) {
	val, _, err := s.increment(db, 1)
	return val, err
}

// Latest returns the recently returned value of the sequence. This method
// does not modify the sequence state. Use NextVal or NextInt to acquire a
// sequence value that was not given to anyone else.
func (s *Sequence) Latest(db KVStore) (int64, []byte, error) {
	return s.increment(db, 0)
}

func (s *Sequence) increment(db KVStore, inc int64) (int64, []byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := db.Get(s.id)
	if err != nil {
		return 0, nil, errors.Wrap(err, "sequence read")
	}
	val := DecodeSequence(raw)
	if inc == 0 {
		return val, raw, nil
	}
	val += inc
	raw = EncodeSequence(val)
	if err := db.Set(s.id, raw); err != nil {
		return 0, nil, errors.Wrap(err, "sequence write")
	}
	return val, raw, nil
}

// DecodeSequence interprets given serialized sequence state. Nil is a valid
// state of a sequence that was never incremented.
func DecodeSequence(bz []byte) int64 {
	if bz == nil {
		return 0
	}
	val := binary.BigEndian.Uint64(bz)
	return int64(val)
}

// EncodeSequence returns an 8 byte big endian representation of the state.
func EncodeSequence(val int64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(val))
	return bz
}
