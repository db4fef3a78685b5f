package engine

import (
	"bytes"
	"encoding/binary"

	amino "github.com/tendermint/go-amino"

	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/store"
)

// codec serializes engine state into the key-value store. Amino provides a
// deterministic binary encoding for the hand-written model structs.
var codec = amino.NewCodec()

const (
	proposalBucket = "proposal"
	registryBucket = "registry"
)

// RegistryID names one quorum group within a shared store. Different
// registries never see each other's proposals.
type RegistryID []byte

// Validate returns an error if the id is empty or contains the key
// separator. An id carrying ':' would make its key prefix a prefix of
// another registry's keys and leak proposals across registries.
func (id RegistryID) Validate() error {
	if len(id) == 0 {
		return errors.ErrEmpty.New("registry id")
	}
	if bytes.IndexByte(id, ':') != -1 {
		return errors.ErrInput.Newf("registry id %q contains the key separator", id)
	}
	return nil
}

// proposalPrefix is "proposal:<registry>:", shared by all proposals of
// one registry.
func proposalPrefix(registryID RegistryID) []byte {
	key := make([]byte, 0, len(proposalBucket)+1+len(registryID)+1+8)
	key = append(key, proposalBucket...)
	key = append(key, ':')
	key = append(key, registryID...)
	return append(key, ':')
}

// proposalKey appends the 8 byte big endian index to the prefix so that
// iteration returns proposals of one registry in creation order.
func proposalKey(registryID RegistryID, index uint64) []byte {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], index)
	return append(proposalPrefix(registryID), raw[:]...)
}

func registryKey(registryID RegistryID) []byte {
	key := make([]byte, 0, len(registryBucket)+1+len(registryID))
	key = append(key, registryBucket...)
	key = append(key, ':')
	return append(key, registryID...)
}

// ProposalStore is the durable, ordered collection of proposals of one
// registry. Indexes are allocated by a sequence and strictly increase
// across all proposals ever created, cancellations leave gaps in no
// status, never in numbering.
type ProposalStore struct {
	db         store.KVStore
	registryID RegistryID
	seq        *store.Sequence
}

// NewProposalStore binds a proposal collection to a registry id within the
// given backing store.
func NewProposalStore(db store.KVStore, registryID RegistryID) (*ProposalStore, error) {
	if err := registryID.Validate(); err != nil {
		return nil, err
	}
	return &ProposalStore{
		db:         db,
		registryID: registryID,
		seq:        store.NewSequence(proposalBucket, string(registryID)),
	}, nil
}

// Create assigns the next monotonic index to the proposal and persists it.
func (s *ProposalStore) Create(p *Proposal) error {
	next, err := s.seq.NextInt(s.db)
	if err != nil {
		return errors.Wrap(err, "allocate index")
	}
	// The sequence starts at one, proposal indexes at zero.
	p.Index = uint64(next - 1)
	if err := p.Validate(); err != nil {
		return errors.Wrap(err, "proposal")
	}
	return s.save(p)
}

// Get loads the proposal with the given index.
func (s *ProposalStore) Get(index uint64) (*Proposal, error) {
	raw, err := s.db.Get(proposalKey(s.registryID, index))
	if err != nil {
		return nil, errors.Wrap(err, "store lookup")
	}
	if raw == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "proposal %d", index)
	}
	var p Proposal
	if err := codec.UnmarshalBinaryBare(raw, &p); err != nil {
		return nil, errors.Wrap(err, "unmarshal proposal")
	}
	return &p, nil
}

// Update persists a modified proposal. The proposal must have been created
// before.
func (s *ProposalStore) Update(p *Proposal) error {
	key := proposalKey(s.registryID, p.Index)
	has, err := s.db.Has(key)
	if err != nil {
		return errors.Wrap(err, "store lookup")
	}
	if !has {
		return errors.Wrapf(errors.ErrNotFound, "proposal %d", p.Index)
	}
	if err := p.Validate(); err != nil {
		return errors.Wrap(err, "proposal")
	}
	return s.save(p)
}

func (s *ProposalStore) save(p *Proposal) error {
	raw, err := codec.MarshalBinaryBare(p)
	if err != nil {
		return errors.Wrap(err, "marshal proposal")
	}
	if err := s.db.Set(proposalKey(s.registryID, p.Index), raw); err != nil {
		return errors.Wrap(err, "store write")
	}
	return nil
}

// Iterate walks all proposals of the registry in index order. The walk
// stops early when fn returns false.
func (s *ProposalStore) Iterate(fn func(*Proposal) bool) error {
	start := proposalPrefix(s.registryID)
	// The prefix ends with a separator byte, incrementing it yields the
	// smallest key greater than every proposal key of this registry.
	end := proposalPrefix(s.registryID)
	end[len(end)-1]++
	it, err := s.db.Iterator(start, end)
	if err != nil {
		return errors.Wrap(err, "store iterator")
	}
	defer it.Release()

	for {
		_, value, err := it.Next()
		if store.ErrIteratorDone.Is(err) {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "iterate")
		}
		var p Proposal
		if err := codec.UnmarshalBinaryBare(value, &p); err != nil {
			return errors.Wrap(err, "unmarshal proposal")
		}
		if !fn(&p) {
			return nil
		}
	}
}

// SaveRegistry persists a sealed registry under its id. Registries are
// immutable, overwriting an existing one is refused.
func SaveRegistry(db store.KVStore, id RegistryID, r *Registry) error {
	if err := id.Validate(); err != nil {
		return err
	}
	if err := r.Validate(); err != nil {
		return err
	}
	key := registryKey(id)
	has, err := db.Has(key)
	if err != nil {
		return errors.Wrap(err, "store lookup")
	}
	if has {
		return errors.Wrapf(errors.ErrDuplicate, "registry %q", id)
	}
	raw, err := codec.MarshalBinaryBare(r)
	if err != nil {
		return errors.Wrap(err, "marshal registry")
	}
	if err := db.Set(key, raw); err != nil {
		return errors.Wrap(err, "store write")
	}
	return nil
}

// LoadRegistry loads a sealed registry by its id.
func LoadRegistry(db store.KVStore, id RegistryID) (*Registry, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	raw, err := db.Get(registryKey(id))
	if err != nil {
		return nil, errors.Wrap(err, "store lookup")
	}
	if raw == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "registry %q", id)
	}
	var r Registry
	if err := codec.UnmarshalBinaryBare(raw, &r); err != nil {
		return nil, errors.Wrap(err, "unmarshal registry")
	}
	if err := r.Validate(); err != nil {
		return nil, errors.Wrap(err, "registry")
	}
	return &r, nil
}
