package quartz

import (
	"crypto/sha256"
	"encoding/binary"

	amino "github.com/tendermint/go-amino"

	"github.com/quartzvault/quartz/errors"
)

// txCodec serializes transactions for wire submission. Amino gives a
// deterministic binary encoding without requiring generated code.
var txCodec = amino.NewCodec()

// Transaction is an assembled but not yet signed action. The payload is
// the opaque serialized intent captured at proposal creation, the
// freshness token is supplied by the ledger right before signing to
// prevent replay of an old signature.
type Transaction struct {
	Payload   []byte
	Freshness []byte
}

// Validate returns an error if the transaction misses required data.
func (tx Transaction) Validate() error {
	if len(tx.Payload) == 0 {
		return errors.ErrEmpty.New("payload")
	}
	if len(tx.Freshness) == 0 {
		return errors.ErrEmpty.New("freshness token")
	}
	return nil
}

// SigningBytes returns the deterministic digest that signing backends
// produce a signature over. Payload and freshness token are length-framed
// before hashing so that no two distinct transactions share a digest.
func (tx Transaction) SigningBytes() []byte {
	h := sha256.New()
	var frame [8]byte
	binary.BigEndian.PutUint64(frame[:], uint64(len(tx.Payload)))
	h.Write(frame[:])
	h.Write(tx.Payload)
	binary.BigEndian.PutUint64(frame[:], uint64(len(tx.Freshness)))
	h.Write(frame[:])
	h.Write(tx.Freshness)
	return h.Sum(nil)
}

// SignedTransaction is a transaction together with exactly one signature
// over its signing bytes. The signature scheme is determined by whichever
// backend produced it, the engine treats both fields as opaque.
type SignedTransaction struct {
	Transaction Transaction
	PubKey      []byte
	Signature   []byte
}

// Validate returns an error if any of the signature data is missing.
func (stx SignedTransaction) Validate() error {
	if err := stx.Transaction.Validate(); err != nil {
		return errors.Wrap(err, "transaction")
	}
	if len(stx.PubKey) == 0 {
		return errors.ErrEmpty.New("public key")
	}
	if len(stx.Signature) == 0 {
		return errors.ErrEmpty.New("signature")
	}
	return nil
}

// Marshal returns the wire representation submitted to the ledger.
func (stx SignedTransaction) Marshal() ([]byte, error) {
	bz, err := txCodec.MarshalBinaryBare(stx)
	if err != nil {
		return nil, errors.Wrap(err, "marshal signed transaction")
	}
	return bz, nil
}

// UnmarshalSignedTransaction parses the wire representation.
func UnmarshalSignedTransaction(bz []byte) (SignedTransaction, error) {
	var stx SignedTransaction
	if err := txCodec.UnmarshalBinaryBare(bz, &stx); err != nil {
		return stx, errors.Wrap(err, "unmarshal signed transaction")
	}
	return stx, nil
}

// Hash returns the ledger-side identifier of this signed transaction,
// usable for confirmation lookups before the ledger reported one.
func (stx SignedTransaction) Hash() ([]byte, error) {
	bz, err := stx.Marshal()
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(bz)
	return h[:], nil
}
