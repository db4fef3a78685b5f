package signer

import (
	"context"
	"sync"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/crypto"
	"github.com/quartzvault/quartz/errors"
)

// Dev is a development signing backend that derives a deterministic key
// from a seed and signs entirely in-process. There is no security boundary
// here, the private key lives in this process memory. Unsafe for
// production use, intended for tests, local networks and demos.
type Dev struct {
	mu        sync.Mutex
	seed      []byte
	account   uint32
	priv      *crypto.PrivateKey
	connected bool
}

var _ Backend = (*Dev)(nil)

// NewDev returns a development backend deriving its key from the given
// seed and account index. The same inputs always produce the same signing
// identity.
func NewDev(seed []byte, account uint32) *Dev {
	return &Dev{
		seed:    seed,
		account: account,
	}
}

// Connect unseals the in-memory key.
func (d *Dev) Connect(ctx context.Context) (crypto.PublicKey, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.connected {
		return nil, errors.ErrState.New("already connected")
	}
	priv, err := crypto.DeriveFromSeed(d.seed, d.account)
	if err != nil {
		return nil, errors.Wrap(errors.ErrSigning, err.Error())
	}
	d.priv = priv
	d.connected = true
	return priv.PublicKey(), nil
}

// Sign signs with the unsealed key. Calls are serialized, a backend
// instance supports at most one in-flight signing operation.
func (d *Dev) Sign(ctx context.Context, tx quartz.Transaction) (quartz.SignedTransaction, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	var stx quartz.SignedTransaction
	if !d.connected {
		return stx, errors.ErrState.New("not connected")
	}
	if err := ctx.Err(); err != nil {
		return stx, errors.Wrap(errors.ErrTimeout, err.Error())
	}
	if err := tx.Validate(); err != nil {
		return stx, errors.Wrap(err, "transaction")
	}
	sig, err := d.priv.Sign(tx.SigningBytes())
	if err != nil {
		return stx, errors.Wrap(errors.ErrSigning, err.Error())
	}
	return quartz.SignedTransaction{
		Transaction: tx,
		PubKey:      []byte(d.priv.PublicKey()),
		Signature:   sig,
	}, nil
}

// SignBatch signs sequentially, stopping at the first failure.
func (d *Dev) SignBatch(ctx context.Context, txs []quartz.Transaction) ([]quartz.SignedTransaction, error) {
	return signBatch(ctx, d, txs)
}

// Disconnect drops the unsealed key. Idempotent.
func (d *Dev) Disconnect() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.priv = nil
	d.connected = false
	return nil
}
