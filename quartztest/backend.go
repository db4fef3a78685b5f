package quartztest

import (
	"context"
	"sync"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/crypto"
	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/signer"
)

// Backend is a signing backend mock. Zero value is a functional backend
// that produces real ed25519 signatures over a generated throwaway key.
// Set the error fields to make individual operations fail.
type Backend struct {
	mu sync.Mutex

	// ConnectErr is returned by Connect when set.
	ConnectErr error
	// SignErr is returned by Sign when set. SignBatch fails on the
	// first transaction.
	SignErr error
	// DisconnectErr is returned by Disconnect when set.
	DisconnectErr error

	// Key is the signing key. Lazily generated when nil.
	Key crypto.Signer

	connectCalls    int
	signCalls       int
	disconnectCalls int
	connected       bool
}

var _ signer.Backend = (*Backend)(nil)

func (b *Backend) Connect(ctx context.Context) (crypto.PublicKey, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.connectCalls++
	if b.ConnectErr != nil {
		return nil, b.ConnectErr
	}
	if b.Key == nil {
		b.Key = crypto.GenPrivKey()
	}
	b.connected = true
	return b.Key.PublicKey(), nil
}

func (b *Backend) Sign(ctx context.Context, tx quartz.Transaction) (quartz.SignedTransaction, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.signCalls++
	if b.SignErr != nil {
		return quartz.SignedTransaction{}, b.SignErr
	}
	if !b.connected {
		return quartz.SignedTransaction{}, errors.Wrap(errors.ErrState, "not connected")
	}
	sig, err := b.Key.Sign(tx.SigningBytes())
	if err != nil {
		return quartz.SignedTransaction{}, err
	}
	return quartz.SignedTransaction{
		Transaction: tx,
		PubKey:      b.Key.PublicKey(),
		Signature:   sig,
	}, nil
}

func (b *Backend) SignBatch(ctx context.Context, txs []quartz.Transaction) ([]quartz.SignedTransaction, error) {
	signed := make([]quartz.SignedTransaction, 0, len(txs))
	for i, tx := range txs {
		stx, err := b.Sign(ctx, tx)
		if err != nil {
			return signed, errors.Wrapf(err, "transaction %d", i)
		}
		signed = append(signed, stx)
	}
	return signed, nil
}

func (b *Backend) Disconnect() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.disconnectCalls++
	b.connected = false
	return b.DisconnectErr
}

// ConnectCalls returns the number of times Connect was called.
func (b *Backend) ConnectCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.connectCalls
}

// SignCalls returns the number of times Sign was called, including calls
// made through SignBatch.
func (b *Backend) SignCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.signCalls
}

// DisconnectCalls returns the number of times Disconnect was called.
func (b *Backend) DisconnectCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.disconnectCalls
}
