/*
Package signer defines the contract between the authorization engine and
whatever produces transaction signatures. The engine only ever sees the
Backend interface, whether the signature comes from an in-memory
development key or a remote hardware service is a deployment decision.

A backend instance is a single-owner resource, it must not be shared by two
in-flight executions. Use WithSession to guarantee the session is released
on every exit path.
*/
package signer

import (
	"context"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/crypto"
	"github.com/quartzvault/quartz/errors"
)

// Backend produces signatures over assembled transactions. The lifecycle
// is Connect, any number of Sign/SignBatch calls, Disconnect. No private
// key material ever crosses this boundary.
type Backend interface {
	// Connect establishes a session with the signing backend and
	// returns the public key that will be used for signatures. Calling
	// Connect on an already connected backend fails, release the
	// session first.
	Connect(ctx context.Context) (crypto.PublicKey, error)

	// Sign produces a signature over the transaction signing bytes. It
	// requires an established session and may block for an arbitrary,
	// backend-defined duration (hardware round-trip, operator
	// confirmation).
	Sign(ctx context.Context, tx quartz.Transaction) (quartz.SignedTransaction, error)

	// SignBatch signs the transactions sequentially and stops at the
	// first failure, returning the partial results signed so far
	// together with the error. Callers must not assume all-or-nothing
	// unless a specific backend documents atomic batch signing.
	SignBatch(ctx context.Context, txs []quartz.Transaction) ([]quartz.SignedTransaction, error)

	// Disconnect releases the session. Calling it when already
	// disconnected is a no-op, not an error.
	Disconnect() error
}

// WithSession connects the backend, runs fn with the session public key
// and always disconnects afterwards, including when fn fails or panics.
// Backends leak hardware or service sessions when not released, so every
// engine code path acquires them through here.
func WithSession(ctx context.Context, b Backend, fn func(pub crypto.PublicKey) error) (err error) {
	pub, err := b.Connect(ctx)
	if err != nil {
		return errors.Wrap(err, "connect")
	}
	defer func() {
		if dErr := b.Disconnect(); dErr != nil && err == nil {
			err = errors.Wrap(dErr, "disconnect")
		}
	}()
	defer errors.Recover(&err)
	return fn(pub)
}

// signBatch is the sequential default shared by backend implementations.
func signBatch(ctx context.Context, b Backend, txs []quartz.Transaction) ([]quartz.SignedTransaction, error) {
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
