/*
Package gateway abstracts the ledger that finalizes signed transactions.

The authorization engine treats the ledger as an opaque
broadcast-and-confirm service: it asks for a freshness token while
assembling a transaction, submits the signed bytes and waits for a
confirmation. Failures are split into transient ones
(errors.IsTransient == true, the same execution attempt may be retried)
and permanent rejections that require operator intervention.
*/
package gateway

import (
	"context"

	"github.com/quartzvault/quartz"
)

// Confirmation is the ledger receipt for a finalized transaction.
type Confirmation struct {
	// TxHash identifies the transaction on the ledger.
	TxHash []byte
	// Height is the block the transaction was finalized in.
	Height int64
}

// Gateway is the submit-and-confirm primitive the engine calls to
// broadcast a finally-assembled, signed transaction.
type Gateway interface {
	// FreshnessToken returns recent, ledger-supplied anti-replay data
	// to be embedded in a transaction before signing. A signature over
	// a stale token is not accepted by the ledger.
	FreshnessToken(ctx context.Context) ([]byte, error)

	// Submit broadcasts the signed transaction and waits for the
	// ledger to either confirm or reject it. A transient error means
	// the outcome is unknown or retryable, a permanent error means the
	// ledger refused the transaction.
	Submit(ctx context.Context, stx quartz.SignedTransaction) (*Confirmation, error)

	// Confirm looks up whether a previously submitted transaction was
	// finalized. Returns ErrNotFound when the ledger has no record of
	// it.
	Confirm(ctx context.Context, txHash []byte) (*Confirmation, error)
}
