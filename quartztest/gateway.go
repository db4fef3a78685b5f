package quartztest

import (
	"bytes"
	"context"
	"sync"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/gateway"
)

// Ledger is an in-memory gateway mock. Every successful Submit records
// the transaction as confirmed at an increasing height, so later Confirm
// calls find it. Error fields make individual operations fail.
type Ledger struct {
	mu sync.Mutex

	// TokenErr is returned by FreshnessToken when set.
	TokenErr error
	// SubmitErr is returned by Submit when set. When it is transient
	// and LoseSubmitted is set, the transaction is still recorded as
	// confirmed, simulating a broadcast whose receipt was lost.
	SubmitErr error
	// LoseSubmitted records the transaction despite SubmitErr.
	LoseSubmitted bool
	// ConfirmErr is returned by Confirm when set.
	ConfirmErr error

	submitCalls int
	tokenCalls  int
	height      int64
	confirmed   []gateway.Confirmation
}

var _ gateway.Gateway = (*Ledger)(nil)

func (l *Ledger) FreshnessToken(ctx context.Context) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.tokenCalls++
	if l.TokenErr != nil {
		return nil, l.TokenErr
	}
	// A token that changes with the ledger state, like a recent block
	// hash would.
	token := []byte{'t', 'o', 'k', byte(l.tokenCalls)}
	return token, nil
}

func (l *Ledger) Submit(ctx context.Context, stx quartz.SignedTransaction) (*gateway.Confirmation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.submitCalls++
	if err := stx.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrSubmission, err.Error())
	}
	hash, err := stx.Hash()
	if err != nil {
		return nil, err
	}
	if l.SubmitErr != nil {
		if l.LoseSubmitted {
			l.record(hash)
		}
		return nil, l.SubmitErr
	}
	conf := l.record(hash)
	return &conf, nil
}

func (l *Ledger) record(hash []byte) gateway.Confirmation {
	l.height++
	conf := gateway.Confirmation{TxHash: hash, Height: l.height}
	l.confirmed = append(l.confirmed, conf)
	return conf
}

func (l *Ledger) Confirm(ctx context.Context, txHash []byte) (*gateway.Confirmation, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.ConfirmErr != nil {
		return nil, l.ConfirmErr
	}
	for _, conf := range l.confirmed {
		if bytes.Equal(conf.TxHash, txHash) {
			c := conf
			return &c, nil
		}
	}
	return nil, errors.Wrap(errors.ErrNotFound, "no such transaction")
}

// SubmitCalls returns the number of times Submit was called.
func (l *Ledger) SubmitCalls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submitCalls
}

// Confirmed returns how many transactions the ledger finalized.
func (l *Ledger) Confirmed() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.confirmed)
}
