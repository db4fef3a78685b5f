package signer

import (
	"bytes"
	"context"
	"testing"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/crypto"
	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/quartztest/assert"
)

var devSeed = bytes.Repeat([]byte{0xaa}, 32)

func devTx(payload string) quartz.Transaction {
	return quartz.Transaction{
		Payload:   []byte(payload),
		Freshness: []byte("recent-block-hash"),
	}
}

func TestDevLifecycle(t *testing.T) {
	ctx := context.Background()
	backend := NewDev(devSeed, 0)

	// Sign before connect must fail and never produce a signature.
	if _, err := backend.Sign(ctx, devTx("transfer")); !errors.ErrState.Is(err) {
		t.Fatalf("want ErrState, got %+v", err)
	}

	pub, err := backend.Connect(ctx)
	assert.Nil(t, err)
	assert.Nil(t, pub.Validate())

	// A second connect without disconnect is a lifecycle violation.
	if _, err := backend.Connect(ctx); !errors.ErrState.Is(err) {
		t.Fatalf("want ErrState, got %+v", err)
	}

	stx, err := backend.Sign(ctx, devTx("transfer"))
	assert.Nil(t, err)
	assert.Nil(t, stx.Validate())
	if !crypto.PublicKey(stx.PubKey).Verify(stx.Transaction.SigningBytes(), stx.Signature) {
		t.Fatal("signature does not verify")
	}

	assert.Nil(t, backend.Disconnect())
	// Disconnect is idempotent.
	assert.Nil(t, backend.Disconnect())

	if _, err := backend.Sign(ctx, devTx("transfer")); !errors.ErrState.Is(err) {
		t.Fatalf("want ErrState after disconnect, got %+v", err)
	}
}

func TestDevDeterministicIdentity(t *testing.T) {
	ctx := context.Background()

	a, err := NewDev(devSeed, 3).Connect(ctx)
	assert.Nil(t, err)
	b, err := NewDev(devSeed, 3).Connect(ctx)
	assert.Nil(t, err)
	assert.Equal(t, a, b)

	other, err := NewDev(devSeed, 4).Connect(ctx)
	assert.Nil(t, err)
	if bytes.Equal(a, other) {
		t.Fatal("different accounts must derive different keys")
	}
}

func TestDevSignBatchPartialFailure(t *testing.T) {
	ctx := context.Background()
	backend := NewDev(devSeed, 0)
	_, err := backend.Connect(ctx)
	assert.Nil(t, err)
	defer backend.Disconnect()

	txs := []quartz.Transaction{
		devTx("first"),
		devTx("second"),
		{Payload: nil, Freshness: []byte("x")}, // invalid, signing stops here
		devTx("never-reached"),
	}

	signed, err := backend.SignBatch(ctx, txs)
	if err == nil {
		t.Fatal("expected an error on the invalid transaction")
	}
	// The first two results must be returned despite the failure.
	assert.Equal(t, 2, len(signed))
	for _, stx := range signed {
		assert.Nil(t, stx.Validate())
	}
}

func TestWithSessionAlwaysDisconnects(t *testing.T) {
	ctx := context.Background()
	backend := NewDev(devSeed, 0)

	inner := errors.ErrSigning.New("refused")
	err := WithSession(ctx, backend, func(pub crypto.PublicKey) error {
		return inner
	})
	assert.IsErr(t, errors.ErrSigning, err)

	// The session must be released, so a new one can be established.
	_, err = backend.Connect(ctx)
	assert.Nil(t, err)
	assert.Nil(t, backend.Disconnect())
}

func TestWithSessionRecoversPanic(t *testing.T) {
	ctx := context.Background()
	backend := NewDev(devSeed, 0)

	err := WithSession(ctx, backend, func(pub crypto.PublicKey) error {
		panic("backend exploded")
	})
	assert.IsErr(t, errors.ErrPanic, err)

	_, err = backend.Connect(ctx)
	assert.Nil(t, err)
	assert.Nil(t, backend.Disconnect())
}

func TestWithSessionConnectFailure(t *testing.T) {
	ctx := context.Background()
	// Empty seed cannot derive a key, connect must fail.
	backend := NewDev(nil, 0)

	var called bool
	err := WithSession(ctx, backend, func(pub crypto.PublicKey) error {
		called = true
		return nil
	})
	if err == nil {
		t.Fatal("expected connect failure")
	}
	if called {
		t.Fatal("fn must not run when connect fails")
	}
}
