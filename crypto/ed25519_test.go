package crypto

import (
	"bytes"
	"testing"

	"github.com/quartzvault/quartz/quartztest/assert"
)

func TestEd25519Signing(t *testing.T) {
	private := GenPrivKey()
	public := private.PublicKey()

	msg := []byte("foobar")
	msg2 := []byte("dingbooms")

	sig, err := private.Sign(msg)
	assert.Nil(t, err)
	sig2, err := private.Sign(msg2)
	assert.Nil(t, err)

	if bytes.Equal(sig, sig2) {
		t.Fatal("different messages produce the same signature")
	}

	if !public.Verify(msg, sig) {
		t.Fatal("cannot verify a message signed with this public key")
	}
	if !public.Verify(msg2, sig2) {
		t.Fatal("cannot verify a message signed with this public key")
	}

	if public.Verify(msg, sig2) {
		t.Fatal("verified message signature of the wrong message")
	}
	if public.Verify(msg2, sig) {
		t.Fatal("verified message signature of the wrong message")
	}

	if public.Verify(msg, []byte{}) {
		t.Fatal("verified an empty signature of a message")
	}
	if public.Verify(msg, nil) {
		t.Fatal("verified a nil signature of a message")
	}
}

func TestEd25519Identity(t *testing.T) {
	pub := GenPrivKey().PublicKey()
	pub2 := GenPrivKey().PublicKey()
	empty := PublicKey{}

	assert.Nil(t, pub.Identity().Validate())
	assert.Nil(t, pub2.Identity().Validate())
	if bytes.Equal(pub.Identity(), pub2.Identity()) {
		t.Fatal("different public keys produce the same identity")
	}
	if empty.Validate() == nil {
		t.Fatal("empty public key must not validate")
	}
}

func TestPrivKeyFromSeed(t *testing.T) {
	cases := map[string]struct {
		seed    []byte
		wantErr bool
	}{
		"zero seed":              {seed: make([]byte, 32)},
		"patterned seed":         {seed: bytes.Repeat([]byte{31}, 32)},
		"no seed":                {seed: nil, wantErr: true},
		"wrong seed size (n<32)": {seed: []byte{0}, wantErr: true},
		"wrong seed size (n>32)": {seed: make([]byte, 33), wantErr: true},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			key, err := PrivKeyFromSeed(tc.seed)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			assert.Nil(t, err)

			again, err := PrivKeyFromSeed(tc.seed)
			assert.Nil(t, err)
			assert.Equal(t, key.PublicKey(), again.PublicKey())
		})
	}
}

func TestDeriveFromSeed(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)

	a, err := DeriveFromSeed(seed, 0)
	assert.Nil(t, err)
	b, err := DeriveFromSeed(seed, 0)
	assert.Nil(t, err)
	assert.Equal(t, a.PublicKey(), b.PublicKey())

	other, err := DeriveFromSeed(seed, 1)
	assert.Nil(t, err)
	if bytes.Equal(a.PublicKey(), other.PublicKey()) {
		t.Fatal("different accounts derive the same key")
	}

	if _, err := DeriveFromSeed(nil, 0); err == nil {
		t.Fatal("empty seed must fail")
	}
}
