package crypto

import (
	"golang.org/x/crypto/ed25519"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/errors"
)

// PublicKey is the ed25519 public key material of a signing party.
type PublicKey []byte

// Verify verifies the signature was created with this message and public
// key.
func (p PublicKey) Verify(message []byte, sig []byte) bool {
	if len(p) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(p), message, sig)
}

// Identity derives the opaque engine-side identifier for this key.
func (p PublicKey) Identity() quartz.Identity {
	return quartz.NewIdentity(p)
}

// Validate returns an error if the key has the wrong size.
func (p PublicKey) Validate() error {
	if len(p) != ed25519.PublicKeySize {
		return errors.ErrInput.Newf("public key size: %d", len(p))
	}
	return nil
}

// Signer is the functionality we use from a private key. No serializing to
// support hardware devices as well.
type Signer interface {
	Sign(message []byte) ([]byte, error)
	PublicKey() PublicKey
}

var _ Signer = (*PrivateKey)(nil)

// PrivateKey holds in-memory ed25519 key material. Only the development
// signing backend ever materializes one, production backends keep the key
// behind their own boundary.
type PrivateKey struct {
	priv ed25519.PrivateKey
}

// Sign returns a matching signature for this private key.
func (p *PrivateKey) Sign(message []byte) ([]byte, error) {
	if len(p.priv) != ed25519.PrivateKeySize {
		return nil, errors.ErrState.New("uninitialized private key")
	}
	return ed25519.Sign(p.priv, message), nil
}

// PublicKey returns the corresponding public key.
func (p *PrivateKey) PublicKey() PublicKey {
	pub := p.priv.Public().(ed25519.PublicKey)
	return PublicKey(pub)
}

// GenPrivKey returns a random new private key using the default entropy
// source.
func GenPrivKey() *PrivateKey {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return &PrivateKey{priv: priv}
}

// PrivKeyFromSeed will deterministically generate a private key from a
// given 32 byte seed. Use if you have a strong source of external
// randomness, or for deterministic keys in test cases.
func PrivKeyFromSeed(seed []byte) (*PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.ErrInput.Newf("seed size: %d", len(seed))
	}
	return &PrivateKey{priv: ed25519.NewKeyFromSeed(seed)}, nil
}
