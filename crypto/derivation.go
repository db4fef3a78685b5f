package crypto

import (
	"fmt"

	"github.com/stellar/go/exp/crypto/derivation"

	"github.com/quartzvault/quartz/errors"
)

// DeriveFromSeed deterministically derives an account private key from a
// master seed using SLIP-0010 ed25519 path derivation. The same seed and
// account index always resolve to the same key, which is what the
// development signing backend relies on.
func DeriveFromSeed(seed []byte, account uint32) (*PrivateKey, error) {
	if len(seed) == 0 {
		return nil, errors.ErrEmpty.New("seed")
	}
	path := fmt.Sprintf(derivation.StellarAccountPathFormat, account)
	key, err := derivation.DeriveForPath(path, seed)
	if err != nil {
		return nil, errors.Wrap(err, "derive path")
	}
	priv, err := PrivKeyFromSeed(key.Key)
	if err != nil {
		return nil, errors.Wrap(err, "derived key")
	}
	return priv, nil
}
