package quartz

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/quartzvault/quartz/crypto/bech32"
	"github.com/quartzvault/quartz/errors"
)

// IdentityLength is the length of all identities. You can modify it in
// init() before any identities are calculated, but it must not change
// during the lifetime of the store.
var IdentityLength = 20

// Identity is a collision-free, one-way digest of the public key material
// that authenticates a party. It is opaque to the engine, two identities
// are only ever compared for equality.
type Identity []byte

// NewIdentity hashes and truncates into the proper size.
func NewIdentity(data []byte) Identity {
	if data == nil {
		return nil
	}
	h := sha256.Sum256(data)
	return h[:IdentityLength]
}

// Clone returns a copy that shares no memory with the original.
func (a Identity) Clone() Identity {
	if a == nil {
		return nil
	}
	cpy := make(Identity, len(a))
	copy(cpy, a)
	return cpy
}

// Equals checks if two identities are the same.
func (a Identity) Equals(b Identity) bool {
	return bytes.Equal(a, b)
}

// String returns a human readable string. Currently hex.
func (a Identity) String() string {
	if len(a) == 0 {
		return "(nil)"
	}
	return strings.ToUpper(hex.EncodeToString(a))
}

// Validate returns an error if the identity is not the valid size.
func (a Identity) Validate() error {
	if len(a) != IdentityLength {
		return errors.ErrInput.Newf("identity: %v", a)
	}
	return nil
}

// Bech32 returns the identity encoded with the given human readable
// prefix.
func (a Identity) Bech32(hrp string) (string, error) {
	raw, err := bech32.Encode(hrp, a)
	if err != nil {
		return "", errors.Wrap(err, "encode identity")
	}
	return string(raw), nil
}

// MarshalJSON provides a hex representation for JSON, to override the
// standard base64 []byte encoding.
func (a Identity) MarshalJSON() ([]byte, error) {
	s := strings.ToUpper(hex.EncodeToString(a))
	return json.Marshal(s)
}

func (a *Identity) UnmarshalJSON(raw []byte) error {
	var enc string
	if err := json.Unmarshal(raw, &enc); err != nil {
		return errors.Wrap(err, "cannot decode json")
	}
	id, err := ParseIdentity(enc)
	if err != nil {
		return err
	}
	*a = id
	return nil
}

// ParseIdentity accepts an identity in a human readable format and returns
// its binary representation. Accepted formats are "hex:<data>",
// "bech32:<data>" and plain hex with no prefix.
func ParseIdentity(enc string) (Identity, error) {
	// If the encoded string starts with a prefix, cut it off and use
	// specified decoding method instead of the default one.
	chunks := strings.SplitN(enc, ":", 2)
	format := chunks[0]
	if len(chunks) == 1 {
		format = "hex"
	} else {
		enc = chunks[1]
	}

	if len(enc) == 0 {
		return nil, nil
	}

	switch format {
	case "hex":
		val, err := hex.DecodeString(enc)
		if err != nil {
			return nil, errors.Wrap(err, "cannot decode hex")
		}
		id := Identity(val)
		if err := id.Validate(); err != nil {
			return nil, err
		}
		return id, nil
	case "bech32":
		_, payload, err := bech32.Decode(enc)
		if err != nil {
			return nil, errors.Wrapf(err, "deserialize bech32: %s", err)
		}
		id := Identity(payload)
		if err := id.Validate(); err != nil {
			return nil, err
		}
		return id, nil
	default:
		return nil, errors.ErrInput.Newf("unknown format %q", chunks[0])
	}
}
