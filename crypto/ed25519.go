package crypto

import (
	"encoding/hex"
	"strings"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"golang.org/x/crypto/ed25519"
)

// ExtensionName prefixes the public key bytes before they are hashed into an
// address. It keeps addresses of different key types apart.
const ExtensionName = "sigs/ed25519/"

// PublicKey is an ed25519 public key that identifies an account.
type PublicKey []byte

// PrivateKey is an ed25519 private key.
type PrivateKey []byte

// Address returns the account address derived from this public key.
func (p PublicKey) Address() quorum.Address {
	return quorum.NewAddress(append([]byte(ExtensionName), p...))
}

// Verify verifies the signature was created with this message and public key
func (p PublicKey) Verify(message, sig []byte) bool {
	if len(p) != ed25519.PublicKeySize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(p), message, sig)
}

// String returns the upper case hex form of the key.
func (p PublicKey) String() string {
	return strings.ToUpper(hex.EncodeToString(p))
}

// Sign returns a matching signature for this private key
func (p PrivateKey) Sign(message []byte) ([]byte, error) {
	if len(p) != ed25519.PrivateKeySize {
		return nil, errors.Wrap(errors.ErrInput, "invalid private key length")
	}
	return ed25519.Sign(ed25519.PrivateKey(p), message), nil
}

// PublicKey returns the corresponding PublicKey
func (p PrivateKey) PublicKey() PublicKey {
	pub := ed25519.PrivateKey(p).Public().(ed25519.PublicKey)
	return PublicKey(pub)
}

// GenPrivKeyEd25519 returns a random new private key
func GenPrivKeyEd25519() PrivateKey {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		panic(err)
	}
	return PrivateKey(priv)
}

// PrivKeyEd25519FromSeed will deterministically generate a private key from
// a given seed. Use if you have a strong source of external randomness,
// or for deterministic keys in test cases.
func PrivKeyEd25519FromSeed(seed []byte) PrivateKey {
	return PrivateKey(ed25519.NewKeyFromSeed(seed))
}

// ParsePublicKey decodes a hex encoded ed25519 public key.
func ParsePublicKey(enc string) (PublicKey, error) {
	raw, err := hex.DecodeString(enc)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInput, "cannot decode hex")
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, errors.Wrapf(errors.ErrInput, "public key must be %d bytes", ed25519.PublicKeySize)
	}
	return PublicKey(raw), nil
}
