package crypto

import (
	"bytes"
	"testing"

	"github.com/iov-one/quorum/quorumtest/assert"
)

func TestEd25519Signing(t *testing.T) {
	private := GenPrivKeyEd25519()
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
}

func TestAddressIsDeterministic(t *testing.T) {
	seed := bytes.Repeat([]byte{7}, 32)
	a := PrivKeyEd25519FromSeed(seed).PublicKey()
	b := PrivKeyEd25519FromSeed(seed).PublicKey()

	assert.Equal(t, a.Address(), b.Address())
	assert.Nil(t, a.Address().Validate())

	other := GenPrivKeyEd25519().PublicKey()
	if a.Address().Equals(other.Address()) {
		t.Fatal("two different keys produced the same address")
	}
}

func TestParsePublicKey(t *testing.T) {
	pub := GenPrivKeyEd25519().PublicKey()

	parsed, err := ParsePublicKey(pub.String())
	assert.Nil(t, err)
	assert.Equal(t, pub, parsed)

	if _, err := ParsePublicKey("ABCD"); err == nil {
		t.Fatal("short key must not parse")
	}
}
