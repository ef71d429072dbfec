package quorumtest

import (
	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/crypto"
)

// NewKey returns a random ed25519 private key.
func NewKey() crypto.PrivateKey {
	return crypto.GenPrivKeyEd25519()
}

// NewAddress returns the address of a random ed25519 key.
func NewAddress() quorum.Address {
	return NewKey().PublicKey().Address()
}

// NewAddresses returns n distinct random addresses.
func NewAddresses(n int) []quorum.Address {
	addrs := make([]quorum.Address, n)
	for i := range addrs {
		addrs[i] = NewAddress()
	}
	return addrs
}

// SequenceAddress returns an address that is deterministic for given seed.
// It is convenient when a test needs a stable, readable account.
func SequenceAddress(seed uint64) quorum.Address {
	var raw [8]byte
	for i := 7; i >= 0; i-- {
		raw[i] = byte(seed)
		seed >>= 8
	}
	return quorum.NewAddress(raw[:])
}
