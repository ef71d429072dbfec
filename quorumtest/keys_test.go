package quorumtest

import (
	"testing"

	"github.com/iov-one/quorum/quorumtest/assert"
)

func TestAddressHelpers(t *testing.T) {
	addrs := NewAddresses(3)
	for _, a := range addrs {
		assert.Nil(t, a.Validate())
	}
	if addrs[0].Equals(addrs[1]) {
		t.Fatal("random addresses must differ")
	}

	assert.Equal(t, SequenceAddress(7), SequenceAddress(7))
	if SequenceAddress(7).Equals(SequenceAddress(8)) {
		t.Fatal("sequence addresses must differ")
	}

	parsed := ParseAddress(t, addrs[2].String())
	assert.Equal(t, addrs[2], parsed)
}

func TestNewClock(t *testing.T) {
	c := NewClock()
	assert.Equal(t, Genesis.Unix(), c.Now().Unix())
}
