package bech32

import (
	"encoding/hex"
	"testing"

	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/quorumtest/assert"
	"github.com/stretchr/testify/require"
)

func TestAddressRoundTrip(t *testing.T) {
	payload, err := hex.DecodeString("746573742d7061796c6f6164")
	require.NoError(t, err)

	enc, err := EncodeAddress("tiov", payload)
	require.NoError(t, err)
	require.Equal(t, "tiov1w3jhxapdwpshjmr0v9jqymqq4y", enc)

	got, err := DecodeAddress("tiov", enc)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	got, err = DecodeAddress("TIOV", "TIOV1W3JHXAPDWPSHJMR0V9JQYMQQ4Y")
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

func TestDecodeAddressErrors(t *testing.T) {
	cases := map[string]struct {
		hrp string
		enc string
	}{
		"foreign prefix": {
			hrp: "msig",
			enc: "tiov1w3jhxapdwpshjmr0v9jqymqq4y",
		},
		"broken checksum": {
			hrp: "tiov",
			enc: "tiov1w3jhxapdwpshjmr0v9jqymqq4z",
		},
		"not bech32": {
			hrp: "tiov",
			enc: "746573742d7061796c6f6164",
		},
	}
	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			_, err := DecodeAddress(tc.hrp, tc.enc)
			assert.IsErr(t, errors.ErrInput, err)
		})
	}
}

func TestEncodeAddressEmpty(t *testing.T) {
	_, err := EncodeAddress("msig", nil)
	assert.IsErr(t, errors.ErrEmpty, err)
}
