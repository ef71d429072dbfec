// Package bech32 encodes addresses in the checksummed bech32 format. Only
// the human readable part the caller expects is accepted when decoding.
package bech32

import (
	"strings"

	"github.com/btcsuite/btcutil/bech32"
	"github.com/iov-one/quorum/errors"
)

// EncodeAddress returns the bech32 form of the payload under given human
// readable part.
func EncodeAddress(hrp string, payload []byte) (string, error) {
	if len(payload) == 0 {
		return "", errors.Wrap(errors.ErrEmpty, "payload")
	}
	groups, err := bech32.ConvertBits(payload, 8, 5, true)
	if err != nil {
		return "", errors.Wrap(err, "convert bits")
	}
	enc, err := bech32.Encode(hrp, groups)
	if err != nil {
		return "", errors.Wrap(err, "bech32 encode")
	}
	return enc, nil
}

// DecodeAddress returns the payload of a bech32 string. The human readable
// part must be hrp, compared case insensitively.
func DecodeAddress(hrp, enc string) ([]byte, error) {
	got, groups, err := bech32.Decode(enc)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "bech32 decode: %s", err)
	}
	if !strings.EqualFold(got, hrp) {
		return nil, errors.Wrapf(errors.ErrInput, "want %q prefix, got %q", hrp, got)
	}
	payload, err := bech32.ConvertBits(groups, 5, 8, false)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "convert bits: %s", err)
	}
	return payload, nil
}
