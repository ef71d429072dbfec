package quorum

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"

	"github.com/iov-one/quorum/crypto/bech32"
	"github.com/iov-one/quorum/errors"
	"github.com/minio/sha256-simd"
)

// AddressLength is the length of all addresses.
const AddressLength = 20

// AddressHRP is the human readable part of bech32 encoded addresses.
const AddressHRP = "msig"

// Address represents a collision-free, one-way digest of a public key.
//
// It will be of size AddressLength
type Address []byte

// NewAddress hashes and truncates into the proper size
func NewAddress(data []byte) Address {
	if data == nil {
		return nil
	}
	h := sha256.Sum256(data)
	return h[:AddressLength]
}

// Equals checks if two addresses are the same
func (a Address) Equals(b Address) bool {
	return bytes.Equal(a, b)
}

// Clone returns a copy of this address.
func (a Address) Clone() Address {
	if a == nil {
		return nil
	}
	cpy := make(Address, len(a))
	copy(cpy, a)
	return cpy
}

// String returns a human readable string.
func (a Address) String() string {
	if len(a) == 0 {
		return "(nil)"
	}
	return strings.ToUpper(hex.EncodeToString(a))
}

// Bech32 returns the bech32 representation of this address.
func (a Address) Bech32() string {
	enc, err := bech32.EncodeAddress(AddressHRP, a)
	if err != nil {
		return a.String()
	}
	return enc
}

// Validate returns an error if the address is not the valid size
func (a Address) Validate() error {
	if len(a) != AddressLength {
		return errors.ErrInput.Newf("address: %v", []byte(a))
	}
	return nil
}

// MarshalJSON provides a hex representation for JSON,
// to override the standard base64 []byte encoding
func (a Address) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Address) UnmarshalJSON(raw []byte) error {
	var enc string
	if err := json.Unmarshal(raw, &enc); err != nil {
		return errors.Wrap(err, "cannot decode json")
	}
	if len(enc) == 0 {
		*a = nil
		return nil
	}
	addr, err := ParseAddress(enc)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// Set updates this address value to what is provided. This method is
// implemented to support the flag package.
func (a *Address) Set(enc string) error {
	addr, err := ParseAddress(enc)
	if err != nil {
		return err
	}
	*a = addr
	return nil
}

// ParseAddress accepts address in a human readable format and decodes it.
// Hex representation is the default, "hex:" and "bech32:" prefixes select
// the format explicitly and a bare bech32 string with the msig prefix is
// recognized as well.
func ParseAddress(enc string) (Address, error) {
	chunks := strings.SplitN(enc, ":", 2)
	format := "hex"
	if len(chunks) == 2 {
		format, enc = chunks[0], chunks[1]
	} else if strings.HasPrefix(strings.ToLower(enc), AddressHRP+"1") {
		format = "bech32"
	}

	var addr Address
	switch format {
	case "hex":
		val, err := hex.DecodeString(enc)
		if err != nil {
			return nil, errors.Wrap(errors.ErrInput, "cannot decode hex")
		}
		addr = val
	case "bech32":
		payload, err := bech32.DecodeAddress(AddressHRP, enc)
		if err != nil {
			return nil, err
		}
		addr = payload
	default:
		return nil, errors.ErrType.Newf("unknown format %q", format)
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}
	return addr, nil
}
