package orm

import (
	"encoding/binary"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
)

// Sequence maintains a counter, and generates a
// series of keys. Each key is greater than the last,
// both NextInt() as well as bytes.Compare() on NextVal().
type Sequence struct {
	id []byte
}

// NewSequence returns a sequence counter. Sequence is using following pattern
// to construct a key:
//    _s.<bucket>:<name>
func NewSequence(bucket, name string) Sequence {
	return Sequence{
		id: []byte("_s." + bucket + ":" + name),
	}
}

// NextVal increments the sequence and returns its state as 8 bytes.
func (s Sequence) NextVal(db quorum.KVStore) ([]byte, error) {
	_, bz, err := s.increment(db, 1)
	return bz, err
}

// NextInt increments the sequence and returns its state as int.
func (s Sequence) NextInt(db quorum.KVStore) (int64, error) {
	val, _, err := s.increment(db, 1)
	return val, err
}

// Latest returns the recently returned value of the sequence. This method does
// not modify the sequence state.
func (s Sequence) Latest(db quorum.ReadOnlyKVStore) (int64, error) {
	raw, err := db.Get(s.id)
	if err != nil {
		return 0, err
	}
	return DecodeSequence(raw)
}

func (s Sequence) increment(db quorum.KVStore, inc int64) (int64, []byte, error) {
	val, err := s.Latest(db)
	if err != nil {
		return 0, nil, err
	}
	val += inc
	raw := EncodeSequence(val)
	if err := db.Set(s.id, raw); err != nil {
		return 0, nil, err
	}
	return val, raw, nil
}

// DecodeSequence parses the 8 bytes big endian representation. Nil is the
// initial state of every sequence.
func DecodeSequence(bz []byte) (int64, error) {
	if bz == nil {
		return 0, nil
	}
	if len(bz) != 8 {
		return 0, errors.Wrapf(errors.ErrModel, "sequence must be 8 bytes, got %d", len(bz))
	}
	return int64(binary.BigEndian.Uint64(bz)), nil
}

// EncodeSequence returns the 8 bytes big endian representation that keeps
// the lexicographical order of encoded values.
func EncodeSequence(val int64) []byte {
	bz := make([]byte, 8)
	binary.BigEndian.PutUint64(bz, uint64(val))
	return bz
}
