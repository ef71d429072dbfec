package orm

import (
	"reflect"

	"github.com/iov-one/quorum/errors"
	amino "github.com/tendermint/go-amino"
)

var cdc = amino.NewCodec()

// Marshal returns the deterministic binary representation of given value.
func Marshal(v interface{}) ([]byte, error) {
	raw, err := cdc.MarshalBinaryBare(v)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrModel, "marshal %T: %s", v, err)
	}
	return raw, nil
}

// Unmarshal loads binary representation into given destination that must be
// a pointer. Destination is reset before loading.
func Unmarshal(raw []byte, dest interface{}) error {
	rv := reflect.ValueOf(dest)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.Wrapf(errors.ErrType, "destination must be a non nil pointer, got %T", dest)
	}
	rv.Elem().Set(reflect.Zero(rv.Elem().Type()))
	if err := cdc.UnmarshalBinaryBare(raw, dest); err != nil {
		return errors.Wrapf(errors.ErrModel, "unmarshal %T: %s", dest, err)
	}
	return nil
}
