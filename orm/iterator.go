package orm

import (
	"bytes"
	"reflect"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
)

// ModelIterator iterates over entities of a single bucket.
// CONTRACT: No writes may happen within a domain while an iterator exists over it.
type ModelIterator interface {
	// LoadNext moves the iterator to the next sequential key in the
	// database and loads the current value into the passed destination.
	// Primary key of the loaded entity is returned. ErrIteratorDone is
	// returned once all entities were loaded.
	LoadNext(dest Model) ([]byte, error)

	// Release releases the Iterator.
	Release()
}

type modelIterator struct {
	// this is the raw KVStoreIterator
	iterator quorum.Iterator
	// this is the bucket prefix to strip from each key
	prefix []byte
	model  reflect.Type
}

var _ ModelIterator = (*modelIterator)(nil)

func (i *modelIterator) LoadNext(dest Model) ([]byte, error) {
	if reflect.TypeOf(dest) != i.model {
		return nil, errors.Wrapf(errors.ErrType, "%s cannot be represented as %T", i.model, dest)
	}
	key, value, err := i.iterator.Next()
	if err != nil {
		return nil, err
	}
	// since we use raw kvstore here, we must remove the bucket prefix manually
	if !bytes.HasPrefix(key, i.prefix) {
		return nil, errors.Wrapf(errors.ErrDatabase, "key with unexpected prefix: %X", key)
	}
	if err := Unmarshal(value, dest); err != nil {
		return nil, err
	}
	return key[len(i.prefix):], nil
}

func (i *modelIterator) Release() {
	i.iterator.Release()
}
