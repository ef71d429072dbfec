package orm

import (
	"bytes"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
)

// MultiKeyIndexer calculates the secondary index keys for a given model.
// Returning no keys means the model is not indexed.
type MultiKeyIndexer func(Model) ([][]byte, error)

// index stores a reference to the primary key for each of the indexed
// values. Each reference is kept under its own key
//
//   <name>:<value><primary key>
//
// so that a single value can point to any number of entities without
// rewriting a shared record.
type index struct {
	name    string
	prefix  []byte
	indexer MultiKeyIndexer
}

func newIndex(name string, indexer MultiKeyIndexer) index {
	return index{
		name:    name,
		prefix:  append([]byte(name), ':'),
		indexer: indexer,
	}
}

// refKey is the full key we store in the db, including prefix.
// We copy into a new array rather than use append, as we don't
// want consecutive calls to overwrite the same byte array.
func (i index) refKey(value, pk []byte) []byte {
	out := make([]byte, 0, len(i.prefix)+len(value)+len(pk))
	out = append(out, i.prefix...)
	out = append(out, value...)
	return append(out, pk...)
}

// update handles updating the reference to the model in the secondary index.
//
// prev == nil means insert
// save == nil means delete
func (i index) update(db quorum.KVStore, pk []byte, prev, save Model) error {
	var prevKeys, saveKeys [][]byte
	if prev != nil {
		keys, err := i.indexer(prev)
		if err != nil {
			return err
		}
		prevKeys = keys
	}
	if save != nil {
		keys, err := i.indexer(save)
		if err != nil {
			return err
		}
		saveKeys = keys
	}

	for _, v := range prevKeys {
		if containsKey(saveKeys, v) {
			continue
		}
		if err := db.Delete(i.refKey(v, pk)); err != nil {
			return errors.Wrap(err, "remove reference")
		}
	}
	for _, v := range saveKeys {
		if len(v) == 0 {
			return errors.Wrap(errors.ErrEmpty, "index value")
		}
		if containsKey(prevKeys, v) {
			continue
		}
		if err := db.Set(i.refKey(v, pk), pk); err != nil {
			return errors.Wrap(err, "store reference")
		}
	}
	return nil
}

// keys returns all primary keys referenced by given value.
func (i index) keys(db quorum.ReadOnlyKVStore, value []byte) ([][]byte, error) {
	start := i.refKey(value, nil)
	it, err := db.Iterator(start, PrefixEnd(start))
	if err != nil {
		return nil, errors.Wrap(err, "cannot create iterator")
	}
	defer it.Release()

	var pks [][]byte
	for {
		key, pk, err := it.Next()
		switch {
		case errors.ErrIteratorDone.Is(err):
			return pks, nil
		case err != nil:
			return nil, err
		}
		// a longer value sharing the prefix is not a match
		if !bytes.Equal(key, i.refKey(value, pk)) {
			continue
		}
		pks = append(pks, pk)
	}
}

func containsKey(keys [][]byte, key []byte) bool {
	for _, k := range keys {
		if bytes.Equal(k, key) {
			return true
		}
	}
	return false
}
