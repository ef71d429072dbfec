package orm

import (
	"fmt"
	"reflect"
	"regexp"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
)

var (
	isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString
)

// Model is implemented by any entity that can be stored using ModelBucket.
type Model interface {
	Validate() error
}

// ModelBucket is implemented by buckets that operates on Models rather than
// Objects.
type ModelBucket interface {
	// One query the database for a single model instance. Lookup is done
	// by the primary index key. Result is loaded into given destination
	// model.
	// This method returns ErrNotFound if the entity does not exist in the
	// database.
	// If given model type cannot be used to contain stored entity, ErrType
	// is returned.
	One(db quorum.ReadOnlyKVStore, key []byte, dest Model) error

	// Has returns true if an entity with given primary key exists.
	Has(db quorum.ReadOnlyKVStore, key []byte) (bool, error)

	// Put saves given model in the database. All indexes are updated.
	Put(db quorum.KVStore, key []byte, m Model) error

	// Delete removes an entity with given primary key from the database.
	// It returns ErrNotFound if an entity with given key does not exist.
	Delete(db quorum.KVStore, key []byte) error

	// IndexKeys returns primary keys of all entities that were indexed
	// under given value, in ascending order. ErrInvalidIndex is returned
	// if the index does not exist.
	IndexKeys(db quorum.ReadOnlyKVStore, indexName string, value []byte) ([][]byte, error)

	// Range returns an iterator over all entities with the primary key
	// within [start, end) domain. A nil end means no upper limit.
	Range(db quorum.ReadOnlyKVStore, start, end []byte, reverse bool) (ModelIterator, error)

	// PrefixScan returns an iterator over all entities with the primary
	// key starting with given prefix.
	PrefixScan(db quorum.ReadOnlyKVStore, prefix []byte, reverse bool) (ModelIterator, error)
}

// ModelBucketOption is implemented by any function that can configure
// ModelBucket during creation.
type ModelBucketOption func(mb *modelBucket)

// WithIndex configures the bucket to build an index with given name. All
// entities stored in the bucket are indexed using value returned by the
// indexer function. Indexed entries are stored under "<name>:" prefix.
func WithIndex(name string, indexer MultiKeyIndexer) ModelBucketOption {
	if !isBucketName(name) {
		panic(fmt.Sprintf("illegal index name: %q", name))
	}
	return func(mb *modelBucket) {
		if _, ok := mb.indexes[name]; ok {
			panic(fmt.Sprintf("index %q is already registered", name))
		}
		mb.indexes[name] = newIndex(name, indexer)
	}
}

// NewModelBucket returns a ModelBucket instance. Given model is used as a
// prototype to determine the type of all stored entities.
//
// All entities are stored under "<name>:" prefix.
func NewModelBucket(name string, m Model, opts ...ModelBucketOption) ModelBucket {
	if !isBucketName(name) {
		panic(fmt.Sprintf("illegal bucket: %q", name))
	}
	tp := reflect.TypeOf(m)
	if tp.Kind() != reflect.Ptr {
		panic(fmt.Sprintf("model must be a pointer, got %T", m))
	}
	mb := &modelBucket{
		name:    name,
		prefix:  append([]byte(name), ':'),
		model:   tp,
		indexes: make(map[string]index),
	}
	for _, fn := range opts {
		fn(mb)
	}
	return mb
}

type modelBucket struct {
	name    string
	prefix  []byte
	model   reflect.Type
	indexes map[string]index
}

var _ ModelBucket = (*modelBucket)(nil)

func (mb *modelBucket) dbKey(key []byte) []byte {
	out := make([]byte, len(mb.prefix)+len(key))
	copy(out, mb.prefix)
	copy(out[len(mb.prefix):], key)
	return out
}

func (mb *modelBucket) One(db quorum.ReadOnlyKVStore, key []byte, dest Model) error {
	if reflect.TypeOf(dest) != mb.model {
		return errors.Wrapf(errors.ErrType, "%s cannot be represented as %T", mb.model, dest)
	}
	raw, err := db.Get(mb.dbKey(key))
	if err != nil {
		return errors.Wrap(err, "cannot get from the database")
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "%T not in the store", dest)
	}
	return Unmarshal(raw, dest)
}

func (mb *modelBucket) Has(db quorum.ReadOnlyKVStore, key []byte) (bool, error) {
	ok, err := db.Has(mb.dbKey(key))
	if err != nil {
		return false, errors.Wrap(err, "cannot query the database")
	}
	return ok, nil
}

func (mb *modelBucket) Put(db quorum.KVStore, key []byte, m Model) error {
	if reflect.TypeOf(m) != mb.model {
		return errors.Wrapf(errors.ErrType, "cannot store %T in %s bucket", m, mb.name)
	}
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "invalid model")
	}

	prev, err := mb.load(db, key)
	if err != nil {
		return err
	}
	for _, idx := range mb.indexes {
		if err := idx.update(db, key, prev, m); err != nil {
			return errors.Wrapf(err, "cannot update %q index", idx.name)
		}
	}

	raw, err := Marshal(m)
	if err != nil {
		return err
	}
	if err := db.Set(mb.dbKey(key), raw); err != nil {
		return errors.Wrap(err, "cannot store in the database")
	}
	return nil
}

func (mb *modelBucket) Delete(db quorum.KVStore, key []byte) error {
	prev, err := mb.load(db, key)
	if err != nil {
		return err
	}
	if prev == nil {
		return errors.Wrapf(errors.ErrNotFound, "%s not in the store", mb.model)
	}
	for _, idx := range mb.indexes {
		if err := idx.update(db, key, prev, nil); err != nil {
			return errors.Wrapf(err, "cannot update %q index", idx.name)
		}
	}
	if err := db.Delete(mb.dbKey(key)); err != nil {
		return errors.Wrap(err, "cannot delete from the database")
	}
	return nil
}

// load returns the currently stored entity or nil if none exists.
func (mb *modelBucket) load(db quorum.ReadOnlyKVStore, key []byte) (Model, error) {
	raw, err := db.Get(mb.dbKey(key))
	if err != nil {
		return nil, errors.Wrap(err, "cannot get from the database")
	}
	if raw == nil {
		return nil, nil
	}
	m := reflect.New(mb.model.Elem()).Interface().(Model)
	if err := Unmarshal(raw, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (mb *modelBucket) IndexKeys(db quorum.ReadOnlyKVStore, indexName string, value []byte) ([][]byte, error) {
	idx, ok := mb.indexes[indexName]
	if !ok {
		return nil, errors.Wrapf(ErrInvalidIndex, "name %q", indexName)
	}
	return idx.keys(db, value)
}

func (mb *modelBucket) Range(db quorum.ReadOnlyKVStore, start, end []byte, reverse bool) (ModelIterator, error) {
	dbStart := mb.dbKey(start)
	var dbEnd []byte
	if end == nil {
		dbEnd = PrefixEnd(mb.prefix)
	} else {
		dbEnd = mb.dbKey(end)
	}

	var (
		it  quorum.Iterator
		err error
	)
	if reverse {
		it, err = db.ReverseIterator(dbStart, dbEnd)
	} else {
		it, err = db.Iterator(dbStart, dbEnd)
	}
	if err != nil {
		return nil, errors.Wrap(err, "cannot create iterator")
	}
	return &modelIterator{
		iterator: it,
		prefix:   mb.prefix,
		model:    mb.model,
	}, nil
}

func (mb *modelBucket) PrefixScan(db quorum.ReadOnlyKVStore, prefix []byte, reverse bool) (ModelIterator, error) {
	var end []byte
	if len(prefix) != 0 {
		end = PrefixEnd(prefix)
	}
	return mb.Range(db, prefix, end, reverse)
}

// PrefixEnd returns the smallest key that is greater than all keys starting
// with given prefix, or nil if there is no such key.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return nil
}
