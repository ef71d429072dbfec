package iavl

import (
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/store"
	"github.com/tendermint/iavl"
	dbm "github.com/tendermint/tendermint/libs/db"
)

// DefaultHistory is the number of committed versions kept on disk
// before older ones are pruned.
const DefaultHistory = 100

const cacheSize = 10000

// CommitStore manages a iavl committed state
type CommitStore struct {
	tree       *iavl.MutableTree
	db         dbm.DB
	numHistory int64
}

var _ store.CommitKVStore = CommitStore{}

// NewCommitStore creates a new store with disk backing. All data is kept in
// a goleveldb database called name, created inside of the path directory.
func NewCommitStore(path, name string) (CommitStore, error) {
	db, err := dbm.NewGoLevelDB(name, path)
	if err != nil {
		return CommitStore{}, errors.Wrapf(errors.ErrDatabase, "open leveldb %q: %s", name, err)
	}
	return newCommitStore(db)
}

// NewMemCommitStore creates a new store that keeps all data in memory. This
// is useful for tests.
func NewMemCommitStore() CommitStore {
	s, err := newCommitStore(dbm.NewMemDB())
	if err != nil {
		panic(err) // memory database cannot fail to load
	}
	return s
}

func newCommitStore(db dbm.DB) (CommitStore, error) {
	s := CommitStore{
		tree:       iavl.NewMutableTree(db, cacheSize),
		db:         db,
		numHistory: DefaultHistory,
	}
	if err := s.LoadLatestVersion(); err != nil {
		db.Close()
		return CommitStore{}, err
	}
	return s, nil
}

// Close releases the underlying database.
func (s CommitStore) Close() {
	s.db.Close()
}

// Get returns the value at the current working state.
// returns nil iff key doesn't exist. Panics on nil key.
func (s CommitStore) Get(key []byte) ([]byte, error) {
	_, val := s.tree.Get(key)
	return val, nil
}

// Commit the next version to disk, and returns info
func (s CommitStore) Commit() (store.CommitID, error) {
	hash, version, err := s.tree.SaveVersion()
	if err != nil {
		return store.CommitID{}, errors.Wrap(errors.ErrDatabase, err.Error())
	}

	// cleanup if we hit history limit
	if s.numHistory > 0 && version > s.numHistory {
		toDel := version - s.numHistory
		if s.tree.VersionExists(toDel) {
			if err := s.tree.DeleteVersion(toDel); err != nil {
				return store.CommitID{}, errors.Wrapf(errors.ErrDatabase, "prune version %d: %s", toDel, err)
			}
		}
	}

	return store.CommitID{
		Version: version,
		Hash:    hash,
	}, nil
}

// LoadLatestVersion loads the latest persisted version.
// If there was a crash during the last commit, it is guaranteed
// to return a stable state, even if older.
func (s CommitStore) LoadLatestVersion() error {
	if _, err := s.tree.Load(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// LatestVersion returns info on the latest version saved to disk
func (s CommitStore) LatestVersion() (store.CommitID, error) {
	return store.CommitID{
		Version: s.tree.Version(),
		Hash:    s.tree.Hash(),
	}, nil
}

// Adapter returns a wrapped version of the tree.
//
// Data written here is stored in the tree, but not persisted
// until Commit is called.
func (s CommitStore) Adapter() store.CacheableKVStore {
	return store.BTreeCacheable{KVStore: adapter{tree: s.tree}}
}

// CacheWrap wraps the Adapter with a cache, so it may be written
// or discarded as needed.
func (s CommitStore) CacheWrap() store.KVCacheWrap {
	return s.Adapter().CacheWrap()
}

// adapter converts the working iavl.MutableTree into a KVStore
type adapter struct {
	tree *iavl.MutableTree
}

var _ store.KVStore = adapter{}

// Get returns nil iff key doesn't exist. Panics on nil key.
func (a adapter) Get(key []byte) ([]byte, error) {
	_, val := a.tree.Get(key)
	return val, nil
}

// Has checks if a key exists. Panics on nil key.
func (a adapter) Has(key []byte) (bool, error) {
	return a.tree.Has(key), nil
}

// Set adds a new value
func (a adapter) Set(key, value []byte) error {
	if value == nil {
		return errors.Wrap(errors.ErrInput, "nil value")
	}
	a.tree.Set(key, value)
	return nil
}

// Delete removes from the tree
func (a adapter) Delete(key []byte) error {
	a.tree.Remove(key)
	return nil
}

// NewBatch returns a batch that can write multiple ops atomically
func (a adapter) NewBatch() store.Batch {
	return store.NewNonAtomicBatch(a)
}

// Iterator over a domain of keys in ascending order. End is exclusive.
// Start must be less than end, or the Iterator is invalid.
// CONTRACT: No writes may happen within a domain while an iterator exists over it.
func (a adapter) Iterator(start, end []byte) (store.Iterator, error) {
	return a.collect(start, end, true), nil
}

// ReverseIterator over a domain of keys in descending order. End is exclusive.
// CONTRACT: No writes may happen within a domain while an iterator exists over it.
func (a adapter) ReverseIterator(start, end []byte) (store.Iterator, error) {
	return a.collect(start, end, false), nil
}

func (a adapter) collect(start, end []byte, ascending bool) store.Iterator {
	var res []store.Model
	add := func(key []byte, value []byte) bool {
		res = append(res, store.Pair(key, value))
		return false
	}
	a.tree.IterateRange(start, end, ascending, add)
	return store.NewSliceIterator(res)
}
