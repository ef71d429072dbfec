package store

import (
	"bytes"

	"github.com/google/btree"
)

// btreeDegree keeps the nodes small, a cache wrap lives for a single
// operation and rarely holds more than a few dozen entries.
const btreeDegree = 2

// BTreeCacheable gives any KVStore a btree backed CacheWrap.
type BTreeCacheable struct {
	KVStore
}

var _ CacheableKVStore = BTreeCacheable{}

// CacheWrap returns a scratch pad that is written to the store through its
// batch.
func (b BTreeCacheable) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(b.KVStore, b.NewBatch())
}

// MemStore returns a store without persistence, used by tests and by the
// in memory ledger.
func MemStore() CacheableKVStore {
	var empty EmptyKVStore
	return NewBTreeCacheWrap(empty, empty.NewBatch())
}

// BTreeCacheWrap records writes in a btree in front of a read only store.
// Reads see the recorded writes first. Every write is also queued in the
// batch, so Write only has to flush it.
type BTreeCacheWrap struct {
	pending *btree.BTree
	free    *btree.FreeList
	back    ReadOnlyKVStore
	batch   Batch
}

var _ KVCacheWrap = BTreeCacheWrap{}

// NewBTreeCacheWrap returns a cache over kv. All writes must go through
// batch, kv is never written directly.
func NewBTreeCacheWrap(kv ReadOnlyKVStore, batch Batch) BTreeCacheWrap {
	return newBTreeCacheWrap(kv, batch, btree.NewFreeList(btree.DefaultFreeListSize))
}

func newBTreeCacheWrap(kv ReadOnlyKVStore, batch Batch, free *btree.FreeList) BTreeCacheWrap {
	return BTreeCacheWrap{
		pending: btree.NewWithFreeList(btreeDegree, free),
		free:    free,
		back:    kv,
		batch:   batch,
	}
}

// CacheWrap stacks another cache on top of this one. Both share the node
// free list.
func (b BTreeCacheWrap) CacheWrap() KVCacheWrap {
	return newBTreeCacheWrap(b, b.NewBatch(), b.free)
}

// NewBatch returns a batch that writes into this cache.
func (b BTreeCacheWrap) NewBatch() Batch {
	return NewNonAtomicBatch(b)
}

// Write flushes all changes to the underlying store and empties the cache.
func (b BTreeCacheWrap) Write() error {
	err := b.batch.Write()
	b.Discard()
	return err
}

// Discard drops all changes. The nodes go back to the free list.
func (b BTreeCacheWrap) Discard() {
	for b.pending.DeleteMin() != nil {
	}
}

func (b BTreeCacheWrap) Set(key, value []byte) error {
	b.pending.ReplaceOrInsert(entry{key: key, value: value})
	return b.batch.Set(key, value)
}

func (b BTreeCacheWrap) Delete(key []byte) error {
	b.pending.ReplaceOrInsert(entry{key: key, deleted: true})
	return b.batch.Delete(key)
}

func (b BTreeCacheWrap) Get(key []byte) ([]byte, error) {
	if e, ok := b.lookup(key); ok {
		return e.value, nil
	}
	return b.back.Get(key)
}

func (b BTreeCacheWrap) Has(key []byte) (bool, error) {
	if e, ok := b.lookup(key); ok {
		return !e.deleted, nil
	}
	return b.back.Has(key)
}

// lookup returns the cached entry of the key, if any.
func (b BTreeCacheWrap) lookup(key []byte) (entry, bool) {
	item := b.pending.Get(entry{key: key})
	if item == nil {
		return entry{}, false
	}
	return item.(entry), true
}

// Iterator merges the cached entries with the ascending iteration of the
// underlying store.
func (b BTreeCacheWrap) Iterator(start, end []byte) (Iterator, error) {
	parentIter, err := b.back.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	return newMergeIterator(ascendBtree(b.pending, start, end), parentIter, true), nil
}

// ReverseIterator merges the cached entries with the descending iteration
// of the underlying store.
func (b BTreeCacheWrap) ReverseIterator(start, end []byte) (Iterator, error) {
	parentIter, err := b.back.ReverseIterator(start, end)
	if err != nil {
		return nil, err
	}
	return newMergeIterator(descendBtree(b.pending, start, end), parentIter, false), nil
}

// entry is a single cached write. A deleted entry shadows the value of the
// underlying store.
type entry struct {
	key     []byte
	value   []byte
	deleted bool
}

var _ btree.Item = entry{}

// Less orders entries by key.
func (e entry) Less(than btree.Item) bool {
	return bytes.Compare(e.key, than.(entry).key) < 0
}
