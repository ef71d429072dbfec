package store

import (
	"github.com/iov-one/quorum/errors"
	"github.com/puzpuzpuz/xsync/v2"
)

// SyncStore guards a CacheableKVStore so that it can be shared by many
// goroutines. Reads run in parallel, writes are exclusive.
//
// Iterators returned by a SyncStore are snapshots: the whole range is read
// under the lock, so the contract forbidding writes during iteration does not
// apply.
type SyncStore struct {
	mu *xsync.RBMutex
	kv CacheableKVStore
}

var _ CacheableKVStore = (*SyncStore)(nil)

// NewSyncStore wraps given store.
func NewSyncStore(kv CacheableKVStore) *SyncStore {
	return &SyncStore{
		mu: xsync.NewRBMutex(),
		kv: kv,
	}
}

// Get returns nil iff key doesn't exist.
func (s *SyncStore) Get(key []byte) ([]byte, error) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.kv.Get(key)
}

// Has checks if a key exists.
func (s *SyncStore) Has(key []byte) (bool, error) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	return s.kv.Has(key)
}

// Set writes a single value.
func (s *SyncStore) Set(key, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Set(key, value)
}

// Delete removes a single value.
func (s *SyncStore) Delete(key []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Delete(key)
}

// Iterator returns a snapshot of the [start, end) domain in ascending order.
func (s *SyncStore) Iterator(start, end []byte) (Iterator, error) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	it, err := s.kv.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	return snapshot(it)
}

// ReverseIterator returns a snapshot of the [start, end) domain in
// descending order.
func (s *SyncStore) ReverseIterator(start, end []byte) (Iterator, error) {
	t := s.mu.RLock()
	defer s.mu.RUnlock(t)
	it, err := s.kv.ReverseIterator(start, end)
	if err != nil {
		return nil, err
	}
	return snapshot(it)
}

// NewBatch returns a batch that applies all its operations while holding
// the write lock, so readers never observe a partially written batch.
func (s *SyncStore) NewBatch() Batch {
	return &syncBatch{store: s}
}

// CacheWrap returns a scratch pad on top of this store. Reads fall through
// to the guarded store, Write applies all changes at once.
func (s *SyncStore) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(s, s.NewBatch())
}

func snapshot(it Iterator) (Iterator, error) {
	defer it.Release()
	var models []Model
	for {
		key, value, err := it.Next()
		switch {
		case errors.ErrIteratorDone.Is(err):
			return NewSliceIterator(models), nil
		case err != nil:
			return nil, err
		}
		models = append(models, Pair(key, value))
	}
}

type syncBatch struct {
	store *SyncStore
	ops   []Op
}

func (b *syncBatch) Set(key, value []byte) error {
	b.ops = append(b.ops, SetOp(key, value))
	return nil
}

func (b *syncBatch) Delete(key []byte) error {
	b.ops = append(b.ops, DelOp(key))
	return nil
}

func (b *syncBatch) Write() error {
	b.store.mu.Lock()
	defer b.store.mu.Unlock()

	batch := b.store.kv.NewBatch()
	for _, op := range b.ops {
		if err := op.Apply(batch); err != nil {
			return err
		}
	}
	b.ops = nil
	return batch.Write()
}
