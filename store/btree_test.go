package store

import (
	"bytes"
	"crypto/rand"
	"sort"
	"testing"

	"github.com/iov-one/quorum/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestBTreeCacheGetSet does basic sanity checks on our cache
func TestBTreeCacheGetSet(t *testing.T) {
	// devnull is a black hole... just to keep our types proper
	devnull := BTreeCacheable{EmptyKVStore{}}

	// base is the root of our data, we can layer on top and
	// all queries should work
	base := devnull.CacheWrap()

	k, v := []byte("french"), []byte("fry")
	assertGet(t, base, k, nil)
	require.NoError(t, base.Set(k, v))
	assertGet(t, base, k, v)

	// now layer another btree on top and make sure that we get
	// base data
	cache := base.CacheWrap()
	assertGet(t, cache, k, v)

	// writing more data is only visible in the cache
	k2, v2 := []byte("LA"), []byte("Dodgers")
	assertGet(t, cache, k2, nil)
	require.NoError(t, cache.Set(k2, v2))
	assertGet(t, cache, k2, v2)
	assertGet(t, base, k2, nil)

	// we can write the cache to the base layer...
	require.NoError(t, cache.Write())
	assertGet(t, base, k, v)
	assertGet(t, base, k2, v2)

	// we can discard one
	k3, v3 := []byte("Bayern"), []byte("Munich")
	c2 := base.CacheWrap()
	assertGet(t, c2, k, v)
	require.NoError(t, c2.Set(k3, v3))
	c2.Discard()

	// and commit another
	c3 := base.CacheWrap()
	assertGet(t, c3, k2, v2)
	require.NoError(t, c3.Delete(k))
	require.NoError(t, c3.Write())

	// make sure it commits proper
	assertGet(t, base, k, nil)
	assertGet(t, base, k2, v2)
	assertGet(t, base, k3, nil)

	// and to test devnull....
	require.NoError(t, base.Write())
	assertGet(t, devnull, k2, nil)
}

func assertGet(t *testing.T, kv ReadOnlyKVStore, key, want []byte) {
	t.Helper()
	got, err := kv.Get(key)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	has, err := kv.Has(key)
	require.NoError(t, err)
	assert.Equal(t, want != nil, has)
}

// TestBTreeCacheConflicts checks that we can handle
// overwriting values and deleting underlying values
func TestBTreeCacheConflicts(t *testing.T) {
	ks := randKeys(10, 16)
	vs := randKeys(20, 40)

	cases := map[string]struct {
		parentOps     []Op
		childOps      []Op
		parentQueries []Model // Key is what we query, Value is what we expect
		childQueries  []Model
	}{
		"overwrite one, delete another, add a third": {
			parentOps:     []Op{SetOp(ks[1], vs[1]), SetOp(ks[2], vs[2])},
			childOps:      []Op{SetOp(ks[1], vs[11]), SetOp(ks[3], vs[7]), DelOp(ks[2])},
			parentQueries: []Model{Pair(ks[1], vs[1]), Pair(ks[2], vs[2]), Pair(ks[3], nil)},
			childQueries:  []Model{Pair(ks[1], vs[11]), Pair(ks[2], nil), Pair(ks[3], vs[7])},
		},
		"delete then set again": {
			parentOps:     []Op{SetOp(ks[4], vs[4])},
			childOps:      []Op{DelOp(ks[4]), SetOp(ks[4], vs[14])},
			parentQueries: []Model{Pair(ks[4], vs[4])},
			childQueries:  []Model{Pair(ks[4], vs[14])},
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			parent := MemStore()
			for _, op := range tc.parentOps {
				require.NoError(t, op.Apply(parent))
			}

			child := parent.CacheWrap()
			for _, op := range tc.childOps {
				require.NoError(t, op.Apply(child))
			}

			for _, q := range tc.parentQueries {
				assertGet(t, parent, q.Key, q.Value)
			}
			for _, q := range tc.childQueries {
				assertGet(t, child, q.Key, q.Value)
			}

			// write child to parent and make sure it also shows proper data
			require.NoError(t, child.Write())
			for _, q := range tc.childQueries {
				assertGet(t, parent, q.Key, q.Value)
			}
		})
	}
}

// TestSliceIterator makes sure the basic slice iterator works
func TestSliceIterator(t *testing.T) {
	const size = 10

	ks := randKeys(size, 8)
	vs := randKeys(size, 40)

	models := make([]Model, size)
	for i := 0; i < size; i++ {
		models[i] = Pair(ks[i], vs[i])
	}
	verifyIterator(t, models, NewSliceIterator(models))

	// iterator is done after release
	trash := NewSliceIterator(models)
	trash.Release()
	_, _, err := trash.Next()
	assert.True(t, errors.ErrIteratorDone.Is(err))
}

// TestBTreeCacheBasicIterator makes sure the basic iterator
// works. Includes random deletes, but not nested iterators.
func TestBTreeCacheBasicIterator(t *testing.T) {
	const size = 50
	const deleteCount = 20
	const totalSize = size + deleteCount

	models := make([]Model, totalSize)
	for i := 0; i < totalSize; i++ {
		models[i] = Pair(randBytes(8), randBytes(40))
	}

	base := MemStore()
	for i := 0; i < totalSize; i++ {
		require.NoError(t, base.Set(models[i].Key, models[i].Value))
	}
	// delete the first chunk
	for i := 0; i < deleteCount; i++ {
		require.NoError(t, base.Delete(models[i].Key))
	}
	models = models[deleteCount:]
	sortModels(models)

	verifyRanges(t, base, models)
}

// TestBTreeCacheIterator tests iterating over ranges that
// span both the parent and child caches, combining different
// values, overwrites, and deletes
func TestBTreeCacheIterator(t *testing.T) {
	const size = 60

	models := make([]Model, size)
	for i := 0; i < size; i++ {
		models[i] = Pair(randBytes(8), randBytes(40))
	}
	sortModels(models)

	parent := MemStore()
	// even entries go to the parent, odd ones to the child
	for i := 0; i < size; i += 2 {
		require.NoError(t, parent.Set(models[i].Key, models[i].Value))
	}
	// also some junk in the parent that the child deletes
	junk := Pair(append(models[size-1].Key, 0xFF), []byte("junk"))
	require.NoError(t, parent.Set(junk.Key, junk.Value))

	child := parent.CacheWrap()
	for i := 1; i < size; i += 2 {
		require.NoError(t, child.Set(models[i].Key, models[i].Value))
	}
	require.NoError(t, child.Delete(junk.Key))
	// overwrite a parent value in the child
	models[10].Value = []byte("overwritten")
	require.NoError(t, child.Set(models[10].Key, models[10].Value))

	verifyRanges(t, child, models)

	require.NoError(t, child.Write())
	verifyRanges(t, parent, models)
}

func verifyRanges(t *testing.T, kv ReadOnlyKVStore, models []Model) {
	t.Helper()
	n := len(models)

	iter := func(start, end []byte) Iterator {
		it, err := kv.Iterator(start, end)
		require.NoError(t, err)
		return it
	}
	riter := func(start, end []byte) Iterator {
		it, err := kv.ReverseIterator(start, end)
		require.NoError(t, err)
		return it
	}

	verifyIterator(t, models, iter(nil, nil))
	verifyIterator(t, models[10:], iter(models[10].Key, nil))
	verifyIterator(t, models[:n-8], iter(nil, models[n-8].Key))
	verifyIterator(t, models[17:28], iter(models[17].Key, models[28].Key))

	verifyIterator(t, reverse(models), riter(nil, nil))
	verifyIterator(t, reverse(models[14:]), riter(models[14].Key, nil))
	verifyIterator(t, reverse(models[:19]), riter(nil, models[19].Key))
	verifyIterator(t, reverse(models[6:26]), riter(models[6].Key, models[26].Key))
}

func verifyIterator(t *testing.T, models []Model, iter Iterator) {
	t.Helper()
	defer iter.Release()

	for i := 0; i < len(models); i++ {
		key, value, err := iter.Next()
		require.NoError(t, err, "%d", i)
		assert.Equal(t, models[i].Key, key, "%d", i)
		assert.Equal(t, models[i].Value, value, "%d", i)
	}
	_, _, err := iter.Next()
	assert.True(t, errors.ErrIteratorDone.Is(err))
}

// reverse returns a copy of the slice with elements in reverse order
func reverse(models []Model) []Model {
	max := len(models)
	res := make([]Model, max)
	for i := 0; i < max; i++ {
		res[i] = models[max-1-i]
	}
	return res
}

func sortModels(models []Model) {
	sort.Slice(models, func(i, j int) bool {
		return bytes.Compare(models[i].Key, models[j].Key) < 0
	})
}

// randKeys returns a slice of count keys, all of length
func randKeys(count, length int) [][]byte {
	res := make([][]byte, count)
	for i := 0; i < count; i++ {
		res[i] = randBytes(length)
	}
	return res
}

func randBytes(length int) []byte {
	res := make([]byte, length)
	_, _ = rand.Read(res)
	return res
}
