package orm

import (
	"testing"

	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/quorumtest/assert"
	"github.com/iov-one/quorum/store"
)

type counter struct {
	Count  int64
	Owners [][]byte
}

func (c *counter) Validate() error {
	if c.Count < 0 {
		return errors.Wrap(errors.ErrModel, "negative count")
	}
	return nil
}

type other struct {
	Name string
}

func (o *other) Validate() error { return nil }

func indexByOwner(m Model) ([][]byte, error) {
	c, ok := m.(*counter)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "%T", m)
	}
	return c.Owners, nil
}

func TestModelBucket(t *testing.T) {
	db := store.MemStore()
	b := NewModelBucket("cnts", &counter{})

	if err := b.Put(db, []byte("c1"), &counter{Count: 1}); err != nil {
		t.Fatalf("cannot save counter instance: %s", err)
	}

	var c1 counter
	if err := b.One(db, []byte("c1"), &c1); err != nil {
		t.Fatalf("cannot get c1 counter: %s", err)
	}
	if c1.Count != 1 {
		t.Fatalf("unexpected counter state: %d", c1.Count)
	}
	if ok, err := b.Has(db, []byte("c1")); err != nil || !ok {
		t.Fatalf("want c1 to exist: %v, %v", ok, err)
	}

	if err := b.Put(db, []byte("c1"), &counter{Count: -1}); !errors.ErrModel.Is(err) {
		t.Fatalf("unexpected error for an invalid model: %s", err)
	}
	if err := b.Put(db, []byte("c1"), &other{Name: "x"}); !errors.ErrType.Is(err) {
		t.Fatalf("unexpected error for a wrong model type: %s", err)
	}
	if err := b.One(db, []byte("c1"), &other{}); !errors.ErrType.Is(err) {
		t.Fatalf("unexpected error for a wrong destination type: %s", err)
	}

	if err := b.Delete(db, []byte("c1")); err != nil {
		t.Fatalf("cannot delete c1 counter: %s", err)
	}
	if err := b.Delete(db, []byte("unknown")); !errors.ErrNotFound.Is(err) {
		t.Fatalf("unexpected error when deleting unexisting instance: %s", err)
	}
	if err := b.One(db, []byte("c1"), &c1); !errors.ErrNotFound.Is(err) {
		t.Fatalf("unexpected error for an unknown model get: %s", err)
	}
	if ok, err := b.Has(db, []byte("c1")); err != nil || ok {
		t.Fatalf("want c1 to be gone: %v, %v", ok, err)
	}
}

func TestModelBucketIndex(t *testing.T) {
	db := store.MemStore()
	b := NewModelBucket("cnts", &counter{}, WithIndex("owner", indexByOwner))

	alice, bob, carol := []byte("alice"), []byte("bob"), []byte("bobby")

	assert.Nil(t, b.Put(db, []byte("c1"), &counter{Count: 1, Owners: [][]byte{alice, bob}}))
	assert.Nil(t, b.Put(db, []byte("c2"), &counter{Count: 2, Owners: [][]byte{bob}}))
	assert.Nil(t, b.Put(db, []byte("c3"), &counter{Count: 3, Owners: [][]byte{carol}}))

	keys, err := b.IndexKeys(db, "owner", bob)
	assert.Nil(t, err)
	// bobby shares the prefix but is a different value
	assert.Equal(t, [][]byte{[]byte("c1"), []byte("c2")}, keys)

	// moving an owner updates the index
	assert.Nil(t, b.Put(db, []byte("c1"), &counter{Count: 1, Owners: [][]byte{alice}}))
	keys, err = b.IndexKeys(db, "owner", bob)
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("c2")}, keys)

	keys, err = b.IndexKeys(db, "owner", alice)
	assert.Nil(t, err)
	assert.Equal(t, [][]byte{[]byte("c1")}, keys)

	// delete clears all references
	assert.Nil(t, b.Delete(db, []byte("c1")))
	keys, err = b.IndexKeys(db, "owner", alice)
	assert.Nil(t, err)
	assert.Equal(t, 0, len(keys))

	if _, err := b.IndexKeys(db, "xyz", alice); !ErrInvalidIndex.Is(err) {
		t.Fatalf("unexpected error: %s", err)
	}
}

func TestModelBucketPrefixScan(t *testing.T) {
	db := store.MemStore()
	b := NewModelBucket("cnts", &counter{})
	// another bucket must not leak into the scan
	o := NewModelBucket("cntsx", &other{})
	assert.Nil(t, o.Put(db, []byte("a1"), &other{Name: "noise"}))

	for i, key := range []string{"a1", "a2", "a3", "b1"} {
		assert.Nil(t, b.Put(db, []byte(key), &counter{Count: int64(i + 1)}))
	}

	cases := map[string]struct {
		prefix  []byte
		reverse bool
		want    []string
	}{
		"all": {
			prefix: nil,
			want:   []string{"a1", "a2", "a3", "b1"},
		},
		"prefix": {
			prefix: []byte("a"),
			want:   []string{"a1", "a2", "a3"},
		},
		"reverse prefix": {
			prefix:  []byte("a"),
			reverse: true,
			want:    []string{"a3", "a2", "a1"},
		},
		"nothing": {
			prefix: []byte("c"),
			want:   nil,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			it, err := b.PrefixScan(db, tc.prefix, tc.reverse)
			assert.Nil(t, err)
			defer it.Release()

			var got []string
			for {
				var c counter
				key, err := it.LoadNext(&c)
				if errors.ErrIteratorDone.Is(err) {
					break
				}
				assert.Nil(t, err)
				got = append(got, string(key))
			}
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestPrefixEnd(t *testing.T) {
	assert.Equal(t, []byte("b"), PrefixEnd([]byte("a")))
	assert.Equal(t, []byte{0x01}, PrefixEnd([]byte{0x00, 0xFF}))
	if PrefixEnd([]byte{0xFF, 0xFF}) != nil {
		t.Fatal("want nil for an all 0xFF prefix")
	}
}
