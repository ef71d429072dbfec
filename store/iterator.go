package store

import (
	"bytes"

	"github.com/google/btree"
	"github.com/iov-one/quorum/errors"
)

// ascendBtree collects all items of the [start, end) domain in ascending
// order. A nil start or end leaves that side of the domain open.
func ascendBtree(bt *btree.BTree, start, end []byte) []entry {
	var items []entry
	collect := func(item btree.Item) bool {
		items = append(items, item.(entry))
		return true
	}
	switch {
	case start == nil && end == nil:
		bt.Ascend(collect)
	case start == nil:
		bt.AscendLessThan(entry{key: end}, collect)
	case end == nil:
		bt.AscendGreaterOrEqual(entry{key: start}, collect)
	default:
		bt.AscendRange(entry{key: start}, entry{key: end}, collect)
	}
	return items
}

// descendBtree collects all items of the [start, end) domain in descending
// order.
func descendBtree(bt *btree.BTree, start, end []byte) []entry {
	var items []entry
	collect := func(item btree.Item) bool {
		e := item.(entry)
		if end != nil && bytes.Compare(e.key, end) >= 0 {
			return true
		}
		if start != nil && bytes.Compare(e.key, start) < 0 {
			return false
		}
		items = append(items, e)
		return true
	}
	if end == nil {
		bt.Descend(collect)
	} else {
		bt.DescendLessOrEqual(entry{key: end}, collect)
	}
	return items
}

// mergeIterator joins our results with those of the parent,
// taking into consideration overwrites and deletes.
type mergeIterator struct {
	items     []entry
	parent    Iterator
	ascending bool

	peeked     bool
	parentDone bool
	pkey, pval []byte
}

var _ Iterator = (*mergeIterator)(nil)

func newMergeIterator(items []entry, parent Iterator, ascending bool) *mergeIterator {
	return &mergeIterator{
		items:     items,
		parent:    parent,
		ascending: ascending,
	}
}

// Next returns the next key-value pair in iteration order. Deleted entries
// are skipped and cached values shadow those of the parent.
func (m *mergeIterator) Next() (key, value []byte, err error) {
	for {
		if err := m.peekParent(); err != nil {
			return nil, nil, err
		}

		switch src := m.first(); src {
		case none:
			return nil, nil, errors.Wrap(errors.ErrIteratorDone, "merge done")
		case parent:
			m.peeked = false
			return m.pkey, m.pval, nil
		case us, both:
			item := m.items[0]
			m.items = m.items[1:]
			if src == both {
				m.peeked = false
			}
			if !item.deleted {
				return item.key, item.value, nil
			}
		}
	}
}

// Release releases the Iterator.
func (m *mergeIterator) Release() {
	m.items = nil
	m.parent.Release()
}

func (m *mergeIterator) peekParent() error {
	if m.peeked || m.parentDone {
		return nil
	}
	k, v, err := m.parent.Next()
	switch {
	case errors.ErrIteratorDone.Is(err):
		m.parentDone = true
		return nil
	case err != nil:
		return errors.Wrap(err, "parent iterator")
	}
	m.pkey, m.pval, m.peeked = k, v, true
	return nil
}

// source marks where the current item comes from
type source int32

const (
	us source = iota
	parent
	both
	none
)

// first selects the source holding the next key in iteration order.
func (m *mergeIterator) first() source {
	switch {
	case len(m.items) == 0 && !m.peeked:
		return none
	case len(m.items) == 0:
		return parent
	case !m.peeked:
		return us
	}

	cmp := bytes.Compare(m.items[0].key, m.pkey)
	if !m.ascending {
		cmp = -cmp
	}
	switch {
	case cmp < 0:
		return us
	case cmp > 0:
		return parent
	default:
		return both
	}
}
