package multisig

import (
	"testing"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/quorumtest"
	"github.com/iov-one/quorum/quorumtest/assert"
	"github.com/iov-one/quorum/store"
	"github.com/stretchr/testify/require"
)

// account is a shortcut for building accounts in tests. Weights and
// signatories are passed as pairs.
func account(addr quorum.Address, q uint32, sigs ...interface{}) *Account {
	acc := &Account{Address: addr, Quorum: q}
	for i := 0; i < len(sigs); i += 2 {
		acc.Signatories = append(acc.Signatories, Signatory{
			Address: sigs[i].(quorum.Address),
			Weight:  Weight(sigs[i+1].(int)),
		})
	}
	return acc
}

func TestRegistryRegister(t *testing.T) {
	db := store.MemStore()
	r := NewRegistry(DefaultMaxDepth, time.Hour)
	now := quorum.AsUnixTime(quorumtest.Genesis)

	root, a, b := quorumtest.NewAddress(), quorumtest.NewAddress(), quorumtest.NewAddress()

	acc, err := r.Register(db, now, account(root, 2, a, 1, b, 1))
	require.NoError(t, err)
	require.Equal(t, now, acc.RegisteredAt)
	require.Equal(t, time.Hour, acc.TransactionTTL)

	stored, err := r.Accounts().GetAccount(db, root)
	require.NoError(t, err)
	require.Equal(t, acc, stored)

	_, err = r.Register(db, now, account(root, 1, a, 1))
	assert.IsErr(t, errors.ErrDuplicate, err)

	_, err = r.Register(db, now, account(quorumtest.NewAddress(), 3, a, 1, b, 1))
	assert.IsErr(t, ErrInvalidQuorum, err)

	_, err = r.Register(db, now, account(quorumtest.NewAddress(), 1, a, 1, a, 1))
	assert.IsErr(t, ErrDuplicateSignatory, err)

	_, err = r.Accounts().GetAccount(db, quorumtest.NewAddress())
	assert.IsErr(t, errors.ErrNotFound, err)
}

func TestRegistryKeepsOwnTTL(t *testing.T) {
	db := store.MemStore()
	r := NewRegistry(DefaultMaxDepth, time.Hour)

	acc := account(quorumtest.NewAddress(), 1, quorumtest.NewAddress(), 1)
	acc.TransactionTTL = 90*time.Minute + 300*time.Millisecond
	registered, err := r.Register(db, 100, acc)
	require.NoError(t, err)
	require.Equal(t, 90*time.Minute, registered.TransactionTTL)
	// the input is not modified
	require.Equal(t, quorum.UnixTime(0), acc.RegisteredAt)
}

func TestRegistryCycle(t *testing.T) {
	db := store.MemStore()
	r := NewRegistry(DefaultMaxDepth, time.Hour)

	top, middle, bottom, member := quorumtest.NewAddress(), quorumtest.NewAddress(), quorumtest.NewAddress(), quorumtest.NewAddress()

	_, err := r.Register(db, 1, account(top, 1, middle, 1))
	require.NoError(t, err)
	_, err = r.Register(db, 1, account(middle, 1, member, 1))
	require.NoError(t, err)

	// bottom -> top -> middle -> member is fine
	_, err = r.Register(db, 1, account(bottom, 1, top, 1))
	require.NoError(t, err)

	// member is already listed by middle, so it cannot list bottom which
	// transitively contains it
	_, err = r.Register(db, 1, account(member, 1, bottom, 1))
	assert.IsErr(t, ErrCyclicSignatoryGraph, err)
	assert.IsErr(t, ErrInvalidQuorum, err)

	ok, err := r.Accounts().Has(db, member)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRegistryDepthLimit(t *testing.T) {
	db := store.MemStore()
	r := NewRegistry(3, time.Hour)

	leaf := quorumtest.NewAddress()
	l1, l2, l3, l4 := quorumtest.NewAddress(), quorumtest.NewAddress(), quorumtest.NewAddress(), quorumtest.NewAddress()

	_, err := r.Register(db, 1, account(l1, 1, leaf, 1))
	require.NoError(t, err)
	_, err = r.Register(db, 1, account(l2, 1, l1, 1))
	require.NoError(t, err)
	_, err = r.Register(db, 1, account(l3, 1, l2, 1))
	require.NoError(t, err)

	_, err = r.Register(db, 1, account(l4, 1, l3, 1))
	assert.IsErr(t, ErrInvalidQuorum, err)
}

func TestRegistryDepthLimitAbove(t *testing.T) {
	db := store.MemStore()
	r := NewRegistry(3, time.Hour)

	// parents can be registered before the nested account exists
	nested, p1, p2, p3 := quorumtest.NewAddress(), quorumtest.NewAddress(), quorumtest.NewAddress(), quorumtest.NewAddress()
	_, err := r.Register(db, 1, account(p1, 1, nested, 1))
	require.NoError(t, err)
	_, err = r.Register(db, 1, account(p2, 1, p1, 1))
	require.NoError(t, err)

	// nested would become the third level, its own signatory account the
	// fourth
	sub := quorumtest.NewAddress()
	_, err = r.Register(db, 1, account(sub, 1, quorumtest.NewAddress(), 1))
	require.NoError(t, err)
	_, err = r.Register(db, 1, account(nested, 1, sub, 1))
	assert.IsErr(t, ErrInvalidQuorum, err)

	_, err = r.Register(db, 1, account(nested, 1, p3, 1))
	require.NoError(t, err)
}

func TestVisibleAccounts(t *testing.T) {
	db := store.MemStore()
	r := NewRegistry(DefaultMaxDepth, time.Hour)

	member, other := quorumtest.NewAddress(), quorumtest.NewAddress()
	sub, root, unrelated := quorumtest.NewAddress(), quorumtest.NewAddress(), quorumtest.NewAddress()

	_, err := r.Register(db, 1, account(sub, 1, member, 1, other, 1))
	require.NoError(t, err)
	_, err = r.Register(db, 1, account(root, 1, sub, 1, other, 1))
	require.NoError(t, err)
	_, err = r.Register(db, 1, account(unrelated, 1, other, 1))
	require.NoError(t, err)

	parents, err := r.Accounts().ParentsOf(db, other)
	require.NoError(t, err)
	require.ElementsMatch(t, []quorum.Address{sub, root, unrelated}, parents)

	visible, err := r.VisibleAccounts(db, member)
	require.NoError(t, err)
	require.ElementsMatch(t, []quorum.Address{sub, root}, visible)

	visible, err = r.VisibleAccounts(db, quorumtest.NewAddress())
	require.NoError(t, err)
	require.Empty(t, visible)
}
