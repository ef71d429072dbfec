package multisig

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/quorumtest"
	"github.com/iov-one/quorum/quorumtest/assert"
	"github.com/iov-one/quorum/store"
	"github.com/stretchr/testify/require"
)

// nestedFixture registers
//
//	root (quorum 3): sub(2), x(1)
//	sub  (quorum 2): m1(1), m2(1)
type nestedFixture struct {
	db       quorum.CacheableKVStore
	registry *Registry

	root, sub, x, m1, m2 quorum.Address
}

func newNestedFixture(t testing.TB) *nestedFixture {
	t.Helper()
	f := &nestedFixture{
		db:       store.MemStore(),
		registry: NewRegistry(DefaultMaxDepth, time.Hour),
		root:     quorumtest.SequenceAddress(1),
		sub:      quorumtest.SequenceAddress(2),
		x:        quorumtest.SequenceAddress(3),
		m1:       quorumtest.SequenceAddress(4),
		m2:       quorumtest.SequenceAddress(5),
	}
	_, err := f.registry.Register(f.db, 1, account(f.sub, 2, f.m1, 1, f.m2, 1))
	require.NoError(t, err)
	_, err = f.registry.Register(f.db, 1, account(f.root, 3, f.sub, 2, f.x, 1))
	require.NoError(t, err)
	return f
}

func (f *nestedFixture) proposal(approvals ...Approval) *Proposal {
	return &Proposal{
		Account:   f.root,
		Approvals: approvals,
		Status:    ProposalPending,
	}
}

func TestTallyNestedSubQuorum(t *testing.T) {
	f := newNestedFixture(t)
	r := NewResolver(f.registry.Accounts(), ExpiryInherit, DefaultMaxDepth)
	now := quorum.UnixTime(1000)

	cases := map[string]struct {
		approvals []Approval
		wantRoot  uint64
		wantSub   uint64
		wantMet   bool
	}{
		"nested member alone contributes nothing upward": {
			approvals: []Approval{{Approver: f.m1, ApprovedAt: now}},
			wantRoot:  0,
			wantSub:   1,
		},
		"direct signatory only": {
			approvals: []Approval{{Approver: f.x, ApprovedAt: now}},
			wantRoot:  1,
			wantSub:   0,
		},
		"nested quorum met": {
			approvals: []Approval{{Approver: f.m1, ApprovedAt: now}, {Approver: f.m2, ApprovedAt: now}},
			wantRoot:  2,
			wantSub:   2,
		},
		"direct approval of a nested account is ignored": {
			approvals: []Approval{{Approver: f.sub, ApprovedAt: now}, {Approver: f.x, ApprovedAt: now}},
			wantRoot:  1,
			wantSub:   0,
		},
		"everything": {
			approvals: []Approval{{Approver: f.m1, ApprovedAt: now}, {Approver: f.x, ApprovedAt: now}, {Approver: f.m2, ApprovedAt: now}},
			wantRoot:  3,
			wantSub:   2,
			wantMet:   true,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			tally, err := r.Tally(f.db, f.proposal(tc.approvals...), now)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRoot, tally.Weight())
			assert.Equal(t, uint32(3), tally.Quorum())
			assert.Equal(t, tc.wantMet, tally.Met())

			got, q, ok := tally.Level(f.sub)
			require.True(t, ok)
			assert.Equal(t, tc.wantSub, got)
			assert.Equal(t, uint32(2), q)
		})
	}
}

func TestTallySatisfiedAndLatched(t *testing.T) {
	f := newNestedFixture(t)
	r := NewResolver(f.registry.Accounts(), ExpiryInherit, DefaultMaxDepth)

	p := f.proposal(Approval{Approver: f.m1, ApprovedAt: 10}, Approval{Approver: f.m2, ApprovedAt: 10})
	tally, err := r.Tally(f.db, p, 20)
	require.NoError(t, err)
	require.Equal(t, []quorum.Address{f.sub}, tally.Satisfied())

	// a latched account contributes even without the approvals that
	// satisfied it
	p = f.proposal(Approval{Approver: f.x, ApprovedAt: 10})
	p.Latched = []quorum.Address{f.sub}
	tally, err = r.Tally(f.db, p, 20)
	require.NoError(t, err)
	require.Equal(t, uint64(3), tally.Weight())
	require.True(t, tally.Met())
	require.True(t, tally.Joined(f.root, f.sub))
}

func TestTallyExpiryPolicy(t *testing.T) {
	f := newNestedFixture(t)
	start := quorum.UnixTime(1000)
	now := start.Add(2 * time.Hour)
	p := f.proposal(
		Approval{Approver: f.x, ApprovedAt: start},
		Approval{Approver: f.m1, ApprovedAt: start},
		Approval{Approver: f.m2, ApprovedAt: now},
	)

	inherit := NewResolver(f.registry.Accounts(), ExpiryInherit, DefaultMaxDepth)
	tally, err := inherit.Tally(f.db, p, now)
	require.NoError(t, err)
	require.Equal(t, uint64(3), tally.Weight())

	// sub has a one hour ttl, the approval of m1 does not count anymore.
	// Direct approvals of the root are not affected.
	own := NewResolver(f.registry.Accounts(), ExpiryOwn, DefaultMaxDepth)
	tally, err = own.Tally(f.db, p, now)
	require.NoError(t, err)
	require.Equal(t, uint64(1), tally.Weight())
	got, _, _ := tally.Level(f.sub)
	require.Equal(t, uint64(1), got)

	// once latched, the nested account is never uncounted
	p.Latched = []quorum.Address{f.sub}
	tally, err = own.Tally(f.db, p, now)
	require.NoError(t, err)
	require.Equal(t, uint64(3), tally.Weight())
}

func TestTallyNestedAccountBeyondDepth(t *testing.T) {
	f := newNestedFixture(t)
	shallow := NewResolver(f.registry.Accounts(), ExpiryInherit, 1)

	p := f.proposal(Approval{Approver: f.sub, ApprovedAt: 10}, Approval{Approver: f.x, ApprovedAt: 10})
	tally, err := shallow.Tally(f.db, p, 20)
	require.NoError(t, err)
	require.Equal(t, uint64(1), tally.Weight())
	require.False(t, tally.Joined(f.root, f.sub))
}

func TestTallyUnknownAccount(t *testing.T) {
	f := newNestedFixture(t)
	r := NewResolver(f.registry.Accounts(), ExpiryInherit, DefaultMaxDepth)
	p := &Proposal{Account: quorumtest.NewAddress(), Status: ProposalPending}
	_, err := r.Tally(f.db, p, 1)
	assert.IsErr(t, errors.ErrNotFound, err)
}

func TestResolverMembership(t *testing.T) {
	f := newNestedFixture(t)
	r := NewResolver(f.registry.Accounts(), ExpiryInherit, DefaultMaxDepth)

	for _, addr := range []quorum.Address{f.sub, f.x, f.m1, f.m2} {
		ok, err := r.IsMember(f.db, f.root, addr)
		require.NoError(t, err)
		require.True(t, ok, "%s must be a member", addr)
	}
	ok, err := r.IsMember(f.db, f.root, quorumtest.NewAddress())
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = r.IsMember(f.db, f.sub, f.x)
	require.NoError(t, err)
	require.False(t, ok)

	// the depth limit stops the search
	shallow := NewResolver(f.registry.Accounts(), ExpiryInherit, 1)
	ok, err = shallow.IsMember(f.db, f.root, f.m1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApprovalPath(t *testing.T) {
	f := newNestedFixture(t)
	r := NewResolver(f.registry.Accounts(), ExpiryInherit, DefaultMaxDepth)

	p := f.proposal(Approval{Approver: f.m1, ApprovedAt: 10})
	tally, err := r.Tally(f.db, p, 20)
	require.NoError(t, err)

	path, err := r.Path(f.db, f.root, f.m1, tally)
	require.NoError(t, err)
	require.Equal(t, []ApprovalEdge{
		{Weight: 1, Joined: true, Got: 1, Quorum: 2, Target: f.sub},
		{Weight: 2, Joined: false, Got: 0, Quorum: 3, Target: f.root},
	}, path)

	assert.Equal(t, fmt.Sprintf("1 joined [1/2] %s", f.sub), path[0].String())
	assert.Equal(t, fmt.Sprintf("2 -> [0/3] %s", f.root), path[1].String())

	raw, err := json.Marshal(path)
	require.NoError(t, err)
	want := fmt.Sprintf(`["1 joined [1/2] %s","2 -> [0/3] %s"]`, f.sub, f.root)
	require.JSONEq(t, want, string(raw))

	direct, err := r.Path(f.db, f.root, f.x, nil)
	require.NoError(t, err)
	require.Equal(t, []ApprovalEdge{{Weight: 1, Quorum: 3, Target: f.root}}, direct)

	_, err = r.Path(f.db, f.root, quorumtest.NewAddress(), tally)
	assert.IsErr(t, ErrNotASignatory, err)
}

func TestExpiryPolicyText(t *testing.T) {
	var p ExpiryPolicy
	require.NoError(t, p.UnmarshalText([]byte(" OWN ")))
	require.Equal(t, ExpiryOwn, p)
	assert.IsErr(t, errors.ErrInput, p.UnmarshalText([]byte("forever")))
	require.Equal(t, ExpiryOwn, p)
}
