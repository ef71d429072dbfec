package multisig

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
)

// ExpiryPolicy decides how long a partial approval collected by a nested
// account keeps counting toward that account quorum.
type ExpiryPolicy string

const (
	// ExpiryInherit keeps partial approvals of nested accounts for as
	// long as the root proposal lives.
	ExpiryInherit ExpiryPolicy = "inherit"
	// ExpiryOwn counts a partial approval of a nested account only
	// within the transaction TTL of that nested account.
	ExpiryOwn ExpiryPolicy = "own"
)

// Validate returns an error if the policy is not known.
func (p ExpiryPolicy) Validate() error {
	switch p {
	case ExpiryInherit, ExpiryOwn:
		return nil
	}
	return errors.Wrapf(errors.ErrInput, "unknown expiry policy %q", string(p))
}

// UnmarshalText parses and validates the policy name.
func (p *ExpiryPolicy) UnmarshalText(raw []byte) error {
	policy := ExpiryPolicy(strings.ToLower(strings.TrimSpace(string(raw))))
	if err := policy.Validate(); err != nil {
		return err
	}
	*p = policy
	return nil
}

// Resolver walks the signatory hierarchy of an account.
type Resolver struct {
	accounts AccountBucket
	policy   ExpiryPolicy
	maxDepth int
}

// NewResolver returns a resolver that follows at most maxDepth levels of
// nested accounts.
func NewResolver(accounts AccountBucket, policy ExpiryPolicy, maxDepth int) *Resolver {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	if policy == "" {
		policy = ExpiryInherit
	}
	return &Resolver{
		accounts: accounts,
		policy:   policy,
		maxDepth: maxDepth,
	}
}

// Tally holds the weight collected by every account of a hierarchy for a
// single proposal.
type Tally struct {
	root   string
	levels map[string]*tallyLevel
}

type tallyLevel struct {
	account *Account
	got     uint64
	// joined tells which signatories contributed their weight
	joined map[string]bool
}

func (l *tallyLevel) met() bool {
	return l.got >= uint64(l.account.Quorum)
}

// Weight returns the weight collected by the root account.
func (t *Tally) Weight() uint64 {
	if l := t.levels[t.root]; l != nil {
		return l.got
	}
	return 0
}

// Quorum returns the quorum of the root account.
func (t *Tally) Quorum() uint32 {
	if l := t.levels[t.root]; l != nil {
		return l.account.Quorum
	}
	return 0
}

// Met returns true if the root account quorum is reached.
func (t *Tally) Met() bool {
	l := t.levels[t.root]
	return l != nil && l.met()
}

// Level returns the weight collected by a single account of the hierarchy.
func (t *Tally) Level(addr quorum.Address) (got uint64, quorum uint32, ok bool) {
	l := t.levels[string(addr)]
	if l == nil {
		return 0, 0, false
	}
	return l.got, l.account.Quorum, true
}

// Joined returns true if the signatory contributed its weight to the
// account.
func (t *Tally) Joined(account, signatory quorum.Address) bool {
	l := t.levels[string(account)]
	return l != nil && l.joined[string(signatory)]
}

// Satisfied returns all nested accounts, excluding the root, whose quorum
// is met. The result is ordered by address.
func (t *Tally) Satisfied() []quorum.Address {
	var res []quorum.Address
	for key, l := range t.levels {
		if key == t.root || l == nil || !l.met() {
			continue
		}
		res = append(res, quorum.Address(key))
	}
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i], res[j]) < 0
	})
	return res
}

// Tally computes the weight collected by every account in the hierarchy of
// the proposal account.
//
// A signatory contributes its weight to an account when it approved the
// proposal. A signatory that is itself an account contributes only when its
// quorum is met or was latched earlier.
func (r *Resolver) Tally(db quorum.ReadOnlyKVStore, p *Proposal, now quorum.UnixTime) (*Tally, error) {
	t := &Tally{
		root:   string(p.Account),
		levels: make(map[string]*tallyLevel),
	}

	// evaluated keeps track of visited addresses, a nil level marks an
	// address that is not an account.
	evaluated := make(map[string]bool)

	var eval func(addr quorum.Address, depth int) (*tallyLevel, error)
	eval = func(addr quorum.Address, depth int) (*tallyLevel, error) {
		key := string(addr)
		if evaluated[key] {
			return t.levels[key], nil
		}
		evaluated[key] = true

		acc, err := r.accounts.GetAccount(db, addr)
		switch {
		case errors.ErrNotFound.Is(err):
			return nil, nil
		case err != nil:
			return nil, err
		}

		lvl := &tallyLevel{
			account: acc,
			joined:  make(map[string]bool, len(acc.Signatories)),
		}
		isRoot := key == t.root
		for _, s := range acc.Signatories {
			// nested levels are always evaluated so that their state
			// can be displayed
			var sub *tallyLevel
			if depth < r.maxDepth {
				if sub, err = eval(s.Address, depth+1); err != nil {
					return nil, err
				}
			}
			nested := sub != nil
			if !nested {
				if nested, err = r.accounts.Has(db, s.Address); err != nil {
					return nil, err
				}
			}

			// an account contributes only through its own quorum, a
			// direct approval with its address is ignored
			contributes := p.IsLatched(s.Address)
			switch {
			case nested:
				if sub != nil && sub.met() {
					contributes = true
				}
			default:
				if a, ok := p.approvalOf(s.Address); ok && r.counts(acc, a, now, isRoot) {
					contributes = true
				}
			}
			if contributes {
				lvl.joined[string(s.Address)] = true
				lvl.got += uint64(s.Weight)
			}
		}
		t.levels[key] = lvl
		return lvl, nil
	}

	root, err := eval(p.Account, 1)
	if err != nil {
		return nil, err
	}
	if root == nil {
		return nil, errors.Wrapf(errors.ErrNotFound, "account %s", p.Account)
	}
	return t, nil
}

// counts returns true if the approval is still counted at the level of
// given account.
func (r *Resolver) counts(acc *Account, a Approval, now quorum.UnixTime, isRoot bool) bool {
	if isRoot || r.policy != ExpiryOwn {
		return true
	}
	return !quorum.IsExpired(a.ApprovedAt.Add(acc.TransactionTTL), now)
}

// IsMember returns true if the address is a direct or transitive signatory
// of the root account.
func (r *Resolver) IsMember(db quorum.ReadOnlyKVStore, root, addr quorum.Address) (bool, error) {
	chain, err := r.chain(db, root, addr)
	if err != nil {
		return false, err
	}
	return chain != nil, nil
}

// chain returns the shortest list of accounts leading from the member up to
// the root, excluding the member itself. Nil is returned if the address is
// not a member. The search is breadth first and follows the signatory order,
// so the result is deterministic.
func (r *Resolver) chain(db quorum.ReadOnlyKVStore, root, member quorum.Address) ([]*Account, error) {
	type node struct {
		account *Account
		parent  *node
	}

	rootAcc, err := r.accounts.GetAccount(db, root)
	if err != nil {
		return nil, err
	}

	visited := map[string]bool{string(root): true}
	queue := []*node{{account: rootAcc}}
	for depth := 1; len(queue) > 0 && depth <= r.maxDepth; depth++ {
		var next []*node
		for _, n := range queue {
			for _, s := range n.account.Signatories {
				if s.Address.Equals(member) {
					var chain []*Account
					for c := n; c != nil; c = c.parent {
						chain = append(chain, c.account)
					}
					return chain, nil
				}
				if visited[string(s.Address)] {
					continue
				}
				visited[string(s.Address)] = true
				sub, err := r.accounts.GetAccount(db, s.Address)
				switch {
				case errors.ErrNotFound.Is(err):
					continue
				case err != nil:
					return nil, err
				}
				next = append(next, &node{account: sub, parent: n})
			}
		}
		queue = next
	}
	return nil, nil
}

// Path returns the approval path of the member, from the member up to the
// root account. Every edge describes the weight the child adds to the
// parent and the state of the parent quorum according to the tally.
func (r *Resolver) Path(db quorum.ReadOnlyKVStore, root, member quorum.Address, tally *Tally) ([]ApprovalEdge, error) {
	chain, err := r.chain(db, root, member)
	if err != nil {
		return nil, err
	}
	if chain == nil {
		return nil, errors.Wrapf(ErrNotASignatory, "%s of %s", member, root)
	}

	edges := make([]ApprovalEdge, 0, len(chain))
	child := member
	for _, parent := range chain {
		w, err := parent.WeightOf(child)
		if err != nil {
			return nil, err
		}
		edge := ApprovalEdge{
			Weight: w,
			Quorum: parent.Quorum,
			Target: parent.Address,
		}
		if tally != nil {
			edge.Got, _, _ = tally.Level(parent.Address)
			edge.Joined = tally.Joined(parent.Address, child)
		}
		edges = append(edges, edge)
		child = parent.Address
	}
	return edges, nil
}

// ApprovalEdge is a single step of an approval path.
type ApprovalEdge struct {
	// Weight the child adds to the target.
	Weight Weight
	// Joined is true if the child already contributes its weight.
	Joined bool
	// Got is the weight the target collected so far.
	Got uint64
	// Quorum of the target.
	Quorum uint32
	Target quorum.Address
}

func (e ApprovalEdge) String() string {
	relation := "->"
	if e.Joined {
		relation = "joined"
	}
	return fmt.Sprintf("%d %s [%d/%d] %s", e.Weight, relation, e.Got, e.Quorum, e.Target)
}

// MarshalJSON uses the human readable form.
func (e ApprovalEdge) MarshalJSON() ([]byte, error) {
	return json.Marshal(e.String())
}
