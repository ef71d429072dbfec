package multisig

import (
	"bytes"
	"sort"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/orm"
)

const (
	// AccountBucketName is where we store the accounts
	AccountBucketName = "msigacct"
	// SignatoryIndexName is the reverse index from a signatory to all
	// accounts it belongs to
	SignatoryIndexName = "msigsig"

	// DefaultMaxDepth limits how many levels of nested accounts a
	// hierarchy can have.
	DefaultMaxDepth = 8
)

// AccountBucket is a type-safe wrapper around orm.ModelBucket
type AccountBucket struct {
	orm.ModelBucket
}

// NewAccountBucket returns a bucket for storing accounts, indexed by the
// addresses of their signatories.
func NewAccountBucket() AccountBucket {
	return AccountBucket{
		ModelBucket: orm.NewModelBucket(AccountBucketName, &Account{},
			orm.WithIndex(SignatoryIndexName, signatoryIndexer)),
	}
}

func signatoryIndexer(m orm.Model) ([][]byte, error) {
	a, ok := m.(*Account)
	if !ok {
		return nil, errors.Wrapf(errors.ErrType, "%T", m)
	}
	keys := make([][]byte, len(a.Signatories))
	for i, s := range a.Signatories {
		keys[i] = s.Address
	}
	return keys, nil
}

// GetAccount returns the account registered under given address.
func (b AccountBucket) GetAccount(db quorum.ReadOnlyKVStore, addr quorum.Address) (*Account, error) {
	var a Account
	if err := b.One(db, addr, &a); err != nil {
		return nil, errors.Wrapf(err, "account %s", addr)
	}
	return &a, nil
}

// ParentsOf returns addresses of all accounts that list given address as
// their direct signatory.
func (b AccountBucket) ParentsOf(db quorum.ReadOnlyKVStore, addr quorum.Address) ([]quorum.Address, error) {
	keys, err := b.IndexKeys(db, SignatoryIndexName, addr)
	if err != nil {
		return nil, err
	}
	addrs := make([]quorum.Address, len(keys))
	for i, k := range keys {
		addrs[i] = quorum.Address(k)
	}
	return addrs, nil
}

// Registry registers accounts and guards the shape of the signatory graph.
type Registry struct {
	accounts AccountBucket
	maxDepth int
	// defaultTTL is used when an account does not declare its own
	defaultTTL time.Duration
}

// NewRegistry returns a registry that allows hierarchies of at most
// maxDepth levels.
func NewRegistry(maxDepth int, defaultTTL time.Duration) *Registry {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	if defaultTTL < time.Second {
		defaultTTL = DefaultTransactionTTL
	}
	return &Registry{
		accounts:   NewAccountBucket(),
		maxDepth:   maxDepth,
		defaultTTL: defaultTTL,
	}
}

// Accounts returns the underlying bucket.
func (r *Registry) Accounts() AccountBucket {
	return r.accounts
}

// Register validates and stores a new account. The account must not be
// registered yet and must not become, directly or transitively, its own
// signatory.
func (r *Registry) Register(db quorum.KVStore, now quorum.UnixTime, acc *Account) (*Account, error) {
	a := *acc
	a.Signatories = append([]Signatory(nil), acc.Signatories...)
	a.RegisteredAt = now
	if a.TransactionTTL == 0 {
		a.TransactionTTL = r.defaultTTL
	}
	a.TransactionTTL = a.TransactionTTL.Truncate(time.Second)

	if err := a.Validate(); err != nil {
		return nil, err
	}
	switch ok, err := r.accounts.Has(db, a.Address); {
	case err != nil:
		return nil, err
	case ok:
		return nil, errors.Wrapf(errors.ErrDuplicate, "account %s", a.Address)
	}

	below, err := r.heightBelow(db, &a)
	if err != nil {
		return nil, err
	}
	above, err := r.heightAbove(db, a.Address)
	if err != nil {
		return nil, err
	}
	if levels := below + above + 1; levels > r.maxDepth {
		return nil, errors.Wrapf(ErrInvalidQuorum, "hierarchy of %d levels exceeds the limit of %d", levels, r.maxDepth)
	}

	if err := r.accounts.Put(db, a.Address, &a); err != nil {
		return nil, errors.Wrap(err, "cannot store account")
	}
	return &a, nil
}

// heightBelow returns the number of nested account levels under given
// account. Reaching the account itself means a cycle.
func (r *Registry) heightBelow(db quorum.ReadOnlyKVStore, root *Account) (int, error) {
	// registered accounts never form a cycle, so heights of shared
	// sub-accounts can be reused
	heights := make(map[string]int)
	path := make(map[string]bool)

	var walk func(acc *Account, depth int) (int, error)
	walk = func(acc *Account, depth int) (int, error) {
		if depth > r.maxDepth {
			return 0, errors.Wrapf(ErrInvalidQuorum, "hierarchy exceeds the limit of %d levels", r.maxDepth)
		}
		height := 0
		for _, s := range acc.Signatories {
			key := string(s.Address)
			if s.Address.Equals(root.Address) || path[key] {
				return 0, errors.Wrapf(ErrCyclicSignatoryGraph, "%s is transitively its own signatory", root.Address)
			}
			h, ok := heights[key]
			if !ok {
				child, err := r.accounts.GetAccount(db, s.Address)
				switch {
				case errors.ErrNotFound.Is(err):
					heights[key] = -1
					continue
				case err != nil:
					return 0, err
				}
				path[key] = true
				h, err = walk(child, depth+1)
				delete(path, key)
				if err != nil {
					return 0, err
				}
				heights[key] = h
			}
			if h >= 0 && h+1 > height {
				height = h + 1
			}
		}
		return height, nil
	}
	return walk(root, 1)
}

// heightAbove returns the number of registered account levels that list
// given address as a transitive signatory.
func (r *Registry) heightAbove(db quorum.ReadOnlyKVStore, addr quorum.Address) (int, error) {
	height := 0
	level := []quorum.Address{addr}
	for len(level) > 0 {
		// an account can be reached through paths of different length,
		// only the longest one matters
		var next []quorum.Address
		seen := make(map[string]bool)
		for _, a := range level {
			parents, err := r.accounts.ParentsOf(db, a)
			if err != nil {
				return 0, err
			}
			for _, p := range parents {
				if seen[string(p)] {
					continue
				}
				seen[string(p)] = true
				next = append(next, p)
			}
		}
		if len(next) == 0 {
			break
		}
		height++
		if height > r.maxDepth {
			return 0, errors.Wrapf(ErrInvalidQuorum, "hierarchy exceeds the limit of %d levels", r.maxDepth)
		}
		level = next
	}
	return height, nil
}

// VisibleAccounts returns all registered accounts that have given address as
// a direct or transitive signatory, ordered by address.
func (r *Registry) VisibleAccounts(db quorum.ReadOnlyKVStore, viewer quorum.Address) ([]quorum.Address, error) {
	var res []quorum.Address
	seen := map[string]bool{string(viewer): true}
	queue := []quorum.Address{viewer}
	for depth := 0; len(queue) > 0 && depth < r.maxDepth; depth++ {
		var next []quorum.Address
		for _, a := range queue {
			parents, err := r.accounts.ParentsOf(db, a)
			if err != nil {
				return nil, err
			}
			for _, p := range parents {
				if seen[string(p)] {
					continue
				}
				seen[string(p)] = true
				res = append(res, p)
				next = append(next, p)
			}
		}
		queue = next
	}
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i], res[j]) < 0
	})
	return res, nil
}
