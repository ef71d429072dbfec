package multisig

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/orm"
)

// ListQuery selects proposals returned by List.
type ListQuery struct {
	// Viewer must be a direct or transitive signatory of every listed
	// account.
	Viewer quorum.Address
	// Account limits the result to a single account. When empty, all
	// accounts visible to the viewer are listed.
	Account quorum.Address
	// Cursor is the value returned by ProposalIterator.Cursor. Listing
	// continues right after the proposal it points to.
	Cursor []byte
	// IncludeSettled lists executed, failed and expired proposals as well.
	IncludeSettled bool
}

// ProposalSummary describes a proposal from the point of view of the viewer.
type ProposalSummary struct {
	Account          quorum.Address
	InstructionsHash []byte
	Instructions     []Instruction
	ProposedAt       quorum.UnixTime
	// ExpiresIn is rounded down to seconds.
	ExpiresIn time.Duration
	Status    ProposalStatus
	Weight    uint64
	Quorum    uint32
	// ApprovalPath leads from the viewer up to the account.
	ApprovalPath []ApprovalEdge
}

// MarshalJSON uses the human readable form of the hash and the expiration.
func (s ProposalSummary) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Account          quorum.Address  `json:"account"`
		InstructionsHash string          `json:"instructions_hash"`
		Instructions     []Instruction   `json:"instructions"`
		ProposedAt       quorum.UnixTime `json:"proposed_at"`
		ExpiresIn        string          `json:"expires_in"`
		Status           ProposalStatus  `json:"status"`
		Weight           uint64          `json:"weight"`
		Quorum           uint32          `json:"quorum"`
		ApprovalPath     []ApprovalEdge  `json:"approval_path"`
	}{
		Account:          s.Account,
		InstructionsHash: FormatHash(s.InstructionsHash),
		Instructions:     s.Instructions,
		ProposedAt:       s.ProposedAt,
		ExpiresIn:        quorum.FormatDuration(s.ExpiresIn),
		Status:           s.Status,
		Weight:           s.Weight,
		Quorum:           s.Quorum,
		ApprovalPath:     s.ApprovalPath,
	})
}

// List returns a lazy iterator over proposals selected by the query. Expired
// proposals are skipped unless settled ones are requested.
func (s *ProposalStore) List(db quorum.ReadOnlyKVStore, now quorum.UnixTime, q ListQuery) (*ProposalIterator, error) {
	if err := q.Viewer.Validate(); err != nil {
		return nil, errors.Wrap(err, "viewer")
	}
	if len(q.Cursor) != 0 && len(q.Cursor) <= quorum.AddressLength {
		return nil, errors.Wrap(errors.ErrInput, "invalid cursor")
	}

	var accounts []quorum.Address
	if len(q.Account) != 0 {
		if err := s.ensureMember(db, q.Account, q.Viewer); err != nil {
			return nil, err
		}
		accounts = []quorum.Address{q.Account}
	} else {
		visible, err := s.registry.VisibleAccounts(db, q.Viewer)
		if err != nil {
			return nil, err
		}
		accounts = visible
	}

	if len(q.Cursor) != 0 {
		// accounts are ordered, skip all that were listed already
		cur := q.Cursor[:quorum.AddressLength]
		for len(accounts) > 0 && bytes.Compare(accounts[0], cur) < 0 {
			accounts = accounts[1:]
		}
	}

	return &ProposalIterator{
		store:    s,
		db:       db,
		now:      now,
		query:    q,
		accounts: accounts,
		cursor:   q.Cursor,
	}, nil
}

// ProposalIterator lazily loads proposal summaries. It is not safe for
// concurrent use.
type ProposalIterator struct {
	store    *ProposalStore
	db       quorum.ReadOnlyKVStore
	now      quorum.UnixTime
	query    ListQuery
	accounts []quorum.Address
	current  orm.ModelIterator
	cursor   []byte
}

// Next returns the next summary. ErrIteratorDone is returned when there are
// no more proposals.
func (it *ProposalIterator) Next() (*ProposalSummary, error) {
	for {
		if it.current == nil {
			if len(it.accounts) == 0 {
				return nil, errors.ErrIteratorDone
			}
			if err := it.open(it.accounts[0]); err != nil {
				return nil, err
			}
			it.accounts = it.accounts[1:]
		}

		var p Proposal
		key, err := it.current.LoadNext(&p)
		switch {
		case errors.ErrIteratorDone.Is(err):
			it.current.Release()
			it.current = nil
			continue
		case err != nil:
			return nil, err
		}
		it.cursor = append(it.cursor[:0:0], key...)

		expired := p.IsExpired(it.now)
		if !it.query.IncludeSettled && (expired || p.Status.IsTerminal()) {
			continue
		}
		if expired {
			p.Status = ProposalExpired
		}
		return it.summary(&p)
	}
}

// open starts iterating over proposals of a single account, continuing after
// the cursor if it points into that account.
func (it *ProposalIterator) open(account quorum.Address) error {
	start := []byte(account)
	if bytes.HasPrefix(it.cursor, account) {
		start = append(append([]byte(nil), it.cursor...), 0)
	}
	iter, err := it.store.proposals.Range(it.db, start, orm.PrefixEnd(account), false)
	if err != nil {
		return err
	}
	it.current = iter
	return nil
}

func (it *ProposalIterator) summary(p *Proposal) (*ProposalSummary, error) {
	tally, err := it.store.resolver.Tally(it.db, p, it.now)
	if err != nil {
		return nil, err
	}
	path, err := it.store.resolver.Path(it.db, p.Account, it.query.Viewer, tally)
	if err != nil {
		return nil, err
	}
	return &ProposalSummary{
		Account:          p.Account,
		InstructionsHash: p.InstructionsHash,
		Instructions:     p.Instructions,
		ProposedAt:       p.ProposedAt,
		ExpiresIn:        p.ExpiresIn(it.now),
		Status:           p.Status,
		Weight:           p.Weight,
		Quorum:           tally.Quorum(),
		ApprovalPath:     path,
	}, nil
}

// Cursor returns the key of the last visited proposal. It can be used to
// continue listing with another query.
func (it *ProposalIterator) Cursor() []byte {
	return it.cursor
}

// Release frees resources held by the iterator.
func (it *ProposalIterator) Release() {
	if it.current != nil {
		it.current.Release()
		it.current = nil
	}
	it.accounts = nil
}

// Collect loads all remaining summaries and releases the iterator.
func (it *ProposalIterator) Collect() ([]*ProposalSummary, error) {
	defer it.Release()
	var res []*ProposalSummary
	for {
		s, err := it.Next()
		switch {
		case errors.ErrIteratorDone.Is(err):
			return res, nil
		case err != nil:
			return nil, err
		}
		res = append(res, s)
	}
}
