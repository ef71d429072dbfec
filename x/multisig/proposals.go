package multisig

import (
	"context"
	"fmt"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/orm"
)

// ProposalBucketName is where we store the proposals
const ProposalBucketName = "msigprop"

// ProposalBucket is a type-safe wrapper around orm.ModelBucket
type ProposalBucket struct {
	orm.ModelBucket
}

// NewProposalBucket returns a bucket for storing proposals. Proposals are
// keyed by the account address followed by the instructions hash, so all
// proposals of a single account are stored next to each other.
func NewProposalBucket() ProposalBucket {
	return ProposalBucket{
		ModelBucket: orm.NewModelBucket(ProposalBucketName, &Proposal{}),
	}
}

func proposalKey(account quorum.Address, hash []byte) []byte {
	key := make([]byte, 0, len(account)+len(hash))
	key = append(key, account...)
	return append(key, hash...)
}

// GetProposal returns the proposal of an account with given instructions
// hash.
func (b ProposalBucket) GetProposal(db quorum.ReadOnlyKVStore, account quorum.Address, hash []byte) (*Proposal, error) {
	var p Proposal
	if err := b.One(db, proposalKey(account, hash), &p); err != nil {
		return nil, errors.Wrapf(err, "proposal %s of %s", FormatHash(hash), account)
	}
	return &p, nil
}

// ApprovalStatus tells if the quorum of a proposal is met.
type ApprovalStatus int

const (
	StillPending ApprovalStatus = iota + 1
	QuorumReached
)

func (s ApprovalStatus) String() string {
	switch s {
	case StillPending:
		return "StillPending"
	case QuorumReached:
		return "QuorumReached"
	}
	return "Unknown"
}

// ApprovalResult is returned by every operation that changes the approvals
// of a proposal.
type ApprovalResult struct {
	Status ApprovalStatus `json:"status"`
	Weight uint64         `json:"weight"`
	Quorum uint32         `json:"quorum"`
	// Executed is true if the instructions were executed by the ledger.
	Executed bool `json:"executed"`
}

func (r ApprovalResult) String() string {
	s := fmt.Sprintf("%s(%d/%d)", r.Status, r.Weight, r.Quorum)
	if r.Executed {
		s += " executed"
	}
	return s
}

// ProposalStore implements the proposal state machine on top of the
// proposal bucket. It does not execute instructions, this is left to the
// caller once the quorum is reached.
type ProposalStore struct {
	proposals ProposalBucket
	registry  *Registry
	resolver  *Resolver
}

// NewProposalStore returns a store that uses given registry to look up
// accounts.
func NewProposalStore(registry *Registry, resolver *Resolver) *ProposalStore {
	return &ProposalStore{
		proposals: NewProposalBucket(),
		registry:  registry,
		resolver:  resolver,
	}
}

// Proposals returns the underlying bucket.
func (s *ProposalStore) Proposals() ProposalBucket {
	return s.proposals
}

// Propose creates a new proposal of the account. The proposer is recorded as
// the first approver. A zero ttl means the account transaction TTL is used.
//
// A pending proposal with the same instructions cannot be created twice. An
// expired one is evicted and a settled one is replaced.
func (s *ProposalStore) Propose(
	db quorum.KVStore,
	now quorum.UnixTime,
	account, proposer quorum.Address,
	instructions []Instruction,
	ttl time.Duration,
) (*Proposal, ApprovalResult, error) {
	acc, err := s.registry.Accounts().GetAccount(db, account)
	if err != nil {
		return nil, ApprovalResult{}, err
	}
	hash, err := InstructionsHash(instructions)
	if err != nil {
		return nil, ApprovalResult{}, err
	}
	if err := s.ensureApprover(db, account, proposer); err != nil {
		return nil, ApprovalResult{}, err
	}

	switch prev, err := s.proposals.GetProposal(db, account, hash); {
	case errors.ErrNotFound.Is(err):
	case err != nil:
		return nil, ApprovalResult{}, err
	case prev.IsExpired(now):
		if err := s.proposals.Delete(db, prev.Key()); err != nil {
			return nil, ApprovalResult{}, errors.Wrap(err, "cannot evict expired proposal")
		}
	case !prev.Status.IsTerminal():
		return nil, ApprovalResult{}, errors.Wrapf(ErrDuplicateProposal, "%s", FormatHash(hash))
	}

	if ttl == 0 {
		ttl = acc.TransactionTTL
	}
	if ttl = ttl.Truncate(time.Second); ttl < time.Second {
		return nil, ApprovalResult{}, errors.Wrap(errors.ErrInput, "ttl must be at least one second")
	}

	p := &Proposal{
		Account:          account,
		InstructionsHash: hash,
		Proposer:         proposer,
		Instructions:     instructions,
		ProposedAt:       now,
		ExpiresAt:        now.Add(ttl),
		Approvals:        []Approval{{Approver: proposer, ApprovedAt: now}},
		Status:           ProposalPending,
	}
	res, err := s.evaluate(db, now, p)
	if err != nil {
		return nil, ApprovalResult{}, err
	}
	if err := s.proposals.Put(db, p.Key(), p); err != nil {
		return nil, ApprovalResult{}, errors.Wrap(err, "cannot store proposal")
	}
	return p, res, nil
}

// Approve adds an approval to a pending proposal.
//
// Accessing an expired proposal evicts it and ErrExpired is returned. The
// caller must persist that change even though an error is returned.
func (s *ProposalStore) Approve(
	db quorum.KVStore,
	now quorum.UnixTime,
	account quorum.Address,
	hash []byte,
	approver quorum.Address,
) (*Proposal, ApprovalResult, error) {
	p, err := s.loadPending(db, now, account, hash)
	if err != nil {
		return nil, ApprovalResult{}, err
	}
	if p.Status != ProposalPending {
		return nil, ApprovalResult{}, errors.Wrapf(errors.ErrState, "proposal is %s", p.Status)
	}
	if p.HasApproved(approver) {
		return nil, ApprovalResult{}, errors.Wrapf(ErrAlreadyApproved, "%s", approver)
	}
	if err := s.ensureApprover(db, account, approver); err != nil {
		return nil, ApprovalResult{}, err
	}

	p.Approvals = append(p.Approvals, Approval{Approver: approver, ApprovedAt: now})
	res, err := s.evaluate(db, now, p)
	if err != nil {
		return nil, ApprovalResult{}, err
	}
	if err := s.proposals.Put(db, p.Key(), p); err != nil {
		return nil, ApprovalResult{}, errors.Wrap(err, "cannot store proposal")
	}
	return p, res, nil
}

// Reevaluate computes the quorum of an open proposal again without adding an
// approval. It is used to retry the execution after the ledger refused it.
//
// A stored proposal with the quorum reached was handed to the ledger but its
// outcome was never recorded. It is refused, because it might have been
// executed already.
func (s *ProposalStore) Reevaluate(
	db quorum.KVStore,
	now quorum.UnixTime,
	account quorum.Address,
	hash []byte,
	caller quorum.Address,
) (*Proposal, ApprovalResult, error) {
	p, err := s.loadPending(db, now, account, hash)
	if err != nil {
		return nil, ApprovalResult{}, err
	}
	if p.Status == ProposalQuorumReached {
		return nil, ApprovalResult{}, errors.Wrapf(errors.ErrState, "outcome of attempt %d is unknown, settle the proposal manually", p.Attempts+1)
	}
	if err := s.ensureMember(db, account, caller); err != nil {
		return nil, ApprovalResult{}, err
	}
	res, err := s.evaluate(db, now, p)
	if err != nil {
		return nil, ApprovalResult{}, err
	}
	if err := s.proposals.Put(db, p.Key(), p); err != nil {
		return nil, ApprovalResult{}, errors.Wrap(err, "cannot store proposal")
	}
	return p, res, nil
}

// Settle records the outcome of the execution of a proposal that reached
// its quorum. A nil outcome marks the proposal as executed. When the ledger
// refused the execution because of a missing permission, or the caller went
// away before the ledger finished, the proposal goes back to pending with all
// approvals intact. Any other outcome fails the proposal.
func (s *ProposalStore) Settle(db quorum.KVStore, now quorum.UnixTime, p *Proposal, outcome error) error {
	if p.Status != ProposalQuorumReached {
		return errors.Wrapf(errors.ErrState, "cannot settle %s proposal", p.Status)
	}
	p.Attempts++
	switch {
	case outcome == nil:
		p.Status = ProposalExecuted
		p.SettledAt = now
		p.LastError = ""
	case ErrPermissionDenied.Is(outcome), IsInterrupted(outcome):
		p.Status = ProposalPending
		p.LastError = outcome.Error()
	default:
		p.Status = ProposalFailed
		p.SettledAt = now
		p.LastError = outcome.Error()
	}
	if err := s.proposals.Put(db, p.Key(), p); err != nil {
		return errors.Wrap(err, "cannot store proposal")
	}
	return nil
}

// IsInterrupted returns true if the error only tells that the context of the
// caller was cancelled or timed out.
func IsInterrupted(err error) bool {
	switch errors.Cause(err) {
	case context.Canceled, context.DeadlineExceeded:
		return true
	}
	return false
}

// loadPending returns a proposal that is neither settled nor expired. An
// expired proposal is evicted.
func (s *ProposalStore) loadPending(db quorum.KVStore, now quorum.UnixTime, account quorum.Address, hash []byte) (*Proposal, error) {
	p, err := s.proposals.GetProposal(db, account, hash)
	if err != nil {
		return nil, err
	}
	if p.IsExpired(now) {
		if err := s.proposals.Delete(db, p.Key()); err != nil {
			return nil, errors.Wrap(err, "cannot evict expired proposal")
		}
		return nil, errors.Wrapf(errors.ErrExpired, "proposal %s expired at %s", FormatHash(hash), p.ExpiresAt)
	}
	if p.Status.IsTerminal() {
		return nil, errors.Wrapf(errors.ErrState, "proposal is %s", p.Status)
	}
	return p, nil
}

func (s *ProposalStore) ensureMember(db quorum.ReadOnlyKVStore, account, addr quorum.Address) error {
	ok, err := s.resolver.IsMember(db, account, addr)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(ErrNotASignatory, "%s of %s", addr, account)
	}
	return nil
}

// ensureApprover allows only members that are not accounts themselves. An
// account approves through its own signatories.
func (s *ProposalStore) ensureApprover(db quorum.ReadOnlyKVStore, account, addr quorum.Address) error {
	if err := s.ensureMember(db, account, addr); err != nil {
		return err
	}
	nested, err := s.registry.Accounts().Has(db, addr)
	if err != nil {
		return err
	}
	if nested {
		return errors.Wrapf(ErrNotASignatory, "%s is a multisig account", addr)
	}
	return nil
}

// evaluate updates the weight, latched accounts and status of an open
// proposal.
func (s *ProposalStore) evaluate(db quorum.ReadOnlyKVStore, now quorum.UnixTime, p *Proposal) (ApprovalResult, error) {
	tally, err := s.resolver.Tally(db, p, now)
	if err != nil {
		return ApprovalResult{}, err
	}
	for _, a := range tally.Satisfied() {
		if !p.IsLatched(a) {
			p.Latched = append(p.Latched, a)
		}
	}
	if w := tally.Weight(); w > p.Weight {
		p.Weight = w
	}
	res := ApprovalResult{
		Status: StillPending,
		Weight: p.Weight,
		Quorum: tally.Quorum(),
	}
	if p.Weight >= uint64(res.Quorum) {
		res.Status = QuorumReached
		p.Status = ProposalQuorumReached
	}
	return res, nil
}

// ProposalRef identifies a single proposal.
type ProposalRef struct {
	Account quorum.Address
	Hash    []byte
}

// SweepCandidates returns references to all proposals that are expired or
// were settled at least retention ago.
func (s *ProposalStore) SweepCandidates(db quorum.ReadOnlyKVStore, now quorum.UnixTime, retention time.Duration) ([]ProposalRef, error) {
	it, err := s.proposals.Range(db, nil, nil, false)
	if err != nil {
		return nil, err
	}
	defer it.Release()

	var refs []ProposalRef
	for {
		var p Proposal
		switch _, err := it.LoadNext(&p); {
		case errors.ErrIteratorDone.Is(err):
			return refs, nil
		case err != nil:
			return nil, err
		}
		if isStale(&p, now, retention) {
			refs = append(refs, ProposalRef{Account: p.Account, Hash: p.InstructionsHash})
		}
	}
}

// Evict removes the referenced proposal if it is still stale. It returns the
// removed proposal or nil if nothing was removed.
func (s *ProposalStore) Evict(db quorum.KVStore, now quorum.UnixTime, retention time.Duration, ref ProposalRef) (*Proposal, error) {
	p, err := s.proposals.GetProposal(db, ref.Account, ref.Hash)
	switch {
	case errors.ErrNotFound.Is(err):
		return nil, nil
	case err != nil:
		return nil, err
	}
	if !isStale(p, now, retention) {
		return nil, nil
	}
	if err := s.proposals.Delete(db, p.Key()); err != nil {
		return nil, err
	}
	return p, nil
}

// Sweep evicts all stale proposals and returns how many were removed.
func (s *ProposalStore) Sweep(db quorum.KVStore, now quorum.UnixTime, retention time.Duration) (int, error) {
	refs, err := s.SweepCandidates(db, now, retention)
	if err != nil {
		return 0, err
	}
	var n int
	for _, ref := range refs {
		p, err := s.Evict(db, now, retention, ref)
		if err != nil {
			return n, err
		}
		if p != nil {
			n++
		}
	}
	return n, nil
}

func isStale(p *Proposal, now quorum.UnixTime, retention time.Duration) bool {
	if p.IsExpired(now) {
		return true
	}
	return p.Status.IsTerminal() && quorum.IsExpired(p.SettledAt.Add(retention), now)
}
