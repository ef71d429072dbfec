package multisig

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/orm"
	"github.com/minio/sha256-simd"
)

const (
	// Maximum value a weight value can be set to. Weight is stored as
	// uint32 and we must manually force the uint8 limit.
	maxWeightValue = 255

	// Maximum value a quorum can be set to.
	maxQuorumValue = 65535

	// Maximum number of signatories a single account can declare.
	maxSignatoriesAllowed = 100

	// DefaultTransactionTTL is used for accounts that do not declare
	// their own proposal lifetime.
	DefaultTransactionTTL = time.Hour
)

// Weight represents the strength of a signatory approval.
type Weight uint32

// Validate returns an error if this is not a valid weight value.
func (w Weight) Validate() error {
	if w < 1 {
		return errors.Wrap(errors.ErrState,
			"weight must be greater than 0")
	}
	if w > maxWeightValue {
		return errors.Wrapf(errors.ErrOverflow,
			"weight is %d and must not be greater than %d", w, maxWeightValue)
	}
	return nil
}

// Signatory is an address entitled to approve proposals of an account.
type Signatory struct {
	Address quorum.Address `json:"address"`
	Weight  Weight         `json:"weight"`
}

// Account is a weighted signatory set. Once registered it is immutable.
type Account struct {
	Address     quorum.Address `json:"address"`
	Signatories []Signatory    `json:"signatories"`
	Quorum      uint32         `json:"quorum"`
	// TransactionTTL is the default lifetime of a proposal, in whole
	// seconds.
	TransactionTTL time.Duration   `json:"transaction_ttl"`
	RegisteredAt   quorum.UnixTime `json:"registered_at"`
}

var _ orm.Model = (*Account)(nil)

// Validate checks the account invariants. Cycles that go through other
// accounts can only be detected by the Registry.
func (a *Account) Validate() error {
	if err := a.Address.Validate(); err != nil {
		return errors.Wrap(err, "address")
	}
	switch n := len(a.Signatories); {
	case n == 0:
		return errors.Wrap(errors.ErrModel, "no signatories")
	case n > maxSignatoriesAllowed:
		return errors.Wrapf(errors.ErrModel, "too many signatories: %d", n)
	}
	seen := make(map[string]struct{}, len(a.Signatories))
	for i, s := range a.Signatories {
		if err := s.Address.Validate(); err != nil {
			return errors.Wrapf(err, "signatory #%d address", i)
		}
		if err := s.Weight.Validate(); err != nil {
			return errors.Wrapf(err, "signatory #%d weight", i)
		}
		if s.Address.Equals(a.Address) {
			return errors.Wrapf(ErrCyclicSignatoryGraph, "%s is its own signatory", a.Address)
		}
		if _, ok := seen[string(s.Address)]; ok {
			return errors.Wrapf(ErrDuplicateSignatory, "%s", s.Address)
		}
		seen[string(s.Address)] = struct{}{}
	}
	if err := validateQuorum(a.Quorum, a.TotalWeight()); err != nil {
		return err
	}
	if a.TransactionTTL < time.Second {
		return errors.Wrap(errors.ErrInput, "transaction ttl must be at least one second")
	}
	return nil
}

func validateQuorum(q uint32, total uint64) error {
	if q == 0 {
		return errors.Wrap(ErrInvalidQuorum, "quorum must be greater than 0")
	}
	if q > maxQuorumValue {
		return errors.Wrapf(ErrInvalidQuorum, "quorum %d must not be greater than %d", q, maxQuorumValue)
	}
	if uint64(q) > total {
		return errors.Wrapf(ErrInvalidQuorum, "quorum %d is greater than the total weight %d", q, total)
	}
	return nil
}

// TotalWeight returns the sum of weights of all signatories.
func (a *Account) TotalWeight() uint64 {
	var total uint64
	for _, s := range a.Signatories {
		total += uint64(s.Weight)
	}
	return total
}

// WeightOf returns the weight of a direct signatory.
func (a *Account) WeightOf(addr quorum.Address) (Weight, error) {
	for _, s := range a.Signatories {
		if s.Address.Equals(addr) {
			return s.Weight, nil
		}
	}
	return 0, errors.Wrapf(ErrNotASignatory, "%s of %s", addr, a.Address)
}

// Instruction is an opaque payload executed by the ledger. It is usually
// a JSON document.
type Instruction []byte

// MarshalJSON embeds the instruction as is when it is a valid JSON document
// and as a hex string otherwise.
func (i Instruction) MarshalJSON() ([]byte, error) {
	if len(i) != 0 && json.Valid(i) {
		return []byte(i), nil
	}
	return json.Marshal(strings.ToUpper(hex.EncodeToString(i)))
}

// UnmarshalJSON stores any JSON value in its compact form.
func (i *Instruction) UnmarshalJSON(raw []byte) error {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	*i = buf.Bytes()
	return nil
}

// instructionSet is the wire form of the ordered instructions that is
// hashed.
type instructionSet struct {
	Instructions [][]byte
}

// InstructionsHash returns the content hash of an ordered sequence of
// instructions. The same instructions in a different order produce a
// different hash.
func InstructionsHash(instructions []Instruction) ([]byte, error) {
	if len(instructions) == 0 {
		return nil, errors.Wrap(errors.ErrEmpty, "instructions")
	}
	set := instructionSet{Instructions: make([][]byte, len(instructions))}
	for i, ins := range instructions {
		if len(ins) == 0 {
			return nil, errors.Wrapf(errors.ErrEmpty, "instruction #%d", i)
		}
		set.Instructions[i] = ins
	}
	raw, err := orm.Marshal(&set)
	if err != nil {
		return nil, err
	}
	h := sha256.Sum256(raw)
	return h[:], nil
}

// FormatHash returns the upper case hex form of an instructions hash.
func FormatHash(hash []byte) string {
	return strings.ToUpper(hex.EncodeToString(hash))
}

// ParseHash parses the hex form of an instructions hash.
func ParseHash(s string) ([]byte, error) {
	hash, err := hex.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "hash: %s", err)
	}
	if len(hash) != sha256.Size {
		return nil, errors.Wrapf(errors.ErrInput, "hash must be %d bytes", sha256.Size)
	}
	return hash, nil
}

// ProposalStatus is the state of a proposal.
type ProposalStatus int32

const (
	ProposalPending ProposalStatus = iota + 1
	ProposalQuorumReached
	ProposalExecuted
	ProposalExpired
	ProposalFailed
)

var proposalStatusNames = map[ProposalStatus]string{
	ProposalPending:       "Pending",
	ProposalQuorumReached: "QuorumReached",
	ProposalExecuted:      "Executed",
	ProposalExpired:       "Expired",
	ProposalFailed:        "Failed",
}

func (s ProposalStatus) String() string {
	if name, ok := proposalStatusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// MarshalJSON uses the status name.
func (s ProposalStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Validate returns an error if the status is not known.
func (s ProposalStatus) Validate() error {
	if _, ok := proposalStatusNames[s]; !ok {
		return errors.Wrapf(errors.ErrState, "invalid status %d", s)
	}
	return nil
}

// IsTerminal returns true for states that are final.
func (s ProposalStatus) IsTerminal() bool {
	return s == ProposalExecuted || s == ProposalExpired || s == ProposalFailed
}

// Approval records who approved a proposal and when.
type Approval struct {
	Approver   quorum.Address  `json:"approver"`
	ApprovedAt quorum.UnixTime `json:"approved_at"`
}

// Proposal is a set of instructions waiting for enough approvals. It is
// keyed by the account and the instructions hash.
type Proposal struct {
	Account          quorum.Address  `json:"account"`
	InstructionsHash []byte          `json:"instructions_hash"`
	Proposer         quorum.Address  `json:"proposer"`
	Instructions     []Instruction   `json:"instructions"`
	ProposedAt       quorum.UnixTime `json:"proposed_at"`
	ExpiresAt        quorum.UnixTime `json:"expires_at"`
	Approvals        []Approval      `json:"approvals"`
	// Latched lists nested accounts whose own quorum was met for this
	// proposal. They keep contributing their weight.
	Latched []quorum.Address `json:"latched,omitempty"`
	// Weight is the weight collected by the root account.
	Weight    uint64          `json:"weight"`
	Status    ProposalStatus  `json:"status"`
	Attempts  uint32          `json:"attempts,omitempty"`
	LastError string          `json:"last_error,omitempty"`
	SettledAt quorum.UnixTime `json:"settled_at,omitempty"`
}

var _ orm.Model = (*Proposal)(nil)

// Validate checks the proposal invariants.
func (p *Proposal) Validate() error {
	if err := p.Account.Validate(); err != nil {
		return errors.Wrap(err, "account")
	}
	if err := p.Proposer.Validate(); err != nil {
		return errors.Wrap(err, "proposer")
	}
	if len(p.InstructionsHash) != sha256.Size {
		return errors.Wrap(errors.ErrModel, "invalid instructions hash")
	}
	if len(p.Instructions) == 0 {
		return errors.Wrap(errors.ErrEmpty, "instructions")
	}
	if err := p.ProposedAt.Validate(); err != nil {
		return errors.Wrap(err, "proposed at")
	}
	if p.ExpiresAt <= p.ProposedAt {
		return errors.Wrap(errors.ErrModel, "proposal must expire after it was proposed")
	}
	if len(p.Approvals) == 0 {
		return errors.Wrap(errors.ErrModel, "no approvals")
	}
	seen := make(map[string]struct{}, len(p.Approvals))
	for i, a := range p.Approvals {
		if err := a.Approver.Validate(); err != nil {
			return errors.Wrapf(err, "approval #%d", i)
		}
		if _, ok := seen[string(a.Approver)]; ok {
			return errors.Wrapf(ErrAlreadyApproved, "approval #%d", i)
		}
		seen[string(a.Approver)] = struct{}{}
	}
	return p.Status.Validate()
}

// Key returns the primary key of the proposal.
func (p *Proposal) Key() []byte {
	return proposalKey(p.Account, p.InstructionsHash)
}

// HasApproved returns true if given address approved this proposal.
func (p *Proposal) HasApproved(addr quorum.Address) bool {
	_, ok := p.approvalOf(addr)
	return ok
}

func (p *Proposal) approvalOf(addr quorum.Address) (Approval, bool) {
	for _, a := range p.Approvals {
		if a.Approver.Equals(addr) {
			return a, true
		}
	}
	return Approval{}, false
}

// IsLatched returns true if the nested account quorum was already met for
// this proposal.
func (p *Proposal) IsLatched(addr quorum.Address) bool {
	for _, a := range p.Latched {
		if a.Equals(addr) {
			return true
		}
	}
	return false
}

// IsExpired returns true if the proposal is still open but its lifetime has
// elapsed.
func (p *Proposal) IsExpired(now quorum.UnixTime) bool {
	return !p.Status.IsTerminal() && quorum.IsExpired(p.ExpiresAt, now)
}

// ExpiresIn returns the lifetime left, rounded down to seconds.
func (p *Proposal) ExpiresIn(now quorum.UnixTime) time.Duration {
	if p.ExpiresAt <= now {
		return 0
	}
	return p.ExpiresAt.Sub(now)
}
