package multisig

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/orm"
)

// Ledger executes instructions on behalf of multisig accounts. It is the
// only collaborator of the Engine that can block.
type Ledger interface {
	// Execute runs the instructions as the account. ErrPermissionDenied
	// must be returned if the account is not allowed to execute them.
	Execute(ctx context.Context, account quorum.Address, instructions []Instruction) error

	// Permissions returns what given address is allowed to do.
	Permissions(ctx context.Context, addr quorum.Address) (Permissions, error)

	// Now returns the current ledger time.
	Now() time.Time
}

// Permissions declares which multisig operations an address may perform.
type Permissions struct {
	CanRegisterMultisig bool `json:"can_register_multisig"`
	CanProposeMultisig  bool `json:"can_propose_multisig"`
	CanExecute          bool `json:"can_execute"`
}

// AllPermissions grants everything.
var AllPermissions = Permissions{
	CanRegisterMultisig: true,
	CanProposeMultisig:  true,
	CanExecute:          true,
}

const (
	// GrantBucketName is where the local ledger stores permissions
	GrantBucketName = "msigperm"
	// JournalBucketName is where the local ledger stores executed
	// instructions
	JournalBucketName = "msigexec"
)

// Grant assigns permissions to an address.
type Grant struct {
	Address     quorum.Address `json:"address"`
	Permissions Permissions    `json:"permissions"`
}

var _ orm.Model = (*Grant)(nil)

// Validate returns an error if the grant is not valid.
func (g *Grant) Validate() error {
	return errors.Wrap(g.Address.Validate(), "address")
}

// JournalEntry records a single execution.
type JournalEntry struct {
	Account          quorum.Address  `json:"account"`
	InstructionsHash []byte          `json:"instructions_hash"`
	Instructions     []Instruction   `json:"instructions"`
	ExecutedAt       quorum.UnixTime `json:"executed_at"`
}

var _ orm.Model = (*JournalEntry)(nil)

// Validate returns an error if the entry is not valid.
func (e *JournalEntry) Validate() error {
	if err := e.Account.Validate(); err != nil {
		return errors.Wrap(err, "account")
	}
	if len(e.Instructions) == 0 {
		return errors.Wrap(errors.ErrEmpty, "instructions")
	}
	return e.ExecutedAt.Validate()
}

// Denier can refuse an execution. Returning ErrPermissionDenied sends the
// proposal back to pending, any other error fails it.
type Denier func(account quorum.Address, instructions []Instruction) error

// LocalLedger is a Ledger that keeps its state in a KVStore. Permissions are
// stored as grants and every execution is appended to a journal.
type LocalLedger struct {
	db       quorum.CacheableKVStore
	clock    clock.Clock
	defaults Permissions
	grants   orm.ModelBucket
	journal  orm.ModelBucket
	seq      orm.Sequence

	mu     sync.Mutex
	denier Denier
}

var _ Ledger = (*LocalLedger)(nil)

// NewLocalLedger returns a ledger that grants given default permissions to
// any address without an explicit grant.
func NewLocalLedger(db quorum.CacheableKVStore, c clock.Clock, defaults Permissions) *LocalLedger {
	if c == nil {
		c = clock.New()
	}
	return &LocalLedger{
		db:       db,
		clock:    c,
		defaults: defaults,
		grants:   NewGrantBucket(),
		journal:  orm.NewModelBucket(JournalBucketName, &JournalEntry{}),
		seq:      orm.NewSequence(JournalBucketName, "id"),
	}
}

// NewGrantBucket returns the bucket used by the local ledger to store
// permissions.
func NewGrantBucket() orm.ModelBucket {
	return orm.NewModelBucket(GrantBucketName, &Grant{})
}

// Now returns the clock time.
func (l *LocalLedger) Now() time.Time {
	return l.clock.Now()
}

// SetDenier installs a hook consulted before every execution. Passing nil
// removes it.
func (l *LocalLedger) SetDenier(d Denier) {
	l.mu.Lock()
	l.denier = d
	l.mu.Unlock()
}

// Grant stores permissions of an address, replacing previous ones.
func (l *LocalLedger) Grant(addr quorum.Address, p Permissions) error {
	return l.grants.Put(l.db, addr, &Grant{Address: addr, Permissions: p})
}

// Permissions returns the granted permissions or the defaults.
func (l *LocalLedger) Permissions(ctx context.Context, addr quorum.Address) (Permissions, error) {
	if err := ctx.Err(); err != nil {
		return Permissions{}, err
	}
	var g Grant
	switch err := l.grants.One(l.db, addr, &g); {
	case errors.ErrNotFound.Is(err):
		return l.defaults, nil
	case err != nil:
		return Permissions{}, err
	}
	return g.Permissions, nil
}

// Execute journals the instructions if the account may execute them.
func (l *LocalLedger) Execute(ctx context.Context, account quorum.Address, instructions []Instruction) error {
	perms, err := l.Permissions(ctx, account)
	if err != nil {
		return err
	}
	if !perms.CanExecute {
		return errors.Wrapf(ErrPermissionDenied, "%s cannot execute", account)
	}
	l.mu.Lock()
	deny := l.denier
	l.mu.Unlock()
	if deny != nil {
		if err := deny(account, instructions); err != nil {
			return err
		}
	}

	hash, err := InstructionsHash(instructions)
	if err != nil {
		return err
	}
	// the sequence is read and incremented in a cache, executions must not
	// interleave
	l.mu.Lock()
	defer l.mu.Unlock()

	cache := l.db.CacheWrap()
	key, err := l.seq.NextVal(cache)
	if err != nil {
		cache.Discard()
		return err
	}
	entry := JournalEntry{
		Account:          account,
		InstructionsHash: hash,
		Instructions:     instructions,
		ExecutedAt:       quorum.AsUnixTime(l.clock.Now()),
	}
	if err := l.journal.Put(cache, key, &entry); err != nil {
		cache.Discard()
		return errors.Wrap(err, "cannot journal execution")
	}
	return cache.Write()
}

// Journal returns all executions in the order they happened.
func (l *LocalLedger) Journal() ([]JournalEntry, error) {
	it, err := l.journal.Range(l.db, nil, nil, false)
	if err != nil {
		return nil, err
	}
	defer it.Release()

	var entries []JournalEntry
	for {
		var e JournalEntry
		switch _, err := it.LoadNext(&e); {
		case errors.ErrIteratorDone.Is(err):
			return entries, nil
		case err != nil:
			return nil, err
		}
		entries = append(entries, e)
	}
}
