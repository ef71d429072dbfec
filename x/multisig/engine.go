package multisig

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/iov-one/quorum"
	"github.com/iov-one/quorum/errors"
	"github.com/iov-one/quorum/store"
	"github.com/puzpuzpuz/xsync/v2"
	"github.com/tendermint/tendermint/libs/log"
)

// Engine runs the multisig workflow against a shared store. All methods are
// safe for concurrent use.
//
// Every operation works on a cache wrap of the store that is written only if
// the operation succeeds. Operations on the same proposal are serialized,
// operations on different proposals run in parallel.
type Engine struct {
	db        *store.SyncStore
	ledger    Ledger
	conf      Config
	registry  *Registry
	resolver  *Resolver
	proposals *ProposalStore
	logger    log.Logger
	clock     clock.Clock

	// locks holds a mutex for every proposal key
	locks *xsync.MapOf[string, *sync.Mutex]
	// regMu serializes registrations, cycle detection must see all
	// accounts
	regMu sync.Mutex
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the logger, by default nothing is logged.
func WithLogger(l log.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithClock sets the clock driving the sweeper.
func WithClock(c clock.Clock) EngineOption {
	return func(e *Engine) {
		e.clock = c
	}
}

// NewEngine returns an engine that keeps its state in given store. If the
// store is not a store.SyncStore already, it is wrapped in one. Any other
// user of the same data, like a LocalLedger, must use the store returned by
// Store.
func NewEngine(db quorum.CacheableKVStore, ledger Ledger, conf Config, opts ...EngineOption) (*Engine, error) {
	if err := conf.Validate(); err != nil {
		return nil, errors.Wrap(err, "config")
	}
	ss, ok := db.(*store.SyncStore)
	if !ok {
		ss = store.NewSyncStore(db)
	}
	registry := NewRegistry(conf.MaxDepth, conf.DefaultTTL)
	resolver := NewResolver(registry.Accounts(), conf.SubQuorumExpiry, conf.MaxDepth)
	e := &Engine{
		db:        ss,
		ledger:    ledger,
		conf:      conf,
		registry:  registry,
		resolver:  resolver,
		proposals: NewProposalStore(registry, resolver),
		logger:    log.NewNopLogger(),
		clock:     clock.New(),
		locks:     xsync.NewMapOf[*sync.Mutex](),
	}
	for _, fn := range opts {
		fn(e)
	}
	e.logger = e.logger.With("module", "multisig")
	return e, nil
}

// Store returns the store used by the engine.
func (e *Engine) Store() *store.SyncStore {
	return e.db
}

// Config returns the configuration the engine was created with.
func (e *Engine) Config() Config {
	return e.conf
}

// Registry returns the account registry.
func (e *Engine) Registry() *Registry {
	return e.registry
}

func (e *Engine) now() quorum.UnixTime {
	return quorum.AsUnixTime(e.ledger.Now())
}

// lock acquires the mutex of a single proposal and returns the function
// releasing it.
func (e *Engine) lock(account quorum.Address, hash []byte) func() {
	mu, _ := e.locks.LoadOrStore(string(proposalKey(account, hash)), &sync.Mutex{})
	mu.Lock()
	return mu.Unlock
}

// Register stores a new account. The registrant must be allowed to register
// multisig accounts by the ledger.
func (e *Engine) Register(ctx context.Context, registrant quorum.Address, acc *Account) (*Account, error) {
	perms, err := e.ledger.Permissions(ctx, registrant)
	if err != nil {
		return nil, errors.Wrap(err, "permissions")
	}
	if !perms.CanRegisterMultisig {
		return nil, errors.Wrapf(ErrUnauthorizedRegistrant, "%s", registrant)
	}

	e.regMu.Lock()
	defer e.regMu.Unlock()

	cache := e.db.CacheWrap()
	registered, err := e.registry.Register(cache, e.now(), acc)
	if err != nil {
		cache.Discard()
		return nil, err
	}
	if err := cache.Write(); err != nil {
		return nil, err
	}
	e.logger.Info("account registered",
		"account", registered.Address,
		"registrant", registrant,
		"signatories", len(registered.Signatories),
		"quorum", registered.Quorum)
	return registered, nil
}

// Propose creates a new proposal and returns its instructions hash. The
// proposer must be allowed to propose by the ledger. If the proposer alone
// reaches the quorum, the instructions are executed right away.
func (e *Engine) Propose(
	ctx context.Context,
	account, proposer quorum.Address,
	instructions []Instruction,
	ttl time.Duration,
) ([]byte, ApprovalResult, error) {
	perms, err := e.ledger.Permissions(ctx, proposer)
	if err != nil {
		return nil, ApprovalResult{}, errors.Wrap(err, "permissions")
	}
	if !perms.CanProposeMultisig {
		return nil, ApprovalResult{}, errors.Wrapf(errors.ErrUnauthorized, "%s cannot propose", proposer)
	}
	hash, err := InstructionsHash(instructions)
	if err != nil {
		return nil, ApprovalResult{}, err
	}

	unlock := e.lock(account, hash)
	defer unlock()

	cache := e.db.CacheWrap()
	p, res, err := e.proposals.Propose(cache, e.now(), account, proposer, instructions, ttl)
	if err != nil {
		cache.Discard()
		return nil, ApprovalResult{}, err
	}
	if err := cache.Write(); err != nil {
		return nil, ApprovalResult{}, err
	}
	proposalEvents.WithLabelValues(eventProposed).Inc()
	e.logger.Info("proposal created",
		"account", account,
		"hash", FormatHash(hash),
		"proposer", proposer,
		"expires_at", p.ExpiresAt,
		"result", res)

	if res.Status == QuorumReached {
		res, err = e.execute(ctx, p, res)
	}
	return hash, res, err
}

// Approve adds an approval to a pending proposal. If the quorum is reached,
// the instructions are executed.
func (e *Engine) Approve(ctx context.Context, account quorum.Address, hash []byte, approver quorum.Address) (ApprovalResult, error) {
	unlock := e.lock(account, hash)
	defer unlock()

	cache := e.db.CacheWrap()
	p, res, err := e.proposals.Approve(cache, e.now(), account, hash, approver)
	if err != nil {
		e.persistEviction(cache, err, account, hash)
		return ApprovalResult{}, err
	}
	if err := cache.Write(); err != nil {
		return ApprovalResult{}, err
	}
	proposalEvents.WithLabelValues(eventApproved).Inc()
	e.logger.Debug("proposal approved",
		"account", account,
		"hash", FormatHash(hash),
		"approver", approver,
		"result", res)

	if res.Status == QuorumReached {
		return e.execute(ctx, p, res)
	}
	return res, nil
}

// Retry evaluates the quorum of a pending proposal again and executes it if
// the quorum is met. It is used after the ledger refused a previous
// execution.
func (e *Engine) Retry(ctx context.Context, account quorum.Address, hash []byte, caller quorum.Address) (ApprovalResult, error) {
	unlock := e.lock(account, hash)
	defer unlock()

	cache := e.db.CacheWrap()
	p, res, err := e.proposals.Reevaluate(cache, e.now(), account, hash, caller)
	if err != nil {
		e.persistEviction(cache, err, account, hash)
		return ApprovalResult{}, err
	}
	if err := cache.Write(); err != nil {
		return ApprovalResult{}, err
	}
	if res.Status == QuorumReached {
		return e.execute(ctx, p, res)
	}
	return res, nil
}

// persistEviction writes the cache if the operation failed because the
// proposal expired, so that the eviction is not lost. Otherwise the cache is
// discarded.
func (e *Engine) persistEviction(cache quorum.KVCacheWrap, err error, account quorum.Address, hash []byte) {
	if !errors.ErrExpired.Is(err) {
		cache.Discard()
		return
	}
	if werr := cache.Write(); werr != nil {
		e.logger.Error("cannot evict expired proposal",
			"account", account,
			"hash", FormatHash(hash),
			"err", werr)
		return
	}
	proposalEvents.WithLabelValues(eventExpired).Inc()
	e.logger.Info("expired proposal evicted",
		"account", account,
		"hash", FormatHash(hash))
}

// execute hands the instructions to the ledger and records the outcome. The
// proposal lock must be held. The store is not locked while the ledger runs.
func (e *Engine) execute(ctx context.Context, p *Proposal, res ApprovalResult) (ApprovalResult, error) {
	outcome := ctx.Err()
	if outcome == nil {
		start := time.Now()
		outcome = e.ledger.Execute(ctx, p.Account, p.Instructions)
		executionDuration.Observe(time.Since(start).Seconds())
	}

	cache := e.db.CacheWrap()
	err := e.proposals.Settle(cache, e.now(), p, outcome)
	if err == nil {
		err = cache.Write()
	} else {
		cache.Discard()
	}
	if err != nil {
		e.logger.Error("cannot store execution outcome, proposal must be settled manually",
			"account", p.Account,
			"hash", FormatHash(p.InstructionsHash),
			"outcome", outcome,
			"err", err)
		return res, err
	}

	hash := FormatHash(p.InstructionsHash)
	switch {
	case outcome == nil:
		proposalEvents.WithLabelValues(eventExecuted).Inc()
		e.logger.Info("proposal executed",
			"account", p.Account,
			"hash", hash,
			"weight", res.Weight)
		res.Executed = true
		return res, nil
	case ErrPermissionDenied.Is(outcome):
		proposalEvents.WithLabelValues(eventReverted).Inc()
		e.logger.Info("execution denied, proposal is pending again",
			"account", p.Account,
			"hash", hash,
			"err", outcome)
		res.Status = StillPending
		return res, nil
	case IsInterrupted(outcome):
		proposalEvents.WithLabelValues(eventReverted).Inc()
		e.logger.Info("execution interrupted, proposal is pending again",
			"account", p.Account,
			"hash", hash,
			"err", outcome)
		res.Status = StillPending
		return res, errors.Wrap(outcome, "execution interrupted")
	default:
		proposalEvents.WithLabelValues(eventFailed).Inc()
		e.logger.Error("execution failed",
			"account", p.Account,
			"hash", hash,
			"err", outcome)
		return res, errors.Wrapf(ErrExecution, "%s", outcome)
	}
}

// GetProposal returns a stored proposal.
func (e *Engine) GetProposal(ctx context.Context, account quorum.Address, hash []byte) (*Proposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.proposals.Proposals().GetProposal(e.db, account, hash)
}

// List returns a lazy iterator over proposals selected by the query.
func (e *Engine) List(ctx context.Context, q ListQuery) (*ProposalIterator, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.proposals.List(e.db, e.now(), q)
}

// Sweep evicts expired proposals and proposals settled longer than the
// configured retention. It returns the number of evicted proposals.
func (e *Engine) Sweep(ctx context.Context) (int, error) {
	now := e.now()
	refs, err := e.proposals.SweepCandidates(e.db, now, e.conf.TerminalRetention)
	if err != nil {
		return 0, err
	}
	var n int
	for _, ref := range refs {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		ok, err := e.evict(now, ref)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	if n > 0 {
		e.logger.Info("proposals swept", "evicted", n)
	}
	return n, nil
}

func (e *Engine) evict(now quorum.UnixTime, ref ProposalRef) (bool, error) {
	unlock := e.lock(ref.Account, ref.Hash)
	defer unlock()

	cache := e.db.CacheWrap()
	p, err := e.proposals.Evict(cache, now, e.conf.TerminalRetention, ref)
	if err != nil || p == nil {
		cache.Discard()
		return false, err
	}
	if err := cache.Write(); err != nil {
		return false, err
	}
	event := eventEvicted
	if !p.Status.IsTerminal() {
		event = eventExpired
	}
	proposalEvents.WithLabelValues(event).Inc()
	e.logger.Debug("proposal evicted",
		"account", p.Account,
		"hash", FormatHash(p.InstructionsHash),
		"status", p.Status)
	return true, nil
}
