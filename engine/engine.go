package engine

import (
	"context"
	"sync"
	"time"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/crypto"
	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/gateway"
	"github.com/quartzvault/quartz/signer"
)

// Engine orchestrates the proposal lifecycle of one quorum group: create,
// vote, cancel, execute. It owns the proposal store and the sealed
// registry, and talks to the ledger through the gateway. Signing backends
// are handed in per execution, the engine never keeps one.
//
// All operations are safe for concurrent use. Operations against the same
// proposal index are serialized by a per-proposal lock, operations against
// different indexes proceed independently.
type Engine struct {
	reg   *Registry
	props *ProposalStore
	gw    gateway.Gateway
	now   func() time.Time

	// strictReject moves a proposal to Rejected as soon as the
	// threshold became unreachable, instead of leaving it Active.
	strictReject bool

	// locks holds one mutex per proposal that saw activity. Only the
	// table itself is guarded globally, lock acquisition for distinct
	// indexes does not contend.
	lockTable sync.Mutex
	locks     map[uint64]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

// WithStrictRejection makes the engine reject a proposal once the
// approval threshold can mathematically no longer be reached by the
// remaining eligible voters. Without it a minority of rejections leaves
// the proposal Active until it is explicitly cancelled.
func WithStrictRejection() Option {
	return func(e *Engine) { e.strictReject = true }
}

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// New builds an engine for one sealed registry.
func New(reg *Registry, props *ProposalStore, gw gateway.Gateway, opts ...Option) (*Engine, error) {
	if err := reg.Validate(); err != nil {
		return nil, errors.Wrap(err, "registry")
	}
	if props == nil {
		return nil, errors.ErrEmpty.New("proposal store")
	}
	if gw == nil {
		return nil, errors.ErrEmpty.New("gateway")
	}
	e := &Engine{
		reg:   reg,
		props: props,
		gw:    gw,
		now:   time.Now,
		locks: make(map[uint64]*sync.Mutex),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Registry returns the sealed member set the engine enforces.
func (e *Engine) Registry() *Registry {
	return e.reg
}

// proposalLock returns the mutex serializing all state changes of one
// proposal index.
func (e *Engine) proposalLock(index uint64) *sync.Mutex {
	e.lockTable.Lock()
	defer e.lockTable.Unlock()

	l, ok := e.locks[index]
	if !ok {
		l = &sync.Mutex{}
		e.locks[index] = l
	}
	return l
}

// CreateProposal submits a candidate action. The creator must hold the
// propose capability. The new proposal starts Active with an empty vote
// set and the next monotonic index.
func (e *Engine) CreateProposal(ctx context.Context, creator quartz.Identity, payload []byte, timeLock quartz.UnixDuration) (*Proposal, error) {
	if !e.reg.HasPermission(creator, quartz.PermPropose) {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "%s cannot propose", creator)
	}
	if len(payload) == 0 {
		return nil, errors.ErrEmpty.New("payload")
	}
	if err := timeLock.Validate(); err != nil {
		return nil, errors.Wrap(err, "time lock")
	}

	p := &Proposal{
		Creator:   creator.Clone(),
		Payload:   payload,
		Status:    StatusActive,
		CreatedAt: quartz.AsUnixTime(e.now()),
		TimeLock:  timeLock,
	}
	if err := e.props.Create(p); err != nil {
		return nil, errors.Wrap(err, "create proposal")
	}
	return p, nil
}

// CastVote records the member's decision on an active proposal. The
// member must hold the approve capability, which governs both approving
// and rejecting. A repeated cast by the same member overwrites the
// earlier vote. Reaching the threshold of approvals transitions the
// proposal to Approved.
func (e *Engine) CastVote(ctx context.Context, index uint64, member quartz.Identity, decision VoteDecision) (*Proposal, error) {
	if err := decision.Validate(); err != nil {
		return nil, err
	}
	if !e.reg.HasPermission(member, quartz.PermApprove) {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "%s cannot vote", member)
	}

	lock := e.proposalLock(index)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.props.Get(index)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusActive {
		return nil, errors.Wrapf(errors.ErrState, "vote on %s", p)
	}

	p.putVote(Vote{Member: member.Clone(), Decision: decision})
	if err := p.tally(e.reg, e.strictReject); err != nil {
		return nil, err
	}
	if err := e.props.Update(p); err != nil {
		return nil, errors.Wrap(err, "update proposal")
	}
	return p, nil
}

// CancelProposal aborts a proposal that was not executed yet. Only the
// original creator may cancel, there is no administrative override.
func (e *Engine) CancelProposal(ctx context.Context, index uint64, member quartz.Identity) (*Proposal, error) {
	lock := e.proposalLock(index)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.props.Get(index)
	if err != nil {
		return nil, err
	}
	if !p.Creator.Equals(member) {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "%s is not the creator", member)
	}
	if err := p.cancel(); err != nil {
		return nil, err
	}
	if err := e.props.Update(p); err != nil {
		return nil, errors.Wrap(err, "update proposal")
	}
	return p, nil
}

// ExecuteProposal assembles, signs and submits the approved action. The
// executor must hold the execute capability, the proposal must be
// Approved and its time-lock elapsed, otherwise the signer is never
// invoked.
//
// The per-proposal lock is held across signing and submission, so at most
// one execution attempt per proposal is in flight and the Approved
// precondition is consumed atomically with the Executed transition. On a
// failed or unknown-outcome submission the proposal stays Approved and
// the produced signature is recorded, a retry first reconciles with the
// ledger before asking the backend to sign again.
func (e *Engine) ExecuteProposal(ctx context.Context, index uint64, executor quartz.Identity, backend signer.Backend) (*gateway.Confirmation, error) {
	if !e.reg.HasPermission(executor, quartz.PermExecute) {
		return nil, errors.Wrapf(errors.ErrUnauthorized, "%s cannot execute", executor)
	}

	lock := e.proposalLock(index)
	lock.Lock()
	defer lock.Unlock()

	p, err := e.props.Get(index)
	if err != nil {
		return nil, err
	}
	if p.Status != StatusApproved {
		return nil, errors.Wrapf(errors.ErrState, "execute on %s", p)
	}
	now := quartz.AsUnixTime(e.now())
	if now < p.ExecutableAt() {
		return nil, errors.Wrapf(errors.ErrState, "time-locked until %s", p.ExecutableAt())
	}

	// A previous attempt may have produced a signature whose fate is
	// unknown. Never sign again before asking the ledger about it.
	if p.LastAttempt != nil {
		conf, err := e.reconcile(ctx, p)
		if err != nil {
			return nil, err
		}
		if conf != nil {
			return conf, nil
		}
	}

	token, err := e.gw.FreshnessToken(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "freshness token")
	}
	tx := quartz.Transaction{
		Payload:   p.Payload,
		Freshness: token,
	}

	var stx quartz.SignedTransaction
	err = signer.WithSession(ctx, backend, func(pub crypto.PublicKey) error {
		signed, err := backend.Sign(ctx, tx)
		if err != nil {
			return err
		}
		stx = signed
		return nil
	})
	if err != nil {
		// No signature exists, the attempt can simply be repeated.
		return nil, errors.Wrapf(err, "sign proposal %d", p.Index)
	}

	// From here on a valid signature exists. Record it before handing
	// it to the ledger so a failure below never loses that fact.
	txHash, err := stx.Hash()
	if err != nil {
		return nil, errors.Wrap(err, "tx hash")
	}
	p.LastAttempt = &Attempt{TxHash: txHash, At: now}
	if err := e.props.Update(p); err != nil {
		return nil, errors.Wrap(err, "record attempt")
	}

	conf, err := e.gw.Submit(ctx, stx)
	if err != nil {
		// The proposal stays Approved. Transient failures may retry
		// this execution, permanent ones need an operator.
		return nil, errors.Wrapf(err, "submission failed after signing proposal %d", p.Index)
	}

	if err := p.markExecuted(conf); err != nil {
		return nil, err
	}
	if err := e.props.Update(p); err != nil {
		return nil, errors.Wrap(err, "update proposal")
	}
	return conf, nil
}

// reconcile resolves a recorded signed-but-unconfirmed attempt. Returns
// the confirmation when the ledger finalized it after all, nil when the
// ledger has no record and a fresh attempt is safe.
func (e *Engine) reconcile(ctx context.Context, p *Proposal) (*gateway.Confirmation, error) {
	conf, err := e.gw.Confirm(ctx, p.LastAttempt.TxHash)
	switch {
	case err == nil:
		if mErr := p.markExecuted(conf); mErr != nil {
			return nil, mErr
		}
		if uErr := e.props.Update(p); uErr != nil {
			return nil, errors.Wrap(uErr, "update proposal")
		}
		return conf, nil
	case errors.ErrNotFound.Is(err):
		// The earlier signature never landed, clear the record.
		p.LastAttempt = nil
		if uErr := e.props.Update(p); uErr != nil {
			return nil, errors.Wrap(uErr, "update proposal")
		}
		return nil, nil
	case errors.ErrSubmission.Is(err):
		// Landed on chain and was rejected there, so this execution
		// attempt is spent. The proposal stays Approved for a fresh
		// attempt.
		p.LastAttempt = nil
		if uErr := e.props.Update(p); uErr != nil {
			return nil, errors.Wrap(uErr, "update proposal")
		}
		return nil, nil
	default:
		return nil, errors.Wrap(err, "reconcile attempt")
	}
}

// Proposal loads a proposal by index.
func (e *Engine) Proposal(index uint64) (*Proposal, error) {
	return e.props.Get(index)
}

// Proposals walks all proposals in index order, stopping early when fn
// returns false.
func (e *Engine) Proposals(fn func(*Proposal) bool) error {
	return e.props.Iterate(fn)
}
