package engine

import (
	"fmt"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/gateway"
)

// ProposalStatus is the lifecycle position of a proposal. Transitions are
// forward-only, Executed and Cancelled are terminal.
type ProposalStatus uint8

const (
	// StatusInvalid is the zero value and never stored.
	StatusInvalid ProposalStatus = iota
	// StatusActive accepts votes.
	StatusActive
	// StatusApproved reached the approval threshold and awaits
	// execution.
	StatusApproved
	// StatusRejected can no longer reach the approval threshold.
	StatusRejected
	// StatusExecuted was confirmed by the ledger. Terminal.
	StatusExecuted
	// StatusCancelled was explicitly aborted. Terminal.
	StatusCancelled
)

func (s ProposalStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	case StatusExecuted:
		return "executed"
	case StatusCancelled:
		return "cancelled"
	}
	return "invalid"
}

// Terminal returns true when no further transition is possible.
func (s ProposalStatus) Terminal() bool {
	return s == StatusExecuted || s == StatusCancelled
}

// VoteDecision is a member's stance on a proposal.
type VoteDecision uint8

const (
	DecisionInvalid VoteDecision = iota
	DecisionApprove
	DecisionReject
)

func (d VoteDecision) String() string {
	switch d {
	case DecisionApprove:
		return "approve"
	case DecisionReject:
		return "reject"
	}
	return "invalid"
}

// Validate returns an error unless this is a declared decision.
func (d VoteDecision) Validate() error {
	switch d {
	case DecisionApprove, DecisionReject:
		return nil
	}
	return errors.ErrInput.Newf("decision: %d", d)
}

// Vote records the most recent decision of one member.
type Vote struct {
	Member   quartz.Identity
	Decision VoteDecision
}

// Attempt records that a signature was produced for this proposal and
// handed to the ledger, without the ledger having confirmed it yet. It is
// persisted before submission so a crashed or failed attempt can be
// reconciled instead of signing twice.
type Attempt struct {
	TxHash []byte
	At     quartz.UnixTime
}

// Proposal is a pending request to execute one action, subject to
// multi-party approval.
type Proposal struct {
	// Index is assigned by the store, strictly increasing per registry
	// and never reused, not even across cancellations.
	Index uint64
	// Creator is the member that submitted the candidate action.
	Creator quartz.Identity
	// Payload is the opaque serialized action intent.
	Payload []byte
	// Status is the lifecycle position.
	Status ProposalStatus
	// Votes holds at most one entry per member, ordered by the time of
	// the first cast. A later vote overwrites in place.
	Votes []Vote
	// CreatedAt is the submission time.
	CreatedAt quartz.UnixTime
	// TimeLock is the minimum delay after creation before execution is
	// permitted.
	TimeLock quartz.UnixDuration
	// Confirmation is the ledger receipt, set on execution.
	Confirmation *gateway.Confirmation
	// LastAttempt is the most recent signed-but-unconfirmed submission,
	// if any.
	LastAttempt *Attempt
}

// Validate checks the stored proposal invariants.
func (p *Proposal) Validate() error {
	if p.Status == StatusInvalid {
		return errors.ErrState.New("invalid status")
	}
	if err := p.Creator.Validate(); err != nil {
		return errors.Wrap(err, "creator")
	}
	if len(p.Payload) == 0 {
		return errors.ErrEmpty.New("payload")
	}
	if err := p.CreatedAt.Validate(); err != nil {
		return errors.Wrap(err, "created at")
	}
	if err := p.TimeLock.Validate(); err != nil {
		return errors.Wrap(err, "time lock")
	}
	seen := make(map[string]struct{}, len(p.Votes))
	for _, v := range p.Votes {
		if err := v.Decision.Validate(); err != nil {
			return errors.Wrap(err, "vote")
		}
		key := v.Member.String()
		if _, ok := seen[key]; ok {
			return errors.Wrapf(errors.ErrState, "duplicate vote entry for %s", v.Member)
		}
		seen[key] = struct{}{}
	}
	return nil
}

func (p *Proposal) String() string {
	return fmt.Sprintf("proposal %d (%s)", p.Index, p.Status)
}

// VoteBy returns the recorded vote of the given member.
func (p *Proposal) VoteBy(id quartz.Identity) (Vote, bool) {
	for _, v := range p.Votes {
		if v.Member.Equals(id) {
			return v, true
		}
	}
	return Vote{}, false
}

// putVote upserts the member's decision. A repeated cast overwrites the
// earlier entry rather than duplicating it.
func (p *Proposal) putVote(v Vote) {
	for i := range p.Votes {
		if p.Votes[i].Member.Equals(v.Member) {
			p.Votes[i].Decision = v.Decision
			return
		}
	}
	p.Votes = append(p.Votes, v)
}

// Approvals counts the current approve votes.
func (p *Proposal) Approvals() int {
	return p.count(DecisionApprove)
}

// Rejections counts the current reject votes.
func (p *Proposal) Rejections() int {
	return p.count(DecisionReject)
}

func (p *Proposal) count(d VoteDecision) int {
	var n int
	for _, v := range p.Votes {
		if v.Decision == d {
			n++
		}
	}
	return n
}

// ExecutableAt returns the earliest execution time.
func (p *Proposal) ExecutableAt() quartz.UnixTime {
	return p.CreatedAt.AddDuration(p.TimeLock)
}

// tally recomputes the status after a vote update. Reaching the approval
// threshold moves the proposal to Approved. With the strict policy
// enabled, a proposal whose threshold became mathematically unreachable
// given the remaining eligible voters moves to Rejected. A minority
// reject never cancels on its own.
func (p *Proposal) tally(reg *Registry, strict bool) error {
	if p.Status != StatusActive {
		return errors.Wrapf(errors.ErrState, "tally in status %s", p.Status)
	}
	if p.Approvals() >= int(reg.Threshold) {
		p.Status = StatusApproved
		return nil
	}
	if strict {
		remaining := reg.approversAmong() - len(p.Votes)
		if p.Approvals()+remaining < int(reg.Threshold) {
			p.Status = StatusRejected
		}
	}
	return nil
}

// cancel aborts the proposal. Allowed from Active and Approved only, a
// second cancel fails.
func (p *Proposal) cancel() error {
	switch p.Status {
	case StatusActive, StatusApproved:
		p.Status = StatusCancelled
		return nil
	}
	return errors.Wrapf(errors.ErrState, "cancel in status %s", p.Status)
}

// markExecuted consumes the Approved status and stores the receipt. The
// status check and the transition happen under the caller's per-proposal
// lock, which is what makes execution exactly-once.
func (p *Proposal) markExecuted(conf *gateway.Confirmation) error {
	if p.Status != StatusApproved {
		return errors.Wrapf(errors.ErrState, "execute in status %s", p.Status)
	}
	if conf == nil {
		return errors.ErrEmpty.New("confirmation")
	}
	p.Status = StatusExecuted
	p.Confirmation = conf
	p.LastAttempt = nil
	return nil
}
