package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/gateway"
	"github.com/quartzvault/quartz/quartztest"
)

func activeProposal(creator quartz.Identity) *Proposal {
	return &Proposal{
		Creator:   creator,
		Payload:   []byte("transfer 5"),
		Status:    StatusActive,
		CreatedAt: quartz.AsUnixTime(time.Unix(1700000000, 0)),
	}
}

func TestPutVoteOverwrites(t *testing.T) {
	p := activeProposal(quartztest.SequenceID(1))

	p.putVote(Vote{Member: quartztest.SequenceID(2), Decision: DecisionApprove})
	p.putVote(Vote{Member: quartztest.SequenceID(3), Decision: DecisionApprove})
	p.putVote(Vote{Member: quartztest.SequenceID(2), Decision: DecisionReject})

	require.Len(t, p.Votes, 2)
	assert.Equal(t, 1, p.Approvals())
	assert.Equal(t, 1, p.Rejections())

	v, ok := p.VoteBy(quartztest.SequenceID(2))
	require.True(t, ok)
	assert.Equal(t, DecisionReject, v.Decision)
}

func TestTally(t *testing.T) {
	reg, err := NewRegistry([]Member{
		member(1, quartz.PermApprove),
		member(2, quartz.PermApprove),
		member(3, quartz.PermApprove),
	}, 2)
	require.NoError(t, err)

	cases := map[string]struct {
		votes      []Vote
		strict     bool
		wantStatus ProposalStatus
	}{
		"no votes stays active": {
			wantStatus: StatusActive,
		},
		"below threshold stays active": {
			votes:      []Vote{{Member: quartztest.SequenceID(1), Decision: DecisionApprove}},
			wantStatus: StatusActive,
		},
		"threshold reached approves": {
			votes: []Vote{
				{Member: quartztest.SequenceID(1), Decision: DecisionApprove},
				{Member: quartztest.SequenceID(2), Decision: DecisionApprove},
			},
			wantStatus: StatusApproved,
		},
		"minority reject stays active": {
			votes:      []Vote{{Member: quartztest.SequenceID(1), Decision: DecisionReject}},
			wantStatus: StatusActive,
		},
		"minority reject stays active under strict policy": {
			votes:      []Vote{{Member: quartztest.SequenceID(1), Decision: DecisionReject}},
			strict:     true,
			wantStatus: StatusActive,
		},
		"unreachable threshold rejects under strict policy": {
			votes: []Vote{
				{Member: quartztest.SequenceID(1), Decision: DecisionReject},
				{Member: quartztest.SequenceID(2), Decision: DecisionReject},
			},
			strict:     true,
			wantStatus: StatusRejected,
		},
		"unreachable threshold ignored without strict policy": {
			votes: []Vote{
				{Member: quartztest.SequenceID(1), Decision: DecisionReject},
				{Member: quartztest.SequenceID(2), Decision: DecisionReject},
			},
			wantStatus: StatusActive,
		},
	}

	for testName, tc := range cases {
		t.Run(testName, func(t *testing.T) {
			p := activeProposal(quartztest.SequenceID(1))
			p.Votes = tc.votes
			require.NoError(t, p.tally(reg, tc.strict))
			assert.Equal(t, tc.wantStatus, p.Status)
		})
	}
}

func TestCancelTransitions(t *testing.T) {
	for _, status := range []ProposalStatus{StatusActive, StatusApproved} {
		p := activeProposal(quartztest.SequenceID(1))
		p.Status = status
		require.NoError(t, p.cancel())
		assert.Equal(t, StatusCancelled, p.Status)
	}

	for _, status := range []ProposalStatus{StatusRejected, StatusExecuted, StatusCancelled} {
		p := activeProposal(quartztest.SequenceID(1))
		p.Status = status
		err := p.cancel()
		assert.True(t, errors.ErrState.Is(err), "status %s: %+v", status, err)
	}
}

func TestMarkExecuted(t *testing.T) {
	conf := &gateway.Confirmation{TxHash: []byte("hash"), Height: 7}

	p := activeProposal(quartztest.SequenceID(1))
	p.Status = StatusApproved
	p.LastAttempt = &Attempt{TxHash: []byte("hash"), At: p.CreatedAt}

	require.NoError(t, p.markExecuted(conf))
	assert.Equal(t, StatusExecuted, p.Status)
	assert.Equal(t, conf, p.Confirmation)
	assert.Nil(t, p.LastAttempt)

	// Executed is terminal, a second receipt must not apply.
	err := p.markExecuted(conf)
	assert.True(t, errors.ErrState.Is(err), "unexpected error: %+v", err)

	p = activeProposal(quartztest.SequenceID(1))
	err = p.markExecuted(conf)
	assert.True(t, errors.ErrState.Is(err), "unexpected error: %+v", err)
}

func TestExecutableAt(t *testing.T) {
	p := activeProposal(quartztest.SequenceID(1))
	p.TimeLock = quartz.UnixDuration(3600)
	assert.Equal(t, p.CreatedAt.Add(time.Hour), p.ExecutableAt())
}

func TestProposalValidate(t *testing.T) {
	p := activeProposal(quartztest.SequenceID(1))
	require.NoError(t, p.Validate())

	p.Votes = []Vote{
		{Member: quartztest.SequenceID(2), Decision: DecisionApprove},
		{Member: quartztest.SequenceID(2), Decision: DecisionReject},
	}
	err := p.Validate()
	assert.True(t, errors.ErrState.Is(err), "unexpected error: %+v", err)
}
