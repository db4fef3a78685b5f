package engine

import (
	"context"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/quartzvault/quartz"
	"github.com/quartzvault/quartz/errors"
	"github.com/quartzvault/quartz/quartztest"
	"github.com/quartzvault/quartz/store"
)

func TestLifecycleScenarios(t *testing.T) {
	Convey("Given a two-of-three vault", t, func() {
		ctx := context.Background()
		alice := quartztest.SequenceID(1)
		bob := quartztest.SequenceID(2)
		carol := quartztest.SequenceID(3)

		reg, err := NewRegistry([]Member{
			{ID: alice, Perms: quartz.NewPermissionSet(quartz.PermPropose, quartz.PermApprove, quartz.PermExecute)},
			{ID: bob, Perms: quartz.NewPermissionSet(quartz.PermApprove)},
			{ID: carol, Perms: quartz.NewPermissionSet(quartz.PermApprove)},
		}, 2)
		So(err, ShouldBeNil)

		props, err := NewProposalStore(store.NewMemStore(), RegistryID("vault"))
		So(err, ShouldBeNil)

		ledger := &quartztest.Ledger{}
		backend := &quartztest.Backend{}
		eng, err := New(reg, props, ledger)
		So(err, ShouldBeNil)

		Convey("When alice creates a proposal", func() {
			p, err := eng.CreateProposal(ctx, alice, []byte("rotate key"), 0)
			So(err, ShouldBeNil)
			So(p.Status, ShouldEqual, StatusActive)

			Convey("A single approval leaves it active", func() {
				p, err := eng.CastVote(ctx, p.Index, bob, DecisionApprove)
				So(err, ShouldBeNil)
				So(p.Status, ShouldEqual, StatusActive)

				Convey("The second approval reaches the threshold", func() {
					p, err := eng.CastVote(ctx, p.Index, carol, DecisionApprove)
					So(err, ShouldBeNil)
					So(p.Status, ShouldEqual, StatusApproved)

					Convey("And the proposal executes exactly once", func() {
						conf, err := eng.ExecuteProposal(ctx, p.Index, alice, backend)
						So(err, ShouldBeNil)
						So(conf, ShouldNotBeNil)
						So(ledger.Confirmed(), ShouldEqual, 1)

						_, err = eng.ExecuteProposal(ctx, p.Index, alice, backend)
						So(errors.ErrState.Is(err), ShouldBeTrue)
						So(backend.SignCalls(), ShouldEqual, 1)
					})

					Convey("Unless alice cancels it first", func() {
						p, err := eng.CancelProposal(ctx, p.Index, alice)
						So(err, ShouldBeNil)
						So(p.Status, ShouldEqual, StatusCancelled)

						_, err = eng.ExecuteProposal(ctx, p.Index, alice, backend)
						So(errors.ErrState.Is(err), ShouldBeTrue)
						So(backend.ConnectCalls(), ShouldEqual, 0)
					})
				})

				Convey("A rejection does not undo the approval count", func() {
					p, err := eng.CastVote(ctx, p.Index, carol, DecisionReject)
					So(err, ShouldBeNil)
					So(p.Status, ShouldEqual, StatusActive)
					So(p.Approvals(), ShouldEqual, 1)
					So(p.Rejections(), ShouldEqual, 1)
				})
			})
		})
	})
}
