package commitment

import (
	"context"
	"testing"
	"time"

	"github.com/costwise/costwise/internal/event_bus"
	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = user.WithActor(context.Background(), "buyer-1")

var approverCtx = user.WithActor(context.Background(), "pm-1")

var repoStub = NewStubRepo()

var bus = event_bus.NewEventBus()

var clock = &utils.MockClock{FixedNow: time.Date(2026, 7, 1, 9, 0, 0, 0, time.UTC)}

var service Service

func setup(t *testing.T) func() {
	service = NewService(repoStub, bus, clock)
	return func() {
		t.Log("Teardown after test")
		repoStub.Cleanup()
	}
}

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func newCommitment() Commitment {
	return Commitment{
		ProjectID:        1,
		ContractorRef:    "ACME-STEEL",
		CommitmentNumber: "PO-2026-001",
		Title:            "Structural steel supply",
		OriginalAmount:   d("1000"),
		StartDate:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
	}
}

func activeCommitment(t *testing.T) Commitment {
	t.Helper()
	c, err := service.Create(ctx, newCommitment())
	require.NoError(t, err)
	_, err = service.Submit(ctx, c.ID)
	require.NoError(t, err)
	_, err = service.Approve(approverCtx, c.ID, "")
	require.NoError(t, err)
	c, err = service.Activate(ctx, c.ID)
	require.NoError(t, err)
	return c
}

func TestServiceImpl_Create(t *testing.T) {
	t.Run("should create draft with committed amount seeded from original", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		created, err := service.Create(ctx, newCommitment())

		require.NoError(t, err)
		assert.Equal(t, StatusDraft, created.Status)
		assert.True(t, created.CommittedAmount.Equal(d("1000")))
		assert.True(t, created.RevisedAmount.Equal(d("1000")))
		assert.Equal(t, "buyer-1", created.CreatedBy)
		assert.NotEmpty(t, created.Uid)
	})

	t.Run("should reject a non positive amount", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		c := newCommitment()
		c.OriginalAmount = d("0")

		_, err := service.Create(ctx, c)

		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("should fail for unknown project", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		c := newCommitment()
		c.ProjectID = 99

		_, err := service.Create(ctx, c)

		assert.ErrorIs(t, err, ErrProjectNotFound)
	})
}

func TestServiceImpl_Lifecycle(t *testing.T) {
	t.Run("should walk draft -> pending -> approved -> active -> closed", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		c := activeCommitment(t)
		assert.Equal(t, StatusActive, c.Status)

		closed, err := service.Close(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusClosed, closed.Status)
	})

	t.Run("should reject activating a draft", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c, err := service.Create(ctx, newCommitment())
		require.NoError(t, err)

		_, err = service.Activate(ctx, c.ID)

		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})

	t.Run("should cancel a draft but not a closed commitment", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c, err := service.Create(ctx, newCommitment())
		require.NoError(t, err)

		cancelled, err := service.Cancel(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusCancelled, cancelled.Status)

		closed := activeCommitment(t)
		_, err = service.Close(ctx, closed.ID)
		require.NoError(t, err)
		_, err = service.Cancel(ctx, closed.ID)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})
}

func TestServiceImpl_RecordInvoice(t *testing.T) {
	t.Run("first invoice flips active to partially invoiced", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c := activeCommitment(t)

		invoiced, err := service.RecordInvoice(ctx, c.ID, d("400"))

		require.NoError(t, err)
		assert.Equal(t, StatusPartiallyInvoiced, invoiced.Status)
		assert.True(t, invoiced.InvoicedAmount.Equal(d("400")))

		// closing stays an explicit operation even when fully invoiced
		invoiced, err = service.RecordInvoice(ctx, c.ID, d("600"))
		require.NoError(t, err)
		assert.Equal(t, StatusPartiallyInvoiced, invoiced.Status)
		assert.True(t, invoiced.InvoicedAmount.Equal(d("1000")))
	})

	t.Run("should reject invoicing a draft", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c, err := service.Create(ctx, newCommitment())
		require.NoError(t, err)

		_, err = service.RecordInvoice(ctx, c.ID, d("100"))

		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})
}

func TestServiceImpl_RecordPayment(t *testing.T) {
	t.Run("should track unpaid balance", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c := activeCommitment(t)
		_, err := service.RecordInvoice(ctx, c.ID, d("400"))
		require.NoError(t, err)

		paid, err := service.RecordPayment(ctx, c.ID, d("150"))

		require.NoError(t, err)
		assert.True(t, paid.PaidAmount.Equal(d("150")))
		assert.True(t, paid.UnpaidAmount().Equal(d("250")))
	})

	t.Run("should reject paying more than invoiced", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c := activeCommitment(t)
		_, err := service.RecordInvoice(ctx, c.ID, d("400"))
		require.NoError(t, err)

		_, err = service.RecordPayment(ctx, c.ID, d("500"))

		assert.ErrorIs(t, err, ErrPaymentExceedsInvoiced)
	})
}

func TestServiceImpl_Revise(t *testing.T) {
	t.Run("should append a revision and move committed amount", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c := activeCommitment(t)

		revised, err := service.Revise(ctx, c.ID, d("1200"), "steel price escalation", "CO-7")

		require.NoError(t, err)
		assert.True(t, revised.CommittedAmount.Equal(d("1200")))
		assert.True(t, revised.RevisedAmount.Equal(d("1200")))
		assert.True(t, revised.OriginalAmount.Equal(d("1000")))
		require.Len(t, revised.Revisions, 1)
		rev := revised.Revisions[0]
		assert.Equal(t, 1, rev.Number)
		assert.True(t, rev.PreviousAmount.Equal(d("1000")))
		assert.True(t, rev.NewAmount.Equal(d("1200")))
		assert.Equal(t, "CO-7", rev.ChangeOrderRef)
	})

	t.Run("should reject revising below the invoiced amount", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c := activeCommitment(t)
		_, err := service.RecordInvoice(ctx, c.ID, d("1000"))
		require.NoError(t, err)

		_, err = service.Revise(ctx, c.ID, d("900"), "cut scope", "")

		assert.ErrorIs(t, err, ErrReviseBelowInvoiced)
	})

	t.Run("should reject revising a draft", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c, err := service.Create(ctx, newCommitment())
		require.NoError(t, err)

		_, err = service.Revise(ctx, c.ID, d("1200"), "", "")

		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})
}

func TestServiceImpl_Delete(t *testing.T) {
	t.Run("should delete an uninvoiced draft", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c, err := service.Create(ctx, newCommitment())
		require.NoError(t, err)

		ok, err := service.Delete(ctx, c.ID)

		require.NoError(t, err)
		assert.True(t, ok)
		_, err = service.Get(ctx, c.ID)
		assert.ErrorIs(t, err, ErrCommitmentNotFound)
	})

	t.Run("should refuse deleting once invoices exist", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c := activeCommitment(t)
		_, err := service.RecordInvoice(ctx, c.ID, d("1000"))
		require.NoError(t, err)

		_, err = service.Delete(ctx, c.ID)

		assert.ErrorIs(t, err, ErrCommitmentHasInvoices)
	})
}

func TestServiceImpl_Allocate(t *testing.T) {
	t.Run("should cap allocations at the committed amount", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c := activeCommitment(t)

		_, err := service.Allocate(ctx, WorkPackageAllocation{
			CommitmentID: c.ID, WorkPackageID: 11, AllocatedAmount: d("600"),
		})
		require.NoError(t, err)
		_, err = service.Allocate(ctx, WorkPackageAllocation{
			CommitmentID: c.ID, WorkPackageID: 12, AllocatedAmount: d("400"),
		})
		require.NoError(t, err)

		// committed amount 1000 is fully spread, anything more overflows
		_, err = service.Allocate(ctx, WorkPackageAllocation{
			CommitmentID: c.ID, WorkPackageID: 13, AllocatedAmount: d("1"),
		})
		assert.ErrorIs(t, err, ErrOverAllocation)
	})

	t.Run("should cap allocations even when another allocation landed after the read", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		c := activeCommitment(t)
		_, err := service.Allocate(ctx, WorkPackageAllocation{
			CommitmentID: c.ID, WorkPackageID: 11, AllocatedAmount: d("600"),
		})
		require.NoError(t, err)
		// another writer fills the remainder before this caller's insert
		_, err = repoStub.StoreAllocation(ctx, WorkPackageAllocation{
			CommitmentID: c.ID, WorkPackageID: 12, AllocatedAmount: d("400"),
		})
		require.NoError(t, err)

		_, err = repoStub.StoreAllocation(ctx, WorkPackageAllocation{
			CommitmentID: c.ID, WorkPackageID: 13, AllocatedAmount: d("200"),
		})

		require.ErrorIs(t, err, ErrOverAllocation)
		stored, err := service.Get(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, stored.AllocatedTotal().Equal(d("1000")))
	})

	t.Run("allocation is fully invoiced when the share covers it", func(t *testing.T) {
		alloc := WorkPackageAllocation{AllocatedAmount: d("600"), InvoicedAmount: d("600")}
		assert.True(t, alloc.FullyInvoiced())
		alloc.InvoicedAmount = d("599")
		assert.False(t, alloc.FullyInvoiced())
	})
}

func TestCommitment_RiskScore(t *testing.T) {
	now := time.Date(2026, 7, 2, 0, 0, 0, 0, time.UTC)

	base := Commitment{
		CommittedAmount: d("1000"),
		StartDate:       time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:         time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("healthy commitment scores zero", func(t *testing.T) {
		c := base
		c.PerformancePct = d("50")

		assert.True(t, c.RiskScore(now).IsZero())
	})

	t.Run("each signal adds 25", func(t *testing.T) {
		// half way through the window with no progress
		c := base
		c.PerformancePct = d("0")
		assert.True(t, c.RiskScore(now).Equal(d("25")))

		// invoiced above committed and unpaid above 30%
		c.InvoicedAmount = d("1100")
		assert.True(t, c.RiskScore(now).Equal(d("75")))
	})

	t.Run("all four signals cap at 100", func(t *testing.T) {
		c := base
		c.PerformancePct = d("0")
		c.InvoicedAmount = d("1100")
		c.EndDate = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

		assert.True(t, c.RiskScore(now).Equal(d("100")))
	})

	t.Run("degenerate window counts as zero elapsed", func(t *testing.T) {
		c := base
		c.EndDate = c.StartDate
		c.PerformancePct = d("0")

		assert.True(t, c.ElapsedTimePct(now).IsZero())
		assert.True(t, c.RiskScore(now).IsZero())
	})

	t.Run("elapsed percentage clamps past the end date", func(t *testing.T) {
		c := base
		late := time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC)

		assert.True(t, c.ElapsedTimePct(late).Equal(d("100")))
	})
}

func TestServiceImpl_Events(t *testing.T) {
	t.Run("should publish activation and close events", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		var changes []event_bus.CommitmentStatusChanged
		unsubActivated := event_bus.SubscribeTyped[event_bus.CommitmentStatusChanged](bus, "commitment.activated",
			func(e event_bus.EventT[event_bus.CommitmentStatusChanged]) error {
				changes = append(changes, e.Data)
				return nil
			})
		defer unsubActivated()

		c := activeCommitment(t)

		require.Len(t, changes, 1)
		assert.Equal(t, c.ID, changes[0].CommitmentID)
		assert.Equal(t, string(StatusApproved), changes[0].From)
		assert.Equal(t, string(StatusActive), changes[0].To)
	})
}
