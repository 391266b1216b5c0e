package commitment

import (
	"time"

	"github.com/costwise/costwise/pkg/money"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft             Status = "draft"
	StatusPendingApproval   Status = "pending_approval"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
	StatusActive            Status = "active"
	StatusPartiallyInvoiced Status = "partially_invoiced"
	StatusClosed            Status = "closed"
	StatusCancelled         Status = "cancelled"
)

var transitions = map[Status][]Status{
	StatusDraft:             {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval:   {StatusApproved, StatusRejected},
	StatusApproved:          {StatusActive, StatusCancelled},
	StatusActive:            {StatusPartiallyInvoiced, StatusClosed, StatusCancelled},
	StatusPartiallyInvoiced: {StatusClosed},
	StatusRejected:          {},
	StatusClosed:            {},
	StatusCancelled:         {},
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Commitment is a contractual obligation (purchase order, subcontract) against
// a project. References to contractor, budget item and control account are by
// id only.
type Commitment struct {
	ID               int
	Uid              string
	ProjectID        int
	ContractorRef    string
	BudgetItemID     *int
	ControlAccountID *int
	CommitmentNumber string
	Title            string
	OriginalAmount   decimal.Decimal
	RevisedAmount    decimal.Decimal
	CommittedAmount  decimal.Decimal
	InvoicedAmount   decimal.Decimal
	PaidAmount       decimal.Decimal
	RetentionAmount  decimal.Decimal
	StartDate        time.Time
	EndDate          time.Time
	PerformancePct   decimal.Decimal
	Status           Status
	IsDeleted        bool
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
	ApprovedBy       *string
	ApprovedAt       *time.Time
	ApprovalNotes    string
	RejectedBy       *string
	RejectedAt       *time.Time
	RejectionReason  string
	Items            []CommitmentItem
	Allocations      []WorkPackageAllocation
	Revisions        []CommitmentRevision
}

// UnpaidAmount is the invoiced value not yet paid.
func (c Commitment) UnpaidAmount() decimal.Decimal {
	return c.InvoicedAmount.Sub(c.PaidAmount)
}

// OverCommitted reports whether more has been invoiced than committed.
func (c Commitment) OverCommitted() bool {
	return c.InvoicedAmount.GreaterThan(c.CommittedAmount)
}

// Expired reports whether the commitment is past its end date with an
// outstanding balance.
func (c Commitment) Expired(now time.Time) bool {
	return now.After(c.EndDate) && c.UnpaidAmount().IsPositive()
}

// ElapsedTimePct is how far into the start..end window now falls, clamped to
// 0..100. A degenerate window counts as zero elapsed.
func (c Commitment) ElapsedTimePct(now time.Time) decimal.Decimal {
	window := c.EndDate.Sub(c.StartDate)
	if window <= 0 {
		return decimal.Zero
	}
	elapsed := decimal.NewFromFloat(now.Sub(c.StartDate).Seconds())
	total := decimal.NewFromFloat(window.Seconds())
	return money.Clamp(elapsed.Div(total), decimal.Zero, decimal.NewFromInt(1)).Mul(money.Hundred)
}

var riskContribution = decimal.NewFromInt(25)
var thirtyPercent = decimal.RequireFromString("0.3")
var scheduleSlack = decimal.NewFromInt(10)

// RiskScore grades the commitment 0 to 100. Each signal adds 25: performance
// lagging more than 10 points behind elapsed time, invoices above commitment,
// unpaid balance above 30% of the committed amount, and being expired.
func (c Commitment) RiskScore(now time.Time) decimal.Decimal {
	score := decimal.Zero
	if c.PerformancePct.LessThan(c.ElapsedTimePct(now).Sub(scheduleSlack)) {
		score = score.Add(riskContribution)
	}
	if c.OverCommitted() {
		score = score.Add(riskContribution)
	}
	if c.CommittedAmount.IsPositive() && c.UnpaidAmount().Div(c.CommittedAmount).GreaterThan(thirtyPercent) {
		score = score.Add(riskContribution)
	}
	if c.Expired(now) {
		score = score.Add(riskContribution)
	}
	return money.Clamp(score, decimal.Zero, money.Hundred)
}

// AllocatedTotal sums the work package allocations.
func (c Commitment) AllocatedTotal() decimal.Decimal {
	total := decimal.Zero
	for _, a := range c.Allocations {
		total = total.Add(a.AllocatedAmount)
	}
	return total
}

type CommitmentItem struct {
	ID           int
	CommitmentID int
	Code         string
	Description  string
	Quantity     decimal.Decimal
	UnitRate     decimal.Decimal
	Amount       decimal.Decimal
}

// WorkPackageAllocation spreads a commitment over control account work
// packages.
type WorkPackageAllocation struct {
	ID              int
	CommitmentID    int
	WorkPackageID   int
	AllocatedAmount decimal.Decimal
	InvoicedAmount  decimal.Decimal
}

// FullyInvoiced reports whether the allocation's invoiced share covers it.
func (a WorkPackageAllocation) FullyInvoiced() bool {
	return a.InvoicedAmount.GreaterThanOrEqual(a.AllocatedAmount)
}

type CommitmentRevision struct {
	ID             int
	CommitmentID   int
	Number         int
	PreviousAmount decimal.Decimal
	NewAmount      decimal.Decimal
	Reason         string
	ChangeOrderRef string
	CreatedBy      string
	CreatedAt      time.Time
}
