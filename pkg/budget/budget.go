package budget

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusDraft           Status = "draft"
	StatusPendingApproval Status = "pending_approval"
	StatusApproved        Status = "approved"
	StatusRejected        Status = "rejected"
	StatusBaseline        Status = "baseline"
	StatusLocked          Status = "locked"
)

// transitions lists the allowed next states per status. Rejected and Locked
// are terminal, a rejected budget is replaced by a fresh draft rather than
// reopened.
var transitions = map[Status][]Status{
	StatusDraft:           {StatusPendingApproval},
	StatusPendingApproval: {StatusApproved, StatusRejected},
	StatusApproved:        {StatusBaseline, StatusLocked},
	StatusBaseline:        {StatusLocked},
	StatusRejected:        {},
	StatusLocked:          {},
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

type CostType string

const (
	CostTypeLabor       CostType = "labor"
	CostTypeMaterial    CostType = "material"
	CostTypeEquipment   CostType = "equipment"
	CostTypeSubcontract CostType = "subcontract"
	CostTypeOther       CostType = "other"
)

func (t CostType) IsValid() bool {
	switch t {
	case CostTypeLabor, CostTypeMaterial, CostTypeEquipment, CostTypeSubcontract, CostTypeOther:
		return true
	}
	return false
}

// ItemTolerance is the allowed relative gap between the sum of item amounts
// and the distributable budget (total minus contingency minus reserve) when
// submitting for approval.
var ItemTolerance = decimal.RequireFromString("0.01")

// checkItemCoverage verifies that a budget has at least one item and that the
// item total stays within ItemTolerance of the distributable amount. Both the
// database repository and the stub run it against the state they hold at
// submit time.
func checkItemCoverage(itemCount int, itemTotal, distributable decimal.Decimal) error {
	if itemCount == 0 {
		return ErrNoBudgetItems
	}
	if itemTotal.Sub(distributable).Abs().GreaterThan(ItemTolerance.Mul(distributable)) {
		return fmt.Errorf("%w: items sum to %s, expected %s", ErrItemTotalMismatch, itemTotal, distributable)
	}
	return nil
}

type Budget struct {
	ID                int
	Uid               string
	ProjectID         int
	Version           string
	Description       string
	TotalAmount       decimal.Decimal
	Currency          string
	ContingencyAmount decimal.Decimal
	ManagementReserve decimal.Decimal
	Status            Status
	IsBaseline        bool
	IsLocked          bool
	ApprovedBy        *string
	ApprovedAt        *time.Time
	ApprovalComments  string
	RejectedBy        *string
	RejectedAt        *time.Time
	RejectionReason   string
	IsDeleted         bool
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Items             []BudgetItem
	Revisions         []BudgetRevision
}

// DistributableAmount is the part of the total that budget items have to
// account for.
func (b Budget) DistributableAmount() decimal.Decimal {
	return b.TotalAmount.Sub(b.ContingencyAmount).Sub(b.ManagementReserve)
}

// ItemTotal sums the amounts of the non-deleted items.
func (b Budget) ItemTotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range b.Items {
		if !item.IsDeleted {
			total = total.Add(item.Amount)
		}
	}
	return total
}

type BudgetItem struct {
	ID          int
	BudgetID    int
	Code        string
	Description string
	Quantity    decimal.Decimal
	UnitRate    decimal.Decimal
	Amount      decimal.Decimal
	CostType    CostType
	IsDeleted   bool
}

type BudgetRevision struct {
	ID          int
	BudgetID    int
	Number      int
	Reason      string
	NewBudgetID int
	CreatedBy   string
	CreatedAt   time.Time
}
