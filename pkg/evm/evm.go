package evm

import (
	"time"

	"github.com/shopspring/decimal"
)

type PeriodType string

const (
	PeriodWeekly    PeriodType = "weekly"
	PeriodMonthly   PeriodType = "monthly"
	PeriodQuarterly PeriodType = "quarterly"
)

func (p PeriodType) IsValid() bool {
	switch p {
	case PeriodWeekly, PeriodMonthly, PeriodQuarterly:
		return true
	}
	return false
}

// EVMRecord is one observation of a control account's earned value figures on
// a data date. Once approved the record is frozen and carries an immutable
// audit stamp.
type EVMRecord struct {
	ID                 int
	ControlAccountID   int
	DataDate           time.Time
	PeriodType         PeriodType
	PlannedValue       decimal.Decimal
	EarnedValue        decimal.Decimal
	ActualCost         decimal.Decimal
	BudgetAtCompletion decimal.Decimal
	Notes              string
	IsApproved         bool
	ApprovedBy         string
	ApprovedAt         time.Time
	CreatedBy          string
	CreatedAt          time.Time
}
