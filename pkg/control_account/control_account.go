package control_account

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPlanning   Status = "planning"
	StatusBaselined  Status = "baselined"
	StatusInProgress Status = "in_progress"
	StatusClosed     Status = "closed"
)

// transitions is the closed transition table for control account statuses.
var transitions = map[Status][]Status{
	StatusPlanning:   {StatusBaselined},
	StatusBaselined:  {StatusInProgress},
	StatusInProgress: {StatusClosed},
	StatusClosed:     {},
}

// CanTransition reports whether moving from s to target is a legal step.
func (s Status) CanTransition(target Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == target {
			return true
		}
	}
	return false
}

type MeasurementMethod string

const (
	MeasurePercentComplete MeasurementMethod = "percent_complete"
	MeasureMilestone       MeasurementMethod = "milestone"
	MeasureLevelOfEffort   MeasurementMethod = "level_of_effort"
	MeasureUnitsComplete   MeasurementMethod = "units_complete"
)

func (m MeasurementMethod) IsValid() bool {
	switch m {
	case MeasurePercentComplete, MeasureMilestone, MeasureLevelOfEffort, MeasureUnitsComplete:
		return true
	}
	return false
}

// ControlAccount is the node where budget, schedule and actuals are integrated
// under one accountable manager. It owns its work packages and its EVM record
// time series; references to budgets are by identifier only.
type ControlAccount struct {
	ID                 int
	Uid                string
	ProjectID          int
	Phase              string
	Code               string
	Name               string
	Manager            string
	BudgetAtCompletion decimal.Decimal
	Contingency        decimal.Decimal
	ManagementReserve  decimal.Decimal
	MeasurementMethod  MeasurementMethod
	Status             Status
	Level              int
	IsDeleted          bool
	CreatedBy          string
	CreatedAt          time.Time
	UpdatedAt          time.Time

	WorkPackages []WorkPackage
}

// WorkPackage is a child scope element of a control account. Planning
// packages are far-term scope not yet decomposed into work packages.
type WorkPackage struct {
	ID                int
	ControlAccountID  int
	Code              string
	Name              string
	Budget            decimal.Decimal
	ProgressPercent   decimal.Decimal
	IsPlanningPackage bool
}
