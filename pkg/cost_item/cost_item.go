package cost_item

import (
	"time"

	"github.com/shopspring/decimal"
)

// CostItem is a single cost line attributable to a project and optionally a
// control account or WBS element.
type CostItem struct {
	ID               int
	Uid              string
	ProjectID        int
	ControlAccountID *int
	WbsCode          string
	Description      string
	Category         string
	PlannedCost      decimal.Decimal
	ActualCost       decimal.Decimal
	CommittedCost    decimal.Decimal
	ForecastCost     decimal.Decimal
	IsDeleted        bool
	CreatedBy        string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Rollup is the per project sum of the four cost figures.
type Rollup struct {
	ProjectID     int
	PlannedCost   decimal.Decimal
	ActualCost    decimal.Decimal
	CommittedCost decimal.Decimal
	ForecastCost  decimal.Decimal
	ItemCount     int
}

// Sum folds the items into a roll-up.
func Sum(projectID int, items []CostItem) Rollup {
	r := Rollup{ProjectID: projectID}
	for _, item := range items {
		r.PlannedCost = r.PlannedCost.Add(item.PlannedCost)
		r.ActualCost = r.ActualCost.Add(item.ActualCost)
		r.CommittedCost = r.CommittedCost.Add(item.CommittedCost)
		r.ForecastCost = r.ForecastCost.Add(item.ForecastCost)
		r.ItemCount++
	}
	return r
}
