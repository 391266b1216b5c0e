package report

import (
	"fmt"
	"time"

	"github.com/costwise/costwise/pkg/evm"
	"github.com/shopspring/decimal"
)

// Line is one control account row of the nine column report. When the account
// has no EVM record at the report date, planned value falls back to the
// account's budget at completion and earned value and actual cost to zero.
type Line struct {
	ControlAccountID int
	Code             string
	Name             string
	Level            int
	HasRecord        bool
	DataDate         time.Time
	Metrics          evm.Metrics
}

type NineColumnReport struct {
	ProjectID int
	AsOf      time.Time
	Lines     []Line
	Totals    evm.Metrics
	Status    evm.PerformanceStatus
}

// Filter narrows an already computed report. Zero values leave a dimension
// unfiltered. Totals must be recomputed from the surviving lines, never reused.
type Filter struct {
	ControlAccountIDs []int
	MinLevel          int
	MaxLevel          int
	VarianceOnly      bool
}

func (f Filter) IsZero() bool {
	return len(f.ControlAccountIDs) == 0 && f.MinLevel == 0 && f.MaxLevel == 0 && !f.VarianceOnly
}

func (f Filter) matches(line Line) bool {
	if len(f.ControlAccountIDs) > 0 {
		found := false
		for _, id := range f.ControlAccountIDs {
			if id == line.ControlAccountID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MinLevel > 0 && line.Level < f.MinLevel {
		return false
	}
	if f.MaxLevel > 0 && line.Level > f.MaxLevel {
		return false
	}
	if f.VarianceOnly &&
		!line.Metrics.CostVariance.IsNegative() && !line.Metrics.ScheduleVariance.IsNegative() {
		return false
	}
	return true
}

// ApplyFilter returns a report containing only the matching lines, with the
// totals and status re-derived from those lines.
func ApplyFilter(report NineColumnReport, filter Filter) NineColumnReport {
	if filter.IsZero() {
		return report
	}
	filtered := NineColumnReport{ProjectID: report.ProjectID, AsOf: report.AsOf}
	inputs := make([]evm.Input, 0, len(report.Lines))
	for _, line := range report.Lines {
		if !filter.matches(line) {
			continue
		}
		filtered.Lines = append(filtered.Lines, line)
		inputs = append(inputs, evm.Input{
			PlannedValue:       line.Metrics.PlannedValue,
			EarnedValue:        line.Metrics.EarnedValue,
			ActualCost:         line.Metrics.ActualCost,
			BudgetAtCompletion: line.Metrics.BudgetAtCompletion,
		})
	}
	filtered.Totals = evm.Aggregate(inputs)
	filtered.Status = evm.ClassifyStatus(filtered.Totals.CPI, filtered.Totals.SPI)
	return filtered
}

type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

var cpiErrorThreshold = decimal.RequireFromString("0.90")

// Validate checks every line against the threshold rules: negative cost or
// schedule variance and earned value above planned value produce warnings; a
// CPI strictly between 0 and 0.90 makes the whole report invalid.
func Validate(report NineColumnReport) ValidationResult {
	result := ValidationResult{Valid: true, Errors: []string{}, Warnings: []string{}}
	for _, line := range report.Lines {
		if line.Metrics.CostVariance.IsNegative() {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: negative cost variance %s", line.Code, line.Metrics.CostVariance))
		}
		if line.Metrics.ScheduleVariance.IsNegative() {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: negative schedule variance %s", line.Code, line.Metrics.ScheduleVariance))
		}
		if line.Metrics.EarnedValue.GreaterThan(line.Metrics.PlannedValue) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("%s: earned value %s exceeds planned value %s",
					line.Code, line.Metrics.EarnedValue, line.Metrics.PlannedValue))
		}
		if line.Metrics.CPI.IsPositive() && line.Metrics.CPI.LessThan(cpiErrorThreshold) {
			result.Valid = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("%s: CPI %s below acceptable threshold 0.90", line.Code, line.Metrics.CPI))
		}
	}
	return result
}

// TrendPoint is one project level snapshot in a trend series.
type TrendPoint struct {
	Date    time.Time
	Metrics evm.Metrics
	Status  evm.PerformanceStatus
}

type Trend struct {
	ProjectID  int
	PeriodType evm.PeriodType
	Points     []TrendPoint
}

// periodEnds returns the last `count` period end dates at or before asOf,
// oldest first.
func periodEnds(asOf time.Time, period evm.PeriodType, count int) []time.Time {
	dates := make([]time.Time, count)
	cursor := asOf
	for i := count - 1; i >= 0; i-- {
		dates[i] = cursor
		switch period {
		case evm.PeriodWeekly:
			cursor = cursor.AddDate(0, 0, -7)
		case evm.PeriodQuarterly:
			cursor = cursor.AddDate(0, -3, 0)
		default:
			cursor = cursor.AddDate(0, -1, 0)
		}
	}
	return dates
}
