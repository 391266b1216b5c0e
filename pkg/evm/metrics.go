package evm

import (
	"github.com/costwise/costwise/pkg/money"
	"github.com/shopspring/decimal"
)

// PerformanceStatus classifies how far CPI and SPI drift from 1.0.
type PerformanceStatus string

const (
	StatusGood     PerformanceStatus = "good"
	StatusWarning  PerformanceStatus = "warning"
	StatusCritical PerformanceStatus = "critical"
)

// Input is one (PV, EV, AC, BAC) tuple fed to the calculator.
type Input struct {
	PlannedValue       decimal.Decimal
	EarnedValue        decimal.Decimal
	ActualCost         decimal.Decimal
	BudgetAtCompletion decimal.Decimal
}

// Metrics holds every derived earned value figure for one input tuple.
type Metrics struct {
	PlannedValue       decimal.Decimal
	EarnedValue        decimal.Decimal
	ActualCost         decimal.Decimal
	BudgetAtCompletion decimal.Decimal

	CostVariance     decimal.Decimal
	ScheduleVariance decimal.Decimal
	CPI              decimal.Decimal
	SPI              decimal.Decimal
	EAC              decimal.Decimal
	ETC              decimal.Decimal
	VAC              decimal.Decimal
	TCPI             decimal.Decimal
	PercentComplete  decimal.Decimal
	PercentSpent     decimal.Decimal
}

// Calculate derives all performance metrics from a single input tuple.
// Division by a non-positive denominator yields zero everywhere: CPI with no
// actuals and SPI with no plan are both 0 rather than NaN or infinity.
func Calculate(in Input) Metrics {
	m := Metrics{
		PlannedValue:       in.PlannedValue,
		EarnedValue:        in.EarnedValue,
		ActualCost:         in.ActualCost,
		BudgetAtCompletion: in.BudgetAtCompletion,
	}

	m.CostVariance = in.EarnedValue.Sub(in.ActualCost)
	m.ScheduleVariance = in.EarnedValue.Sub(in.PlannedValue)
	m.CPI = money.Ratio(in.EarnedValue, in.ActualCost)
	m.SPI = money.Ratio(in.EarnedValue, in.PlannedValue)

	// EAC = BAC / CPI once there is any performance data; until then the
	// forecast assumes the work completes on budget.
	if in.BudgetAtCompletion.IsPositive() && in.EarnedValue.IsPositive() && in.ActualCost.IsPositive() {
		m.EAC = in.BudgetAtCompletion.Div(m.CPI)
	} else {
		m.EAC = in.BudgetAtCompletion
	}
	m.ETC = m.EAC.Sub(in.ActualCost)
	m.VAC = in.BudgetAtCompletion.Sub(m.EAC)

	remaining := in.BudgetAtCompletion.Sub(in.ActualCost)
	m.TCPI = money.Ratio(in.BudgetAtCompletion.Sub(in.EarnedValue), remaining)

	m.PercentComplete = money.Percent(in.EarnedValue, in.BudgetAtCompletion)
	m.PercentSpent = money.Percent(in.ActualCost, in.BudgetAtCompletion)

	return m
}

// Aggregate sums the raw figures of all inputs and re-derives the indices from
// the sums. Project level CPI/SPI are ratios of totals, never averages of
// per-account ratios.
func Aggregate(inputs []Input) Metrics {
	total := Input{
		PlannedValue:       decimal.Zero,
		EarnedValue:        decimal.Zero,
		ActualCost:         decimal.Zero,
		BudgetAtCompletion: decimal.Zero,
	}
	for _, in := range inputs {
		total.PlannedValue = total.PlannedValue.Add(in.PlannedValue)
		total.EarnedValue = total.EarnedValue.Add(in.EarnedValue)
		total.ActualCost = total.ActualCost.Add(in.ActualCost)
		total.BudgetAtCompletion = total.BudgetAtCompletion.Add(in.BudgetAtCompletion)
	}
	return Calculate(total)
}

var (
	goodLow     = decimal.RequireFromString("0.95")
	goodHigh    = decimal.RequireFromString("1.05")
	warningLow  = decimal.RequireFromString("0.90")
	warningHigh = decimal.RequireFromString("1.10")
)

// ClassifyStatus maps CPI and SPI into the overall traffic light status:
// good when both sit in [0.95, 1.05], warning when both sit in [0.90, 1.10],
// critical otherwise.
func ClassifyStatus(cpi, spi decimal.Decimal) PerformanceStatus {
	within := func(v, low, high decimal.Decimal) bool {
		return v.GreaterThanOrEqual(low) && v.LessThanOrEqual(high)
	}
	if within(cpi, goodLow, goodHigh) && within(spi, goodLow, goodHigh) {
		return StatusGood
	}
	if within(cpi, warningLow, warningHigh) && within(spi, warningLow, warningHigh) {
		return StatusWarning
	}
	return StatusCritical
}
