package evm

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func TestCalculate(t *testing.T) {
	t.Run("should derive all metrics for a behind-plan over-cost account", func(t *testing.T) {
		// PV=100, EV=80, AC=100, BAC=500
		m := Calculate(Input{
			PlannedValue:       d("100"),
			EarnedValue:        d("80"),
			ActualCost:         d("100"),
			BudgetAtCompletion: d("500"),
		})

		assert.True(t, m.CostVariance.Equal(d("-20")), "CV = %s", m.CostVariance)
		assert.True(t, m.ScheduleVariance.Equal(d("-20")), "SV = %s", m.ScheduleVariance)
		assert.True(t, m.CPI.Equal(d("0.8")), "CPI = %s", m.CPI)
		assert.True(t, m.SPI.Equal(d("0.8")), "SPI = %s", m.SPI)
		assert.True(t, m.EAC.Equal(d("625")), "EAC = %s", m.EAC)
		assert.True(t, m.ETC.Equal(d("525")), "ETC = %s", m.ETC)
		assert.True(t, m.VAC.Equal(d("-125")), "VAC = %s", m.VAC)
		assert.True(t, m.TCPI.Equal(d("1.05")), "TCPI = %s", m.TCPI)
		assert.True(t, m.PercentComplete.Equal(d("16")), "percent complete = %s", m.PercentComplete)
		assert.True(t, m.PercentSpent.Equal(d("20")), "percent spent = %s", m.PercentSpent)
	})

	t.Run("should return zero CPI when there is no actual cost", func(t *testing.T) {
		m := Calculate(Input{
			PlannedValue:       d("100"),
			EarnedValue:        d("80"),
			ActualCost:         decimal.Zero,
			BudgetAtCompletion: d("500"),
		})
		assert.True(t, m.CPI.IsZero())
	})

	t.Run("should return zero SPI when there is no planned value", func(t *testing.T) {
		m := Calculate(Input{
			PlannedValue:       decimal.Zero,
			EarnedValue:        d("80"),
			ActualCost:         d("100"),
			BudgetAtCompletion: d("500"),
		})
		assert.True(t, m.SPI.IsZero())
	})

	t.Run("should fall back to EAC = BAC before any performance data", func(t *testing.T) {
		m := Calculate(Input{
			PlannedValue:       d("100"),
			EarnedValue:        decimal.Zero,
			ActualCost:         decimal.Zero,
			BudgetAtCompletion: d("500"),
		})
		assert.True(t, m.EAC.Equal(d("500")))
		assert.True(t, m.VAC.IsZero())
	})

	t.Run("should satisfy EAC x CPI = BAC when performance data exists", func(t *testing.T) {
		cases := []Input{
			{PlannedValue: d("100"), EarnedValue: d("80"), ActualCost: d("100"), BudgetAtCompletion: d("500")},
			{PlannedValue: d("250"), EarnedValue: d("300"), ActualCost: d("280"), BudgetAtCompletion: d("1000")},
			{PlannedValue: d("33"), EarnedValue: d("17"), ActualCost: d("29"), BudgetAtCompletion: d("777")},
		}
		epsilon := d("0.000001")
		for _, in := range cases {
			m := Calculate(in)
			diff := m.EAC.Mul(m.CPI).Sub(in.BudgetAtCompletion).Abs()
			assert.True(t, diff.LessThan(epsilon), "EAC*CPI-BAC = %s for input %+v", diff, in)
		}
	})

	t.Run("should return zero TCPI when the budget is already spent", func(t *testing.T) {
		m := Calculate(Input{
			PlannedValue:       d("500"),
			EarnedValue:        d("400"),
			ActualCost:         d("500"),
			BudgetAtCompletion: d("500"),
		})
		assert.True(t, m.TCPI.IsZero())
	})
}

func TestAggregate(t *testing.T) {
	t.Run("should derive indices from sums, not average ratios", func(t *testing.T) {
		// account 1 runs at CPI 2.0, account 2 at CPI 0.5; the accounts are
		// sized so that the ratio of sums differs from the average of ratios
		inputs := []Input{
			{PlannedValue: d("100"), EarnedValue: d("200"), ActualCost: d("100"), BudgetAtCompletion: d("300")},
			{PlannedValue: d("1000"), EarnedValue: d("500"), ActualCost: d("1000"), BudgetAtCompletion: d("2000")},
		}
		m := Aggregate(inputs)
		// totals: EV=700, AC=1100, PV=1100, BAC=2300
		assert.True(t, m.CPI.Equal(d("700").Div(d("1100"))), "CPI = %s", m.CPI)
		assert.True(t, m.SPI.Equal(d("700").Div(d("1100"))), "SPI = %s", m.SPI)
		assert.True(t, m.BudgetAtCompletion.Equal(d("2300")))
	})

	t.Run("should return zeroes for no inputs", func(t *testing.T) {
		m := Aggregate(nil)
		assert.True(t, m.CPI.IsZero())
		assert.True(t, m.SPI.IsZero())
		assert.True(t, m.EAC.IsZero())
	})
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		name string
		cpi  string
		spi  string
		want PerformanceStatus
	}{
		{"both on plan", "1.0", "1.0", StatusGood},
		{"both at good boundary", "0.95", "1.05", StatusGood},
		{"cost slightly off", "0.93", "1.0", StatusWarning},
		{"both at warning boundary", "0.90", "1.10", StatusWarning},
		{"cost critical", "0.85", "1.0", StatusCritical},
		{"schedule critical", "1.0", "1.2", StatusCritical},
		{"no data", "0", "0", StatusCritical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ClassifyStatus(d(tt.cpi), d(tt.spi))
			assert.Equal(t, tt.want, got)
		})
	}
}
