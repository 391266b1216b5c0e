package forecast

import (
	"testing"
	"time"

	"github.com/costwise/costwise/pkg/evm"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var now = time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC)

func metricsFor(pv, ev, ac, bac string) evm.Metrics {
	return evm.Calculate(evm.Input{
		PlannedValue:       d(pv),
		EarnedValue:        d(ev),
		ActualCost:         d(ac),
		BudgetAtCompletion: d(bac),
	})
}

func TestBuild(t *testing.T) {
	t.Run("should compute all EAC scenarios for an underperforming project", func(t *testing.T) {
		// CPI = SPI = 0.8
		m := metricsFor("100", "80", "100", "500")

		f := Build(m, now, 180)

		// optimistic: AC + (BAC - EV) = 100 + 420 = 520
		assert.True(t, f.OptimisticEAC.Equal(d("520")), "optimistic = %s", f.OptimisticEAC)
		// most likely: BAC / CPI = 625
		assert.True(t, f.MostLikelyEAC.Equal(d("625")), "mostLikely = %s", f.MostLikelyEAC)
		// pessimistic: AC + (BAC - EV) / (0.8 * 0.8) = 100 + 420/0.64 = 756.25
		assert.True(t, f.PessimisticEAC.Equal(d("756.25")), "pessimistic = %s", f.PessimisticEAC)
		// PERT: (520 + 4*625 + 756.25) / 6
		expected := d("520").Add(d("2500")).Add(d("756.25")).Div(d("6"))
		assert.True(t, f.RiskAdjustedEAC.Equal(expected), "riskAdjusted = %s", f.RiskAdjustedEAC)
	})

	t.Run("should floor pessimistic at 150% of budget without performance data", func(t *testing.T) {
		m := metricsFor("0", "0", "0", "1000")

		f := Build(m, now, 180)

		assert.True(t, f.PessimisticEAC.Equal(d("1500")))
	})

	t.Run("risk adjusted EAC always lies within the scenario envelope", func(t *testing.T) {
		cases := []evm.Metrics{
			metricsFor("100", "80", "100", "500"),
			metricsFor("100", "120", "90", "500"),
			metricsFor("300", "300", "300", "900"),
			metricsFor("50", "10", "80", "400"),
		}
		for _, m := range cases {
			f := Build(m, now, 180)
			low := decimal.Min(f.OptimisticEAC, f.PessimisticEAC)
			high := decimal.Max(f.OptimisticEAC, f.PessimisticEAC)
			// the blend includes the most likely value, so widen the envelope with it
			low = decimal.Min(low, f.MostLikelyEAC)
			high = decimal.Max(high, f.MostLikelyEAC)
			assert.True(t, f.RiskAdjustedEAC.GreaterThanOrEqual(low), "riskAdjusted %s below %s", f.RiskAdjustedEAC, low)
			assert.True(t, f.RiskAdjustedEAC.LessThanOrEqual(high), "riskAdjusted %s above %s", f.RiskAdjustedEAC, high)
		}
	})

	t.Run("should stretch the completion date by the schedule index", func(t *testing.T) {
		m := metricsFor("100", "80", "100", "500") // SPI 0.8

		f := Build(m, now, 180)

		// 180 / 0.8 = 225 days
		assert.Equal(t, now.Add(225*24*time.Hour), f.EstimatedCompletion)
	})

	t.Run("should fall back to the default window when SPI is zero", func(t *testing.T) {
		m := metricsFor("0", "0", "100", "500")

		f := Build(m, now, 180)

		assert.Equal(t, now.Add(180*24*time.Hour), f.EstimatedCompletion)
	})

	t.Run("should score high confidence for a healthy mature project", func(t *testing.T) {
		// CPI = SPI = 1.0, 80% complete
		m := metricsFor("400", "400", "400", "500")

		f := Build(m, now, 180)

		// 50 + 20 + 20 + 10 = 100
		assert.Equal(t, 100, f.Confidence)
	})

	t.Run("should penalize every signal on a failing early project", func(t *testing.T) {
		// CPI and SPI far below 0.85, under 25% complete: 50 - 10 - 10 - 10
		m := metricsFor("100", "20", "100", "500")

		f := Build(m, now, 180)

		assert.Equal(t, 20, f.Confidence)
	})

	t.Run("should append one recommendation per triggered rule", func(t *testing.T) {
		// CPI 0.8, SPI 0.8, VAC negative, TCPI above 1.10
		m := metricsFor("200", "160", "200", "500")

		f := Build(m, now, 180)

		assert.Contains(t, f.Recommendations, RecommendCostControl)
		assert.Contains(t, f.Recommendations, RecommendScheduleAction)
		assert.Contains(t, f.Recommendations, RecommendReplan)
		assert.Contains(t, f.Recommendations, RecommendOverrun)
		assert.Len(t, f.Recommendations, 4)
	})

	t.Run("should return no recommendations for a healthy project", func(t *testing.T) {
		m := metricsFor("400", "400", "400", "500")

		f := Build(m, now, 180)

		assert.Empty(t, f.Recommendations)
	})
}
