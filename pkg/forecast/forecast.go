package forecast

import (
	"time"

	"github.com/costwise/costwise/pkg/evm"
	"github.com/shopspring/decimal"
)

// Forecast is the multi-scenario cost at completion outlook for a project.
// MostLikely is the calculator's EAC; optimistic assumes remaining work runs
// at planned efficiency; pessimistic compounds cost and schedule performance;
// RiskAdjusted is the PERT weighted blend of the three.
type Forecast struct {
	ProjectID           int
	AsOf                time.Time
	OptimisticEAC       decimal.Decimal
	MostLikelyEAC       decimal.Decimal
	PessimisticEAC      decimal.Decimal
	RiskAdjustedEAC     decimal.Decimal
	EstimatedCompletion time.Time
	Confidence          int
	Recommendations     []string
}

const (
	RecommendCostControl    = "Cost performance is below plan (CPI < 0.95): review supplier commitments and tighten cost control on remaining work"
	RecommendScheduleAction = "Schedule performance is below plan (SPI < 0.95): re-sequence critical path work or add recovery measures"
	RecommendReplan         = "Required efficiency on remaining budget is unrealistic (TCPI > 1.10): re-baseline or request additional budget"
	RecommendOverrun        = "Forecast exceeds budget at completion (VAC < 0): raise a budget variance and review contingency drawdown"
)

var (
	four        = decimal.NewFromInt(4)
	six         = decimal.NewFromInt(6)
	overrunCap  = decimal.RequireFromString("1.5")
	cpiGood     = decimal.RequireFromString("0.95")
	cpiFair     = decimal.RequireFromString("0.85")
	tcpiLimit   = decimal.RequireFromString("1.10")
	pctHigh     = decimal.NewFromInt(75)
	pctLow      = decimal.NewFromInt(25)
)

// Build derives the full forecast from a set of project level metrics.
// remainingDays seeds the completion estimate when the schedule index is the
// only signal available.
func Build(m evm.Metrics, now time.Time, remainingDays int) Forecast {
	f := Forecast{
		MostLikelyEAC: m.EAC,
		OptimisticEAC: m.ActualCost.Add(m.BudgetAtCompletion.Sub(m.EarnedValue)),
	}

	// Pessimistic scenario compounds both indices; without any performance
	// signal assume a 50% overrun floor.
	composite := m.CPI.Mul(m.SPI)
	if composite.IsPositive() {
		f.PessimisticEAC = m.ActualCost.Add(m.BudgetAtCompletion.Sub(m.EarnedValue).Div(composite))
	} else {
		f.PessimisticEAC = m.BudgetAtCompletion.Mul(overrunCap)
	}

	// PERT blend: (optimistic + 4 x most likely + pessimistic) / 6
	f.RiskAdjustedEAC = f.OptimisticEAC.Add(f.MostLikelyEAC.Mul(four)).Add(f.PessimisticEAC).Div(six)

	f.EstimatedCompletion = estimateCompletion(now, m.SPI, remainingDays)
	f.Confidence = confidence(m)
	f.Recommendations = recommendations(m)
	return f
}

func estimateCompletion(now time.Time, spi decimal.Decimal, remainingDays int) time.Time {
	days := decimal.NewFromInt(int64(remainingDays))
	if spi.IsPositive() {
		days = days.Div(spi)
	}
	return now.Add(time.Duration(days.InexactFloat64() * float64(24) * float64(time.Hour)))
}

// confidence scores 0-100 starting from a neutral 50, rewarding indices close
// to 1.0 and mature progress.
func confidence(m evm.Metrics) int {
	score := 50
	score += indexTier(m.CPI)
	score += indexTier(m.SPI)
	if m.PercentComplete.GreaterThan(pctHigh) {
		score += 10
	} else if m.PercentComplete.LessThan(pctLow) {
		score -= 10
	}
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

func indexTier(index decimal.Decimal) int {
	switch {
	case index.GreaterThanOrEqual(cpiGood):
		return 20
	case index.GreaterThanOrEqual(cpiFair):
		return 10
	default:
		return -10
	}
}

// recommendations is a checklist, not a classification: every triggered rule
// appends its own recommendation.
func recommendations(m evm.Metrics) []string {
	recs := []string{}
	if m.CPI.LessThan(cpiGood) {
		recs = append(recs, RecommendCostControl)
	}
	if m.SPI.LessThan(cpiGood) {
		recs = append(recs, RecommendScheduleAction)
	}
	if m.TCPI.GreaterThan(tcpiLimit) {
		recs = append(recs, RecommendReplan)
	}
	if m.VAC.IsNegative() {
		recs = append(recs, RecommendOverrun)
	}
	return recs
}
