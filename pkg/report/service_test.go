package report

import (
	"context"
	"testing"
	"time"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/control_account"
	"github.com/costwise/costwise/pkg/evm"
	"github.com/costwise/costwise/pkg/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

var ctx = user.WithActor(context.Background(), "controls-1")

var recordsStub = evm.NewStubRepo()

var accountsStub = control_account.NewStubRepo()

var clock = &utils.MockClock{FixedNow: time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)}

var service Service

func setup(t *testing.T) func() {
	evmService := evm.NewService(recordsStub, accountsStub, clock)
	service = NewService(accountsStub, recordsStub, evmService, 6)
	return func() {
		t.Log("Teardown after test")
		recordsStub.Cleanup()
		accountsStub.Cleanup()
	}
}

var reportDate = time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)

func storedAccount(t *testing.T, code string, level int, bac string) control_account.ControlAccount {
	t.Helper()
	ca := control_account.ControlAccount{
		ProjectID:          1,
		Code:               code,
		Name:               "Account " + code,
		BudgetAtCompletion: d(bac),
		MeasurementMethod:  control_account.MeasurePercentComplete,
		Status:             control_account.StatusInProgress,
		Level:              level,
	}
	id, err := accountsStub.Store(context.Background(), ca)
	require.NoError(t, err)
	ca.ID = id
	return ca
}

func storedRecord(t *testing.T, accountID int, pv, ev, ac, bac string) {
	t.Helper()
	_, err := recordsStub.Store(context.Background(), evm.EVMRecord{
		ControlAccountID:   accountID,
		DataDate:           reportDate,
		PeriodType:         evm.PeriodMonthly,
		PlannedValue:       d(pv),
		EarnedValue:        d(ev),
		ActualCost:         d(ac),
		BudgetAtCompletion: d(bac),
	})
	require.NoError(t, err)
}

func TestServiceImpl_GetNineColumnReport(t *testing.T) {
	t.Run("should fall back to the account budget as planned value without a record", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		storedAccount(t, "CA-100", 2, "500")

		report, err := service.GetNineColumnReport(ctx, 1, reportDate, Filter{})

		require.NoError(t, err)
		require.Len(t, report.Lines, 1)
		line := report.Lines[0]
		assert.False(t, line.HasRecord)
		assert.True(t, line.Metrics.PlannedValue.Equal(d("500")))
		assert.True(t, line.Metrics.EarnedValue.IsZero())
		assert.True(t, line.Metrics.ActualCost.IsZero())
	})

	t.Run("should aggregate totals then derive project indices", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca1 := storedAccount(t, "CA-100", 2, "500")
		ca2 := storedAccount(t, "CA-200", 2, "1000")
		storedRecord(t, ca1.ID, "100", "80", "100", "500")
		storedRecord(t, ca2.ID, "200", "220", "200", "1000")

		report, err := service.GetNineColumnReport(ctx, 1, reportDate, Filter{})

		require.NoError(t, err)
		require.Len(t, report.Lines, 2)
		assert.True(t, report.Totals.EarnedValue.Equal(d("300")))
		assert.True(t, report.Totals.CPI.Equal(d("1")))
	})

	t.Run("variance-only filter recomputes totals from the surviving lines", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca1 := storedAccount(t, "CA-100", 2, "500")
		ca2 := storedAccount(t, "CA-200", 2, "1000")
		storedRecord(t, ca1.ID, "100", "80", "100", "500")   // CV and SV negative
		storedRecord(t, ca2.ID, "200", "220", "200", "1000") // on plan

		report, err := service.GetNineColumnReport(ctx, 1, reportDate, Filter{VarianceOnly: true})

		require.NoError(t, err)
		require.Len(t, report.Lines, 1)
		assert.Equal(t, "CA-100", report.Lines[0].Code)
		// totals are those of the filtered line only
		assert.True(t, report.Totals.EarnedValue.Equal(d("80")))
		assert.True(t, report.Totals.ActualCost.Equal(d("100")))
		assert.True(t, report.Totals.CPI.Equal(d("0.8")))
	})

	t.Run("should filter by level range and account id set", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca1 := storedAccount(t, "CA-100", 1, "500")
		ca2 := storedAccount(t, "CA-200", 3, "1000")
		storedRecord(t, ca1.ID, "100", "100", "100", "500")
		storedRecord(t, ca2.ID, "200", "200", "200", "1000")

		byLevel, err := service.GetNineColumnReport(ctx, 1, reportDate, Filter{MinLevel: 2})
		require.NoError(t, err)
		require.Len(t, byLevel.Lines, 1)
		assert.Equal(t, "CA-200", byLevel.Lines[0].Code)

		byId, err := service.GetNineColumnReport(ctx, 1, reportDate, Filter{ControlAccountIDs: []int{ca1.ID}})
		require.NoError(t, err)
		require.Len(t, byId.Lines, 1)
		assert.Equal(t, "CA-100", byId.Lines[0].Code)
	})

	t.Run("should fail hard for an unknown project", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.GetNineColumnReport(ctx, 42, reportDate, Filter{})

		assert.ErrorIs(t, err, control_account.ErrProjectNotFound)
	})
}

func TestValidate(t *testing.T) {
	t.Run("should warn on negative variances and EV above PV", func(t *testing.T) {
		report := NineColumnReport{Lines: []Line{
			{Code: "CA-100", Metrics: evm.Calculate(evm.Input{
				PlannedValue: d("100"), EarnedValue: d("95"), ActualCost: d("98"), BudgetAtCompletion: d("500"),
			})},
			{Code: "CA-200", Metrics: evm.Calculate(evm.Input{
				PlannedValue: d("100"), EarnedValue: d("110"), ActualCost: d("100"), BudgetAtCompletion: d("500"),
			})},
		}}

		result := Validate(report)

		assert.True(t, result.Valid)
		// CA-100: negative CV and SV; CA-200: EV > PV
		assert.Len(t, result.Warnings, 3)
		assert.Empty(t, result.Errors)
	})

	t.Run("should invalidate the report for CPI below 0.90", func(t *testing.T) {
		report := NineColumnReport{Lines: []Line{
			{Code: "CA-100", Metrics: evm.Calculate(evm.Input{
				PlannedValue: d("100"), EarnedValue: d("80"), ActualCost: d("100"), BudgetAtCompletion: d("500"),
			})},
		}}

		result := Validate(report)

		assert.False(t, result.Valid)
		require.Len(t, result.Errors, 1)
		assert.Contains(t, result.Errors[0], "CA-100")
	})

	t.Run("zero CPI means no data and is not an error", func(t *testing.T) {
		report := NineColumnReport{Lines: []Line{
			{Code: "CA-100", Metrics: evm.Calculate(evm.Input{
				PlannedValue: d("500"), BudgetAtCompletion: d("500"),
			})},
		}}

		result := Validate(report)

		assert.True(t, result.Valid)
	})
}

func TestServiceImpl_GetTrend(t *testing.T) {
	t.Run("should produce one point per period, oldest first", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca := storedAccount(t, "CA-100", 2, "500")
		storedRecord(t, ca.ID, "100", "80", "100", "500")

		trend, err := service.GetTrend(ctx, 1, evm.PeriodMonthly, 3, reportDate)

		require.NoError(t, err)
		require.Len(t, trend.Points, 3)
		assert.True(t, trend.Points[0].Date.Before(trend.Points[1].Date))
		assert.True(t, trend.Points[1].Date.Before(trend.Points[2].Date))
		assert.Equal(t, reportDate, trend.Points[2].Date)
		// only the newest point sees the record
		assert.True(t, trend.Points[0].Metrics.EarnedValue.IsZero())
		assert.True(t, trend.Points[2].Metrics.EarnedValue.Equal(d("80")))
	})
}

func TestServiceImpl_GetHealthCheck(t *testing.T) {
	t.Run("should raise critical alerts for a badly overrunning project", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca := storedAccount(t, "CA-100", 2, "500")
		storedRecord(t, ca.ID, "100", "80", "100", "500") // CPI 0.8, EAC 625 > 550

		hc, err := service.GetHealthCheck(ctx, 1, reportDate)

		require.NoError(t, err)
		assert.False(t, hc.Healthy)
		var metrics []string
		for _, a := range hc.Alerts {
			if a.Severity == SeverityCritical {
				metrics = append(metrics, a.Metric)
			}
		}
		assert.ElementsMatch(t, []string{"CPI", "SPI", "EAC"}, metrics)
	})

	t.Run("should be healthy on plan", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca := storedAccount(t, "CA-100", 2, "500")
		storedRecord(t, ca.ID, "100", "100", "100", "500")

		hc, err := service.GetHealthCheck(ctx, 1, reportDate)

		require.NoError(t, err)
		assert.True(t, hc.Healthy)
		assert.Empty(t, hc.Alerts)
	})

	t.Run("should not alert before any progress is recorded", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		// CPI and SPI are zero while no value has been earned yet, meaning
		// no data rather than a critically low index
		storedAccount(t, "CA-100", 2, "500")

		hc, err := service.GetHealthCheck(ctx, 1, reportDate)

		require.NoError(t, err)
		assert.True(t, hc.Healthy)
		assert.Empty(t, hc.Alerts)
	})
}
