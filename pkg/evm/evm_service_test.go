package evm

import (
	"context"
	"testing"
	"time"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/control_account"
	"github.com/costwise/costwise/pkg/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = user.WithActor(context.Background(), "controls-1")

var repoStub = NewStubRepo()

var accountsStub = control_account.NewStubRepo()

var clock = &utils.MockClock{FixedNow: time.Date(2026, 6, 15, 9, 0, 0, 0, time.UTC)}

var service Service

func setup(t *testing.T) func() {
	service = NewService(repoStub, accountsStub, clock)
	return func() {
		t.Log("Teardown after test")
		repoStub.Cleanup()
		accountsStub.Cleanup()
	}
}

func storedAccount(t *testing.T, code string) control_account.ControlAccount {
	t.Helper()
	ca := control_account.ControlAccount{
		ProjectID:          1,
		Code:               code,
		Name:               "Account " + code,
		BudgetAtCompletion: d("500"),
		MeasurementMethod:  control_account.MeasurePercentComplete,
		Status:             control_account.StatusInProgress,
		Level:              2,
	}
	id, err := accountsStub.Store(context.Background(), ca)
	require.NoError(t, err)
	ca.ID = id
	return ca
}

func observation(accountID int, dataDate time.Time) EVMRecord {
	return EVMRecord{
		ControlAccountID:   accountID,
		DataDate:           dataDate,
		PeriodType:         PeriodMonthly,
		PlannedValue:       d("100"),
		EarnedValue:        d("80"),
		ActualCost:         d("100"),
		BudgetAtCompletion: d("500"),
	}
}

func TestServiceImpl_Record(t *testing.T) {
	dataDate := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)

	t.Run("should record an observation with actor and clock stamps", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca := storedAccount(t, "CA-100")

		rec, err := service.Record(ctx, observation(ca.ID, dataDate))

		require.NoError(t, err)
		assert.Equal(t, "controls-1", rec.CreatedBy)
		assert.Equal(t, clock.FixedNow, rec.CreatedAt)
		assert.False(t, rec.IsApproved)
	})

	t.Run("should reject a duplicate (account, date, period) observation", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca := storedAccount(t, "CA-100")

		_, err := service.Record(ctx, observation(ca.ID, dataDate))
		require.NoError(t, err)
		_, err = service.Record(ctx, observation(ca.ID, dataDate))

		assert.ErrorIs(t, err, ErrDuplicateRecord)
	})

	t.Run("should reject unknown control account", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.Record(ctx, observation(999, dataDate))

		assert.ErrorIs(t, err, control_account.ErrControlAccountNotFound)
	})

	t.Run("should reject negative figures and bad period types", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca := storedAccount(t, "CA-100")

		rec := observation(ca.ID, dataDate)
		rec.ActualCost = d("-1")
		_, err := service.Record(ctx, rec)
		assert.ErrorIs(t, err, ErrNegativeFigure)

		rec = observation(ca.ID, dataDate)
		rec.PeriodType = "fortnightly"
		_, err = service.Record(ctx, rec)
		assert.ErrorIs(t, err, ErrInvalidPeriodType)
	})
}

func TestServiceImpl_Approve(t *testing.T) {
	dataDate := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)

	t.Run("should freeze the record with an audit stamp", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca := storedAccount(t, "CA-100")
		rec, err := service.Record(ctx, observation(ca.ID, dataDate))
		require.NoError(t, err)

		approved, err := service.Approve(ctx, rec.ID)

		require.NoError(t, err)
		assert.True(t, approved.IsApproved)
		assert.Equal(t, "controls-1", approved.ApprovedBy)
		assert.Equal(t, clock.FixedNow, approved.ApprovedAt)
	})

	t.Run("should reject updates and second approvals once approved", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca := storedAccount(t, "CA-100")
		rec, err := service.Record(ctx, observation(ca.ID, dataDate))
		require.NoError(t, err)
		_, err = service.Approve(ctx, rec.ID)
		require.NoError(t, err)

		rec.EarnedValue = d("90")
		_, err = service.Update(ctx, rec)
		assert.ErrorIs(t, err, ErrRecordApproved)

		_, err = service.Approve(ctx, rec.ID)
		assert.ErrorIs(t, err, ErrRecordApproved)
	})
}

func TestServiceImpl_GetProjectPerformance(t *testing.T) {
	may := time.Date(2026, 5, 31, 0, 0, 0, 0, time.UTC)
	june := time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC)

	t.Run("should roll up only the latest record per account at or before asOf", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca1 := storedAccount(t, "CA-100")
		ca2 := storedAccount(t, "CA-200")

		// ca1 has records for May and June; only May counts for a May report
		_, err := service.Record(ctx, observation(ca1.ID, may))
		require.NoError(t, err)
		juneRec := observation(ca1.ID, june)
		juneRec.EarnedValue = d("400")
		_, err = service.Record(ctx, juneRec)
		require.NoError(t, err)

		rec2 := observation(ca2.ID, may)
		rec2.PlannedValue = d("200")
		rec2.EarnedValue = d("220")
		rec2.ActualCost = d("200")
		rec2.BudgetAtCompletion = d("1000")
		_, err = service.Record(ctx, rec2)
		require.NoError(t, err)

		report, err := service.GetProjectPerformance(ctx, 1, may)

		require.NoError(t, err)
		require.Len(t, report.Accounts, 2)
		assert.True(t, report.Totals.PlannedValue.Equal(d("300")))
		assert.True(t, report.Totals.EarnedValue.Equal(d("300")))
		assert.True(t, report.Totals.ActualCost.Equal(d("300")))
		assert.True(t, report.Totals.BudgetAtCompletion.Equal(d("1500")))
		assert.True(t, report.Totals.CPI.Equal(d("1")))
		assert.Equal(t, StatusGood, report.Status)
	})

	t.Run("should skip accounts without a record at or before the date", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()
		ca1 := storedAccount(t, "CA-100")
		storedAccount(t, "CA-200") // no records

		_, err := service.Record(ctx, observation(ca1.ID, may))
		require.NoError(t, err)

		report, err := service.GetProjectPerformance(ctx, 1, may)

		require.NoError(t, err)
		assert.Len(t, report.Accounts, 1)
		assert.True(t, report.Totals.BudgetAtCompletion.Equal(d("500")))
	})

	t.Run("should fail hard for an unknown project", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		_, err := service.GetProjectPerformance(ctx, 42, may)

		assert.ErrorIs(t, err, control_account.ErrProjectNotFound)
	})

	t.Run("should return an empty report for a project without accounts", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		report, err := service.GetProjectPerformance(ctx, 1, may)

		require.NoError(t, err)
		assert.Empty(t, report.Accounts)
		assert.True(t, report.Totals.PlannedValue.Equal(decimal.Zero))
	})
}
