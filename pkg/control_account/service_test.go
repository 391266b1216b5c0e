package control_account

import (
	"context"
	"testing"
	"time"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/user"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ctx = user.WithActor(context.Background(), "cam-1")

var repoStub = NewStubRepo()

var clock = &utils.MockClock{FixedNow: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}

var service Service

func setup(t *testing.T) func() {
	service = NewService(repoStub, clock)
	return func() {
		t.Log("Teardown after test")
		repoStub.Cleanup()
	}
}

func newAccount() ControlAccount {
	return ControlAccount{
		ProjectID:          1,
		Phase:              "execution",
		Code:               "CA-100",
		Name:               "Civil works",
		Manager:            "cam-1",
		BudgetAtCompletion: decimal.NewFromInt(500000),
		MeasurementMethod:  MeasurePercentComplete,
		Level:              2,
	}
}

func TestServiceImpl_Create(t *testing.T) {
	t.Run("should create account in planning status with actor stamp", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		created, err := service.Create(ctx, newAccount())

		// then
		require.NoError(t, err)
		assert.Equal(t, StatusPlanning, created.Status)
		assert.Equal(t, "cam-1", created.CreatedBy)
		assert.Equal(t, clock.FixedNow, created.CreatedAt)
		assert.NotEmpty(t, created.Uid)
	})

	t.Run("should fail for unknown project", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		ca := newAccount()
		ca.ProjectID = 99

		// when
		_, err := service.Create(ctx, ca)

		// then
		assert.ErrorIs(t, err, ErrProjectNotFound)
	})

	t.Run("should fail for invalid measurement method", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// given
		ca := newAccount()
		ca.MeasurementMethod = "guesswork"

		// when
		_, err := service.Create(ctx, ca)

		// then
		assert.ErrorIs(t, err, ErrInvalidMeasurementMethod)
	})

	t.Run("should return error when context has no actor", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		// when
		_, err := service.Create(context.Background(), newAccount())

		// then
		assert.ErrorIs(t, err, user.ErrNoActor)
	})
}

func TestServiceImpl_Transitions(t *testing.T) {
	t.Run("should walk planning -> baselined -> in progress -> closed", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		created, err := service.Create(ctx, newAccount())
		require.NoError(t, err)

		baselined, err := service.Baseline(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusBaselined, baselined.Status)

		started, err := service.Start(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusInProgress, started.Status)

		closed, err := service.Close(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, StatusClosed, closed.Status)
	})

	t.Run("should reject skipping a state", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		created, err := service.Create(ctx, newAccount())
		require.NoError(t, err)

		// planning accounts cannot start or close directly
		_, err = service.Start(ctx, created.ID)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
		_, err = service.Close(ctx, created.ID)
		assert.ErrorIs(t, err, ErrInvalidStatusTransition)
	})

	t.Run("should reject updates on a closed account", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		created, err := service.Create(ctx, newAccount())
		require.NoError(t, err)
		_, err = service.Baseline(ctx, created.ID)
		require.NoError(t, err)
		_, err = service.Start(ctx, created.ID)
		require.NoError(t, err)
		_, err = service.Close(ctx, created.ID)
		require.NoError(t, err)

		created.Name = "Renamed"
		_, err = service.Update(ctx, created)
		assert.ErrorIs(t, err, ErrAccountClosed)
	})
}

func TestServiceImpl_WorkPackages(t *testing.T) {
	t.Run("should add work package and update progress", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		created, err := service.Create(ctx, newAccount())
		require.NoError(t, err)

		wp, err := service.AddWorkPackage(ctx, WorkPackage{
			ControlAccountID: created.ID,
			Code:             "WP-100.1",
			Name:             "Foundations",
			Budget:           decimal.NewFromInt(120000),
		})
		require.NoError(t, err)

		ok, err := service.UpdateWorkPackageProgress(ctx, wp.ID, decimal.NewFromInt(40))
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := service.Get(ctx, created.ID)
		require.NoError(t, err)
		require.Len(t, got.WorkPackages, 1)
		assert.True(t, got.WorkPackages[0].ProgressPercent.Equal(decimal.NewFromInt(40)))
	})

	t.Run("should reject progress outside 0..100", func(t *testing.T) {
		teardown := setup(t)
		defer teardown()

		created, err := service.Create(ctx, newAccount())
		require.NoError(t, err)
		wp, err := service.AddWorkPackage(ctx, WorkPackage{ControlAccountID: created.ID, Code: "WP-1", Name: "x"})
		require.NoError(t, err)

		_, err = service.UpdateWorkPackageProgress(ctx, wp.ID, decimal.NewFromInt(120))
		assert.Error(t, err)
	})
}

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusPlanning.CanTransition(StatusBaselined))
	assert.True(t, StatusBaselined.CanTransition(StatusInProgress))
	assert.True(t, StatusInProgress.CanTransition(StatusClosed))

	assert.False(t, StatusPlanning.CanTransition(StatusInProgress))
	assert.False(t, StatusClosed.CanTransition(StatusInProgress))
	assert.False(t, StatusBaselined.CanTransition(StatusPlanning))
}
