package cost_item

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

var (
	ctx      = user.WithActor(context.Background(), "controls-1")
	repoStub = NewStubRepo()
	clock    = &utils.MockClock{FixedNow: time.Date(2026, 5, 10, 9, 0, 0, 0, time.UTC)}
	service  = NewService(repoStub, clock)
)

func setup(t *testing.T) func() {
	return func() {
		repoStub.Cleanup()
	}
}

func newItem(wbsCode string, planned, actual string) CostItem {
	return CostItem{
		ProjectID:     1,
		WbsCode:       wbsCode,
		Description:   "Structural steel " + wbsCode,
		Category:      "material",
		PlannedCost:   decimal.RequireFromString(planned),
		ActualCost:    decimal.RequireFromString(actual),
		CommittedCost: decimal.RequireFromString(planned),
		ForecastCost:  decimal.RequireFromString(planned),
	}
}

func TestCreateCostItem(t *testing.T) {
	t.Run("should stamp actor and creation time", func(t *testing.T) {
		defer setup(t)()

		// when
		created, err := service.Create(ctx, newItem("1.2.1", "5000", "0"))

		// then
		require.NoError(t, err)
		assert.NotZero(t, created.ID)
		assert.NotEmpty(t, created.Uid)
		assert.Equal(t, "controls-1", created.CreatedBy)
		assert.Equal(t, clock.FixedNow, created.CreatedAt)
	})

	t.Run("should reject unknown project", func(t *testing.T) {
		defer setup(t)()

		// given
		item := newItem("1.2.1", "5000", "0")
		item.ProjectID = 99

		// when
		_, err := service.Create(ctx, item)

		// then
		assert.ErrorIs(t, err, ErrProjectNotFound)
	})
}

func TestDeleteCostItem(t *testing.T) {
	t.Run("should delete an item without actuals", func(t *testing.T) {
		defer setup(t)()

		// given
		created, err := service.Create(ctx, newItem("1.2.1", "5000", "0"))
		require.NoError(t, err)

		// when
		deleted, err := service.Delete(ctx, created.ID)

		// then
		require.NoError(t, err)
		assert.True(t, deleted)
		_, err = service.Get(ctx, created.ID)
		assert.ErrorIs(t, err, ErrCostItemNotFound)
	})

	t.Run("should refuse once actual costs are booked", func(t *testing.T) {
		defer setup(t)()

		// given
		created, err := service.Create(ctx, newItem("1.2.1", "5000", "1200"))
		require.NoError(t, err)

		// when
		_, err = service.Delete(ctx, created.ID)

		// then
		assert.ErrorIs(t, err, ErrCostItemHasActuals)
		assert.ErrorContains(t, err, "1200")
		_, getErr := service.Get(ctx, created.ID)
		assert.NoError(t, getErr)
	})
}

func TestListCostItems(t *testing.T) {
	t.Run("should filter by control account", func(t *testing.T) {
		defer setup(t)()

		// given
		caOne, caTwo := 10, 20
		first := newItem("1.1", "1000", "0")
		first.ControlAccountID = &caOne
		second := newItem("1.2", "2000", "0")
		second.ControlAccountID = &caTwo
		third := newItem("1.3", "3000", "0")
		for _, item := range []CostItem{first, second, third} {
			_, err := service.Create(ctx, item)
			require.NoError(t, err)
		}

		// when
		filtered, err := service.List(ctx, 1, &caOne)

		// then
		require.NoError(t, err)
		require.Len(t, filtered, 1)
		assert.Equal(t, "1.1", filtered[0].WbsCode)

		// and all items without the filter
		all, err := service.List(ctx, 1, nil)
		require.NoError(t, err)
		assert.Len(t, all, 3)
	})
}

func TestProjectRollup(t *testing.T) {
	t.Run("should sum cost figures across items", func(t *testing.T) {
		defer setup(t)()

		// given
		first := newItem("1.1", "1000", "400")
		first.CommittedCost = decimal.RequireFromString("800")
		first.ForecastCost = decimal.RequireFromString("1100")
		second := newItem("1.2", "2000", "600")
		second.CommittedCost = decimal.RequireFromString("1500")
		second.ForecastCost = decimal.RequireFromString("1900")
		for _, item := range []CostItem{first, second} {
			_, err := service.Create(ctx, item)
			require.NoError(t, err)
		}

		// when
		rollup, err := service.ProjectRollup(ctx, 1)

		// then
		require.NoError(t, err)
		assert.Equal(t, 2, rollup.ItemCount)
		assert.True(t, rollup.PlannedCost.Equal(decimal.RequireFromString("3000")))
		assert.True(t, rollup.ActualCost.Equal(decimal.RequireFromString("1000")))
		assert.True(t, rollup.CommittedCost.Equal(decimal.RequireFromString("2300")))
		assert.True(t, rollup.ForecastCost.Equal(decimal.RequireFromString("3000")))
	})

	t.Run("should reject unknown project", func(t *testing.T) {
		defer setup(t)()

		// when
		_, err := service.ProjectRollup(ctx, 99)

		// then
		assert.ErrorIs(t, err, ErrProjectNotFound)
	})
}
