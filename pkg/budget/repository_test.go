package budget

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/costwise/costwise/internal/test_utils"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var db *pgxpool.Pool

var testProjectID int

func TestMain(m *testing.M) {
	var cleanup func()
	db, cleanup = test_utils.TestWithDB()
	defer cleanup()

	err := db.QueryRow(context.Background(),
		`INSERT INTO project (uid, code, name) VALUES ($1, $2, $3) RETURNING id`,
		uuid.NewString(), "P-001", "Test Project").Scan(&testProjectID)
	if err != nil {
		cleanup()
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, *RepoImpl) {
	return context.Background(), NewRepo(db)
}

func testBudget(version string) Budget {
	return Budget{
		Uid:               uuid.NewString(),
		ProjectID:         testProjectID,
		Version:           version,
		Description:       "Annual capital budget",
		TotalAmount:       d("100000"),
		Currency:          "USD",
		ContingencyAmount: d("5000"),
		ManagementReserve: d("5000"),
		Status:            StatusDraft,
		CreatedBy:         "planner-1",
		CreatedAt:         time.Now().UTC(),
	}
}

func TestRepoImpl_StoreAndGet(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	id, err := repo.Store(ctx, testBudget("store-v1"))
	require.NoError(t, err)
	_, err = repo.StoreItem(ctx, BudgetItem{
		BudgetID: id, Code: "IT-001", Description: "Steelwork",
		Quantity: d("450"), UnitRate: d("200"), Amount: d("90000"), CostType: CostTypeMaterial,
	})
	require.NoError(t, err)

	// when
	stored, err := repo.Get(ctx, id)

	// then
	require.NoError(t, err)
	assert.Equal(t, "store-v1", stored.Version)
	assert.Equal(t, StatusDraft, stored.Status)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "IT-001", stored.Items[0].Code)
	assert.True(t, stored.Items[0].Amount.Equal(d("90000")))
}

func TestRepoImpl_Store_ShouldRejectDuplicateVersion(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	_, err := repo.Store(ctx, testBudget("dup-v1"))
	require.NoError(t, err)

	// when
	_, err = repo.Store(ctx, testBudget("dup-v1"))

	// then
	assert.ErrorIs(t, err, ErrDuplicateVersion)
}

func TestRepoImpl_StoreItem_ShouldRejectDuplicateCode(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	id, err := repo.Store(ctx, testBudget("item-dup-v1"))
	require.NoError(t, err)
	item := BudgetItem{BudgetID: id, Code: "IT-001", Quantity: d("1"), UnitRate: d("100"), Amount: d("100"), CostType: CostTypeLabor}
	_, err = repo.StoreItem(ctx, item)
	require.NoError(t, err)

	// when
	_, err = repo.StoreItem(ctx, item)

	// then
	assert.ErrorIs(t, err, ErrDuplicateItemCode)
}

func TestRepoImpl_UpdateStatus_ShouldGuardOnCurrentStatus(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	id, err := repo.Store(ctx, testBudget("status-v1"))
	require.NoError(t, err)

	// when updating with a stale from-status
	updated, err := repo.UpdateStatus(ctx, id, StatusPendingApproval, StatusApproved)

	// then
	require.NoError(t, err)
	assert.False(t, updated)

	// and with the actual status
	updated, err = repo.UpdateStatus(ctx, id, StatusDraft, StatusPendingApproval)
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestRepoImpl_Submit_ShouldRecheckItemsInsideTheTransaction(t *testing.T) {
	// given a draft whose stored items drifted away from the distributable
	// amount after the caller's last read
	ctx, repo := setupTestRepository(t)
	id, err := repo.Store(ctx, testBudget("submit-drift-v1"))
	require.NoError(t, err)
	_, err = repo.StoreItem(ctx, BudgetItem{
		BudgetID: id, Code: "IT-001", Quantity: d("1"), UnitRate: d("90000"), Amount: d("90000"), CostType: CostTypeLabor,
	})
	require.NoError(t, err)
	_, err = repo.StoreItem(ctx, BudgetItem{
		BudgetID: id, Code: "IT-002", Quantity: d("1"), UnitRate: d("50000"), Amount: d("50000"), CostType: CostTypeLabor,
	})
	require.NoError(t, err)

	// when
	err = repo.Submit(ctx, id)

	// then the submit fails against the current rows and the draft stays put
	require.ErrorIs(t, err, ErrItemTotalMismatch)
	assert.Contains(t, err.Error(), "140000")
	stored, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusDraft, stored.Status)
}

func TestRepoImpl_Submit_ShouldFlipCoveredDraft(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	id, err := repo.Store(ctx, testBudget("submit-ok-v1"))
	require.NoError(t, err)
	_, err = repo.StoreItem(ctx, BudgetItem{
		BudgetID: id, Code: "IT-001", Quantity: d("1"), UnitRate: d("90000"), Amount: d("90000"), CostType: CostTypeLabor,
	})
	require.NoError(t, err)

	// when
	err = repo.Submit(ctx, id)

	// then
	require.NoError(t, err)
	stored, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingApproval, stored.Status)

	// a second submit finds no draft left to flip
	err = repo.Submit(ctx, id)
	assert.ErrorIs(t, err, ErrInvalidStatusTransition)
}

func TestRepoImpl_StoreItem_ShouldRejectWritesOutsideDraft(t *testing.T) {
	// given a submitted budget
	ctx, repo := setupTestRepository(t)
	id, err := repo.Store(ctx, testBudget("item-guard-v1"))
	require.NoError(t, err)
	_, err = repo.StoreItem(ctx, BudgetItem{
		BudgetID: id, Code: "IT-001", Quantity: d("1"), UnitRate: d("90000"), Amount: d("90000"), CostType: CostTypeLabor,
	})
	require.NoError(t, err)
	require.NoError(t, repo.Submit(ctx, id))

	// when an item write arrives after the status flip
	_, err = repo.StoreItem(ctx, BudgetItem{
		BudgetID: id, Code: "IT-002", Quantity: d("1"), UnitRate: d("1"), Amount: d("1"), CostType: CostTypeLabor,
	})

	// then
	assert.ErrorIs(t, err, ErrBudgetNotEditable)
}

func TestRepoImpl_SetAsBaseline_ShouldKeepSingleBaseline(t *testing.T) {
	// given two approved budgets
	ctx, repo := setupTestRepository(t)
	approve := func(version string) int {
		id, err := repo.Store(ctx, testBudget(version))
		require.NoError(t, err)
		_, err = repo.UpdateStatus(ctx, id, StatusDraft, StatusPendingApproval)
		require.NoError(t, err)
		approved, err := repo.Approve(ctx, id, "pm-1", "", time.Now().UTC())
		require.NoError(t, err)
		require.True(t, approved)
		return id
	}
	first := approve("baseline-v1")
	second := approve("baseline-v2")

	// when both are promoted in turn
	ok, err := repo.SetAsBaseline(ctx, first, testProjectID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.SetAsBaseline(ctx, second, testProjectID)
	require.NoError(t, err)
	require.True(t, ok)

	// then only the last one carries the baseline flag
	firstStored, err := repo.Get(ctx, first)
	require.NoError(t, err)
	secondStored, err := repo.Get(ctx, second)
	require.NoError(t, err)
	assert.False(t, firstStored.IsBaseline)
	assert.True(t, secondStored.IsBaseline)
	assert.Equal(t, StatusBaseline, secondStored.Status)
}

func TestRepoImpl_CreateRevision_ShouldCopyItems(t *testing.T) {
	// given an approved budget with an item
	ctx, repo := setupTestRepository(t)
	id, err := repo.Store(ctx, testBudget("revision-v1"))
	require.NoError(t, err)
	_, err = repo.StoreItem(ctx, BudgetItem{
		BudgetID: id, Code: "IT-001", Quantity: d("450"), UnitRate: d("200"), Amount: d("90000"), CostType: CostTypeMaterial,
	})
	require.NoError(t, err)

	draft := testBudget("revision-v1-R1")

	// when
	created, err := repo.CreateRevision(ctx, id, BudgetRevision{
		BudgetID: id, Number: 1, Reason: "scope change", CreatedBy: "planner-1", CreatedAt: time.Now().UTC(),
	}, draft)

	// then
	require.NoError(t, err)
	stored, err := repo.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "revision-v1-R1", stored.Version)
	require.Len(t, stored.Items, 1)
	assert.Equal(t, "IT-001", stored.Items[0].Code)

	source, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, source.Revisions, 1)
	assert.Equal(t, created.ID, source.Revisions[0].NewBudgetID)
}
