package commitment

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

var testWorkPackageA int

var testWorkPackageB int

func TestMain(m *testing.M) {
	var cleanup func()
	db, cleanup = test_utils.TestWithDB()
	defer cleanup()

	seed := func() error {
		background := context.Background()
		err := db.QueryRow(background,
			`INSERT INTO project (uid, code, name) VALUES ($1, $2, $3) RETURNING id`,
			uuid.NewString(), "P-001", "Test Project").Scan(&testProjectID)
		if err != nil {
			return err
		}
		var accountID int
		err = db.QueryRow(background,
			`INSERT INTO control_account (uid, project_id, phase, code, name, manager, measurement_method, status, created_by)
			VALUES ($1, $2, 'execution', 'CA-001', 'Civil Works', 'pm-1', 'percent_complete', 'open', 'pm-1') RETURNING id`,
			uuid.NewString(), testProjectID).Scan(&accountID)
		if err != nil {
			return err
		}
		err = db.QueryRow(background,
			`INSERT INTO work_package (control_account_id, code, name) VALUES ($1, 'WP-001', 'Foundations') RETURNING id`,
			accountID).Scan(&testWorkPackageA)
		if err != nil {
			return err
		}
		return db.QueryRow(background,
			`INSERT INTO work_package (control_account_id, code, name) VALUES ($1, 'WP-002', 'Steelwork') RETURNING id`,
			accountID).Scan(&testWorkPackageB)
	}
	if err := seed(); err != nil {
		cleanup()
		panic(err)
	}

	code := m.Run()
	os.Exit(code)
}

func setupTestRepository(t *testing.T) (context.Context, *RepoImpl) {
	return context.Background(), NewRepo(db)
}

func storedActiveCommitment(t *testing.T, ctx context.Context, repo *RepoImpl, number string) int {
	t.Helper()
	id, err := repo.Store(ctx, Commitment{
		Uid:              uuid.NewString(),
		ProjectID:        testProjectID,
		ContractorRef:    "ACME-STEEL",
		CommitmentNumber: number,
		Title:            "Structural steel supply",
		OriginalAmount:   d("1000"),
		StartDate:        time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:          time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		Status:           StatusActive,
		CreatedBy:        "buyer-1",
		CreatedAt:        time.Now().UTC(),
	})
	require.NoError(t, err)
	return id
}

func TestRepoImpl_StoreAllocation_ShouldCapAtCommittedAmount(t *testing.T) {
	// given a commitment already fully spread over one work package
	ctx, repo := setupTestRepository(t)
	id := storedActiveCommitment(t, ctx, repo, "PO-2026-101")
	_, err := repo.StoreAllocation(ctx, WorkPackageAllocation{
		CommitmentID: id, WorkPackageID: testWorkPackageA, AllocatedAmount: d("1000"),
	})
	require.NoError(t, err)

	// when one more allocation arrives
	_, err = repo.StoreAllocation(ctx, WorkPackageAllocation{
		CommitmentID: id, WorkPackageID: testWorkPackageB, AllocatedAmount: d("1"),
	})

	// then the ceiling check inside the transaction rejects it
	require.ErrorIs(t, err, ErrOverAllocation)
	stored, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.True(t, stored.AllocatedTotal().Equal(d("1000")))
}

func TestRepoImpl_StoreAllocation_ShouldSpreadWithinCommittedAmount(t *testing.T) {
	// given
	ctx, repo := setupTestRepository(t)
	id := storedActiveCommitment(t, ctx, repo, "PO-2026-102")

	// when the committed amount is split over two work packages
	_, err := repo.StoreAllocation(ctx, WorkPackageAllocation{
		CommitmentID: id, WorkPackageID: testWorkPackageA, AllocatedAmount: d("600"),
	})
	require.NoError(t, err)
	_, err = repo.StoreAllocation(ctx, WorkPackageAllocation{
		CommitmentID: id, WorkPackageID: testWorkPackageB, AllocatedAmount: d("400"),
	})

	// then
	require.NoError(t, err)
	stored, err := repo.Get(ctx, id)
	require.NoError(t, err)
	require.Len(t, stored.Allocations, 2)
	assert.True(t, stored.AllocatedTotal().Equal(d("1000")))
}

func TestRepoImpl_StoreAllocation_ShouldRejectUnknownCommitment(t *testing.T) {
	ctx, repo := setupTestRepository(t)

	_, err := repo.StoreAllocation(ctx, WorkPackageAllocation{
		CommitmentID: 999999, WorkPackageID: testWorkPackageA, AllocatedAmount: d("1"),
	})

	assert.ErrorIs(t, err, ErrCommitmentNotFound)
}
