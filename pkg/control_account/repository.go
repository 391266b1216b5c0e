package control_account

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrControlAccountNotFound = errors.New("control account not found")
var ErrProjectNotFound = errors.New("project not found")
var ErrWorkPackageNotFound = errors.New("work package not found")

type Repo interface {
	Store(ctx context.Context, ca ControlAccount) (int, error)
	Get(ctx context.Context, id int) (ControlAccount, error)
	Update(ctx context.Context, ca ControlAccount) (bool, error)
	UpdateStatus(ctx context.Context, id int, from, to Status) (bool, error)
	ListActive(ctx context.Context, projectID int) ([]ControlAccount, error)
	ProjectExists(ctx context.Context, projectID int) (bool, error)
	StoreWorkPackage(ctx context.Context, wp WorkPackage) (int, error)
	GetWorkPackages(ctx context.Context, controlAccountID int) ([]WorkPackage, error)
	UpdateWorkPackageProgress(ctx context.Context, workPackageID int, progress decimal.Decimal) (bool, error)
	Delete(ctx context.Context, id int) (bool, error)
}

type RepoImpl struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *RepoImpl {
	return &RepoImpl{db: db}
}

const accountColumns = `id, uid, project_id, phase, code, name, manager, bac, contingency,
	management_reserve, measurement_method, status, level, is_deleted, created_by, created_at, updated_at`

func (r *RepoImpl) Store(ctx context.Context, ca ControlAccount) (int, error) {
	query := `INSERT INTO control_account (
			uid, project_id, phase, code, name, manager, bac, contingency,
			management_reserve, measurement_method, status, level, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14) RETURNING id`

	var id int
	err := r.db.QueryRow(ctx, query,
		ca.Uid,
		ca.ProjectID,
		ca.Phase,
		ca.Code,
		ca.Name,
		ca.Manager,
		ca.BudgetAtCompletion,
		ca.Contingency,
		ca.ManagementReserve,
		ca.MeasurementMethod,
		ca.Status,
		ca.Level,
		ca.CreatedBy,
		ca.CreatedAt,
	).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store control account: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (ControlAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM control_account WHERE id = $1 AND NOT is_deleted`
	ca, err := scanAccount(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ControlAccount{}, ErrControlAccountNotFound
		}
		err := fmt.Errorf("could not get control account: %w", err)
		log.Error(err)
		return ControlAccount{}, err
	}
	return ca, nil
}

func (r *RepoImpl) Update(ctx context.Context, ca ControlAccount) (bool, error) {
	query := `UPDATE control_account SET
			phase = $1, code = $2, name = $3, manager = $4, bac = $5, contingency = $6,
			management_reserve = $7, measurement_method = $8, level = $9, updated_at = $10
		WHERE id = $11 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query,
		ca.Phase, ca.Code, ca.Name, ca.Manager, ca.BudgetAtCompletion, ca.Contingency,
		ca.ManagementReserve, ca.MeasurementMethod, ca.Level, time.Now(), ca.ID)
	if err != nil {
		err := fmt.Errorf("could not update control account: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// UpdateStatus moves the account from one status to another. The from status
// is part of the WHERE clause so a concurrent transition loses the race
// instead of silently overwriting it.
func (r *RepoImpl) UpdateStatus(ctx context.Context, id int, from, to Status) (bool, error) {
	query := `UPDATE control_account SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, to, time.Now(), id, from)
	if err != nil {
		err := fmt.Errorf("could not update control account status: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) ListActive(ctx context.Context, projectID int) ([]ControlAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM control_account WHERE project_id = $1 AND NOT is_deleted ORDER BY code`
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		err := fmt.Errorf("could not query control accounts: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var accounts []ControlAccount
	for rows.Next() {
		ca, err := scanAccount(rows)
		if err != nil {
			err := fmt.Errorf("could not scan control account: %w", err)
			log.Error(err)
			return nil, err
		}
		accounts = append(accounts, ca)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return accounts, nil
}

func (r *RepoImpl) ProjectExists(ctx context.Context, projectID int) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM project WHERE id = $1 AND NOT is_deleted)`, projectID).Scan(&exists)
	if err != nil {
		err := fmt.Errorf("could not check project existence: %w", err)
		log.Error(err)
		return false, err
	}
	return exists, nil
}

func (r *RepoImpl) StoreWorkPackage(ctx context.Context, wp WorkPackage) (int, error) {
	query := `INSERT INTO work_package (control_account_id, code, name, budget, progress_percent, is_planning_package)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	var id int
	err := r.db.QueryRow(ctx, query,
		wp.ControlAccountID, wp.Code, wp.Name, wp.Budget, wp.ProgressPercent, wp.IsPlanningPackage).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store work package: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) GetWorkPackages(ctx context.Context, controlAccountID int) ([]WorkPackage, error) {
	query := `SELECT id, control_account_id, code, name, budget, progress_percent, is_planning_package
		FROM work_package WHERE control_account_id = $1 ORDER BY code`
	rows, err := r.db.Query(ctx, query, controlAccountID)
	if err != nil {
		err := fmt.Errorf("could not query work packages: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var packages []WorkPackage
	for rows.Next() {
		var wp WorkPackage
		if err := rows.Scan(&wp.ID, &wp.ControlAccountID, &wp.Code, &wp.Name, &wp.Budget, &wp.ProgressPercent, &wp.IsPlanningPackage); err != nil {
			return nil, fmt.Errorf("could not scan work package: %w", err)
		}
		packages = append(packages, wp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return packages, nil
}

func (r *RepoImpl) UpdateWorkPackageProgress(ctx context.Context, workPackageID int, progress decimal.Decimal) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE work_package SET progress_percent = $1 WHERE id = $2`, progress, workPackageID)
	if err != nil {
		err := fmt.Errorf("could not update work package progress: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) Delete(ctx context.Context, id int) (bool, error) {
	tag, err := r.db.Exec(ctx, `UPDATE control_account SET is_deleted = true, updated_at = $1 WHERE id = $2 AND NOT is_deleted`, time.Now(), id)
	if err != nil {
		err := fmt.Errorf("could not delete control account: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanAccount(row pgx.Row) (ControlAccount, error) {
	var ca ControlAccount
	err := row.Scan(
		&ca.ID,
		&ca.Uid,
		&ca.ProjectID,
		&ca.Phase,
		&ca.Code,
		&ca.Name,
		&ca.Manager,
		&ca.BudgetAtCompletion,
		&ca.Contingency,
		&ca.ManagementReserve,
		&ca.MeasurementMethod,
		&ca.Status,
		&ca.Level,
		&ca.IsDeleted,
		&ca.CreatedBy,
		&ca.CreatedAt,
		&ca.UpdatedAt,
	)
	return ca, err
}
