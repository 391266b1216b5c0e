package cost_item

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrCostItemNotFound = errors.New("cost item not found")
var ErrProjectNotFound = errors.New("project not found")

type Repo interface {
	Store(ctx context.Context, item CostItem) (int, error)
	Get(ctx context.Context, id int) (CostItem, error)
	Update(ctx context.Context, item CostItem) (bool, error)
	List(ctx context.Context, projectID int, controlAccountID *int) ([]CostItem, error)
	ProjectExists(ctx context.Context, projectID int) (bool, error)
	Delete(ctx context.Context, id int) (bool, error)
}

type RepoImpl struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *RepoImpl {
	return &RepoImpl{db: db}
}

const costItemColumns = `id, uid, project_id, control_account_id, wbs_code, description, category,
	planned_cost, actual_cost, committed_cost, forecast_cost, is_deleted, created_by, created_at, updated_at`

func (r *RepoImpl) Store(ctx context.Context, item CostItem) (int, error) {
	query := `INSERT INTO cost_item (
			uid, project_id, control_account_id, wbs_code, description, category,
			planned_cost, actual_cost, committed_cost, forecast_cost, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $12) RETURNING id`

	var id int
	err := r.db.QueryRow(ctx, query,
		item.Uid,
		item.ProjectID,
		item.ControlAccountID,
		item.WbsCode,
		item.Description,
		item.Category,
		item.PlannedCost,
		item.ActualCost,
		item.CommittedCost,
		item.ForecastCost,
		item.CreatedBy,
		item.CreatedAt,
	).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store cost item: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (CostItem, error) {
	query := `SELECT ` + costItemColumns + ` FROM cost_item WHERE id = $1 AND NOT is_deleted`
	item, err := scanCostItem(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CostItem{}, ErrCostItemNotFound
		}
		err := fmt.Errorf("could not get cost item: %w", err)
		log.Error(err)
		return CostItem{}, err
	}
	return item, nil
}

func (r *RepoImpl) Update(ctx context.Context, item CostItem) (bool, error) {
	query := `UPDATE cost_item SET
			control_account_id = $1, wbs_code = $2, description = $3, category = $4,
			planned_cost = $5, actual_cost = $6, committed_cost = $7, forecast_cost = $8, updated_at = $9
		WHERE id = $10 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query,
		item.ControlAccountID, item.WbsCode, item.Description, item.Category,
		item.PlannedCost, item.ActualCost, item.CommittedCost, item.ForecastCost, time.Now(), item.ID)
	if err != nil {
		err := fmt.Errorf("could not update cost item: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) List(ctx context.Context, projectID int, controlAccountID *int) ([]CostItem, error) {
	query := `SELECT ` + costItemColumns + ` FROM cost_item
		WHERE project_id = $1 AND ($2::int IS NULL OR control_account_id = $2) AND NOT is_deleted
		ORDER BY wbs_code, id`
	rows, err := r.db.Query(ctx, query, projectID, controlAccountID)
	if err != nil {
		err := fmt.Errorf("could not query cost items: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var items []CostItem
	for rows.Next() {
		item, err := scanCostItem(rows)
		if err != nil {
			err := fmt.Errorf("could not scan cost item: %w", err)
			log.Error(err)
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return items, nil
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

// Delete soft-deletes a cost line that has no recorded actuals. The guard sits
// in the WHERE clause.
func (r *RepoImpl) Delete(ctx context.Context, id int) (bool, error) {
	query := `UPDATE cost_item SET is_deleted = true, updated_at = $1
		WHERE id = $2 AND actual_cost = 0 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, time.Now(), id)
	if err != nil {
		err := fmt.Errorf("could not delete cost item: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanCostItem(row pgx.Row) (CostItem, error) {
	var item CostItem
	err := row.Scan(
		&item.ID,
		&item.Uid,
		&item.ProjectID,
		&item.ControlAccountID,
		&item.WbsCode,
		&item.Description,
		&item.Category,
		&item.PlannedCost,
		&item.ActualCost,
		&item.CommittedCost,
		&item.ForecastCost,
		&item.IsDeleted,
		&item.CreatedBy,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	return item, err
}
