package budget

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

var ErrBudgetNotFound = errors.New("budget not found")
var ErrItemNotFound = errors.New("budget item not found")
var ErrDuplicateVersion = errors.New("budget version already exists for this project")
var ErrDuplicateItemCode = errors.New("budget item code already exists in this budget")

const pgUniqueViolation = "23505"

type Repo interface {
	Store(ctx context.Context, b Budget) (int, error)
	Get(ctx context.Context, id int) (Budget, error)
	Update(ctx context.Context, b Budget) (bool, error)
	UpdateStatus(ctx context.Context, id int, from, to Status) (bool, error)
	Submit(ctx context.Context, id int) error
	Approve(ctx context.Context, id int, approver, comments string, at time.Time) (bool, error)
	Reject(ctx context.Context, id int, approver, reason string, at time.Time) (bool, error)
	SetAsBaseline(ctx context.Context, id, projectID int) (bool, error)
	Lock(ctx context.Context, id int) (bool, error)
	CreateRevision(ctx context.Context, sourceID int, revision BudgetRevision, draft Budget) (Budget, error)
	ListByProject(ctx context.Context, projectID int) ([]Budget, error)
	ProjectExists(ctx context.Context, projectID int) (bool, error)
	StoreItem(ctx context.Context, item BudgetItem) (int, error)
	UpdateItem(ctx context.Context, item BudgetItem) (bool, error)
	RemoveItem(ctx context.Context, itemID int) (bool, error)
	Delete(ctx context.Context, id int) (bool, error)
}

type RepoImpl struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *RepoImpl {
	return &RepoImpl{db: db}
}

const budgetColumns = `id, uid, project_id, version, description, total_amount, currency,
	contingency_amount, management_reserve, status, is_baseline, is_locked,
	approved_by, approved_at, approval_comments, rejected_by, rejected_at, rejection_reason,
	is_deleted, created_by, created_at, updated_at`

func (r *RepoImpl) Store(ctx context.Context, b Budget) (int, error) {
	query := `INSERT INTO budget (
			uid, project_id, version, description, total_amount, currency,
			contingency_amount, management_reserve, status, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11) RETURNING id`

	var id int
	err := r.db.QueryRow(ctx, query,
		b.Uid,
		b.ProjectID,
		b.Version,
		b.Description,
		b.TotalAmount,
		b.Currency,
		b.ContingencyAmount,
		b.ManagementReserve,
		b.Status,
		b.CreatedBy,
		b.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, ErrDuplicateVersion
		}
		err := fmt.Errorf("could not store budget: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

// Get loads the budget with its non-deleted items and its revision history.
func (r *RepoImpl) Get(ctx context.Context, id int) (Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budget WHERE id = $1 AND NOT is_deleted`
	b, err := scanBudget(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Budget{}, ErrBudgetNotFound
		}
		err := fmt.Errorf("could not get budget: %w", err)
		log.Error(err)
		return Budget{}, err
	}
	if b.Items, err = r.items(ctx, id); err != nil {
		return Budget{}, err
	}
	if b.Revisions, err = r.revisions(ctx, id); err != nil {
		return Budget{}, err
	}
	return b, nil
}

// Update writes the header fields only. The draft guard lives in the WHERE
// clause so a concurrent submit cannot interleave with an edit.
func (r *RepoImpl) Update(ctx context.Context, b Budget) (bool, error) {
	query := `UPDATE budget SET
			version = $1, description = $2, total_amount = $3, currency = $4,
			contingency_amount = $5, management_reserve = $6, updated_at = $7
		WHERE id = $8 AND status = $9 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query,
		b.Version, b.Description, b.TotalAmount, b.Currency,
		b.ContingencyAmount, b.ManagementReserve, time.Now(), b.ID, StatusDraft)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return false, ErrDuplicateVersion
		}
		err := fmt.Errorf("could not update budget: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) UpdateStatus(ctx context.Context, id int, from, to Status) (bool, error) {
	query := `UPDATE budget SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, to, time.Now(), id, from)
	if err != nil {
		err := fmt.Errorf("could not update budget status: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Submit re-reads the budget and its items and flips the draft to pending
// approval inside one serializable transaction, so an item written between
// the coverage check and the status change cannot slip through.
func (r *RepoImpl) Submit(ctx context.Context, id int) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var total, contingency, reserve decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT total_amount, contingency_amount, management_reserve FROM budget WHERE id = $1 AND NOT is_deleted`,
		id).Scan(&total, &contingency, &reserve)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrBudgetNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not read budget for submit: %w", err)
		log.Error(err)
		return err
	}

	var itemCount int
	var itemTotal decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM budget_item WHERE budget_id = $1 AND NOT is_deleted`,
		id).Scan(&itemCount, &itemTotal)
	if err != nil {
		err := fmt.Errorf("could not read budget items for submit: %w", err)
		log.Error(err)
		return err
	}

	if err := checkItemCoverage(itemCount, itemTotal, total.Sub(contingency).Sub(reserve)); err != nil {
		return err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE budget SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4 AND NOT is_deleted`,
		StatusPendingApproval, time.Now(), id, StatusDraft)
	if err != nil {
		err := fmt.Errorf("could not submit budget: %w", err)
		log.Error(err)
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("%w: status changed concurrently", ErrInvalidStatusTransition)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("could not commit submit transaction: %w", err)
	}
	return nil
}

func (r *RepoImpl) Approve(ctx context.Context, id int, approver, comments string, at time.Time) (bool, error) {
	query := `UPDATE budget SET status = $1, approved_by = $2, approved_at = $3, approval_comments = $4, updated_at = $3
		WHERE id = $5 AND status = $6 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, StatusApproved, approver, at, comments, id, StatusPendingApproval)
	if err != nil {
		err := fmt.Errorf("could not approve budget: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) Reject(ctx context.Context, id int, approver, reason string, at time.Time) (bool, error) {
	query := `UPDATE budget SET status = $1, rejected_by = $2, rejected_at = $3, rejection_reason = $4, updated_at = $3
		WHERE id = $5 AND status = $6 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, StatusRejected, approver, at, reason, id, StatusPendingApproval)
	if err != nil {
		err := fmt.Errorf("could not reject budget: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetAsBaseline clears the baseline flag on every other budget of the project
// and promotes the target, all inside one serializable transaction so two
// concurrent calls cannot leave two baselines behind.
func (r *RepoImpl) SetAsBaseline(ctx context.Context, id, projectID int) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return false, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`UPDATE budget SET is_baseline = false, updated_at = $1 WHERE project_id = $2 AND id <> $3 AND is_baseline AND NOT is_deleted`,
		time.Now(), projectID, id)
	if err != nil {
		err := fmt.Errorf("could not clear previous baseline: %w", err)
		log.Error(err)
		return false, err
	}

	tag, err := tx.Exec(ctx,
		`UPDATE budget SET status = $1, is_baseline = true, updated_at = $2 WHERE id = $3 AND status = $4 AND NOT is_deleted`,
		StatusBaseline, time.Now(), id, StatusApproved)
	if err != nil {
		err := fmt.Errorf("could not set budget as baseline: %w", err)
		log.Error(err)
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}
	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("could not commit baseline transaction: %w", err)
	}
	return true, nil
}

func (r *RepoImpl) Lock(ctx context.Context, id int) (bool, error) {
	query := `UPDATE budget SET status = $1, is_locked = true, updated_at = $2
		WHERE id = $3 AND status = ANY($4) AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, StatusLocked, time.Now(), id, []Status{StatusApproved, StatusBaseline})
	if err != nil {
		err := fmt.Errorf("could not lock budget: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreateRevision inserts the new draft budget, copies the source's non-deleted
// items onto it and appends the revision row to the source, atomically.
func (r *RepoImpl) CreateRevision(ctx context.Context, sourceID int, revision BudgetRevision, draft Budget) (Budget, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return Budget{}, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx, `INSERT INTO budget (
			uid, project_id, version, description, total_amount, currency,
			contingency_amount, management_reserve, status, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11) RETURNING id`,
		draft.Uid, draft.ProjectID, draft.Version, draft.Description, draft.TotalAmount, draft.Currency,
		draft.ContingencyAmount, draft.ManagementReserve, draft.Status, draft.CreatedBy, draft.CreatedAt,
	).Scan(&draft.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return Budget{}, ErrDuplicateVersion
		}
		err := fmt.Errorf("could not store revised budget: %w", err)
		log.Error(err)
		return Budget{}, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO budget_item (budget_id, code, description, quantity, unit_rate, amount, cost_type)
		SELECT $1, code, description, quantity, unit_rate, amount, cost_type
		FROM budget_item WHERE budget_id = $2 AND NOT is_deleted`,
		draft.ID, sourceID)
	if err != nil {
		err := fmt.Errorf("could not copy budget items: %w", err)
		log.Error(err)
		return Budget{}, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO budget_revision (budget_id, number, reason, new_budget_id, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		sourceID, revision.Number, revision.Reason, draft.ID, revision.CreatedBy, revision.CreatedAt)
	if err != nil {
		err := fmt.Errorf("could not store budget revision: %w", err)
		log.Error(err)
		return Budget{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Budget{}, fmt.Errorf("could not commit revision transaction: %w", err)
	}
	if draft.Items, err = r.items(ctx, draft.ID); err != nil {
		return Budget{}, err
	}
	return draft, nil
}

func (r *RepoImpl) ListByProject(ctx context.Context, projectID int) ([]Budget, error) {
	query := `SELECT ` + budgetColumns + ` FROM budget WHERE project_id = $1 AND NOT is_deleted ORDER BY created_at`
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		err := fmt.Errorf("could not query budgets: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var budgets []Budget
	for rows.Next() {
		b, err := scanBudget(rows)
		if err != nil {
			err := fmt.Errorf("could not scan budget: %w", err)
			log.Error(err)
			return nil, err
		}
		budgets = append(budgets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return budgets, nil
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

// StoreItem only inserts while the parent budget is still a draft. The guard
// sits in the statement so the insert cannot land after a concurrent submit.
func (r *RepoImpl) StoreItem(ctx context.Context, item BudgetItem) (int, error) {
	query := `INSERT INTO budget_item (budget_id, code, description, quantity, unit_rate, amount, cost_type)
		SELECT $1, $2, $3, $4, $5, $6, $7
		WHERE EXISTS (SELECT 1 FROM budget WHERE id = $1 AND status = $8 AND NOT is_deleted)
		RETURNING id`
	var id int
	err := r.db.QueryRow(ctx, query,
		item.BudgetID, item.Code, item.Description, item.Quantity, item.UnitRate, item.Amount, item.CostType,
		StatusDraft).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrBudgetNotEditable
	}
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, ErrDuplicateItemCode
		}
		err := fmt.Errorf("could not store budget item: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) UpdateItem(ctx context.Context, item BudgetItem) (bool, error) {
	query := `UPDATE budget_item SET code = $1, description = $2, quantity = $3, unit_rate = $4, amount = $5, cost_type = $6
		FROM budget
		WHERE budget_item.id = $7 AND NOT budget_item.is_deleted
			AND budget.id = budget_item.budget_id AND budget.status = $8 AND NOT budget.is_deleted`
	tag, err := r.db.Exec(ctx, query,
		item.Code, item.Description, item.Quantity, item.UnitRate, item.Amount, item.CostType, item.ID, StatusDraft)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return false, ErrDuplicateItemCode
		}
		err := fmt.Errorf("could not update budget item: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) RemoveItem(ctx context.Context, itemID int) (bool, error) {
	query := `UPDATE budget_item SET is_deleted = true
		FROM budget
		WHERE budget_item.id = $1 AND NOT budget_item.is_deleted
			AND budget.id = budget_item.budget_id AND budget.status = $2 AND NOT budget.is_deleted`
	tag, err := r.db.Exec(ctx, query, itemID, StatusDraft)
	if err != nil {
		err := fmt.Errorf("could not remove budget item: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) Delete(ctx context.Context, id int) (bool, error) {
	query := `UPDATE budget SET is_deleted = true, updated_at = $1 WHERE id = $2 AND status = $3 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, time.Now(), id, StatusDraft)
	if err != nil {
		err := fmt.Errorf("could not delete budget: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) items(ctx context.Context, budgetID int) ([]BudgetItem, error) {
	query := `SELECT id, budget_id, code, description, quantity, unit_rate, amount, cost_type, is_deleted
		FROM budget_item WHERE budget_id = $1 AND NOT is_deleted ORDER BY code`
	rows, err := r.db.Query(ctx, query, budgetID)
	if err != nil {
		err := fmt.Errorf("could not query budget items: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var items []BudgetItem
	for rows.Next() {
		var item BudgetItem
		if err := rows.Scan(&item.ID, &item.BudgetID, &item.Code, &item.Description,
			&item.Quantity, &item.UnitRate, &item.Amount, &item.CostType, &item.IsDeleted); err != nil {
			return nil, fmt.Errorf("could not scan budget item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return items, nil
}

func (r *RepoImpl) revisions(ctx context.Context, budgetID int) ([]BudgetRevision, error) {
	query := `SELECT id, budget_id, number, reason, new_budget_id, created_by, created_at
		FROM budget_revision WHERE budget_id = $1 ORDER BY number`
	rows, err := r.db.Query(ctx, query, budgetID)
	if err != nil {
		err := fmt.Errorf("could not query budget revisions: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var revisions []BudgetRevision
	for rows.Next() {
		var rev BudgetRevision
		if err := rows.Scan(&rev.ID, &rev.BudgetID, &rev.Number, &rev.Reason,
			&rev.NewBudgetID, &rev.CreatedBy, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("could not scan budget revision: %w", err)
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return revisions, nil
}

func scanBudget(row pgx.Row) (Budget, error) {
	var b Budget
	err := row.Scan(
		&b.ID,
		&b.Uid,
		&b.ProjectID,
		&b.Version,
		&b.Description,
		&b.TotalAmount,
		&b.Currency,
		&b.ContingencyAmount,
		&b.ManagementReserve,
		&b.Status,
		&b.IsBaseline,
		&b.IsLocked,
		&b.ApprovedBy,
		&b.ApprovedAt,
		&b.ApprovalComments,
		&b.RejectedBy,
		&b.RejectedAt,
		&b.RejectionReason,
		&b.IsDeleted,
		&b.CreatedBy,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}
