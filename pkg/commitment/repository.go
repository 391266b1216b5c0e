package commitment

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

var ErrCommitmentNotFound = errors.New("commitment not found")
var ErrAllocationNotFound = errors.New("commitment allocation not found")
var ErrProjectNotFound = errors.New("project not found")

type Repo interface {
	Store(ctx context.Context, c Commitment) (int, error)
	Get(ctx context.Context, id int) (Commitment, error)
	Update(ctx context.Context, c Commitment) (bool, error)
	UpdateStatus(ctx context.Context, id int, from, to Status) (bool, error)
	Approve(ctx context.Context, id int, approver, notes string, at time.Time) (bool, error)
	Reject(ctx context.Context, id int, approver, reason string, at time.Time) (bool, error)
	RecordInvoice(ctx context.Context, id int, amount decimal.Decimal, to Status) (bool, error)
	RecordPayment(ctx context.Context, id int, amount decimal.Decimal) (bool, error)
	CreateRevision(ctx context.Context, id int, revision CommitmentRevision) (bool, error)
	ListByProject(ctx context.Context, projectID int) ([]Commitment, error)
	ProjectExists(ctx context.Context, projectID int) (bool, error)
	StoreItem(ctx context.Context, item CommitmentItem) (int, error)
	StoreAllocation(ctx context.Context, alloc WorkPackageAllocation) (int, error)
	Delete(ctx context.Context, id int) (bool, error)
}

type RepoImpl struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *RepoImpl {
	return &RepoImpl{db: db}
}

const commitmentColumns = `id, uid, project_id, contractor_ref, budget_item_id, control_account_id,
	commitment_number, title, original_amount, revised_amount, committed_amount, invoiced_amount,
	paid_amount, retention_amount, start_date, end_date, performance_pct, status,
	approved_by, approved_at, approval_notes, rejected_by, rejected_at, rejection_reason,
	is_deleted, created_by, created_at, updated_at`

func (r *RepoImpl) Store(ctx context.Context, c Commitment) (int, error) {
	query := `INSERT INTO commitment (
			uid, project_id, contractor_ref, budget_item_id, control_account_id,
			commitment_number, title, original_amount, revised_amount, committed_amount,
			start_date, end_date, status, created_by, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $8, $9, $10, $11, $12, $13, $13) RETURNING id`

	var id int
	err := r.db.QueryRow(ctx, query,
		c.Uid,
		c.ProjectID,
		c.ContractorRef,
		c.BudgetItemID,
		c.ControlAccountID,
		c.CommitmentNumber,
		c.Title,
		c.OriginalAmount,
		c.StartDate,
		c.EndDate,
		c.Status,
		c.CreatedBy,
		c.CreatedAt,
	).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store commitment: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (Commitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM commitment WHERE id = $1 AND NOT is_deleted`
	c, err := scanCommitment(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Commitment{}, ErrCommitmentNotFound
		}
		err := fmt.Errorf("could not get commitment: %w", err)
		log.Error(err)
		return Commitment{}, err
	}
	if c.Items, err = r.items(ctx, id); err != nil {
		return Commitment{}, err
	}
	if c.Allocations, err = r.allocations(ctx, id); err != nil {
		return Commitment{}, err
	}
	if c.Revisions, err = r.revisions(ctx, id); err != nil {
		return Commitment{}, err
	}
	return c, nil
}

func (r *RepoImpl) Update(ctx context.Context, c Commitment) (bool, error) {
	query := `UPDATE commitment SET
			contractor_ref = $1, budget_item_id = $2, control_account_id = $3, commitment_number = $4,
			title = $5, start_date = $6, end_date = $7, performance_pct = $8, updated_at = $9
		WHERE id = $10 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query,
		c.ContractorRef, c.BudgetItemID, c.ControlAccountID, c.CommitmentNumber,
		c.Title, c.StartDate, c.EndDate, c.PerformancePct, time.Now(), c.ID)
	if err != nil {
		err := fmt.Errorf("could not update commitment: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) UpdateStatus(ctx context.Context, id int, from, to Status) (bool, error) {
	query := `UPDATE commitment SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, to, time.Now(), id, from)
	if err != nil {
		err := fmt.Errorf("could not update commitment status: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) Approve(ctx context.Context, id int, approver, notes string, at time.Time) (bool, error) {
	query := `UPDATE commitment SET status = $1, approved_by = $2, approved_at = $3, approval_notes = $4, updated_at = $3
		WHERE id = $5 AND status = $6 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, StatusApproved, approver, at, notes, id, StatusPendingApproval)
	if err != nil {
		err := fmt.Errorf("could not approve commitment: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) Reject(ctx context.Context, id int, approver, reason string, at time.Time) (bool, error) {
	query := `UPDATE commitment SET status = $1, rejected_by = $2, rejected_at = $3, rejection_reason = $4, updated_at = $3
		WHERE id = $5 AND status = $6 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, StatusRejected, approver, at, reason, id, StatusPendingApproval)
	if err != nil {
		err := fmt.Errorf("could not reject commitment: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordInvoice adds the amount to the invoiced total and moves the status in
// one statement. The status guard in the WHERE clause keeps two concurrent
// invoices from racing a close.
func (r *RepoImpl) RecordInvoice(ctx context.Context, id int, amount decimal.Decimal, to Status) (bool, error) {
	query := `UPDATE commitment SET invoiced_amount = invoiced_amount + $1, status = $2, updated_at = $3
		WHERE id = $4 AND status = ANY($5) AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, amount, to, time.Now(), id, []Status{StatusActive, StatusPartiallyInvoiced})
	if err != nil {
		err := fmt.Errorf("could not record invoice: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordPayment adds the amount to the paid total. Payments never exceed what
// has been invoiced, the guard is part of the statement.
func (r *RepoImpl) RecordPayment(ctx context.Context, id int, amount decimal.Decimal) (bool, error) {
	query := `UPDATE commitment SET paid_amount = paid_amount + $1, updated_at = $2
		WHERE id = $3 AND paid_amount + $1 <= invoiced_amount AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, amount, time.Now(), id)
	if err != nil {
		err := fmt.Errorf("could not record payment: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CreateRevision appends the revision row and writes the revised and committed
// amounts in one serializable transaction.
func (r *RepoImpl) CreateRevision(ctx context.Context, id int, revision CommitmentRevision) (bool, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return false, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx,
		`UPDATE commitment SET revised_amount = $1, committed_amount = $1, updated_at = $2
			WHERE id = $3 AND status = ANY($4) AND invoiced_amount <= $1 AND NOT is_deleted`,
		revision.NewAmount, time.Now(), id, []Status{StatusActive, StatusPartiallyInvoiced})
	if err != nil {
		err := fmt.Errorf("could not revise commitment: %w", err)
		log.Error(err)
		return false, err
	}
	if tag.RowsAffected() != 1 {
		return false, nil
	}

	_, err = tx.Exec(ctx, `INSERT INTO commitment_revision
			(commitment_id, number, previous_amount, new_amount, reason, change_order_ref, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		id, revision.Number, revision.PreviousAmount, revision.NewAmount,
		revision.Reason, revision.ChangeOrderRef, revision.CreatedBy, revision.CreatedAt)
	if err != nil {
		err := fmt.Errorf("could not store commitment revision: %w", err)
		log.Error(err)
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("could not commit revision transaction: %w", err)
	}
	return true, nil
}

func (r *RepoImpl) ListByProject(ctx context.Context, projectID int) ([]Commitment, error) {
	query := `SELECT ` + commitmentColumns + ` FROM commitment WHERE project_id = $1 AND NOT is_deleted ORDER BY commitment_number`
	rows, err := r.db.Query(ctx, query, projectID)
	if err != nil {
		err := fmt.Errorf("could not query commitments: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var commitments []Commitment
	for rows.Next() {
		c, err := scanCommitment(rows)
		if err != nil {
			err := fmt.Errorf("could not scan commitment: %w", err)
			log.Error(err)
			return nil, err
		}
		commitments = append(commitments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return commitments, nil
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

func (r *RepoImpl) StoreItem(ctx context.Context, item CommitmentItem) (int, error) {
	query := `INSERT INTO commitment_item (commitment_id, code, description, quantity, unit_rate, amount)
		VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`
	var id int
	err := r.db.QueryRow(ctx, query,
		item.CommitmentID, item.Code, item.Description, item.Quantity, item.UnitRate, item.Amount).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store commitment item: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

// StoreAllocation checks the allocation ceiling and inserts in one
// serializable transaction. The commitment row is locked first, so two
// concurrent allocations are applied one after the other and the sum can
// never exceed the committed amount.
func (r *RepoImpl) StoreAllocation(ctx context.Context, alloc WorkPackageAllocation) (int, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return 0, fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var committed decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT committed_amount FROM commitment WHERE id = $1 AND NOT is_deleted FOR UPDATE`,
		alloc.CommitmentID).Scan(&committed)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrCommitmentNotFound
	}
	if err != nil {
		err := fmt.Errorf("could not read commitment for allocation: %w", err)
		log.Error(err)
		return 0, err
	}

	var allocated decimal.Decimal
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(SUM(allocated_amount), 0) FROM commitment_work_package WHERE commitment_id = $1`,
		alloc.CommitmentID).Scan(&allocated)
	if err != nil {
		err := fmt.Errorf("could not sum commitment allocations: %w", err)
		log.Error(err)
		return 0, err
	}
	allocated = allocated.Add(alloc.AllocatedAmount)
	if allocated.GreaterThan(committed) {
		return 0, fmt.Errorf("%w: %s > %s", ErrOverAllocation, allocated, committed)
	}

	var id int
	err = tx.QueryRow(ctx,
		`INSERT INTO commitment_work_package (commitment_id, work_package_id, allocated_amount, invoiced_amount)
			VALUES ($1, $2, $3, $4) RETURNING id`,
		alloc.CommitmentID, alloc.WorkPackageID, alloc.AllocatedAmount, alloc.InvoicedAmount).Scan(&id)
	if err != nil {
		err := fmt.Errorf("could not store commitment allocation: %w", err)
		log.Error(err)
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("could not commit allocation transaction: %w", err)
	}
	return id, nil
}

// Delete soft-deletes a draft without invoices. Both guards sit in the WHERE
// clause.
func (r *RepoImpl) Delete(ctx context.Context, id int) (bool, error) {
	query := `UPDATE commitment SET is_deleted = true, updated_at = $1
		WHERE id = $2 AND status = $3 AND invoiced_amount = 0 AND NOT is_deleted`
	tag, err := r.db.Exec(ctx, query, time.Now(), id, StatusDraft)
	if err != nil {
		err := fmt.Errorf("could not delete commitment: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) items(ctx context.Context, commitmentID int) ([]CommitmentItem, error) {
	query := `SELECT id, commitment_id, code, description, quantity, unit_rate, amount
		FROM commitment_item WHERE commitment_id = $1 ORDER BY code`
	rows, err := r.db.Query(ctx, query, commitmentID)
	if err != nil {
		err := fmt.Errorf("could not query commitment items: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var items []CommitmentItem
	for rows.Next() {
		var item CommitmentItem
		if err := rows.Scan(&item.ID, &item.CommitmentID, &item.Code, &item.Description,
			&item.Quantity, &item.UnitRate, &item.Amount); err != nil {
			return nil, fmt.Errorf("could not scan commitment item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return items, nil
}

func (r *RepoImpl) allocations(ctx context.Context, commitmentID int) ([]WorkPackageAllocation, error) {
	query := `SELECT id, commitment_id, work_package_id, allocated_amount, invoiced_amount
		FROM commitment_work_package WHERE commitment_id = $1 ORDER BY id`
	rows, err := r.db.Query(ctx, query, commitmentID)
	if err != nil {
		err := fmt.Errorf("could not query commitment allocations: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var allocations []WorkPackageAllocation
	for rows.Next() {
		var alloc WorkPackageAllocation
		if err := rows.Scan(&alloc.ID, &alloc.CommitmentID, &alloc.WorkPackageID,
			&alloc.AllocatedAmount, &alloc.InvoicedAmount); err != nil {
			return nil, fmt.Errorf("could not scan commitment allocation: %w", err)
		}
		allocations = append(allocations, alloc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return allocations, nil
}

func (r *RepoImpl) revisions(ctx context.Context, commitmentID int) ([]CommitmentRevision, error) {
	query := `SELECT id, commitment_id, number, previous_amount, new_amount, reason, change_order_ref, created_by, created_at
		FROM commitment_revision WHERE commitment_id = $1 ORDER BY number`
	rows, err := r.db.Query(ctx, query, commitmentID)
	if err != nil {
		err := fmt.Errorf("could not query commitment revisions: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var revisions []CommitmentRevision
	for rows.Next() {
		var rev CommitmentRevision
		if err := rows.Scan(&rev.ID, &rev.CommitmentID, &rev.Number, &rev.PreviousAmount,
			&rev.NewAmount, &rev.Reason, &rev.ChangeOrderRef, &rev.CreatedBy, &rev.CreatedAt); err != nil {
			return nil, fmt.Errorf("could not scan commitment revision: %w", err)
		}
		revisions = append(revisions, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return revisions, nil
}

func scanCommitment(row pgx.Row) (Commitment, error) {
	var c Commitment
	err := row.Scan(
		&c.ID,
		&c.Uid,
		&c.ProjectID,
		&c.ContractorRef,
		&c.BudgetItemID,
		&c.ControlAccountID,
		&c.CommitmentNumber,
		&c.Title,
		&c.OriginalAmount,
		&c.RevisedAmount,
		&c.CommittedAmount,
		&c.InvoicedAmount,
		&c.PaidAmount,
		&c.RetentionAmount,
		&c.StartDate,
		&c.EndDate,
		&c.PerformancePct,
		&c.Status,
		&c.ApprovedBy,
		&c.ApprovedAt,
		&c.ApprovalNotes,
		&c.RejectedBy,
		&c.RejectedAt,
		&c.RejectionReason,
		&c.IsDeleted,
		&c.CreatedBy,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}
