package evm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

var ErrRecordNotFound = errors.New("EVM record not found")
var ErrDuplicateRecord = errors.New("EVM record already exists for this control account, date and period")

const pgUniqueViolation = "23505"

type Repo interface {
	Store(ctx context.Context, rec EVMRecord) (int, error)
	Get(ctx context.Context, id int) (EVMRecord, error)
	Update(ctx context.Context, rec EVMRecord) (bool, error)
	Approve(ctx context.Context, id int, approver string, at time.Time) (bool, error)
	// LatestPerAccount returns, for each given control account, the most
	// recent record with data_date at or before asOf. Accounts without such a
	// record are absent from the result.
	LatestPerAccount(ctx context.Context, accountIDs []int, asOf time.Time) (map[int]EVMRecord, error)
	ListByAccount(ctx context.Context, controlAccountID int) ([]EVMRecord, error)
}

type RepoImpl struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *RepoImpl {
	return &RepoImpl{db: db}
}

const recordColumns = `id, control_account_id, data_date, period_type, pv, ev, ac, bac,
	notes, is_approved, approved_by, approved_at, created_by, created_at`

func (r *RepoImpl) Store(ctx context.Context, rec EVMRecord) (int, error) {
	query := `INSERT INTO evm_record (
			control_account_id, data_date, period_type, pv, ev, ac, bac, notes, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10) RETURNING id`

	var id int
	err := r.db.QueryRow(ctx, query,
		rec.ControlAccountID,
		rec.DataDate,
		rec.PeriodType,
		rec.PlannedValue,
		rec.EarnedValue,
		rec.ActualCost,
		rec.BudgetAtCompletion,
		rec.Notes,
		rec.CreatedBy,
		rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return 0, ErrDuplicateRecord
		}
		err := fmt.Errorf("could not store EVM record: %w", err)
		log.Error(err)
		return 0, err
	}
	return id, nil
}

func (r *RepoImpl) Get(ctx context.Context, id int) (EVMRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM evm_record WHERE id = $1`
	rec, err := scanRecord(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return EVMRecord{}, ErrRecordNotFound
		}
		err := fmt.Errorf("could not get EVM record: %w", err)
		log.Error(err)
		return EVMRecord{}, err
	}
	return rec, nil
}

// Update rewrites the figures of an unapproved record. The is_approved guard
// sits in the WHERE clause so an approval racing this update wins.
func (r *RepoImpl) Update(ctx context.Context, rec EVMRecord) (bool, error) {
	query := `UPDATE evm_record SET pv = $1, ev = $2, ac = $3, bac = $4, notes = $5
		WHERE id = $6 AND NOT is_approved`
	tag, err := r.db.Exec(ctx, query,
		rec.PlannedValue, rec.EarnedValue, rec.ActualCost, rec.BudgetAtCompletion, rec.Notes, rec.ID)
	if err != nil {
		err := fmt.Errorf("could not update EVM record: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) Approve(ctx context.Context, id int, approver string, at time.Time) (bool, error) {
	query := `UPDATE evm_record SET is_approved = true, approved_by = $1, approved_at = $2
		WHERE id = $3 AND NOT is_approved`
	tag, err := r.db.Exec(ctx, query, approver, at, id)
	if err != nil {
		err := fmt.Errorf("could not approve EVM record: %w", err)
		log.Error(err)
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *RepoImpl) LatestPerAccount(ctx context.Context, accountIDs []int, asOf time.Time) (map[int]EVMRecord, error) {
	if len(accountIDs) == 0 {
		return map[int]EVMRecord{}, nil
	}
	query := `SELECT DISTINCT ON (control_account_id) ` + recordColumns + `
		FROM evm_record
		WHERE control_account_id = ANY($1) AND data_date <= $2
		ORDER BY control_account_id, data_date DESC, id DESC`
	rows, err := r.db.Query(ctx, query, accountIDs, asOf)
	if err != nil {
		err := fmt.Errorf("could not query latest EVM records: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	latest := map[int]EVMRecord{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan EVM record: %w", err)
		}
		latest[rec.ControlAccountID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return latest, nil
}

func (r *RepoImpl) ListByAccount(ctx context.Context, controlAccountID int) ([]EVMRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM evm_record WHERE control_account_id = $1 ORDER BY data_date`
	rows, err := r.db.Query(ctx, query, controlAccountID)
	if err != nil {
		err := fmt.Errorf("could not query EVM records: %w", err)
		log.Error(err)
		return nil, err
	}
	defer rows.Close()

	var records []EVMRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("could not scan EVM record: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over rows: %w", err)
	}
	return records, nil
}

func scanRecord(row pgx.Row) (EVMRecord, error) {
	var rec EVMRecord
	var approvedBy *string
	var approvedAt *time.Time
	err := row.Scan(
		&rec.ID,
		&rec.ControlAccountID,
		&rec.DataDate,
		&rec.PeriodType,
		&rec.PlannedValue,
		&rec.EarnedValue,
		&rec.ActualCost,
		&rec.BudgetAtCompletion,
		&rec.Notes,
		&rec.IsApproved,
		&approvedBy,
		&approvedAt,
		&rec.CreatedBy,
		&rec.CreatedAt,
	)
	if approvedBy != nil {
		rec.ApprovedBy = *approvedBy
	}
	if approvedAt != nil {
		rec.ApprovedAt = *approvedAt
	}
	return rec, err
}
