package evm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/control_account"
	"github.com/costwise/costwise/pkg/user"
	log "github.com/sirupsen/logrus"
)

var ErrRecordApproved = errors.New("approved EVM records cannot be modified")
var ErrInvalidPeriodType = errors.New("invalid period type")
var ErrNegativeFigure = errors.New("EVM figures must not be negative")

// ControlAccountReader is the slice of the control account package this
// service needs. control_account.Repo satisfies it.
type ControlAccountReader interface {
	Get(ctx context.Context, id int) (control_account.ControlAccount, error)
	ListActive(ctx context.Context, projectID int) ([]control_account.ControlAccount, error)
	ProjectExists(ctx context.Context, projectID int) (bool, error)
}

// AccountPerformance is one control account line of a performance report.
type AccountPerformance struct {
	ControlAccountID int
	Code             string
	Name             string
	Level            int
	DataDate         time.Time
	Metrics          Metrics
}

// PerformanceReport is the project level EVM roll-up as of a report date.
// Totals are sums of the latest record per account with indices re-derived
// from the sums.
type PerformanceReport struct {
	ProjectID int
	AsOf      time.Time
	Totals    Metrics
	Status    PerformanceStatus
	Accounts  []AccountPerformance
}

type Service interface {
	Record(ctx context.Context, rec EVMRecord) (EVMRecord, error)
	Update(ctx context.Context, rec EVMRecord) (EVMRecord, error)
	Approve(ctx context.Context, id int) (EVMRecord, error)
	Get(ctx context.Context, id int) (EVMRecord, error)
	ListByAccount(ctx context.Context, controlAccountID int) ([]EVMRecord, error)
	GetProjectPerformance(ctx context.Context, projectID int, asOf time.Time) (PerformanceReport, error)
}

type ServiceImpl struct {
	repo     Repo
	accounts ControlAccountReader
	clock    utils.Clock
}

func NewService(repo Repo, accounts ControlAccountReader, clock utils.Clock) *ServiceImpl {
	return &ServiceImpl{repo: repo, accounts: accounts, clock: clock}
}

func (s *ServiceImpl) Record(ctx context.Context, rec EVMRecord) (EVMRecord, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return EVMRecord{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if err := validateFigures(rec); err != nil {
		return EVMRecord{}, err
	}
	if _, err := s.accounts.Get(ctx, rec.ControlAccountID); err != nil {
		return EVMRecord{}, err
	}

	rec.IsApproved = false
	rec.CreatedBy = actor
	rec.CreatedAt = s.clock.Now()

	id, err := s.repo.Store(ctx, rec)
	if err != nil {
		return EVMRecord{}, err
	}
	rec.ID = id
	return rec, nil
}

func (s *ServiceImpl) Update(ctx context.Context, rec EVMRecord) (EVMRecord, error) {
	if _, err := user.CurrentActor(ctx); err != nil {
		return EVMRecord{}, fmt.Errorf("failed to get current user: %w", err)
	}
	if err := validateFigures(rec); err != nil {
		return EVMRecord{}, err
	}
	current, err := s.repo.Get(ctx, rec.ID)
	if err != nil {
		return EVMRecord{}, err
	}
	if current.IsApproved {
		return EVMRecord{}, ErrRecordApproved
	}
	updated, err := s.repo.Update(ctx, rec)
	if err != nil {
		return EVMRecord{}, err
	}
	if !updated {
		// approval won the race between our read and write
		return EVMRecord{}, ErrRecordApproved
	}
	return s.repo.Get(ctx, rec.ID)
}

func (s *ServiceImpl) Approve(ctx context.Context, id int) (EVMRecord, error) {
	actor, err := user.CurrentActor(ctx)
	if err != nil {
		return EVMRecord{}, fmt.Errorf("failed to get current user: %w", err)
	}
	current, err := s.repo.Get(ctx, id)
	if err != nil {
		return EVMRecord{}, err
	}
	if current.IsApproved {
		return EVMRecord{}, ErrRecordApproved
	}
	approved, err := s.repo.Approve(ctx, id, actor, s.clock.Now())
	if err != nil {
		return EVMRecord{}, err
	}
	if !approved {
		return EVMRecord{}, ErrRecordApproved
	}
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) Get(ctx context.Context, id int) (EVMRecord, error) {
	return s.repo.Get(ctx, id)
}

func (s *ServiceImpl) ListByAccount(ctx context.Context, controlAccountID int) ([]EVMRecord, error) {
	return s.repo.ListByAccount(ctx, controlAccountID)
}

// GetProjectPerformance rolls up the latest record at or before asOf of every
// active control account and derives the project level indices from the sums.
// Accounts with no record yet contribute nothing to the totals.
func (s *ServiceImpl) GetProjectPerformance(ctx context.Context, projectID int, asOf time.Time) (PerformanceReport, error) {
	exists, err := s.accounts.ProjectExists(ctx, projectID)
	if err != nil {
		return PerformanceReport{}, err
	}
	if !exists {
		return PerformanceReport{}, fmt.Errorf("%w: %d", control_account.ErrProjectNotFound, projectID)
	}

	accounts, err := s.accounts.ListActive(ctx, projectID)
	if err != nil {
		return PerformanceReport{}, err
	}

	accountIDs := make([]int, 0, len(accounts))
	for _, ca := range accounts {
		accountIDs = append(accountIDs, ca.ID)
	}
	latest, err := s.repo.LatestPerAccount(ctx, accountIDs, asOf)
	if err != nil {
		return PerformanceReport{}, err
	}

	report := PerformanceReport{ProjectID: projectID, AsOf: asOf}
	inputs := make([]Input, 0, len(latest))
	for _, ca := range accounts {
		rec, ok := latest[ca.ID]
		if !ok {
			log.Debugf("control account %d has no EVM record at or before %s", ca.ID, asOf.Format("2006-01-02"))
			continue
		}
		in := Input{
			PlannedValue:       rec.PlannedValue,
			EarnedValue:        rec.EarnedValue,
			ActualCost:         rec.ActualCost,
			BudgetAtCompletion: rec.BudgetAtCompletion,
		}
		inputs = append(inputs, in)
		report.Accounts = append(report.Accounts, AccountPerformance{
			ControlAccountID: ca.ID,
			Code:             ca.Code,
			Name:             ca.Name,
			Level:            ca.Level,
			DataDate:         rec.DataDate,
			Metrics:          Calculate(in),
		})
	}

	report.Totals = Aggregate(inputs)
	report.Status = ClassifyStatus(report.Totals.CPI, report.Totals.SPI)
	return report, nil
}

func validateFigures(rec EVMRecord) error {
	if !rec.PeriodType.IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidPeriodType, rec.PeriodType)
	}
	if rec.PlannedValue.IsNegative() || rec.EarnedValue.IsNegative() ||
		rec.ActualCost.IsNegative() || rec.BudgetAtCompletion.IsNegative() {
		return ErrNegativeFigure
	}
	return nil
}
