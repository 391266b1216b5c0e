package report

import (
	"context"
	"fmt"
	"time"

	"github.com/costwise/costwise/pkg/control_account"
	"github.com/costwise/costwise/pkg/evm"
	log "github.com/sirupsen/logrus"
)

// PerformanceReader is the slice of the EVM package used for trend and health
// reporting. evm.Service satisfies it.
type PerformanceReader interface {
	GetProjectPerformance(ctx context.Context, projectID int, asOf time.Time) (evm.PerformanceReport, error)
}

type Service interface {
	GetNineColumnReport(ctx context.Context, projectID int, asOf time.Time, filter Filter) (NineColumnReport, error)
	ValidateReport(ctx context.Context, projectID int, asOf time.Time) (ValidationResult, error)
	GetTrend(ctx context.Context, projectID int, period evm.PeriodType, points int, asOf time.Time) (Trend, error)
	GetHealthCheck(ctx context.Context, projectID int, asOf time.Time) (HealthCheck, error)
}

type ServiceImpl struct {
	accounts      evm.ControlAccountReader
	records       evm.Repo
	performance   PerformanceReader
	defaultPoints int
}

func NewService(accounts evm.ControlAccountReader, records evm.Repo, performance PerformanceReader, defaultPoints int) *ServiceImpl {
	if defaultPoints <= 0 {
		defaultPoints = 6
	}
	return &ServiceImpl{accounts: accounts, records: records, performance: performance, defaultPoints: defaultPoints}
}

// GetNineColumnReport builds one line per active control account from its
// latest EVM record at or before asOf and aggregates the totals. The filter
// is applied to the computed lines, after which the totals are re-derived.
func (s *ServiceImpl) GetNineColumnReport(ctx context.Context, projectID int, asOf time.Time, filter Filter) (NineColumnReport, error) {
	exists, err := s.accounts.ProjectExists(ctx, projectID)
	if err != nil {
		return NineColumnReport{}, err
	}
	if !exists {
		return NineColumnReport{}, fmt.Errorf("%w: %d", control_account.ErrProjectNotFound, projectID)
	}

	accounts, err := s.accounts.ListActive(ctx, projectID)
	if err != nil {
		return NineColumnReport{}, err
	}
	accountIDs := make([]int, 0, len(accounts))
	for _, ca := range accounts {
		accountIDs = append(accountIDs, ca.ID)
	}
	latest, err := s.records.LatestPerAccount(ctx, accountIDs, asOf)
	if err != nil {
		return NineColumnReport{}, err
	}

	report := NineColumnReport{ProjectID: projectID, AsOf: asOf}
	inputs := make([]evm.Input, 0, len(accounts))
	for _, ca := range accounts {
		in := evm.Input{BudgetAtCompletion: ca.BudgetAtCompletion}
		line := Line{
			ControlAccountID: ca.ID,
			Code:             ca.Code,
			Name:             ca.Name,
			Level:            ca.Level,
		}
		if rec, ok := latest[ca.ID]; ok {
			line.HasRecord = true
			line.DataDate = rec.DataDate
			in.PlannedValue = rec.PlannedValue
			in.EarnedValue = rec.EarnedValue
			in.ActualCost = rec.ActualCost
			in.BudgetAtCompletion = rec.BudgetAtCompletion
		} else {
			// no observation yet: report the full budget as planned work
			log.Debugf("control account %d has no EVM record at %s, using budget fallback", ca.ID, asOf.Format("2006-01-02"))
			in.PlannedValue = ca.BudgetAtCompletion
		}
		line.Metrics = evm.Calculate(in)
		report.Lines = append(report.Lines, line)
		inputs = append(inputs, in)
	}
	report.Totals = evm.Aggregate(inputs)
	report.Status = evm.ClassifyStatus(report.Totals.CPI, report.Totals.SPI)

	return ApplyFilter(report, filter), nil
}

func (s *ServiceImpl) ValidateReport(ctx context.Context, projectID int, asOf time.Time) (ValidationResult, error) {
	report, err := s.GetNineColumnReport(ctx, projectID, asOf, Filter{})
	if err != nil {
		return ValidationResult{}, err
	}
	return Validate(report), nil
}

func (s *ServiceImpl) GetTrend(ctx context.Context, projectID int, period evm.PeriodType, points int, asOf time.Time) (Trend, error) {
	if !period.IsValid() {
		period = evm.PeriodMonthly
	}
	if points <= 0 {
		points = s.defaultPoints
	}
	trend := Trend{ProjectID: projectID, PeriodType: period}
	for _, date := range periodEnds(asOf, period, points) {
		perf, err := s.performance.GetProjectPerformance(ctx, projectID, date)
		if err != nil {
			return Trend{}, err
		}
		trend.Points = append(trend.Points, TrendPoint{
			Date:    date,
			Metrics: perf.Totals,
			Status:  perf.Status,
		})
	}
	return trend, nil
}

func (s *ServiceImpl) GetHealthCheck(ctx context.Context, projectID int, asOf time.Time) (HealthCheck, error) {
	perf, err := s.performance.GetProjectPerformance(ctx, projectID, asOf)
	if err != nil {
		return HealthCheck{}, err
	}
	hc := BuildHealthCheck(perf.Totals)
	hc.ProjectID = projectID
	hc.AsOf = asOf
	return hc, nil
}
