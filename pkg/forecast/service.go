package forecast

import (
	"context"
	"time"

	"github.com/costwise/costwise/internal/utils"
	"github.com/costwise/costwise/pkg/evm"
)

// PerformanceReader is the slice of the EVM package this service needs.
// evm.Service satisfies it.
type PerformanceReader interface {
	GetProjectPerformance(ctx context.Context, projectID int, asOf time.Time) (evm.PerformanceReport, error)
}

type Service interface {
	GetForecast(ctx context.Context, projectID int, asOf time.Time) (Forecast, error)
}

type ServiceImpl struct {
	performance   PerformanceReader
	clock         utils.Clock
	remainingDays int
}

func NewService(performance PerformanceReader, clock utils.Clock, remainingDays int) *ServiceImpl {
	if remainingDays <= 0 {
		remainingDays = 180
	}
	return &ServiceImpl{performance: performance, clock: clock, remainingDays: remainingDays}
}

func (s *ServiceImpl) GetForecast(ctx context.Context, projectID int, asOf time.Time) (Forecast, error) {
	report, err := s.performance.GetProjectPerformance(ctx, projectID, asOf)
	if err != nil {
		return Forecast{}, err
	}
	f := Build(report.Totals, s.clock.Now(), s.remainingDays)
	f.ProjectID = projectID
	f.AsOf = asOf
	return f, nil
}
