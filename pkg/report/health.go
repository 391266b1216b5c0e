package report

import (
	"fmt"
	"time"

	"github.com/costwise/costwise/pkg/evm"
	"github.com/shopspring/decimal"
)

type AlertSeverity string

const (
	SeverityWarning  AlertSeverity = "warning"
	SeverityCritical AlertSeverity = "critical"
)

type Alert struct {
	Severity AlertSeverity
	Metric   string
	Message  string
}

// HealthCheck is the threshold based alert summary for a project. Healthy
// means no critical alert fired.
type HealthCheck struct {
	ProjectID int
	AsOf      time.Time
	Status    evm.PerformanceStatus
	Healthy   bool
	Alerts    []Alert
}

var (
	indexCritical = decimal.RequireFromString("0.90")
	indexWarning  = decimal.RequireFromString("0.95")
	overrunFactor = decimal.RequireFromString("1.10")
)

// BuildHealthCheck applies the fixed alert thresholds to a set of project
// level metrics.
func BuildHealthCheck(m evm.Metrics) HealthCheck {
	hc := HealthCheck{
		Status: evm.ClassifyStatus(m.CPI, m.SPI),
		Alerts: []Alert{},
	}

	hc.Alerts = append(hc.Alerts, indexAlerts("CPI", "cost", m.CPI)...)
	hc.Alerts = append(hc.Alerts, indexAlerts("SPI", "schedule", m.SPI)...)

	if m.BudgetAtCompletion.IsPositive() {
		limit := m.BudgetAtCompletion.Mul(overrunFactor)
		switch {
		case m.EAC.GreaterThan(limit):
			hc.Alerts = append(hc.Alerts, Alert{
				Severity: SeverityCritical,
				Metric:   "EAC",
				Message:  fmt.Sprintf("forecast at completion %s exceeds budget %s by more than 10%%", m.EAC, m.BudgetAtCompletion),
			})
		case m.EAC.GreaterThan(m.BudgetAtCompletion):
			hc.Alerts = append(hc.Alerts, Alert{
				Severity: SeverityWarning,
				Metric:   "EAC",
				Message:  fmt.Sprintf("forecast at completion %s exceeds budget %s", m.EAC, m.BudgetAtCompletion),
			})
		}
	}

	hc.Healthy = true
	for _, alert := range hc.Alerts {
		if alert.Severity == SeverityCritical {
			hc.Healthy = false
			break
		}
	}
	return hc
}

func indexAlerts(name, aspect string, index decimal.Decimal) []Alert {
	// an index of exactly zero means no data yet, which is not an alert
	if index.IsZero() {
		return nil
	}
	switch {
	case index.LessThan(indexCritical):
		return []Alert{{
			Severity: SeverityCritical,
			Metric:   name,
			Message:  fmt.Sprintf("%s performance index %s is critically low", aspect, index),
		}}
	case index.LessThan(indexWarning):
		return []Alert{{
			Severity: SeverityWarning,
			Metric:   name,
			Message:  fmt.Sprintf("%s performance index %s is below plan", aspect, index),
		}}
	}
	return nil
}
