package report

import (
	"bytes"
	"encoding/csv"

	"github.com/costwise/costwise/pkg/evm"
	log "github.com/sirupsen/logrus"
)

// CsvRenderer turns a nine column report into a CSV document for download.
type CsvRenderer interface {
	RenderReport(report NineColumnReport) (string, error)
}

type CsvRendererImpl struct {
}

func NewCsvRenderer() *CsvRendererImpl {
	return &CsvRendererImpl{}
}

func (t *CsvRendererImpl) RenderReport(report NineColumnReport) (string, error) {

	header := []string{"Code", "Name", "BAC", "PV", "EV", "AC", "CV", "SV", "CPI", "SPI", "EAC"}

	data := make([][]string, 0, len(report.Lines)+2)
	data = append(data, header)
	for _, line := range report.Lines {
		data = append(data, metricsRow(line.Code, line.Name, line.Metrics))
	}
	data = append(data, metricsRow("TOTAL", "", report.Totals))

	var b bytes.Buffer
	writer := csv.NewWriter(&b)
	for _, row := range data {
		err := writer.Write(row)
		if err != nil {
			log.Errorf("Error writing to csv: %v", err)
			return "", err
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		log.Errorf("Error writing to csv: %v", err)
		return "", err
	}

	return b.String(), nil
}

func metricsRow(code, name string, m evm.Metrics) []string {
	return []string{
		code,
		name,
		m.BudgetAtCompletion.StringFixed(2),
		m.PlannedValue.StringFixed(2),
		m.EarnedValue.StringFixed(2),
		m.ActualCost.StringFixed(2),
		m.CostVariance.StringFixed(2),
		m.ScheduleVariance.StringFixed(2),
		m.CPI.StringFixed(2),
		m.SPI.StringFixed(2),
		m.EAC.StringFixed(2),
	}
}
