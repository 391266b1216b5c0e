package report

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/costwise/costwise/pkg/control_account"
	"github.com/costwise/costwise/pkg/evm"
	"github.com/gorilla/mux"
)

type LineDTO struct {
	ControlAccountID int            `json:"controlAccountId"`
	Code             string         `json:"code"`
	Name             string         `json:"name"`
	Level            int            `json:"level"`
	HasRecord        bool           `json:"hasRecord"`
	DataDate         *time.Time     `json:"dataDate,omitempty"`
	Metrics          evm.MetricsDTO `json:"metrics"`
}

type NineColumnReportDTO struct {
	ProjectID int            `json:"projectId"`
	AsOf      time.Time      `json:"asOf"`
	Lines     []LineDTO      `json:"lines"`
	Totals    evm.MetricsDTO `json:"totals"`
	Status    string         `json:"status"`
}

type ValidationResultDTO struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}

type TrendPointDTO struct {
	Date    time.Time      `json:"date"`
	Metrics evm.MetricsDTO `json:"metrics"`
	Status  string         `json:"status"`
}

type TrendDTO struct {
	ProjectID  int             `json:"projectId"`
	PeriodType string          `json:"periodType"`
	Points     []TrendPointDTO `json:"points"`
}

type AlertDTO struct {
	Severity string `json:"severity"`
	Metric   string `json:"metric"`
	Message  string `json:"message"`
}

type HealthCheckDTO struct {
	ProjectID int        `json:"projectId"`
	AsOf      time.Time  `json:"asOf"`
	Status    string     `json:"status"`
	Healthy   bool       `json:"healthy"`
	Alerts    []AlertDTO `json:"alerts"`
}

type Handler struct {
	service     Service
	csvRenderer CsvRenderer
}

func NewHandler(service Service, csvRenderer CsvRenderer) *Handler {
	return &Handler{service: service, csvRenderer: csvRenderer}
}

func (h *Handler) GetNineColumnReport(w http.ResponseWriter, r *http.Request) {
	projectId, asOf, ok := projectAndDate(w, r)
	if !ok {
		return
	}

	filter := Filter{VarianceOnly: r.URL.Query().Has("varianceOnly")}
	if idsParam := r.URL.Query().Get("accountIds"); idsParam != "" {
		for _, part := range strings.Split(idsParam, ",") {
			id, err := strconv.Atoi(strings.TrimSpace(part))
			if err != nil {
				http.Error(w, "invalid accountIds", http.StatusBadRequest)
				return
			}
			filter.ControlAccountIDs = append(filter.ControlAccountIDs, id)
		}
	}
	filter.MinLevel, _ = strconv.Atoi(r.URL.Query().Get("minLevel"))
	filter.MaxLevel, _ = strconv.Atoi(r.URL.Query().Get("maxLevel"))

	report, err := h.service.GetNineColumnReport(r.Context(), projectId, asOf, filter)
	if err != nil {
		writeError(w, err)
		return
	}

	if r.Header.Get("Accept") == "text/csv" {
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		csv, err := h.csvRenderer.RenderReport(report)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if _, err := w.Write([]byte(csv)); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(reportToDTO(report)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) ValidateReport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectId, asOf, ok := projectAndDate(w, r)
	if !ok {
		return
	}
	result, err := h.service.ValidateReport(r.Context(), projectId, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ValidationResultDTO(result)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) GetTrend(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectId, asOf, ok := projectAndDate(w, r)
	if !ok {
		return
	}
	period := evm.PeriodType(r.URL.Query().Get("period"))
	points, _ := strconv.Atoi(r.URL.Query().Get("points"))

	trend, err := h.service.GetTrend(r.Context(), projectId, period, points, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	dto := TrendDTO{ProjectID: trend.ProjectID, PeriodType: string(trend.PeriodType), Points: []TrendPointDTO{}}
	for _, p := range trend.Points {
		dto.Points = append(dto.Points, TrendPointDTO{
			Date:    p.Date,
			Metrics: evm.MetricsToDTO(p.Metrics),
			Status:  string(p.Status),
		})
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dto); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) GetHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectId, asOf, ok := projectAndDate(w, r)
	if !ok {
		return
	}
	hc, err := h.service.GetHealthCheck(r.Context(), projectId, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	dto := HealthCheckDTO{
		ProjectID: hc.ProjectID,
		AsOf:      hc.AsOf,
		Status:    string(hc.Status),
		Healthy:   hc.Healthy,
		Alerts:    []AlertDTO{},
	}
	for _, a := range hc.Alerts {
		dto.Alerts = append(dto.Alerts, AlertDTO{Severity: string(a.Severity), Metric: a.Metric, Message: a.Message})
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dto); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func projectAndDate(w http.ResponseWriter, r *http.Request) (int, time.Time, bool) {
	projectId, err := strconv.Atoi(mux.Vars(r)["projectId"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return 0, time.Time{}, false
	}
	asOf := time.Now()
	if dateParam := r.URL.Query().Get("asOf"); dateParam != "" {
		asOf, err = time.Parse("2006-01-02", dateParam)
		if err != nil {
			http.Error(w, "invalid asOf date, expected YYYY-MM-DD", http.StatusBadRequest)
			return 0, time.Time{}, false
		}
	}
	return projectId, asOf, true
}

func writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, control_account.ErrProjectNotFound) {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func reportToDTO(report NineColumnReport) NineColumnReportDTO {
	dto := NineColumnReportDTO{
		ProjectID: report.ProjectID,
		AsOf:      report.AsOf,
		Lines:     []LineDTO{},
		Totals:    evm.MetricsToDTO(report.Totals),
		Status:    string(report.Status),
	}
	for _, line := range report.Lines {
		lineDTO := LineDTO{
			ControlAccountID: line.ControlAccountID,
			Code:             line.Code,
			Name:             line.Name,
			Level:            line.Level,
			HasRecord:        line.HasRecord,
			Metrics:          evm.MetricsToDTO(line.Metrics),
		}
		if line.HasRecord {
			dataDate := line.DataDate
			lineDTO.DataDate = &dataDate
		}
		dto.Lines = append(dto.Lines, lineDTO)
	}
	return dto
}
