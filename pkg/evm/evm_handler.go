package evm

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/costwise/costwise/pkg/control_account"
	"github.com/costwise/costwise/pkg/money"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type EVMRecordDTO struct {
	ID                 int             `json:"id"`
	ControlAccountID   int             `json:"controlAccountId"`
	DataDate           time.Time       `json:"dataDate"`
	PeriodType         string          `json:"periodType"`
	PlannedValue       decimal.Decimal `json:"plannedValue"`
	EarnedValue        decimal.Decimal `json:"earnedValue"`
	ActualCost         decimal.Decimal `json:"actualCost"`
	BudgetAtCompletion decimal.Decimal `json:"budgetAtCompletion"`
	Notes              string          `json:"notes,omitempty"`
	IsApproved         bool            `json:"isApproved"`
	ApprovedBy         string          `json:"approvedBy,omitempty"`
	ApprovedAt         *time.Time      `json:"approvedAt,omitempty"`
}

type MetricsDTO struct {
	PlannedValue       decimal.Decimal `json:"plannedValue"`
	EarnedValue        decimal.Decimal `json:"earnedValue"`
	ActualCost         decimal.Decimal `json:"actualCost"`
	BudgetAtCompletion decimal.Decimal `json:"budgetAtCompletion"`
	CostVariance       decimal.Decimal `json:"costVariance"`
	ScheduleVariance   decimal.Decimal `json:"scheduleVariance"`
	CPI                decimal.Decimal `json:"cpi"`
	SPI                decimal.Decimal `json:"spi"`
	EAC                decimal.Decimal `json:"eac"`
	ETC                decimal.Decimal `json:"etc"`
	VAC                decimal.Decimal `json:"vac"`
	TCPI               decimal.Decimal `json:"tcpi"`
	PercentComplete    decimal.Decimal `json:"percentComplete"`
	PercentSpent       decimal.Decimal `json:"percentSpent"`
}

type AccountPerformanceDTO struct {
	ControlAccountID int        `json:"controlAccountId"`
	Code             string     `json:"code"`
	Name             string     `json:"name"`
	Level            int        `json:"level"`
	DataDate         time.Time  `json:"dataDate"`
	Metrics          MetricsDTO `json:"metrics"`
}

type PerformanceReportDTO struct {
	ProjectID int                     `json:"projectId"`
	AsOf      time.Time               `json:"asOf"`
	Totals    MetricsDTO              `json:"totals"`
	Status    string                  `json:"status"`
	Accounts  []AccountPerformanceDTO `json:"accounts"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Record(w http.ResponseWriter, r *http.Request) {
	log.Debug("Recording new EVM observation")
	w.Header().Set("Content-Type", "application/json")

	var dto EVMRecordDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.service.Record(r.Context(), dtoToRecord(dto))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(recordToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dto EVMRecordDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rec := dtoToRecord(dto)
	rec.ID = id
	updated, err := h.service.Update(r.Context(), rec)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(recordToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	approved, err := h.service.Approve(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(recordToDTO(approved)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) ListByAccount(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	accountId, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	records, err := h.service.ListByAccount(r.Context(), accountId)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]EVMRecordDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, recordToDTO(rec))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) GetProjectPerformance(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectId, err := strconv.Atoi(mux.Vars(r)["projectId"])
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	asOf := time.Now()
	if dateParam := r.URL.Query().Get("asOf"); dateParam != "" {
		asOf, err = time.Parse("2006-01-02", dateParam)
		if err != nil {
			http.Error(w, "invalid asOf date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
	}
	report, err := h.service.GetProjectPerformance(r.Context(), projectId, asOf)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(ReportToDTO(report)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrRecordNotFound),
		errors.Is(err, control_account.ErrControlAccountNotFound),
		errors.Is(err, control_account.ErrProjectNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrDuplicateRecord), errors.Is(err, ErrRecordApproved):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidPeriodType), errors.Is(err, ErrNegativeFigure):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func recordToDTO(rec EVMRecord) EVMRecordDTO {
	dto := EVMRecordDTO{
		ID:                 rec.ID,
		ControlAccountID:   rec.ControlAccountID,
		DataDate:           rec.DataDate,
		PeriodType:         string(rec.PeriodType),
		PlannedValue:       money.RoundMoney(rec.PlannedValue),
		EarnedValue:        money.RoundMoney(rec.EarnedValue),
		ActualCost:         money.RoundMoney(rec.ActualCost),
		BudgetAtCompletion: money.RoundMoney(rec.BudgetAtCompletion),
		Notes:              rec.Notes,
		IsApproved:         rec.IsApproved,
		ApprovedBy:         rec.ApprovedBy,
	}
	if !rec.ApprovedAt.IsZero() {
		approvedAt := rec.ApprovedAt
		dto.ApprovedAt = &approvedAt
	}
	return dto
}

func dtoToRecord(dto EVMRecordDTO) EVMRecord {
	return EVMRecord{
		ID:                 dto.ID,
		ControlAccountID:   dto.ControlAccountID,
		DataDate:           dto.DataDate,
		PeriodType:         PeriodType(dto.PeriodType),
		PlannedValue:       dto.PlannedValue,
		EarnedValue:        dto.EarnedValue,
		ActualCost:         dto.ActualCost,
		BudgetAtCompletion: dto.BudgetAtCompletion,
		Notes:              dto.Notes,
	}
}

// MetricsToDTO rounds a metric set for presentation: amounts to 2 places,
// indices and percentages to 4.
func MetricsToDTO(m Metrics) MetricsDTO {
	return MetricsDTO{
		PlannedValue:       money.RoundMoney(m.PlannedValue),
		EarnedValue:        money.RoundMoney(m.EarnedValue),
		ActualCost:         money.RoundMoney(m.ActualCost),
		BudgetAtCompletion: money.RoundMoney(m.BudgetAtCompletion),
		CostVariance:       money.RoundMoney(m.CostVariance),
		ScheduleVariance:   money.RoundMoney(m.ScheduleVariance),
		CPI:                money.RoundIndex(m.CPI),
		SPI:                money.RoundIndex(m.SPI),
		EAC:                money.RoundMoney(m.EAC),
		ETC:                money.RoundMoney(m.ETC),
		VAC:                money.RoundMoney(m.VAC),
		TCPI:               money.RoundIndex(m.TCPI),
		PercentComplete:    money.RoundIndex(m.PercentComplete),
		PercentSpent:       money.RoundIndex(m.PercentSpent),
	}
}

func ReportToDTO(report PerformanceReport) PerformanceReportDTO {
	dto := PerformanceReportDTO{
		ProjectID: report.ProjectID,
		AsOf:      report.AsOf,
		Totals:    MetricsToDTO(report.Totals),
		Status:    string(report.Status),
		Accounts:  make([]AccountPerformanceDTO, 0, len(report.Accounts)),
	}
	for _, acc := range report.Accounts {
		dto.Accounts = append(dto.Accounts, AccountPerformanceDTO{
			ControlAccountID: acc.ControlAccountID,
			Code:             acc.Code,
			Name:             acc.Name,
			Level:            acc.Level,
			DataDate:         acc.DataDate,
			Metrics:          MetricsToDTO(acc.Metrics),
		})
	}
	return dto
}
