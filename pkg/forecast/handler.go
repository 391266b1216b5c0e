package forecast

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
)

type ForecastDTO struct {
	ProjectID           int             `json:"projectId"`
	AsOf                time.Time       `json:"asOf"`
	OptimisticEAC       decimal.Decimal `json:"optimisticEac"`
	MostLikelyEAC       decimal.Decimal `json:"mostLikelyEac"`
	PessimisticEAC      decimal.Decimal `json:"pessimisticEac"`
	RiskAdjustedEAC     decimal.Decimal `json:"riskAdjustedEac"`
	EstimatedCompletion time.Time       `json:"estimatedCompletion"`
	Confidence          int             `json:"confidence"`
	Recommendations     []string        `json:"recommendations"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
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

	f, err := h.service.GetForecast(r.Context(), projectId, asOf)
	if err != nil {
		if errors.Is(err, control_account.ErrProjectNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	dto := ForecastDTO{
		ProjectID:           f.ProjectID,
		AsOf:                f.AsOf,
		OptimisticEAC:       money.RoundMoney(f.OptimisticEAC),
		MostLikelyEAC:       money.RoundMoney(f.MostLikelyEAC),
		PessimisticEAC:      money.RoundMoney(f.PessimisticEAC),
		RiskAdjustedEAC:     money.RoundMoney(f.RiskAdjustedEAC),
		EstimatedCompletion: f.EstimatedCompletion,
		Confidence:          f.Confidence,
		Recommendations:     f.Recommendations,
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dto); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
