package cost_item

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type CostItemDTO struct {
	ID               int             `json:"id"`
	Uid              string          `json:"uid,omitempty"`
	ProjectID        int             `json:"projectId"`
	ControlAccountID *int            `json:"controlAccountId,omitempty"`
	WbsCode          string          `json:"wbsCode,omitempty"`
	Description      string          `json:"description"`
	Category         string          `json:"category,omitempty"`
	PlannedCost      decimal.Decimal `json:"plannedCost"`
	ActualCost       decimal.Decimal `json:"actualCost"`
	CommittedCost    decimal.Decimal `json:"committedCost"`
	ForecastCost     decimal.Decimal `json:"forecastCost"`
	CreatedAt        *time.Time      `json:"createdAt,omitempty"`
}

type RollupDTO struct {
	ProjectID     int             `json:"projectId"`
	PlannedCost   decimal.Decimal `json:"plannedCost"`
	ActualCost    decimal.Decimal `json:"actualCost"`
	CommittedCost decimal.Decimal `json:"committedCost"`
	ForecastCost  decimal.Decimal `json:"forecastCost"`
	ItemCount     int             `json:"itemCount"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new cost item")
	w.Header().Set("Content-Type", "application/json")

	var dto CostItemDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.Create(r.Context(), dtoToItem(dto))
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(itemToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	item, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(itemToDTO(item)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectId, err := strconv.Atoi(r.URL.Query().Get("projectId"))
	if err != nil {
		http.Error(w, "invalid projectId", http.StatusBadRequest)
		return
	}
	var controlAccountID *int
	if raw := r.URL.Query().Get("controlAccountId"); raw != "" {
		id, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "invalid controlAccountId", http.StatusBadRequest)
			return
		}
		controlAccountID = &id
	}
	items, err := h.service.List(r.Context(), projectId, controlAccountID)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]CostItemDTO, 0, len(items))
	for _, item := range items {
		dtos = append(dtos, itemToDTO(item))
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dtos); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dto CostItemDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	item := dtoToItem(dto)
	item.ID = id
	updated, err := h.service.Update(r.Context(), item)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(itemToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.service.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ProjectRollup(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectId, err := pathId(r, "projectId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	rollup, err := h.service.ProjectRollup(r.Context(), projectId)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(RollupDTO(rollup)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathId(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCostItemNotFound), errors.Is(err, ErrProjectNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrCostItemHasActuals):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func itemToDTO(item CostItem) CostItemDTO {
	dto := CostItemDTO{
		ID:               item.ID,
		Uid:              item.Uid,
		ProjectID:        item.ProjectID,
		ControlAccountID: item.ControlAccountID,
		WbsCode:          item.WbsCode,
		Description:      item.Description,
		Category:         item.Category,
		PlannedCost:      item.PlannedCost,
		ActualCost:       item.ActualCost,
		CommittedCost:    item.CommittedCost,
		ForecastCost:     item.ForecastCost,
	}
	if !item.CreatedAt.IsZero() {
		createdAt := item.CreatedAt
		dto.CreatedAt = &createdAt
	}
	return dto
}

func dtoToItem(dto CostItemDTO) CostItem {
	return CostItem{
		ID:               dto.ID,
		ProjectID:        dto.ProjectID,
		ControlAccountID: dto.ControlAccountID,
		WbsCode:          dto.WbsCode,
		Description:      dto.Description,
		Category:         dto.Category,
		PlannedCost:      dto.PlannedCost,
		ActualCost:       dto.ActualCost,
		CommittedCost:    dto.CommittedCost,
		ForecastCost:     dto.ForecastCost,
	}
}
