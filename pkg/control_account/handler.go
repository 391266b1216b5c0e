package control_account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type ControlAccountDTO struct {
	ID                 int               `json:"id"`
	Uid                string            `json:"uid,omitempty"`
	ProjectID          int               `json:"projectId"`
	Phase              string            `json:"phase,omitempty"`
	Code               string            `json:"code"`
	Name               string            `json:"name"`
	Manager            string            `json:"manager,omitempty"`
	BudgetAtCompletion decimal.Decimal   `json:"budgetAtCompletion"`
	Contingency        decimal.Decimal   `json:"contingency"`
	ManagementReserve  decimal.Decimal   `json:"managementReserve"`
	MeasurementMethod  string            `json:"measurementMethod"`
	Status             string            `json:"status,omitempty"`
	Level              int               `json:"level"`
	CreatedAt          *time.Time        `json:"createdAt,omitempty"`
	WorkPackages       []WorkPackageDTO  `json:"workPackages,omitempty"`
}

type WorkPackageDTO struct {
	ID                int             `json:"id"`
	ControlAccountID  int             `json:"controlAccountId"`
	Code              string          `json:"code"`
	Name              string          `json:"name"`
	Budget            decimal.Decimal `json:"budget"`
	ProgressPercent   decimal.Decimal `json:"progressPercent"`
	IsPlanningPackage bool            `json:"isPlanningPackage"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new control account")
	w.Header().Set("Content-Type", "application/json")

	var dto ControlAccountDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.Create(r.Context(), dtoToAccount(dto))
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(accountToDTO(created)); err != nil {
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
	ca, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(accountToDTO(ca)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) ListByProject(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	projectId, err := strconv.Atoi(r.URL.Query().Get("projectId"))
	if err != nil {
		http.Error(w, "invalid projectId", http.StatusBadRequest)
		return
	}
	accounts, err := h.service.ListByProject(r.Context(), projectId)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]ControlAccountDTO, 0, len(accounts))
	for _, ca := range accounts {
		dtos = append(dtos, accountToDTO(ca))
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
	var dto ControlAccountDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ca := dtoToAccount(dto)
	ca.ID = id
	updated, err := h.service.Update(r.Context(), ca)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(accountToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) Baseline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Baseline)
}

func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Start)
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.Close)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int) (ControlAccount, error)) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ca, err := op(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(accountToDTO(ca)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	ok, err := h.service.Delete(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		http.Error(w, "Control account not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddWorkPackage(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dto WorkPackageDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	wp := WorkPackage{
		ControlAccountID:  id,
		Code:              dto.Code,
		Name:              dto.Name,
		Budget:            dto.Budget,
		ProgressPercent:   dto.ProgressPercent,
		IsPlanningPackage: dto.IsPlanningPackage,
	}
	created, err := h.service.AddWorkPackage(r.Context(), wp)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(workPackageToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) UpdateWorkPackageProgress(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	wpId, err := pathId(r, "wpId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		ProgressPercent decimal.Decimal `json:"progressPercent"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.service.UpdateWorkPackageProgress(r.Context(), wpId, body.ProgressPercent); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathId(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrControlAccountNotFound), errors.Is(err, ErrProjectNotFound), errors.Is(err, ErrWorkPackageNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidStatusTransition), errors.Is(err, ErrAccountClosed):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrInvalidMeasurementMethod):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func accountToDTO(ca ControlAccount) ControlAccountDTO {
	dto := ControlAccountDTO{
		ID:                 ca.ID,
		Uid:                ca.Uid,
		ProjectID:          ca.ProjectID,
		Phase:              ca.Phase,
		Code:               ca.Code,
		Name:               ca.Name,
		Manager:            ca.Manager,
		BudgetAtCompletion: ca.BudgetAtCompletion,
		Contingency:        ca.Contingency,
		ManagementReserve:  ca.ManagementReserve,
		MeasurementMethod:  string(ca.MeasurementMethod),
		Status:             string(ca.Status),
		Level:              ca.Level,
	}
	if !ca.CreatedAt.IsZero() {
		createdAt := ca.CreatedAt
		dto.CreatedAt = &createdAt
	}
	for _, wp := range ca.WorkPackages {
		dto.WorkPackages = append(dto.WorkPackages, workPackageToDTO(wp))
	}
	return dto
}

func workPackageToDTO(wp WorkPackage) WorkPackageDTO {
	return WorkPackageDTO{
		ID:                wp.ID,
		ControlAccountID:  wp.ControlAccountID,
		Code:              wp.Code,
		Name:              wp.Name,
		Budget:            wp.Budget,
		ProgressPercent:   wp.ProgressPercent,
		IsPlanningPackage: wp.IsPlanningPackage,
	}
}

func dtoToAccount(dto ControlAccountDTO) ControlAccount {
	return ControlAccount{
		ID:                 dto.ID,
		ProjectID:          dto.ProjectID,
		Phase:              dto.Phase,
		Code:               dto.Code,
		Name:               dto.Name,
		Manager:            dto.Manager,
		BudgetAtCompletion: dto.BudgetAtCompletion,
		Contingency:        dto.Contingency,
		ManagementReserve:  dto.ManagementReserve,
		MeasurementMethod:  MeasurementMethod(dto.MeasurementMethod),
		Level:              dto.Level,
	}
}
