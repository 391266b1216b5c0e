package budget

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

type BudgetDTO struct {
	ID                int                 `json:"id"`
	Uid               string              `json:"uid,omitempty"`
	ProjectID         int                 `json:"projectId"`
	Version           string              `json:"version"`
	Description       string              `json:"description,omitempty"`
	TotalAmount       decimal.Decimal     `json:"totalAmount"`
	Currency          string              `json:"currency"`
	ContingencyAmount decimal.Decimal     `json:"contingencyAmount"`
	ManagementReserve decimal.Decimal     `json:"managementReserve"`
	Status            string              `json:"status,omitempty"`
	IsBaseline        bool                `json:"isBaseline"`
	IsLocked          bool                `json:"isLocked"`
	ApprovedBy        *string             `json:"approvedBy,omitempty"`
	ApprovedAt        *time.Time          `json:"approvedAt,omitempty"`
	ApprovalComments  string              `json:"approvalComments,omitempty"`
	RejectedBy        *string             `json:"rejectedBy,omitempty"`
	RejectedAt        *time.Time          `json:"rejectedAt,omitempty"`
	RejectionReason   string              `json:"rejectionReason,omitempty"`
	CreatedAt         *time.Time          `json:"createdAt,omitempty"`
	Items             []BudgetItemDTO     `json:"items,omitempty"`
	Revisions         []BudgetRevisionDTO `json:"revisions,omitempty"`
}

type BudgetItemDTO struct {
	ID          int             `json:"id"`
	BudgetID    int             `json:"budgetId"`
	Code        string          `json:"code"`
	Description string          `json:"description,omitempty"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitRate    decimal.Decimal `json:"unitRate"`
	Amount      decimal.Decimal `json:"amount"`
	CostType    string          `json:"costType"`
}

type BudgetRevisionDTO struct {
	ID          int       `json:"id"`
	Number      int       `json:"number"`
	Reason      string    `json:"reason"`
	NewBudgetID int       `json:"newBudgetId"`
	CreatedBy   string    `json:"createdBy"`
	CreatedAt   time.Time `json:"createdAt"`
}

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new budget")
	w.Header().Set("Content-Type", "application/json")

	var dto BudgetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.Create(r.Context(), dtoToBudget(dto))
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(budgetToDTO(created)); err != nil {
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
	b, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(budgetToDTO(b)); err != nil {
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
	budgets, err := h.service.ListByProject(r.Context(), projectId)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]BudgetDTO, 0, len(budgets))
	for _, b := range budgets {
		dtos = append(dtos, budgetToDTO(b))
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
	var dto BudgetDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b := dtoToBudget(dto)
	b.ID = id
	updated, err := h.service.Update(r.Context(), b)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(budgetToDTO(updated)); err != nil {
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
		http.Error(w, "Budget not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dto BudgetItemDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	item := dtoToItem(dto)
	item.BudgetID = id
	created, err := h.service.AddItem(r.Context(), item)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(itemToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	itemId, err := pathId(r, "itemId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dto BudgetItemDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	item := dtoToItem(dto)
	item.ID = itemId
	item.BudgetID = id
	updated, err := h.service.UpdateItem(r.Context(), item)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(itemToDTO(updated)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	itemId, err := pathId(r, "itemId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if _, err := h.service.RemoveItem(r.Context(), id, itemId); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id int) (Budget, error) {
		return h.service.Submit(ctx, id)
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Comments string `json:"comments"`
	}
	// body is optional for approvals
	_ = json.NewDecoder(r.Body).Decode(&body)
	h.transition(w, r, func(ctx context.Context, id int) (Budget, error) {
		return h.service.Approve(ctx, id, body.Comments)
	})
}

func (h *Handler) Reject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.transition(w, r, func(ctx context.Context, id int) (Budget, error) {
		return h.service.Reject(ctx, id, body.Reason)
	})
}

func (h *Handler) SetAsBaseline(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id int) (Budget, error) {
		return h.service.SetAsBaseline(ctx, id)
	})
}

func (h *Handler) Lock(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id int) (Budget, error) {
		return h.service.Lock(ctx, id)
	})
}

func (h *Handler) Revise(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	draft, err := h.service.Revise(r.Context(), id, body.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(budgetToDTO(draft)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int) (Budget, error)) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	b, err := op(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(budgetToDTO(b)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathId(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrBudgetNotFound), errors.Is(err, ErrItemNotFound), errors.Is(err, ErrProjectNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidStatusTransition), errors.Is(err, ErrBudgetNotEditable),
		errors.Is(err, ErrBudgetLocked), errors.Is(err, ErrDuplicateVersion), errors.Is(err, ErrDuplicateItemCode):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrItemTotalMismatch), errors.Is(err, ErrNoBudgetItems), errors.Is(err, ErrInvalidCostType):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func budgetToDTO(b Budget) BudgetDTO {
	dto := BudgetDTO{
		ID:                b.ID,
		Uid:               b.Uid,
		ProjectID:         b.ProjectID,
		Version:           b.Version,
		Description:       b.Description,
		TotalAmount:       b.TotalAmount,
		Currency:          b.Currency,
		ContingencyAmount: b.ContingencyAmount,
		ManagementReserve: b.ManagementReserve,
		Status:            string(b.Status),
		IsBaseline:        b.IsBaseline,
		IsLocked:          b.IsLocked,
		ApprovedBy:        b.ApprovedBy,
		ApprovedAt:        b.ApprovedAt,
		ApprovalComments:  b.ApprovalComments,
		RejectedBy:        b.RejectedBy,
		RejectedAt:        b.RejectedAt,
		RejectionReason:   b.RejectionReason,
	}
	if !b.CreatedAt.IsZero() {
		createdAt := b.CreatedAt
		dto.CreatedAt = &createdAt
	}
	for _, item := range b.Items {
		dto.Items = append(dto.Items, itemToDTO(item))
	}
	for _, rev := range b.Revisions {
		dto.Revisions = append(dto.Revisions, BudgetRevisionDTO{
			ID:          rev.ID,
			Number:      rev.Number,
			Reason:      rev.Reason,
			NewBudgetID: rev.NewBudgetID,
			CreatedBy:   rev.CreatedBy,
			CreatedAt:   rev.CreatedAt,
		})
	}
	return dto
}

func itemToDTO(item BudgetItem) BudgetItemDTO {
	return BudgetItemDTO{
		ID:          item.ID,
		BudgetID:    item.BudgetID,
		Code:        item.Code,
		Description: item.Description,
		Quantity:    item.Quantity,
		UnitRate:    item.UnitRate,
		Amount:      item.Amount,
		CostType:    string(item.CostType),
	}
}

func dtoToBudget(dto BudgetDTO) Budget {
	return Budget{
		ID:                dto.ID,
		ProjectID:         dto.ProjectID,
		Version:           dto.Version,
		Description:       dto.Description,
		TotalAmount:       dto.TotalAmount,
		Currency:          dto.Currency,
		ContingencyAmount: dto.ContingencyAmount,
		ManagementReserve: dto.ManagementReserve,
	}
}

func dtoToItem(dto BudgetItemDTO) BudgetItem {
	return BudgetItem{
		ID:          dto.ID,
		BudgetID:    dto.BudgetID,
		Code:        dto.Code,
		Description: dto.Description,
		Quantity:    dto.Quantity,
		UnitRate:    dto.UnitRate,
		CostType:    CostType(dto.CostType),
	}
}
