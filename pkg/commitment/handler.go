package commitment

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/costwise/costwise/internal/utils"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type CommitmentDTO struct {
	ID               int                     `json:"id"`
	Uid              string                  `json:"uid,omitempty"`
	ProjectID        int                     `json:"projectId"`
	ContractorRef    string                  `json:"contractorRef,omitempty"`
	BudgetItemID     *int                    `json:"budgetItemId,omitempty"`
	ControlAccountID *int                    `json:"controlAccountId,omitempty"`
	CommitmentNumber string                  `json:"commitmentNumber"`
	Title            string                  `json:"title"`
	OriginalAmount   decimal.Decimal         `json:"originalAmount"`
	RevisedAmount    decimal.Decimal         `json:"revisedAmount"`
	CommittedAmount  decimal.Decimal         `json:"committedAmount"`
	InvoicedAmount   decimal.Decimal         `json:"invoicedAmount"`
	PaidAmount       decimal.Decimal         `json:"paidAmount"`
	RetentionAmount  decimal.Decimal         `json:"retentionAmount"`
	UnpaidAmount     decimal.Decimal         `json:"unpaidAmount"`
	OverCommitted    bool                    `json:"overCommitted"`
	Expired          bool                    `json:"expired"`
	RiskScore        decimal.Decimal         `json:"riskScore"`
	StartDate        time.Time               `json:"startDate"`
	EndDate          time.Time               `json:"endDate"`
	PerformancePct   decimal.Decimal         `json:"performancePct"`
	Status           string                  `json:"status,omitempty"`
	ApprovedBy       *string                 `json:"approvedBy,omitempty"`
	ApprovedAt       *time.Time              `json:"approvedAt,omitempty"`
	ApprovalNotes    string                  `json:"approvalNotes,omitempty"`
	RejectedBy       *string                 `json:"rejectedBy,omitempty"`
	RejectedAt       *time.Time              `json:"rejectedAt,omitempty"`
	RejectionReason  string                  `json:"rejectionReason,omitempty"`
	CreatedAt        *time.Time              `json:"createdAt,omitempty"`
	Items            []CommitmentItemDTO     `json:"items,omitempty"`
	Allocations      []AllocationDTO         `json:"allocations,omitempty"`
	Revisions        []CommitmentRevisionDTO `json:"revisions,omitempty"`
}

type CommitmentItemDTO struct {
	ID           int             `json:"id"`
	CommitmentID int             `json:"commitmentId"`
	Code         string          `json:"code"`
	Description  string          `json:"description,omitempty"`
	Quantity     decimal.Decimal `json:"quantity"`
	UnitRate     decimal.Decimal `json:"unitRate"`
	Amount       decimal.Decimal `json:"amount"`
}

type AllocationDTO struct {
	ID              int             `json:"id"`
	CommitmentID    int             `json:"commitmentId"`
	WorkPackageID   int             `json:"workPackageId"`
	AllocatedAmount decimal.Decimal `json:"allocatedAmount"`
	InvoicedAmount  decimal.Decimal `json:"invoicedAmount"`
	FullyInvoiced   bool            `json:"fullyInvoiced"`
}

type CommitmentRevisionDTO struct {
	ID             int             `json:"id"`
	Number         int             `json:"number"`
	PreviousAmount decimal.Decimal `json:"previousAmount"`
	NewAmount      decimal.Decimal `json:"newAmount"`
	Reason         string          `json:"reason"`
	ChangeOrderRef string          `json:"changeOrderRef,omitempty"`
	CreatedBy      string          `json:"createdBy"`
	CreatedAt      time.Time       `json:"createdAt"`
}

type Handler struct {
	service Service
	clock   utils.Clock
}

func NewHandler(service Service, clock utils.Clock) *Handler {
	return &Handler{service: service, clock: clock}
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	log.Debug("Creating new commitment")
	w.Header().Set("Content-Type", "application/json")

	var dto CommitmentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	created, err := h.service.Create(r.Context(), dtoToCommitment(dto))
	if err != nil {
		writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(h.commitmentToDTO(created)); err != nil {
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
	c, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.commitmentToDTO(c)); err != nil {
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
	commitments, err := h.service.ListByProject(r.Context(), projectId)
	if err != nil {
		writeError(w, err)
		return
	}
	dtos := make([]CommitmentDTO, 0, len(commitments))
	for _, c := range commitments {
		dtos = append(dtos, h.commitmentToDTO(c))
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
	var dto CommitmentDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c := dtoToCommitment(dto)
	c.ID = id
	updated, err := h.service.Update(r.Context(), c)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.commitmentToDTO(updated)); err != nil {
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

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id int) (Commitment, error) {
		return h.service.Submit(ctx, id)
	})
}

func (h *Handler) Approve(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Notes string `json:"notes"`
	}
	// body is optional for approvals
	_ = json.NewDecoder(r.Body).Decode(&body)
	h.transition(w, r, func(ctx context.Context, id int) (Commitment, error) {
		return h.service.Approve(ctx, id, body.Notes)
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
	h.transition(w, r, func(ctx context.Context, id int) (Commitment, error) {
		return h.service.Reject(ctx, id, body.Reason)
	})
}

func (h *Handler) Activate(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id int) (Commitment, error) {
		return h.service.Activate(ctx, id)
	})
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id int) (Commitment, error) {
		return h.service.Cancel(ctx, id)
	})
}

func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id int) (Commitment, error) {
		return h.service.Close(ctx, id)
	})
}

func (h *Handler) RecordInvoice(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, h.service.RecordInvoice)
}

func (h *Handler) RecordPayment(w http.ResponseWriter, r *http.Request) {
	h.amountOp(w, r, h.service.RecordPayment)
}

func (h *Handler) amountOp(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int, amount decimal.Decimal) (Commitment, error)) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := op(r.Context(), id, body.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.commitmentToDTO(c)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) Revise(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var body struct {
		NewAmount      decimal.Decimal `json:"newAmount"`
		Reason         string          `json:"reason"`
		ChangeOrderRef string          `json:"changeOrderRef"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := h.service.Revise(r.Context(), id, body.NewAmount, body.Reason, body.ChangeOrderRef)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.commitmentToDTO(c)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) AddItem(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dto CommitmentItemDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	item := CommitmentItem{
		CommitmentID: id,
		Code:         dto.Code,
		Description:  dto.Description,
		Quantity:     dto.Quantity,
		UnitRate:     dto.UnitRate,
	}
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

func (h *Handler) Allocate(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var dto AllocationDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	alloc := WorkPackageAllocation{
		CommitmentID:    id,
		WorkPackageID:   dto.WorkPackageID,
		AllocatedAmount: dto.AllocatedAmount,
		InvoicedAmount:  dto.InvoicedAmount,
	}
	created, err := h.service.Allocate(r.Context(), alloc)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(allocationToDTO(created)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int) (Commitment, error)) {
	w.Header().Set("Content-Type", "application/json")
	id, err := pathId(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	c, err := op(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(h.commitmentToDTO(c)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func pathId(r *http.Request, name string) (int, error) {
	return strconv.Atoi(mux.Vars(r)[name])
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrCommitmentNotFound), errors.Is(err, ErrAllocationNotFound), errors.Is(err, ErrProjectNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrInvalidStatusTransition), errors.Is(err, ErrCommitmentNotEditable), errors.Is(err, ErrCommitmentHasInvoices):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ErrReviseBelowInvoiced), errors.Is(err, ErrOverAllocation),
		errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrPaymentExceedsInvoiced):
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) commitmentToDTO(c Commitment) CommitmentDTO {
	now := h.clock.Now()
	dto := CommitmentDTO{
		ID:               c.ID,
		Uid:              c.Uid,
		ProjectID:        c.ProjectID,
		ContractorRef:    c.ContractorRef,
		BudgetItemID:     c.BudgetItemID,
		ControlAccountID: c.ControlAccountID,
		CommitmentNumber: c.CommitmentNumber,
		Title:            c.Title,
		OriginalAmount:   c.OriginalAmount,
		RevisedAmount:    c.RevisedAmount,
		CommittedAmount:  c.CommittedAmount,
		InvoicedAmount:   c.InvoicedAmount,
		PaidAmount:       c.PaidAmount,
		RetentionAmount:  c.RetentionAmount,
		UnpaidAmount:     c.UnpaidAmount(),
		OverCommitted:    c.OverCommitted(),
		Expired:          c.Expired(now),
		RiskScore:        c.RiskScore(now),
		StartDate:        c.StartDate,
		EndDate:          c.EndDate,
		PerformancePct:   c.PerformancePct,
		Status:           string(c.Status),
		ApprovedBy:       c.ApprovedBy,
		ApprovedAt:       c.ApprovedAt,
		ApprovalNotes:    c.ApprovalNotes,
		RejectedBy:       c.RejectedBy,
		RejectedAt:       c.RejectedAt,
		RejectionReason:  c.RejectionReason,
	}
	if !c.CreatedAt.IsZero() {
		createdAt := c.CreatedAt
		dto.CreatedAt = &createdAt
	}
	for _, item := range c.Items {
		dto.Items = append(dto.Items, itemToDTO(item))
	}
	for _, alloc := range c.Allocations {
		dto.Allocations = append(dto.Allocations, allocationToDTO(alloc))
	}
	for _, rev := range c.Revisions {
		dto.Revisions = append(dto.Revisions, CommitmentRevisionDTO{
			ID:             rev.ID,
			Number:         rev.Number,
			PreviousAmount: rev.PreviousAmount,
			NewAmount:      rev.NewAmount,
			Reason:         rev.Reason,
			ChangeOrderRef: rev.ChangeOrderRef,
			CreatedBy:      rev.CreatedBy,
			CreatedAt:      rev.CreatedAt,
		})
	}
	return dto
}

func itemToDTO(item CommitmentItem) CommitmentItemDTO {
	return CommitmentItemDTO{
		ID:           item.ID,
		CommitmentID: item.CommitmentID,
		Code:         item.Code,
		Description:  item.Description,
		Quantity:     item.Quantity,
		UnitRate:     item.UnitRate,
		Amount:       item.Amount,
	}
}

func allocationToDTO(alloc WorkPackageAllocation) AllocationDTO {
	return AllocationDTO{
		ID:              alloc.ID,
		CommitmentID:    alloc.CommitmentID,
		WorkPackageID:   alloc.WorkPackageID,
		AllocatedAmount: alloc.AllocatedAmount,
		InvoicedAmount:  alloc.InvoicedAmount,
		FullyInvoiced:   alloc.FullyInvoiced(),
	}
}

func dtoToCommitment(dto CommitmentDTO) Commitment {
	return Commitment{
		ID:               dto.ID,
		ProjectID:        dto.ProjectID,
		ContractorRef:    dto.ContractorRef,
		BudgetItemID:     dto.BudgetItemID,
		ControlAccountID: dto.ControlAccountID,
		CommitmentNumber: dto.CommitmentNumber,
		Title:            dto.Title,
		OriginalAmount:   dto.OriginalAmount,
		StartDate:        dto.StartDate,
		EndDate:          dto.EndDate,
		PerformancePct:   dto.PerformancePct,
	}
}
